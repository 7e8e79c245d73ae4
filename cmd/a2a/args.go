package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"
)

// Args represents parsed command-line arguments.
type Args struct {
	// Command is the subcommand (run, tui, models, ...).
	Command string
	// Positional holds the arguments left after flags, including any
	// sub-subcommand such as "set" in "keys set".
	Positional []string

	ConfigFile  string
	Prompt      string
	PromptFile  string
	Analyst     string
	Reviewer    string
	Rounds      int
	Timeout     time.Duration
	Title       string
	Output      string
	ExtraRounds int
	Limit       int
	Store       string
	DSN         string
	OllamaURL   string
	LogFile     string
	LogJSON     bool
	TraceFile   string
	MetricsAddr string
	NoBell      bool
	NoVerify    bool
	Quiet       bool
	Verbose     bool

	// Err is any error encountered during parsing
	Err error
}

// errHelp is returned for -h/--help and a missing command.
var errHelp = errors.New("help requested")

var commands = map[string]bool{
	"run":        true,
	"resume":     true,
	"tui":        true,
	"models":     true,
	"status":     true,
	"keys":       true,
	"sessions":   true,
	"audio-test": true,
	"help":       true,
}

// boolFlags take no value, so the next argument is never consumed.
var boolFlags = map[string]bool{
	"log-json":  true,
	"no-bell":   true,
	"no-verify": true,
	"quiet":     true,
	"q":         true,
	"verbose":   true,
	"v":         true,
	"help":      true,
	"h":         true,
}

const usage = `Usage: a2a <command> [flags] [args]

Commands:
  run [prompt]                  run a dialogue and export the transcript
  resume <session-id>           continue a stored dialogue (--extra-rounds N)
  tui                           interactive terminal UI
  models                        list cloud and local models
  status                        check the Ollama server
  keys set <provider> [key]     store an API key (gemini, claude, openai)
  keys show                     show configured keys
  keys check                    verify configured keys
  sessions list                 list stored sessions
  sessions show <id>            print a stored transcript
  sessions export <id> [-o f]   export a stored transcript
  sessions delete <id>          delete a stored session
  audio-test                    check and play the completion bell

Flags:
`

// parseArgs parses command-line arguments and returns an Args struct.
// Flags can appear before or after positional arguments.
// If parsing fails, the Err field will contain the error.
func parseArgs(osArgs []string) Args {
	if len(osArgs) == 0 {
		return Args{Err: errHelp}
	}

	command := osArgs[0]
	if command == "-h" || command == "--help" || command == "help" {
		return Args{Err: errHelp}
	}
	if !commands[command] {
		return Args{Err: fmt.Errorf("unknown command %q", command)}
	}

	// Separate positional arguments from flags
	var positional, flagArgs []string
	rest := osArgs[1:]
	for i := 0; i < len(rest); i++ {
		arg := rest[i]
		if arg == "--" {
			positional = append(positional, rest[i+1:]...)
			break
		}
		if len(arg) > 1 && arg[0] == '-' {
			flagArgs = append(flagArgs, arg)
			name := strings.TrimLeft(arg, "-")
			if strings.Contains(name, "=") || boolFlags[name] {
				continue
			}
			if i+1 < len(rest) {
				i++
				flagArgs = append(flagArgs, rest[i])
			}
			continue
		}
		positional = append(positional, arg)
	}

	args := Args{Command: command, Positional: positional}
	fs := newFlagSet(&args)
	if err := fs.Parse(flagArgs); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return Args{Err: errHelp}
		}
		return Args{Err: fmt.Errorf("flag parsing error: %w", err)}
	}
	if args.Verbose && args.Quiet {
		return Args{Err: errors.New("--verbose and --quiet are mutually exclusive")}
	}
	if args.ExtraRounds < 0 {
		return Args{Err: errors.New("--extra-rounds must not be negative")}
	}
	return args
}

func newFlagSet(args *Args) *flag.FlagSet {
	fs := flag.NewFlagSet("a2a", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&args.ConfigFile, "config", "", "path to config YAML file")
	fs.StringVar(&args.Prompt, "prompt", "", "initial prompt (run)")
	fs.StringVar(&args.PromptFile, "prompt-file", "", "read the initial prompt from a file, - for stdin")
	fs.StringVar(&args.Analyst, "analyst", "", "Agent 1 (Analyst) model")
	fs.StringVar(&args.Reviewer, "reviewer", "", "Agent 2 (Reviewer) model")
	fs.IntVar(&args.Rounds, "rounds", 0, "number of rounds (1-10)")
	fs.DurationVar(&args.Timeout, "timeout", 0, "per-request timeout (60s-600s)")
	fs.StringVar(&args.Title, "title", "", "transcript title")
	fs.StringVar(&args.Output, "output", "", "export path (.md, .txt or .json)")
	fs.StringVar(&args.Output, "o", "", "shorthand for --output")
	fs.IntVar(&args.ExtraRounds, "extra-rounds", 0, "rounds to add when resuming")
	fs.IntVar(&args.Limit, "limit", 20, "maximum sessions to list (0 for all)")
	fs.StringVar(&args.Store, "store", "", "session store driver (memory, sqlite, mysql)")
	fs.StringVar(&args.DSN, "dsn", "", "session store DSN")
	fs.StringVar(&args.OllamaURL, "ollama-url", "", "Ollama server address")
	fs.StringVar(&args.LogFile, "log-file", "", "write structured event logs to this file")
	fs.BoolVar(&args.LogJSON, "log-json", false, "log events as JSON lines")
	fs.StringVar(&args.TraceFile, "trace-file", "", "write OpenTelemetry spans as JSON lines")
	fs.StringVar(&args.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	fs.BoolVar(&args.NoBell, "no-bell", false, "do not play the completion bell")
	fs.BoolVar(&args.NoVerify, "no-verify", false, "store API keys without checking them")
	fs.BoolVar(&args.Quiet, "quiet", false, "print only agent responses")
	fs.BoolVar(&args.Quiet, "q", false, "shorthand for --quiet")
	fs.BoolVar(&args.Verbose, "verbose", false, "log engine events to stderr")
	fs.BoolVar(&args.Verbose, "v", false, "shorthand for --verbose")
	return fs
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, usage)
	fs := newFlagSet(&Args{})
	fs.SetOutput(w)
	fs.PrintDefaults()
}
