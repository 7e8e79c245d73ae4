package main

import (
	"fmt"
	"io"
	"sync"

	"github.com/dshills/a2a-go/dialogue/emit"
	"github.com/dshills/a2a-go/dialogue/transcript"
)

// consolePrinter renders engine events for the headless commands. Transcript
// entries go to out; turn and retry notices go to status.
type consolePrinter struct {
	mu     sync.Mutex
	out    io.Writer
	status io.Writer
	quiet  bool
}

func newConsolePrinter(out, status io.Writer, quiet bool) *consolePrinter {
	return &consolePrinter{out: out, status: status, quiet: quiet}
}

// Emit implements emit.Emitter.
func (p *consolePrinter) Emit(e emit.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch e.Msg {
	case "entry":
		kind, _ := e.Meta["kind"].(string)
		content, _ := e.Meta["content"].(string)
		entry := transcript.Entry{Kind: transcript.Kind(kind), Content: content}
		agent := entry.Kind == transcript.KindAnalyst || entry.Kind == transcript.KindReviewer
		if p.quiet && !agent && entry.Kind != transcript.KindError {
			return
		}
		fmt.Fprintln(p.out, entry.Line())
		if agent {
			fmt.Fprintln(p.out)
		}
	case "turn_start":
		if !p.quiet {
			fmt.Fprintf(p.status, "🤔 %v is thinking... (%v, timeout %vs)\n", e.Meta["agent"], e.Meta["model"], e.Meta["timeout_s"])
		}
	case "retry":
		if !p.quiet {
			fmt.Fprintf(p.status, "↻ %v: %v, retrying in %vms (attempt %v of %v)\n",
				e.Meta["agent"], e.Meta["reason"], e.Meta["delay_ms"], e.Meta["attempt"], e.Meta["max_attempts"])
		}
	}
}
