package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dshills/a2a-go/dialogue"
	"github.com/dshills/a2a-go/dialogue/catalog"
	"github.com/dshills/a2a-go/dialogue/emit"
	"github.com/dshills/a2a-go/dialogue/keys"
	"github.com/dshills/a2a-go/dialogue/model/ollama"
	"github.com/dshills/a2a-go/dialogue/store"
	"github.com/dshills/a2a-go/internal/notify"
)

const shutdownTimeout = 5 * time.Second

// env holds everything built from the configuration for one command.
type env struct {
	cfg  *Config
	args Args

	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
	// notices receives bell messages; the TUI discards them.
	notices io.Writer

	keys     *keys.Store
	resolver *catalog.Resolver
	bell     *notify.Bell
	now      func() time.Time

	closers []func() error
}

func newEnv(args Args, stdin io.Reader, stdout, stderr io.Writer) (*env, error) {
	cfg, err := loadConfig(args.ConfigFile)
	if err != nil {
		return nil, err
	}
	cfg.applyArgs(args)

	ks := keys.NewStore(cfg.KeyDir)
	if err := ks.Load(); err != nil {
		fmt.Fprintf(stderr, "Warning: %v\n", err)
	}

	return &env{
		cfg:      cfg,
		args:     args,
		stdin:    stdin,
		stdout:   stdout,
		stderr:   stderr,
		notices:  stderr,
		keys:     ks,
		resolver: catalog.NewResolver(ks, ollama.NewClient(cfg.OllamaURL), cfg.OpenAIBaseURL),
		bell:     notify.NewBell(cfg.Bell.Sound),
		now:      time.Now,
	}, nil
}

// close releases resources in reverse order of acquisition.
func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			fmt.Fprintf(e.stderr, "Warning: %v\n", err)
		}
	}
	e.closers = nil
}

func (e *env) openStore() (store.Store[dialogue.State], error) {
	driver, dsn := e.cfg.Store.Driver, e.cfg.Store.DSN
	if driver == store.DriverSQLite && dsn != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o700); err != nil {
			return nil, fmt.Errorf("create store directory: %w", err)
		}
	}

	st, err := store.Open[dialogue.State](driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	e.closers = append(e.closers, st.Close)
	return st, nil
}

// newEngine builds the engine with the configured logging, tracing,
// metrics and bell. sink receives every event in addition to the log.
func (e *env) newEngine(st store.Store[dialogue.State], sink emit.Emitter, logToStderr bool) (*dialogue.Engine, error) {
	var emitters []emit.Emitter

	switch {
	case e.cfg.Log.File != "":
		f, err := os.OpenFile(e.cfg.Log.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		e.closers = append(e.closers, f.Close)
		emitters = append(emitters, emit.NewLogEmitter(f, e.cfg.Log.JSON))
	case logToStderr:
		emitters = append(emitters, emit.NewLogEmitter(e.stderr, e.cfg.Log.JSON))
	}

	if e.cfg.TraceFile != "" {
		f, err := os.Create(e.cfg.TraceFile)
		if err != nil {
			return nil, fmt.Errorf("create trace file: %w", err)
		}
		e.closers = append(e.closers, f.Close)
		tp, shutdown, err := setupTracing(f)
		if err != nil {
			return nil, err
		}
		e.closers = append(e.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return shutdown(ctx)
		})
		emitters = append(emitters, emit.NewOTelEmitter(tp.Tracer("github.com/dshills/a2a-go")))
	}

	emitters = append(emitters, sink)

	var opts []dialogue.Option
	if e.cfg.MetricsAddr != "" {
		metrics, err := e.serveMetrics(e.cfg.MetricsAddr)
		if err != nil {
			return nil, err
		}
		opts = append(opts, dialogue.WithMetrics(metrics))
	}
	if !e.cfg.Bell.Disabled {
		opts = append(opts, dialogue.WithFinishHook(e.ringBell))
	}

	return dialogue.New(e.resolver, st, emit.NewMultiEmitter(emitters...), opts...), nil
}

// serveMetrics exposes a fresh registry on addr until the env is closed.
func (e *env) serveMetrics(addr string) (*dialogue.Metrics, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := dialogue.NewMetrics(registry)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(e.stderr, "Metrics server error: %v\n", err)
		}
	}()
	e.closers = append(e.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(ctx)
	})
	if !e.args.Quiet {
		fmt.Fprintf(e.stderr, "Metrics: http://%s/metrics\n", ln.Addr())
	}
	return metrics, nil
}

// ringBell plays the completion sound once per completed session.
func (e *env) ringBell(state dialogue.State, _ error) {
	if state.Status != dialogue.StatusCompleted {
		return
	}
	played, err := e.bell.Play(context.Background(), state.Transcript.SessionID)
	switch {
	case err != nil:
		fmt.Fprintf(e.notices, "Bell: %v\n", err)
	case played && !e.args.Quiet:
		fmt.Fprintln(e.notices, "🔔 Completion sound played")
	}
}

// localModels lists the Ollama models, bounded by the status timeout.
func (e *env) localModels(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, ollama.StatusTimeout)
	defer cancel()
	return e.resolver.LocalModels(ctx)
}

// prepare fills unset models with defaults and checks that both models can
// be used.
func (e *env) prepare(ctx context.Context, cfg *dialogue.Config) error {
	local, listErr := e.localModels(ctx)

	if cfg.Analyst.Model == "" || cfg.Reviewer.Model == "" {
		analyst, reviewer := catalog.Defaults(usableModels(local, e.keys))
		if cfg.Analyst.Model == "" {
			cfg.Analyst.Model = analyst
		}
		if cfg.Reviewer.Model == "" {
			cfg.Reviewer.Model = reviewer
		}
	}

	if err := cfg.Validate(); err != nil {
		if listErr != nil && (cfg.Analyst.Model == "" || cfg.Reviewer.Model == "") {
			return fmt.Errorf("%w (Ollama: %v)", err, listErr)
		}
		return err
	}
	if listErr != nil && (!catalog.IsCloud(cfg.Analyst.Model) || !catalog.IsCloud(cfg.Reviewer.Model)) {
		return fmt.Errorf("cannot list local models: %w", listErr)
	}
	return cfg.CheckModels(local, e.keys)
}

// usableModels returns the selectable models whose backend is reachable
// with the current keys.
func usableModels(local []string, ks catalog.KeySource) []string {
	var out []string
	for _, name := range catalog.Available(local) {
		entry := catalog.Lookup(name)
		if entry.Cloud() && ks.Key(entry.Provider) == "" {
			continue
		}
		out = append(out, name)
	}
	return out
}
