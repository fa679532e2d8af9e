// Command hostbridge runs a script against a host. By default the host is
// in-process; with host.dial the script talks to a remote host, and with
// host.listen the process is that remote host.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fyne.io/fyne/v2/app"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/chrisuehlinger/hostbridge/bridge"
	"github.com/chrisuehlinger/hostbridge/command"
	"github.com/chrisuehlinger/hostbridge/config"
	"github.com/chrisuehlinger/hostbridge/host"
	"github.com/chrisuehlinger/hostbridge/js"
	"github.com/chrisuehlinger/hostbridge/transport"
	"github.com/chrisuehlinger/hostbridge/ui"
)

func main() {
	configPath := flag.String("config", "", "Path to a .toml or .yaml config file")
	script := flag.String("script", "", "Script to run, overrides the config")
	showUI := flag.Bool("ui", false, "Show the host panel")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "hostbridge: %v\n", err)
			os.Exit(2)
		}
		cfg = loaded
	}
	if *script != "" {
		cfg.Script = *script
	}
	if *showUI {
		cfg.UI.Enabled = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "hostbridge: %v\n", err)
		os.Exit(2)
	}

	logger, err := cfg.Log.Logger(term.IsTerminal(int(os.Stderr.Fd())))
	if err != nil {
		fmt.Fprintf(os.Stderr, "hostbridge: %v\n", err)
		os.Exit(2)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("hostbridge stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.Host.Listen != "" {
		return serve(ctx, cfg, logger)
	}

	pool := bridge.NewPool(
		bridge.WithPoolLogger(logger),
		bridge.WithWorkerQueue(cfg.Context.WorkerQueue),
	)
	defer pool.Close()

	if cfg.Host.Dial != "" {
		return runRemote(ctx, cfg, pool, logger)
	}
	return runLocal(ctx, cfg, pool, logger)
}

func contextOptions(cfg config.Config, logger *zap.Logger) []bridge.Option {
	return []bridge.Option{
		bridge.WithLogger(logger),
		bridge.WithIDAllocator(bridge.NewCounterAllocator(cfg.Context.FirstTargetID)),
		bridge.WithAutoFlush(cfg.Context.AutoFlush),
	}
}

// runLocal runs the script against an in-process host, optionally with the
// host panel on the main goroutine.
func runLocal(ctx context.Context, cfg config.Config, pool *bridge.Pool, logger *zap.Logger) error {
	h := host.NewLoopback(host.WithLogger(logger))
	defer h.Close()

	var sink command.Sink = h
	if cfg.Context.DeliveryBuffer > 0 {
		async := command.NewAsyncSink(h, cfg.Context.DeliveryBuffer, logger.Named("delivery"))
		defer async.Close()
		sink = async
	}
	bctx := pool.NewContext(append(contextOptions(cfg, logger), bridge.WithCommandSink(sink))...)

	if !cfg.UI.Enabled {
		return runScript(ctx, bctx, cfg.Script, false, adoptBody(h))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	errc := make(chan error, 1)
	go func() {
		errc <- runScript(ctx, bctx, cfg.Script, true, adoptBody(h))
	}()

	panel := ui.NewPanel(h, ui.WithPanelLogger(logger))
	ui.NewWindow(app.New(), cfg.UI.Title, panel).Run(ctx, 500*time.Millisecond)
	cancel()
	return <-errc
}

// adoptBody registers the runtime's body target with the in-process host.
func adoptBody(h *host.Loopback) func(*js.Runtime) {
	return func(rt *js.Runtime) {
		if body := rt.Target(rt.Body()); body != nil {
			h.Adopt(body.Binding().Native(), "BODY")
		}
	}
}

// runRemote runs the script against the host at cfg.Host.Dial.
func runRemote(ctx context.Context, cfg config.Config, pool *bridge.Pool, logger *zap.Logger) error {
	bctx := pool.NewContext(contextOptions(cfg, logger)...)
	client, err := transport.Dial(ctx, cfg.Host.Dial, bctx,
		transport.WithClientLogger(logger),
		transport.WithInvokeTimeout(cfg.Host.InvokeTimeout),
	)
	if err != nil {
		return err
	}
	defer client.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-client.Done():
			logger.Warn("host connection ended", zap.Error(client.Err()))
			cancel()
		case <-ctx.Done():
		}
	}()
	return runScript(ctx, bctx, cfg.Script, false, nil)
}

// runScript creates the runtime on the calling goroutine, runs path and
// drives the event loop until no work is left or ctx ends. With linger set
// it keeps serving host events until ctx ends.
func runScript(ctx context.Context, bctx *bridge.Context, path string, linger bool, ready func(*js.Runtime)) error {
	defer bctx.Dispose()
	rt := js.NewRuntime(bctx)
	defer rt.Close()
	if ready != nil {
		ready(rt)
	}
	if path == "" {
		<-ctx.Done()
		return ctx.Err()
	}

	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	if err := rt.ExecuteScript(string(src), path); err != nil {
		return err
	}
	bctx.FlushCommands()

	for rt.HasPendingWork() {
		runCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		err := rt.Run(runCtx)
		cancel()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, bridge.ErrContextDisposed) {
			return err
		}
		bctx.FlushCommands()
	}
	if linger {
		return rt.Run(ctx)
	}
	return nil
}

// serve runs the host side for remote scripts. Each session gets its own
// loopback host.
func serve(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	srv := transport.NewServer(func(s *transport.Session) transport.Handler {
		h := host.NewLoopback(host.WithLogger(logger.With(zap.String("session", s.ID()))))
		go func() {
			<-s.Done()
			h.Close()
		}()
		return h
	}, transport.WithServerLogger(logger))

	hs := &http.Server{Addr: cfg.Host.Listen, Handler: srv}
	errc := make(chan error, 1)
	go func() { errc <- hs.ListenAndServe() }()
	logger.Info("host listening", zap.String("addr", cfg.Host.Listen))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	srv.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := hs.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return ctx.Err()
}
