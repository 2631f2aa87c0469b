package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eringen/visitmetrics"
)

// ServeCommand runs the HTTP server.
type ServeCommand struct {
	Addr string `long:"addr" description:"Override listen address (ADDR)"`

	globals *GlobalFlags
}

// Execute implements the go-flags Commander interface.
func (c *ServeCommand) Execute(args []string) error {
	cfg := visitmetrics.ConfigFromEnv()
	if c.Addr != "" {
		cfg.Addr = c.Addr
	}
	if c.globals.Verbose {
		cfg.LogLevel = "debug"
	}

	app := visitmetrics.New(cfg)
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start(ctx)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	app.Echo.Logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return app.Shutdown(shutdownCtx)
}
