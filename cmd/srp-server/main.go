package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/allsmog/secure-range-proof/internal/config"
	"github.com/allsmog/secure-range-proof/internal/listener"
)

var flags = []cli.Flag{
	&cli.IntFlag{
		Name:  "port",
		Value: 9000,
		Usage: "TCP port to listen on",
	},
	&cli.StringFlag{
		Name:  "config",
		Value: "server/config/server.conf",
		Usage: "path to the server key=value config file",
	},
	&cli.BoolFlag{
		Name:  "debug",
		Value: false,
		Usage: "enable human-readable development logging",
	},
}

func main() {
	app := &cli.App{
		Name:  "srp-server",
		Usage: "Serve the secure range-proof authentication protocol over TCP",
		Flags: flags,
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cCtx *cli.Context) error {
	port := cCtx.Int("port")
	configPath := cCtx.String("config")
	debug := cCtx.Bool("debug")

	log, err := newLogger(debug)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config %q: %w", configPath, err)
	}
	for _, w := range cfg.Warnings {
		log.Warn("skipped malformed config line", zap.Int("line", w.Line), zap.String("content", w.Content), zap.String("reason", w.Reason))
	}
	log.Info("config loaded", zap.Int("client_count", cfg.Clients.Len()))

	ln, err := listener.Listen(listener.Config{
		Addr:    fmt.Sprintf(":%d", port),
		Keys:    cfg.ServerKeys,
		Clients: cfg.Clients,
		Log:     log,
	})
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", port, err)
	}
	log.Info("listening", zap.String("addr", ln.Addr().String()))

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- ln.Serve()
	}()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	select {
	case sig := <-exit:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
		if err := ln.Close(); err != nil {
			log.Warn("error closing listener", zap.Error(err))
		}
		<-serveErr
	case err := <-serveErr:
		if err != nil {
			log.Error("listener exited with error", zap.Error(err))
			return err
		}
	}

	log.Info("server shutdown complete")
	return nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
