package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Lllllllleong/balanceconfirmflow/internal/app"
	"github.com/Lllllllleong/balanceconfirmflow/internal/config"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("Reminder worker stopped with an error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	handle, err := a.Reminders.Start(ctx)
	if err != nil {
		return err
	}
	slog.Info("Reminder worker started.", "interval", cfg.Reminders().CheckInterval.String())

	<-ctx.Done()
	handle.Stop()
	slog.Info("Reminder worker stopped.")
	return nil
}
