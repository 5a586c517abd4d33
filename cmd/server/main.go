package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/wadjakorntonsri/engsite/pkg/app"
	"github.com/wadjakorntonsri/engsite/pkg/config"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	return a.Run(ctx)
}
