// Worker is the single binary that runs the full pipeline: HTTP control
// surface, action dispatch, and the poll-and-dispatch loop against the
// configured queue backend.
//
// Configuration is sourced from the environment (see internal/config);
// a missing .env file is tolerated in production deployments that set
// real process environment variables instead.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/mcintyjp/microservice-worker/internal/app"
	"github.com/mcintyjp/microservice-worker/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	application, err := app.New(cfg)
	if err != nil {
		log.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer stop()

	if err := application.Run(ctx); err != nil {
		log.Fatal(err)
	}

	os.Exit(0)
}
