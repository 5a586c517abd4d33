package handler

import (
	"context"
	"net/http"

	"github.com/wadjakorntonsri/engsite/pkg/app"
	"github.com/wadjakorntonsri/engsite/pkg/config"
)

var mux http.Handler

func init() {
	cfg := config.Load()

	// On Vercel the local sqlite file is ephemeral; point DATABASE_URL at
	// Turso or Postgres and set RATE_LIMIT_STORE=database so counters are
	// shared across instances.
	a, err := app.New(context.Background(), cfg)
	if err != nil {
		panic(err)
	}
	// Instances are frozen between invocations, so the analytics writer and
	// sweeper only make progress while a request is being served.
	a.StartBackground(context.Background())
	mux = a.Handler
}

// Handler is the entrypoint for Vercel
func Handler(w http.ResponseWriter, r *http.Request) {
	mux.ServeHTTP(w, r)
}
