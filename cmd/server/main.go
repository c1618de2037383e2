package main

import (
	"log"
	"net/http"

	"github.com/convenehq/convene/internal/auth"
	"github.com/convenehq/convene/internal/closer"
	"github.com/convenehq/convene/internal/collab"
	"github.com/convenehq/convene/internal/config"
	"github.com/convenehq/convene/internal/handlers"
	"github.com/convenehq/convene/internal/logger"
	"github.com/convenehq/convene/internal/navigation"
	"github.com/convenehq/convene/internal/pubsub"
	"github.com/convenehq/convene/internal/routes"
	"github.com/convenehq/convene/internal/store"
	"github.com/convenehq/convene/internal/store/mysql"

	"math/rand"
	"time"
)

func main() {
	cfg := config.Load()
	mainLog := logger.NewLogger("convene-server")
	defer mainLog.Sync()

	var st store.Store
	if cfg.HasDatabase() {
		sqlStore, err := mysql.Open(cfg.DSN())
		if err != nil {
			mainLog.Fatal("failed to connect to database", "error", err)
		}
		st = sqlStore
	} else {
		mainLog.Warn("no database configured, using in-memory store")
		st = store.NewMemStore()
	}

	hub := pubsub.NewHub(logger.NewLogger("notification-hub"))
	go hub.Run()

	sideEffects := &collab.LogSideEffects{Log: logger.NewLogger("side-effects")}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	authority := &navigation.Authority{
		Store: st,
		Pub:   hub,
		Log:   logger.NewLogger("navigation"),
	}
	aggregator := &closer.Aggregator{
		Store:     st,
		Pub:       hub,
		Auth:      &auth.StoreAuthorizer{Store: st},
		Ordering:  collab.StepOrdering{},
		Archival:  collab.TagArchival{},
		Telemetry: sideEffects,
		Chat:      sideEffects,
		Email:     sideEffects,
		Suggested: collab.NewMemorySuggestedActions(),
		Summary:   &collab.CopyComposer{Rand: rng},
		Log:       logger.NewLogger("closer"),
		Rand:      rng,
	}

	router := routes.RegisterAllRoutes(
		&handlers.MeetingService{
			Authority:  authority,
			Aggregator: aggregator,
			Log:        logger.NewLogger("meeting-handler"),
		},
		&handlers.SocketHandler{Hub: hub, Log: logger.NewLogger("socket-handler")},
	)

	mainLog.Info("server listening", "addr", cfg.HTTPAddr, "env", cfg.AppEnv)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, router))
}
