package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/newsflow-io/newsflow/dedup"
	"github.com/newsflow-io/newsflow/eventbus"
	"github.com/newsflow-io/newsflow/gateway"
	"github.com/newsflow-io/newsflow/ingestion"
	"github.com/newsflow-io/newsflow/scoring"
	"github.com/newsflow-io/newsflow/server"
	"github.com/newsflow-io/newsflow/store"
	"github.com/newsflow-io/newsflow/utils/dotenv"
	"github.com/newsflow-io/newsflow/utils/flag"
	. "github.com/newsflow-io/newsflow/utils/log"
)

const shutdownTimeout = 10 * time.Second

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return v
}

func main() {
	flag.Parse()
	InitLogger()

	if err := dotenv.LoadDotEnvs(); err != nil {
		Log.Fatal("fail to load env: ", err)
	}

	st, err := store.GetRedisStore()
	if err != nil {
		Log.Fatal("fail to connect to redis: ", err)
	}

	bus := eventbus.NewBus()
	deduplicator := dedup.NewDeduplicator(
		envInt("DEDUP_WINDOW_SIZE", dedup.DefaultWindowSize),
		envInt("DEDUP_DISTANCE", dedup.DefaultDistance),
	)
	gw := gateway.NewGateway(st)
	relay := scoring.NewRelay(scoring.NewStaticOracle(), bus)

	// Register all subscriptions before ingestion publishes anything.
	relay.Attach(bus)
	bus.Subscribe(eventbus.TopicApprovedPost, gw.HandleApproved)

	go func() {
		router := server.NewRouter(st, bus, gw, deduplicator)
		if err := router.Run(envOr("ADMIN_ADDR", ":9080")); err != nil {
			Log.Error("admin server stopped: ", err)
		}
	}()

	go func() {
		if err := gw.ListenAndServe(envOr("GATEWAY_ADDR", ":8765")); err != nil {
			Log.Fatal("fail to run subscriber gateway: ", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := ingestion.NewClient(
		envOr("UPSTREAM_URI", "ws://localhost:8080"),
		bus,
		deduplicator,
		envInt("UPSTREAM_MAX_ATTEMPTS", 0),
	)
	if err := client.Run(ctx); err != nil && ctx.Err() == nil {
		Log.Fatal("ingestion terminated: ", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := gw.Shutdown(shutdownCtx); err != nil {
		Log.Error("fail to shut down gateway cleanly: ", err)
	}
}
