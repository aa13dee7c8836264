package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"permitdesk.org/internal/httpapi"
	"permitdesk.org/internal/notify"
	"permitdesk.org/internal/obs"
	"permitdesk.org/internal/store"
	"permitdesk.org/internal/store/pg"
	"permitdesk.org/internal/stream"
	"permitdesk.org/internal/workflow"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	// Stores: Postgres when a DSN is configured, in-memory otherwise.
	var (
		workflowStore workflow.Store
		notifyStore   notify.Store
		probe         httpapi.ReadyProbe
	)
	if dsn := os.Getenv("PERMITDESK_PG_DSN"); dsn != "" {
		pgStore, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer pgStore.Close()
		workflowStore = pgStore
		notifyStore = pgStore
		probe = httpapi.ReadyProbe{DB: pgStore.DB()}
	} else {
		mem := store.NewMemory()
		workflowStore = mem
		notifyStore = mem
		log.Print("PERMITDESK_PG_DSN not set, using in-memory store")
	}

	// Local broker always; Redis fan-out across replicas when configured.
	// The relay feeds other replicas' events into this broker; our own
	// publishes round-trip through Redis as duplicates, which SSE clients
	// drop by notification id.
	broker := stream.New()
	publishers := []notify.Publisher{broker}
	if addr := os.Getenv("PERMITDESK_REDIS_ADDR"); addr != "" {
		client := redis.NewClient(&redis.Options{Addr: addr})
		defer client.Close()
		redisPub := stream.NewRedisPublisher(client)
		publishers = append(publishers, redisPub)

		relayCtx, stopRelay := context.WithCancel(context.Background())
		defer stopRelay()
		go redisPub.Relay(relayCtx, broker)
	}

	notifySvc := notify.NewService(notifyStore, notify.WithPublisher(notify.MultiPublisher(publishers...)))
	workflowSvc := workflow.NewService(workflowStore, workflow.WithSink(workflow.SinkFunc(
		func(ctx context.Context, event workflow.TransitionEvent) error {
			_, err := notifySvc.OnTransition(ctx, event)
			return err
		})))

	api := httpapi.New(probe, version, workflowSvc, notifySvc, broker)

	addr := os.Getenv("PERMITDESK_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting permitdesk-api %s on %s", version, srv.Addr)
	obs.SetReady(true)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")
	obs.SetReady(false)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}
