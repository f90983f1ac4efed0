package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"classtrack/internal/config"
	"classtrack/internal/queue"
	"classtrack/internal/store"
	"classtrack/internal/tally"
)

// Worker consumes attendance events and keeps the live per-session tallies
// the instructor dashboard polls.
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	redisClient := store.NewRedis(cfg.RedisAddr)
	defer redisClient.Close()

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "classtrack:events")
	}

	tallies := tally.New(redisClient.Client)

	events, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for events...")
	for evt := range events {
		if err := tallies.Record(ctx, evt); err != nil {
			log.Printf("tally %s for session %s failed: %v", evt.Type, evt.SessionID, err)
			continue
		}
		log.Printf("recorded %s for session %s student %s", evt.Type, evt.SessionID, evt.StudentID)
	}

	log.Println("worker stopped")
}
