package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"rollcall/internal/config"
	"rollcall/internal/ledger"
	"rollcall/internal/queue"
	"rollcall/internal/store"
)

// Worker consumes queued attendance records and appends them to the Postgres
// ledger, keeping the submit path free of database latency.
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

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(256)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "rollcall:records")
	}

	repo := ledger.NewRepository(db.Client)

	messages, err := q.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for records...")
	for msg := range messages {
		if msg.Type != queue.TypeRecord {
			continue
		}

		var rec ledger.Record
		if err := json.Unmarshal(msg.Body, &rec); err != nil {
			log.Printf("bad record payload: %v", err)
			continue
		}

		if _, err := repo.Insert(ctx, rec); err != nil {
			log.Printf("insert record for student %s failed: %v", rec.StudentID, err)
			continue
		}
		log.Printf("recorded %s for student %s (accepted=%v reason=%s)", rec.ID, rec.StudentID, rec.Accepted, rec.Reason)
	}

	log.Println("worker stopped")
}
