package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/MuhammadFazattaqwa/reaport-app-sub000/internal/queuestore"
)

// queue_inspect lists the durable submission queue of a stopped agent
// and can drop a single record by id. Run it only while the agent is
// down: badger holds an exclusive lock on the directory.
func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		queuePath = flag.String("queue", "./data/queue", "path to the queue directory")
		dropID    = flag.String("drop", "", "queue record id to delete")
	)
	flag.Parse()

	store, err := queuestore.Open(queuestore.Options{Path: *queuePath}, &logger)
	if err != nil {
		return fmt.Errorf("open queue: %w", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if *dropID != "" {
		if err := store.Delete(ctx, *dropID); err != nil {
			return fmt.Errorf("drop %s: %w", *dropID, err)
		}
		fmt.Printf("dropped %s\n", *dropID)
		return nil
	}

	records, err := store.List(ctx)
	if err != nil {
		return fmt.Errorf("list queue: %w", err)
	}
	if len(records) == 0 {
		fmt.Println("queue is empty")
		return nil
	}
	for _, rec := range records {
		fmt.Printf("%s  kind=%s  attempts=%d  last_status=%d  created=%s  target=%s\n",
			rec.ID, rec.Kind, rec.Attempts, rec.LastStatus,
			rec.CreatedAt.Format(time.RFC3339), rec.TargetURL)
		if rec.LastError != "" {
			fmt.Printf("    last_error: %s\n", rec.LastError)
		}
	}
	fmt.Printf("%d record(s) pending\n", len(records))
	return nil
}
