package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/jwebster45206/infinite-story/internal/services/queue"
	"github.com/jwebster45206/infinite-story/pkg/narrative"
	queuePkg "github.com/jwebster45206/infinite-story/pkg/queue"
)

func main() {
	redisURL := flag.String("redis", "redis://localhost:6379", "Redis URL")
	sessionID := flag.String("session", "", "session id to advance (required)")
	kind := flag.String("type", "keypress", "interaction type: scroll, click, keypress or none")
	key := flag.String("key", "m", "key for keypress interactions")
	amount := flag.Float64("amount", 250, "distance for scroll interactions")
	flag.Parse()

	if *sessionID == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -session <session_id> [-type keypress -key d]\n", os.Args[0])
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	client, err := queue.NewClient(*redisURL, logger)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer client.Close()

	fmt.Println("Connected to Redis successfully!")

	var in *narrative.Interaction
	switch *kind {
	case "none":
	case string(narrative.InteractionScroll):
		in = &narrative.Interaction{Type: narrative.InteractionScroll, Amount: *amount}
	case string(narrative.InteractionClick):
		in = &narrative.Interaction{Type: narrative.InteractionClick, Target: "story"}
	case string(narrative.InteractionKeypress):
		in = &narrative.Interaction{Type: narrative.InteractionKeypress, Key: *key}
	default:
		log.Fatalf("Unknown interaction type %q", *kind)
	}

	ctx := context.Background()
	q := queue.NewInteractionQueue(client)
	req := queuePkg.NewRequest(*sessionID, in)
	if err := q.Enqueue(ctx, req); err != nil {
		log.Fatal("Failed to enqueue request:", err)
	}
	fmt.Printf("Enqueued %s request: %s\n", req.Type, req.RequestID)

	depth, err := q.Depth(ctx)
	if err != nil {
		log.Fatal("Failed to get queue depth:", err)
	}
	fmt.Printf("\nQueue depth: %d requests\n", depth)
	fmt.Println("Now start the worker to see it process these requests!")
	fmt.Println("   Run: go run ./cmd/worker")
}
