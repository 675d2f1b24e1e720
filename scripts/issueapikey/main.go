// issueapikey mints a managed API key for a source_user, for operators to
// hand to a caller that should authenticate with a long-lived credential
// instead of a directly-issued JWT.
//
// Usage (run from the repo root):
//
//	go run scripts/issueapikey/main.go -source-user alice
//
// Connects to the database using the same PLTM_DATABASE_URL env var pltmd
// reads, prints the raw key exactly once, and exits. The key's hash is
// persisted; the raw secret is not recoverable afterward.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pltm/engine/internal/auth"
	"github.com/pltm/engine/internal/config"
	"github.com/pltm/engine/internal/storage"
)

func main() {
	sourceUser := flag.String("source-user", "", "source_user the key authenticates as (required)")
	flag.Parse()

	if *sourceUser == "" {
		fmt.Fprintln(os.Stderr, "error: -source-user is required")
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: load config: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := storage.New(ctx, cfg.DatabaseURL, cfg.NotifyURL, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: connect to database: %v\n", err)
		os.Exit(1)
	}
	defer db.Close(ctx)

	raw, id, err := auth.MintAPIKey(ctx, db, *sourceUser)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: mint api key: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("api key id: %s\n", id)
	fmt.Printf("raw key (save this, it will not be shown again):\n%s\n", raw)
}
