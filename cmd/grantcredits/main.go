// grantcredits is the operator CLI for topping up a customer account.
//
//	DATABASE_URL=... go run ./cmd/grantcredits -owner <uuid> -amount 100
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/infra"
	"server/internal/ledger"
)

func main() {
	var (
		ownerFlag  string
		amountFlag int64
	)
	flag.StringVar(&ownerFlag, "owner", "", "owner ID to credit (UUID)")
	flag.Int64Var(&amountFlag, "amount", 0, "credits to grant (must be positive)")
	flag.Parse()

	ownerID := strings.TrimSpace(ownerFlag)
	if ownerID == "" {
		exitWithError(errors.New("-owner is required"))
	}
	if _, err := uuid.Parse(ownerID); err != nil {
		exitWithError(fmt.Errorf("-owner must be a UUID: %w", err))
	}
	if amountFlag <= 0 {
		exitWithError(errors.New("-amount must be positive"))
	}

	dbURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if dbURL == "" {
		exitWithError(errors.New("DATABASE_URL is required"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		exitWithError(fmt.Errorf("failed to connect database: %w", err))
	}
	defer pool.Close()

	logger := infra.NewLogger("cli").With().Str("cmd", "grantcredits").Logger()
	runner := infra.NewSQLRunner(pool, logger)

	entryID, err := ledger.New(runner, logger).Grant(ctx, ownerID, amountFlag)
	if err != nil {
		exitWithError(err)
	}
	fmt.Printf("granted %d credits to %s (entry %s)\n", amountFlag, ownerID, entryID)
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
