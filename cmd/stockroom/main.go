// Package main implements the stockroom inventory tracker: an HTTP API over the
// product catalog and stock ledger, plus one-shot backup and report commands.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Printf("application run failed: %v", err)
		os.Exit(1)
	}
}
