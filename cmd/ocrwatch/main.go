// Package main implements ocrwatch, a command-line client that submits PDFs
// to an OCR service and follows the resulting task until it succeeds, fails
// or polling is abandoned.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// main is the entry point for ocrwatch. All of the work happens in run so
// that tests can drive the command without exiting the process.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
