package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/AnishMulay/capfs/internal/file_service"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "capfs: %v\n", err)
		if errors.Is(err, file_service.ErrBackendUnavailable) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
