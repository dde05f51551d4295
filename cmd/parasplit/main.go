package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/outofforest/logger"
)

func main() {
	ctx, cancel := signal.NotifyContext(logger.WithLogger(context.Background(), logger.New(logger.DefaultConfig)), os.Interrupt)
	defer cancel()

	Execute(ctx)
}
