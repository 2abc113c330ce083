package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/rpattn/ngoreports/cmd/ngoctl/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.NewRootCommand().Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
