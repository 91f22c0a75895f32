package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"study-buddy/cmd/studybuddy/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := commands.NewRootCommand().Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}
