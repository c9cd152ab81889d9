package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"deduction-matching-service/cmd/matcher/cmd"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, date)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cmd.Execute(ctx, nil)
	stop()

	os.Exit(code)
}
