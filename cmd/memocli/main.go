package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/gaa1973/memo-platform/internal/cli"
	"github.com/gaa1973/memo-platform/internal/client"
	"github.com/gaa1973/memo-platform/internal/config"
	"github.com/gaa1973/memo-platform/internal/logging"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.LoadClient()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	logger := logging.Setup(os.Getenv("MEMOS_LOG_LEVEL"), false)

	api, err := client.New(cfg.APIURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	path, err := cli.DefaultSessionPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := cli.NewApp(api, cli.NewSessionFile(path), os.Stdin, os.Stdout, logger)
	if err := app.Run(ctx, os.Args[1:]); err != nil {
		if err != cli.ErrUsage {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		if errors.Is(err, cli.ErrUsage) {
			return 2
		}
		return 1
	}
	return 0
}
