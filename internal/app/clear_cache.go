package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/chatsense/internal/cli"
)

func runClearCache(args []string) int {
	fs := flag.NewFlagSet("clear-cache", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "clear-cache does not accept positional arguments")
		return 2
	}

	ctx, cancel, svc, logger, err := openService(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer svc.Close()

	removed, err := svc.ClearCache(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("clear cache failed")
		fmt.Fprintf(os.Stderr, "Failed to clear cache: %v\n", err)
		return 1
	}
	fmt.Printf("Removed %d cached results\n", removed)
	return 0
}
