package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"horse.fit/chatsense/internal/cli"
)

func runHealth(args []string) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Second, "Store and connectivity check timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	ctx, cancel, svc, logger, err := openService(*timeout, envLoader)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer cancel()
	defer svc.Close()

	usage := svc.UsageStats(ctx)
	logger.Info().
		Bool("online", usage.Online).
		Strs("translate_providers", usage.AvailableProviders["translate"]).
		Strs("emotion_providers", usage.AvailableProviders["emotion"]).
		Msg("health check passed")

	fmt.Printf("ok online=%t translate=%d emotion=%d\n",
		usage.Online,
		len(usage.AvailableProviders["translate"]),
		len(usage.AvailableProviders["emotion"]),
	)
	return 0
}
