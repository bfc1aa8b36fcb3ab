package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/chatsense/internal/cli"
	"horse.fit/chatsense/internal/db"
	"horse.fit/chatsense/internal/service"
)

type statsOutput struct {
	Usage   service.UsageStats `json:"usage"`
	History *db.ProviderUsage  `json:"history,omitempty"`
}

func runStats(args []string) int {
	fs := flag.NewFlagSet("stats", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(os.Stderr, "stats does not accept positional arguments")
		return 2
	}

	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, svc, _, err := openService(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer svc.Close()

	out := statsOutput{Usage: svc.UsageStats(ctx)}
	dayStart, dayEnd := utcDayBounds(defaultUTCDay())
	history, err := svc.ProviderUsage(ctx, dayStart, dayEnd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to query provider usage: %v\n", err)
		return 1
	}
	out.History = history

	if outputFormat == outputFormatJSON {
		if err := printJSON(out); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode JSON: %v\n", err)
			return 1
		}
		return 0
	}

	providerRows := make([][]string, 0, len(out.Usage.Providers))
	for _, d := range out.Usage.Providers {
		ops := make([]string, 0, len(d.Operations))
		for _, op := range d.Operations {
			ops = append(ops, string(op))
		}
		providerRows = append(providerRows, []string{
			d.ID,
			strings.Join(ops, ","),
			fmt.Sprintf("%d", d.Priority),
			fmt.Sprintf("%t", d.Available()),
			fmt.Sprintf("%d", d.RateLimit),
			fmt.Sprintf("%d", out.Usage.PerProviderRequestCounts[d.ID]),
		})
	}
	if err := writeTable([]string{"provider", "operations", "priority", "available", "limit/window", "requests"}, providerRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render provider table: %v\n", err)
		return 1
	}

	fmt.Println()
	cacheRows := [][]string{
		{"cache_size", fmt.Sprintf("%d", out.Usage.CacheSize)},
		{"cache_hits", fmt.Sprintf("%d", out.Usage.Cache.Hits)},
		{"cache_misses", fmt.Sprintf("%d", out.Usage.Cache.Misses)},
		{"cache_stale_hits", fmt.Sprintf("%d", out.Usage.Cache.StaleHits)},
		{"cache_evictions", fmt.Sprintf("%d", out.Usage.Cache.Evictions)},
		{"online", fmt.Sprintf("%t", out.Usage.Online)},
	}
	if err := writeTable([]string{"metric", "value"}, cacheRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render cache table: %v\n", err)
		return 1
	}

	if history == nil || len(history.Rows) == 0 {
		return 0
	}
	fmt.Println()
	historyRows := make([][]string, 0, len(history.Rows))
	for _, row := range history.Rows {
		historyRows = append(historyRows, []string{
			row.Operation,
			row.ProviderID,
			fmt.Sprintf("%d", row.Results),
			fmt.Sprintf("%d", row.CacheHits),
			fmt.Sprintf("%d", row.OfflineCount),
			fmt.Sprintf("%.2f", row.AvgConfidence),
		})
	}
	if err := writeTable([]string{"operation", "provider", "results_today", "cache_hits", "offline", "avg_confidence"}, historyRows); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render history table: %v\n", err)
		return 1
	}
	return 0
}
