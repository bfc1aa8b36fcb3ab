package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"horse.fit/chatsense/internal/analysis"
	"horse.fit/chatsense/internal/cli"
	"horse.fit/chatsense/internal/config"
	"horse.fit/chatsense/internal/globaltime"
	"horse.fit/chatsense/internal/logging"
	"horse.fit/chatsense/internal/service"
)

const (
	outputFormatTable = "table"
	outputFormatJSON  = "json"
)

func defaultUTCDay() time.Time {
	now := globaltime.System.Now().UTC()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}

func utcDayBounds(day time.Time) (time.Time, time.Time) {
	start := time.Date(day.UTC().Year(), day.UTC().Month(), day.UTC().Day(), 0, 0, 0, 0, time.UTC)
	return start, start.Add(24 * time.Hour)
}

func parseOutputFormat(raw, defaultFormat string) (string, error) {
	format := strings.TrimSpace(strings.ToLower(raw))
	if format == "" {
		format = strings.TrimSpace(strings.ToLower(defaultFormat))
	}
	switch format {
	case outputFormatTable, outputFormatJSON:
		return format, nil
	default:
		return "", fmt.Errorf("--format must be table or json")
	}
}

func printJSON(value any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

func writeTable(headers []string, rows [][]string) error {
	writer := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	if _, err := fmt.Fprintln(writer, strings.Join(headers, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(writer, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return writer.Flush()
}

// loadRuntime loads the env file, config and logger shared by every command.
func loadRuntime(envLoader *cli.EnvLoader) (*config.Config, zerolog.Logger, error) {
	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to load config: %w", err)
	}
	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

// openService loads the runtime and opens the analysis service. The returned
// context carries the command timeout.
func openService(timeout time.Duration, envLoader *cli.EnvLoader) (context.Context, context.CancelFunc, *service.Service, zerolog.Logger, error) {
	cfg, logger, err := loadRuntime(envLoader)
	if err != nil {
		return nil, nil, nil, logger, err
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	svc, err := service.Open(ctx, cfg, logger)
	if err != nil {
		cancel()
		return nil, nil, nil, logger, fmt.Errorf("failed to open analysis service: %w", err)
	}
	return ctx, cancel, svc, logger, nil
}

func resultRows(result analysis.Result) [][]string {
	rows := [][]string{
		{"provider", result.ProviderID},
		{"confidence", fmt.Sprintf("%.2f", result.Confidence)},
		{"from_cache", fmt.Sprintf("%t", result.FromCache)},
		{"offline", fmt.Sprintf("%t", result.Offline)},
	}
	if len(result.Warnings) > 0 {
		rows = append(rows, []string{"warnings", strings.Join(result.Warnings, ", ")})
	}
	for _, attempt := range result.Attempts {
		rows = append(rows, []string{"attempt", fmt.Sprintf("%s %s", attempt.ProviderID, attempt.Outcome)})
	}
	return rows
}

func printResult(result analysis.Result, format string, extra [][]string) error {
	if format == outputFormatJSON {
		return printJSON(result)
	}
	return writeTable([]string{"field", "value"}, append(extra, resultRows(result)...))
}
