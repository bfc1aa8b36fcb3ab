package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/chatsense/internal/cli"
	"horse.fit/chatsense/internal/language"
	"horse.fit/chatsense/internal/service"
)

func runTranslate(args []string) int {
	fs := flag.NewFlagSet("translate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	from := fs.String("from", "", "Source language (ISO 639-1); detected when empty")
	to := fs.String("to", "", "Target language (ISO 639-1, for example: en, fr)")
	force := fs.Bool("force", false, "Skip the cache and ask the providers again")
	providerTimeout := fs.Duration("provider-timeout", 0, "Per-provider timeout (default PROVIDER_TIMEOUT)")
	threshold := fs.Float64("threshold", 0, "Confidence threshold override in (0, 1]")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "translate requires the text to translate")
		return 2
	}
	text := strings.Join(fs.Args(), " ")

	target := language.NormalizeCode(*to)
	if target == "" {
		fmt.Fprintln(os.Stderr, "--to is required and must be a valid language code")
		return 2
	}
	if *threshold < 0 || *threshold > 1 {
		fmt.Fprintln(os.Stderr, "--threshold must be within [0, 1]")
		return 2
	}
	outputFormat, err := parseOutputFormat(*format, outputFormatTable)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid format: %v\n", err)
		return 2
	}

	ctx, cancel, svc, logger, err := openService(*timeout, envLoader)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer cancel()
	defer svc.Close()

	result, err := svc.AnalyzeTranslation(ctx, text, *from, target, service.RequestOptions{
		ForceRefresh:        *force,
		Timeout:             *providerTimeout,
		ConfidenceThreshold: *threshold,
	})
	if err != nil {
		logger.Error().Err(err).Msg("translate failed")
		fmt.Fprintf(os.Stderr, "Translation failed: %v\n", err)
		return 1
	}

	if err := printResult(result, outputFormat, [][]string{{"text", result.Text()}}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to print result: %v\n", err)
		return 1
	}
	return 0
}
