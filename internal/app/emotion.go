package app

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"horse.fit/chatsense/internal/analysis"
	"horse.fit/chatsense/internal/cli"
	"horse.fit/chatsense/internal/service"
)

func runEmotion(args []string) int {
	fs := flag.NewFlagSet("emotion", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 30*time.Second, "Command timeout")
	lang := fs.String("lang", "", "Message language (ISO 639-1); detected when empty")
	subject := fs.String("subject", "cli", "Conversation or message identifier")
	culture := fs.String("culture", "", "Cultural context hint passed to providers")
	force := fs.Bool("force", false, "Skip the cache and ask the providers again")
	format := fs.String("format", outputFormatTable, "Output format: table or json")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "emotion requires the text to analyze")
		return 2
	}
	text := strings.Join(fs.Args(), " ")

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

	result, err := svc.AnalyzeEmotion(ctx, text, *subject, service.RequestOptions{
		ForceRefresh:    *force,
		Language:        *lang,
		CulturalContext: *culture,
	})
	if err != nil {
		logger.Error().Err(err).Msg("emotion analysis failed")
		fmt.Fprintf(os.Stderr, "Emotion analysis failed: %v\n", err)
		return 1
	}

	if err := printResult(result, outputFormat, emotionRows(result.Emotion)); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to print result: %v\n", err)
		return 1
	}
	return 0
}

func emotionRows(payload *analysis.EmotionPayload) [][]string {
	if payload == nil {
		return nil
	}
	rows := [][]string{
		{"dominant", string(payload.Dominant)},
		{"sentiment", fmt.Sprintf("%s (%.2f)", payload.Sentiment.Polarity, payload.Sentiment.Score)},
		{"intensity", fmt.Sprintf("%.2f", payload.Intensity)},
	}
	for _, emotion := range analysis.RankedEmotions(payload.Distribution) {
		rows = append(rows, []string{string(emotion), fmt.Sprintf("%.2f", payload.Distribution[emotion])})
	}
	return rows
}
