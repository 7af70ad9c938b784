// Package main provides a connectivity probe for the configured SIEM
// webhook. It sends one test event and reports whether the sink
// accepted it.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"custodia/internal/audit"
	"custodia/internal/siem"
)

func main() {
	url := flag.String("url", os.Getenv("SIEM_WEBHOOK_URL"), "SIEM webhook URL")
	apiKey := flag.String("api-key", os.Getenv("SIEM_API_KEY"), "SIEM API key")
	timeout := flag.Duration("timeout", 10*time.Second, "Request timeout")
	flag.Parse()

	if *url == "" {
		fmt.Fprintln(os.Stderr, "no SIEM webhook configured: set SIEM_WEBHOOK_URL or pass -url")
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	forwarder := siem.NewForwarder(siem.Config{
		URL:     *url,
		APIKey:  *apiKey,
		Timeout: *timeout,
	}, audit.NewInMemoryStore(), siem.WithLogger(logger))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	accepted := forwarder.Forward(ctx, siem.Event{
		EventType: siem.EventSecurityAnomaly,
		Severity:  "info",
		Fields: map[string]any{
			"action":  "siem_probe",
			"details": "connectivity test event",
		},
	})
	if !accepted {
		fmt.Println("probe event was NOT accepted by the sink")
		os.Exit(1)
	}
	fmt.Println("probe event accepted")
}
