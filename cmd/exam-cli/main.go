package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/stemsi/examroom/internal/client"
	"github.com/stemsi/examroom/internal/examcli"
	"github.com/stemsi/examroom/internal/logger"
	"golang.org/x/term"
)

func main() {
	var (
		baseURL  string
		token    string
		code     string
		interval time.Duration
		logLevel string
	)
	flag.StringVar(&baseURL, "url", envOr("EXAMROOM_URL", "http://localhost:8080"), "API base URL")
	flag.StringVar(&token, "token", os.Getenv("EXAMROOM_TOKEN"), "Identity token (prompted when empty)")
	flag.StringVar(&code, "code", "", "Session access code")
	flag.DurationVar(&interval, "autosave", 0, "Autosave interval (default: server setting)")
	flag.StringVar(&logLevel, "log-level", "warn", "Log level")
	flag.Parse()

	log := logger.New(os.Stderr, logLevel, "pretty")

	if code == "" && flag.NArg() > 0 {
		code = flag.Arg(0)
	}
	if strings.TrimSpace(code) == "" {
		fmt.Fprintln(os.Stderr, "Usage: exam-cli [flags] <access-code>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if token == "" {
		fmt.Fprint(os.Stderr, "Token: ")
		raw, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error reading token:", err)
			os.Exit(1)
		}
		token = strings.TrimSpace(string(raw))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	api := client.New(baseURL, token, nil)
	app := examcli.New(api, os.Stdin, os.Stdout, log, examcli.Options{AutosaveInterval: interval})
	if err := app.Run(ctx, code); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
