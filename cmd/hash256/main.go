package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/pflag"

	"github.com/eargollo/hash256/internal/api"
	"github.com/eargollo/hash256/internal/api/handlers"
	"github.com/eargollo/hash256/internal/config"
	"github.com/eargollo/hash256/internal/db"
	"github.com/eargollo/hash256/internal/hash"
	"github.com/eargollo/hash256/internal/history"
	"github.com/eargollo/hash256/internal/scheduler"
	"github.com/eargollo/hash256/internal/session"
	"github.com/eargollo/hash256/internal/worker"
)

// Injected at build time via -ldflags; defaults to "dev".
var version = "dev"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	var configPath string
	var showVersion bool

	flagSet := pflag.NewFlagSet("hash256", pflag.ContinueOnError)
	flagSet.StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")
	flagSet.BoolVar(&showVersion, "version", false, "print version and exit")
	flagSet.Usage = func() { printHelp(flagSet) }

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Printf("%s %s\n", session.AppName, version)
		return nil
	}

	// ── Logging (initial, overridden below once config is loaded) ─────────
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	// ── Config ─────────────────────────────────────────────────────────────
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rest := flagSet.Args()
	cmd := "serve"
	if len(rest) > 0 {
		cmd, rest = rest[0], rest[1:]
	}
	switch cmd {
	case "serve":
		if len(rest) > 0 {
			return fmt.Errorf("unexpected argument: %s", rest[0])
		}
		setLogLevel(parseLogLevel(cfg.LogLevel))
		return serve(ctx, cfg)
	case "sum":
		if len(rest) == 0 {
			return errors.New("sum: at least one FILE is required")
		}
		// Per-run info lines would interleave with the progress line.
		level := parseLogLevel(cfg.LogLevel)
		if level < slog.LevelWarn && level != slog.LevelDebug {
			level = slog.LevelWarn
		}
		setLogLevel(level)
		return sum(ctx, cfg, rest, os.Stdout, os.Stderr)
	default:
		return fmt.Errorf("unknown command %q (want serve or sum)", cmd)
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	slog.Info("hash256 starting",
		"version", version,
		"log_level", cfg.LogLevel,
		"http_addr", cfg.HTTPAddr,
		"db_path", cfg.DBPath)

	poll, err := cfg.PollDuration()
	if err != nil {
		return err
	}

	// ── History ────────────────────────────────────────────────────────────
	var (
		database *sql.DB
		recorder session.Recorder
		sched    *scheduler.Scheduler
	)
	if cfg.HistoryEnabled() {
		database, err = openHistory(cfg.DBPath)
		if err != nil {
			return err
		}
		defer database.Close()

		writer := history.NewWriter(database)
		defer writer.Close()
		recorder = writer

		// ── Scheduler ──────────────────────────────────────────────────────
		sched = scheduler.New()
		retention := cfg.RetentionDays()
		if err := sched.Every(handlers.PurgeJob, cfg.PurgeSchedule, func() {
			slog.Info("history purge triggered")
			if _, err := history.Purge(context.Background(), database, retention); err != nil {
				slog.Error("history purge failed", "error", err)
			}
		}); err != nil {
			slog.Warn("invalid cron expression", "expr", cfg.PurgeSchedule, "error", err)
		}
		sched.Start()
		defer sched.Stop()
	} else {
		slog.Info("run history disabled")
	}

	// ── Control loop ───────────────────────────────────────────────────────
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	loop := session.New(session.Config{
		PollInterval: poll,
		Uppercase:    cfg.Uppercase,
		AutoHash:     *cfg.AutoHash,
		ReadLimit:    cfg.ReadLimit,
		Version:      version,
	}, recorder)
	loopDone := make(chan struct{})
	go func() {
		defer close(loopDone)
		if err := loop.Run(ctx); err != nil {
			slog.Error("control loop", "error", err)
		}
	}()

	// ── HTTP server ────────────────────────────────────────────────────────
	srv := api.New(cfg.HTTPAddr, cfg, loop, database, sched, version)
	err = srv.Run(ctx)
	cancel()
	<-loopDone
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}
	slog.Info("hash256 stopped")
	return nil
}

func openHistory(path string) (*sql.DB, error) {
	database, err := db.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.RunMigrations(context.Background(), database); err != nil {
		database.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return database, nil
}

// sum hashes each file in turn and prints one line per success. An
// interrupt cancels the active run and stops.
func sum(ctx context.Context, cfg *config.Config, paths []string, stdout, stderr io.Writer) error {
	var recorder session.Recorder
	if cfg.HistoryEnabled() {
		database, err := openHistory(cfg.DBPath)
		if err != nil {
			return err
		}
		defer database.Close()
		writer := history.NewWriter(database)
		defer writer.Close()
		recorder = writer
	}

	d := worker.NewDispatcher(ctx, nil, worker.Config{ReadLimit: cfg.ReadLimit})
	failed := 0
	for _, p := range paths {
		r := d.Start(p)
		out := waitWithProgress(r, stderr)
		if recorder != nil {
			recorder.Record(r.Token(), p, out)
		}

		switch out.Status {
		case worker.StatusSucceeded:
			hex := out.Result.Hex
			if cfg.Uppercase {
				hex = strings.ToUpper(hex)
			}
			fmt.Fprintf(stdout, "%s  %s  %s\n", hex, out.Result.Base64, p)
		case worker.StatusCancelled:
			return fmt.Errorf("%s: %w", p, hash.ErrCancelled)
		default:
			fmt.Fprintf(stderr, "%s: %s\n", p, out.Message())
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(paths))
	}
	return nil
}

// waitWithProgress redraws a progress line on w until r finishes.
func waitWithProgress(r *worker.Run, w io.Writer) worker.Outcome {
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()
	drawn := false
	for {
		select {
		case <-r.Done():
			if drawn {
				fmt.Fprint(w, "\r\033[K")
			}
			out, _ := r.Outcome()
			return out
		case <-ticker.C:
			fmt.Fprintf(w, "\r\033[K%s", formatProgress(r.Path(), r.Progress(), time.Since(r.StartedAt())))
			drawn = true
		}
	}
}

// formatProgress renders "path  1.0 MiB / 4.0 MiB  25%  2.0 MiB/s".
func formatProgress(path string, p hash.ProgressSnapshot, elapsed time.Duration) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s", path, humanize.IBytes(p.Processed))
	if pct, ok := p.Percent(); ok {
		fmt.Fprintf(&b, " / %s  %.0f%%", humanize.IBytes(p.Total), pct)
	}
	if secs := elapsed.Seconds(); secs > 0 {
		fmt.Fprintf(&b, "  %s/s", humanize.IBytes(uint64(float64(p.Processed)/secs)))
	}
	return b.String()
}

func setLogLevel(level slog.Level) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

// parseLogLevel converts a config string ("debug", "info", "warn", "error")
// to its slog.Level equivalent. Unknown values default to Info.
func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `hash256 computes SHA-256 digests of files in the background.

Usage:
  hash256 [flags] [serve]      run the HTTP control surface
  hash256 [flags] sum FILE...  hash files and print HEX  BASE64  PATH

Flags:
%s`, flagSet.FlagUsages())
}
