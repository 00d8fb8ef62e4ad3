// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/poiesic/tripkb"
	"github.com/poiesic/tripkb/config"
	"github.com/poiesic/tripkb/ingestion"
	"github.com/poiesic/tripkb/reembed"
	"github.com/poiesic/tripkb/search"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/urfave/cli/v2"
)

// openDatabase is replaced in tests.
var openDatabase = func(cfg *config.Config) (*tripkb.Database, error) {
	return tripkb.Open(cfg.Database, tripkb.WithAIConfig(&cfg.AI), tripkb.WithLogger(slog.Default()))
}

// Search features selectable with --feature.
var features = []string{"topics", "locations", "events", "preferences", "mood", "recommendations"}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "tripkb",
		Usage: "Knowledge base for travel group chats",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the YAML configuration file",
				EnvVars: []string{"TRIPKB_CONFIG"},
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "Register configured groups and import JSON-lines messages (- reads stdin)",
				ArgsUsage: "[file|-]",
				Action:    importCommand,
			},
			{
				Name:   "ingest",
				Usage:  "Extract topics from new messages of every managed group",
				Action: ingestCommand,
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "once",
						Usage: "Run a single pass and exit",
					},
					&cli.DurationFlag{
						Name:  "interval",
						Usage: "Time between passes (overrides ingestion.interval)",
					},
					&cli.StringFlag{
						Name:  "metrics-addr",
						Usage: "Serve Prometheus metrics on this address, e.g. :9090",
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Query the knowledge base of a group",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "group",
						Aliases:  []string{"g"},
						Usage:    "Group whose scope is searched",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "feature",
						Usage: "One of " + strings.Join(features, ", "),
						Value: "topics",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of topics",
						Value: 5,
					},
				},
			},
			{
				Name:   "reembed",
				Usage:  "Recompute every topic vector with the configured embedding model",
				Action: reembedCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of topics to process in each batch (overrides reembed.batch_size)",
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N topics (overrides reembed.report_interval)",
					},
				},
			},
		},
	}
}

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}
	return cfg, nil
}

func importCommand(c *cli.Context) error {
	ctx := c.Context
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	groups, err := cfg.CoreGroups()
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if len(groups) > 0 {
		if err := db.SaveGroups(ctx, groups...); err != nil {
			return fmt.Errorf("saving groups: %w", err)
		}
		fmt.Fprintf(c.App.Writer, "Registered %d groups\n", len(groups))
	}

	name := c.Args().First()
	if name == "" {
		return nil
	}
	var in io.Reader = os.Stdin
	if name != "-" {
		f, err := os.Open(name)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	result, err := db.ImportMessages(ctx, in)
	fmt.Fprintf(c.App.Writer, "Imported %d of %d messages\n", result.Stored, result.Read)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	return nil
}

func ingestCommand(c *cli.Context) error {
	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	watermark, err := cfg.Ingestion.WatermarkPolicy()
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	opts := []ingestion.Option{
		ingestion.WithPoolSize(cfg.Ingestion.PoolSize),
		ingestion.WithBotID(cfg.BotID),
		ingestion.WithChunking(cfg.Ingestion.ChunkingOptions()),
		ingestion.WithRetryPolicy(cfg.Ingestion.RetryPolicy()),
		ingestion.WithWatermarkPolicy(watermark),
	}
	if addr := c.String("metrics-addr"); addr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		opts = append(opts, ingestion.WithRegisterer(reg))
		serveMetrics(ctx, addr, reg)
	}

	scheduler, err := db.NewScheduler(opts...)
	if err != nil {
		return err
	}
	defer scheduler.Release()

	if c.Bool("once") {
		report, err := scheduler.RunOnce(ctx)
		printReport(c.App.Writer, report)
		return err
	}

	interval := cfg.Ingestion.Interval
	if c.IsSet("interval") {
		interval = c.Duration("interval")
	}
	err = scheduler.Run(ctx, interval)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()
	go func() {
		slog.Info("serving metrics", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server stopped", "err", err)
		}
	}()
}

func printReport(w io.Writer, report *ingestion.RunReport) {
	if report == nil {
		return
	}
	fmt.Fprintf(w, "Run %s: %d groups in %v\n", report.RunID, len(report.Groups), report.Duration.Round(time.Millisecond))
	for _, g := range report.Groups {
		fmt.Fprintf(w, "  %s: %d messages, %d chunks, %d topics\n", g.GroupID, g.Messages, g.Chunks, g.Topics)
	}
}

func searchCommand(c *cli.Context) error {
	ctx := c.Context
	feature := c.String("feature")
	query := strings.Join(c.Args().Slice(), " ")
	if query == "" && feature != "mood" {
		return fmt.Errorf("a query is required for feature %q", feature)
	}

	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	retriever, err := db.NewRetriever()
	if err != nil {
		return err
	}
	scope, err := retriever.ScopeFor(ctx, c.String("group"))
	if err != nil {
		return err
	}

	w := c.App.Writer
	switch feature {
	case "topics":
		matches, err := retriever.SearchText(ctx, query, scope, nil, c.Int("limit"))
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "Found %d topics\n", len(matches))
		for i, m := range matches {
			fmt.Fprintf(w, "%d: %s [%0.3f] %s\n", i, m.Record.Subject, m.Distance, m.Record.Summary)
		}
	case "locations":
		hits, err := retriever.Locations(ctx, query, scope)
		if err != nil {
			return err
		}
		for _, h := range hits {
			fmt.Fprintf(w, "%s (%s, %s)\n", h.Name, h.Type, h.Context)
		}
	case "events":
		hits, err := retriever.Events(ctx, query, scope)
		if err != nil {
			return err
		}
		for _, h := range hits {
			fmt.Fprintf(w, "%s %s %s (%s)\n", deref(h.Date), deref(h.Time), h.Title, h.Context)
		}
	case "preferences":
		hits, err := retriever.Preferences(ctx, query, scope)
		if err != nil {
			return err
		}
		printPreferences(w, hits)
	case "mood":
		mood, err := retriever.GroupMood(ctx, scope)
		if err != nil {
			return err
		}
		printMood(w, mood)
	case "recommendations":
		rec, err := retriever.Recommendations(ctx, query, scope)
		if err != nil {
			return err
		}
		if rec.Trip.Destination != "" {
			fmt.Fprintf(w, "Trip: %s %s\n", rec.Trip.Destination, tripDates(rec.Trip))
		}
		printPreferences(w, rec.Preferences)
		for _, h := range rec.Locations {
			fmt.Fprintf(w, "Place: %s (%s, %s)\n", h.Name, h.Type, h.Context)
		}
	default:
		return fmt.Errorf("unknown feature %q: must be one of %s", feature, strings.Join(features, ", "))
	}
	return nil
}

func printPreferences(w io.Writer, hits []search.PreferenceHit) {
	for _, h := range hits {
		fmt.Fprintf(w, "%s %s %s: %s\n", h.MentionedBy, h.Sentiment, h.Category, h.Preference)
	}
}

func printMood(w io.Writer, mood *search.Mood) {
	fmt.Fprintf(w, "Topics: %d\n", len(mood.Topics))
	fmt.Fprintf(w, "Excitement %.2f, concern %.2f, agreement %.2f\n", mood.AvgExcitement, mood.AvgConcern, mood.AvgAgreement)
	if len(mood.TopEmotions) > 0 {
		fmt.Fprintf(w, "Emotions: %s\n", strings.Join(mood.TopEmotions, ", "))
	}
	if mood.Nudge != nil {
		fmt.Fprintf(w, "Nudge: %s about %q\n", mood.Nudge.Kind, mood.Nudge.Subject)
	}
}

func tripDates(trip search.TripContext) string {
	if trip.Start.IsZero() {
		return ""
	}
	return trip.Start.UTC().Format(config.DateLayout) + " to " + trip.End.UTC().Format(config.DateLayout)
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func reembedCommand(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	rc := reembed.DefaultConfig()
	rc.BatchSize = cfg.Reembed.BatchSize
	rc.ReportInterval = cfg.Reembed.ReportInterval
	rc.Retry = cfg.Ingestion.RetryPolicy()
	if c.IsSet("batch-size") {
		rc.BatchSize = c.Int("batch-size")
	}
	if c.IsSet("report-interval") {
		rc.ReportInterval = c.Int("report-interval")
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	reembedder, err := db.NewReembedder(rc, c.App.ErrWriter)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.ErrWriter, "Database: %s\n", cfg.Database)
	fmt.Fprintf(c.App.ErrWriter, "Embedding host: %s\n", cfg.AI.EmbeddingHost)
	fmt.Fprintf(c.App.ErrWriter, "Embedding model: %s\n", cfg.AI.EmbeddingModel)
	fmt.Fprintln(c.App.ErrWriter)

	report, err := reembedder.Run(c.Context)
	if err != nil {
		return fmt.Errorf("reembedding failed: %w", err)
	}
	fmt.Fprintf(c.App.Writer, "Re-embedded %d topics in %v\n", report.Topics, report.Duration.Round(time.Millisecond))
	return nil
}

func setupLogger(c *cli.Context) error {
	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return nil
}
