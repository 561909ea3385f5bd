// Command gateway is the bastion entry point. It runs the HTTP gateway,
// scans prompts locally or against a remote gateway, replays transcripts
// into session analyses, and exports stored sessions.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/HoldfastAI/bastion/pkg/config"
	"github.com/HoldfastAI/bastion/pkg/convio"
	"github.com/HoldfastAI/bastion/pkg/httputil"
	"github.com/HoldfastAI/bastion/pkg/patterns"
	"github.com/HoldfastAI/bastion/pkg/remote"
	"github.com/HoldfastAI/bastion/pkg/report"
	"github.com/HoldfastAI/bastion/pkg/scan"
	"github.com/HoldfastAI/bastion/pkg/telemetry"
)

const Version = "1.0.0"

var (
	flagConfig  string
	flagProfile string
)

func main() {
	root := &cobra.Command{
		Use:           "bastion",
		Short:         "Multi-turn threat detection for LLM conversations",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a YAML config file")
	root.PersistentFlags().StringVar(&flagProfile, "profile", "default", "config profile: default, high-security, high-usability")

	root.AddCommand(newServeCmd(), newScanCmd(), newAnalyzeCmd(), newExportCmd(), newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Profile(flagProfile)
	if err != nil {
		return nil, err
	}
	if flagConfig != "" {
		if err := cfg.LoadFile(flagConfig); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func buildCatalog(cfg *config.Config) (*patterns.Catalog, error) {
	var opts []patterns.Option
	if cfg.SeedDir != "" {
		opts = append(opts, patterns.WithSeedDir(cfg.SeedDir))
	}
	return patterns.NewCatalog(opts...)
}

func buildEngine(cfg *config.Config, log zerolog.Logger) (*scan.Engine, error) {
	catalog, err := buildCatalog(cfg)
	if err != nil {
		return nil, err
	}
	return scan.NewEngine(catalog, scan.WithLogger(log))
}

// openStore picks the session store backend from config. The returned
// cleanup releases backend resources not owned by the store itself.
func openStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (scan.SessionStore, func(), error) {
	switch cfg.StoreBackend {
	case config.StoreMemory:
		store := scan.NewMemoryStore(scan.WithMaxAge(2 * cfg.SessionTimeout))
		return store, func() {}, nil

	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("redis ping %s: %w", cfg.RedisAddr, err)
		}
		log.Info().Str("addr", cfg.RedisAddr).Msg("session store: redis")
		store := scan.NewRedisSessionStore(client, scan.WithRedisTTL(cfg.RedisTTL))
		return store, func() {}, nil

	case config.StorePostgres:
		pool, err := pgxpool.New(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connect: %w", err)
		}
		store := scan.NewPostgresSessionStore(pool)
		if err := store.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres schema: %w", err)
		}
		log.Info().Msg("session store: postgres")
		return store, pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func chainOrderPolicy(cfg *config.Config) scan.ChainOrderPolicy {
	if cfg.ChainOrder == config.ChainOrderStrict {
		return scan.ChainOrderStrict
	}
	return scan.ChainOrderAny
}

// ============================================================================
// serve
// ============================================================================

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := telemetry.NewLogger(cfg.LogLevel, cfg.LogJSON)

			engine, err := buildEngine(cfg, log)
			if err != nil {
				return err
			}
			store, cleanup, err := openStore(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer cleanup()

			mgr, err := scan.NewManager(engine,
				scan.WithStore(store),
				scan.WithManagerLogger(log),
				scan.WithSessionDefaults(cfg.SessionTimeout, cfg.SessionMaxTurns),
				scan.WithManagerChainOrder(chainOrderPolicy(cfg)),
			)
			if err != nil {
				return err
			}
			defer mgr.Close()

			app := newApp(cfg, engine, mgr)

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.ListenAddr).Msg("gateway listening")
				errCh <- app.Listen(cfg.ListenAddr)
			}()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

			select {
			case err := <-errCh:
				return err
			case s := <-sig:
				log.Info().Str("signal", s.String()).Msg("shutting down")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return app.ShutdownWithContext(shutdownCtx)
			}
		},
	}
}

func newApp(cfg *config.Config, engine *scan.Engine, mgr *scan.Manager) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "bastion",
		BodyLimit: cfg.MaxScanBytes + 4096,
	})

	app.Get("/healthz", func(c fiber.Ctx) error {
		return c.JSON(remote.HealthResponse{Status: "ok", Version: Version})
	})

	app.Post("/scan", func(c fiber.Ctx) error {
		var req remote.ScanRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(remote.ErrorResponse{Error: "invalid request body"})
		}
		if req.Text == "" {
			return c.Status(fiber.StatusBadRequest).JSON(remote.ErrorResponse{Error: "text field is required"})
		}
		if len(req.Text) > cfg.MaxScanBytes {
			return c.Status(fiber.StatusBadRequest).JSON(remote.ErrorResponse{Error: "text too large"})
		}
		var declared patterns.ContextType
		if req.Context != "" {
			declared = patterns.ParseContextType(req.Context)
		}
		return c.JSON(engine.Scan(req.Text, declared))
	})

	app.Get("/sessions", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{"sessions": mgr.ActiveSessions()})
	})

	app.Post("/sessions", func(c fiber.Ctx) error {
		id, err := mgr.StartSession(c.Context(), cfg.SessionTimeout, cfg.SessionMaxTurns)
		if err != nil {
			return sessionError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(remote.StartSessionResponse{SessionID: id})
	})

	app.Post("/sessions/:id/turns", func(c fiber.Ctx) error {
		var req remote.TurnRequest
		if err := c.Bind().Body(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(remote.ErrorResponse{Error: "invalid request body"})
		}
		if len(req.Prompt) > cfg.MaxScanBytes {
			return c.Status(fiber.StatusBadRequest).JSON(remote.ErrorResponse{Error: "prompt too large"})
		}
		result, err := mgr.AddTurn(c.Context(), c.Params("id"), req.Prompt, req.Response)
		if err != nil {
			return sessionError(c, err)
		}
		return c.JSON(result)
	})

	app.Get("/sessions/:id/analysis", func(c fiber.Ctx) error {
		analysis, err := mgr.AnalyzeSession(c.Context(), c.Params("id"))
		if err != nil {
			return sessionError(c, err)
		}
		return c.JSON(analysis)
	})

	app.Delete("/sessions/:id", func(c fiber.Ctx) error {
		// Deleting an already-ended session is still a success.
		if _, err := mgr.EndSession(c.Context(), c.Params("id")); err != nil {
			return sessionError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	return app
}

func sessionError(c fiber.Ctx, err error) error {
	if scan.IsNotFound(err) {
		return c.Status(fiber.StatusNotFound).JSON(remote.ErrorResponse{Error: err.Error()})
	}
	if _, rejected := scan.IsSessionRejected(err); rejected {
		return c.Status(fiber.StatusConflict).JSON(remote.ErrorResponse{Error: err.Error()})
	}
	var verr *scan.ValidationError
	if errors.As(err, &verr) {
		return c.Status(fiber.StatusBadRequest).JSON(remote.ErrorResponse{Error: err.Error()})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(remote.ErrorResponse{Error: err.Error()})
}

// ============================================================================
// scan
// ============================================================================

func newScanCmd() *cobra.Command {
	var (
		flagRemote      string
		flagFile        string
		flagContext     string
		flagFormat      string
		flagConcurrency int
	)

	cmd := &cobra.Command{
		Use:   "scan [text...]",
		Short: "Scan text for threats, locally or against a gateway",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			format := report.ParseFormat(flagFormat)

			if flagFile != "" {
				return runBatchScan(cmd.Context(), cfg, flagRemote, flagFile, flagConcurrency)
			}
			if len(args) == 0 {
				return fmt.Errorf("provide text to scan or --file")
			}
			text := strings.Join(args, " ")

			var score *scan.ThreatScore
			if flagRemote != "" {
				client := remote.New(flagRemote)
				score, err = client.Scan(cmd.Context(), text, flagContext)
				if err != nil {
					return err
				}
			} else {
				log := telemetry.NewLogger(cfg.LogLevel, cfg.LogJSON)
				engine, err := buildEngine(cfg, log)
				if err != nil {
					return err
				}
				var declared patterns.ContextType
				if flagContext != "" {
					declared = patterns.ParseContextType(flagContext)
				}
				score = engine.Scan(text, declared)
			}
			return report.WriteScore(os.Stdout, score, format)
		},
	}

	cmd.Flags().StringVar(&flagRemote, "remote", "", "gateway base URL; scan remotely instead of in-process")
	cmd.Flags().StringVar(&flagFile, "file", "", "newline-delimited prompt file to scan as a batch")
	cmd.Flags().StringVar(&flagContext, "context", "", "declared context type (user_input, educational, ...)")
	cmd.Flags().StringVar(&flagFormat, "format", "text", "output format: text, markdown, json")
	cmd.Flags().IntVar(&flagConcurrency, "concurrency", remote.DefaultBatchConcurrency, "max in-flight requests for remote batch scans")
	return cmd
}

func runBatchScan(ctx context.Context, cfg *config.Config, remoteURL, path string, concurrency int) error {
	prompts, err := readPrompts(path)
	if err != nil {
		return err
	}

	if remoteURL != "" {
		client := remote.New(remoteURL)
		results := client.ScanBatch(ctx, prompts, concurrency)
		var failed int
		for _, res := range results {
			if res.Err != nil {
				failed++
				fmt.Printf("%4d  ERROR     %v\n", res.Index+1, res.Err)
				continue
			}
			fmt.Printf("%4d  %6.2f  %-8s  %s\n", res.Index+1, res.Score.Score, res.Score.Level, truncate(res.Prompt, 60))
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d prompts failed", failed, len(prompts))
		}
		return nil
	}

	log := telemetry.NewLogger(cfg.LogLevel, cfg.LogJSON)
	engine, err := buildEngine(cfg, log)
	if err != nil {
		return err
	}
	sem := httputil.NewSemaphore(concurrency)
	scores := make([]*scan.ThreatScore, len(prompts))
	var wg sync.WaitGroup
	for i, prompt := range prompts {
		wg.Add(1)
		go func(i int, prompt string) {
			defer wg.Done()
			_ = sem.Do(ctx, func() error {
				scores[i] = engine.Scan(prompt, "")
				return nil
			})
		}(i, prompt)
	}
	wg.Wait()
	for i, score := range scores {
		if score == nil {
			return ctx.Err()
		}
		fmt.Printf("%4d  %6.2f  %-8s  %s\n", i+1, score.Score, score.Level, truncate(prompts[i], 60))
	}
	return nil
}

func readPrompts(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var prompts []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			prompts = append(prompts, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return prompts, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the bastion version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("bastion v%s\n", Version)
		},
	}
}

// ============================================================================
// analyze
// ============================================================================

func newAnalyzeCmd() *cobra.Command {
	var flagFormat string

	cmd := &cobra.Command{
		Use:   "analyze <transcript>",
		Short: "Replay a transcript file and print the session analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			doc, err := importTranscript(args[0])
			if err != nil {
				return err
			}
			if len(doc.Turns) == 0 {
				return fmt.Errorf("transcript %s has no turns", args[0])
			}

			log := telemetry.NewLogger(cfg.LogLevel, cfg.LogJSON)
			engine, err := buildEngine(cfg, log)
			if err != nil {
				return err
			}

			id := doc.ConversationID
			if id == "" {
				id = "imported"
			}
			// Replay never times out: recorded transcripts can span days.
			tracker, err := scan.NewTracker(id, engine.Catalog(), 24*365*time.Hour, len(doc.Turns)+1,
				scan.WithChainOrder(chainOrderPolicy(cfg)))
			if err != nil {
				return err
			}

			base := doc.StartTime
			if base.IsZero() {
				base = time.Now()
			}
			for i, turn := range doc.Turns {
				at := turn.Timestamp
				if at.IsZero() {
					at = base.Add(time.Duration(i) * time.Second)
				}
				score := engine.Scan(turn.Content, "")
				if _, err := tracker.AddTurnAt(turn.Content, turn.Response, score, at); err != nil {
					return fmt.Errorf("replay turn %d: %w", i+1, err)
				}
			}

			return report.WriteAnalysis(os.Stdout, tracker.Analyze(), report.ParseFormat(flagFormat))
		},
	}

	cmd.Flags().StringVar(&flagFormat, "format", "text", "output format: text, markdown, json")
	return cmd
}

func importTranscript(path string) (*convio.Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	head := make([]byte, 512)
	n, _ := f.Read(head)
	if _, err := f.Seek(0, 0); err != nil {
		return nil, err
	}
	format := convio.DetectFormat(path, head[:n])
	return convio.Import(f, format)
}

// ============================================================================
// export
// ============================================================================

func newExportCmd() *cobra.Command {
	var (
		flagFormat string
		flagOut    string
	)

	cmd := &cobra.Command{
		Use:   "export <session-id>",
		Short: "Export a stored session as a transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := telemetry.NewLogger(cfg.LogLevel, cfg.LogJSON)

			store, cleanup, err := openStore(cmd.Context(), cfg, log)
			if err != nil {
				return err
			}
			defer cleanup()
			defer store.Close()

			rec, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if rec == nil {
				return fmt.Errorf("session %s not found in %s store", args[0], cfg.StoreBackend)
			}

			out := os.Stdout
			if flagOut != "" {
				f, err := os.Create(flagOut)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}

			format := convio.Format(flagFormat)
			if flagFormat == "" {
				format = convio.DetectFormat(flagOut, nil)
			}
			return convio.Export(out, convio.FromRecord(rec), format)
		},
	}

	cmd.Flags().StringVar(&flagFormat, "format", "", "transcript format: json, csv, txt (default: by --out extension)")
	cmd.Flags().StringVar(&flagOut, "out", "", "output file (default: stdout)")
	return cmd
}
