package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/LuisRevillaM/swapgraph-sub002/internal/config"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/gateway"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/intents"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/ir"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/lock"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/matching"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/policy"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/schema"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/settlement"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/signing"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/store"
	"github.com/LuisRevillaM/swapgraph-sub002/internal/telemetry"
)

// App is the wired process: config, store and services.
type App struct {
	Config     config.Config
	Store      *store.Store
	Logger     *slog.Logger
	Telemetry  *telemetry.Provider
	Signer     *signing.Signer // nil until keygen has run
	Intents    *intents.Service
	Matching   *matching.Service
	Settlement *settlement.Service
	Gateway    *gateway.Gateway

	redis *redis.Client
}

// missingKey stands in for the signer when no seed file exists. Anything
// that does not issue a receipt keeps working.
type missingKey struct{ path string }

func (m missingKey) Sign(*ir.SwapReceipt) error {
	return fmt.Errorf("signing key %s not found (run swapgraph keygen)", m.path)
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig reads the config file and applies the --db override.
func loadConfig(opts *RootOptions) (config.Config, error) {
	path := opts.ConfigPath
	if path == "" {
		path = config.DefaultFile
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}
	if opts.DBPath != "" {
		cfg.Store.Path = opts.DBPath
	}
	return cfg, nil
}

// openApp wires every service from the configuration.
func openApp(ctx context.Context, opts *RootOptions) (*App, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	app := &App{Config: cfg, Logger: logger}

	app.Telemetry, err = telemetry.New(ctx, telemetry.Config{
		Exporter:    cfg.Telemetry.Exporter,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		SampleRate:  cfg.Telemetry.SampleRate,
		ServiceName: "swapgraph",
		Environment: cfg.Telemetry.Environment,
	}, telemetry.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	app.Store, err = store.Open(cfg.Store.Path)
	if err != nil {
		app.Close(ctx)
		return nil, fmt.Errorf("open store %s: %w", cfg.Store.Path, err)
	}

	var signer settlement.Signer
	app.Signer, err = signing.LoadSeedFile(cfg.Signing.KeyID, cfg.Signing.SeedFile)
	switch {
	case err == nil:
		signer = app.Signer
	case errors.Is(err, fs.ErrNotExist):
		logger.Debug("no signing key; receipts cannot be issued", "seed_file", cfg.Signing.SeedFile)
		signer = missingKey{path: cfg.Signing.SeedFile}
	default:
		app.Close(ctx)
		return nil, err
	}

	var locker lock.Locker = lock.NewKeyed()
	if cfg.Lock.Backend == "redis" {
		app.redis = lock.NewRedisClient(cfg.Lock.Addr, cfg.Lock.Password, cfg.Lock.DB)
		locker = lock.NewRedis(app.redis, lock.RedisOptions{
			Prefix:  cfg.Lock.Prefix,
			TTL:     cfg.Lock.TTL.D(),
			MaxWait: cfg.Lock.MaxWait.D(),
		})
	}

	var evaluator policy.Evaluator = policy.AllowAll{}
	if len(cfg.Policy.Rules) > 0 {
		rules, err := policy.NewCEL(cfg.Policy.Rules)
		if err != nil {
			app.Close(ctx)
			return nil, err
		}
		evaluator = rules
	}

	validator, err := schema.New()
	if err != nil {
		app.Close(ctx)
		return nil, err
	}

	app.Intents = intents.NewService(app.Store,
		intents.WithTelemetry(app.Telemetry),
		intents.WithLogger(logger),
	)
	app.Matching = matching.NewService(app.Store,
		matching.WithLocker(locker),
		matching.WithTelemetry(app.Telemetry),
		matching.WithLogger(logger),
		matching.WithProposalTTL(cfg.Matching.ProposalTTL.D()),
		matching.WithOptimizerOptions(matching.Options{
			ExactLimit: cfg.Matching.ExactLimit,
			NodeBudget: cfg.Matching.NodeBudget,
			MaxRounds:  matching.DefaultOptions().MaxRounds,
		}),
		matching.WithShadow(cfg.Matching.Shadow),
	)
	app.Settlement = settlement.NewService(app.Store, signer,
		settlement.WithLocker(locker),
		settlement.WithTelemetry(app.Telemetry),
		settlement.WithLogger(logger),
		settlement.WithDepositWindow(cfg.Settlement.DepositWindow.D()),
	)
	app.Gateway = gateway.New(validator, app.Intents, app.Matching, app.Settlement,
		gateway.WithPolicy(evaluator),
		gateway.WithLogger(logger),
		gateway.WithDefaultBounds(cfg.Matching.Bounds()),
	)
	return app, nil
}

// Close releases the store, the Redis client and flushes telemetry.
func (a *App) Close(ctx context.Context) {
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Logger.Error("error closing database", "error", err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Logger.Error("error closing redis client", "error", err)
		}
	}
	if a.Telemetry != nil {
		if err := a.Telemetry.Shutdown(ctx); err != nil {
			a.Logger.Error("error shutting down telemetry", "error", err)
		}
	}
}

// Invoke sends one operation through the gateway.
func (a *App) Invoke(ctx context.Context, op string, m *mutation, payload any) (any, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return a.Gateway.Invoke(ctx, gateway.Envelope{
		Operation:      op,
		Actor:          m.actor,
		IdempotencyKey: m.key,
		OccurredAt:     m.at,
		Payload:        body,
	})
}

// mutation holds the flags shared by every state-changing command.
type mutation struct {
	actor string
	key   string
	at    string
}

func (m *mutation) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&m.actor, "actor", "", "acting party (required)")
	cmd.Flags().StringVar(&m.key, "key", "", "idempotency key")
	cmd.Flags().StringVar(&m.at, "at", "", "occurred_at as RFC 3339 (default now)")
	_ = cmd.MarkFlagRequired("actor")
}

// withApp opens the app, runs fn and reports its error in the chosen format.
func withApp(opts *RootOptions, cmd *cobra.Command, fn func(ctx context.Context, app *App, out *OutputFormatter) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := opts.formatter(cmd)

	app, err := openApp(ctx, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to start swapgraph", err)
	}
	defer app.Close(ctx)

	if err := fn(ctx, app, out); err != nil {
		return out.Fail(err)
	}
	return nil
}
