package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/deedharvest/internal/browser"
	"github.com/xkilldash9x/deedharvest/internal/config"
	"github.com/xkilldash9x/deedharvest/internal/export"
	"github.com/xkilldash9x/deedharvest/internal/ledger"
	"github.com/xkilldash9x/deedharvest/internal/observability"
	"github.com/xkilldash9x/deedharvest/internal/relay"
	"github.com/xkilldash9x/deedharvest/internal/scrape"
	"github.com/xkilldash9x/deedharvest/internal/server"
	"github.com/xkilldash9x/deedharvest/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the operator HTTP front end.",
	Long: `Starts the HTTP surface the operator drives a run from: launch a
scrape, watch its status feed, answer CAPTCHA prompts, download the
workbook.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := observability.GetLogger()
		defer observability.Sync()

		return runServe(cmd.Context(), cfg, logger)
	},
}

func runServe(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	deps, err := buildDependencies(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer deps.close()

	exporter := export.New(deps.store, logger)
	srv := server.New(logger, deps.ledger, deps.slot, deps.orchestrator, exporter, cfg.Harvest.RelayTTL)

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// dependencies are the shared collaborators behind both the server and the
// one-shot harvest command.
type dependencies struct {
	pool         *pgxpool.Pool
	rdb          *redis.Client
	slot         *relay.RedisSlot
	ledger       *ledger.Ledger
	store        *store.Store
	orchestrator *scrape.Orchestrator
}

func buildDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*dependencies, error) {
	if cfg.Postgres.URL == "" {
		return nil, fmt.Errorf("postgres.url is required")
	}
	pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		pool.Close()
		_ = rdb.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	ldg := ledger.New(pool, logger, nil)
	st := store.New(pool, logger)
	slot := relay.NewRedisSlot(rdb)
	rel := relay.New(slot, ldg, logger)

	factory := func(ctx context.Context) (scrape.Browser, error) {
		return browser.NewSession(ctx, logger, cfg.Browser, cfg.Harvest.WaitTimeout, cfg.Harvest.SettleDelay)
	}
	orch := scrape.New(cfg.Harvest, logger, factory, rel, ldg, st)

	return &dependencies{
		pool:         pool,
		rdb:          rdb,
		slot:         slot,
		ledger:       ldg,
		store:        st,
		orchestrator: orch,
	}, nil
}

func (d *dependencies) close() {
	_ = d.rdb.Close()
	d.pool.Close()
}
