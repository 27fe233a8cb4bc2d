package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"
	"go.uber.org/zap"

	"github.com/tropicaldog17/finledger/internal/config"
	"github.com/tropicaldog17/finledger/internal/db"
	"github.com/tropicaldog17/finledger/internal/logger"
	"github.com/tropicaldog17/finledger/internal/repositories"
	"github.com/tropicaldog17/finledger/internal/services"
)

// env is what every command needs: settings, a logger and an open database
type env struct {
	cfg *config.Config
	log *zap.Logger
	db  *db.DB
}

func open() (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.ForEnv(cfg.LogEnv)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	database, err := db.Connect(cfg.DB)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, db: database}, nil
}

func (e *env) close() {
	e.db.Close()
	e.log.Sync()
}

// run opens the environment, calls fn and maps its error to an exit status
func run(ctx context.Context, fn func(context.Context, *env) error) subcommands.ExitStatus {
	e, err := open()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return subcommands.ExitFailure
	}
	defer e.close()

	if err := fn(ctx, e); err != nil {
		e.log.Error("command failed", zap.Error(err))
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type migrateCmd struct{}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "create or update all tables and indexes" }
func (*migrateCmd) Usage() string {
	return `migrate

  Runs the schema migration against the database configured by DB_DRIVER.
`
}
func (*migrateCmd) SetFlags(*flag.FlagSet) {}

func (*migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, e *env) error {
		if err := e.db.Migrate(ctx); err != nil {
			return err
		}
		e.log.Info("schema migrated", zap.String("driver", e.cfg.DB.Driver))
		return nil
	})
}

type dropCmd struct {
	yes bool
}

func (*dropCmd) Name() string     { return "drop" }
func (*dropCmd) Synopsis() string { return "drop all tables" }
func (*dropCmd) Usage() string {
	return `drop -yes

  Drops every table. Requires -yes.
`
}
func (c *dropCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.yes, "yes", false, "Confirm dropping all tables.")
}

func (c *dropCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !c.yes {
		fmt.Fprintln(os.Stderr, "Error: refusing to drop tables without -yes")
		return subcommands.ExitUsageError
	}
	return run(ctx, func(ctx context.Context, e *env) error {
		if err := e.db.DropAll(ctx); err != nil {
			return err
		}
		e.log.Info("tables dropped")
		return nil
	})
}

type seedCmd struct{}

func (*seedCmd) Name() string     { return "seed" }
func (*seedCmd) Synopsis() string { return "insert sample users, accounts, assets and records" }
func (*seedCmd) Usage() string {
	return `seed

  Migrates, then inserts the sample data set. Run it on an empty database.
`
}
func (*seedCmd) SetFlags(*flag.FlagSet) {}

func (*seedCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(ctx context.Context, e *env) error {
		if err := e.db.Migrate(ctx); err != nil {
			return err
		}
		accounts := repositories.NewAccountRepository(e.db)
		catalog := services.NewCatalogService(repositories.NewAssetRepository(e.db), accounts, e.log)
		ledger := services.NewLedgerService(repositories.NewLedgerRepository(e.db))

		s, err := seed(ctx, catalog, ledger)
		if err != nil {
			return err
		}
		e.log.Info("sample data inserted",
			zap.Uint64("user_id", s.UserID),
			zap.Uint64("portfolio_id", s.PortfolioID),
			zap.Int("accounts", len(s.Accounts)),
			zap.Int("assets", len(s.Assets)))
		return nil
	})
}

type populateCmd struct {
	symbol string
	base   string
	from   string
	to     string
}

func (*populateCmd) Name() string     { return "populate" }
func (*populateCmd) Synopsis() string { return "backfill daily closes from the configured price provider" }
func (*populateCmd) Usage() string {
	return `populate -symbol <asset> -base <asset> -from YYYY-MM-DD [-to YYYY-MM-DD]

  Fetches one close per day in [from, to] from PRICE_PROVIDER_ENDPOINT and
  stores it. Days that already have a value are skipped.
`
}
func (c *populateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.symbol, "symbol", "", "Code of the asset to price.")
	f.StringVar(&c.base, "base", "", "Code of the asset prices are quoted in.")
	f.StringVar(&c.from, "from", "", "First day to fetch.")
	f.StringVar(&c.to, "to", "", "Last day to fetch, today when empty.")
}

func (c *populateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.symbol == "" || c.base == "" || c.from == "" {
		fmt.Fprintln(os.Stderr, "Error: -symbol, -base and -from are required")
		return subcommands.ExitUsageError
	}
	from, err := time.Parse("2006-01-02", c.from)
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error: invalid -from, use YYYY-MM-DD")
		return subcommands.ExitUsageError
	}
	to := time.Now().UTC().Truncate(24 * time.Hour)
	if c.to != "" {
		if to, err = time.Parse("2006-01-02", c.to); err != nil {
			fmt.Fprintln(os.Stderr, "Error: invalid -to, use YYYY-MM-DD")
			return subcommands.ExitUsageError
		}
	}

	return run(ctx, func(ctx context.Context, e *env) error {
		provider := services.NewProviderFromConfig(e.cfg)
		if provider == nil {
			return fmt.Errorf("PRICE_PROVIDER_ENDPOINT is not set")
		}
		assets := repositories.NewAssetRepository(e.db)
		asset, err := assets.GetByCode(ctx, c.symbol)
		if err != nil {
			return err
		}
		base, err := assets.GetByCode(ctx, c.base)
		if err != nil {
			return err
		}

		prices := services.NewPriceTable(repositories.NewAssetValueRepository(e.db))
		svc := services.NewPricePopulationService(provider, prices, assets, services.PopulationOptions{
			RatePerSec: e.cfg.PopulateRatePerSec,
			MaxRetries: e.cfg.PopulateMaxRetries,
		}, e.log)

		res, err := svc.Populate(ctx, asset.ID, base.ID, from, to)
		if err != nil {
			return err
		}
		e.log.Info("population finished",
			zap.String("asset", c.symbol),
			zap.Int("inserted", res.Inserted),
			zap.Int("skipped", res.Skipped),
			zap.Int("missing", res.Missing))
		return nil
	})
}
