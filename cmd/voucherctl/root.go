package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/erp/voucher-export/internal/bootstrap"
	"github.com/erp/voucher-export/internal/domain/export"
	"github.com/erp/voucher-export/internal/infrastructure/config"
	"github.com/erp/voucher-export/internal/infrastructure/logger"
	"github.com/erp/voucher-export/internal/infrastructure/persistence"
	"github.com/erp/voucher-export/internal/infrastructure/telemetry"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	sqlitePath string
	tenantFlag string
	userFlag   string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "voucherctl",
	Short: "Operate the voucher export engine",
	Long: `voucherctl submits voucher exports, reverses export markers and inspects
export tasks against the same database and storage as the API server.

Configuration is read from config.toml and ERP_* environment variables.
Use --sqlite to work on a local SQLite file instead of PostgreSQL.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Config file (default: ./config.toml)")
	pf.StringVar(&sqlitePath, "sqlite", "", "Use this SQLite file instead of PostgreSQL")
	pf.StringVar(&tenantFlag, "tenant", "", "Tenant ID to act in")
	pf.StringVar(&userFlag, "user", "", "User ID to act as")
	pf.StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
}

// session is an opened export stack plus what is needed to tear it down
type session struct {
	cfg       *config.Config
	log       *zap.Logger
	db        *persistence.Database
	providers *telemetry.Providers
	stack     *bootstrap.ExportStack
}

// openSession connects to the database and wires an inline export stack
func openSession(ctx context.Context) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	cfg.Log.Level = logLevel
	cfg.Log.Output = "stderr"
	log, err := logger.FromConfig(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(logLevel))
	var db *persistence.Database
	if sqlitePath != "" {
		db, err = persistence.OpenSQLite(sqlitePath, gormLog)
	} else {
		db, err = persistence.NewDatabaseWithLogger(&cfg.Database, gormLog)
	}
	if err != nil {
		return nil, err
	}

	// the command line never exports telemetry
	providers, err := telemetry.NewProviders(ctx, config.TelemetryConfig{}, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	stack, err := bootstrap.NewExportStack(cfg, db.DB, providers, bootstrap.Inline, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := stack.Start(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &session{cfg: cfg, log: log, db: db, providers: providers, stack: stack}, nil
}

func (s *session) Close() {
	ctx := context.Background()
	_ = s.stack.Stop(ctx)
	_ = s.providers.Shutdown(ctx)
	_ = s.db.Close()
	_ = logger.Sync(s.log)
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.Load()
}

// operator is the actor commands run as. Command line operators hold every permission.
func operator() (export.Actor, error) {
	tenantID, err := parseIDFlag("tenant", tenantFlag)
	if err != nil {
		return export.Actor{}, err
	}
	userID, err := parseIDFlag("user", userFlag)
	if err != nil {
		return export.Actor{}, err
	}
	return export.Actor{TenantID: tenantID, UserID: userID, Permissions: []string{"*"}}, nil
}

func parseIDFlag(name, value string) (uuid.UUID, error) {
	if value == "" {
		return uuid.Nil, fmt.Errorf("--%s is required", name)
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--%s: %w", name, err)
	}
	return id, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
