package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/syssam/versa/dialect/sql"
	"github.com/syssam/versa/internal/config"
	registry "github.com/syssam/versa/schema"
	"github.com/syssam/versa/schema/catalog"
	"github.com/syssam/versa/store"
)

// defaultConfig is read when --config is not given and the file exists.
const defaultConfig = "versa.yaml"

// app holds the state shared by all subcommands.
type app struct {
	configPath string
	catalog    string
	debug      bool

	cfg *config.Config
	log *slog.Logger
}

func rootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "versa",
		Short:         "Versioned entity store tooling",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}
	root.Version = version
	root.SetVersionTemplate("{{.Version}}\n")
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Path to the configuration file (default "+defaultConfig+")")
	root.PersistentFlags().StringVar(&a.catalog, "catalog", "", "Path to the entity catalog, overrides the configuration")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "Log every SQL statement")
	root.AddCommand(migrateCmd(a))
	root.AddCommand(validateCmd(a))
	root.AddCommand(genCmd(a))
	root.AddCommand(versionCmd())
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	if a.catalog != "" {
		cfg.Catalog = a.catalog
	}
	if a.debug {
		cfg.Log.Level = "debug"
	}
	a.cfg = cfg
	a.log = cfg.Log.Logger(cmd.ErrOrStderr())
	return nil
}

func (a *app) loadConfig() (*config.Config, error) {
	if a.configPath != "" {
		return config.Load(a.configPath)
	}
	cfg, err := config.Load(defaultConfig)
	if errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

// loadCatalog loads the catalog and registers its entity types.
func (a *app) loadCatalog() (*catalog.Catalog, *registry.Registry, error) {
	cat, err := catalog.Load(a.cfg.Catalog)
	if err != nil {
		return nil, nil, err
	}
	reg := registry.NewRegistry()
	if err := cat.Register(reg); err != nil {
		return nil, nil, fmt.Errorf("catalog %s: %w", a.cfg.Catalog, err)
	}
	return cat, reg, nil
}

// open returns a client for the configured database.
func (a *app) open(reg *registry.Registry, opts ...store.Option) (*store.Client, error) {
	cfg := a.cfg
	base := []store.Option{
		store.WithLogger(a.log),
		store.WithBatchSize(cfg.BatchSize),
		store.WithLivePointer(cfg.LivePointer),
		store.WithProcedures(cfg.Procedures),
		store.WithProjections(cfg.Projections),
		store.WithSlowQuery(cfg.SlowQuery),
	}
	if p := cfg.Pool; p.MaxOpen > 0 || p.MaxIdle > 0 || p.MaxLifetime > 0 {
		var pool []sql.PoolOption
		if p.MaxOpen > 0 {
			pool = append(pool, sql.WithMaxOpenConns(p.MaxOpen))
		}
		if p.MaxIdle > 0 {
			pool = append(pool, sql.WithMaxIdleConns(p.MaxIdle))
		}
		if p.MaxLifetime > 0 {
			pool = append(pool, sql.WithConnMaxLifetime(p.MaxLifetime))
		}
		base = append(base, store.WithPool(pool...))
	}
	if a.debug {
		base = append(base, store.WithDebug())
	}
	return store.Open(cfg.Driver, cfg.DSN, reg, append(base, opts...)...)
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
