package main

import (
	"github.com/spf13/cobra"

	"github.com/syssam/versa/store"
)

func migrateCmd(a *app) *cobra.Command {
	var (
		projections bool
		lockName    string
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or extend the tables of every catalog entity type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("projections") {
				a.cfg.Projections = projections
			}
			var opts []store.Option
			if lockName != "" {
				opts = append(opts, store.WithLockName(lockName))
			}
			return runMigrate(cmd, a, opts...)
		},
	}
	cmd.Flags().BoolVar(&projections, "projections", false, "Maintain projection tables, overrides the configuration")
	cmd.Flags().StringVar(&lockName, "lock", "", "Advisory lock name guarding the migration")
	return cmd
}

func runMigrate(cmd *cobra.Command, a *app, opts ...store.Option) error {
	cat, reg, err := a.loadCatalog()
	if err != nil {
		return err
	}
	client, err := a.open(reg, opts...)
	if err != nil {
		return err
	}
	defer client.Close()

	if err := client.EnsureSchema(contextOf(cmd)); err != nil {
		return err
	}
	a.log.Info("schema up to date", "dialect", client.Dialect(), "entity_types", len(cat.EntityTypes), "fields", len(cat.Fields))
	return nil
}
