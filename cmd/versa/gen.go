package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/syssam/versa/compiler/gen"
)

func genCmd(a *app) *cobra.Command {
	var (
		watch   bool
		workers int
	)
	cmd := &cobra.Command{
		Use:   "gen",
		Short: "Generate typed wrappers and registration code from the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []gen.Option{
				gen.WithPackage(a.cfg.Gen.Package),
				gen.WithTarget(a.cfg.Gen.Output),
			}
			if workers > 0 {
				opts = append(opts, gen.WithWorkers(workers))
			}
			run := func(ctx context.Context) error {
				m, err := gen.Run(ctx, a.cfg.Catalog, opts...)
				if err != nil {
					return err
				}
				a.log.Info("generated", "target", a.cfg.Gen.Output, "files", m.FilesGenerated, "removed", m.FilesRemoved, "bytes", m.TotalBytes, "took", m.Duration)
				return nil
			}
			if !watch {
				return run(contextOf(cmd))
			}
			ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt)
			defer stop()
			a.log.Info("watching catalog", "catalog", a.cfg.Catalog)
			return gen.Watch(ctx, a.cfg.Catalog, a.log, run)
		},
	}
	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Regenerate whenever the catalog changes")
	cmd.Flags().IntVar(&workers, "workers", 0, "Files rendered in parallel (default GOMAXPROCS)")
	return cmd
}
