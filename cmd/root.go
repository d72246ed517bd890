package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/gradeetl/internal/adapters/ledger"
	"github.com/okian/gradeetl/internal/adapters/storage"
	"github.com/okian/gradeetl/internal/adapters/storage/dirstore"
	service "github.com/okian/gradeetl/internal/app"
	"github.com/okian/gradeetl/internal/config"
	"github.com/okian/gradeetl/internal/gendata"
	"github.com/okian/gradeetl/pkg/logger"
	"github.com/okian/gradeetl/pkg/metrics"
)

// cli carries state shared by the subcommands.
type cli struct {
	cfg *config.Config
	log logger.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	var configPath string

	root := &cobra.Command{
		Use:           "gradeetl",
		Short:         "Batch ETL for student grade CSV files",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if configPath != "" {
				if err := os.Setenv("GRADEETL_CONFIG", configPath); err != nil {
					return err
				}
			}
			// Logging comes up first so config errors are reported.
			if err := logger.Init(); err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}
			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := logger.Init(logger.WithFormat(cfg.LogFormat), logger.WithOutput(cmd.ErrOrStderr())); err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}
			if err := logger.SetLevelString(cfg.LogLevel); err != nil {
				return err
			}
			c.cfg = cfg
			c.log = logger.Get().Named("gradeetl")
			return nil
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file (overrides GRADEETL_CONFIG)")

	root.AddCommand(c.runCmd(), c.generateCmd(), c.syncCmd())
	return root
}

func (c *cli) runCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load new files from the landing store into every enabled sink",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if !dryRun {
				if err := c.cfg.RequireSinks(); err != nil {
					return err
				}
			}

			store, err := buildStore(ctx, c.cfg)
			if err != nil {
				return err
			}
			p, done, err := c.pipeline(cmd, store, dryRun)
			if err != nil {
				return err
			}
			defer done()

			res, err := p.Run(ctx)
			c.finish(cmd, res, err == nil && !dryRun)
			return err
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "transform without loading into sinks")
	return cmd
}

func (c *cli) generateCmd() *cobra.Command {
	var files int
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write synthetic grade files with corrupted cells",
		RunE: func(cmd *cobra.Command, _ []string) error {
			names, err := c.generate(cmd, files)
			if err != nil {
				return err
			}
			for _, n := range names {
				fmt.Fprintln(cmd.OutOrStdout(), n)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&files, "files", 0, "number of files (default random up to generate.max_files)")
	return cmd
}

func (c *cli) syncCmd() *cobra.Command {
	var generate bool
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Stage local files into the landing store, then run the pipeline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if err := c.cfg.RequireSinks(); err != nil {
				return err
			}
			if generate {
				if _, err := c.generate(cmd, 0); err != nil {
					return err
				}
			}

			remote, err := buildStore(ctx, c.cfg)
			if err != nil {
				return err
			}
			p, done, err := c.pipeline(cmd, remote, false)
			if err != nil {
				return err
			}
			defer done()

			syncer := service.NewSyncer(
				dirstore.New(c.cfg.Sync.LocalDir),
				remote,
				p,
				service.WithPollInterval(c.cfg.Sync.PollInterval),
				service.WithMaxWait(c.cfg.Sync.MaxWait),
			)
			staged, res, err := syncer.Run(ctx)
			c.log.Info(ctx, "sync finished", logger.Strings("uploaded", staged.Uploaded), logger.Int("present", staged.Present))
			c.finish(cmd, res, err == nil)
			return err
		},
	}
	cmd.Flags().BoolVar(&generate, "generate", false, "generate synthetic files into sync.local_dir first")
	return cmd
}

func (c *cli) generate(cmd *cobra.Command, files int) ([]string, error) {
	dir := c.cfg.Generate.Dir
	if cmd.Name() == "sync" {
		dir = c.cfg.Sync.LocalDir
	}
	opts := []gendata.Option{
		gendata.WithMaxFiles(c.cfg.Generate.MaxFiles),
		gendata.WithRowRange(c.cfg.Generate.MinRows, c.cfg.Generate.MaxRows),
		gendata.WithFiles(files),
	}
	if c.cfg.Generate.Seed != 0 {
		opts = append(opts, gendata.WithSeed(c.cfg.Generate.Seed))
	}
	return gendata.New(opts...).WriteDir(cmd.Context(), dir)
}

// pipeline wires sinks, ledger and options. done releases the sinks.
func (c *cli) pipeline(cmd *cobra.Command, store storage.Store, dryRun bool) (*service.Pipeline, func(), error) {
	ctx := cmd.Context()
	done := func() {}

	processed, err := c.processed()
	if err != nil {
		return nil, done, err
	}

	opts, err := pipelineOptions(c.cfg)
	if err != nil {
		return nil, done, err
	}
	opts = append(opts,
		service.WithStore(store),
		service.WithProcessed(processed),
		service.WithLogger(c.log.Named("pipeline")),
	)

	if !dryRun {
		sinks, closeSinks, err := buildSinks(ctx, c.cfg)
		if err != nil {
			return nil, done, err
		}
		done = closeSinks
		opts = append(opts, service.WithSinks(sinks...))
	}
	return service.New(opts...), done, nil
}

func (c *cli) processed() ([]string, error) {
	if c.cfg.Pipeline.LedgerPath == "" {
		return nil, nil
	}
	return ledger.New(c.cfg.Pipeline.LedgerPath).Names()
}

// finish records loaded files in the ledger and pushes metrics.
func (c *cli) finish(cmd *cobra.Command, res service.Result, loaded bool) {
	ctx := cmd.Context()
	if loaded && c.cfg.Pipeline.LedgerPath != "" && len(res.Processed) > 0 {
		if err := ledger.New(c.cfg.Pipeline.LedgerPath).Append(res.RunID, time.Now(), res.Processed...); err != nil {
			c.log.Error(ctx, "ledger update failed", logger.Error(err))
		}
	}
	if err := metrics.Push(ctx, c.cfg.Metrics.PushURL, c.cfg.Metrics.Job); err != nil {
		c.log.Warn(ctx, "metrics push failed", logger.Error(err))
	}
	fmt.Fprintf(cmd.OutOrStdout(), "run %s %s: loaded=%d rejected=%d duplicates=%d files=%d\n",
		res.RunID, res.State, res.Loaded, res.Rejected, res.Duplicates, len(res.Processed))
}
