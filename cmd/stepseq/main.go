// Command stepseq edits, inspects and exports step-sequencer projects.
//
// Settings come from STEPSEQ_* environment variables (see internal/config);
// the persistent flags override the most common ones.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"stepseq/internal/config"
)

var version = "dev"

type rootOptions struct {
	project  string
	storage  string
	logLevel string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd(os.LookupEnv).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(lookup func(string) (string, bool)) *cobra.Command {
	var opts rootOptions
	root := &cobra.Command{
		Use:   "stepseq",
		Short: "A step sequencer with a piano roll and a sample grid",
		Long: `stepseq edits tracks of sections holding note and sample steps.

Edits apply locally first and are reconciled with the configured store in the
background. Arrangements can be imported from and dumped to YAML and exported
as Standard MIDI Files.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.project, "project", "p", "", "project to load (overrides STEPSEQ_PROJECT)")
	root.PersistentFlags().StringVar(&opts.storage, "storage", "", "storage driver: memory, sqlite or postgres")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "debug, info, warn or error")

	loadConfig := func() (config.Config, error) {
		cfg, err := config.Load(lookup)
		if err != nil {
			return config.Config{}, err
		}
		if opts.project != "" {
			cfg.Project = opts.project
		}
		if opts.storage != "" {
			cfg.Storage.Driver = opts.storage
		}
		if opts.logLevel != "" {
			cfg.Log.Level = opts.logLevel
		}
		return cfg, cfg.Validate()
	}
	// withApp opens the session for a command and flushes it afterwards.
	withApp := func(run func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) (err error) {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := openApp(cmd.Context(), cfg, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() {
				if cerr := a.Close(context.WithoutCancel(cmd.Context())); cerr != nil && err == nil {
					err = cerr
				}
			}()
			return run(cmd, args, a)
		}
	}

	root.AddCommand(
		newTriggersCmd(withApp),
		newGridCmd(withApp),
		newExportMIDICmd(withApp),
		newImportCmd(withApp),
		newDumpCmd(withApp),
		newRmProjectCmd(withApp),
		newSamplesCmd(withApp),
		newEditCmd(withApp),
	)
	return root
}

type appRunner func(run func(cmd *cobra.Command, args []string, a *app) error) func(*cobra.Command, []string) error

func out(cmd *cobra.Command) io.Writer { return cmd.OutOrStdout() }
