package main

import (
	"github.com/spf13/cobra"

	"github.com/AnishMulay/capfs/internal/config"
	"github.com/AnishMulay/capfs/servers/capfs"
)

type globalOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}
	cmd := &cobra.Command{
		Use:           "capfs",
		Short:         "A file system stored in append-only capsule logs",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "capfs.yaml", "path to the config file (created with defaults if missing)")

	cmd.AddCommand(mountCmd(opts))
	cmd.AddCommand(mkrootCmd(opts))
	cmd.AddCommand(serveCmd(opts))
	cmd.AddCommand(lsCmd(opts))
	cmd.AddCommand(catCmd(opts))
	cmd.AddCommand(putCmd(opts))
	cmd.AddCommand(statCmd(opts))
	return cmd
}

func (o *globalOptions) load() (*config.Config, error) {
	return config.LoadConfig(o.configPath)
}

// withStack runs fn against a stack built from the loaded config.
func (o *globalOptions) withStack(cmd *cobra.Command, fn func(*capfs.Stack) error) error {
	cfg, err := o.load()
	if err != nil {
		return err
	}
	stack, err := capfs.OpenStack(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer stack.Close()
	return fn(stack)
}
