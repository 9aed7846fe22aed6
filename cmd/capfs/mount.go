package main

import (
	"github.com/spf13/cobra"

	"github.com/AnishMulay/capfs/servers/capfs"
	"github.com/AnishMulay/capfs/servers/logserver"
)

func mountCmd(opts *globalOptions) *cobra.Command {
	var mountpoint string
	var allowOther, debug bool

	cmd := &cobra.Command{
		Use:     "mount [mountpoint]",
		Short:   "Mount the file system with FUSE",
		Example: `  capfs mount /mnt/capfs`,
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Mount.Mountpoint = args[0]
			}
			if mountpoint != "" {
				cfg.Mount.Mountpoint = mountpoint
			}
			if cmd.Flags().Changed("allow-other") {
				cfg.Mount.AllowOther = allowOther
			}
			if cmd.Flags().Changed("debug") {
				cfg.Mount.Debug = debug
			}

			server, err := capfs.Build(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			return server.Run()
		},
	}
	cmd.Flags().StringVar(&mountpoint, "mountpoint", "", "mount directory (overrides mount.mountpoint)")
	cmd.Flags().BoolVar(&allowOther, "allow-other", false, "let other users access the mount")
	cmd.Flags().BoolVar(&debug, "debug", false, "log every FUSE request")
	return cmd
}

func mkrootCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mkroot",
		Short: "Create the empty root directory",
		Long: `Create the empty root directory and bind it to the configured name prefix.

Fails if a root already exists.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStack(cmd, func(s *capfs.Stack) error {
				if err := s.Dirs.MakeRoot(cmd.Context()); err != nil {
					return err
				}
				cmd.Printf("created root %q\n", s.Dirs.RootName())
				return nil
			})
		},
	}
}

func serveCmd(opts *globalOptions) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve locally stored capsules to remote mounts over gRPC",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Serve.ListenAddr = listen
			}
			server, err := logserver.Build(cfg)
			if err != nil {
				return err
			}
			return server.Run()
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "listen address (overrides serve.listen_addr)")
	return cmd
}
