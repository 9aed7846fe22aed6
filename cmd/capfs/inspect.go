package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/spf13/cobra"

	"github.com/AnishMulay/capfs/internal/file_service"
	"github.com/AnishMulay/capfs/internal/inode"
	"github.com/AnishMulay/capfs/servers/capfs"
)

// copyChunk is how much put and cat move per call.
const copyChunk = 32 * inode.BlockSize

func lsCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List a directory",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := "/"
			if len(args) == 1 {
				dir = args[0]
			}
			return opts.withStack(cmd, func(s *capfs.Stack) error {
				ctx := cmd.Context()
				fh, err := s.Posix.OpenDir(ctx, dir)
				if err != nil {
					return err
				}
				defer s.Posix.ReleaseDir(fh)

				entries, err := s.Posix.ReadDir(ctx, fh)
				if err != nil {
					return err
				}
				for _, e := range entries {
					attr, err := s.Posix.Stat(ctx, path.Join(dir, e.Name))
					if err != nil {
						return err
					}
					kind := "-"
					if e.IsDir {
						kind = "d"
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s %12d %s\n", kind, attr.Length, e.Name)
				}
				return nil
			})
		},
	}
}

func statCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stat <path>",
		Short: "Show the kind, length and capsule of a path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStack(cmd, func(s *capfs.Stack) error {
				attr, err := s.Posix.Stat(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				kind := "file"
				if attr.IsDir {
					kind = "directory"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "path:    %s\nkind:    %s\nlength:  %d\ncapsule: %s\n", args[0], kind, attr.Length, attr.Target)
				return nil
			})
		},
	}
}

func catCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cat <path>",
		Short: "Write a file's contents to stdout",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withStack(cmd, func(s *capfs.Stack) error {
				ctx := cmd.Context()
				fh, err := s.Posix.Open(ctx, args[0])
				if err != nil {
					return err
				}
				defer s.Posix.Release(fh)

				buf := make([]byte, copyChunk)
				var off uint64
				for {
					n, err := s.Posix.Read(ctx, fh, buf, off)
					if err != nil {
						return err
					}
					if n == 0 {
						return nil
					}
					if _, err := cmd.OutOrStdout().Write(buf[:n]); err != nil {
						return err
					}
					off += uint64(n)
				}
			})
		},
	}
}

func putCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "put <path> [local-file]",
		Short:   "Store a local file (or stdin) at path, replacing its contents",
		Example: `  capfs put /notes.txt ./notes.txt`,
		Args:    cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 2 {
				f, err := os.Open(args[1])
				if err != nil {
					return err
				}
				defer f.Close()
				in = f
			}

			return opts.withStack(cmd, func(s *capfs.Stack) error {
				ctx := cmd.Context()
				fh, err := s.Posix.Open(ctx, args[0])
				if errors.Is(err, file_service.ErrNotFound) {
					fh, err = s.Posix.Create(ctx, args[0])
				}
				if err != nil {
					return err
				}
				defer s.Posix.Release(fh)
				if err := s.Posix.TruncateHandle(ctx, fh, 0); err != nil {
					return err
				}

				buf := make([]byte, copyChunk)
				var off uint64
				for {
					n, readErr := io.ReadFull(in, buf)
					if n > 0 {
						if _, err := s.Posix.Write(ctx, fh, buf[:n], off); err != nil {
							return fmt.Errorf("write at %d: %w", off, err)
						}
						off += uint64(n)
					}
					if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
						break
					}
					if readErr != nil {
						return readErr
					}
				}
				cmd.Printf("wrote %d bytes to %s\n", off, args[0])
				return nil
			})
		},
	}
}
