package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sgl-project/fallible/pkg/storage"
	"github.com/sgl-project/fallible/pkg/version"
)

func newRootCommand(run runner) *cobra.Command {
	root := &cobra.Command{
		Use:   "storectl",
		Short: "Inspect and modify a long-term store",
		Long: "storectl runs storage facade operations against one configured store, " +
			"either an S3 bucket or a local directory.",
		Version:       version.Get().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := root.PersistentFlags()
	flags.StringP("config", "c", "", "path to config file")
	flags.BoolP("debug", "d", false, "enable debug mode")
	flags.String("provider", "", "storage provider (s3 or local)")
	flags.String("store", "", "bucket name, or root directory name for local stores")
	flags.String("description", "", "store description")
	flags.String("root", "", "root directory of a local store")
	flags.String("region", "", "object store region")
	flags.String("endpoint", "", "object store endpoint for S3-compatible servers")
	flags.Bool("force-path-style", false, "use path-style bucket addressing")
	flags.String("metrics-file", "", "write operation metrics in Prometheus text format to this file")

	root.AddCommand(
		newReadCommand(run),
		newWriteCommand(run),
		newListCommand(run),
		newVersionsCommand(run),
		newRemoveCommand(run),
		newMoveCommand(run),
		newCopyCommand(run),
		newStatCommand(run),
		newExistsCommand(run),
		newDescribeCommand(run),
		newVersionCommand(),
	)
	return root
}

// isTerminal reports whether w writes to an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func newReadCommand(run runner) *cobra.Command {
	var keyFile, outFile string
	cmd := &cobra.Command{
		Use:   "read KEY",
		Short: "Print an object's contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, decrypt, err := transforms(keyFile)
			if err != nil {
				return err
			}
			return run(cmd, func(ctx context.Context, f storage.Facade) error {
				data, err := f.Read(ctx, args[0], decrypt)
				if err != nil {
					return err
				}
				if outFile != "" {
					return os.WriteFile(outFile, data, 0o600)
				}
				out := cmd.OutOrStdout()
				if _, err := out.Write(data); err != nil {
					return err
				}
				if isTerminal(out) && (len(data) == 0 || data[len(data)-1] != '\n') {
					_, err = fmt.Fprintln(out)
				}
				return err
			})
		},
	}
	cmd.Flags().StringVar(&keyFile, "key-file", "", "decrypt with the hex-encoded AES-256 key in this file")
	cmd.Flags().StringVarP(&outFile, "output", "o", "", "write to this file instead of stdout")
	return cmd
}

func newWriteCommand(run runner) *cobra.Command {
	var keyFile string
	cmd := &cobra.Command{
		Use:   "write KEY [FILE]",
		Short: "Store a file, or stdin, under KEY",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			encrypt, _, err := transforms(keyFile)
			if err != nil {
				return err
			}
			var data []byte
			if len(args) == 2 && args[1] != "-" {
				data, err = os.ReadFile(args[1])
			} else {
				data, err = io.ReadAll(cmd.InOrStdin())
			}
			if err != nil {
				return fmt.Errorf("reading input: %w", err)
			}
			return run(cmd, func(ctx context.Context, f storage.Facade) error {
				return f.Write(ctx, args[0], data, encrypt)
			})
		},
	}
	cmd.Flags().StringVar(&keyFile, "key-file", "", "encrypt with the hex-encoded AES-256 key in this file")
	return cmd
}

func newListCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:     "ls [PREFIX]",
		Aliases: []string{"list"},
		Short:   "List every key under PREFIX",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}
			return run(cmd, func(ctx context.Context, f storage.Facade) error {
				keys, err := f.List(ctx, prefix)
				if err != nil {
					return err
				}
				return printLines(cmd.OutOrStdout(), keys)
			})
		},
	}
}

func newVersionsCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "versions KEY",
		Short: "List the version ids of an object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, f storage.Facade) error {
				versions, err := f.ListVersions(ctx, args[0])
				if err != nil {
					return err
				}
				return printLines(cmd.OutOrStdout(), versions)
			})
		},
	}
}

func printLines(w io.Writer, lines []string) error {
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

func newRemoveCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:     "rm KEY...",
		Aliases: []string{"delete"},
		Short:   "Delete objects; absent keys are not an error",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, f storage.Facade) error {
				var result *multierror.Error
				for _, key := range args {
					if err := f.Delete(ctx, key); err != nil {
						result = multierror.Append(result, err)
					}
				}
				return result.ErrorOrNil()
			})
		},
	}
}

func newMoveCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "mv FROM TO",
		Short: "Move an object within the store",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, f storage.Facade) error {
				err := f.Move(ctx, args[0], args[1])
				if storage.IsPartialMove(err) {
					return fmt.Errorf("%w (both %s and %s now exist)", err, args[0], args[1])
				}
				return err
			})
		},
	}
}

func newCopyCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "cp FROM TO",
		Short: "Copy an object within the store, overwriting TO",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, f storage.Facade) error {
				return f.Copy(ctx, args[0], args[1])
			})
		},
	}
}

func newStatCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "stat KEY",
		Short: "Show an object's metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, f storage.Facade) error {
				md, err := f.Stat(ctx, args[0])
				if err != nil {
					return err
				}
				return printMetadata(cmd.OutOrStdout(), md)
			})
		},
	}
}

func printMetadata(w io.Writer, md *storage.ObjectMetadata) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	rows := [][2]string{
		{"Key", md.Key},
		{"Size", fmt.Sprint(md.Size)},
		{"LastModified", md.LastModified.Format(time.RFC3339)},
		{"ContentType", md.ContentType},
		{"ETag", md.ETag},
		{"VersionID", md.VersionID},
		{"StorageClass", md.StorageClass},
	}
	for _, r := range rows {
		if r[1] != "" {
			_, _ = fmt.Fprintf(tw, "%s:\t%s\n", r[0], r[1])
		}
	}

	keys := make([]string, 0, len(md.UserMetadata))
	for k := range md.UserMetadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_, _ = fmt.Fprintf(tw, "Metadata[%s]:\t%s\n", k, md.UserMetadata[k])
	}
	return tw.Flush()
}

func newExistsCommand(run runner) *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "exists KEY",
		Short: "Print whether an object exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, func(ctx context.Context, f storage.Facade) error {
				var ok bool
				if strict {
					var err error
					if ok, err = storage.ProbeExists(ctx, f, args[0]); err != nil {
						return err
					}
				} else {
					ok = f.Exists(ctx, args[0])
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), ok)
				return err
			})
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "fail instead of printing false when the store cannot be queried")
	return cmd
}

func newDescribeCommand(run runner) *cobra.Command {
	return &cobra.Command{
		Use:   "describe",
		Short: "Show the store's identity",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, func(_ context.Context, f storage.Facade) error {
				md := f.Describe()
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				_, _ = fmt.Fprintf(tw, "Name:\t%s\n", md.Name)
				_, _ = fmt.Fprintf(tw, "Description:\t%s\n", md.Description)
				_, _ = fmt.Fprintf(tw, "Provider:\t%s\n", md.Identity.Provider())
				_, _ = fmt.Fprintf(tw, "Identity:\t%s\n", md.Identity)
				return tw.Flush()
			})
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.Get())
			return err
		},
	}
}
