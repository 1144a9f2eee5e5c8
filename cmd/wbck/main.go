package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"pixelgardenlabs.io/wbck/cmd"
	"pixelgardenlabs.io/wbck/pkg/buildinfo"
	"pixelgardenlabs.io/wbck/pkg/plog"
)

// newRootCmd builds the command. run receives the flags the user explicitly
// set, keyed by flag name, plus the two positional paths.
func newRootCmd(run func(ctx context.Context, flagMap map[string]any) error) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   buildinfo.Name + " [flags] SOURCE TARGET",
		Short: "Incremental hard-link tree backup",
		Long: `wbck mirrors SOURCE into TARGET. Given a previous backup with --ref, every
file whose reference copy is at least as recent as the source is hard linked
instead of copied, so unchanged files cost no extra space. Symlinks are stored
as small "LINK <target>" files.`,
		Version:       buildinfo.Version,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.Flags()
	flags.String("ref", "", "Root of a previous backup to hard link unchanged files from")
	flags.String("ignore-file", "", "Pattern file (default: SOURCE/wbck-ignore.txt if present)")
	flags.Int("workers", 1, "Number of items backed up concurrently (1 = sequential)")
	flags.Int("buffer-size-kb", 256, "Size of the I/O buffer in kilobytes for file copies")
	flags.Bool("verify-content", false, "Compare file content before linking and copy when it differs")
	flags.Bool("dry-run", false, "Show what would be done without making any changes")
	flags.String("log-level", "notice", "Set the logging level: 'debug', 'notice', 'info', 'warn', 'error'")
	flags.Bool("metrics", false, "Log progress and a summary of file counts")
	flags.String("config", "", "YAML configuration file")

	rootCmd.RunE = func(c *cobra.Command, args []string) error {
		flagMap := map[string]any{
			"source": args[0],
			"target": args[1],
		}
		// Only flags the user set override the configuration.
		for _, name := range []string{"ref", "ignore-file", "log-level", "config"} {
			if flags.Changed(name) {
				v, _ := flags.GetString(name)
				flagMap[name] = v
			}
		}
		for _, name := range []string{"workers", "buffer-size-kb"} {
			if flags.Changed(name) {
				v, _ := flags.GetInt(name)
				flagMap[name] = v
			}
		}
		for _, name := range []string{"verify-content", "dry-run", "metrics"} {
			if flags.Changed(name) {
				v, _ := flags.GetBool(name)
				flagMap[name] = v
			}
		}
		return run(c.Context(), flagMap)
	}
	return rootCmd
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(cmd.RunBackup).ExecuteContext(ctx); err != nil {
		plog.Error(buildinfo.Name+" failed", "error", err)
		stop()
		os.Exit(1)
	}
}
