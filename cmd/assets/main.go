// Command assets publishes the assets of a deployment manifest.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	assets "github.com/input-output-hk/catalyst-forge-libs/assets"
	"github.com/input-output-hk/catalyst-forge-libs/assets/awsapi"
	"github.com/input-output-hk/catalyst-forge-libs/assets/manifest"
	"github.com/input-output-hk/catalyst-forge-libs/assets/progress"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootFlags struct {
	path     string
	profile  string
	verbose  bool
	parallel bool
}

func newRootCommand() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "assets",
		Short:         "Publish the assets of a deployment manifest",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.path, "path", "p", "assets.json",
		"manifest file or directory containing one")
	root.PersistentFlags().StringVar(&flags.profile, "profile", "",
		"AWS configuration profile to use")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false,
		"emit debug-level progress")

	publish := &cobra.Command{
		Use:   "publish [ASSET[:DEST]...]",
		Short: "Build and publish assets, optionally limited to a selection",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(cmd, flags, args)
		},
	}
	publish.Flags().BoolVar(&flags.parallel, "parallel", false,
		"publish assets concurrently")

	ls := &cobra.Command{
		Use:   "ls",
		Short: "List the entries of the manifest",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLs(cmd, flags)
		},
	}

	root.AddCommand(publish, ls)
	return root
}

func runPublish(cmd *cobra.Command, flags *rootFlags, args []string) error {
	logger := newLogger(flags.verbose)

	m, err := manifest.FromPath(flags.path)
	if err != nil {
		return err
	}

	patterns := make([]manifest.DestinationPattern, 0, len(args))
	for _, arg := range args {
		patterns = append(patterns, manifest.ParseDestinationPattern(arg))
	}
	m = m.Select(patterns)

	var clientOpts []awsapi.DefaultClientOption
	if flags.profile != "" {
		clientOpts = append(clientOpts, awsapi.WithProfile(flags.profile))
	}

	publisher, err := assets.NewAssetPublisher(m, awsapi.NewDefaultClient(clientOpts...),
		assets.WithParallel(flags.parallel),
		assets.WithProgressListener(&consoleListener{logger: logger}),
	)
	if err != nil {
		return err
	}

	if err := publisher.Publish(cmd.Context()); err != nil {
		return err
	}
	logger.Info("done", "assets", m.Len())
	return nil
}

func runLs(cmd *cobra.Command, flags *rootFlags) error {
	m, err := manifest.FromPath(flags.path)
	if err != nil {
		return err
	}
	for _, entry := range m.Entries() {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", entry.ID, entry.Kind)
	}
	return nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// consoleListener renders progress events as log lines.
type consoleListener struct {
	logger *slog.Logger
}

var _ progress.Listener = (*consoleListener)(nil)

func (l *consoleListener) OnPublishEvent(eventType progress.EventType, event progress.Event) {
	attrs := []any{"percent", event.PercentComplete}
	if event.CurrentAsset != nil {
		attrs = append(attrs, "asset", event.CurrentAsset.ID.String())
	}

	switch eventType {
	case progress.EventFail:
		l.logger.Error(event.Message, attrs...)
	case progress.EventDebug, progress.EventShellData,
		progress.EventShellOpen, progress.EventShellClose:
		l.logger.Debug(event.Message, attrs...)
	default:
		l.logger.Info(event.Message, append(attrs, "event", string(eventType))...)
	}
}
