package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var watchOpts checkOptions

var watchCmd = &cobra.Command{
	Use:   "watch FILE...",
	Short: "Re-validate configuration files whenever they change",
	Long: `Validate the files once, then again every time one of them is written or
replaced. Stops on SIGINT or SIGTERM.

Example:
  config-advisor watch src/main/resources/application.yml --profile profile.yml`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		check := func() {
			fmt.Printf("[%s] checking %d file(s)\n", time.Now().Format(time.RFC3339), len(args))
			if _, err := runCheck(ctx, cmd, watchOpts, args, os.Stdout); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
		}
		check()
		if err := watchFiles(ctx, args, check); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to watch files: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("\nShutting down...")
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	addProfileFlags(watchCmd, &watchOpts.profile)
	addOutputFlags(watchCmd, &watchOpts.output, &watchOpts.failOn)
	watchCmd.Flags().StringVar(&watchOpts.format, "format", "", "Input format for every file (properties, yaml, postgresql, jvm)")
	watchCmd.Flags().BoolVar(&watchOpts.snippet, "snippet", false, "Treat the files as a fragment and skip rules about absent keys")
}

// watchFiles calls onChange after any of files is written or created, until
// ctx is done. The parent directories are watched so that editors which
// replace files on save are noticed.
func watchFiles(ctx context.Context, files []string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	watched := make(map[string]bool, len(files))
	dirs := make(map[string]bool)
	for _, file := range files {
		abs, err := filepath.Abs(file)
		if err != nil {
			return err
		}
		watched[abs] = true
		dir := filepath.Dir(abs)
		if dirs[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		dirs[dir] = true
	}

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !watched[filepath.Clean(event.Name)] {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				logrus.WithField("file", event.Name).Debug("file changed")
				onChange()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Watcher error: %v\n", err)
		case <-ctx.Done():
			return nil
		}
	}
}
