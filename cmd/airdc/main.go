// Command airdc is the core's CLI entrypoint: start the daemon, or issue
// one-shot share/queue management commands against a running instance's
// on-disk state, the way the wider rain tooling and dittofs's cmd/ both
// build a thin cobra surface over their library packages.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/airdcpp-go/core/internal/config"
	"github.com/airdcpp-go/core/internal/core"
	"github.com/airdcpp-go/core/internal/logger"
	"github.com/airdcpp-go/core/internal/queue"
	"github.com/airdcpp-go/core/internal/share"
	"github.com/airdcpp-go/core/internal/tth"
	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "airdc",
		Short: "AirDC++ core daemon and management CLI",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "~/.airdc/config.yaml", "path to the YAML config file")
	root.PersistentFlags().Bool("debug", false, "enable debug logging")

	root.AddCommand(serveCmd(), shareCmd(), queueCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	logger.SetLevel(debug)
	return config.LoadConfig(configPath)
}

// fileHasher hashes real files on disk for the share manager's refresh
// walker; the default, non-test HashSource implementation.
type fileHasher struct{}

func (fileHasher) GetFileInfo(lowerPath, realPath string) (share.HashedFile, error) {
	f, err := os.Open(realPath)
	if err != nil {
		return share.HashedFile{}, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return share.HashedFile{}, err
	}
	root, _, err := tth.HashFile(f, info.Size())
	if err != nil {
		return share.HashedFile{}, err
	}
	return share.HashedFile{Size: info.Size(), TTH: root, ModTime: info.ModTime()}, nil
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the core daemon until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			c, err := core.New(cfg, fileHasher{}, nil)
			if err != nil {
				return err
			}
			c.Run(context.Background())
			return nil
		},
	}
}

func shareCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "share", Short: "manage shared directories"}
	cmd.AddCommand(&cobra.Command{
		Use:   "add [path]",
		Short: "add a directory to the default share profile and refresh it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			c, err := core.New(cfg, fileHasher{}, nil)
			if err != nil {
				return err
			}
			defer c.Close()
			return <-c.Share.AddRoot(args[0], []int{share.ProfileDefault})
		},
	})
	return cmd
}

func queueCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "queue", Short: "manage the download queue"}
	cmd.AddCommand(&cobra.Command{
		Use:   "add [target] [size] [tth]",
		Short: "queue a single file for download by its known size and TTH",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			c, err := core.New(cfg, fileHasher{}, nil)
			if err != nil {
				return err
			}
			defer c.Close()

			var size int64
			if _, err := fmt.Sscanf(args[1], "%d", &size); err != nil {
				return fmt.Errorf("invalid size %q: %w", args[1], err)
			}
			t, err := tth.ParseValue(args[2])
			if err != nil {
				return fmt.Errorf("invalid TTH %q: %w", args[2], err)
			}
			_, err = c.Queue.AddFile(args[0], size, t, queue.PriorityNormal)
			return err
		},
	})
	return cmd
}
