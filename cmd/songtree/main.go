package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"songtree/internal/app"
	"songtree/internal/catalog"
	"songtree/internal/config"
	"songtree/internal/playlist"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps errors to process exit codes: 1 for unknown trees and
// foreign paths, 2 for storage failures and everything else.
func exitCode(err error) int {
	if errors.Is(err, catalog.ErrNotInTree) {
		return 1
	}
	return 2
}

// newApp reads the config and creates a wired App. The caller must defer
// app.Close(). operation identifies the CLI command being run.
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.New(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

var rootCmd = &cobra.Command{
	Use:           "songtree",
	Short:         "Audio file tree catalog",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// config command

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration and database",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("getting defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("initializing config: %w", err)
		}

		if err := app.InitDatabase(cfg); err != nil {
			return err
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Database: %s\n", cfg.Database.Path)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("getting defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("reading config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:  %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:   %s\n", cfg.LogDir)
		fmt.Printf("Database:  %s (%s)\n", cfg.Database.Path, cfg.Database.Type)
		fmt.Printf("Tree type: %s\n", cfg.Trees.DefaultType)
		return nil
	},
}

// tree command

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Manage registered trees",
}

var treeAddCmd = &cobra.Command{
	Use:   "add PATH",
	Short: "Register a tree for cataloging",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		treeType, _ := cmd.Flags().GetString("type")
		aliases, _ := cmd.Flags().GetStringSlice("alias")

		a, err := newApp("RegisterTree")
		if err != nil {
			return err
		}
		defer a.Close()

		if treeType == "" {
			treeType = a.Config().Trees.DefaultType
		}

		tree, err := catalog.NewTree(args[0], treeType)
		if err != nil {
			return fmt.Errorf("resolving tree path: %w", err)
		}
		for _, alias := range aliases {
			tree.AddAlias(alias)
		}

		if err := a.Service().RegisterTree(tree); err != nil {
			return err
		}

		fmt.Printf("Registered %s\n", tree.String())
		return nil
	},
}

var treeRemoveCmd = &cobra.Command{
	Use:   "remove PATH",
	Short: "Unregister a tree and all of its records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("UnregisterTree")
		if err != nil {
			return err
		}
		defer a.Close()

		tree, err := a.RequireTree(args[0])
		if err != nil {
			return err
		}
		if err := a.Service().UnregisterTree(tree); err != nil {
			return err
		}

		fmt.Printf("Unregistered %s\n", tree.String())
		return nil
	},
}

var treeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered trees",
	RunE: func(cmd *cobra.Command, args []string) error {
		treeType, _ := cmd.Flags().GetString("type")

		a, err := newApp("ListTrees")
		if err != nil {
			return err
		}
		defer a.Close()

		var trees []*catalog.Tree
		if treeType != "" {
			trees, err = a.Service().TreesByType(treeType)
		} else {
			trees, err = a.Service().Trees()
		}
		if err != nil {
			return err
		}

		if len(trees) == 0 {
			fmt.Println("No trees registered.")
			return nil
		}
		for _, t := range trees {
			fmt.Printf("%-12s %s\n", t.Type, t.Path)
			for _, alias := range t.Aliases {
				fmt.Printf("             alias: %s\n", alias)
			}
		}
		return nil
	},
}

// update command

var updateCmd = &cobra.Command{
	Use:   "update PATH",
	Short: "Reconcile a tree against the inventory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		checksums, _ := cmd.Flags().GetBool("checksums")

		a, err := newApp("Update")
		if err != nil {
			return err
		}
		defer a.Close()

		tree, err := a.RequireTree(args[0])
		if err != nil {
			return err
		}

		changes, err := a.Service().Reconcile(tree, checksums)
		if err != nil {
			return err
		}

		fmt.Printf("%d added, %d modified, %d deleted\n",
			len(changes.Added), len(changes.Modified), len(changes.Deleted))
		return nil
	},
}

// events command

var eventsCmd = &cobra.Command{
	Use:   "events PATH",
	Short: "Show a tree's change history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Events")
		if err != nil {
			return err
		}
		defer a.Close()

		tree, err := a.RequireTree(args[0])
		if err != nil {
			return err
		}

		var since *int64
		if cmd.Flags().Changed("since") {
			v, _ := cmd.Flags().GetInt64("since")
			since = &v
		}

		events, err := a.Service().Events(tree, since)
		if err != nil {
			return err
		}

		for _, ev := range events {
			fmt.Printf("%d\t%-9s\t%s\n", ev.RecordedAt, ev.Kind, ev.Path)
		}
		return nil
	},
}

// cleanup command

var cleanupCmd = &cobra.Command{
	Use:   "cleanup PATH",
	Short: "Purge records flagged deleted",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Cleanup")
		if err != nil {
			return err
		}
		defer a.Close()

		tree, err := a.RequireTree(args[0])
		if err != nil {
			return err
		}

		purged, err := a.Service().Cleanup(tree)
		if err != nil {
			return err
		}

		fmt.Printf("Purged %d record(s)\n", purged)
		return nil
	},
}

// checksum command

var checksumCmd = &cobra.Command{
	Use:   "checksum PATH",
	Short: "Backfill content checksums for a tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")

		a, err := newApp("UpdateChecksums")
		if err != nil {
			return err
		}
		defer a.Close()

		tree, err := a.RequireTree(args[0])
		if err != nil {
			return err
		}

		count, err := a.Service().UpdateChecksums(tree, force)
		if err != nil {
			return err
		}

		fmt.Printf("Updated %d checksum(s)\n", count)
		return nil
	},
}

// file command

var fileCmd = &cobra.Command{
	Use:   "file PATH",
	Short: "Describe a cataloged file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("Describe")
		if err != nil {
			return err
		}
		defer a.Close()

		abs, err := filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		info, err := a.Service().Describe(abs)
		if err != nil {
			return err
		}

		fmt.Printf("Tree:     %s\n", info.Tree.String())
		fmt.Printf("Path:     %s\n", info.RelPath)
		if info.Codec != "" {
			fmt.Printf("Codec:    %s\n", info.Codec)
		}
		if info.Record == nil {
			fmt.Println("Status:   not in inventory")
			return nil
		}
		fmt.Printf("Mtime:    %d\n", info.Record.Mtime)
		if info.Record.Checksum != "" {
			fmt.Printf("Checksum: %s\n", info.Record.Checksum)
		}
		if info.Record.Deleted {
			fmt.Println("Status:   deleted")
		}
		return nil
	},
}

// codec command

var codecCmd = &cobra.Command{
	Use:   "codec",
	Short: "Inspect the codec registry",
}

var codecListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered codecs",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListCodecs")
		if err != nil {
			return err
		}
		defer a.Close()

		codecs, err := a.Codecs().Codecs()
		if err != nil {
			return err
		}
		for _, c := range codecs {
			fmt.Printf("%-8s %-40s %s\n", c.Name, c.Description, strings.Join(c.Extensions, ","))
		}
		return nil
	},
}

var codecMatchCmd = &cobra.Command{
	Use:   "match FILE",
	Short: "Show the codec matching a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("MatchCodec")
		if err != nil {
			return err
		}
		defer a.Close()

		c, err := a.Codecs().Lookup(args[0])
		if err != nil {
			return err
		}
		if c == nil {
			fmt.Println("No codec matches.")
			return nil
		}
		fmt.Printf("%s: %s\n", c.Name, c.Description)
		for _, enc := range c.Encoders {
			fmt.Printf("  encoder: %s\n", enc)
		}
		for _, dec := range c.Decoders {
			fmt.Printf("  decoder: %s\n", dec)
		}
		return nil
	},
}

// playlist command

var playlistCmd = &cobra.Command{
	Use:   "playlist",
	Short: "Inspect m3u playlists",
}

var playlistShowCmd = &cobra.Command{
	Use:   "show FILE",
	Short: "Show a playlist's tracks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pl, err := playlist.Load(args[0])
		if err != nil {
			return err
		}
		for _, track := range pl.Tracks {
			fmt.Println(track)
		}
		return nil
	},
}

var playlistListCmd = &cobra.Command{
	Use:   "list DIR",
	Short: "List playlists under a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := playlist.Discover(args[0])
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Println(p)
		}
		return nil
	},
}

// watch command

var watchCmd = &cobra.Command{
	Use:   "watch PATH",
	Short: "Reconcile a tree continuously as it changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		checksums, _ := cmd.Flags().GetBool("checksums")

		a, err := newApp("Watch")
		if err != nil {
			return err
		}
		defer a.Close()

		tree, err := a.RequireTree(args[0])
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("Watching %s (interrupt to stop)\n", tree.Path)
		if err := a.WatchTree(ctx, tree, checksums); err != nil && !errors.Is(err, ctx.Err()) {
			return err
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd, configListCmd)

	treeAddCmd.Flags().String("type", "", "tree type tag (default from config)")
	treeAddCmd.Flags().StringSlice("alias", nil, "alternate path for this tree (repeatable)")
	treeListCmd.Flags().String("type", "", "only list trees of this type")
	treeCmd.AddCommand(treeAddCmd, treeRemoveCmd, treeListCmd)

	updateCmd.Flags().Bool("checksums", false, "compute checksums for changed files")
	eventsCmd.Flags().Int64("since", 0, "only events at or after this unix timestamp")
	checksumCmd.Flags().Bool("force", false, "recompute all checksums")
	watchCmd.Flags().Bool("checksums", false, "compute checksums for changed files")

	codecCmd.AddCommand(codecListCmd, codecMatchCmd)
	playlistCmd.AddCommand(playlistShowCmd, playlistListCmd)

	rootCmd.AddCommand(configCmd, treeCmd, updateCmd, eventsCmd, cleanupCmd,
		checksumCmd, fileCmd, codecCmd, playlistCmd, watchCmd)
}
