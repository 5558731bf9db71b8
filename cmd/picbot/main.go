package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/NahidaBot/Nahida-Picbot/internal/bot"
	"github.com/NahidaBot/Nahida-Picbot/internal/config"
	"github.com/NahidaBot/Nahida-Picbot/internal/database"
	"github.com/NahidaBot/Nahida-Picbot/internal/pipeline"
	"github.com/NahidaBot/Nahida-Picbot/internal/platform"
	"github.com/NahidaBot/Nahida-Picbot/internal/publish"
	"github.com/NahidaBot/Nahida-Picbot/internal/telegram"
)

var version = "dev"

var (
	verbose    bool
	configPath string
	cfg        *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "picbot",
	Short:   "Artwork channel bot",
	Long:    "Picbot ingests artwork submissions, deduplicates them, and publishes tagged, captioned albums to a channel.",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			log.SetFlags(log.LstdFlags | log.Lshortfile)
		} else {
			log.SetFlags(log.LstdFlags)
		}

		// Skip config loading for init and version
		if cmd.Name() == "init" || cmd.Name() == "version" {
			return nil
		}

		path, err := config.ResolveConfigPath(configPath)
		if err != nil {
			return err
		}
		cfg, err = config.Load(path)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(unmarkCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("picbot", version)
	},
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration in ~/.config/picbot/",
	RunE: func(cmd *cobra.Command, args []string) error {
		target := filepath.Join(config.ConfigDir(), "config.yaml")
		if _, err := os.Stat(target); err == nil {
			fmt.Printf("Config already exists: %s\n", target)
			return nil
		}

		if err := os.MkdirAll(config.ConfigDir(), 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}

		if err := os.WriteFile(target, config.DefaultConfigYAML, 0o644); err != nil {
			return fmt.Errorf("writing config: %w", err)
		}

		fmt.Printf("Created config: %s\n", target)
		fmt.Println("Edit it to set the channel, admins, and source credentials.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database status",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		stats, err := db.GetStats()
		if err != nil {
			return fmt.Errorf("getting stats: %w", err)
		}

		fmt.Printf("Database: %s\n\n", db.Path())
		fmt.Println("Artworks:")
		fmt.Printf("  Works: %d\n", stats.TotalWorks)
		fmt.Printf("  Pages: %d\n", stats.TotalPages)
		fmt.Printf("  Guest pages: %d\n", stats.GuestPages)
		fmt.Printf("  Platforms: %d\n", stats.Platforms)
		fmt.Printf("  Reposts: %d\n", stats.TotalReposts)
		fmt.Printf("\nTag audit rows: %d\n", stats.TagRows)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the bot: poll for submissions and publish artworks",
	RunE: func(cmd *cobra.Command, args []string) error {
		token := cfg.Token()
		if token == "" {
			return fmt.Errorf("bot token not set; export %s", cfg.Bot.TokenEnv)
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		client := telegram.New(cfg.Bot.APIURL, token)
		adapters := platform.NewAdapters(cfg, db)
		runner := pipeline.New(cfg, adapters)
		publisher := publish.New(cfg, client)
		dispatcher := bot.New(cfg, db, client, runner, publisher)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		err = dispatcher.Run(ctx)
		switch {
		case errors.Is(err, bot.ErrRestart):
			fmt.Println("Restart requested, exiting for the supervisor.")
			return nil
		case errors.Is(err, context.Canceled):
			fmt.Println("Stopped.")
			return nil
		default:
			return err
		}
	},
}

var unmarkCmd = &cobra.Command{
	Use:   "unmark [work id]",
	Short: "Remove all stored pages for a work id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		removed, err := db.Unmark(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Removed %d pages for work %s\n", removed, args[0])
		return nil
	},
}

func openDB() (*database.DB, error) {
	dataDir := cfg.GetDataDir()
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	dbPath := filepath.Join(dataDir, "picbot.db")
	return database.Open(dbPath)
}
