package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mediastash/tagger/internal/output"
	"github.com/mediastash/tagger/internal/store"
	"github.com/mediastash/tagger/internal/tagging"
	"github.com/mediastash/tagger/internal/taxonomy"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui         *output.UI
	dataStore  store.Store
	tagService *tagging.Service

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "tagger",
	Short: "Tagger - taxonomy-constrained tagging for media content",
	Long: `tagger manages a library of media content items and their tags.
Tags live in groups with per-group cardinality bounds; items are tagged
against those bounds and marked complete only once every bound is met.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/tagger/config.yaml)")
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "tagger")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TAGGER")
	viper.AutomaticEnv()

	// Defaults via viper.SetDefault()
	home, _ := os.UserHomeDir()
	defaultDataDir := filepath.Join(home, ".config", "tagger")

	viper.SetDefault("data_dir", defaultDataDir)
	viper.SetDefault("db_path", filepath.Join(defaultDataDir, "tagger.db"))
	viper.SetDefault("taxonomy", filepath.Join(defaultDataDir, "taxonomy.yaml"))
	viper.SetDefault("backup.dir", filepath.Join(defaultDataDir, "backups"))
	viper.SetDefault("backup.remote", "")

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose

	// Store is initialized lazily so config/version commands run
	// without a db.
}

// getStore returns the shared store, initializing it on first call.
// Startup seeds any groups from the taxonomy file that do not exist
// yet; existing groups are never modified here.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	dbPath := viper.GetString("db_path")
	s, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ctx := rootCmd.Context()
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	if path := viper.GetString("taxonomy"); path != "" {
		if _, statErr := os.Stat(path); statErr == nil {
			groups, err := taxonomy.Load(path)
			if err != nil {
				_ = s.Close()
				return nil, fmt.Errorf("load taxonomy: %w", err)
			}
			created, err := taxonomy.Seed(ctx, s, groups)
			if err != nil {
				_ = s.Close()
				return nil, fmt.Errorf("seed taxonomy: %w", err)
			}
			if created > 0 {
				ui.VerboseLog("Seeded %d new tag groups from %s", created, path)
			}
		}
	}

	dataStore = s
	return dataStore, nil
}

// getService returns the shared tagging service, initializing the
// store on first call.
func getService() (*tagging.Service, error) {
	if tagService != nil {
		return tagService, nil
	}
	s, err := getStore()
	if err != nil {
		return nil, err
	}
	tagService = tagging.NewService(s)
	return tagService, nil
}
