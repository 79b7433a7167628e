package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mediastash/tagger/internal/taxonomy"
)

var seedReplace bool

var seedCmd = &cobra.Command{
	Use:   "seed [file]",
	Short: "Seed tag groups from a taxonomy file",
	Long: `Seed tag groups from a taxonomy YAML file.

Without --replace only missing groups are created and existing groups
are left untouched. With --replace existing group bounds and positions
are overwritten to match the file.

Defaults to the configured taxonomy path when no file is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := viper.GetString("taxonomy")
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			return fmt.Errorf("no taxonomy file configured; pass a file or set taxonomy in config")
		}
		return seedRun(cmd.Context(), path, seedReplace)
	},
}

func init() {
	seedCmd.Flags().BoolVar(&seedReplace, "replace", false, "Overwrite bounds of existing groups")
	rootCmd.AddCommand(seedCmd)
}

func seedRun(ctx context.Context, path string, replace bool) error {
	s, err := getStore()
	if err != nil {
		return err
	}

	groups, err := taxonomy.Load(path)
	if err != nil {
		return err
	}

	if replace {
		if err := taxonomy.Import(ctx, s, groups); err != nil {
			return err
		}
		ui.Success("Imported %d tag groups from %s", len(groups), path)
		return nil
	}

	created, err := taxonomy.Seed(ctx, s, groups)
	if err != nil {
		return err
	}
	if created == 0 {
		ui.Info("All %d tag groups already present", len(groups))
	} else {
		ui.Success("Created %d new tag groups (%d total in %s)", created, len(groups), path)
	}
	return nil
}
