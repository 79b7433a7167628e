package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mediastash/tagger/internal/backup"
)

var backupCmd = &cobra.Command{
	Use:   "backup",
	Short: "Snapshot the database and sync it off-site",
	Long: `Write a consistent snapshot of the database to the backup
directory, then push it to the configured rclone remote. Without a
remote only the local snapshot is written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		mgr := backup.New(s, viper.GetString("backup.dir"), viper.GetString("backup.remote"))
		path, err := mgr.Snapshot(cmd.Context())
		if err != nil {
			return err
		}
		ui.Success("Snapshot written: %s", path)

		if remote := viper.GetString("backup.remote"); remote != "" {
			ui.Info("Syncing to %s ...", remote)
			if err := mgr.Sync(cmd.Context(), path); err != nil {
				return err
			}
			ui.Success("Sync complete")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(backupCmd)
}
