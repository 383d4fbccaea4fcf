package cmd

import (
	"github.com/spf13/cobra"
)

func NewMigrateCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create the users, documents and collaborator tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(cmd.Context(), opts.Config)
			if err != nil {
				return err
			}
			defer db.Close()
			cmd.Printf("Schema applied (%s)\n", opts.Config.DBDriver)
			return nil
		},
	}
}
