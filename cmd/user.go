package cmd

import (
	"fmt"

	userrepo "docshare/internal/user/repository"

	"github.com/spf13/cobra"
)

// NewUserCommand provisions identities. The API itself never creates users.
func NewUserCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage user records",
	}

	var id, email string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				return fmt.Errorf("--id is required")
			}
			db, err := openDatabase(cmd.Context(), opts.Config)
			if err != nil {
				return err
			}
			defer db.Close()

			u, err := userrepo.NewUserRepository(db).Create(cmd.Context(), id, email)
			if err != nil {
				return err
			}
			cmd.Printf("Created user %s\n", u.ID)
			return nil
		},
	}
	create.Flags().StringVar(&id, "id", "", "user id")
	create.Flags().StringVar(&email, "email", "", "user email")

	cmd.AddCommand(create)
	return cmd
}
