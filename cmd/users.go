package main

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tracewire/tracewire/internal/model"
)

var (
	userName    string
	userCredits int64
	userAdmin   bool
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage users",
}

var usersCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.Migrate(cmd.Context()); err != nil {
			return err
		}

		u := &model.User{
			ID:        uuid.New().String(),
			Name:      userName,
			Credits:   userCredits,
			IsAdmin:   userAdmin,
			CreatedAt: time.Now().UTC(),
		}
		if err := st.CreateUser(cmd.Context(), u); err != nil {
			return err
		}
		fmt.Println(u.ID)
		return nil
	},
}

func init() {
	usersCreateCmd.Flags().StringVar(&userName, "name", "", "user display name (required)")
	usersCreateCmd.Flags().Int64Var(&userCredits, "credits", 0, "initial credit balance")
	usersCreateCmd.Flags().BoolVar(&userAdmin, "admin", false, "grant admin rights")
	usersCreateCmd.MarkFlagRequired("name") //nolint:errcheck

	usersCmd.AddCommand(usersCreateCmd)
	rootCmd.AddCommand(usersCmd)
}
