package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var refreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the session token",
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.close()

		user, ok := e.sessions.Current()
		if !ok {
			return fmt.Errorf("not signed in, run `langchef login` first")
		}

		if err := e.sessions.Refresh(cobraCmd.Context()); err != nil {
			return fmt.Errorf("refreshing session: %w", err)
		}

		fmt.Printf("Session for %s refreshed, expires in %s.\n",
			user.Username, e.sessions.TimeUntilExpiry().Round(time.Second))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(refreshCmd)
}
