package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/langchef/langchef/internal/deviceauth"
	"github.com/langchef/langchef/internal/usercode"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the current session and sign-in state",
	RunE: func(cobraCmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.close()

		if user, ok := e.sessions.Current(); ok {
			if e.sessions.Expired() {
				fmt.Printf("Session for %s has expired. Run `langchef login`.\n", user.Username)
				return nil
			}
			fmt.Printf("Signed in as %s (%s).\n", user.Username, user.Email)
			fmt.Printf("Session expires in %s.\n", e.sessions.TimeUntilExpiry().Round(time.Second))
			return nil
		}

		// A sign-in may still be pending from another run.
		if e.client.Resume() {
			st := e.client.Status()
			if st.State == deviceauth.StatePolling {
				fmt.Printf("Sign-in pending: enter code %s at %s\n", usercode.Format(st.UserCode), st.VerificationURI)
				fmt.Printf("Code expires in %s.\n", st.Remaining.Round(time.Second))
				return nil
			}
		}

		fmt.Println("Not signed in. Run `langchef login`.")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
