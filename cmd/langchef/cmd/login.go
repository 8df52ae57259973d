package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/langchef/langchef/internal/deviceauth"
	"github.com/langchef/langchef/internal/usercode"
)

var loginForce bool

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to LangChef",
	Long: `Start the device authorization flow: the browser opens the
verification page and this command waits until the sign-in completes.`,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().BoolVar(&loginForce, "force", false, "Start a fresh sign-in even when a session exists")
}

// loginPrompt renders the sign-in instructions from client events. The
// client announces a flow with a polling event carrying the user code and
// verification URI, and flags when the browser could not be opened.
func loginPrompt(w io.Writer) func(deviceauth.Event) {
	return func(ev deviceauth.Event) {
		switch ev.State {
		case deviceauth.StatePolling:
			fmt.Fprintf(w, "\nYour verification code: %s\n", usercode.Format(ev.UserCode))
			if ev.ManualEntry {
				fmt.Fprintf(w, "Open %s in a browser and enter the code.\n\n", ev.VerificationURI)
			} else {
				fmt.Fprintf(w, "Visit %s to approve the sign-in.\n\n", ev.VerificationURI)
			}
			fmt.Fprintln(w, "Waiting for approval...")
		}
	}
}

func runLogin(cobraCmd *cobra.Command, args []string) error {
	e, err := newEnv(deviceauth.WithNotify(loginPrompt(os.Stdout)))
	if err != nil {
		return err
	}
	defer e.close()

	if user, ok := e.sessions.Current(); ok && !e.sessions.Expired() && !loginForce {
		fmt.Printf("Already signed in as %s. Use --force to sign in again.\n", user.Username)
		return nil
	}
	if loginForce {
		e.client.Logout()
	}

	ctx := cobraCmd.Context()
	if err := e.client.Login(ctx); err != nil {
		if errors.Is(err, deviceauth.ErrSuperseded) {
			return nil
		}
		return err
	}

	if remaining := e.client.Status().Remaining; remaining > 0 {
		fmt.Printf("The code expires in %s.\n", remaining.Round(time.Second))
	}

	result, err := e.client.Wait(ctx)
	if err != nil {
		return err
	}

	switch result.State {
	case deviceauth.StateSucceeded:
		user, _ := e.sessions.Current()
		fmt.Printf("Signed in as %s (%s).\n", user.Username, user.Email)
		return nil
	default:
		return errors.New(result.Message)
	}
}
