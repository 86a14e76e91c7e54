package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lborres/folio/core"
)

var signUpInput core.SignUpInput

var signUpCmd = &cobra.Command{
	Use:   "signup",
	Short: "Create an account and sign in",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		input := signUpInput
		input.Password = passwordOrEnv(input.Password)
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return runSignUp(ctx, a, cmd.OutOrStdout(), input)
		})
	},
}

var loginEmail, loginPassword string

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		password := passwordOrEnv(loginPassword)
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return runLogin(ctx, a, cmd.OutOrStdout(), loginEmail, password)
		})
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and forget the cached session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return runLogout(ctx, a, cmd.OutOrStdout())
		})
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the current session",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return runWhoami(a, cmd.OutOrStdout())
		})
	},
}

func init() {
	signUpCmd.Flags().StringVar(&signUpInput.Email, "email", "", "Account email")
	signUpCmd.Flags().StringVar(&signUpInput.Password, "password", "", "Account password (or FOLIO_PASSWORD)")
	signUpCmd.Flags().StringVar(&signUpInput.Username, "username", "", "Public username")

	loginCmd.Flags().StringVar(&loginEmail, "email", "", "Account email")
	loginCmd.Flags().StringVar(&loginPassword, "password", "", "Account password (or FOLIO_PASSWORD)")

	rootCmd.AddCommand(signUpCmd, loginCmd, logoutCmd, whoamiCmd)
}

func passwordOrEnv(password string) string {
	if password != "" {
		return password
	}
	return os.Getenv("FOLIO_PASSWORD")
}

func runSignUp(ctx context.Context, a *app, w io.Writer, input core.SignUpInput) error {
	result, err := a.folio.Sessions.SignUp(ctx, input)
	if err != nil {
		return err
	}

	if IsJSONOutput() {
		view := struct {
			*core.SignUpResult
			ProfileWarning string `json:"profileWarning,omitempty"`
		}{SignUpResult: result}
		if result.ProfileWarning != nil {
			view.ProfileWarning = result.ProfileWarning.Error()
		}
		return writeJSON(w, view)
	}

	if result.User != nil {
		fmt.Fprintf(w, "Created account %s (%s).\n", result.User.Email, result.User.ID)
	}
	if result.Session == nil {
		fmt.Fprintln(w, "Confirm your email, then run folio login.")
	}
	if result.ProfileWarning != nil {
		fmt.Fprintf(w, "Warning: profile not saved: %v\n", result.ProfileWarning)
	}
	return nil
}

func runLogin(ctx context.Context, a *app, w io.Writer, email, password string) error {
	s, err := a.folio.Sessions.Login(ctx, email, password)
	if err != nil {
		return err
	}
	if IsJSONOutput() {
		return writeJSON(w, s)
	}
	fmt.Fprintf(w, "Signed in as %s.\n", s.Email)
	return nil
}

func runLogout(ctx context.Context, a *app, w io.Writer) error {
	if err := a.folio.Sessions.Logout(ctx); err != nil {
		return err
	}
	if IsJSONOutput() {
		return writeJSON(w, newStatusView(a.folio.Sessions.Status(), nil))
	}
	fmt.Fprintln(w, "Signed out.")
	return nil
}

func runWhoami(a *app, w io.Writer) error {
	status := a.folio.Sessions.Status()
	s := a.folio.Sessions.Session()
	if IsJSONOutput() {
		return writeJSON(w, newStatusView(status, s))
	}
	fmt.Fprintln(w, formatStatusHuman(status, s))
	return nil
}
