package cli

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/lborres/folio/core"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Show or change the signed-in user's profile",
}

var profileShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the profile",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return runProfileShow(ctx, a, cmd.OutOrStdout())
		})
	},
}

var profileFlags struct {
	username, phone, birthDate, description, location, avatarURL string
}

var profileUpdateCmd = &cobra.Command{
	Use:   "update",
	Short: "Change profile fields; only the flags given are written",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		update, err := profileUpdateFromFlags(cmd)
		if err != nil {
			return err
		}
		return withApp(cmd, func(ctx context.Context, a *app) error {
			return runProfileUpdate(ctx, a, cmd.OutOrStdout(), update)
		})
	},
}

func init() {
	f := profileUpdateCmd.Flags()
	f.StringVar(&profileFlags.username, "username", "", "Public username")
	f.StringVar(&profileFlags.phone, "phone", "", "Phone number")
	f.StringVar(&profileFlags.birthDate, "birth-date", "", "Birth date (YYYY-MM-DD)")
	f.StringVar(&profileFlags.description, "description", "", "About you")
	f.StringVar(&profileFlags.location, "location", "", "Location")
	f.StringVar(&profileFlags.avatarURL, "avatar-url", "", "Avatar image URL")

	profileCmd.AddCommand(profileShowCmd, profileUpdateCmd)
	rootCmd.AddCommand(profileCmd)
}

// profileUpdateFromFlags builds an update from the flags set on cmd.
// A flag given as an empty string clears the field.
func profileUpdateFromFlags(cmd *cobra.Command) (core.ProfileUpdate, error) {
	var update core.ProfileUpdate
	changed := cmd.Flags().Changed

	if changed("username") {
		update.Username = &profileFlags.username
	}
	if changed("phone") {
		update.Phone = &profileFlags.phone
	}
	if changed("birth-date") {
		d, err := time.Parse(dateLayout, profileFlags.birthDate)
		if err != nil {
			return core.ProfileUpdate{}, fmt.Errorf("birth-date %q: want YYYY-MM-DD", profileFlags.birthDate)
		}
		update.BirthDate = &d
	}
	if changed("description") {
		update.Description = &profileFlags.description
	}
	if changed("location") {
		update.Location = &profileFlags.location
	}
	if changed("avatar-url") {
		update.AvatarURL = &profileFlags.avatarURL
	}
	return update, nil
}

func runProfileShow(ctx context.Context, a *app, w io.Writer) error {
	p, err := a.folio.Sessions.Profile(ctx)
	if err != nil {
		return err
	}
	if IsJSONOutput() {
		return writeJSON(w, p)
	}
	fmt.Fprintln(w, formatProfileHuman(p))
	return nil
}

func runProfileUpdate(ctx context.Context, a *app, w io.Writer, update core.ProfileUpdate) error {
	p, err := a.folio.Sessions.UpdateProfile(ctx, update)
	if err != nil {
		return err
	}
	if IsJSONOutput() {
		return writeJSON(w, p)
	}
	fmt.Fprintln(w, formatProfileHuman(p))
	return nil
}
