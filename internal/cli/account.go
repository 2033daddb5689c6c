package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"autocare/internal/models"
	"autocare/internal/session"
)

func (a *app) registerCommand() *cobra.Command {
	var name, confirm string
	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and its profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if confirm == "" {
				confirm = a.password
			}
			form := RegisterForm{Name: name, Email: a.email, Password: a.password, ConfirmPassword: confirm}
			if err := validateForm(form); err != nil {
				return err
			}

			w, err := a.open(cmd.Context())
			if err != nil {
				return err
			}
			defer w.Close()

			if err := w.manager.Register(cmd.Context(), form.Name, form.Email, form.Password); err != nil {
				return err
			}
			return a.print(w.manager.Profile())
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&confirm, "confirm-password", "", "password confirmation (defaults to --password)")
	return cmd
}

func (a *app) loginCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Check the credentials and print the signed-in profile",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := a.signIn(cmd.Context())
			if err != nil {
				return err
			}
			defer w.Close()
			return a.print(w.manager.Profile())
		},
	}
}

type whoami struct {
	Profile  *models.Profile        `json:"profile"`
	Sessions []models.DeviceSession `json:"sessions"`
}

func (a *app) whoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the profile and the devices signed in to the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := a.signIn(cmd.Context())
			if err != nil {
				return err
			}
			defer w.Close()

			sessions, err := w.client.Auth.Sessions(cmd.Context())
			if err != nil {
				return fmt.Errorf("list sessions: %w", err)
			}
			return a.print(whoami{Profile: w.manager.Profile(), Sessions: sessions})
		},
	}
}

func (a *app) profileCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage your profile",
	}

	values := make(map[string]*string, len(models.ProfileFields))
	update := &cobra.Command{
		Use:     "update",
		Short:   "Change profile fields",
		Example: `  autocare profile update --name "Ana Souza" --phone "+55 11 99999-0000"`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params := map[string]any{}
			for field, v := range values {
				if cmd.Flags().Changed(flagName(field)) {
					params[field] = *v
				}
			}
			u := models.ProfileUpdateFromMap(params)
			if u.Empty() {
				return errors.New("nothing to update")
			}

			w, err := a.signIn(cmd.Context())
			if err != nil {
				return err
			}
			defer w.Close()

			if !w.manager.UpdateUser(cmd.Context(), u) {
				return errors.New("profile update failed")
			}
			return a.print(w.manager.Profile())
		},
	}
	for _, field := range models.ProfileFields {
		values[field] = update.Flags().String(flagName(field), "", "new "+field)
	}

	cmd.AddCommand(update)
	return cmd
}

func flagName(field string) string {
	if field == "avatar_url" {
		return "avatar-url"
	}
	return field
}

func (a *app) logoutCommand() *cobra.Command {
	var local bool
	cmd := &cobra.Command{
		Use:   "logout",
		Short: "Sign out every device (or only this one with --local)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := a.signIn(cmd.Context())
			if err != nil {
				return err
			}
			defer w.Close()

			if local {
				err = w.client.Auth.SignOutScope(cmd.Context(), models.SignOutLocal)
			} else {
				err = w.manager.Logout(cmd.Context())
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(a.out, "signed out")
			return nil
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "end only the session opened by this command")
	return cmd
}

type stateLine struct {
	Phase   session.Phase   `json:"phase"`
	Loading bool            `json:"loading"`
	Profile *models.Profile `json:"profile"`
}

func (a *app) watchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Sign in and stream session state changes until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, err := a.signIn(cmd.Context())
			if err != nil {
				return err
			}
			defer w.Close()

			states, cancel := w.manager.Watch()
			defer cancel()

			for {
				select {
				case <-cmd.Context().Done():
					return nil
				case st, ok := <-states:
					if !ok {
						return nil
					}
					if err := a.print(stateLine{Phase: st.Phase, Loading: st.Loading, Profile: st.Profile}); err != nil {
						return err
					}
				}
			}
		},
	}
}
