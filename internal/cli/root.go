// Package cli implements the autocare command-line client.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"autocare/internal/client"
	"autocare/internal/config"
	"autocare/internal/log"
	"autocare/internal/session"
)

var errLoginFailed = errors.New("login failed, check your email and password")

type app struct {
	out    io.Writer
	errOut io.Writer

	cfg      *config.ClientConfig
	log      zerolog.Logger
	email    string
	password string

	loadConfig func() (*config.ClientConfig, error)
}

// NewRootCommand builds the command tree. Results go to out, logs to errOut.
func NewRootCommand(out, errOut io.Writer) *cobra.Command {
	return newRootCommand(&app{out: out, errOut: errOut, loadConfig: config.LoadClient})
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "autocare",
		Short: "Command-line client for the AutoCare backend",
		Long: `autocare signs in to an AutoCare backend and manages your profile,
vehicles, workshop appointments and diagnostics.

Credentials come from --email/--password or from the
AUTOCARE_CLIENT_EMAIL and AUTOCARE_CLIENT_PASSWORD variables.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}

	root.PersistentFlags().StringVar(&a.email, "email", "", "account email")
	root.PersistentFlags().StringVar(&a.password, "password", "", "account password")

	root.AddCommand(
		a.registerCommand(),
		a.loginCommand(),
		a.whoamiCommand(),
		a.profileCommand(),
		a.logoutCommand(),
		a.watchCommand(),
		a.vehiclesCommand(),
		a.bookCommand(),
		a.diagnoseCommand(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	a.cfg = cfg
	a.log = log.NewCLI(a.errOut, cfg.Environment, cfg.LogLevel)
	if a.email == "" {
		a.email = cfg.Email
	}
	if a.password == "" {
		a.password = cfg.Password
	}
	return nil
}

// workspace is one client plus the session manager driving it.
type workspace struct {
	client  *client.Client
	manager *session.Manager
}

func (w *workspace) Close() {
	w.manager.Close()
	w.client.Close()
}

func (a *app) open(ctx context.Context) (*workspace, error) {
	c := client.New(a.cfg.BaseURL, a.cfg.APIKey,
		client.WithTimeout(a.cfg.Timeout),
		client.WithRefreshMargin(a.cfg.RefreshMargin),
		client.WithLogger(a.log),
	)
	m := session.New(c.Auth, c.Profiles, a.log)
	if err := m.Start(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return &workspace{client: c, manager: m}, nil
}

// signIn opens a workspace and logs in with the configured credentials.
func (a *app) signIn(ctx context.Context) (*workspace, error) {
	form := LoginForm{Email: a.email, Password: a.password}
	if err := validateForm(form); err != nil {
		return nil, err
	}
	w, err := a.open(ctx)
	if err != nil {
		return nil, err
	}
	if !w.manager.Login(ctx, form.Email, form.Password) {
		w.Close()
		return nil, errLoginFailed
	}
	return w, nil
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
