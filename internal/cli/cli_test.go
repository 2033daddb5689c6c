package cli

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autocare/internal/config"
)

func TestValidateLoginForm(t *testing.T) {
	tests := []struct {
		name string
		form LoginForm
		want string
	}{
		{"valid", LoginForm{Email: "ana@example.com", Password: "secret123"}, ""},
		{"missing email", LoginForm{Password: "secret123"}, "email is required"},
		{"bad email", LoginForm{Email: "ana", Password: "secret123"}, "email must be a valid email address"},
		{"short password", LoginForm{Email: "ana@example.com", Password: "short"}, "password must be at least 8 characters"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateForm(tt.form)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestValidateRegisterFormCollectsAllErrors(t *testing.T) {
	err := validateForm(RegisterForm{Email: "ana@example.com", Password: "secret123", ConfirmPassword: "secret124"})
	require.Error(t, err)
	assert.Equal(t, "name is required; passwords do not match", err.Error())

	assert.NoError(t, validateForm(RegisterForm{
		Name:            "Ana",
		Email:           "ana@example.com",
		Password:        "secret123",
		ConfirmPassword: "secret123",
	}))
}

func TestParseBookingTime(t *testing.T) {
	want := time.Date(2026, 11, 3, 9, 30, 0, 0, time.UTC)

	for _, in := range []string{"2026-11-03T09:30:00Z", "2026-11-03 09:30", " 2026-11-03T09:30 "} {
		got, err := parseBookingTime(in, time.UTC)
		require.NoError(t, err, in)
		assert.True(t, want.Equal(got), in)
	}

	_, err := parseBookingTime("next tuesday", time.UTC)
	assert.Error(t, err)
}

func testApp(cfg config.ClientConfig) (*app, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &app{
		out:        out,
		errOut:     &bytes.Buffer{},
		loadConfig: func() (*config.ClientConfig, error) { return &cfg, nil },
	}, out
}

func TestCommandTree(t *testing.T) {
	a, _ := testApp(config.ClientConfig{})
	root := newRootCommand(a)

	for _, path := range [][]string{
		{"register"}, {"login"}, {"whoami"}, {"profile", "update"}, {"logout"},
		{"watch"}, {"vehicles", "list"}, {"vehicles", "add"}, {"book"}, {"diagnose"},
	} {
		cmd, _, err := root.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], cmd.Name())
	}
}

func TestCredentialsFallBackToConfig(t *testing.T) {
	a, _ := testApp(config.ClientConfig{Email: "ana@example.com", Password: "short", LogLevel: "disabled"})
	root := newRootCommand(a)
	root.SetArgs([]string{"login"})

	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Equal(t, "password must be at least 8 characters", err.Error())
	assert.Equal(t, "ana@example.com", a.email)
}

func TestFlagsOverrideConfig(t *testing.T) {
	a, _ := testApp(config.ClientConfig{Email: "ana@example.com", Password: "secret123"})
	root := newRootCommand(a)
	root.SetArgs([]string{"whoami", "--email", "not-an-email"})

	err := root.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Equal(t, "email must be a valid email address", err.Error())
}

func TestLocalChecksRunBeforeSignIn(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"profile", "update"}, "nothing to update"},
		{[]string{"vehicles", "add", "--brand", "Fiat"}, "--brand and --model are required"},
		{[]string{"book", "--service", "OIL"}, "--service and --at are required"},
		{[]string{"book", "--service", "OIL", "--at", "soon"}, `invalid time "soon", use RFC 3339 or YYYY-MM-DD HH:MM`},
		{[]string{"diagnose"}, "--message or --media is required"},
		{[]string{"register", "--name", "Ana", "--confirm-password", "different1"}, "passwords do not match"},
	}
	for _, tt := range tests {
		t.Run(tt.args[0], func(t *testing.T) {
			a, out := testApp(config.ClientConfig{Email: "ana@example.com", Password: "secret123"})
			root := newRootCommand(a)
			root.SetArgs(tt.args)

			err := root.ExecuteContext(context.Background())
			require.Error(t, err)
			assert.Equal(t, tt.want, err.Error())
			assert.Empty(t, out.String())
		})
	}
}
