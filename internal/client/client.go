// Package client is a Go SDK for the AutoCare backend.
//
// It mirrors the shape of hosted backend SDKs: an auth client that owns the
// current session and publishes session-change events, plus one service per
// REST table.
//
//	c := client.New("http://127.0.0.1:8080", "anon-key")
//	resp, err := c.Auth.SignInWithPassword(ctx, "ana@example.com", "secret123")
//	profile, err := c.Profiles.Get(ctx, resp.User.ID)
package client

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	// DefaultTimeout is the default HTTP client timeout.
	DefaultTimeout = 30 * time.Second
	// DefaultRefreshMargin is how long before expiry the access token is refreshed.
	DefaultRefreshMargin = time.Minute
)

type Client struct {
	apiKey        string
	baseURL       string
	httpClient    *http.Client
	dialer        *websocket.Dialer
	log           zerolog.Logger
	refreshMargin time.Duration

	Auth         *AuthClient
	Profiles     *ProfilesService
	Vehicles     *VehiclesService
	Appointments *AppointmentsService
	Expenses     *ExpensesService
	Services     *CatalogService
	Diagnostics  *DiagnosticsService
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if c.httpClient == nil {
			c.httpClient = &http.Client{}
		}
		c.httpClient.Timeout = timeout
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) {
		c.log = log
	}
}

// WithDialer sets the websocket dialer used for the session event stream.
func WithDialer(dialer *websocket.Dialer) Option {
	return func(c *Client) {
		c.dialer = dialer
	}
}

// WithRefreshMargin sets how long before expiry the session is refreshed.
func WithRefreshMargin(margin time.Duration) Option {
	return func(c *Client) {
		if margin > 0 {
			c.refreshMargin = margin
		}
	}
}

// New creates a client for the backend at baseURL. apiKey is the public
// (anonymous) key sent with every request.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		dialer:        websocket.DefaultDialer,
		log:           zerolog.Nop(),
		refreshMargin: DefaultRefreshMargin,
	}

	for _, opt := range opts {
		opt(c)
	}

	c.Auth = newAuthClient(c)
	c.Profiles = &ProfilesService{client: c}
	c.Vehicles = &VehiclesService{client: c}
	c.Appointments = &AppointmentsService{client: c}
	c.Expenses = &ExpensesService{client: c}
	c.Services = &CatalogService{client: c}
	c.Diagnostics = &DiagnosticsService{client: c}

	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Close stops background session work (token refresh, event stream).
func (c *Client) Close() {
	c.Auth.Close()
}
