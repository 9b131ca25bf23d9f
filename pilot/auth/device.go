package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

const (
	// DeviceGrantType is the RFC 8628 grant type used while polling.
	DeviceGrantType = "urn:ietf:params:oauth:grant-type:device_code"

	defaultPollInterval      = 5 * time.Second
	defaultSlowDownIncrement = 5 * time.Second
	maxResponseBytes         = 1 << 20
)

// FlowState is the position of a DeviceClient in the device-code state machine.
type FlowState string

const (
	StateIdle          FlowState = "idle"
	StateCodeRequested FlowState = "code_requested"
	StatePolling       FlowState = "polling"
	StateAuthorized    FlowState = "authorized"
	StateDenied        FlowState = "denied"
	StateExpired       FlowState = "expired"
	StateTimedOut      FlowState = "timed_out"
)

// DeviceConfig carries the provider-specific endpoints and identifiers.
type DeviceConfig struct {
	ClientID      string
	Scope         string
	DeviceCodeURL string
	TokenURL      string
	GrantType     string // defaults to DeviceGrantType

	// SlowDownIncrement is added to the poll interval on every slow_down.
	SlowDownIncrement time.Duration
}

// DeviceCode is the provider's answer to a device-code request.
type DeviceCode struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"` // seconds
	Interval        int    `json:"interval"`   // seconds
}

// tokenResponse covers both the success and the OAuth error shape of the
// token endpoint.
type tokenResponse struct {
	AccessToken      string `json:"access_token"`
	TokenType        string `json:"token_type"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// DeviceClient runs the OAuth device-authorization handshake. Only one
// authentication cycle may be in flight per client.
type DeviceClient struct {
	cfg        DeviceConfig
	httpClient *http.Client
	clock      clockwork.Clock
	logger     zerolog.Logger

	inFlight atomic.Bool

	mu    sync.RWMutex
	state FlowState
}

// NewDeviceClient creates a device-flow client. A nil httpClient or clock
// falls back to http.DefaultClient and the real clock.
func NewDeviceClient(cfg DeviceConfig, httpClient *http.Client, clk clockwork.Clock, logger zerolog.Logger) *DeviceClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if cfg.GrantType == "" {
		cfg.GrantType = DeviceGrantType
	}
	if cfg.SlowDownIncrement <= 0 {
		cfg.SlowDownIncrement = defaultSlowDownIncrement
	}
	return &DeviceClient{
		cfg:        cfg,
		httpClient: httpClient,
		clock:      clk,
		logger:     logger.With().Str("component", "device_auth").Logger(),
		state:      StateIdle,
	}
}

// State returns the current state of the most recent flow.
func (c *DeviceClient) State() FlowState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *DeviceClient) setState(state FlowState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
}

// Authenticate requests a device code, hands it to prompt so the user can
// authorize on a second device, then polls until the provider answers. It
// returns the OAuth access token. A second call while one is running fails
// fast with ErrAuthenticationInProgress.
func (c *DeviceClient) Authenticate(ctx context.Context, prompt func(DeviceCode)) (string, error) {
	if !c.inFlight.CompareAndSwap(false, true) {
		return "", ErrAuthenticationInProgress
	}
	defer c.inFlight.Store(false)

	code, err := c.RequestDeviceCode(ctx)
	if err != nil {
		return "", err
	}

	if prompt != nil {
		prompt(*code)
	} else {
		c.logger.Warn().
			Str("user_code", code.UserCode).
			Str("verification_uri", code.VerificationURI).
			Msg("Authorize this device to continue")
	}

	return c.PollForToken(ctx, code)
}

// RequestDeviceCode starts a new flow at the provider's device-code endpoint.
func (c *DeviceClient) RequestDeviceCode(ctx context.Context) (*DeviceCode, error) {
	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	if c.cfg.Scope != "" {
		form.Set("scope", c.cfg.Scope)
	}

	status, body, err := c.postForm(ctx, c.cfg.DeviceCodeURL, form)
	if err != nil {
		return nil, fmt.Errorf("%w: device code request: %v", ErrProviderUnavailable, err)
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("%w: device code endpoint returned status %d", ErrProviderUnavailable, status)
	}

	var code DeviceCode
	if err := json.Unmarshal(body, &code); err != nil {
		return nil, fmt.Errorf("%w: decode device code: %v", ErrProviderUnavailable, err)
	}
	if code.DeviceCode == "" {
		return nil, fmt.Errorf("%w: device code missing from response", ErrProviderUnavailable)
	}

	c.setState(StateCodeRequested)
	c.logger.Info().
		Int("interval", code.Interval).
		Int("expires_in", code.ExpiresIn).
		Msg("Device code issued")

	return &code, nil
}

// PollForToken polls the token endpoint at most floor(expiresIn/interval)
// times (at least once), waiting interval before each attempt. slow_down
// widens the interval but does not add attempts.
func (c *DeviceClient) PollForToken(ctx context.Context, code *DeviceCode) (string, error) {
	interval := time.Duration(code.Interval) * time.Second
	if interval <= 0 {
		interval = defaultPollInterval
	}
	attempts := int((time.Duration(code.ExpiresIn) * time.Second) / interval)
	if attempts < 1 {
		attempts = 1
	}

	c.setState(StatePolling)

	for attempt := 1; attempt <= attempts; attempt++ {
		timer := c.clock.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			c.setState(StateIdle)
			return "", ctx.Err()
		case <-timer.Chan():
		}

		resp, err := c.pollOnce(ctx, code.DeviceCode)
		if err != nil {
			if ctx.Err() != nil {
				c.setState(StateIdle)
				return "", ctx.Err()
			}
			c.setState(StateIdle)
			return "", err
		}

		switch {
		case resp.AccessToken != "":
			c.setState(StateAuthorized)
			c.logger.Info().Int("attempt", attempt).Msg("Device authorized")
			return resp.AccessToken, nil

		case resp.Error == "authorization_pending":
			c.logger.Debug().Int("attempt", attempt).Int("max_attempts", attempts).Msg("Authorization pending")

		case resp.Error == "slow_down":
			interval += c.cfg.SlowDownIncrement
			c.logger.Debug().Int("attempt", attempt).Dur("interval", interval).Msg("Provider asked to slow down")

		case resp.Error == "expired_token":
			c.setState(StateExpired)
			return "", fmt.Errorf("%w: %s", ErrAuthorizationExpired, describe(resp))

		default:
			c.setState(StateDenied)
			return "", fmt.Errorf("%w: %s", ErrAuthorizationDenied, describe(resp))
		}
	}

	c.setState(StateTimedOut)
	return "", fmt.Errorf("%w: no authorization after %d attempts", ErrAuthorizationTimedOut, attempts)
}

// pollOnce performs one token request. Any body carrying an OAuth error or an
// access token is returned as-is whatever the status code, because providers
// disagree on whether pending answers are 200 or 400.
func (c *DeviceClient) pollOnce(ctx context.Context, deviceCode string) (*tokenResponse, error) {
	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("device_code", deviceCode)
	form.Set("grant_type", c.cfg.GrantType)

	status, body, err := c.postForm(ctx, c.cfg.TokenURL, form)
	if err != nil {
		return nil, fmt.Errorf("%w: token poll: %v", ErrProviderUnavailable, err)
	}

	var resp tokenResponse
	if jsonErr := json.Unmarshal(body, &resp); jsonErr == nil && (resp.Error != "" || resp.AccessToken != "") {
		return &resp, nil
	}
	if status < 200 || status > 299 {
		return nil, fmt.Errorf("%w: token endpoint returned status %d", ErrProviderUnavailable, status)
	}
	return nil, fmt.Errorf("%w: token response carried neither a token nor an error", ErrProviderUnavailable)
}

func (c *DeviceClient) postForm(ctx context.Context, endpoint string, form url.Values) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return resp.StatusCode, nil, err
	}
	return resp.StatusCode, body, nil
}

func describe(resp *tokenResponse) string {
	if resp.ErrorDescription != "" {
		return resp.ErrorDescription
	}
	return resp.Error
}
