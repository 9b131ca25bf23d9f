package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// ExchangeConfig describes the service-token endpoint.
type ExchangeConfig struct {
	URL          string
	Method       string        // defaults to GET
	HeaderScheme string        // defaults to "Bearer"
	DefaultTTL   time.Duration // used when the response carries no expires_at
}

// ServiceToken is the short-lived bearer credential for the chat backend.
type ServiceToken struct {
	Token     string
	ExpiresAt time.Time
}

// TTL returns the remaining lifetime relative to now.
func (t ServiceToken) TTL(now time.Time) time.Duration {
	return t.ExpiresAt.Sub(now)
}

type exchangeResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"` // unix seconds, optional
}

// Exchanger trades an identity-provider access token for a service token.
type Exchanger struct {
	cfg        ExchangeConfig
	httpClient *http.Client
	clock      clockwork.Clock
	logger     zerolog.Logger
}

// NewExchanger creates an Exchanger. Nil httpClient or clock use the defaults.
func NewExchanger(cfg ExchangeConfig, httpClient *http.Client, clk clockwork.Clock, logger zerolog.Logger) *Exchanger {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	if cfg.Method == "" {
		cfg.Method = http.MethodGet
	}
	if cfg.HeaderScheme == "" {
		cfg.HeaderScheme = "Bearer"
	}
	return &Exchanger{
		cfg:        cfg,
		httpClient: httpClient,
		clock:      clk,
		logger:     logger.With().Str("component", "token_exchange").Logger(),
	}
}

// Exchange calls the service-token endpoint with oauthToken in the
// Authorization header. Every failure wraps ErrTokenExchangeFailed.
func (e *Exchanger) Exchange(ctx context.Context, oauthToken string) (ServiceToken, error) {
	req, err := http.NewRequestWithContext(ctx, e.cfg.Method, e.cfg.URL, nil)
	if err != nil {
		return ServiceToken{}, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}
	req.Header.Set("Authorization", e.cfg.HeaderScheme+" "+oauthToken)
	req.Header.Set("Accept", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return ServiceToken{}, fmt.Errorf("%w: %v", ErrTokenExchangeFailed, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return ServiceToken{}, fmt.Errorf("%w: read body: %v", ErrTokenExchangeFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return ServiceToken{}, fmt.Errorf("%w: status %d", ErrTokenExchangeFailed, resp.StatusCode)
	}

	var out exchangeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return ServiceToken{}, fmt.Errorf("%w: decode: %v", ErrTokenExchangeFailed, err)
	}
	if out.Token == "" {
		return ServiceToken{}, fmt.Errorf("%w: empty token", ErrTokenExchangeFailed)
	}

	now := e.clock.Now()
	token := ServiceToken{Token: out.Token}
	switch {
	case out.ExpiresAt > 0:
		token.ExpiresAt = time.Unix(out.ExpiresAt, 0)
		if !token.ExpiresAt.After(now) {
			return ServiceToken{}, fmt.Errorf("%w: token already expired", ErrTokenExchangeFailed)
		}
	case e.cfg.DefaultTTL > 0:
		token.ExpiresAt = now.Add(e.cfg.DefaultTTL)
	}

	e.logger.Debug().Time("expires_at", token.ExpiresAt).Msg("Service token issued")
	return token, nil
}
