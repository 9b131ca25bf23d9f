package auth

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Authenticator connects the device flow, the service-token exchange and the
// session. It remembers the last OAuth token so that a failed exchange can
// be retried without asking the user for a new device code.
type Authenticator struct {
	device    *DeviceClient
	exchanger *Exchanger
	session   *Session
	clock     clockwork.Clock
	logger    zerolog.Logger

	mu         sync.Mutex
	prompt     func(DeviceCode)
	oauthToken string
}

// NewAuthenticator wires the three parts together. A nil clock means the
// real clock.
func NewAuthenticator(device *DeviceClient, exchanger *Exchanger, session *Session, clk clockwork.Clock, logger zerolog.Logger) *Authenticator {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	return &Authenticator{
		device:    device,
		exchanger: exchanger,
		session:   session,
		clock:     clk,
		logger:    logger.With().Str("component", "authenticator").Logger(),
	}
}

// Session exposes the session the authenticator maintains.
func (a *Authenticator) Session() *Session { return a.session }

// SetPrompt sets the callback that shows the user code during Login.
func (a *Authenticator) SetPrompt(prompt func(DeviceCode)) {
	a.mu.Lock()
	a.prompt = prompt
	a.mu.Unlock()
}

// EnsureToken is a no-op while the session is valid. Otherwise it retries
// the exchange with a remembered OAuth token and falls back to a full Login.
func (a *Authenticator) EnsureToken(ctx context.Context) error {
	if a.session.IsValid() {
		return nil
	}

	a.mu.Lock()
	cached := a.oauthToken
	a.mu.Unlock()

	if cached != "" {
		err := a.RetryExchange(ctx)
		if err == nil {
			return nil
		}
		a.logger.Warn().Err(err).Msg("Exchange with cached OAuth token failed, starting device flow")
	}

	return a.Login(ctx)
}

// Login runs the device flow to completion and exchanges the resulting
// OAuth token. When the exchange fails the OAuth token is kept for
// RetryExchange.
func (a *Authenticator) Login(ctx context.Context) error {
	a.mu.Lock()
	prompt := a.prompt
	a.mu.Unlock()

	oauth, err := a.device.Authenticate(ctx, prompt)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.oauthToken = oauth
	a.mu.Unlock()

	return a.exchange(ctx, oauth)
}

// RetryExchange repeats the service-token exchange with the remembered
// OAuth token.
func (a *Authenticator) RetryExchange(ctx context.Context) error {
	a.mu.Lock()
	oauth := a.oauthToken
	a.mu.Unlock()

	if oauth == "" {
		return ErrAuthorizationExpired
	}
	return a.exchange(ctx, oauth)
}

// Logout clears the session and forgets the OAuth token.
func (a *Authenticator) Logout() {
	a.mu.Lock()
	a.oauthToken = ""
	a.mu.Unlock()
	a.session.Clear()
}

func (a *Authenticator) exchange(ctx context.Context, oauth string) error {
	token, err := a.exchanger.Exchange(ctx, oauth)
	if err != nil {
		return err
	}

	var ttl time.Duration
	if !token.ExpiresAt.IsZero() {
		ttl = token.TTL(a.clock.Now())
	}
	a.session.Set(token.Token, ttl)

	a.logger.Info().Time("expires_at", a.session.ExpiresAt()).Msg("Authenticated")
	return nil
}
