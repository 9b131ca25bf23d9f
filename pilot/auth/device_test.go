package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedReply struct {
	status int
	body   string
}

// fakeIdentityProvider serves a device-code endpoint and a token endpoint
// whose answers are played back from a script. The last reply repeats.
type fakeIdentityProvider struct {
	code   DeviceCode
	script []scriptedReply

	mu         sync.Mutex
	codeCalls  int
	tokenCalls int
	lastForm   map[string]string
	lastAccept string
	codeStatus int
	server     *httptest.Server
}

func newFakeIdentityProvider(t *testing.T, code DeviceCode, script ...scriptedReply) *fakeIdentityProvider {
	p := &fakeIdentityProvider{
		code:       code,
		script:     script,
		codeStatus: http.StatusOK,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/device/code", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		p.mu.Lock()
		p.codeCalls++
		p.lastAccept = r.Header.Get("Accept")
		status := p.codeStatus
		p.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status == http.StatusOK {
			_ = json.NewEncoder(w).Encode(p.code)
		}
	})
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()

		p.mu.Lock()
		idx := p.tokenCalls
		if idx >= len(p.script) {
			idx = len(p.script) - 1
		}
		reply := p.script[idx]
		p.tokenCalls++
		p.lastForm = map[string]string{
			"client_id":   r.PostForm.Get("client_id"),
			"device_code": r.PostForm.Get("device_code"),
			"grant_type":  r.PostForm.Get("grant_type"),
		}
		p.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(reply.status)
		_, _ = w.Write([]byte(reply.body))
	})

	p.server = httptest.NewServer(mux)
	t.Cleanup(p.server.Close)
	return p
}

func (p *fakeIdentityProvider) config() DeviceConfig {
	return DeviceConfig{
		ClientID:      "client-123",
		Scope:         "read:user",
		DeviceCodeURL: p.server.URL + "/device/code",
		TokenURL:      p.server.URL + "/oauth/token",
	}
}

func (p *fakeIdentityProvider) TokenCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tokenCalls
}

func (p *fakeIdentityProvider) LastForm() map[string]string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastForm
}

func (p *fakeIdentityProvider) LastAccept() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastAccept
}

func (p *fakeIdentityProvider) CodeCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.codeCalls
}

func pending() scriptedReply {
	return scriptedReply{status: http.StatusOK, body: `{"error":"authorization_pending"}`}
}

func granted(token string) scriptedReply {
	return scriptedReply{status: http.StatusOK, body: `{"access_token":"` + token + `","token_type":"bearer"}`}
}

// driveClock advances the fake clock one second at a time while a poll
// wait is pending, until the returned stop func is called. Poll intervals
// are whole seconds, so each wait ends exactly on its deadline.
func driveClock(clk *clockwork.FakeClock) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		for clk.BlockUntilContext(ctx, 1) == nil {
			clk.Advance(time.Second)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func TestPollTimesOutAfterFloorOfExpiryOverInterval(t *testing.T) {
	code := DeviceCode{DeviceCode: "dev-1", UserCode: "ABCD-1234", VerificationURI: "https://example.test/device", ExpiresIn: 15, Interval: 5}
	provider := newFakeIdentityProvider(t, code, pending(), pending(), pending(), granted("gho_late"))

	clk := clockwork.NewFakeClockAt(epoch)
	client := NewDeviceClient(provider.config(), provider.server.Client(), clk, zerolog.Nop())

	stop := driveClock(clk)
	defer stop()

	token, err := client.PollForToken(context.Background(), &code)

	require.ErrorIs(t, err, ErrAuthorizationTimedOut)
	assert.Empty(t, token)
	assert.Equal(t, 3, provider.TokenCalls())
	assert.Equal(t, StateTimedOut, client.State())
}

func TestPollWaitsIntervalBeforeEachAttempt(t *testing.T) {
	code := DeviceCode{DeviceCode: "dev-1", ExpiresIn: 900, Interval: 5}
	provider := newFakeIdentityProvider(t, code, pending(), pending(), granted("gho_ok"))

	clk := clockwork.NewFakeClockAt(epoch)
	client := NewDeviceClient(provider.config(), provider.server.Client(), clk, zerolog.Nop())

	stop := driveClock(clk)
	token, err := client.PollForToken(context.Background(), &code)
	stop()

	require.NoError(t, err)
	assert.Equal(t, "gho_ok", token)
	assert.Equal(t, 3, provider.TokenCalls())
	assert.Equal(t, epoch.Add(15*time.Second), clk.Now())
	assert.Equal(t, StateAuthorized, client.State())

	form := provider.LastForm()
	assert.Equal(t, "client-123", form["client_id"])
	assert.Equal(t, "dev-1", form["device_code"])
	assert.Equal(t, DeviceGrantType, form["grant_type"])
}

func TestPollSlowDownWidensInterval(t *testing.T) {
	code := DeviceCode{DeviceCode: "dev-1", ExpiresIn: 20, Interval: 5}
	provider := newFakeIdentityProvider(t, code,
		scriptedReply{status: http.StatusBadRequest, body: `{"error":"slow_down"}`},
		granted("gho_slow"),
	)

	clk := clockwork.NewFakeClockAt(epoch)
	client := NewDeviceClient(provider.config(), provider.server.Client(), clk, zerolog.Nop())

	stop := driveClock(clk)
	token, err := client.PollForToken(context.Background(), &code)
	stop()

	require.NoError(t, err)
	assert.Equal(t, "gho_slow", token)
	// 5s before the first attempt, 10s before the second
	assert.Equal(t, epoch.Add(15*time.Second), clk.Now())
}

func TestPollAcceptsPendingOnNon2xx(t *testing.T) {
	code := DeviceCode{DeviceCode: "dev-1", ExpiresIn: 30, Interval: 5}
	provider := newFakeIdentityProvider(t, code,
		scriptedReply{status: http.StatusBadRequest, body: `{"error":"authorization_pending"}`},
		granted("gho_ok"),
	)

	clk := clockwork.NewFakeClockAt(epoch)
	client := NewDeviceClient(provider.config(), provider.server.Client(), clk, zerolog.Nop())

	stop := driveClock(clk)
	token, err := client.PollForToken(context.Background(), &code)
	stop()

	require.NoError(t, err)
	assert.Equal(t, "gho_ok", token)
}

func TestPollTerminalErrors(t *testing.T) {
	tests := []struct {
		name  string
		reply scriptedReply
		want  error
		state FlowState
	}{
		{
			name:  "access denied",
			reply: scriptedReply{status: http.StatusBadRequest, body: `{"error":"access_denied","error_description":"user said no"}`},
			want:  ErrAuthorizationDenied,
			state: StateDenied,
		},
		{
			name:  "expired token",
			reply: scriptedReply{status: http.StatusBadRequest, body: `{"error":"expired_token"}`},
			want:  ErrAuthorizationExpired,
			state: StateExpired,
		},
		{
			name:  "unknown oauth error",
			reply: scriptedReply{status: http.StatusBadRequest, body: `{"error":"incorrect_client_credentials"}`},
			want:  ErrAuthorizationDenied,
			state: StateDenied,
		},
		{
			name:  "server error without oauth body",
			reply: scriptedReply{status: http.StatusInternalServerError, body: `oops`},
			want:  ErrProviderUnavailable,
			state: StateIdle,
		},
		{
			name:  "empty success body",
			reply: scriptedReply{status: http.StatusOK, body: `{}`},
			want:  ErrProviderUnavailable,
			state: StateIdle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code := DeviceCode{DeviceCode: "dev-1", ExpiresIn: 60, Interval: 5}
			provider := newFakeIdentityProvider(t, code, tt.reply)

			clk := clockwork.NewFakeClockAt(epoch)
			client := NewDeviceClient(provider.config(), provider.server.Client(), clk, zerolog.Nop())

			stop := driveClock(clk)
			_, err := client.PollForToken(context.Background(), &code)
			stop()

			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, 1, provider.TokenCalls())
			assert.Equal(t, tt.state, client.State())
		})
	}
}

func TestPollDeniedCarriesDescription(t *testing.T) {
	code := DeviceCode{DeviceCode: "dev-1", ExpiresIn: 60, Interval: 5}
	provider := newFakeIdentityProvider(t, code,
		scriptedReply{status: http.StatusBadRequest, body: `{"error":"access_denied","error_description":"user said no"}`},
	)

	clk := clockwork.NewFakeClockAt(epoch)
	client := NewDeviceClient(provider.config(), provider.server.Client(), clk, zerolog.Nop())

	stop := driveClock(clk)
	_, err := client.PollForToken(context.Background(), &code)
	stop()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "user said no")
}

func TestPollAtLeastOneAttempt(t *testing.T) {
	code := DeviceCode{DeviceCode: "dev-1", ExpiresIn: 3, Interval: 5}
	provider := newFakeIdentityProvider(t, code, pending())

	clk := clockwork.NewFakeClockAt(epoch)
	client := NewDeviceClient(provider.config(), provider.server.Client(), clk, zerolog.Nop())

	stop := driveClock(clk)
	_, err := client.PollForToken(context.Background(), &code)
	stop()

	require.ErrorIs(t, err, ErrAuthorizationTimedOut)
	assert.Equal(t, 1, provider.TokenCalls())
}

func TestPollCancelledDuringWait(t *testing.T) {
	code := DeviceCode{DeviceCode: "dev-1", ExpiresIn: 900, Interval: 5}
	provider := newFakeIdentityProvider(t, code, pending())

	clk := clockwork.NewFakeClockAt(epoch)
	client := NewDeviceClient(provider.config(), provider.server.Client(), clk, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := client.PollForToken(ctx, &code)
		errCh <- err
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer waitCancel()
	require.NoError(t, clk.BlockUntilContext(waitCtx, 1))

	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("poll did not observe cancellation")
	}
	assert.Zero(t, provider.TokenCalls())
}

func TestRequestDeviceCode(t *testing.T) {
	code := DeviceCode{DeviceCode: "dev-1", UserCode: "ABCD-1234", VerificationURI: "https://example.test/device", ExpiresIn: 900, Interval: 5}
	provider := newFakeIdentityProvider(t, code, pending())

	client := NewDeviceClient(provider.config(), provider.server.Client(), clockwork.NewFakeClockAt(epoch), zerolog.Nop())

	got, err := client.RequestDeviceCode(context.Background())

	require.NoError(t, err)
	assert.Equal(t, code, *got)
	assert.Equal(t, "application/json", provider.LastAccept())
	assert.Equal(t, StateCodeRequested, client.State())
}

func TestRequestDeviceCodeProviderDown(t *testing.T) {
	code := DeviceCode{DeviceCode: "dev-1", ExpiresIn: 900, Interval: 5}
	provider := newFakeIdentityProvider(t, code, pending())
	provider.codeStatus = http.StatusServiceUnavailable

	client := NewDeviceClient(provider.config(), provider.server.Client(), clockwork.NewFakeClockAt(epoch), zerolog.Nop())

	_, err := client.RequestDeviceCode(context.Background())
	assert.ErrorIs(t, err, ErrProviderUnavailable)
}

func TestAuthenticatePromptsThenPolls(t *testing.T) {
	code := DeviceCode{DeviceCode: "dev-1", UserCode: "ABCD-1234", VerificationURI: "https://example.test/device", ExpiresIn: 900, Interval: 5}
	provider := newFakeIdentityProvider(t, code, granted("gho_ok"))

	clk := clockwork.NewFakeClockAt(epoch)
	client := NewDeviceClient(provider.config(), provider.server.Client(), clk, zerolog.Nop())

	var shown DeviceCode
	stop := driveClock(clk)
	token, err := client.Authenticate(context.Background(), func(c DeviceCode) { shown = c })
	stop()

	require.NoError(t, err)
	assert.Equal(t, "gho_ok", token)
	assert.Equal(t, "ABCD-1234", shown.UserCode)
	assert.Equal(t, "https://example.test/device", shown.VerificationURI)
}

func TestAuthenticateRejectsConcurrentFlow(t *testing.T) {
	code := DeviceCode{DeviceCode: "dev-1", UserCode: "ABCD-1234", ExpiresIn: 900, Interval: 5}
	provider := newFakeIdentityProvider(t, code, pending())

	clk := clockwork.NewFakeClockAt(epoch)
	client := NewDeviceClient(provider.config(), provider.server.Client(), clk, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	prompted := make(chan struct{})
	var firstErr atomic.Value
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := client.Authenticate(ctx, func(DeviceCode) { close(prompted) })
		firstErr.Store(err)
	}()

	select {
	case <-prompted:
	case <-time.After(5 * time.Second):
		t.Fatal("first flow never prompted")
	}

	_, err := client.Authenticate(context.Background(), nil)
	assert.ErrorIs(t, err, ErrAuthenticationInProgress)
	assert.Equal(t, 1, provider.CodeCalls())

	cancel()
	<-done
	assert.True(t, errors.Is(firstErr.Load().(error), context.Canceled))

	// the guard is released once the first flow ends
	stop := driveClock(clk)
	provider.mu.Lock()
	provider.script = []scriptedReply{granted("gho_second")}
	provider.tokenCalls = 0
	provider.mu.Unlock()
	token, err := client.Authenticate(context.Background(), nil)
	stop()
	require.NoError(t, err)
	assert.Equal(t, "gho_second", token)
}
