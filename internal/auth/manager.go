// Package auth turns a long-lived refresh credential into short-lived bearer
// tokens and keeps them valid across calls.
package auth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tansive/flightctl-mcp/internal/common/apperrors"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultMargin is how long before expiry a token stops being handed out.
	DefaultMargin = 30 * time.Second
	// DefaultLifetime applies when the issuer reports no expiry at all.
	DefaultLifetime = 3600 * time.Second

	refreshKey     = "refresh"
	maxBodyExcerpt = 512
)

// State reports whether the manager currently holds a usable credential.
type State int

const (
	Unauthenticated State = iota
	Authenticated
)

func (s State) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// Options configures a Manager.
type Options struct {
	TokenURL     string
	ClientID     string
	RefreshToken string
	// HTTPClient carries the TLS policy shared with the backend transport.
	HTTPClient *http.Client
	Margin     time.Duration
	// OnRotate is called with the new refresh token when the issuer rotates it.
	OnRotate func(refreshToken string)
	Logger   *zerolog.Logger
	Now      func() time.Time
}

// Manager owns the session credential. It is safe for concurrent use; at most
// one token exchange is in flight at any time and every waiter shares its result.
type Manager struct {
	tokenURL   string
	clientID   string
	httpClient *http.Client
	margin     time.Duration
	onRotate   func(string)
	logger     zerolog.Logger
	now        func() time.Time

	group singleflight.Group

	mu           sync.RWMutex
	token        *oauth2.Token
	refreshToken string
	generation   uint64
	state        State
}

// NewManager validates opts and returns a Manager in the Unauthenticated state.
func NewManager(opts Options) (*Manager, error) {
	if opts.TokenURL == "" {
		return nil, ErrInvalidOptions.Msg("token URL is required")
	}
	if opts.RefreshToken == "" {
		return nil, ErrInvalidOptions.Msg("refresh token is required")
	}
	m := &Manager{
		tokenURL:     opts.TokenURL,
		clientID:     opts.ClientID,
		httpClient:   opts.HTTPClient,
		margin:       opts.Margin,
		onRotate:     opts.OnRotate,
		logger:       log.Logger,
		now:          opts.Now,
		refreshToken: opts.RefreshToken,
	}
	if opts.Logger != nil {
		m.logger = *opts.Logger
	}
	if m.httpClient == nil {
		m.httpClient = http.DefaultClient
	}
	if m.margin <= 0 {
		m.margin = DefaultMargin
	}
	if m.now == nil {
		m.now = time.Now
	}
	return m, nil
}

// Token returns a bearer token that stays valid for at least the margin,
// refreshing first when needed.
func (m *Manager) Token(ctx context.Context) (string, error) {
	m.mu.RLock()
	tok, gen := m.token, m.generation
	m.mu.RUnlock()
	if m.usable(tok) {
		return tok.AccessToken, nil
	}
	return m.refresh(ctx, gen, false)
}

// ForceRefresh exchanges the refresh token regardless of the cached expiry.
// rejected is the access token the server refused; when the cache already
// holds a different usable token it is returned without an exchange. An empty
// rejected always exchanges, unless an exchange completed after the caller's
// last observation, in which case its result is shared.
func (m *Manager) ForceRefresh(ctx context.Context, rejected string) (string, error) {
	m.mu.RLock()
	tok, gen := m.token, m.generation
	m.mu.RUnlock()
	if rejected != "" && m.usable(tok) && tok.AccessToken != rejected {
		m.logger.Debug().Str("event", "token_refresh_skipped").Msg("rejected token already replaced")
		return tok.AccessToken, nil
	}
	return m.refresh(ctx, gen, true)
}

// State returns the current credential state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Expiry returns the expiry of the cached token, or the zero time.
func (m *Manager) Expiry() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.token == nil {
		return time.Time{}
	}
	return m.token.Expiry
}

func (m *Manager) usable(tok *oauth2.Token) bool {
	return tok != nil && tok.AccessToken != "" && m.now().Add(m.margin).Before(tok.Expiry)
}

func (m *Manager) refresh(ctx context.Context, seen uint64, force bool) (string, error) {
	ch := m.group.DoChan(refreshKey, func() (any, error) {
		m.mu.RLock()
		cur, gen := m.token, m.generation
		m.mu.RUnlock()
		if gen != seen && cur != nil && (force || m.usable(cur)) {
			return cur.AccessToken, nil
		}
		// waiters may give up; the shared exchange must not
		return m.exchange(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return "", ErrRefreshAborted.Err(ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (m *Manager) exchange(ctx context.Context) (string, error) {
	m.mu.RLock()
	current := m.refreshToken
	m.mu.RUnlock()

	conf := &oauth2.Config{
		ClientID: m.clientID,
		Endpoint: oauth2.Endpoint{
			TokenURL:  m.tokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
	started := m.now()
	tok, err := conf.TokenSource(ctx, &oauth2.Token{RefreshToken: current}).Token()
	if err != nil {
		return "", m.fail(err)
	}

	tok.Expiry = m.expiry(tok, started)
	rotated := tok.RefreshToken != "" && tok.RefreshToken != current

	m.mu.Lock()
	m.token = tok
	if rotated {
		m.refreshToken = tok.RefreshToken
	}
	m.generation++
	m.state = Authenticated
	m.mu.Unlock()

	m.logger.Info().Str("event", "token_refresh").
		Time("expires_at", tok.Expiry).
		Msg("access token refreshed")
	if rotated {
		m.logger.Info().Str("event", "token_rotated").Msg("refresh token rotated by issuer")
		if m.onRotate != nil {
			m.onRotate(tok.RefreshToken)
		}
	}
	return tok.AccessToken, nil
}

// expiry prefers expires_in, then the exp claim of a JWT access token, then
// DefaultLifetime.
func (m *Manager) expiry(tok *oauth2.Token, issued time.Time) time.Time {
	if tok.ExpiresIn > 0 {
		return issued.Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok.AccessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time
		}
	}
	return issued.Add(DefaultLifetime)
}

func (m *Manager) fail(err error) error {
	m.mu.Lock()
	m.token = nil
	m.state = Unauthenticated
	m.mu.Unlock()

	appErr := ErrTokenExchange.Err(err)
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		if re.Response != nil {
			appErr = appErr.SetStatusCode(re.Response.StatusCode)
		}
		msg := re.ErrorDescription
		if msg == "" {
			msg = re.ErrorCode
		}
		if msg == "" {
			msg = apperrors.Excerpt(re.Body, maxBodyExcerpt)
		}
		appErr = appErr.Msg("token exchange rejected: "+msg).With(apperrors.FieldBody, apperrors.Excerpt(re.Body, maxBodyExcerpt))
	} else {
		appErr = appErr.Msg("token exchange failed: " + err.Error())
	}

	m.logger.Error().Str("event", "token_refresh_failed").
		Int("status_code", appErr.StatusCode()).
		Str("error", appErr.Error()).
		Msg("token exchange failed")
	return appErr
}
