package session

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// TokenSource supplies the persisted credential. The gate treats it as read-only.
type TokenSource interface {
	Token() (string, bool)
}

// Session is an immutable snapshot of the authenticated caller.
type Session struct {
	Token    string
	Identity string
	Epoch    uint64
}

// Authenticated reports whether the snapshot carries a token.
func (s Session) Authenticated() bool {
	return s.Token != ""
}

// GateConfig describes the dependencies of a Gate.
type GateConfig struct {
	Source TokenSource
	Clock  func() time.Time
	Logger *zap.Logger
}

// Gate is the single owner of session state. Reads are lock-free; writes happen only
// through the login/logout flows and OnUnauthorized.
type Gate struct {
	writeMu sync.Mutex
	current atomic.Pointer[Session]
	source  TokenSource
	clock   func() time.Time
	events  *broadcaster
	logger  *zap.Logger
}

// NewGate constructs a Gate and loads the initial session from the token source.
func NewGate(cfg GateConfig) *Gate {
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gate := &Gate{
		source: cfg.Source,
		clock:  clock,
		events: newBroadcaster(),
		logger: logger,
	}
	gate.current.Store(&Session{})
	gate.Reload()
	return gate
}

// Current returns the session snapshot.
func (g *Gate) Current() Session {
	return *g.current.Load()
}

// Token returns the bearer token when authenticated.
func (g *Gate) Token() (string, bool) {
	snapshot := g.current.Load()
	return snapshot.Token, snapshot.Token != ""
}

// Identity returns the display username derived from the token.
func (g *Gate) Identity() (string, bool) {
	snapshot := g.current.Load()
	return snapshot.Identity, snapshot.Identity != ""
}

// Authenticated reports whether a token is present.
func (g *Gate) Authenticated() bool {
	return g.current.Load().Token != ""
}

// Epoch increments on every session change. Mutations issued under an older epoch
// must not be confirmed.
func (g *Gate) Epoch() uint64 {
	return g.current.Load().Epoch
}

// Subscribe streams session events until ctx is cancelled or cleanup is called.
func (g *Gate) Subscribe(ctx context.Context) (<-chan Event, func()) {
	return g.events.subscribe(ctx)
}

// Reload re-reads the token source, picking up logins and logouts made elsewhere.
func (g *Gate) Reload() Session {
	token := ""
	if g.source != nil {
		if value, ok := g.source.Token(); ok {
			token = strings.TrimSpace(value)
		}
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()

	previous := g.current.Load()
	if token == previous.Token {
		return *previous
	}
	if token == "" {
		return g.replaceLocked(Session{}, EventSignedOut)
	}
	details := inspectToken(token)
	if details.expired(g.clock()) {
		g.logger.Info("stored session token expired",
			zap.Time("expires_at", details.expiresAt))
		if previous.Token == "" {
			return *previous
		}
		return g.replaceLocked(Session{}, EventInvalidated)
	}
	return g.replaceLocked(Session{Token: token, Identity: details.identity}, EventSignedIn)
}

// SignIn installs a token obtained by the external login flow.
func (g *Gate) SignIn(token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrMissingToken
	}
	details := inspectToken(token)
	if details.expired(g.clock()) {
		return Session{}, ErrExpiredToken
	}

	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	return g.replaceLocked(Session{Token: token, Identity: details.identity}, EventSignedIn), nil
}

// SignOut clears the session on explicit logout.
func (g *Gate) SignOut() {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	if g.current.Load().Token == "" {
		return
	}
	g.replaceLocked(Session{}, EventSignedOut)
}

// OnUnauthorized clears the session after the API rejected the credential. It does
// not retry; callers re-request after re-authentication.
func (g *Gate) OnUnauthorized() {
	g.writeMu.Lock()
	defer g.writeMu.Unlock()
	previous := g.current.Load()
	if previous.Token == "" {
		return
	}
	g.logger.Info("session invalidated by api",
		zap.String("identity", previous.Identity))
	g.replaceLocked(Session{}, EventInvalidated)
}

func (g *Gate) replaceLocked(next Session, kind EventKind) Session {
	previous := g.current.Load()
	next.Epoch = previous.Epoch + 1
	g.current.Store(&next)

	identity := next.Identity
	if identity == "" {
		identity = previous.Identity
	}
	g.events.publish(Event{
		Kind:      kind,
		Identity:  identity,
		Epoch:     next.Epoch,
		Timestamp: g.clock().UTC(),
	})
	return next
}
