package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const (
	testSigningSecret = "secret"
	testUsername      = "trent"
)

type stubSource struct {
	token string
}

func (s *stubSource) Token() (string, bool) {
	return s.token, s.token != ""
}

func mustMintToken(t *testing.T, username string, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"username": username,
		"nbf":      expiresAt.Add(-2 * time.Hour).Unix(),
		"exp":      expiresAt.Unix(),
	})
	signed, err := token.SignedString([]byte(testSigningSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func fixedClock() time.Time {
	return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestGateLoadsIdentityFromSource(t *testing.T) {
	token := mustMintToken(t, testUsername, fixedClock().Add(time.Hour))
	gate := NewGate(GateConfig{Source: &stubSource{token: token}, Clock: fixedClock})

	got, ok := gate.Token()
	if !ok || got != token {
		t.Fatalf("expected token to load from source")
	}
	identity, ok := gate.Identity()
	if !ok || identity != testUsername {
		t.Fatalf("unexpected identity %q", identity)
	}
	if !gate.Authenticated() {
		t.Fatalf("expected authenticated gate")
	}
}

func TestGateTreatsExpiredStoredTokenAsAbsent(t *testing.T) {
	token := mustMintToken(t, testUsername, fixedClock().Add(-time.Minute))
	gate := NewGate(GateConfig{Source: &stubSource{token: token}, Clock: fixedClock})

	if gate.Authenticated() {
		t.Fatalf("expired token must not authenticate")
	}
	if _, ok := gate.Identity(); ok {
		t.Fatalf("expired token must not yield identity")
	}
}

func TestGateAcceptsOpaqueToken(t *testing.T) {
	gate := NewGate(GateConfig{Source: &stubSource{token: "opaque-credential"}, Clock: fixedClock})

	if !gate.Authenticated() {
		t.Fatalf("opaque token should authenticate")
	}
	if _, ok := gate.Identity(); ok {
		t.Fatalf("opaque token carries no identity")
	}
}

func TestOnUnauthorizedClearsSessionAndAdvancesEpoch(t *testing.T) {
	token := mustMintToken(t, testUsername, fixedClock().Add(time.Hour))
	core, logs := observer.New(zapcore.DebugLevel)
	gate := NewGate(GateConfig{
		Source: &stubSource{token: token},
		Clock:  fixedClock,
		Logger: zap.New(core),
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, _ := gate.Subscribe(ctx)
	epochBefore := gate.Epoch()

	gate.OnUnauthorized()

	if gate.Authenticated() {
		t.Fatalf("expected session to be cleared")
	}
	if gate.Epoch() != epochBefore+1 {
		t.Fatalf("expected epoch to advance, got %d after %d", gate.Epoch(), epochBefore)
	}
	select {
	case event := <-events:
		if event.Kind != EventInvalidated || event.Identity != testUsername {
			t.Fatalf("unexpected event %+v", event)
		}
	default:
		t.Fatalf("expected invalidation event")
	}
	if logs.FilterMessage("session invalidated by api").Len() != 1 {
		t.Fatalf("expected invalidation log entry")
	}

	gate.OnUnauthorized()
	if gate.Epoch() != epochBefore+1 {
		t.Fatalf("second invalidation must be a no-op")
	}
}

func TestReloadPicksUpExternalLoginAndLogout(t *testing.T) {
	source := &stubSource{}
	gate := NewGate(GateConfig{Source: source, Clock: fixedClock})
	if gate.Authenticated() {
		t.Fatalf("expected anonymous gate")
	}

	source.token = mustMintToken(t, testUsername, fixedClock().Add(time.Hour))
	if session := gate.Reload(); !session.Authenticated() || session.Identity != testUsername {
		t.Fatalf("expected reload to sign in, got %+v", session)
	}

	source.token = ""
	if session := gate.Reload(); session.Authenticated() {
		t.Fatalf("expected reload to sign out")
	}
}

func TestSignInRejectsEmptyAndExpiredTokens(t *testing.T) {
	gate := NewGate(GateConfig{Clock: fixedClock})

	if _, err := gate.SignIn("  "); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
	expired := mustMintToken(t, testUsername, fixedClock().Add(-time.Second))
	if _, err := gate.SignIn(expired); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}

	valid := mustMintToken(t, testUsername, fixedClock().Add(time.Hour))
	session, err := gate.SignIn(valid)
	if err != nil {
		t.Fatalf("unexpected sign-in error: %v", err)
	}
	if session.Identity != testUsername {
		t.Fatalf("unexpected identity %q", session.Identity)
	}

	gate.SignOut()
	if gate.Authenticated() {
		t.Fatalf("expected sign-out to clear session")
	}
}

func TestSubscribeCleanupClosesStream(t *testing.T) {
	gate := NewGate(GateConfig{Clock: fixedClock})
	events, cleanup := gate.Subscribe(context.Background())
	cleanup()
	cleanup()

	if _, open := <-events; open {
		t.Fatalf("expected closed stream after cleanup")
	}
}
