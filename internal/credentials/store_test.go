package credentials

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/tally/internal/session"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func mustOpenStore(t *testing.T) (*Store, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := OpenSQLite(dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	store, err := NewStore(StoreConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct store: %v", err)
	}
	return store, db
}

func TestStoreSaveLoadClear(t *testing.T) {
	store, _ := mustOpenStore(t)
	ctx := context.Background()

	if _, ok := store.Token(); ok {
		t.Fatalf("expected empty store")
	}
	if err := store.Save(ctx, " first-token ", "ada"); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	if err := store.Save(ctx, "second-token", "grace"); err != nil {
		t.Fatalf("unexpected overwrite error: %v", err)
	}

	record, ok, err := store.Load(ctx)
	if err != nil || !ok {
		t.Fatalf("expected stored credential, ok=%v err=%v", ok, err)
	}
	if record.Token != "second-token" || record.Username != "grace" || record.Profile != DefaultProfile {
		t.Fatalf("unexpected record %+v", record)
	}

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("unexpected clear error: %v", err)
	}
	if _, ok := store.Token(); ok {
		t.Fatalf("expected cleared store")
	}
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("clearing an empty profile must succeed: %v", err)
	}
}

func TestStoreRejectsBlankToken(t *testing.T) {
	store, _ := mustOpenStore(t)
	if err := store.Save(context.Background(), "  ", "ada"); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected ErrMissingToken, got %v", err)
	}
}

func TestStoreProfilesAreIsolated(t *testing.T) {
	store, db := mustOpenStore(t)
	work, err := NewStore(StoreConfig{Database: db, Profile: "work"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := work.Save(context.Background(), "work-token", ""); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	if _, ok := store.Token(); ok {
		t.Fatalf("default profile must not see the work token")
	}
	if token, ok := work.Token(); !ok || token != "work-token" {
		t.Fatalf("unexpected work token %q", token)
	}
}

func TestStoreFeedsSessionGate(t *testing.T) {
	store, _ := mustOpenStore(t)
	gate := session.NewGate(session.GateConfig{Source: store})
	if gate.Authenticated() {
		t.Fatalf("expected anonymous gate")
	}
	if err := store.Save(context.Background(), "opaque-token", ""); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	if current := gate.Reload(); current.Token != "opaque-token" {
		t.Fatalf("expected reload to pick up the saved token, got %+v", current)
	}
}

func TestForgetOnInvalidationClearsCredential(t *testing.T) {
	store, _ := mustOpenStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := store.Save(ctx, "opaque-token", "ada"); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}
	gate := session.NewGate(session.GateConfig{Source: store})
	events, cleanup := gate.Subscribe(ctx)

	done := make(chan struct{})
	go func() {
		store.ForgetOnInvalidation(ctx, events)
		close(done)
	}()

	gate.OnUnauthorized()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := store.Token(); !ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("credential was not purged after invalidation")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cleanup()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected watcher to stop when the stream closed")
	}
}

func TestApplyMigrationsPurgesBlankTokens(t *testing.T) {
	databasePath := filepath.Join(t.TempDir(), "migration.db")
	db, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Credential{}, &migrationRecord{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	rows := []Credential{
		{Profile: "blank", Token: "   ", SavedAt: time.Now()},
		{Profile: "kept", Token: "token", SavedAt: time.Now()},
	}
	if err := db.Create(&rows).Error; err != nil {
		t.Fatalf("failed to insert rows: %v", err)
	}

	if err := applyMigrations(db, zap.NewNop()); err != nil {
		t.Fatalf("failed to apply migrations: %v", err)
	}

	var count int64
	if err := db.Model(&Credential{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected blank credential to be purged, %d rows remain", count)
	}
	var record migrationRecord
	if err := db.Where("name = ?", migrationPurgeBlankCredentials).Take(&record).Error; err != nil {
		t.Fatalf("expected migration record to be created: %v", err)
	}
	if err := applyMigrations(db, zap.NewNop()); err != nil {
		t.Fatalf("re-applying migrations must be a no-op: %v", err)
	}
}
