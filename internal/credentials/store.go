package credentials

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MarcoPoloResearchLab/tally/internal/session"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("credentials: database dependency required")
	// ErrMissingToken indicates an attempt to persist a blank token.
	ErrMissingToken = errors.New("credentials: token required")
)

// StoreConfig describes the dependencies of a Store.
type StoreConfig struct {
	Database *gorm.DB
	Profile  string
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Store persists the bearer token of one profile. It implements session.TokenSource.
type Store struct {
	db      *gorm.DB
	profile string
	clock   func() time.Time
	logger  *zap.Logger
}

// NewStore validates cfg and constructs a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	profile := normalize(cfg.Profile)
	if profile == "" {
		profile = DefaultProfile
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: cfg.Database, profile: profile, clock: clock, logger: logger}, nil
}

// Save stores token and an optional display username, replacing any previous credential.
func (s *Store) Save(ctx context.Context, token, username string) error {
	token = normalize(token)
	if token == "" {
		return ErrMissingToken
	}
	record := Credential{
		Profile:  s.profile,
		Token:    token,
		Username: normalize(username),
		SavedAt:  s.clock().UTC(),
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "profile"}},
		DoUpdates: clause.AssignmentColumns([]string{"token", "username", "saved_at", "updated_at"}),
	}).Create(&record).Error
	if err != nil {
		return fmt.Errorf("credentials: save: %w", err)
	}
	return nil
}

// Load returns the stored credential, if any.
func (s *Store) Load(ctx context.Context) (Credential, bool, error) {
	var record Credential
	err := s.db.WithContext(ctx).Where("profile = ?", s.profile).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Credential{}, false, nil
	}
	if err != nil {
		return Credential{}, false, fmt.Errorf("credentials: load: %w", err)
	}
	return record, true, nil
}

// Token implements session.TokenSource. Read failures are logged and reported as absent.
func (s *Store) Token() (string, bool) {
	record, ok, err := s.Load(context.Background())
	if err != nil {
		s.logger.Warn("credential read failed", zap.String("profile", s.profile), zap.Error(err))
		return "", false
	}
	if !ok || record.Token == "" {
		return "", false
	}
	return record.Token, true
}

// Clear deletes the stored credential. Clearing an empty profile is not an error.
func (s *Store) Clear(ctx context.Context) error {
	err := s.db.WithContext(ctx).Where("profile = ?", s.profile).Delete(&Credential{}).Error
	if err != nil {
		return fmt.Errorf("credentials: clear: %w", err)
	}
	return nil
}

// ForgetOnInvalidation deletes the stored credential whenever events reports that the
// API rejected it. It returns when events closes or ctx is done.
func (s *Store) ForgetOnInvalidation(ctx context.Context, events <-chan session.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Kind != session.EventInvalidated {
				continue
			}
			if err := s.Clear(ctx); err != nil {
				s.logger.Warn("credential purge failed", zap.String("profile", s.profile), zap.Error(err))
				continue
			}
			s.logger.Info("stored credential removed after invalidation",
				zap.String("profile", s.profile),
				zap.String("identity", event.Identity))
		}
	}
}
