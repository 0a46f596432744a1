package main

import (
	"context"
	"database/sql"
	"io"
	"time"

	"github.com/MarcoPoloResearchLab/tally/internal/api"
	"github.com/MarcoPoloResearchLab/tally/internal/comments"
	"github.com/MarcoPoloResearchLab/tally/internal/config"
	"github.com/MarcoPoloResearchLab/tally/internal/coordinator"
	"github.com/MarcoPoloResearchLab/tally/internal/credentials"
	"github.com/MarcoPoloResearchLab/tally/internal/logging"
	"github.com/MarcoPoloResearchLab/tally/internal/metrics"
	"github.com/MarcoPoloResearchLab/tally/internal/session"
	"github.com/MarcoPoloResearchLab/tally/internal/ux"
	"github.com/MarcoPoloResearchLab/tally/internal/votes"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// app holds the client-side object graph for one command invocation.
type app struct {
	config      config.AppConfig
	logger      *zap.Logger
	sqlDB       *sql.DB
	credentials *credentials.Store
	gate        *session.Gate
	client      *api.Client
	coordinator *coordinator.Coordinator
	presenter   *ux.Presenter
	out         io.Writer

	stopWatching func()
	watchDone    chan struct{}
}

func openApp(out io.Writer) (*app, error) {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel, appConfig.LogFormat)
	if err != nil {
		return nil, err
	}

	db, err := credentials.OpenSQLite(appConfig.CredentialsPath, logger)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	credentialStore, err := credentials.NewStore(credentials.StoreConfig{
		Database: db,
		Profile:  appConfig.Profile,
		Clock:    time.Now,
		Logger:   logger,
	})
	if err != nil {
		sqlDB.Close()
		return nil, err
	}

	gate := session.NewGate(session.GateConfig{
		Source: credentialStore,
		Clock:  time.Now,
		Logger: logger,
	})
	events, stopWatching := gate.Subscribe(context.Background())
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		credentialStore.ForgetOnInvalidation(context.Background(), events)
	}()

	application := &app{
		config:       appConfig,
		logger:       logger,
		sqlDB:        sqlDB,
		credentials:  credentialStore,
		gate:         gate,
		out:          out,
		stopWatching: stopWatching,
		watchDone:    watchDone,
	}
	if err := application.wireCoordinator(); err != nil {
		application.Close()
		return nil, err
	}
	return application, nil
}

func (a *app) wireCoordinator() error {
	submissionVotes, err := votes.NewStore(votes.StoreConfig{Session: a.gate, Kind: "submission", Logger: a.logger})
	if err != nil {
		return err
	}
	commentVotes, err := votes.NewStore(votes.StoreConfig{Session: a.gate, Kind: "comment", Logger: a.logger})
	if err != nil {
		return err
	}

	client, err := api.NewClient(api.Config{
		BaseURL: a.config.APIBaseURL,
		Timeout: a.config.APITimeout,
		Logger:  a.logger,
	})
	if err != nil {
		return err
	}

	recorder, err := metrics.NewRecorder(nil)
	if err != nil {
		return err
	}

	a.client = client
	a.presenter = ux.NewPresenter(a.out)
	a.coordinator, err = coordinator.New(coordinator.Config{
		Session:     a.gate,
		Submissions: submissionVotes,
		Comments:    commentVotes,
		Threads:     comments.NewStore(),
		API:         client,
		Challenge:   coordinator.StaticChallenge(a.config.ChallengeToken),
		Presenter:   a.presenter,
		Metrics:     recorder,
		Logger:      a.logger,
	})
	return err
}

// Close drains pending credential purges before releasing the database.
func (a *app) Close() {
	a.stopWatching()
	<-a.watchDone
	if err := a.sqlDB.Close(); err != nil {
		a.logger.Warn("credential database close failed", zap.Error(err))
	}
	_ = a.logger.Sync()
}
