package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/shuleapp/shule/apps/api/echo"
	"github.com/shuleapp/shule/core"
	"github.com/shuleapp/shule/core/event"
	"github.com/shuleapp/shule/core/library"
	"github.com/shuleapp/shule/core/tenant"
	"github.com/shuleapp/shule/core/user"
	logsvc "github.com/shuleapp/shule/services/logger"
	queuesvc "github.com/shuleapp/shule/services/queue"
	"github.com/shuleapp/shule/storage/cache"
	"github.com/shuleapp/shule/storage/database"
	sqlxrepos "github.com/shuleapp/shule/storage/database/sqlx"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf, err := core.NewConfig()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)
	defer logger.Wait()

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Error(fmt.Sprintf("setting up database: %v", err), err)
		os.Exit(1)
	}
	defer db.Close()

	// set up cache
	cch, err := cache.Open(conf)
	if err != nil {
		logger.Error(fmt.Sprintf("connecting to redis: %v", err), err)
		os.Exit(1)
	}
	defer cch.Close()

	// set up task dispatcher
	dispatcher, err := queuesvc.NewDispatcher(conf, logger)
	if err != nil {
		logger.Error(fmt.Sprintf("connecting to broker: %v", err), err)
		os.Exit(1)
	}
	defer dispatcher.Close()

	// set up services
	tenantSvc := tenant.NewService(sqlxrepos.NewTenantRepository(db), cch)
	userSvc := user.NewService(conf, sqlxrepos.NewUserRepository(db), dispatcher, cch)
	eventSvc := event.NewService(sqlxrepos.NewEventRepository(db))
	librarySvc := library.NewService(sqlxrepos.NewLibraryRepository(db))

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate, translator := core.NewValidator()
	user.RegisterValidators(validate, translator)

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       conf,
			Logger:     logger,
			Cache:      cch,
			TenantSvc:  tenantSvc,
			UserSvc:    userSvc,
			EventSvc:   eventSvc,
			LibrarySvc: librarySvc,
			Validate:   validate,
			Translator: translator,
		},
	)

	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)
		os.Exit(1)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
				os.Exit(1)
			}
		}
	}
}

func setUpDB(conf *core.Config) (db *sqlx.DB, err error) {
	if err = database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}
	if db, err = database.Open(conf); err != nil {
		return nil, err
	}
	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}
