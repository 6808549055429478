package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/shuleapp/shule/core"
	"github.com/shuleapp/shule/core/event"
	"github.com/shuleapp/shule/core/library"
	"github.com/shuleapp/shule/core/tenant"
	"github.com/shuleapp/shule/core/user"
	emailsvc "github.com/shuleapp/shule/services/email"
	logsvc "github.com/shuleapp/shule/services/logger"
	queuesvc "github.com/shuleapp/shule/services/queue"
	"github.com/shuleapp/shule/storage/cache"
	"github.com/shuleapp/shule/storage/database"
	sqlxrepos "github.com/shuleapp/shule/storage/database/sqlx"
)

func main() {
	conf, err := core.NewConfig()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "WORKER : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)
	defer logger.Wait()

	db, err := database.Open(conf)
	if err != nil {
		logger.Error(fmt.Sprintf("opening database: %v", err), err)
		os.Exit(1)
	}
	defer db.Close()

	cch, err := cache.Open(conf)
	if err != nil {
		logger.Error(fmt.Sprintf("connecting to redis: %v", err), err)
		os.Exit(1)
	}
	defer cch.Close()

	dispatcher, err := queuesvc.NewDispatcher(conf, logger)
	if err != nil {
		logger.Error(fmt.Sprintf("connecting to broker: %v", err), err)
		os.Exit(1)
	}
	defer dispatcher.Close()

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf)
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}

	tenantSvc := tenant.NewService(sqlxrepos.NewTenantRepository(db), cch)
	userSvc := user.NewService(conf, sqlxrepos.NewUserRepository(db), dispatcher, cch)
	eventSvc := event.NewService(sqlxrepos.NewEventRepository(db))
	librarySvc := library.NewService(sqlxrepos.NewLibraryRepository(db))

	handlers := &taskHandlers{
		conf:       conf,
		logger:     logger,
		mailSvc:    mailSvc,
		queue:      dispatcher,
		tenantSvc:  tenantSvc,
		userSvc:    userSvc,
		eventSvc:   eventSvc,
		librarySvc: librarySvc,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		s := <-sig
		logger.Info(fmt.Sprintf("%v: Start shutdown...", s))
		cancel()
	}()

	b := &beat{conf: conf, logger: logger, queue: dispatcher, tenantSvc: tenantSvc}
	go b.Run(ctx)

	logger.Info(fmt.Sprintf("Worker starting : version %q", conf.Build))
	if err = queuesvc.Consume(ctx, conf, logger, handlers.Handle); err != nil && err != context.Canceled {
		logger.Error(fmt.Sprintf("worker stopped: %v", err), err)
		os.Exit(1)
	}
	logger.Info("Worker stopped")
}
