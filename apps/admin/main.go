package main

import (
	"log"
	"os"

	"github.com/shuleapp/shule/core"
	"github.com/shuleapp/shule/core/event"
	"github.com/shuleapp/shule/core/library"
	"github.com/shuleapp/shule/core/tenant"
	"github.com/shuleapp/shule/core/user"
	"github.com/shuleapp/shule/storage/cache"
	"github.com/shuleapp/shule/storage/database"
	sqlxrepos "github.com/shuleapp/shule/storage/database/sqlx"
)

func main() {
	logger := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf, err := core.NewConfig()
	if err != nil {
		logger.Printf("loading config: %v", err)
		os.Exit(1)
	}

	if err = database.CreateIfNotExist(conf); err != nil {
		logger.Printf("creating database: %v", err)
		os.Exit(1)
	}
	db, err := database.Open(conf)
	if err != nil {
		logger.Printf("opening database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	validate, translator := core.NewValidator()
	user.RegisterValidators(validate, translator)

	// no queue here; emails enqueued by services are skipped
	cch := cache.NewInMem()
	cli := &commandLine{
		conf:       conf,
		db:         db,
		validate:   validate,
		translator: translator,
		tenantSvc:  tenant.NewService(sqlxrepos.NewTenantRepository(db), cch),
		userSvc:    user.NewService(conf, sqlxrepos.NewUserRepository(db), nil, cch),
		eventSvc:   event.NewService(sqlxrepos.NewEventRepository(db)),
		librarySvc: library.NewService(sqlxrepos.NewLibraryRepository(db)),
	}

	if err = cli.run(os.Args); err != nil && err != errHelp {
		logger.Printf("%v", err)
		os.Exit(1)
	}
}
