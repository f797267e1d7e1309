package main

import (
	"context"
	"log"
	"os"

	"github.com/schoolms/backend/apps/shared"
	"github.com/schoolms/backend/core"
	"github.com/schoolms/backend/core/user"
	emailsvc "github.com/schoolms/backend/services/email"
	logsvc "github.com/schoolms/backend/services/logger"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()
	appLogger := logsvc.NewRollbarLogger(logger, conf)
	appLogger.Enable(false)

	// set up DB
	ctx := context.Background()
	stores, err := shared.OpenStores(ctx, conf)
	errAndDie(err)

	// start CLI
	validate, _ := shared.NewValidation()
	cli := commandLine{
		stores:   stores,
		usrSvc:   user.NewService(stores.Users, emailsvc.NewConsoleService(conf, appLogger, nil), conf, appLogger),
		validate: validate,
	}
	err = cli.run(os.Args)
	if cErr := stores.Close(ctx); cErr != nil {
		logger.Printf("closing database: %v", cErr)
	}
	if err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
