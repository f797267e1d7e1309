package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof" // registers /debug/pprof on the default mux
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"

	echoapi "github.com/schoolms/backend/apps/api/echo"
	"github.com/schoolms/backend/apps/shared"
	"github.com/schoolms/backend/core"
	"github.com/schoolms/backend/core/auth"
	"github.com/schoolms/backend/core/class"
	"github.com/schoolms/backend/core/user"
	emailsvc "github.com/schoolms/backend/services/email"
	filesvc "github.com/schoolms/backend/services/files"
	logsvc "github.com/schoolms/backend/services/logger"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug && conf.RollbarToken != "")
	defer logger.Close()

	if err := conf.Validate(); err != nil {
		logger.Fatal(fmt.Sprintf("invalid configuration: %v", err), err)
	}

	// set up DB
	ctx := context.Background()
	stores, err := shared.OpenStores(ctx, conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err := stores.Close(context.Background()); err != nil {
			logger.Error("closing database", err)
		}
	}()
	if err = stores.Migrate(ctx, "up"); err != nil {
		logger.Fatal(fmt.Sprintf("migrating database: %v", err), err)
	}

	// set up services
	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService(conf, logger, log.New(os.Stdout, "EMAIL : ", 0))
	} else {
		mailSvc = emailsvc.NewSendgridService(conf, logger)
	}
	usrSvc := user.NewService(stores.Users, mailSvc, conf, logger)
	clsSvc := class.NewService(stores.Classes, usrSvc)
	tokens := auth.NewTokenService(conf.SecretKey, conf.AppName, conf.JWTExpirationDelta)

	uploadDir := conf.Server.UploadDir
	if !filepath.IsAbs(uploadDir) {
		uploadDir = filepath.Join(conf.WorkDir, uploadDir)
	}
	files, err := filesvc.NewStorage(afero.NewOsFs(), uploadDir)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up file storage: %v", err), err)
	}

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q, database %q", conf.Build, stores.Engine))
	defer logger.Info("Application stopped")

	validate, translator := shared.NewValidation()

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugAddress, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start API Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	server := echoapi.NewServer(conf.Server.Address, &echoapi.Deps{
		Conf:       conf,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		Tokens:     tokens,
		Files:      files,
		UserSvc:    usrSvc,
		ClassSvc:   clsSvc,
	})

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-serverErrors:
		if err != nil {
			logger.Error(fmt.Sprintf("server error: %v", err), err)
		}

	case sig := <-shutdown:
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
		}
	}
}
