package main

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	echoapi "github.com/trezcool/malipo/apps/api/echo"
	"github.com/trezcool/malipo/core"
	"github.com/trezcool/malipo/core/course"
	"github.com/trezcool/malipo/core/enrollment"
	"github.com/trezcool/malipo/core/payment"
	"github.com/trezcool/malipo/core/user"
	emailsvc "github.com/trezcool/malipo/services/email"
	gatewaysvc "github.com/trezcool/malipo/services/gateway"
	logsvc "github.com/trezcool/malipo/services/logger"
	"github.com/trezcool/malipo/storage/database"
	sqlxrepos "github.com/trezcool/malipo/storage/database/sqlx"
)

func main() {
	std := log.New(os.Stdout, core.Conf.AppName+" : ", log.LstdFlags|log.Lshortfile)

	// set up logging
	var logger core.Logger
	if core.Conf.Debug || core.Conf.RollbarToken == "" {
		logger = logsvc.NewStdLogger(std)
	} else {
		logger = logsvc.NewRollbarLogger(std, core.Conf)
	}

	// set up DB
	db, err := database.Open(core.Conf)
	errAndDie(std, err)
	defer db.Close()
	errAndDie(std, database.Ping(db))

	// set up repos
	usrRepo := sqlxrepos.NewUserRepository(db)
	crsRepo := sqlxrepos.NewCourseRepository(db)
	enrRepo := sqlxrepos.NewEnrollmentRepository(db)
	pmtRepo := sqlxrepos.NewPaymentRepository(db)

	// set up services
	var mailSvc core.EmailService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService()
	}

	var gw payment.Gateway
	if core.Conf.PaymentEnabled() {
		gw = gatewaysvc.NewRazorpayService(core.Conf)
	} else {
		std.Println("payment gateway credentials absent; payment endpoints disabled")
	}

	usrSvc := user.NewService(usrRepo)
	crsSvc := course.NewService(crsRepo)
	enrSvc := enrollment.NewService(enrRepo, crsRepo)
	pmtSvc := payment.NewService(gw, pmtRepo, enrRepo, crsRepo, usrRepo, mailSvc, core.Conf)

	// set up validation
	validate := validator.New()
	translator, err := core.NewTranslator()
	errAndDie(std, err)
	core.InitValidators(validate, translator)

	// start API server
	app := echoapi.NewServer(&echoapi.Options{
		Address:       core.Conf.Server.Addr(),
		UserSvc:       usrSvc,
		CourseSvc:     crsSvc,
		EnrollmentSvc: enrSvc,
		PaymentSvc:    pmtSvc,
		Logger:        logger,
		Validate:      validate,
		Translator:    translator,
	})
	go app.Start()

	// wait for an interrupt or a fatal server error, then shed load
	select {
	case err = <-app.Errors():
		std.Fatalf("server error: %v", err)

	case sig := <-app.ShutdownSignal():
		std.Printf("%v: start shutdown...", sig)

		ctx, cancel := context.WithTimeout(context.Background(), core.Conf.Server.ShutdownTimeout)
		defer cancel()

		if err = app.Stop(ctx); err != nil {
			std.Printf("could not stop server gracefully: %v", err)
			if err = app.Close(); err != nil {
				std.Fatalf("could not force stop server: %v", err)
			}
		}
	}
}

func errAndDie(std *log.Logger, err error) {
	if err != nil {
		std.Fatal(err)
	}
}
