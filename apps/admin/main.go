package main

import (
	"context"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/auth"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/enrollment"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/storage/database"
	sqlxdb "github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	errAndDie(database.Ping(context.Background(), db))
	gw := sqlxdb.NewGateway(db)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	auth.InitValidators(validate, translator, false)

	// start CLI
	cli := commandLine{
		db:       db,
		auth:     auth.NewService(gw, validate, conf),
		recovery: enrollment.NewGatewayRecoveryStore(gw),
	}
	err = cli.run(os.Args)
	_ = db.Close()
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
