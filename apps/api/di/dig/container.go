package dig_container

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"

	echoapi "github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/apps/api/echo"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/auth"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/enrollment"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/progress"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/core/quiz"
	emailsvc "github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/services/email"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/services/events"
	logsvc "github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/services/logger"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/services/payment"
	"github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/storage/database"
	sqlxdb "github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/storage/database/sqlx"
	redisdb "github.com/CloudcraveAcademy/switch2tech-76f708d3-sub001/storage/redis"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sql.DB, core.Gateway) {
	setUp := func() (*sql.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, sqlxdb.NewGateway(db)
}

// newRedis returns a nil client when no address is configured.
func newRedis(conf *core.Config, loggerParam DBLoggerParam) *redis.Client {
	if conf.Redis.Addr == "" {
		loggerParam.Logger.Warn("redis addr is empty, progress caching is disabled")
		return nil
	}
	client, err := redisdb.Open(context.Background(), conf.Redis)
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up redis: %v", err), err)
	}
	return client
}

func newProgressCache(client *redis.Client) progress.Cache {
	if client == nil {
		return progress.NopCache{}
	}
	return redisdb.NewCache(client)
}

func newRecoveryStore(conf *core.Config, gw core.Gateway, client *redis.Client) (enrollment.RecoveryStore, error) {
	switch conf.Enrollment.RecoveryBackend {
	case "redis":
		if client == nil {
			return nil, errors.New("redis recovery backend needs redis.addr")
		}
		return redisdb.NewRecoveryStore(client), nil
	case "memory":
		return enrollment.NewMemoryRecoveryStore(), nil
	case "database", "":
		return enrollment.NewGatewayRecoveryStore(gw), nil
	default:
		return nil, errors.Errorf("unknown recovery backend %q", conf.Enrollment.RecoveryBackend)
	}
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, log.New(os.Stdout, "MAIL : ", log.LstdFlags), logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

// newValidator registers the validations of every package on a validator sharing the API's translator.
func newValidator(conf *core.Config, translator ut.Translator) *validator.Validate {
	validate := validator.New()
	core.InitValidators(validate, translator)
	auth.InitValidators(validate, translator, conf.Auth.StrictPasswords)
	enrollment.InitValidators(validate, translator)
	return validate
}

func newPublisher(conf *core.Config, logger core.Logger) (*events.Publisher, error) {
	return events.NewPublisher(conf.RabbitMQ, logger)
}

func newProgressService(conf *core.Config, gw core.Gateway, cache progress.Cache, logger core.Logger) *progress.Service {
	return progress.NewService(gw, cache, logger, conf.Redis.CacheTTL)
}

func newQuizRegistry(conf *core.Config, gw core.Gateway, progressSvc *progress.Service, publisher *events.Publisher, logger core.Logger) *quiz.Registry {
	notifier := quiz.Notifiers{progressSvc, publisher}
	reg := quiz.NewRegistry(context.Background(), func() (*quiz.Engine, error) {
		return quiz.NewEngine(gw, notifier, logger, conf.Quiz.DefaultPassingScore)
	})
	if conf.Quiz.AttemptIdleTTL > 0 {
		reg.IdleTTL = conf.Quiz.AttemptIdleTTL
	}
	return reg
}

func newPaymentClient(conf *core.Config) *payment.Client {
	return payment.NewClient(conf.Payment)
}

type EnrollmentParam struct {
	dig.In
	Conf      *core.Config
	Gateway   core.Gateway
	Auth      *auth.Service
	Payments  *payment.Client
	Recovery  enrollment.RecoveryStore
	Validate  *validator.Validate
	Mailer    core.EmailService
	Publisher *events.Publisher
	Progress  *progress.Service
	Logger    core.Logger
}

func newEnrollmentDeps(p EnrollmentParam) enrollment.Deps {
	return enrollment.Deps{
		Gateway:  p.Gateway,
		Profiles: p.Auth,
		Payments: p.Payments,
		Recovery: p.Recovery,
		Sealer:   enrollment.NewSealer(p.Conf.SecretKey),
		Validate: p.Validate,
		Mailer:   p.Mailer,
		Events:   p.Publisher,
		Progress: p.Progress,
		Logger:   p.Logger,
		Conf:     p.Conf,
	}
}

type ServerParam struct {
	dig.In
	Conf       *core.Config
	Logger     core.Logger
	Auth       *auth.Service
	Enrollment enrollment.Deps
	Quizzes    *quiz.Registry
	Progress   *progress.Service
	Mailer     core.EmailService
	Validate   *validator.Validate
	Translator ut.Translator
}

func newServer(p ServerParam) *echoapi.Server {
	return echoapi.NewServer(p.Conf, p.Logger, echoapi.Deps{
		Auth:       p.Auth,
		Enrollment: p.Enrollment,
		Quizzes:    p.Quizzes,
		Progress:   p.Progress,
		Mailer:     p.Mailer,
		Validate:   p.Validate,
		Translator: p.Translator,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newRedis))
	must(c.Provide(newProgressCache))
	must(c.Provide(newRecoveryStore))
	must(c.Provide(newEmailService))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(newPublisher))
	must(c.Provide(auth.NewService))
	must(c.Provide(newProgressService))
	must(c.Provide(newQuizRegistry))
	must(c.Provide(newPaymentClient))
	must(c.Provide(newEnrollmentDeps))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
