package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		Addr                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          int
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool

		MaxOpenConns    int
		MaxIdleConns    int
		ConnMaxLifetime time.Duration
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
		CacheTTL time.Duration
	}

	RabbitMQConfig struct {
		URL      string
		Exchange string
	}

	PaymentConfig struct {
		BaseURL   string
		SecretKey string
		Timeout   time.Duration
	}

	QuizConfig struct {
		DefaultPassingScore float64
		AttemptIdleTTL      time.Duration // finished attempts are dropped after that long unused
	}

	EnrollmentConfig struct {
		RecoveryTTL     time.Duration
		RecoveryBackend string // database | redis | memory
		PurgeSchedule   string
		LoginPath       string
	}

	AuthConfig struct {
		StrictPasswords bool
	}

	Config struct {
		AppName          string
		Build            string
		Env              string
		Debug            bool
		TestMode         bool
		WorkDir          string
		SecretKey        string
		FrontendBaseURL  string
		DefaultFromEmail mail.Address
		SendgridApiKey   string
		RollbarToken     string

		Server     ServerConfig
		Database   DatabaseConfig
		Redis      RedisConfig
		RabbitMQ   RabbitMQConfig
		Payment    PaymentConfig
		Quiz       QuizConfig
		Enrollment EnrollmentConfig
		Auth       AuthConfig
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// NewConfig reads the configuration from defaults, `config/.env.<env>` and the environment (in that order of precedence).
// Environment variables are prefixed with the env name, eg: `PROD_DATABASE_HOST`.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("appName", "Switch2Tech")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("secretKey", "k9#vd0m2!x@q7w$+4a%zs8c^e1r&tn6y(p3u)f5b*hj=lg_o")
	v.SetDefault("frontendBaseURL", "http://localhost:5173")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 4*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 7*24*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "switch2tech")
	v.SetDefault("database.user", "switch2tech")
	v.SetDefault("database.password", "switch2tech")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 25)
	v.SetDefault("database.connMaxLifetime", 5*time.Minute)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cacheTTL", 5*time.Minute)

	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.exchange", "learning.events")

	v.SetDefault("payment.baseURL", "https://api.flutterwave.com/v3")
	v.SetDefault("payment.secretKey", "")
	v.SetDefault("payment.timeout", 15*time.Second)

	v.SetDefault("quiz.defaultPassingScore", 60.0)
	v.SetDefault("quiz.attemptIdleTTL", 15*time.Minute)

	v.SetDefault("enrollment.recoveryTTL", 2*time.Hour)
	v.SetDefault("enrollment.recoveryBackend", "database")
	v.SetDefault("enrollment.purgeSchedule", "@every 15m")
	v.SetDefault("enrollment.loginPath", "/login")

	v.SetDefault("auth.strictPasswords", false)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd, err := os.Getwd()
	if err != nil {
		log.Fatalf("config.os.Getwd(): %v", err)
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	fromEmail, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatalf("config.defaultFromEmail: %v", err)
	}

	return &Config{
		AppName:          v.GetString("appName"),
		Build:            v.GetString("build"),
		Env:              env,
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		WorkDir:          wd,
		SecretKey:        v.GetString("secretKey"),
		FrontendBaseURL:  strings.TrimRight(v.GetString("frontendBaseURL"), "/"),
		DefaultFromEmail: *fromEmail,
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Addr:                      v.GetString("server.addr"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),

			MaxOpenConns:    v.GetInt("database.maxOpenConns"),
			MaxIdleConns:    v.GetInt("database.maxIdleConns"),
			ConnMaxLifetime: v.GetDuration("database.connMaxLifetime"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
			CacheTTL: v.GetDuration("redis.cacheTTL"),
		},
		RabbitMQ: RabbitMQConfig{
			URL:      v.GetString("rabbitmq.url"),
			Exchange: v.GetString("rabbitmq.exchange"),
		},
		Payment: PaymentConfig{
			BaseURL:   strings.TrimRight(v.GetString("payment.baseURL"), "/"),
			SecretKey: v.GetString("payment.secretKey"),
			Timeout:   v.GetDuration("payment.timeout"),
		},
		Quiz: QuizConfig{
			DefaultPassingScore: v.GetFloat64("quiz.defaultPassingScore"),
			AttemptIdleTTL:      v.GetDuration("quiz.attemptIdleTTL"),
		},
		Enrollment: EnrollmentConfig{
			RecoveryTTL:     v.GetDuration("enrollment.recoveryTTL"),
			RecoveryBackend: strings.ToLower(v.GetString("enrollment.recoveryBackend")),
			PurgeSchedule:   v.GetString("enrollment.purgeSchedule"),
			LoginPath:       v.GetString("enrollment.loginPath"),
		},
		Auth: AuthConfig{
			StrictPasswords: v.GetBool("auth.strictPasswords"),
		},
	}
}

// NewTestConfig returns a Config suitable for tests: no external services, test mode on.
func NewTestConfig() *Config {
	fromEmail := mail.Address{Name: "Switch2Tech", Address: "noreply@test.local"}
	return &Config{
		AppName:          "Switch2Tech",
		Build:            "test",
		Env:              "TEST",
		TestMode:         true,
		SecretKey:        "test-secret-key",
		FrontendBaseURL:  "http://app.test",
		DefaultFromEmail: fromEmail,
		Server: ServerConfig{
			Host:                      "localhost",
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 24 * time.Hour,
		},
		Quiz:       QuizConfig{DefaultPassingScore: 60},
		Enrollment: EnrollmentConfig{RecoveryTTL: time.Hour, RecoveryBackend: "memory", PurgeSchedule: "@every 15m", LoginPath: "/login"},
	}
}
