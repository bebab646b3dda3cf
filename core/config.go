package core

import (
	"fmt"
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName          string
		Env              string // DEV (local; default), TEST, QA, PROD
		Build            string
		Debug            bool
		TestMode         bool
		SecretKey        string
		WorkDir          string
		FrontendBaseURL  string
		HelpdeskEmail    string
		SendgridApiKey   string
		RollbarToken     string
		defaultFromEmail string

		Server     ServerConfig
		Database   DatabaseConfig
		Redis      RedisConfig
		Evaluation EvaluationConfig
	}

	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		PasswordResetTimeoutDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	RedisConfig struct {
		Addr     string
		Password string
		DB       int
	}

	EvaluationConfig struct {
		ReminderDays     int
		ResultsCacheTTL  time.Duration
		SchedulerEnabled bool
	}
)

func (dbc DatabaseConfig) Address() string {
	return net.JoinHostPort(dbc.Host, dbc.Port)
}

func (conf *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: conf.AppName, Address: conf.defaultFromEmail}
}

// EvaluationURL is the frontend page where a student takes an evaluation.
func (conf *Config) EvaluationURL(evalID, groupID string) string {
	return fmt.Sprintf("%s/evaluations/%s/take?group=%s", strings.TrimRight(conf.FrontendBaseURL, "/"), evalID, groupID)
}

// PasswordResetURL is the frontend page where a user confirms a password reset.
func (conf *Config) PasswordResetURL(uid, token string) string {
	return fmt.Sprintf("%s/password-reset/%s/%s", strings.TrimRight(conf.FrontendBaseURL, "/"), uid, token)
}

// NewConfig loads the configuration of the current ENV from the environment,
// optionally seeded by a `config/.env.<env>` file.
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("appName", "Tathmini")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", env == "DEV" || env == "TEST")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("secretKey", "x7#kq-2v!m9w(t0$r4)jz8&hy_ne3+c5@b1^pdu6")
	v.SetDefault("frontendBaseURL", "http://localhost:8080")
	v.SetDefault("helpdeskEmail", "helpdesk@localhost")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("serverHost", "0.0.0.0:8000")
	v.SetDefault("serverDebugHost", "0.0.0.0:4000")
	v.SetDefault("serverShutdownTimeout", 5*time.Second)
	v.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("dbEngine", "postgres")
	v.SetDefault("dbHost", "localhost")
	v.SetDefault("dbPort", "5432")
	v.SetDefault("dbName", "tathmini")
	v.SetDefault("dbUser", "tathmini")
	v.SetDefault("dbPassword", "tathmini")
	v.SetDefault("dbAdminUser", "")
	v.SetDefault("dbAdminPassword", "")
	v.SetDefault("dbDisableTLS", env == "DEV" || env == "TEST")

	v.SetDefault("redisAddr", "")
	v.SetDefault("redisPassword", "")
	v.SetDefault("redisDB", 0)

	v.SetDefault("evalReminderDays", 3)
	v.SetDefault("evalResultsCacheTTL", 24*time.Hour)

	v.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	workDir := Getwd()
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		AppName:          v.GetString("appName"),
		Env:              env,
		Build:            v.GetString("build"),
		Debug:            v.GetBool("debug"),
		TestMode:         v.GetBool("testMode"),
		SecretKey:        v.GetString("secretKey"),
		WorkDir:          workDir,
		FrontendBaseURL:  v.GetString("frontendBaseURL"),
		HelpdeskEmail:    v.GetString("helpdeskEmail"),
		SendgridApiKey:   v.GetString("sendgridApiKey"),
		RollbarToken:     v.GetString("rollbarToken"),
		defaultFromEmail: v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:                      v.GetString("serverHost"),
			DebugHost:                 v.GetString("serverDebugHost"),
			ShutdownTimeout:           v.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("jwtRefreshExpirationDelta"),
			PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("dbEngine"),
			Host:          v.GetString("dbHost"),
			Port:          v.GetString("dbPort"),
			Name:          v.GetString("dbName"),
			User:          v.GetString("dbUser"),
			Password:      v.GetString("dbPassword"),
			AdminUser:     v.GetString("dbAdminUser"),
			AdminPassword: v.GetString("dbAdminPassword"),
			DisableTLS:    v.GetBool("dbDisableTLS"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redisAddr"),
			Password: v.GetString("redisPassword"),
			DB:       v.GetInt("redisDB"),
		},
		Evaluation: EvaluationConfig{
			ReminderDays:    v.GetInt("evalReminderDays"),
			ResultsCacheTTL: v.GetDuration("evalResultsCacheTTL"),
		},
	}
	conf.Evaluation.SchedulerEnabled = conf.Redis.Addr != ""
	return conf
}

// NewTestConfig returns a Config suitable for tests; it never touches the environment.
func NewTestConfig() *Config {
	return &Config{
		AppName:          "Tathmini",
		Env:              "TEST",
		Build:            "test",
		Debug:            true,
		TestMode:         true,
		SecretKey:        "secret",
		FrontendBaseURL:  "http://localhost:8080",
		HelpdeskEmail:    "helpdesk@test.cd",
		defaultFromEmail: "noreply@test.cd",
		Server: ServerConfig{
			ShutdownTimeout:           time.Second,
			JWTExpirationDelta:        10 * time.Minute,
			JWTRefreshExpirationDelta: 4 * time.Hour,
			PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		},
		Evaluation: EvaluationConfig{
			ReminderDays:    3,
			ResultsCacheTTL: time.Hour,
		},
	}
}
