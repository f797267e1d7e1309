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
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const defaultSecretKey = "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy"

var errInsecureSecretKey = errors.New("secretKey must be set outside of DEV and TEST")

type (
	Config struct {
		Env      string
		Build    string
		Debug    bool
		TestMode bool
		WorkDir  string

		AppName          string
		SecretKey        string
		DefaultFromEmail mail.Address
		FrontendBaseURL  string

		JWTExpirationDelta        time.Duration
		PasswordResetTimeoutDelta time.Duration
		TempPasswordLength        int

		SendgridApiKey string
		RollbarToken   string

		Server   ServerConfig
		Database DatabaseConfig
	}

	ServerConfig struct {
		Host                 string
		Address              string
		DebugAddress         string
		ShutdownTimeout      time.Duration
		UploadDir            string
		BodyLimit            string // e.g. "5M"; no limit when empty
		OpenRegistration     bool
		HideAccountExistence bool
	}

	DatabaseConfig struct {
		Engine     string // mongo | postgres | memory
		URI        string // mongo
		Host       string
		Port       int
		Name       string
		User       string
		Password   string
		DisableTLS bool
	}
)

// Address returns the postgres host:port pair.
func (dc DatabaseConfig) Address() string {
	return net.JoinHostPort(dc.Host, strconv.Itoa(dc.Port))
}

// NewConfig reads the configuration once from defaults, `config/.env.<env>` and the environment.
// Environment variables are prefixed with the upper-cased env name, e.g. PROD_SECRETKEY.
func NewConfig() *Config {
	v := viper.New()

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	setDefaults(v, env)
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd := Getwd()

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

	conf := newConfigFromViper(v)
	conf.Env = env
	conf.WorkDir = wd
	return conf
}

func setDefaults(v *viper.Viper, env string) {
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", env == "DEV")
	v.SetDefault("testMode", env == "TEST")
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "School Management System")
	v.SetDefault("secretKey", defaultSecretKey)
	v.SetDefault("defaultFromEmail", "School Management System <noreply@localhost>")
	v.SetDefault("frontendBaseURL", "http://localhost:5000/api/auth/reset-password/")
	v.SetDefault("jwtExpirationDelta", time.Hour)
	v.SetDefault("passwordResetTimeoutDelta", time.Hour)
	v.SetDefault("tempPasswordLength", 8)
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":5000")
	v.SetDefault("server.debugAddress", ":5001")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.uploadDir", "uploads")
	v.SetDefault("server.bodyLimit", "5M")
	v.SetDefault("server.openRegistration", false)
	v.SetDefault("server.hideAccountExistence", false)

	v.SetDefault("database.engine", "mongo")
	v.SetDefault("database.uri", "mongodb://localhost:27017")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.name", "school")
	v.SetDefault("database.user", "school")
	v.SetDefault("database.password", "")
	v.SetDefault("database.disableTLS", true)
}

func newConfigFromViper(v *viper.Viper) *Config {
	from, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatalf("config.defaultFromEmail: %v", err)
	}
	return &Config{
		Build:                     v.GetString("build"),
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("testMode"),
		AppName:                   v.GetString("appName"),
		SecretKey:                 v.GetString("secretKey"),
		DefaultFromEmail:          *from,
		FrontendBaseURL:           v.GetString("frontendBaseURL"),
		JWTExpirationDelta:        v.GetDuration("jwtExpirationDelta"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		TempPasswordLength:        v.GetInt("tempPasswordLength"),
		SendgridApiKey:            v.GetString("sendgridApiKey"),
		RollbarToken:              v.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:                 v.GetString("server.host"),
			Address:              v.GetString("server.address"),
			DebugAddress:         v.GetString("server.debugAddress"),
			ShutdownTimeout:      v.GetDuration("server.shutdownTimeout"),
			UploadDir:            v.GetString("server.uploadDir"),
			BodyLimit:            v.GetString("server.bodyLimit"),
			OpenRegistration:     v.GetBool("server.openRegistration"),
			HideAccountExistence: v.GetBool("server.hideAccountExistence"),
		},
		Database: DatabaseConfig{
			Engine:     v.GetString("database.engine"),
			URI:        v.GetString("database.uri"),
			Host:       v.GetString("database.host"),
			Port:       v.GetInt("database.port"),
			Name:       v.GetString("database.name"),
			User:       v.GetString("database.user"),
			Password:   v.GetString("database.password"),
			DisableTLS: v.GetBool("database.disableTLS"),
		},
	}
}

// Validate rejects configurations that must never reach production.
func (c *Config) Validate() error {
	if !(c.Debug || c.TestMode) && (c.SecretKey == "" || c.SecretKey == defaultSecretKey) {
		return errInsecureSecretKey
	}
	switch c.Database.Engine {
	case "mongo", "postgres", "memory":
	default:
		return errors.Errorf("unknown database engine %q", c.Database.Engine)
	}
	if c.TempPasswordLength < 6 {
		return errors.Errorf("tempPasswordLength must be at least 6, got %d", c.TempPasswordLength)
	}
	return nil
}
