package infra

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix env prefix for viper
const EnvPrefix = "GOAPP"

// runtime environments
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// LoggingOption logging section
type LoggingOption struct {
	FilePath string `mapstructure:"file_path" json:"file_path" yaml:"file_path"`                            // log file path
	Level    string `mapstructure:"level" json:"level" yaml:"level" validate:"oneof=debug info warn error"` // global logging level
}

// KVStoreOption key-value store section
type KVStoreOption struct {
	Host     string `mapstructure:"host" json:"host" yaml:"host" validate:"required"` // bind host address
	Port     int    `mapstructure:"port" json:"port" yaml:"port"`                     // bind listen port
	Password string `mapstructure:"password" json:"password" yaml:"password"`
}

// DevOPOption devop section
type DevOPOption struct {
	APM bool `mapstructure:"apm" json:"apm" yaml:"apm"`
}

// ServerConfig authentication API option object
type ServerConfig struct {
	AppID          string        `mapstructure:"app_id" json:"app_id" yaml:"app_id" validate:"required"`            // Application ID
	Host           string        `mapstructure:"host" json:"host" yaml:"host"`                                      // bind host address
	Port           int           `mapstructure:"port" json:"port" yaml:"port"`                                      // bind listen port
	Env            string        `mapstructure:"env" json:"env" yaml:"env" validate:"oneof=development production"` // runtime environment
	RequestTimeout time.Duration `mapstructure:"request_timeout" json:"request_timeout" yaml:"request_timeout"`
	Database       struct {
		Driver   string `mapstructure:"driver" json:"driver" yaml:"driver" validate:"oneof=mysql postgres"`          // driver name
		Host     string `mapstructure:"host" json:"host" yaml:"host" validate:"required"`                            // server host
		MaxConn  int32  `mapstructure:"maxconn" json:"maxconn" yaml:"maxconn" validate:"min=1"`                      // maximum opening connections number
		Password string `mapstructure:"password" json:"-" yaml:"password" validate:"required"`                       // db password
		Port     int    `mapstructure:"port" json:"port" yaml:"port"`                                                // server port
		Protocol string `mapstructure:"protocol" json:"protocol" yaml:"protocol" validate:"omitempty,oneof=tcp udp"` // connection protocol, eg.tcp
		Query    string `mapstructure:"query" json:"query" yaml:"query"`                                             // DSN query parameter
		Schema   string `mapstructure:"schema" json:"schema" yaml:"schema" validate:"required"`                      // use schema
		User     string `mapstructure:"username" json:"username" yaml:"username" validate:"required"`                // db username
	} `mapstructure:"database" json:"database" yaml:"database"`
	Logging  LoggingOption `mapstructure:"logging" json:"logging" yaml:"logging"`
	Security struct {
		IDLength         int           `mapstructure:"id_length" json:"id_length" yaml:"id_length" validate:"min=8"` // length of generated ID for entities
		JWTMethod        string        `mapstructure:"jwt_method" json:"jwt_method" yaml:"jwt_method" validate:"oneof=HS256 HS384 HS512"`
		JWTSecret        string        `mapstructure:"jwt_secret" json:"jwt_secret" yaml:"jwt_secret" validate:"required"`
		AccessTimeout    time.Duration `mapstructure:"access_timeout" json:"access_timeout" yaml:"access_timeout"`             // access token lifetime
		RefreshTimeout   time.Duration `mapstructure:"refresh_timeout" json:"refresh_timeout" yaml:"refresh_timeout"`          // refresh token lifetime
		MaxLoginAttempts int           `mapstructure:"max_login_attempts" json:"max_login_attempts" yaml:"max_login_attempts"` // maximum login attempts
		RetryTimeout     time.Duration `mapstructure:"retry_timeout" json:"retry_timeout" yaml:"retry_timeout"`                // retry wait
	} `mapstructure:"security" json:"security" yaml:"security"`
	KVStore KVStoreOption `mapstructure:"kv" json:"kv" yaml:"kv"`
	DevOP   DevOPOption   `mapstructure:"devop" json:"devop" yaml:"devop"`
}

// WebConfig sign-in front option object
type WebConfig struct {
	AppID          string        `mapstructure:"app_id" json:"app_id" yaml:"app_id" validate:"required"`
	Host           string        `mapstructure:"host" json:"host" yaml:"host"`
	Port           int           `mapstructure:"port" json:"port" yaml:"port"`
	Env            string        `mapstructure:"env" json:"env" yaml:"env" validate:"oneof=development production"`
	RequestTimeout time.Duration `mapstructure:"request_timeout" json:"request_timeout" yaml:"request_timeout"`
	APIBaseURL     string        `mapstructure:"api_base_url" json:"api_base_url" yaml:"api_base_url" validate:"required,url"` // authentication API root
	Session        struct {
		CookieName   string        `mapstructure:"cookie_name" json:"cookie_name" yaml:"cookie_name" validate:"required"`
		CookieSecure bool          `mapstructure:"cookie_secure" json:"cookie_secure" yaml:"cookie_secure"`
		Lifetime     time.Duration `mapstructure:"lifetime" json:"lifetime" yaml:"lifetime"`
		IDLength     int           `mapstructure:"id_length" json:"id_length" yaml:"id_length" validate:"min=16"`
	} `mapstructure:"session" json:"session" yaml:"session"`
	Logging LoggingOption `mapstructure:"logging" json:"logging" yaml:"logging"`
	KVStore KVStoreOption `mapstructure:"kv" json:"kv" yaml:"kv"`
	DevOP   DevOPOption   `mapstructure:"devop" json:"devop" yaml:"devop"`
}

// InitServerConfig init API config using viper, args are command line arguments without the program name
func InitServerConfig(args []string) (*ServerConfig, error) {
	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	registerCommonFlags(fs, 8081)

	// database
	fs.String("database.driver", "mysql", "database driver to use, can be 'mysql' or 'postgres'")
	fs.String("database.host", "127.0.0.1", "database host")
	fs.Int("database.port", 3306, "database server port")
	fs.String("database.protocol", "", "connection protocol(if mysql is used, this flag must be set), eg.tcp")
	fs.String("database.username", "", "database username (required)")
	fs.String("database.password", "", "database password (required)")
	fs.String("database.schema", "", "database schema (required)")
	fs.String("database.query", "", `additional DSN query parameters('?' is auto prefixed)`)
	fs.Int32("database.maxconn", 50, `max connection count, if you encounter a "too many connections" error, please consider
increasing the max_connection value of your db server, or lower this value`)

	// security
	fs.Int("security.id_length", 24, "set length of generated ID for entities")
	fs.String("security.jwt_method", "HS256", "hash algorithm used for JWT")
	fs.String("security.jwt_secret", "", "JWT secret (required)")
	fs.Duration("security.access_timeout", 5*time.Minute, "access token lifetime(m, s and h units are supported), eg.5m")
	fs.Duration("security.refresh_timeout", 24*time.Hour, "refresh token lifetime(m, s and h units are supported), eg.24h")
	fs.Int("security.max_login_attempts", 5, "maximum failed login attempts before the account is locked, 0 disables the limit")
	fs.Duration("security.retry_timeout", 1*time.Hour, "how long a locked account stays locked")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	config := new(ServerConfig)
	if err := loadConfig(fs, config); err != nil {
		return nil, err
	}
	// timestamps are scanned into time.Time
	if db := &config.Database; db.Driver == "mysql" && !strings.Contains(db.Query, "parseTime") {
		if db.Query != "" {
			db.Query += "&"
		}
		db.Query += "parseTime=true"
	}
	return config, nil
}

// InitWebConfig init sign-in front config using viper, args are command line arguments without the program name
func InitWebConfig(args []string) (*WebConfig, error) {
	fs := pflag.NewFlagSet("web", pflag.ContinueOnError)
	registerCommonFlags(fs, 8080)

	fs.String("api_base_url", "", "authentication API base url, eg.http://127.0.0.1:8081 (required)")
	fs.String("session.cookie_name", "sid", "cookie name to store the browser session id")
	fs.Bool("session.cookie_secure", false, "only send the session cookie over https")
	fs.Duration("session.lifetime", 24*time.Hour, "browser session lifetime, capped by the refresh token expiry")
	fs.Int("session.id_length", 32, "length of generated browser session id")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	config := new(WebConfig)
	if err := loadConfig(fs, config); err != nil {
		return nil, err
	}
	config.APIBaseURL = strings.TrimRight(config.APIBaseURL, "/")
	return config, nil
}

func registerCommonFlags(fs *pflag.FlagSet, port int) {
	// app
	fs.String("host", "", "binding address")
	fs.String("app_id", "", "application identifier (required)")
	fs.String("env", EnvDevelopment, "runtime environment, can be 'development' or 'production'")
	fs.Int("port", port, "listening port")
	fs.Duration("request_timeout", 30*time.Second, "request handling deadline")

	// logging
	fs.String("logging.level", "info", "logging level")
	fs.String("logging.file_path", "", "log to file")

	// kv storage
	fs.String("kv.host", "127.0.0.1", "kv host")
	fs.Int("kv.port", 6379, "kv server port")
	fs.String("kv.password", "", "kv server password")

	// DevOp
	fs.Bool("devop.apm", false, "enable apm metrics")
}

func loadConfig(fs *pflag.FlagSet, config interface{}) error {
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return err
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.Unmarshal(config); err != nil {
		return err
	}
	return validateConfig(config)
}

func validateConfig(config interface{}) error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("mapstructure")
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	err := validate.Struct(config)
	if err == nil {
		return nil
	}
	fieldErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("failed to validate config: %w", err)
	}

	var msg []string
	for _, field := range fieldErrors {
		namespace := field.Namespace()
		fieldName := namespace[strings.IndexByte(namespace, '.')+1:] // trim top level namespace
		switch field.Tag() {
		case "required":
			msg = append(msg, fmt.Sprintf("%s is required", fieldName))
		case "oneof":
			msg = append(msg, fmt.Sprintf("%s must be one of (%s)", fieldName, field.Param()))
		case "min":
			msg = append(msg, fmt.Sprintf("%s must be at least %s", fieldName, field.Param()))
		case "url":
			msg = append(msg, fmt.Sprintf("%s must be a valid url", fieldName))
		default:
			msg = append(msg, fmt.Sprintf("%s failed on %s", fieldName, field.Tag()))
		}
	}
	return fmt.Errorf("failed to validate config: \n%s", strings.Join(msg, "\n"))
}
