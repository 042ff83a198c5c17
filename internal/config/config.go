// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Events   EventsConfig
	Auth     AuthConfig
	Engine   EngineConfig
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

type ServerConfig struct {
	Addr            string        `envconfig:"HTTP_ADDR" default:":8080"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig selects the progress sink. URL wins over the DB_* parts.
type DatabaseConfig struct {
	Driver     string `envconfig:"DB_DRIVER" default:"sqlite"`
	URL        string `envconfig:"DATABASE_URL"`
	Host       string `envconfig:"DB_HOST" default:"localhost"`
	Port       int    `envconfig:"DB_PORT" default:"5432"`
	Name       string `envconfig:"DB_NAME" default:"campaigns"`
	User       string `envconfig:"DB_USER" default:"postgres"`
	Password   string `envconfig:"DB_PASSWORD"`
	SSLMode    string `envconfig:"DB_SSLMODE" default:"disable"`
	SQLitePath string `envconfig:"SQLITE_PATH" default:"campaigns.db"`
}

// EventsConfig enables RabbitMQ fan-out when URL is set.
type EventsConfig struct {
	AMQPURL  string `envconfig:"AMQP_URL"`
	Exchange string `envconfig:"AMQP_EXCHANGE" default:"campaign_events"`
}

type AuthConfig struct {
	// Users is "name:password,name2:password2".
	Users     string `envconfig:"AUTH_USERS"`
	UsersFile string `envconfig:"USERS_FILE"`
}

type EngineConfig struct {
	PaceUnit          time.Duration `envconfig:"PACE_UNIT" default:"1m"`
	SMTPTimeout       time.Duration `envconfig:"SMTP_TIMEOUT" default:"30s"`
	StoreWriteTimeout time.Duration `envconfig:"STORE_WRITE_TIMEOUT" default:"5s"`
}

// Load reads an optional .env file, then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: DB_DRIVER must be postgres or sqlite, got %q", c.Database.Driver)
	}
	if c.Engine.PaceUnit <= 0 {
		return fmt.Errorf("config: PACE_UNIT must be positive")
	}
	return nil
}

// DSN returns the data source name for the configured driver.
func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return d.SQLitePath
	}
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

type usersFile struct {
	Users map[string]string `yaml:"users"`
}

// Users merges AUTH_USERS with USERS_FILE; the file wins on conflicts.
func (a AuthConfig) Load() (map[string]string, error) {
	users, err := ParseUsers(a.Users)
	if err != nil {
		return nil, err
	}
	if a.UsersFile == "" {
		return users, nil
	}
	fromFile, err := LoadUsers(a.UsersFile)
	if err != nil {
		return nil, err
	}
	for name, pw := range fromFile {
		users[name] = pw
	}
	return users, nil
}

// ParseUsers reads "name:password" pairs separated by commas.
func ParseUsers(s string) (map[string]string, error) {
	users := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, pw, ok := strings.Cut(pair, ":")
		name = strings.TrimSpace(name)
		if !ok || name == "" || pw == "" {
			return nil, fmt.Errorf("config: malformed AUTH_USERS entry %q", pair)
		}
		users[name] = pw
	}
	return users, nil
}

func LoadUsers(path string) (map[string]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read users file: %w", err)
	}
	var f usersFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("config: parse users file %s: %w", path, err)
	}
	users := make(map[string]string, len(f.Users))
	for name, pw := range f.Users {
		if strings.TrimSpace(name) == "" || pw == "" {
			return nil, fmt.Errorf("config: users file %s has an empty name or password", path)
		}
		users[name] = pw
	}
	return users, nil
}

// Names lists the configured user names, sorted, for start-up logging.
func Names(users map[string]string) []string {
	names := make([]string, 0, len(users))
	for name := range users {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
