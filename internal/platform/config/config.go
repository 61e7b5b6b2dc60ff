package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config はアプリケーション全体の設定を表現します。
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Logging      LoggingConfig      `yaml:"logging"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	SystemActor  SystemActorConfig  `yaml:"system_actor"`
	Finalization FinalizationConfig `yaml:"finalization"`
	Authz        AuthzConfig        `yaml:"authz"`
}

// ServerConfig は gRPC サーバーに関する設定です。
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr" env:"SERVER_LISTEN_ADDR"`
}

// DatabaseConfig は PostgreSQL 接続に関する設定です。
type DatabaseConfig struct {
	Host               string        `yaml:"host" env:"DATABASE_HOST"`
	Port               int           `yaml:"port" env:"DATABASE_PORT"`
	User               string        `yaml:"user" env:"DATABASE_USER"`
	Password           string        `yaml:"password" env:"DATABASE_PASSWORD"`
	Name               string        `yaml:"name" env:"DATABASE_NAME"`
	SSLMode            string        `yaml:"ssl_mode" env:"DATABASE_SSL_MODE"`
	MaxOpenConns       int           `yaml:"max_open_conns"`
	MaxIdleConns       int           `yaml:"max_idle_conns"`
	ConnMaxLifetime    time.Duration `yaml:"-" env:"-"`
	ConnMaxIdleTime    time.Duration `yaml:"-" env:"-"`
	ConnMaxLifetimeRaw string        `yaml:"conn_max_lifetime"`
	ConnMaxIdleTimeRaw string        `yaml:"conn_max_idle_time"`

	// セッション既定値です。空の場合はサーバー設定に従います。
	ApplicationName     string        `yaml:"application_name" env:"DATABASE_APPLICATION_NAME"`
	Isolation           string        `yaml:"isolation" env:"DATABASE_ISOLATION"`
	StatementTimeout    time.Duration `yaml:"-" env:"-"`
	LockTimeout         time.Duration `yaml:"-" env:"-"`
	StatementTimeoutRaw string        `yaml:"statement_timeout" env:"DATABASE_STATEMENT_TIMEOUT"`
	LockTimeoutRaw      string        `yaml:"lock_timeout" env:"DATABASE_LOCK_TIMEOUT"`
}

// LoggingConfig はログ出力の設定です。Format は text か json です。
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL"`
	Format string `yaml:"format" env:"LOG_FORMAT"`
}

// MetricsConfig は Prometheus エンドポイントの設定です。ListenAddr が空なら公開しません。
type MetricsConfig struct {
	ListenAddr string `yaml:"listen_addr" env:"METRICS_LISTEN_ADDR"`
	Path       string `yaml:"path" env:"METRICS_PATH"`
}

// SystemActorConfig はブートストラップ等で作成者となるシステム主体の設定です。
type SystemActorConfig struct {
	Email string `yaml:"email" env:"SYSTEM_ACTOR_EMAIL"`
	Name  string `yaml:"name" env:"SYSTEM_ACTOR_NAME"`
}

// FinalizationConfig は確定処理の設定です。
type FinalizationConfig struct {
	DefaultEnergyPercentage *int `yaml:"default_energy_percentage"`
}

// AuthzConfig はフィールド群の権限ポリシーです。Policy は casbin の CSV 行です。
type AuthzConfig struct {
	Policy []string `yaml:"policy"`
}

const (
	defaultMetricsPath      = "/metrics"
	defaultSystemActorEmail = "system@checkin.local"
	defaultSystemActorName  = "System"
	defaultEnergyPercentage = 50
	defaultLogLevel         = "info"
	defaultLogFormat        = "text"
)

// Load は指定されたパスから設定ファイルを読み込み、環境変数で上書きします。
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}

	if err := cfg.validateAndNormalize(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadEnvFiles は存在する .env ファイルだけを読み込み、読み込んだ件数を返します。
// 既に設定済みの環境変数は上書きしません。
func LoadEnvFiles(files ...string) (int, error) {
	existing := make([]string, 0, len(files))
	for _, file := range files {
		if _, err := os.Stat(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return 0, fmt.Errorf("config: stat %s: %w", file, err)
		}
		existing = append(existing, file)
	}
	if len(existing) == 0 {
		return 0, nil
	}
	if err := godotenv.Load(existing...); err != nil {
		return 0, fmt.Errorf("config: load env files: %w", err)
	}
	return len(existing), nil
}

func (c *Config) validateAndNormalize() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("config: server.listen_addr must be set")
	}

	db := &c.Database
	if err := db.validateAndNormalize(); err != nil {
		return err
	}

	if err := c.Logging.validateAndNormalize(); err != nil {
		return err
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = defaultMetricsPath
	}
	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("config: metrics.path must start with /")
	}

	if strings.TrimSpace(c.SystemActor.Email) == "" {
		c.SystemActor.Email = defaultSystemActorEmail
	}
	if strings.TrimSpace(c.SystemActor.Name) == "" {
		c.SystemActor.Name = defaultSystemActorName
	}

	if c.Finalization.DefaultEnergyPercentage == nil {
		v := defaultEnergyPercentage
		c.Finalization.DefaultEnergyPercentage = &v
	}
	if v := *c.Finalization.DefaultEnergyPercentage; v < 0 || v > 100 {
		return fmt.Errorf("config: finalization.default_energy_percentage must be between 0 and 100")
	}

	return nil
}

func (l *LoggingConfig) validateAndNormalize() error {
	if l.Level == "" {
		l.Level = defaultLogLevel
	}
	switch l.Format {
	case "":
		l.Format = defaultLogFormat
	case "text", "json":
	default:
		return fmt.Errorf("config: logging.format must be text or json")
	}
	return nil
}

func (d *DatabaseConfig) validateAndNormalize() error {
	if d.Host == "" {
		return fmt.Errorf("config: database.host must be set")
	}
	if d.Port == 0 {
		return fmt.Errorf("config: database.port must be set")
	}
	if d.User == "" {
		return fmt.Errorf("config: database.user must be set")
	}
	if d.Password == "" {
		return fmt.Errorf("config: database.password must be set")
	}
	if d.Name == "" {
		return fmt.Errorf("config: database.name must be set")
	}
	if d.SSLMode == "" {
		d.SSLMode = "disable"
	}

	lifetime, err := parseDurationAllowEmpty(d.ConnMaxLifetimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_lifetime: %w", err)
	}
	d.ConnMaxLifetime = lifetime

	idleTime, err := parseDurationAllowEmpty(d.ConnMaxIdleTimeRaw)
	if err != nil {
		return fmt.Errorf("config: database.conn_max_idle_time: %w", err)
	}
	d.ConnMaxIdleTime = idleTime

	if d.StatementTimeout, err = parseDurationAllowEmpty(d.StatementTimeoutRaw); err != nil {
		return fmt.Errorf("config: database.statement_timeout: %w", err)
	}
	if d.LockTimeout, err = parseDurationAllowEmpty(d.LockTimeoutRaw); err != nil {
		return fmt.Errorf("config: database.lock_timeout: %w", err)
	}

	d.Isolation = strings.ToLower(strings.TrimSpace(d.Isolation))
	switch d.Isolation {
	case "", "read committed", "repeatable read", "serializable":
	default:
		return fmt.Errorf("config: database.isolation must be read committed, repeatable read or serializable")
	}

	return nil
}

func parseDurationAllowEmpty(raw string) (time.Duration, error) {
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	return d, nil
}

// DSN は pgx 用の接続文字列を返します。認証情報はエスケープされます。
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}
