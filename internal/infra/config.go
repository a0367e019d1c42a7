package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/xela07ax/spaceai-agentmesh/internal/domain"
)

// Config: корневая структура конфигурации всей платформы.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	Auth         AuthConfig         `mapstructure:"auth"`
	Completion   CompletionConfig   `mapstructure:"completion"`
	Directory    DirectoryConfig    `mapstructure:"directory"`
	Orchestrator OrchestratorConfig `mapstructure:"orchestrator"`
	Capability   CapabilityConfig   `mapstructure:"capability"`
	Interaction  InteractionConfig  `mapstructure:"interaction"`
	Audit        AuditConfig        `mapstructure:"audit"`
	Bridge       BridgeConfig       `mapstructure:"bridge"`
	Logger       LoggerConfig       `mapstructure:"logger"`
}

// ServerConfig описывает настройки HTTP и gRPC серверов.
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	GRPCPort     int           `mapstructure:"grpc_port"`
	MetricsPort  int           `mapstructure:"metrics_port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
// Пустой URL означает работу без базы (файловые хранилища).
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// RedisConfig описывает подключение к Redis (Pub/Sub и данные персоны).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит путь к публичному RSA ключу для проверки JWT.
// Пустой ключ отключает проверку токенов (локальный режим).
type AuthConfig struct {
	PublicKeyPath string `mapstructure:"public_key_path"`
	PublicKey     []byte
}

// CompletionConfig настраивает внешний сервис рассуждений и его защиту.
type CompletionConfig struct {
	Provider       string        `mapstructure:"provider"` // anthropic
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	MaxTokens      int64         `mapstructure:"max_tokens"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RetryAttempts  uint          `mapstructure:"retry_attempts"`
	RateLimit      float64       `mapstructure:"rate_limit"` // запросов в секунду
	RateBurst      int           `mapstructure:"rate_burst"`

	// Настройки Circuit Breaker
	CBMaxRequests uint32        `mapstructure:"cb_max_requests"`
	CBInterval    time.Duration `mapstructure:"cb_interval"`
	CBTimeout     time.Duration `mapstructure:"cb_timeout"`
	CBMaxFailures uint32        `mapstructure:"cb_max_failures"`
}

// DirectoryConfig описывает источники агентов.
type DirectoryConfig struct {
	SelfID      string   `mapstructure:"self_id"`
	ManifestDir string   `mapstructure:"manifest_dir"`
	Watch       bool     `mapstructure:"watch"`
	Builtins    bool     `mapstructure:"builtins"`
	Blocked     []string `mapstructure:"blocked"` // начальный набор kill-switch

	// Удаленные агенты (kind: remote): Bearer токен для их gRPC и таймаут вызова
	RemoteToken   string        `mapstructure:"remote_token"`
	RemoteTimeout time.Duration `mapstructure:"remote_timeout"`
}

// OrchestratorConfig: пара агентов на случай пустого плана, таймаут дайджеста
// и нужно ли писать собственное management-взаимодействие в сессию.
type OrchestratorConfig struct {
	FallbackAgents []string      `mapstructure:"fallback_agents"`
	DigestTimeout  time.Duration `mapstructure:"digest_timeout"`
	TrackSelf      bool          `mapstructure:"track_self"`
}

type CapabilityConfig struct {
	CNSDir         string        `mapstructure:"cns_dir"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	AssessCacheTTL time.Duration `mapstructure:"assess_cache_ttl"`
	FanOutLimit    int           `mapstructure:"fan_out_limit"`
}

type InteractionConfig struct {
	Store   string `mapstructure:"store"` // file, postgres
	LogsDir string `mapstructure:"logs_dir"`
}

type AuditConfig struct {
	Path          string        `mapstructure:"path"`
	MaxEntries    int           `mapstructure:"max_entries"`
	BufferSize    int           `mapstructure:"buffer_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// BridgeConfig задает стартовый allow-list и статичные данные персоны.
type BridgeConfig struct {
	Grants []domain.Grant               `mapstructure:"grants"`
	Data   map[string]map[string]string `mapstructure:"data"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	return LoadConfigFrom("")
}

// LoadConfigFrom читает конкретный файл, если путь задан (флаг --config).
func LoadConfigFrom(path string) (*Config, error) {
	v := viper.New()

	// 1. Настройка поиска файла
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	// 2. Переменные окружения: SERVER_PORT=9000 перекроет server.port
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 3. Дефолты
	setDefaults(v)

	// 4. Чтение файла
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет, работаем на ENV и дефолтах
	}

	// 5. Маппинг в структуру
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// 6. Ключ из ENV или из файла
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")

	// 7. Ключ сервиса рассуждений по соглашению SDK
	if cfg.Completion.APIKey == "" {
		cfg.Completion.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.grpc_port", 50052)
	v.SetDefault("server.metrics_port", 9090)
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 120*time.Second)
	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("redis.addr", "")
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "json")

	v.SetDefault("completion.provider", "anthropic")
	v.SetDefault("completion.model", "claude-sonnet-4-20250514")
	v.SetDefault("completion.max_tokens", 4000)
	v.SetDefault("completion.request_timeout", 60*time.Second)
	v.SetDefault("completion.retry_attempts", 3)
	v.SetDefault("completion.rate_limit", 5)
	v.SetDefault("completion.rate_burst", 5)
	v.SetDefault("completion.cb_max_requests", 3)
	v.SetDefault("completion.cb_interval", 5*time.Second)
	v.SetDefault("completion.cb_timeout", 30*time.Second)
	v.SetDefault("completion.cb_max_failures", 5)

	v.SetDefault("directory.self_id", "master-orchestrator")
	v.SetDefault("directory.manifest_dir", "")
	v.SetDefault("directory.watch", false)
	v.SetDefault("directory.builtins", true)
	v.SetDefault("directory.blocked", []string{})
	v.SetDefault("directory.remote_timeout", 60*time.Second)

	v.SetDefault("orchestrator.fallback_agents", []string{"project-coordinator-agent", "communications-agent"})
	v.SetDefault("orchestrator.digest_timeout", 5*time.Second)
	v.SetDefault("orchestrator.track_self", false)

	v.SetDefault("capability.cns_dir", "agents")
	v.SetDefault("capability.cache_ttl", 5*time.Minute)
	v.SetDefault("capability.assess_cache_ttl", 2*time.Minute)
	v.SetDefault("capability.fan_out_limit", 8)

	v.SetDefault("interaction.store", "file")
	v.SetDefault("interaction.logs_dir", "data/interaction-logs")

	v.SetDefault("audit.path", "data/audit-log.json")
	v.SetDefault("audit.max_entries", 1000)
	v.SetDefault("audit.buffer_size", 1000)
	v.SetDefault("audit.flush_interval", 1*time.Second)
}

// loadKeyResource: PEM прямо в ENV (Docker/K8s) или файл по пути из конфига
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
