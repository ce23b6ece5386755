package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/stanstork/linkdoc-import/internal/utils"
)

const envPrefix = "LDIMPORT"

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"`
	URL          string `mapstructure:"url"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	JWTSecret      string   `mapstructure:"jwt_secret"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type WorkerConfig struct {
	ID           string        `mapstructure:"id"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
	// Mode is "ticker" for the in-process loop or "temporal" for the scheduled workflow.
	Mode string `mapstructure:"mode"`
}

type ImportAPIConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	PathPrefix        string        `mapstructure:"path_prefix"`
	ApplicationName   string        `mapstructure:"application_name"`
	CorrelationPrefix string        `mapstructure:"correlation_prefix"`
	Token             string        `mapstructure:"token"`
	TokenURL          string        `mapstructure:"token_url"`
	ClientID          string        `mapstructure:"client_id"`
	ClientSecret      string        `mapstructure:"client_secret"`
	Scope             string        `mapstructure:"scope"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	PollInterval      time.Duration `mapstructure:"poll_interval"`
	MaxPollAttempts   int           `mapstructure:"max_poll_attempts"`
	ProgressLogEvery  int           `mapstructure:"progress_log_every"`
	// LocalFileRoot is swapped for RemoteFileRoot in the data source path, for workers
	// that mount the file share somewhere other than where the remote service reads it.
	LocalFileRoot  string `mapstructure:"local_file_root"`
	RemoteFileRoot string `mapstructure:"remote_file_root"`
}

type TemporalConfig struct {
	HostPort     string `mapstructure:"host_port"`
	Namespace    string `mapstructure:"namespace"`
	TaskQueue    string `mapstructure:"task_queue"`
	CronSchedule string `mapstructure:"cron_schedule"`
}

type EmailConfig struct {
	From            string   `mapstructure:"from"`
	SMTPHost        string   `mapstructure:"smtp_host"`
	SMTPPort        int      `mapstructure:"smtp_port"`
	Username        string   `mapstructure:"username"`
	Password        string   `mapstructure:"password"`
	AlertRecipients []string `mapstructure:"alert_recipients"`
	MinSeverity     string   `mapstructure:"min_severity"`
}

// Enabled reports whether enough is configured to send mail.
func (e EmailConfig) Enabled() bool {
	return strings.TrimSpace(e.SMTPHost) != "" && len(e.AlertRecipients) > 0
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Server    ServerConfig    `mapstructure:"server"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	ImportAPI ImportAPIConfig `mapstructure:"import_api"`
	Temporal  TemporalConfig  `mapstructure:"temporal"`
	Email     EmailConfig     `mapstructure:"email"`
	Log       LogConfig       `mapstructure:"log"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	cfg, err := LoadFile("")
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	return cfg
}

// LoadFile reads path, or config.yaml from . and ./config when path is empty.
// LDIMPORT_* environment variables override file values.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		// Look for config in the current directory and ./config
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.AddConfigPath("./config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || path != "" {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	applyDefaults(&config)
	if err := decryptSecrets(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// bindEnv registers every key so environment variables apply even when the file
// does not mention them.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"database.driver", "database.url", "database.max_open_conns",
		"server.port", "server.jwt_secret", "server.allowed_origins",
		"worker.id", "worker.poll_interval", "worker.batch_size", "worker.mode",
		"import_api.base_url", "import_api.path_prefix", "import_api.application_name",
		"import_api.correlation_prefix", "import_api.token", "import_api.token_url",
		"import_api.client_id", "import_api.client_secret", "import_api.scope",
		"import_api.request_timeout", "import_api.requests_per_second", "import_api.poll_interval",
		"import_api.max_poll_attempts", "import_api.progress_log_every",
		"import_api.local_file_root", "import_api.remote_file_root",
		"temporal.host_port", "temporal.namespace", "temporal.task_queue", "temporal.cron_schedule",
		"email.from", "email.smtp_host", "email.smtp_port", "email.username", "email.password",
		"email.alert_recipients", "email.min_severity",
		"log.level", "log.format",
	} {
		_ = v.BindEnv(key)
	}
}

func applyDefaults(config *Config) {
	if config.Database.Driver == "" {
		config.Database.Driver = "postgres"
	}
	if config.Database.MaxOpenConns == 0 {
		config.Database.MaxOpenConns = 10
	}

	if config.Server.Port == "" {
		config.Server.Port = "8080"
	}

	if config.Worker.PollInterval == 0 {
		config.Worker.PollInterval = 30 * time.Second
	}
	if config.Worker.BatchSize <= 0 {
		config.Worker.BatchSize = 1
	}
	if config.Worker.Mode == "" {
		config.Worker.Mode = "ticker"
	}

	api := &config.ImportAPI
	if api.PathPrefix == "" {
		api.PathPrefix = "Relativity.REST/api/import-service/v1"
	}
	if api.TokenURL == "" && api.BaseURL != "" {
		api.TokenURL = strings.TrimRight(api.BaseURL, "/") + "/Identity/connect/token"
	}
	if api.Scope == "" {
		api.Scope = "SystemUserInfo"
	}
	if api.RequestTimeout == 0 {
		api.RequestTimeout = 5 * time.Minute
	}
	if api.PollInterval == 0 {
		api.PollInterval = 10 * time.Second
	}
	if api.MaxPollAttempts == 0 {
		api.MaxPollAttempts = 180
	}
	if api.ProgressLogEvery == 0 {
		api.ProgressLogEvery = 10
	}

	if config.Temporal.HostPort == "" {
		config.Temporal.HostPort = "localhost:7233"
	}
	if config.Temporal.Namespace == "" {
		config.Temporal.Namespace = "default"
	}
	if config.Temporal.TaskQueue == "" {
		config.Temporal.TaskQueue = "LINKDOC_IMPORT_TASK_QUEUE"
	}
	if config.Temporal.CronSchedule == "" {
		config.Temporal.CronSchedule = "* * * * *"
	}

	if config.Email.SMTPPort == 0 {
		config.Email.SMTPPort = 587
	}

	if config.Log.Level == "" {
		config.Log.Level = "info"
	}
	if config.Log.Format == "" {
		config.Log.Format = "console"
	}
}

func decryptSecrets(config *Config) error {
	for name, field := range map[string]*string{
		"database.url":             &config.Database.URL,
		"server.jwt_secret":        &config.Server.JWTSecret,
		"import_api.token":         &config.ImportAPI.Token,
		"import_api.client_secret": &config.ImportAPI.ClientSecret,
		"email.password":           &config.Email.Password,
	} {
		plain, err := utils.DecryptSecret(*field)
		if err != nil {
			return fmt.Errorf("decrypt %s: %w", name, err)
		}
		*field = plain
	}
	return nil
}

// Validate checks the settings every command relies on.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("database.driver must be postgres or sqlite3, got %q", c.Database.Driver)
	}
	if c.Database.URL == "" {
		return fmt.Errorf("database.url must be set")
	}
	switch c.Worker.Mode {
	case "ticker", "temporal":
	default:
		return fmt.Errorf("worker.mode must be ticker or temporal, got %q", c.Worker.Mode)
	}
	return nil
}

// ValidateServer checks what the admin API needs on top of Validate.
func (c *Config) ValidateServer() error {
	if c.Server.JWTSecret == "" {
		return fmt.Errorf("server.jwt_secret must be set")
	}
	return nil
}

// ValidateImportAPI checks what the runner needs to reach the remote service.
func (c *Config) ValidateImportAPI() error {
	if c.ImportAPI.BaseURL == "" {
		return fmt.Errorf("import_api.base_url must be set")
	}
	if c.ImportAPI.Token == "" && (c.ImportAPI.ClientID == "" || c.ImportAPI.ClientSecret == "") {
		return fmt.Errorf("import_api needs either token or client_id and client_secret")
	}
	return nil
}
