// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-objbackup.
//
// go-objbackup is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/jeremyhahn/go-objbackup/pkg/backup"
	"github.com/jeremyhahn/go-objbackup/pkg/factory"
	"github.com/spf13/viper"
)

// DefaultStoragePath is the root of the local store when none is set.
const DefaultStoragePath = "./storage"

// Config is the complete daemon and CLI configuration. It is loaded once
// at start and passed to constructors explicitly.
type Config struct {
	// Output is the CLI output format: text, json or table.
	Output string `mapstructure:"output"`

	Remote   RemoteConfig   `mapstructure:"remote"`
	Log      LogConfig      `mapstructure:"log"`
	Store    BackendConfig  `mapstructure:"store"`
	Queue    BackendConfig  `mapstructure:"queue"`
	Journal  JournalConfig  `mapstructure:"journal"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Restore  RestoreConfig  `mapstructure:"restore"`
	Breaker  BreakerConfig  `mapstructure:"breaker"`
	Server   ServerConfig   `mapstructure:"server"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	QUIC     QUICConfig     `mapstructure:"quic"`
	MCP      MCPConfig      `mapstructure:"mcp"`
}

// RemoteConfig points client commands at a running server. When URL is
// empty, restore and status run against the local configuration.
type RemoteConfig struct {
	URL         string `mapstructure:"url"`
	APIKey      string `mapstructure:"api_key"`
	GRPCAddress string `mapstructure:"grpc_address"`
}

// LogConfig selects the logger.
type LogConfig struct {
	Backend string `mapstructure:"backend"`
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
}

// BackendConfig names a registered backend and its settings.
type BackendConfig struct {
	Type     string            `mapstructure:"type"`
	Settings map[string]string `mapstructure:"settings"`
}

// JournalConfig selects the journal store.
type JournalConfig struct {
	// Backend is memory, file or badger.
	Backend  string `mapstructure:"backend"`
	Path     string `mapstructure:"path"`
	PageSize int    `mapstructure:"page_size"`
}

// JobsConfig selects the restore job registry.
type JobsConfig struct {
	// Backend is memory, badger or postgres. A badger registry with the
	// same path as a badger journal shares its database.
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
	DSN     string `mapstructure:"dsn"`
	Table   string `mapstructure:"table"`
}

// IngestConfig configures the backup ingestion worker.
type IngestConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	BatchSize         int           `mapstructure:"batch_size"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout"`
	Interval          time.Duration `mapstructure:"interval"`
	ContainerPrefix   string        `mapstructure:"container_prefix"`
	TimestampSuffix   bool          `mapstructure:"timestamp_suffix"`
}

// DispatchConfig configures the restore job dispatcher.
type DispatchConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Interval time.Duration `mapstructure:"interval"`
	Owner    string        `mapstructure:"owner"`
}

// RestoreConfig configures restore runs.
type RestoreConfig struct {
	// UpdateFrequency is the number of successes between job checkpoints.
	UpdateFrequency int `mapstructure:"update_frequency"`
}

// BreakerConfig configures the circuit breaker in front of the store.
type BreakerConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	FailureThreshold uint32        `mapstructure:"failure_threshold"`
	Timeout          time.Duration `mapstructure:"timeout"`
}

// TLSSettings are the certificate files shared by the REST and gRPC
// listeners.
type TLSSettings struct {
	CertFile     string `mapstructure:"cert_file"`
	KeyFile      string `mapstructure:"key_file"`
	ClientCAFile string `mapstructure:"client_ca_file"`
}

// ServerConfig configures the REST listener.
type ServerConfig struct {
	Enabled        bool              `mapstructure:"enabled"`
	Host           string            `mapstructure:"host"`
	Port           int               `mapstructure:"port"`
	BaseURL        string            `mapstructure:"base_url"`
	APIKeys        map[string]string `mapstructure:"api_keys"`
	RateLimit      float64           `mapstructure:"rate_limit"`
	RateBurst      int               `mapstructure:"rate_burst"`
	PerClient      bool              `mapstructure:"per_client"`
	MaxRequestSize int64             `mapstructure:"max_request_size"`
	Audit          bool              `mapstructure:"audit"`
	TLS            TLSSettings       `mapstructure:"tls"`
}

// GRPCConfig configures the gRPC health listener.
type GRPCConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// QUICConfig configures the HTTP/3 listener that serves the REST API over
// QUIC. It uses the server.tls certificate.
type QUICConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
	// SelfSigned generates a localhost certificate when server.tls has none.
	SelfSigned bool `mapstructure:"self_signed"`
}

// MCPConfig configures the Model Context Protocol tool server.
type MCPConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}

// settingKeys restores the case of backend setting names; viper lowercases
// map keys read from files.
var settingKeys = []string{
	"accessKey", "accountKey", "accountName", "ackWait", "bucket",
	"connectionString", "consumer", "copySourceSAS", "credentialsFile",
	"debounce", "endpoint", "excludeContainers", "fetchWait", "path",
	"queueUrl", "region", "secretKey", "stream", "subject", "url",
	"usePathStyle", "waitTime", "withoutAuthentication",
}

func canonicalSettings(in map[string]string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		key := k
		for _, known := range settingKeys {
			if strings.EqualFold(k, known) {
				key = known
				break
			}
		}
		out[key] = v
	}
	return out
}

// InitConfig initializes the configuration using Viper.
// Configuration priority: flags > env vars > config file > defaults.
func InitConfig(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigName(".objbackup")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("OBJBACKUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// It's okay if config file doesn't exist
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}
	return v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("output", "text")

	v.SetDefault("remote.url", "")
	v.SetDefault("remote.api_key", "")
	v.SetDefault("remote.grpc_address", "")

	v.SetDefault("log.backend", "slog")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("store.type", "local")
	v.SetDefault("queue.type", "watch")

	v.SetDefault("journal.backend", "badger")
	v.SetDefault("journal.path", "./data")
	v.SetDefault("journal.page_size", 0)

	v.SetDefault("jobs.backend", "badger")
	v.SetDefault("jobs.path", "./data")
	v.SetDefault("jobs.dsn", "")
	v.SetDefault("jobs.table", "")

	v.SetDefault("ingest.enabled", true)
	v.SetDefault("ingest.batch_size", 10)
	v.SetDefault("ingest.visibility_timeout", 5*time.Minute)
	v.SetDefault("ingest.interval", 5*time.Second)
	v.SetDefault("ingest.container_prefix", "backup")
	v.SetDefault("ingest.timestamp_suffix", false)

	v.SetDefault("dispatch.enabled", true)
	v.SetDefault("dispatch.interval", 10*time.Second)
	v.SetDefault("dispatch.owner", "")

	v.SetDefault("restore.update_frequency", 100)

	v.SetDefault("breaker.enabled", true)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.timeout", 10*time.Second)

	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "")
	v.SetDefault("server.rate_limit", 0)
	v.SetDefault("server.rate_burst", 100)
	v.SetDefault("server.per_client", true)
	v.SetDefault("server.max_request_size", 1<<20)
	v.SetDefault("server.audit", false)
	v.SetDefault("server.tls.cert_file", "")
	v.SetDefault("server.tls.key_file", "")
	v.SetDefault("server.tls.client_ca_file", "")

	v.SetDefault("grpc.enabled", false)
	v.SetDefault("grpc.address", ":50051")

	v.SetDefault("quic.enabled", false)
	v.SetDefault("quic.address", ":4433")
	v.SetDefault("quic.self_signed", false)

	v.SetDefault("mcp.enabled", false)
	v.SetDefault("mcp.address", ":8090")
}

// GetConfig extracts the configuration from Viper into a Config struct.
func GetConfig(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}
	cfg.Store.Settings = canonicalSettings(cfg.Store.Settings)
	cfg.Queue.Settings = canonicalSettings(cfg.Queue.Settings)
	applySettingDefaults(&cfg)
	return &cfg, nil
}

// applySettingDefaults fills backend settings that depend on other
// sections. Map defaults are not registered with viper because it merges
// them key by key into whatever the file sets.
func applySettingDefaults(cfg *Config) {
	if cfg.Store.Type == "local" && cfg.Store.Settings["path"] == "" {
		cfg.Store.Settings["path"] = DefaultStoragePath
	}
	if cfg.Queue.Type == "watch" {
		if cfg.Queue.Settings["path"] == "" {
			cfg.Queue.Settings["path"] = cfg.Store.Settings["path"]
		}
		if _, ok := cfg.Queue.Settings["excludeContainers"]; !ok {
			cfg.Queue.Settings["excludeContainers"] = backup.ContainerPattern(cfg.Ingest.ContainerPrefix)
		}
	}
}

func expandHome(path string) (string, error) {
	if !strings.HasPrefix(path, "~") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, path[1:]), nil
}

// ValidateConfig checks backend and format choices and expands "~" in
// paths.
func ValidateConfig(cfg *Config) error {
	if !slices.Contains(factory.StoreTypes(), cfg.Store.Type) {
		return fmt.Errorf("%w: %q (available: %s)", ErrUnsupportedStore, cfg.Store.Type, strings.Join(factory.StoreTypes(), ", "))
	}
	if cfg.Ingest.Enabled && !slices.Contains(factory.QueueTypes(), cfg.Queue.Type) {
		return fmt.Errorf("%w: %q (available: %s)", ErrUnsupportedQueue, cfg.Queue.Type, strings.Join(factory.QueueTypes(), ", "))
	}

	for _, settings := range []map[string]string{cfg.Store.Settings, cfg.Queue.Settings} {
		if p, ok := settings["path"]; ok {
			expanded, err := expandHome(p)
			if err != nil {
				return err
			}
			settings["path"] = expanded
		}
	}

	switch cfg.Journal.Backend {
	case "memory":
	case "file", "badger":
		if cfg.Journal.Path == "" {
			return ErrJournalPathRequired
		}
		p, err := expandHome(cfg.Journal.Path)
		if err != nil {
			return err
		}
		cfg.Journal.Path = p
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedJournal, cfg.Journal.Backend)
	}

	switch cfg.Jobs.Backend {
	case "memory":
	case "badger":
		p, err := expandHome(cfg.Jobs.Path)
		if err != nil {
			return err
		}
		cfg.Jobs.Path = p
	case "postgres":
		if cfg.Jobs.DSN == "" {
			return ErrJobsDSNRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedRegistry, cfg.Jobs.Backend)
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return ErrInvalidPort
	}
	if cfg.QUIC.Enabled && !cfg.QUIC.SelfSigned &&
		(cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "") {
		return ErrQUICTLSRequired
	}

	switch OutputFormat(cfg.Output) {
	case FormatText, FormatJSON, FormatTable:
	default:
		return ErrUnsupportedOutputFormat
	}
	return nil
}

// secretSettings are masked when configuration is displayed.
var secretSettings = []string{"accessKey", "accountKey", "connectionString", "copySourceSAS", "secretKey"}

func maskedSettings(settings map[string]string) map[string]string {
	out := make(map[string]string, len(settings))
	for k, v := range settings {
		if slices.Contains(secretSettings, k) {
			v = maskSecret(v)
		}
		out[k] = v
	}
	return out
}

// configRows flattens cfg into display rows with secrets masked.
func configRows(cfg *Config) [][2]string {
	rows := [][2]string{
		{"Output", cfg.Output},
		{"Log", fmt.Sprintf("%s/%s/%s", cfg.Log.Backend, cfg.Log.Level, cfg.Log.Format)},
		{"Store", cfg.Store.Type},
	}
	for _, k := range sortedKeys(cfg.Store.Settings) {
		rows = append(rows, [2]string{"  " + k, maskedSettings(cfg.Store.Settings)[k]})
	}
	rows = append(rows, [2]string{"Queue", cfg.Queue.Type})
	for _, k := range sortedKeys(cfg.Queue.Settings) {
		rows = append(rows, [2]string{"  " + k, maskedSettings(cfg.Queue.Settings)[k]})
	}
	rows = append(rows,
		[2]string{"Journal", cfg.Journal.Backend + " " + cfg.Journal.Path},
		[2]string{"Jobs", cfg.Jobs.Backend + " " + cfg.Jobs.Path},
	)
	if cfg.Jobs.DSN != "" {
		rows = append(rows, [2]string{"  dsn", maskSecret(cfg.Jobs.DSN)})
	}
	rows = append(rows,
		[2]string{"Ingest", fmt.Sprintf("enabled=%t batch=%d interval=%s", cfg.Ingest.Enabled, cfg.Ingest.BatchSize, cfg.Ingest.Interval)},
		[2]string{"Dispatch", fmt.Sprintf("enabled=%t interval=%s", cfg.Dispatch.Enabled, cfg.Dispatch.Interval)},
		[2]string{"Server", fmt.Sprintf("enabled=%t %s:%d", cfg.Server.Enabled, cfg.Server.Host, cfg.Server.Port)},
		[2]string{"gRPC", fmt.Sprintf("enabled=%t %s", cfg.GRPC.Enabled, cfg.GRPC.Address)},
		[2]string{"HTTP/3", fmt.Sprintf("enabled=%t %s", cfg.QUIC.Enabled, cfg.QUIC.Address)},
		[2]string{"MCP", fmt.Sprintf("enabled=%t %s", cfg.MCP.Enabled, cfg.MCP.Address)},
	)
	if len(cfg.Server.APIKeys) > 0 {
		rows = append(rows, [2]string{"  api keys", strings.Join(sortedKeys(cfg.Server.APIKeys), ", ")})
	}
	if cfg.Remote.URL != "" {
		rows = append(rows, [2]string{"Remote", cfg.Remote.URL})
	}
	return rows
}

// DisplayConfig formats and displays the current configuration.
func DisplayConfig(cfg *Config, format string) string {
	switch OutputFormat(format) {
	case FormatJSON:
		masked := *cfg
		masked.Store.Settings = maskedSettings(cfg.Store.Settings)
		masked.Queue.Settings = maskedSettings(cfg.Queue.Settings)
		if masked.Jobs.DSN != "" {
			masked.Jobs.DSN = maskSecret(masked.Jobs.DSN)
		}
		if masked.Remote.APIKey != "" {
			masked.Remote.APIKey = maskSecret(masked.Remote.APIKey)
		}
		masked.Server.APIKeys = nil
		return formatJSON(masked)
	case FormatTable:
		return formatRowsTable(configRows(cfg))
	default:
		var b strings.Builder
		for _, row := range configRows(cfg) {
			fmt.Fprintf(&b, "%s: %s\n", row[0], row[1])
		}
		return b.String()
	}
}

// maskSecret masks sensitive information, showing only first 4 characters.
func maskSecret(s string) string {
	if len(s) < 5 {
		return "****"
	}
	return s[:4] + "****"
}

// truncate truncates a string to maxLen characters.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
