package config

import (
	"errors"
	"fmt"
	"mime"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/r9s-ai/fieldproxy/pkg/jsonutil"
)

const (
	defaultAccessLogRotateMaxSizeMB  = 100
	defaultAccessLogRotateMaxBackups = 14
	defaultAccessLogRotateMaxAgeDays = 14

	defaultFilterParam        = "fields"
	defaultFilterMaxBodyBytes = 8 * 1024 * 1024
	defaultFilterCacheSize    = 256
)

type AccessLogRotateConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxSizeMB  int  `yaml:"max_size_mb"`
	MaxBackups int  `yaml:"max_backups"`
	MaxAgeDays int  `yaml:"max_age_days"`
	Compress   bool `yaml:"compress"`

	maxSizeMBSet  bool `yaml:"-"`
	maxBackupsSet bool `yaml:"-"`
	maxAgeDaysSet bool `yaml:"-"`
}

// UnmarshalYAML records which limits were written explicitly so that an
// explicit zero is validated instead of replaced by a default.
func (c *AccessLogRotateConfig) UnmarshalYAML(value *yaml.Node) error {
	type rawRotate AccessLogRotateConfig
	var raw rawRotate
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*c = AccessLogRotateConfig(raw)
	c.maxSizeMBSet, c.maxBackupsSet, c.maxAgeDaysSet = false, false, false

	if value.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		switch strings.TrimSpace(value.Content[i].Value) {
		case "max_size_mb":
			c.maxSizeMBSet = true
		case "max_backups":
			c.maxBackupsSet = true
		case "max_age_days":
			c.maxAgeDaysSet = true
		}
	}
	return nil
}

type LoggingConfig struct {
	Level                 string                `yaml:"level"`
	AccessLog             *bool                 `yaml:"access_log"`
	AccessLogPath         string                `yaml:"access_log_path"`
	AccessLogFormat       string                `yaml:"access_log_format"`
	AccessLogFormatPreset string                `yaml:"access_log_format_preset"`
	AccessLogRotate       AccessLogRotateConfig `yaml:"access_log_rotate"`
}

// AccessLogEnabled defaults to true when access_log is not set.
func (l LoggingConfig) AccessLogEnabled() bool {
	return l.AccessLog == nil || *l.AccessLog
}

type FilterConfig struct {
	// Enabled turns filtering on for paths that no rule matches.
	Enabled bool `yaml:"enabled"`
	// Param is the query parameter carrying the selection string.
	Param        string   `yaml:"param"`
	ContentTypes []string `yaml:"content_types"`
	// PayloadPath locates the filtered payload inside the response body.
	PayloadPath  string `yaml:"payload_path"`
	EachItem     bool   `yaml:"each_item"`
	MaxBodyBytes int    `yaml:"max_body_bytes"`
	CacheSize    int    `yaml:"cache_size"`
	// RulesFile is an optional yaml file with per-path rules.
	RulesFile  string `yaml:"rules_file"`
	AutoReload struct {
		Enabled    bool `yaml:"enabled"`
		DebounceMs int  `yaml:"debounce_ms"`
	} `yaml:"auto_reload"`

	enabledSet  bool `yaml:"-"`
	eachItemSet bool `yaml:"-"`
}

func (c *FilterConfig) UnmarshalYAML(value *yaml.Node) error {
	type rawFilter FilterConfig
	var raw rawFilter
	if err := value.Decode(&raw); err != nil {
		return err
	}
	*c = FilterConfig(raw)
	c.enabledSet, c.eachItemSet = false, false
	if value.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		switch strings.TrimSpace(value.Content[i].Value) {
		case "enabled":
			c.enabledSet = true
		case "each_item":
			c.eachItemSet = true
		}
	}
	return nil
}

type Config struct {
	Server struct {
		Listen         string `yaml:"listen"`
		ReadTimeoutMs  int    `yaml:"read_timeout_ms"`
		WriteTimeoutMs int    `yaml:"write_timeout_ms"`
		PidFile        string `yaml:"pid_file"`
		// H2C serves cleartext HTTP/2 next to HTTP/1.1.
		H2C bool `yaml:"h2c"`
	} `yaml:"server"`

	Upstream struct {
		BaseURL   string `yaml:"base_url"`
		TimeoutMs int    `yaml:"timeout_ms"`
		// ProxyURL is an optional outbound HTTP proxy (e.g. "http://127.0.0.1:7890").
		ProxyURL     string `yaml:"proxy_url"`
		PreserveHost bool   `yaml:"preserve_host"`
	} `yaml:"upstream"`

	Auth struct {
		// APIKey protects the /admin endpoints when set.
		APIKey string `yaml:"api_key"`
	} `yaml:"auth"`

	Filter FilterConfig `yaml:"filter"`

	Telemetry struct {
		// OTLPEndpoint enables trace export over OTLP/gRPC when set.
		OTLPEndpoint string `yaml:"otlp_endpoint"`
		ServiceName  string `yaml:"service_name"`
	} `yaml:"telemetry"`

	Logging LoggingConfig `yaml:"logging"`
}

func Load(path string) (*Config, error) {
	// #nosec G304 -- path is provided by trusted config/flag.
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes a config document and applies defaults, FP_* environment
// overrides and validation.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}
	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if strings.TrimSpace(cfg.Server.Listen) == "" {
		cfg.Server.Listen = ":3400"
	}
	if cfg.Server.ReadTimeoutMs <= 0 {
		cfg.Server.ReadTimeoutMs = 60000
	}
	if cfg.Server.WriteTimeoutMs <= 0 {
		cfg.Server.WriteTimeoutMs = 60000
	}
	if strings.TrimSpace(cfg.Server.PidFile) == "" {
		cfg.Server.PidFile = "/var/run/fieldproxy.pid"
	}
	if cfg.Upstream.TimeoutMs <= 0 {
		cfg.Upstream.TimeoutMs = cfg.Server.WriteTimeoutMs
	}
	cfg.Upstream.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.Upstream.BaseURL), "/")

	// default true
	if !cfg.Filter.enabledSet {
		cfg.Filter.Enabled = true
	}
	if !cfg.Filter.eachItemSet {
		cfg.Filter.EachItem = true
	}
	if strings.TrimSpace(cfg.Filter.Param) == "" {
		cfg.Filter.Param = defaultFilterParam
	}
	if len(cfg.Filter.ContentTypes) == 0 {
		cfg.Filter.ContentTypes = []string{"application/json"}
	}
	cfg.Filter.ContentTypes = normalizeMediaTypes(cfg.Filter.ContentTypes)
	if cfg.Filter.MaxBodyBytes == 0 {
		cfg.Filter.MaxBodyBytes = defaultFilterMaxBodyBytes
	}
	if cfg.Filter.CacheSize == 0 {
		cfg.Filter.CacheSize = defaultFilterCacheSize
	}
	if cfg.Filter.AutoReload.DebounceMs <= 0 {
		cfg.Filter.AutoReload.DebounceMs = 300
	}

	if strings.TrimSpace(cfg.Telemetry.ServiceName) == "" {
		cfg.Telemetry.ServiceName = "fieldproxy"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if !cfg.Logging.AccessLogRotate.maxSizeMBSet {
		cfg.Logging.AccessLogRotate.MaxSizeMB = defaultAccessLogRotateMaxSizeMB
	}
	if !cfg.Logging.AccessLogRotate.maxBackupsSet {
		cfg.Logging.AccessLogRotate.MaxBackups = defaultAccessLogRotateMaxBackups
	}
	if !cfg.Logging.AccessLogRotate.maxAgeDaysSet {
		cfg.Logging.AccessLogRotate.MaxAgeDays = defaultAccessLogRotateMaxAgeDays
	}
}

func applyEnvOverrides(cfg *Config) {
	applyEnvServerOverrides(cfg)
	applyEnvFilterOverrides(cfg)
	applyEnvLoggingOverrides(cfg)
}

func applyEnvServerOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("FP_LISTEN")); v != "" {
		cfg.Server.Listen = v
	}
	if n, ok := envInt("FP_READ_TIMEOUT_MS"); ok && n > 0 {
		cfg.Server.ReadTimeoutMs = n
	}
	if n, ok := envInt("FP_WRITE_TIMEOUT_MS"); ok && n > 0 {
		cfg.Server.WriteTimeoutMs = n
	}
	if v := strings.TrimSpace(os.Getenv("FP_PID_FILE")); v != "" {
		cfg.Server.PidFile = v
	}
	cfg.Server.H2C = envBool("FP_H2C", cfg.Server.H2C)
	if v := strings.TrimSpace(os.Getenv("FP_UPSTREAM_BASE_URL")); v != "" {
		cfg.Upstream.BaseURL = strings.TrimRight(v, "/")
	}
	if n, ok := envInt("FP_UPSTREAM_TIMEOUT_MS"); ok && n > 0 {
		cfg.Upstream.TimeoutMs = n
	}
	if v, ok := os.LookupEnv("FP_UPSTREAM_PROXY_URL"); ok {
		// Allow unsetting by providing empty string.
		cfg.Upstream.ProxyURL = strings.TrimSpace(v)
	}
	if v := strings.TrimSpace(os.Getenv("FP_API_KEY")); v != "" {
		cfg.Auth.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("FP_OTLP_ENDPOINT")); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
}

func applyEnvFilterOverrides(cfg *Config) {
	cfg.Filter.Enabled = envBool("FP_FILTER_ENABLED", cfg.Filter.Enabled)
	if v := strings.TrimSpace(os.Getenv("FP_FILTER_PARAM")); v != "" {
		cfg.Filter.Param = v
	}
	if v := strings.TrimSpace(os.Getenv("FP_FILTER_PAYLOAD_PATH")); v != "" {
		cfg.Filter.PayloadPath = v
	}
	cfg.Filter.EachItem = envBool("FP_FILTER_EACH_ITEM", cfg.Filter.EachItem)
	if n, ok := envInt("FP_FILTER_MAX_BODY_BYTES"); ok {
		cfg.Filter.MaxBodyBytes = n
	}
	if n, ok := envInt("FP_FILTER_CACHE_SIZE"); ok {
		cfg.Filter.CacheSize = n
	}
	if v := strings.TrimSpace(os.Getenv("FP_FILTER_RULES_FILE")); v != "" {
		cfg.Filter.RulesFile = v
	}
	cfg.Filter.AutoReload.Enabled = envBool("FP_FILTER_AUTO_RELOAD_ENABLED", cfg.Filter.AutoReload.Enabled)
	if n, ok := envInt("FP_FILTER_AUTO_RELOAD_DEBOUNCE_MS"); ok {
		cfg.Filter.AutoReload.DebounceMs = n
	}
}

func applyEnvLoggingOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("FP_ACCESS_LOG"); ok && strings.TrimSpace(v) != "" {
		b := envBool("FP_ACCESS_LOG", cfg.Logging.AccessLogEnabled())
		cfg.Logging.AccessLog = &b
	}
	if v := strings.TrimSpace(os.Getenv("FP_ACCESS_LOG_PATH")); v != "" {
		cfg.Logging.AccessLogPath = v
	}
	if v := os.Getenv("FP_ACCESS_LOG_FORMAT"); strings.TrimSpace(v) != "" {
		cfg.Logging.AccessLogFormat = v
	}
	if v := strings.TrimSpace(os.Getenv("FP_ACCESS_LOG_FORMAT_PRESET")); v != "" {
		cfg.Logging.AccessLogFormatPreset = v
	}
	cfg.Logging.AccessLogRotate.Enabled = envBool("FP_ACCESS_LOG_ROTATE_ENABLED", cfg.Logging.AccessLogRotate.Enabled)
	if n, ok := envInt("FP_ACCESS_LOG_ROTATE_MAX_SIZE_MB"); ok {
		cfg.Logging.AccessLogRotate.MaxSizeMB = n
	}
	if n, ok := envInt("FP_ACCESS_LOG_ROTATE_MAX_BACKUPS"); ok {
		cfg.Logging.AccessLogRotate.MaxBackups = n
	}
	if n, ok := envInt("FP_ACCESS_LOG_ROTATE_MAX_AGE_DAYS"); ok {
		cfg.Logging.AccessLogRotate.MaxAgeDays = n
	}
	cfg.Logging.AccessLogRotate.Compress = envBool("FP_ACCESS_LOG_ROTATE_COMPRESS", cfg.Logging.AccessLogRotate.Compress)
}

func validate(cfg *Config) error {
	if cfg.Upstream.BaseURL == "" {
		return errors.New("upstream.base_url is required")
	}
	if !strings.Contains(cfg.Upstream.BaseURL, "://") {
		return errors.New("upstream.base_url must be a URL (e.g. http://127.0.0.1:8080)")
	}
	if v := cfg.Upstream.ProxyURL; v != "" && !strings.Contains(v, "://") {
		return errors.New("upstream.proxy_url must be a URL (e.g. http://127.0.0.1:7890)")
	}
	if err := jsonutil.ValidatePath(cfg.Filter.PayloadPath); err != nil {
		return fmt.Errorf("filter.payload_path: %w", err)
	}
	if cfg.Filter.MaxBodyBytes < 0 {
		return errors.New("filter.max_body_bytes must be non-negative")
	}
	if cfg.Filter.CacheSize < 0 {
		return errors.New("filter.cache_size must be non-negative")
	}
	if cfg.Filter.AutoReload.Enabled {
		if strings.TrimSpace(cfg.Filter.RulesFile) == "" {
			return errors.New("filter.rules_file is required when filter.auto_reload.enabled=true")
		}
		if cfg.Filter.AutoReload.DebounceMs <= 0 {
			return errors.New("filter.auto_reload.debounce_ms must be > 0 when filter.auto_reload.enabled=true")
		}
	}
	if cfg.Logging.AccessLogRotate.Enabled {
		if !cfg.Logging.AccessLogEnabled() {
			return errors.New("logging.access_log must be true when logging.access_log_rotate.enabled=true")
		}
		if strings.TrimSpace(cfg.Logging.AccessLogPath) == "" {
			return errors.New("logging.access_log_path is required when logging.access_log_rotate.enabled=true")
		}
	}
	if cfg.Logging.AccessLogRotate.MaxSizeMB <= 0 {
		return errors.New("logging.access_log_rotate.max_size_mb must be > 0")
	}
	if cfg.Logging.AccessLogRotate.MaxBackups <= 0 {
		return errors.New("logging.access_log_rotate.max_backups must be > 0")
	}
	if cfg.Logging.AccessLogRotate.MaxAgeDays < 0 {
		return errors.New("logging.access_log_rotate.max_age_days must be >= 0")
	}
	return nil
}

func normalizeMediaTypes(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		mt := strings.ToLower(strings.TrimSpace(v))
		if parsed, _, err := mime.ParseMediaType(mt); err == nil {
			mt = parsed
		}
		if mt == "" {
			continue
		}
		if _, ok := seen[mt]; ok {
			continue
		}
		seen[mt] = struct{}{}
		out = append(out, mt)
	}
	return out
}

func envInt(name string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(name string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(name))
	if v == "" {
		return def
	}
	switch strings.ToLower(v) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}
