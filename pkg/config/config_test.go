package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "fieldproxy.yaml")
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfigFile(t, `
upstream:
  base_url: "http://127.0.0.1:8080/"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.Server.Listen != ":3400" {
		t.Fatalf("default listen=%q", cfg.Server.Listen)
	}
	if cfg.Upstream.BaseURL != "http://127.0.0.1:8080" {
		t.Fatalf("base_url should be trimmed, got %q", cfg.Upstream.BaseURL)
	}
	if cfg.Upstream.TimeoutMs != cfg.Server.WriteTimeoutMs {
		t.Fatalf("upstream.timeout_ms default=%d", cfg.Upstream.TimeoutMs)
	}
	if !cfg.Filter.Enabled {
		t.Fatalf("filter.enabled default should be true")
	}
	if !cfg.Filter.EachItem {
		t.Fatalf("filter.each_item default should be true")
	}
	if cfg.Filter.Param != "fields" {
		t.Fatalf("filter.param default=%q", cfg.Filter.Param)
	}
	if len(cfg.Filter.ContentTypes) != 1 || cfg.Filter.ContentTypes[0] != "application/json" {
		t.Fatalf("filter.content_types default=%v", cfg.Filter.ContentTypes)
	}
	if cfg.Filter.CacheSize != 256 {
		t.Fatalf("filter.cache_size default=%d", cfg.Filter.CacheSize)
	}
	if cfg.Filter.MaxBodyBytes != 8*1024*1024 {
		t.Fatalf("filter.max_body_bytes default=%d", cfg.Filter.MaxBodyBytes)
	}
	if cfg.Filter.AutoReload.DebounceMs != 300 {
		t.Fatalf("filter.auto_reload.debounce_ms default=%d", cfg.Filter.AutoReload.DebounceMs)
	}
	if cfg.Telemetry.ServiceName != "fieldproxy" {
		t.Fatalf("telemetry.service_name default=%q", cfg.Telemetry.ServiceName)
	}
	if !cfg.Logging.AccessLogEnabled() {
		t.Fatalf("access_log default should be true")
	}
	if cfg.Logging.AccessLogRotate.MaxSizeMB != 100 {
		t.Fatalf("logging.access_log_rotate.max_size_mb default=%d", cfg.Logging.AccessLogRotate.MaxSizeMB)
	}
	if cfg.Logging.AccessLogRotate.MaxBackups != 14 {
		t.Fatalf("logging.access_log_rotate.max_backups default=%d", cfg.Logging.AccessLogRotate.MaxBackups)
	}
	if cfg.Logging.AccessLogRotate.MaxAgeDays != 14 {
		t.Fatalf("logging.access_log_rotate.max_age_days default=%d", cfg.Logging.AccessLogRotate.MaxAgeDays)
	}
}

func TestLoad_ExplicitFalseIsKept(t *testing.T) {
	path := writeConfigFile(t, `
upstream:
  base_url: "http://up"
filter:
  enabled: false
  each_item: false
  content_types: ["Application/JSON; charset=utf-8", "application/json", "application/hal+json"]
logging:
  access_log: false
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.Filter.Enabled || cfg.Filter.EachItem {
		t.Fatalf("explicit false overridden: %+v", cfg.Filter)
	}
	if cfg.Logging.AccessLogEnabled() {
		t.Fatalf("access_log explicit false overridden")
	}
	got := strings.Join(cfg.Filter.ContentTypes, ",")
	if got != "application/json,application/hal+json" {
		t.Fatalf("content_types=%q", got)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfigFile(t, `
upstream:
  base_url: "http://up"
  proxy_url: "http://proxy:1"
`)
	t.Setenv("FP_LISTEN", ":9999")
	t.Setenv("FP_UPSTREAM_BASE_URL", "https://other/")
	t.Setenv("FP_UPSTREAM_PROXY_URL", "")
	t.Setenv("FP_FILTER_PARAM", "_fields")
	t.Setenv("FP_FILTER_EACH_ITEM", "off")
	t.Setenv("FP_FILTER_CACHE_SIZE", "0")
	t.Setenv("FP_FILTER_PAYLOAD_PATH", "$.data")
	t.Setenv("FP_API_KEY", "secret")
	t.Setenv("FP_ACCESS_LOG", "false")
	t.Setenv("FP_ACCESS_LOG_ROTATE_MAX_BACKUPS", "3")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load err=%v", err)
	}
	if cfg.Server.Listen != ":9999" {
		t.Fatalf("listen=%q", cfg.Server.Listen)
	}
	if cfg.Upstream.BaseURL != "https://other" {
		t.Fatalf("base_url=%q", cfg.Upstream.BaseURL)
	}
	if cfg.Upstream.ProxyURL != "" {
		t.Fatalf("proxy_url should be unset by empty env, got %q", cfg.Upstream.ProxyURL)
	}
	if cfg.Filter.Param != "_fields" || cfg.Filter.EachItem || cfg.Filter.CacheSize != 0 {
		t.Fatalf("filter overrides not applied: %+v", cfg.Filter)
	}
	if cfg.Filter.PayloadPath != "$.data" {
		t.Fatalf("payload_path=%q", cfg.Filter.PayloadPath)
	}
	if cfg.Auth.APIKey != "secret" {
		t.Fatalf("api_key=%q", cfg.Auth.APIKey)
	}
	if cfg.Logging.AccessLogEnabled() {
		t.Fatalf("FP_ACCESS_LOG=false not applied")
	}
	if cfg.Logging.AccessLogRotate.MaxBackups != 3 {
		t.Fatalf("max_backups=%d", cfg.Logging.AccessLogRotate.MaxBackups)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{name: "missing upstream", yaml: `server: {listen: ":1"}`, want: "upstream.base_url is required"},
		{name: "upstream not url", yaml: `upstream: {base_url: "localhost:80"}`, want: "upstream.base_url must be a URL"},
		{name: "proxy not url", yaml: `upstream: {base_url: "http://a", proxy_url: "p:1"}`, want: "upstream.proxy_url must be a URL"},
		{name: "bad payload path", yaml: "upstream: {base_url: \"http://a\"}\nfilter: {payload_path: \"data\"}", want: "filter.payload_path"},
		{name: "negative cache", yaml: "upstream: {base_url: \"http://a\"}\nfilter: {cache_size: -1}", want: "filter.cache_size"},
		{name: "auto reload without file", yaml: "upstream: {base_url: \"http://a\"}\nfilter: {auto_reload: {enabled: true}}", want: "filter.rules_file is required"},
		{name: "rotate without path", yaml: "upstream: {base_url: \"http://a\"}\nlogging: {access_log_rotate: {enabled: true}}", want: "logging.access_log_path is required"},
		{name: "explicit zero size", yaml: "upstream: {base_url: \"http://a\"}\nlogging: {access_log_rotate: {max_size_mb: 0}}", want: "max_size_mb must be > 0"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfigFile(t, tc.yaml))
			if err == nil {
				t.Fatalf("expected error containing %q", tc.want)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("err=%v want substring %q", err, tc.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestEnvBool(t *testing.T) {
	t.Setenv("FP_TEST_BOOL", "maybe")
	if !envBool("FP_TEST_BOOL", true) {
		t.Fatalf("unparseable value should fall back to default")
	}
	t.Setenv("FP_TEST_BOOL", "Y")
	if !envBool("FP_TEST_BOOL", false) {
		t.Fatalf("Y should be true")
	}
}
