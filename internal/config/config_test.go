package config

import (
	"os"
	"path/filepath"
	"testing"
)

const minimal = `
endpoint: "http://127.0.0.1:9000"
access_key: "ak"
secret_key: "sk"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(p, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"VAULTOSS_ENDPOINT", "VAULTOSS_REGION", "VAULTOSS_ACCESS_KEY", "VAULTOSS_SECRET_KEY",
		"VAULTOSS_BUCKET_NAME", "VAULTOSS_CUSTOM_DOMAIN", "VAULTOSS_LOG_LEVEL", "VAULTOSS_PATH_STYLE",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Region != "us-east-1" {
		t.Errorf("region: got %q, want us-east-1", cfg.Region)
	}
	if !cfg.PathStyleAccess {
		t.Error("path style should default to true")
	}
	if cfg.FolderMode() {
		t.Error("folder mode should be off without bucket_name")
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port: got %d, want 9100", cfg.Server.Port)
	}
	if cfg.Server.ShutdownTimeoutSecs != 30 {
		t.Errorf("shutdown timeout: got %d, want 30", cfg.Server.ShutdownTimeoutSecs)
	}
	if cfg.Lifecycle.ReconcileIntervalSecs != 3600 {
		t.Errorf("reconcile interval: got %d, want 3600", cfg.Lifecycle.ReconcileIntervalSecs)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("log level: got %q, want info", cfg.Logging.Level)
	}
}

func TestLoad_FolderModeAndPrefixes(t *testing.T) {
	clearEnv(t)
	p := writeConfig(t, minimal+`
bucket_name: "base"
path_style_access: false
expiring_prefixes:
  tmp: 1
  logs: 30
expiring_buckets:
  logs: 99
  cache: 7
`)
	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.FolderMode() || cfg.BucketName != "base" {
		t.Errorf("expected folder mode with base bucket, got %q", cfg.BucketName)
	}
	if cfg.PathStyleAccess {
		t.Error("path style should be disabled")
	}
	want := map[string]int{"tmp": 1, "logs": 30, "cache": 7}
	if len(cfg.ExpiringPrefixes) != len(want) {
		t.Fatalf("expiring prefixes: got %v, want %v", cfg.ExpiringPrefixes, want)
	}
	for k, v := range want {
		if cfg.ExpiringPrefixes[k] != v {
			t.Errorf("prefix %q: got %d, want %d", k, cfg.ExpiringPrefixes[k], v)
		}
	}
	if cfg.ExpiringBuckets != nil {
		t.Error("expiring_buckets should be folded into expiring_prefixes")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("VAULTOSS_ENDPOINT", "https://s3.example.com")
	t.Setenv("VAULTOSS_BUCKET_NAME", "from-env")
	t.Setenv("VAULTOSS_PATH_STYLE", "false")

	cfg, err := Load(writeConfig(t, minimal))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Endpoint != "https://s3.example.com" {
		t.Errorf("endpoint: got %q", cfg.Endpoint)
	}
	if cfg.BucketName != "from-env" {
		t.Errorf("bucket: got %q", cfg.BucketName)
	}
	if cfg.PathStyleAccess {
		t.Error("path style should be overridden to false")
	}
}

func TestLoad_Invalid(t *testing.T) {
	clearEnv(t)
	tests := map[string]string{
		"no endpoint":    "access_key: a\nsecret_key: b\n",
		"relative url":   "endpoint: localhost\naccess_key: a\nsecret_key: b\n",
		"no credentials": "endpoint: http://localhost:9000\n",
		"zero days":      minimal + "expiring_prefixes:\n  tmp: 0\n",
		"invalid yaml":   "{{invalid yaml}}",
		"empty region":   minimal + "region: \"\"\n",
		"negative rate":  minimal + "rate_limit:\n  requests_per_sec: -1\n",
	}
	for name, content := range tests {
		if _, err := Load(writeConfig(t, content)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestLoad_NonexistentFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestFromEnv(t *testing.T) {
	clearEnv(t)
	if _, err := FromEnv(); err == nil {
		t.Error("expected error without endpoint")
	}

	t.Setenv("VAULTOSS_ENDPOINT", "http://127.0.0.1:9000")
	t.Setenv("VAULTOSS_ACCESS_KEY", "ak")
	t.Setenv("VAULTOSS_SECRET_KEY", "sk")
	cfg, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if cfg.AccessKey != "ak" || cfg.Region != "us-east-1" {
		t.Errorf("unexpected config: %+v", cfg)
	}
}

func TestListenAddr(t *testing.T) {
	cfg := Config{Server: ServerConfig{Address: "127.0.0.1", Port: 8080}}
	if got := cfg.ListenAddr(); got != "127.0.0.1:8080" {
		t.Errorf("ListenAddr: got %q, want 127.0.0.1:8080", got)
	}
}

func TestLoad_ExampleConfig(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join("..", "..", "configs", "vaultoss.yaml"))
	if err != nil {
		t.Fatalf("Load example: %v", err)
	}
	if cfg.FolderMode() {
		t.Error("example config should use direct mode")
	}
	if len(cfg.ExpiringPrefixes) != 2 || cfg.ExpiringPrefixes["logs"] != 30 {
		t.Errorf("expiring prefixes: got %v", cfg.ExpiringPrefixes)
	}
	if cfg.Inventory.IntervalSecs != 86400 || cfg.RateLimit.RequestsPerSec != 0 {
		t.Errorf("unexpected inventory/rate limit: %+v %+v", cfg.Inventory, cfg.RateLimit)
	}
	if cfg.Notifications.NATS.Subject != "vaultoss.events" {
		t.Errorf("nats subject: got %q", cfg.Notifications.NATS.Subject)
	}
}

func TestLoad_OperationalSections(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, minimal+`
rate_limit:
  requests_per_sec: 50
  burst: 10
  reject: true
inventory:
  containers: [media, logs]
  dest: reports
notifications:
  file:
    path: /var/log/vaultoss/events.log
`))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RateLimit.RequestsPerSec != 50 || cfg.RateLimit.Burst != 10 || !cfg.RateLimit.Reject {
		t.Errorf("rate limit: %+v", cfg.RateLimit)
	}
	if len(cfg.Inventory.Containers) != 2 || cfg.Inventory.Dest != "reports" || cfg.Inventory.IntervalSecs != 86400 {
		t.Errorf("inventory: %+v", cfg.Inventory)
	}
	if cfg.Notifications.File.Path != "/var/log/vaultoss/events.log" {
		t.Errorf("file path: got %q", cfg.Notifications.File.Path)
	}
}
