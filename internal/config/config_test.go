package config

import (
	"io"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/labwatch/internal/logger"
)

func init() {
	logger.Init(logger.Config{Level: "error", Output: io.Discard})
}

// isolate keeps a developer's .env and config/chat.yaml out of the test.
func isolate(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	t.Setenv("CONFIG_PATH", "")
	for _, k := range []string{
		"APP_ENV", "SESSION_SECRETS", "SESSION_STORE", "WS_HEARTBEAT_INTERVAL", "WS_FRAME_RATE",
		"CORS_ALLOWED_ORIGINS", "SESSION_LOOKUP_TIMEOUT_MS", "MAX_WS_CONNECTIONS", "WS_PATH",
	} {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)
	cfg := Load()

	if cfg.ServerAddr != ":8080" {
		t.Errorf("ServerAddr = %q", cfg.ServerAddr)
	}
	if cfg.Session.Store != StoreRedis || cfg.Session.CookieName != "connect.sid" {
		t.Errorf("Session = %+v", cfg.Session)
	}
	if cfg.Session.LookupTimeout != 3*time.Second {
		t.Errorf("LookupTimeout = %v", cfg.Session.LookupTimeout)
	}
	if cfg.WS.Path != "/ws/chat" || cfg.WS.HeartbeatInterval != 30*time.Second || cfg.WS.MaxMessageSize != 16384 {
		t.Errorf("WS = %+v", cfg.WS)
	}
	if !reflect.DeepEqual(cfg.AllowedOrigins(), []string{"*"}) {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv("SESSION_SECRETS", " new secret , old secret ,,")
	t.Setenv("SESSION_STORE", "Postgres")
	t.Setenv("WS_HEARTBEAT_INTERVAL", "5")
	t.Setenv("WS_FRAME_RATE", "2.5")
	t.Setenv("MAX_WS_CONNECTIONS", "not-a-number")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://dash.lan, http://localhost:3000")
	cfg := Load()

	if want := []string{"new secret", "old secret"}; !reflect.DeepEqual(cfg.Session.Secrets, want) {
		t.Errorf("Secrets = %q, want %q", cfg.Session.Secrets, want)
	}
	if cfg.Session.Store != StorePostgres {
		t.Errorf("Store = %q", cfg.Session.Store)
	}
	if cfg.WS.HeartbeatInterval != 5*time.Second {
		t.Errorf("HeartbeatInterval = %v", cfg.WS.HeartbeatInterval)
	}
	if cfg.WS.FrameRate != 2.5 {
		t.Errorf("FrameRate = %v", cfg.WS.FrameRate)
	}
	if cfg.WS.MaxConnections != 10000 {
		t.Errorf("MaxConnections = %d, want default on bad value", cfg.WS.MaxConnections)
	}
	if want := []string{"https://dash.lan", "http://localhost:3000"}; !reflect.DeepEqual(cfg.AllowedOrigins(), want) {
		t.Errorf("AllowedOrigins = %v, want %v", cfg.AllowedOrigins(), want)
	}
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "chat.yaml")
	yml := "ws_path: /chat\nsession_store: memory\nsession_secrets: [a, b]\nws_heartbeat_interval: 12\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("WS_PATH", "/ws/override")
	cfg := Load()

	if cfg.WS.Path != "/ws/override" {
		t.Errorf("Path = %q, env must win over yaml", cfg.WS.Path)
	}
	if cfg.Session.Store != StoreMemory {
		t.Errorf("Store = %q", cfg.Session.Store)
	}
	if !reflect.DeepEqual(cfg.Session.Secrets, []string{"a", "b"}) {
		t.Errorf("Secrets = %q", cfg.Session.Secrets)
	}
	if cfg.WS.HeartbeatInterval != 12*time.Second {
		t.Errorf("HeartbeatInterval = %v", cfg.WS.HeartbeatInterval)
	}
}

func TestLoad_Fallbacks(t *testing.T) {
	isolate(t)
	t.Setenv("SESSION_STORE", "etcd")
	t.Setenv("WS_HEARTBEAT_INTERVAL", "0")
	t.Setenv("SESSION_LOOKUP_TIMEOUT_MS", "-1")
	cfg := Load()

	if cfg.Session.Store != StoreRedis {
		t.Errorf("Store = %q, want fallback to redis", cfg.Session.Store)
	}
	if cfg.WS.HeartbeatInterval != 30*time.Second {
		t.Errorf("HeartbeatInterval = %v", cfg.WS.HeartbeatInterval)
	}
	if cfg.Session.LookupTimeout != 3*time.Second {
		t.Errorf("LookupTimeout = %v", cfg.Session.LookupTimeout)
	}
}

func TestLoadEnvFrom(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\nLABWATCH_TEST_A=plain\nLABWATCH_TEST_B=\"quoted value\"\nLABWATCH_TEST_C='single'\nLABWATCH_TEST_SET=from-file\nbroken line\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"LABWATCH_TEST_A", "LABWATCH_TEST_B", "LABWATCH_TEST_C"} {
		t.Setenv(k, "")
	}
	t.Setenv("LABWATCH_TEST_SET", "from-env")

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	loadEnvFrom(f)

	want := map[string]string{
		"LABWATCH_TEST_A":   "plain",
		"LABWATCH_TEST_B":   "quoted value",
		"LABWATCH_TEST_C":   "single",
		"LABWATCH_TEST_SET": "from-env",
	}
	for k, v := range want {
		if got := os.Getenv(k); got != v {
			t.Errorf("%s = %q, want %q", k, got, v)
		}
	}
}
