package config

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/swctools/swctools/internal/session"
	"github.com/swctools/swctools/internal/testutil/testlog"
)

func TestLoadCreatesDefault(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, DefaultConfigFile)); err != nil {
		t.Fatalf("default config not written: %v", err)
	}
	if cfg.Server.RetryCount != session.DefaultRetryCount {
		t.Fatalf("retry count=%d", cfg.Server.RetryCount)
	}
	if got := cfg.SessionConfig().SettleDelay; got != session.DefaultSettleDelay {
		t.Fatalf("settle delay=%v", got)
	}
	if !cfg.IsFirstRun() {
		t.Fatalf("default config should need setup")
	}
}

func TestLoadOverlaysDefaults(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	path := filepath.Join(dir, DefaultConfigFile)
	partial := `{"server":{"url":"https://game.test","retry_count":0,"player_id":"p1","player_secret":"s1"}}`
	if err := os.WriteFile(path, []byte(partial), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sc := cfg.SessionConfig()
	if sc.RetryCount != 0 || sc.PlayerID != "p1" || sc.PlayerSecret != "s1" {
		t.Fatalf("session config=%+v", sc)
	}
	if cfg.ApplicationData.API.Port != DefaultAPIPort {
		t.Fatalf("api port default lost: %d", cfg.ApplicationData.API.Port)
	}
	if cfg.RequestTimeout() != 30*time.Second {
		t.Fatalf("request timeout=%v", cfg.RequestTimeout())
	}

	// re-saved with the full option set
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var saved map[string]any
	if err := json.Unmarshal(data, &saved); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := saved["application_data"]; !ok {
		t.Fatalf("defaults not persisted: %s", data)
	}
}

func TestLoadRejectsMalformed(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("{"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	testlog.Start(t)
	t.Setenv("SWC_SERVER_URL", "https://env.test")
	t.Setenv("SWC_RETRY_COUNT", "0")
	t.Setenv("SWC_API_PORT", "9090")
	t.Setenv("SWC_LOG_LEVEL", "debug")

	cfg := DefaultConfig()
	cfg.Server.PlayerID = "from-file"
	if err := ApplyEnv(cfg); err != nil {
		t.Fatalf("apply env: %v", err)
	}
	if cfg.Server.URL != "https://env.test" || cfg.Server.RetryCount != 0 {
		t.Fatalf("server=%+v", cfg.Server)
	}
	if cfg.Server.PlayerID != "from-file" {
		t.Fatalf("unset variable overwrote file value: %q", cfg.Server.PlayerID)
	}
	if cfg.ApplicationData.API.Port != 9090 || cfg.LogConfig().Level != "debug" {
		t.Fatalf("app=%+v", cfg.ApplicationData)
	}
}

func TestEnvOverrideBadNumber(t *testing.T) {
	testlog.Start(t)
	t.Setenv("SWC_RETRY_COUNT", "three")
	if err := ApplyEnv(DefaultConfig()); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestValidate(t *testing.T) {
	testlog.Start(t)
	if res := Validate(DefaultConfig()); !res.IsValid() {
		t.Fatalf("default config invalid: %v", res.Errors)
	}

	cfg := DefaultConfig()
	cfg.Server.URL = ""
	cfg.Server.PlayerID = "only-id"
	cfg.Server.RetryCount = -1
	cfg.ApplicationData.API.Port = 70000
	res := Validate(cfg)

	want := []string{"server.url", "server.player_id", "server.retry_count", "application_data.api.port"}
	for _, field := range want {
		found := false
		for _, e := range res.Errors {
			if e.Field == field {
				found = true
			}
		}
		if !found {
			t.Fatalf("missing error for %s: %v", field, res.Errors)
		}
	}
}

func TestSetupWizard(t *testing.T) {
	testlog.Start(t)
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.path = filepath.Join(dir, DefaultConfigFile)

	answers := strings.Join([]string{
		"game.test/",
		"",  // generate identity
		"5", // retries
		"",  // api port
		"y", // mqtt
		"",  // collector
	}, "\n") + "\n"
	var out bytes.Buffer
	if err := RunSetupWizard(cfg, strings.NewReader(answers), &out); err != nil {
		t.Fatalf("wizard: %v\n%s", err, out.String())
	}

	if cfg.Server.URL != "https://game.test" {
		t.Fatalf("url=%q", cfg.Server.URL)
	}
	if cfg.Server.RetryCount != 5 || cfg.Server.PlayerID != "" {
		t.Fatalf("server=%+v", cfg.Server)
	}
	if !cfg.ApplicationData.MQTT.Enabled || cfg.ApplicationData.Collector.Enabled {
		t.Fatalf("services=%+v", cfg.ApplicationData)
	}
	if _, err := os.Stat(cfg.path); err != nil {
		t.Fatalf("config not saved: %v", err)
	}
}
