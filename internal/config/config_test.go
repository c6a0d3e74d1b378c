package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindConfigExplicit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	if err := os.WriteFile(path, []byte("log_level: info\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	got, err := FindConfig(path)
	if err != nil {
		t.Fatalf("FindConfig(%q): %v", path, err)
	}
	if got != path {
		t.Errorf("FindConfig(%q) = %q, want %q", path, got, path)
	}
}

func TestFindConfigExplicitMissing(t *testing.T) {
	_, err := FindConfig("/nonexistent/routecraft.yaml")
	if err == nil {
		t.Fatal("FindConfig with a missing explicit path should error")
	}
}

func TestFindConfigCWD(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routecraft.yaml")
	if err := os.WriteFile(path, []byte("log_level: debug\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	orig, _ := os.Getwd()
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	defer os.Chdir(orig)

	got, err := FindConfig("")
	if err != nil {
		t.Fatalf("FindConfig(\"\"): %v", err)
	}
	if got != "routecraft.yaml" {
		t.Errorf("FindConfig(\"\") = %q, want %q", got, "routecraft.yaml")
	}
}

func TestLoadExpandsEnvVars(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routecraft.yaml")
	if err := os.WriteFile(path, []byte("github:\n  token: ${ROUTECRAFT_TEST_TOKEN}\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	os.Setenv("ROUTECRAFT_TEST_TOKEN", "secret123")
	defer os.Unsetenv("ROUTECRAFT_TEST_TOKEN")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.GitHub.Token != "secret123" {
		t.Errorf("token = %q, want %q", cfg.GitHub.Token, "secret123")
	}
}

func TestLoadAppliesStoreDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routecraft.yaml")
	if err := os.WriteFile(path, []byte("data_dir: /var/lib/routecraft\n"), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store.Backend != "memory" {
		t.Errorf("Store.Backend = %q, want memory", cfg.Store.Backend)
	}
}

func TestLoadDerivesSQLitePathFromDataDirWhenUnset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "routecraft.yaml")
	body := "data_dir: /var/lib/routecraft\nstore:\n  backend: sqlite\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := filepath.Join("/var/lib/routecraft", "routecraft.db")
	if cfg.Store.Path != want {
		t.Errorf("Store.Path = %q, want %q", cfg.Store.Path, want)
	}
}

func TestValidateRejectsUnknownStoreBackend(t *testing.T) {
	cfg := Default()
	cfg.Store.Backend = "postgres"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an unrecognized store backend")
	}
}

func TestValidateRejectsDuplicateRouteIDsAcrossKinds(t *testing.T) {
	cfg := Default()
	cfg.Fetches = append(cfg.Fetches, FetchRoute{ID: "heartbeat", URL: "http://example.com", Interval: 1})
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a route id reused across timers and fetches")
	}
}

func TestValidateRejectsFetchRouteMissingURL(t *testing.T) {
	cfg := Default()
	cfg.Fetches = []FetchRoute{{ID: "f1", Interval: 1}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for a fetch route with no URL")
	}
}

func TestValidateRejectsIMAPRouteMissingHost(t *testing.T) {
	cfg := Default()
	cfg.IMAP = []IMAPRoute{{ID: "m1", Username: "u", Interval: 1}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an imap route with no host")
	}
}

func TestApplyDefaultsFillsIMAPPortAndTLS(t *testing.T) {
	cfg := &Config{IMAP: []IMAPRoute{{ID: "m1", Host: "imap.example.com", Username: "u"}}}
	cfg.applyDefaults()
	if cfg.IMAP[0].Port != 993 {
		t.Errorf("Port = %d, want 993", cfg.IMAP[0].Port)
	}
	if !cfg.IMAP[0].TLS {
		t.Error("expected TLS to default true for a non-143 port")
	}
	if cfg.IMAP[0].Folder != "INBOX" {
		t.Errorf("Folder = %q, want INBOX", cfg.IMAP[0].Folder)
	}
}

func TestApplyDefaultsLeavesPlaintextPortUntouched(t *testing.T) {
	cfg := &Config{IMAP: []IMAPRoute{{ID: "m1", Host: "imap.example.com", Username: "u", Port: 143}}}
	cfg.applyDefaults()
	if cfg.IMAP[0].TLS {
		t.Error("expected TLS to stay false for the plaintext convention port 143")
	}
}

func TestValidateRejectsMQTTRouteWithoutBroker(t *testing.T) {
	cfg := Default()
	cfg.MQTT.Routes = []MQTTRoute{{ID: "m1", Topic: "devices/#"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an mqtt route with no broker configured")
	}
}

func TestValidateRejectsMQTTRouteMissingTopic(t *testing.T) {
	cfg := Default()
	cfg.MQTT.Broker = "mqtt://localhost:1883"
	cfg.MQTT.Routes = []MQTTRoute{{ID: "m1"}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an mqtt route with no topic")
	}
}

func TestApplyDefaultsFillsMQTTClientIDWhenBrokerSet(t *testing.T) {
	cfg := &Config{MQTT: MQTTConfig{Broker: "mqtt://localhost:1883"}}
	cfg.applyDefaults()
	if cfg.MQTT.ClientID != "routecraft" {
		t.Errorf("ClientID = %q, want %q", cfg.MQTT.ClientID, "routecraft")
	}
}

func TestApplyDefaultsLeavesMQTTClientIDUntouchedWhenNoBroker(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	if cfg.MQTT.ClientID != "" {
		t.Errorf("ClientID = %q, want empty when no broker is configured", cfg.MQTT.ClientID)
	}
}

func TestDefaultReturnsAValidatableConfig(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() config should validate cleanly, got: %v", err)
	}
	if len(cfg.Timers) != 1 || cfg.Timers[0].ID != "heartbeat" {
		t.Fatalf("Default() timers = %v, want a single heartbeat timer", cfg.Timers)
	}
}
