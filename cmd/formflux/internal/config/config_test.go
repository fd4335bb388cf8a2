package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_DefaultsWhenNoFile(t *testing.T) {
	dir := t.TempDir()

	cfg, path, err := Load(dir)
	if err != nil {
		t.Fatalf("Expected load to succeed, got %v", err)
	}
	if path != "" {
		t.Errorf("Expected empty path for default config, got %s", path)
	}
	if cfg.Server.Addr != "localhost:8090" {
		t.Errorf("Expected default addr localhost:8090, got %s", cfg.Server.Addr)
	}
	if cfg.Server.LivePath != "/formflux/live/" {
		t.Errorf("Expected default live path, got %s", cfg.Server.LivePath)
	}
}

func TestLoad_JSON(t *testing.T) {
	dir := t.TempDir()
	content := `{
  "verbose": true,
  "server": {"addr": "0.0.0.0:9000"},
  "forms": [{"id": "login", "type": "auth", "initial": {"remember": false}}]
}`
	if err := os.WriteFile(filepath.Join(dir, "formflux.json"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, path, err := Load(dir)
	if err != nil {
		t.Fatalf("Expected load to succeed, got %v", err)
	}
	if filepath.Base(path) != "formflux.json" {
		t.Errorf("Expected formflux.json to be resolved, got %s", path)
	}
	if !cfg.Verbose {
		t.Error("Expected verbose to be true")
	}
	if cfg.Server.Addr != "0.0.0.0:9000" {
		t.Errorf("Expected addr 0.0.0.0:9000, got %s", cfg.Server.Addr)
	}
	// Missing livePath falls back to the default.
	if cfg.Server.LivePath != "/formflux/live/" {
		t.Errorf("Expected default live path, got %s", cfg.Server.LivePath)
	}
	if len(cfg.Forms) != 1 || cfg.Forms[0].ID != "login" || cfg.Forms[0].Type != "auth" {
		t.Errorf("Expected declared login form, got %+v", cfg.Forms)
	}
	if cfg.Forms[0].Initial["remember"] != false {
		t.Errorf("Expected initial remember=false, got %v", cfg.Forms[0].Initial)
	}
}

func TestLoad_YAML(t *testing.T) {
	dir := t.TempDir()
	content := `server:
  addr: localhost:9100
forms:
  - id: profile
    type: account
    initial:
      lang: en
`
	if err := os.WriteFile(filepath.Join(dir, "formflux.yaml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, _, err := Load(dir)
	if err != nil {
		t.Fatalf("Expected load to succeed, got %v", err)
	}
	if cfg.Server.Addr != "localhost:9100" {
		t.Errorf("Expected addr localhost:9100, got %s", cfg.Server.Addr)
	}
	if len(cfg.Forms) != 1 || cfg.Forms[0].Initial["lang"] != "en" {
		t.Errorf("Expected profile form with lang en, got %+v", cfg.Forms)
	}
}

func TestLoad_JSONTakesPrecedenceOverYAML(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "formflux.json"), []byte(`{"server":{"addr":"json:1"}}`), 0644)
	os.WriteFile(filepath.Join(dir, "formflux.yaml"), []byte("server:\n  addr: yaml:1\n"), 0644)

	cfg, _, err := Load(dir)
	if err != nil {
		t.Fatalf("Expected load to succeed, got %v", err)
	}
	if cfg.Server.Addr != "json:1" {
		t.Errorf("Expected JSON config to win, got %s", cfg.Server.Addr)
	}
}

func TestLoadFromFile_BadJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "formflux.json")
	os.WriteFile(path, []byte("{not json"), 0644)

	if _, err := LoadFromFile(path); err == nil {
		t.Error("Expected error for malformed JSON")
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()

	in := &Config{
		Verbose: true,
		Server:  &ServerConfig{Addr: "localhost:9999", LivePath: "/live/"},
		Forms:   []FormConfig{{ID: "a", Type: "t"}},
	}
	if err := Save(in, dir); err != nil {
		t.Fatalf("Expected save to succeed, got %v", err)
	}

	out, _, err := Load(dir)
	if err != nil {
		t.Fatalf("Expected load to succeed, got %v", err)
	}
	if out.Server.Addr != "localhost:9999" || !out.Verbose {
		t.Errorf("Expected saved config to round-trip, got %+v", out)
	}
}
