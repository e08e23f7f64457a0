package runtime

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Workers != 8 {
		t.Fatalf("Workers = %d, want default 8", cfg.Workers)
	}
	if cfg.Admin.Addr != "" {
		t.Fatalf("Admin.Addr = %q, want empty (feature off by default)", cfg.Admin.Addr)
	}
}

func TestLoadConfigFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
node_id: 3
workers: 16
bootstrap:
  - module: echo
    args: ["127.0.0.1:0"]
admin:
  addr: ":9000"
audit:
  driver: memory
`
	if err := os.WriteFile(path, []byte(yaml), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.NodeID != 3 {
		t.Fatalf("NodeID = %d, want 3", cfg.NodeID)
	}
	if cfg.Workers != 16 {
		t.Fatalf("Workers = %d, want 16", cfg.Workers)
	}
	if len(cfg.Bootstrap) != 1 || cfg.Bootstrap[0].Module != "echo" {
		t.Fatalf("Bootstrap = %+v, want one echo entry", cfg.Bootstrap)
	}
	if cfg.Admin.Addr != ":9000" {
		t.Fatalf("Admin.Addr = %q, want :9000", cfg.Admin.Addr)
	}
	if cfg.Audit.Driver != "memory" {
		t.Fatalf("Audit.Driver = %q, want memory", cfg.Audit.Driver)
	}
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("ACTORCORED_WORKERS", "32")
	t.Setenv("ACTORCORED_ADMIN_ADDR", ":9001")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Workers != 32 {
		t.Fatalf("Workers = %d, want env override 32", cfg.Workers)
	}
	if cfg.Admin.Addr != ":9001" {
		t.Fatalf("Admin.Addr = %q, want env override :9001", cfg.Admin.Addr)
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	if _, err := LoadConfig("/nonexistent/path/config.yaml"); err == nil {
		t.Fatal("expected an error for a missing config file")
	}
}
