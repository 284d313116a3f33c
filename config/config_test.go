package config

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Image.Name != "" {
		t.Errorf("expected no default image, got %q", cfg.Image.Name)
	}
	if cfg.Boundary.Sentinel != "" {
		t.Errorf("expected empty sentinel override, got %q", cfg.Boundary.Sentinel)
	}
	if cfg.Container.Network != "bridge" {
		t.Errorf("expected bridge network default, got %q", cfg.Container.Network)
	}
	if len(cfg.Environment.Passthrough) == 0 {
		t.Error("expected a passthrough default")
	}
	if cfg.Mounts.Extra == nil {
		t.Error("expected Mounts.Extra initialized")
	}
}

func TestContainerEnvPassthrough(t *testing.T) {
	t.Setenv("REDOCK_TEST_VAR", "from-host")
	t.Setenv("REDOCK_TEST_OVERRIDDEN", "host-value")

	cfg := &Config{
		Environment: EnvironmentConfig{
			Passthrough: []string{"REDOCK_TEST_VAR", "REDOCK_TEST_OVERRIDDEN", "REDOCK_TEST_UNSET_VAR"},
			Custom:      map[string]string{"REDOCK_TEST_OVERRIDDEN": "custom-value", "EXTRA": "1"},
		},
	}

	env := cfg.ContainerEnv()
	if env["REDOCK_TEST_VAR"] != "from-host" {
		t.Errorf("passthrough missing: %v", env)
	}
	if env["REDOCK_TEST_OVERRIDDEN"] != "custom-value" {
		t.Errorf("custom entry must win over passthrough: %v", env)
	}
	if _, ok := env["REDOCK_TEST_UNSET_VAR"]; ok {
		t.Error("unset passthrough variable must be skipped")
	}
	if env["EXTRA"] != "1" {
		t.Errorf("custom entry missing: %v", env)
	}
}

func TestExtraMounts(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	cfg := &Config{
		Mounts: MountsConfig{Extra: []MountEntry{
			{Path: dir, ReadOnly: true},
			{Path: dir, Target: "/var/cache/demo"},
		}},
	}

	mounts := cfg.ExtraMounts()
	if len(mounts) != 2 {
		t.Fatalf("expected 2 mounts, got %d", len(mounts))
	}
	if mounts[0].Source != dir || mounts[0].Target != dir || !mounts[0].ReadOnly {
		t.Errorf("unexpected self-targeted mount: %+v", mounts[0])
	}
	if mounts[1].Target != "/var/cache/demo" || mounts[1].ReadOnly {
		t.Errorf("unexpected explicit-target mount: %+v", mounts[1])
	}
}

func TestDefaultPath(t *testing.T) {
	got := DefaultPath()
	if filepath.Base(got) != "config.yaml" {
		t.Errorf("unexpected default path %q", got)
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")

	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if cfg.Container.Network != "bridge" {
		t.Errorf("round trip lost network default: %q", cfg.Container.Network)
	}
	if len(cfg.Environment.Passthrough) == 0 {
		t.Error("round trip lost passthrough defaults")
	}
}
