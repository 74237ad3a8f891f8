package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "simd.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
instance:
  id: simd-1
database:
  host: localhost
  name: factionsim
  user: sim
  password: secret
fx:
  base_faction_id: alba
`

func TestLoadAndValidate(t *testing.T) {
	cfg, err := LoadAndValidate(writeConfig(t, validYAML))
	if err != nil {
		t.Fatalf("LoadAndValidate: %v", err)
	}

	if cfg.Instance.ID != "simd-1" {
		t.Errorf("instance id = %s, want simd-1", cfg.Instance.ID)
	}
	if cfg.FX.BaseFactionID != "alba" {
		t.Errorf("base faction = %s, want alba", cfg.FX.BaseFactionID)
	}

	// Defaults filled in.
	if cfg.Database.Port != DefaultDBPort {
		t.Errorf("db port = %d, want default %d", cfg.Database.Port, DefaultDBPort)
	}
	if cfg.Simulation.TickInterval != DefaultTickInterval {
		t.Errorf("tick interval = %v, want default %v", cfg.Simulation.TickInterval, DefaultTickInterval)
	}
	if cfg.Broadcast.Path != DefaultBroadcastPath {
		t.Errorf("broadcast path = %s, want default %s", cfg.Broadcast.Path, DefaultBroadcastPath)
	}
	if len(cfg.Simulation.BasePrices) == 0 {
		t.Error("base prices default not applied")
	}
}

func TestLoad_ExpandsEnv(t *testing.T) {
	t.Setenv("SIM_DB_PASSWORD", "hunter2")

	cfg, err := LoadAndValidate(writeConfig(t, `
instance:
  id: simd-1
database:
  host: localhost
  name: factionsim
  user: sim
  password: ${SIM_DB_PASSWORD}
fx:
  base_faction_id: alba
`))
	if err != nil {
		t.Fatalf("LoadAndValidate: %v", err)
	}
	if cfg.Database.Password != "hunter2" {
		t.Errorf("password = %q, want expanded env value", cfg.Database.Password)
	}
}

func TestLoad_OverridesSurvive(t *testing.T) {
	cfg, err := LoadAndValidate(writeConfig(t, validYAML+`
simulation:
  tick_interval: 1s
  base_prices:
    ore: 12
broadcast:
  port: 9000
`))
	if err != nil {
		t.Fatalf("LoadAndValidate: %v", err)
	}
	if cfg.Simulation.TickInterval != time.Second {
		t.Errorf("tick interval = %v, want 1s", cfg.Simulation.TickInterval)
	}
	if cfg.Simulation.BasePrices["ore"] != 12 {
		t.Errorf("ore base price = %v, want 12", cfg.Simulation.BasePrices["ore"])
	}
	if cfg.Broadcast.Port != 9000 {
		t.Errorf("broadcast port = %d, want 9000", cfg.Broadcast.Port)
	}
}

func TestValidate_Failures(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing instance id", `
database: {host: h, name: n, user: u, password: p}
fx: {base_faction_id: alba}
`},
		{"missing db host", `
instance: {id: simd-1}
database: {name: n, user: u, password: p}
fx: {base_faction_id: alba}
`},
		{"missing base faction", `
instance: {id: simd-1}
database: {host: h, name: n, user: u, password: p}
`},
		{"offer fraction above one", `
instance: {id: simd-1}
database: {host: h, name: n, user: u, password: p}
fx: {base_faction_id: alba}
simulation: {offer_fraction: 1.5}
`},
		{"snapshots without dir", `
instance: {id: simd-1}
database: {host: h, name: n, user: u, password: p}
fx: {base_faction_id: alba}
snapshots: {enabled: true}
`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadAndValidate(writeConfig(t, tt.yaml)); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
