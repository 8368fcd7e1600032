package localizer

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig_Valid(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"short translation", func(c *Config) { c.SensorTranslation = []float64{1, 2} }, "sensor_translation"},
		{"short rotation", func(c *Config) { c.SensorRotation = []float64{0, 0, 1} }, "sensor_rotation"},
		{"zero quaternion", func(c *Config) { c.SensorRotation = []float64{0, 0, 0, 0} }, "sensor_rotation"},
		{"negative leaf", func(c *Config) { c.MapLeafSize = -0.1 }, "leaf_size"},
		{"zero sweep step", func(c *Config) { c.SweepStepRad = 0 }, "sweep_step_rad"},
		{"empty sweep", func(c *Config) { c.SweepEndRad = c.SweepStartRad }, "sweep_end_rad"},
		{"zero correspondence", func(c *Config) { c.TrackCorrespondenceDistance = 0 }, "correspondence_distance"},
		{"zero iterations", func(c *Config) { c.MaxIterations = 0 }, "max_iterations"},
		{"negative timeout", func(c *Config) { c.ReadinessTimeout = -time.Second }, "readiness_timeout"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			var ce *ConfigurationError
			if !errors.As(err, &ce) {
				t.Fatalf("expected ConfigurationError, got %v", err)
			}
			if ce.Field != tc.field {
				t.Errorf("error field = %q, want %q", ce.Field, tc.field)
			}
		})
	}
}

func TestSweepCandidates(t *testing.T) {
	got := DefaultConfig().SweepCandidates()
	want := []float64{0, 0.05, 0.10, 0.15}
	if len(got) != len(want) {
		t.Fatalf("candidates = %v, want %v", got, want)
	}
	for i := range want {
		if diff := got[i] - want[i]; diff > 1e-12 || diff < -1e-12 {
			t.Errorf("candidate %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLoadConfig_PartialOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "localizer.json")
	body := `{
		"map_frame": "map",
		"scan_leaf_size": 0.5,
		"max_iterations": 200,
		"readiness_timeout": "5s"
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.MapFrame != "map" {
		t.Errorf("map frame = %q, want %q", cfg.MapFrame, "map")
	}
	if cfg.ScanLeafSize != 0.5 {
		t.Errorf("scan leaf = %v, want 0.5", cfg.ScanLeafSize)
	}
	if cfg.MaxIterations != 200 {
		t.Errorf("max iterations = %d, want 200", cfg.MaxIterations)
	}
	if cfg.ReadinessTimeout != 5*time.Second {
		t.Errorf("readiness timeout = %v, want 5s", cfg.ReadinessTimeout)
	}

	// Untouched fields keep their defaults.
	def := DefaultConfig()
	if cfg.SensorFrame != def.SensorFrame {
		t.Errorf("sensor frame = %q, want default %q", cfg.SensorFrame, def.SensorFrame)
	}
	if cfg.MapLeafSize != def.MapLeafSize {
		t.Errorf("map leaf = %v, want default %v", cfg.MapLeafSize, def.MapLeafSize)
	}
	if cfg.SweepStepRad != def.SweepStepRad {
		t.Errorf("sweep step = %v, want default %v", cfg.SweepStepRad, def.SweepStepRad)
	}
}

func TestLoadConfig_Rejects(t *testing.T) {
	dir := t.TempDir()

	writeTemp := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	if _, err := LoadConfig(filepath.Join(dir, "absent.json")); err == nil {
		t.Error("missing file must be an error")
	}
	if _, err := LoadConfig(writeTemp("bad.json", "{nope")); err == nil {
		t.Error("malformed JSON must be an error")
	}
	if _, err := LoadConfig(writeTemp("dur.json", `{"readiness_timeout": "soon"}`)); err == nil {
		t.Error("bad duration string must be an error")
	}
	if _, err := LoadConfig(writeTemp("inv.json", `{"sweep_step_rad": -1}`)); err == nil {
		t.Error("values failing validation must be an error")
	}
}
