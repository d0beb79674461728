package config

import (
	"strings"
	"testing"
)

func TestParse_AppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
http:
  port: 8080
database:
  addrs: ["localhost:6379"]
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Index.Dimensions != 1024 {
		t.Errorf("dimensions = %d, want 1024", cfg.Index.Dimensions)
	}
	if cfg.Index.MaxTopK != 200 {
		t.Errorf("max_top_k = %d, want 200", cfg.Index.MaxTopK)
	}
	if cfg.Ranking.GeoHalfLifeMiles != 10 {
		t.Errorf("geo half life = %v, want 10", cfg.Ranking.GeoHalfLifeMiles)
	}
	if cfg.Learning.MinSamples != 5 {
		t.Errorf("min_samples = %d, want 5", cfg.Learning.MinSamples)
	}
	if cfg.Learning.SmoothingFactor != 0.3 {
		t.Errorf("smoothing = %v, want 0.3", cfg.Learning.SmoothingFactor)
	}
	if cfg.Pipeline.DeadlineMs != 3000 {
		t.Errorf("deadline = %d, want 3000", cfg.Pipeline.DeadlineMs)
	}
	if cfg.Storage.KeyPrefix != "resmatch:" {
		t.Errorf("prefix = %q", cfg.Storage.KeyPrefix)
	}
	if cfg.Embedding.Enabled() {
		t.Error("embedder should be disabled without base_url")
	}
}

func TestParse_ExpandsEnvVars(t *testing.T) {
	t.Setenv("RESMATCH_TEST_PORT", "9191")

	cfg, err := Parse([]byte(`
http:
  port: ${RESMATCH_TEST_PORT}
database:
  addrs: ["${RESMATCH_TEST_ADDR:-valkey:6379}"]
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.HTTP.Port != 9191 {
		t.Errorf("port = %d, want 9191", cfg.HTTP.Port)
	}
	if cfg.Database.Addrs[0] != "valkey:6379" {
		t.Errorf("addr = %q, want default", cfg.Database.Addrs[0])
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		c := Config{
			HTTP:     HTTPConfig{Port: 8080},
			Database: DatabaseConfig{Addrs: []string{"localhost:6379"}},
		}
		c.ApplyDefaults()
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.HTTP.Port = 0 }, "http.port"},
		{"no addrs", func(c *Config) { c.Database.Addrs = nil }, "database.addrs"},
		{"bad mode", func(c *Config) { c.Index.Mode = "fuzzy" }, "index.mode"},
		{"top k ceiling", func(c *Config) { c.Index.MaxTopK = 500 }, "max_top_k"},
		{"smoothing above one", func(c *Config) { c.Learning.SmoothingFactor = 1.5 }, "smoothing_factor"},
		{"default top k too large", func(c *Config) { c.Pipeline.DefaultTopK = 201 }, "default_top_k"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tc.wantErr)
			}
		})
	}
}
