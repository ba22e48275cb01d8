package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATA_PATH", t.TempDir())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ITSM.RequestTimeout != 30*time.Second {
		t.Errorf("RequestTimeout = %v, want 30s", cfg.ITSM.RequestTimeout)
	}
	if cfg.ITSM.PageSize != 500 || cfg.ITSM.MaxPages != 50 || cfg.ITSM.MaxRetries != 3 {
		t.Errorf("paging defaults = %d/%d/%d, want 500/50/3",
			cfg.ITSM.PageSize, cfg.ITSM.MaxPages, cfg.ITSM.MaxRetries)
	}
	if cfg.ITSM.TechnicianProfileID != 6 {
		t.Errorf("TechnicianProfileID = %d, want 6", cfg.ITSM.TechnicianProfileID)
	}
	if cfg.ListenAddr != ":8090" {
		t.Errorf("ListenAddr = %q, want :8090", cfg.ListenAddr)
	}
	if cfg.CacheBaseTTL != 5*time.Minute {
		t.Errorf("CacheBaseTTL = %v, want 5m", cfg.CacheBaseTTL)
	}
	if filepath.Base(cfg.RangesFile) != "technician_ranges.json" {
		t.Errorf("RangesFile = %q, want technician_ranges.json under the data path", cfg.RangesFile)
	}
}

func TestLoadFromEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DATA_PATH", dir)
	t.Setenv("ITSM_URL", "https://helpdesk.example.com/apirest.php")
	t.Setenv("ITSM_REQUEST_TIMEOUT_SECONDS", "90")
	t.Setenv("CACHE_BASE_TTL_SECONDS", "60")
	t.Setenv("CORS_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("HIGH_VOLUME_TECHNICIANS", "7,42")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.ITSM.BaseURL != "https://helpdesk.example.com/apirest.php" {
		t.Errorf("BaseURL = %q", cfg.ITSM.BaseURL)
	}
	if cfg.ITSM.RequestTimeout != 90*time.Second {
		t.Errorf("RequestTimeout = %v, want 90s", cfg.ITSM.RequestTimeout)
	}
	if cfg.CacheBaseTTL != time.Minute {
		t.Errorf("CacheBaseTTL = %v, want 1m", cfg.CacheBaseTTL)
	}
	if want := []string{"https://a.example.com", "https://b.example.com"}; !reflect.DeepEqual(cfg.CORSOrigins, want) {
		t.Errorf("CORSOrigins = %v, want %v", cfg.CORSOrigins, want)
	}
	if want := []string{"7", "42"}; !reflect.DeepEqual(cfg.HighVolumeTechnicians, want) {
		t.Errorf("HighVolumeTechnicians = %v, want %v", cfg.HighVolumeTechnicians, want)
	}
	if cfg.DataPath != dir {
		t.Errorf("DataPath = %q, want %q", cfg.DataPath, dir)
	}
	if _, err := os.Stat(cfg.LogDir); err != nil {
		t.Errorf("log directory not created: %v", err)
	}
}

func TestSplitList(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"a", []string{"a"}},
		{"a, b ,c", []string{"a", "b", "c"}},
		{" , ,", nil},
	}
	for _, tt := range tests {
		got := splitList(tt.in)
		if len(got) == 0 && len(tt.want) == 0 {
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("splitList(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
