package infra

import "testing"

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://example")
	t.Setenv("SUPABASE_URL", "https://abcdefgh.supabase.co")
	t.Setenv("SUPABASE_SERVICE_KEY", "service-key")
	t.Setenv("SUPABASE_JWT_SECRET", "jwt-secret")
	t.Setenv("REPLICATE_API_TOKEN", "r8_test")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "")
	t.Setenv("REPLICATE_BASE_URL", "")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.Port != "8080" {
		t.Fatalf("Port mismatch: got %q", cfg.Port)
	}
	if cfg.ReplicateBaseURL != "https://api.replicate.com/v1" {
		t.Fatalf("ReplicateBaseURL mismatch: got %q", cfg.ReplicateBaseURL)
	}
	if cfg.SiteURL != "http://localhost:3000" {
		t.Fatalf("SiteURL mismatch: got %q", cfg.SiteURL)
	}
}

func TestLoadConfigMissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SUPABASE_JWT_SECRET", "")

	if _, err := LoadConfig(); err == nil {
		t.Fatal("expected error for missing SUPABASE_JWT_SECRET")
	}
}

func TestProjectRef(t *testing.T) {
	setRequiredEnv(t)
	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if got := cfg.ProjectRef(); got != "abcdefgh" {
		t.Fatalf("ProjectRef mismatch: got %q", got)
	}
}

func TestLoadConfigTrimsSupabaseURL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SUPABASE_URL", "https://abcdefgh.supabase.co/")

	cfg, err := LoadConfig()
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.SupabaseURL != "https://abcdefgh.supabase.co" {
		t.Fatalf("SupabaseURL mismatch: got %q", cfg.SupabaseURL)
	}
}
