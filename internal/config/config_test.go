package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/vitrine")
	t.Setenv("BASE_DOMAIN", "example.com")
	t.Setenv("HELM_CHART_PATH", "/charts/app")
	t.Setenv("TENANT_IMAGE", "registry.example.com/app:latest")
	t.Setenv("ADMIN_EMAIL", "ops@example.com")
	t.Setenv("TENANT_DB_HOST", "db.internal")
	t.Setenv("TENANT_DB_ADMIN_PASSWORD", "pw")
	t.Setenv("ADMIN_TOKEN", "token")
	t.Setenv("KUBECONFIG_PATH", "/etc/kubeconfig")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)
	t.Setenv("VITRINE_ENV", "nonexistent.env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	if cfg.ServerPort != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.ServerPort)
	}
	if cfg.NamespacePrefix != "tenant" || cfg.DBNamePrefix != "app" {
		t.Fatalf("unexpected prefixes %q / %q", cfg.NamespacePrefix, cfg.DBNamePrefix)
	}
	if cfg.ReleaseTimeout != 5*time.Minute {
		t.Fatalf("expected 5m release timeout, got %s", cfg.ReleaseTimeout)
	}
	if cfg.SetupTimeout != 2*time.Minute {
		t.Fatalf("expected 2m setup timeout, got %s", cfg.SetupTimeout)
	}
	if cfg.TenantDBPort != 3306 || cfg.TenantDBAdminUser != "root" {
		t.Fatalf("unexpected tenant db defaults %d / %q", cfg.TenantDBPort, cfg.TenantDBAdminUser)
	}
	if len(cfg.SetupCommand) == 0 || cfg.SetupCommand[len(cfg.SetupCommand)-1] != "install" {
		t.Fatalf("unexpected setup command %v", cfg.SetupCommand)
	}
}

func TestValidate_ReportsAllMissing(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, key := range []string{"DATABASE_URL", "BASE_DOMAIN", "HELM_CHART_PATH", "ADMIN_TOKEN", "KUBECONFIG_PATH"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected %s in error, got %v", key, err)
		}
	}
}

func TestValidate_InClusterSkipsKubeconfig(t *testing.T) {
	setRequired(t)
	t.Setenv("KUBECONFIG_PATH", "")
	t.Setenv("KUBERNETES_IN_CLUSTER", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("in-cluster config must not need a kubeconfig, got %v", err)
	}
}

func TestStorageSize(t *testing.T) {
	cfg := &Config{DefaultStorageSize: "20Gi"}

	cases := map[string]string{
		"starter": "10Gi",
		"basic":   "20Gi",
		"pro":     "100Gi",
		"museum":  "1Ti",
		"unknown": "20Gi",
	}
	for plan, want := range cases {
		if got := cfg.StorageSize(plan); got != want {
			t.Fatalf("StorageSize(%q) = %q, want %q", plan, got, want)
		}
	}
}

func TestPlanForPrice(t *testing.T) {
	cfg := &Config{PlanPriceIDs: map[string]string{"price_abc": "pro"}}

	if got := cfg.PlanForPrice("price_abc"); got != "pro" {
		t.Fatalf("expected pro, got %q", got)
	}
	if got := cfg.PlanForPrice("price_unknown"); got != "starter" {
		t.Fatalf("expected starter fallback, got %q", got)
	}
}

func TestParsePlanMap(t *testing.T) {
	m := parsePlanMap("price_abc=starter, price_def=pro,bad,=x,y=")
	if len(m) != 2 {
		t.Fatalf("expected 2 entries, got %v", m)
	}
	if m["price_abc"] != "starter" || m["price_def"] != "pro" {
		t.Fatalf("unexpected map %v", m)
	}
}
