package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config carries every setting the server needs. It is loaded once in main
// and handed to constructors explicitly; nothing reads the environment after
// Load returns.
type Config struct {
	ServerPort int

	// Backend metadata store.
	DatabaseURL string

	// Cluster access.
	KubernetesInCluster bool
	KubeconfigPath      string

	// Tenant identity.
	NamespacePrefix string
	BaseDomain      string
	DBNamePrefix    string

	// Release installation.
	ChartPath          string
	TenantImage        string
	CertIssuer         string
	Timezone           string
	AdminEmail         string
	DefaultStorageSize string
	ReleaseTimeout     time.Duration

	// Shared database server for tenant databases (administrative
	// principal, distinct from the per-tenant principals it creates).
	TenantDBHost          string
	TenantDBPort          int
	TenantDBAdminUser     string
	TenantDBAdminPassword string

	// In-instance setup command.
	SetupCommand []string
	SetupTimeout time.Duration

	// Operator API.
	AdminToken     string
	WebhookSecret  string
	RateLimitRPS   float64
	RateLimitBurst int

	// Billing plan resolution: provider price id -> plan tier.
	PlanPriceIDs map[string]string
}

// storageSizes maps plan tiers to persistent volume sizes.
var storageSizes = map[string]string{
	"starter": "10Gi",
	"basic":   "20Gi",
	"pro":     "100Gi",
	"museum":  "1Ti",
}

// Load reads the .env file named by VITRINE_ENV (default .env) plus its
// .secret sidecar, then builds the Config from environment variables.
func Load() (*Config, error) {
	envFile := os.Getenv("VITRINE_ENV")
	if envFile == "" {
		envFile = ".env"
	}
	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	cfg := &Config{
		ServerPort: envInt("SERVER_PORT", 8080),

		DatabaseURL: os.Getenv("DATABASE_URL"),

		KubernetesInCluster: envBool("KUBERNETES_IN_CLUSTER"),
		KubeconfigPath:      os.Getenv("KUBECONFIG_PATH"),

		NamespacePrefix: envStr("NAMESPACE_PREFIX", "tenant"),
		BaseDomain:      os.Getenv("BASE_DOMAIN"),
		DBNamePrefix:    envStr("DB_NAME_PREFIX", "app"),

		ChartPath:          os.Getenv("HELM_CHART_PATH"),
		TenantImage:        os.Getenv("TENANT_IMAGE"),
		CertIssuer:         envStr("CERT_ISSUER", "letsencrypt"),
		Timezone:           envStr("TENANT_TIMEZONE", "UTC"),
		AdminEmail:         os.Getenv("ADMIN_EMAIL"),
		DefaultStorageSize: envStr("DEFAULT_STORAGE_SIZE", "20Gi"),
		ReleaseTimeout:     envDuration("RELEASE_TIMEOUT", 5*time.Minute),

		TenantDBHost:          os.Getenv("TENANT_DB_HOST"),
		TenantDBPort:          envInt("TENANT_DB_PORT", 3306),
		TenantDBAdminUser:     envStr("TENANT_DB_ADMIN_USER", "root"),
		TenantDBAdminPassword: os.Getenv("TENANT_DB_ADMIN_PASSWORD"),

		SetupCommand: strings.Fields(envStr("SETUP_COMMAND", "/var/www/html/support/bin/appUtils install")),
		SetupTimeout: envDuration("SETUP_TIMEOUT", 2*time.Minute),

		AdminToken:     os.Getenv("ADMIN_TOKEN"),
		WebhookSecret:  os.Getenv("WEBHOOK_SECRET"),
		RateLimitRPS:   envFloat("RATE_LIMIT_RPS", 100),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 20),

		PlanPriceIDs: parsePlanMap(os.Getenv("PLAN_PRICE_IDS")),
	}
	return cfg, nil
}

// Validate fails fast on missing required settings so misconfiguration
// surfaces at startup, not on the first provisioning attempt.
func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.BaseDomain == "" {
		missing = append(missing, "BASE_DOMAIN")
	}
	if c.ChartPath == "" {
		missing = append(missing, "HELM_CHART_PATH")
	}
	if c.TenantImage == "" {
		missing = append(missing, "TENANT_IMAGE")
	}
	if c.AdminEmail == "" {
		missing = append(missing, "ADMIN_EMAIL")
	}
	if c.TenantDBHost == "" {
		missing = append(missing, "TENANT_DB_HOST")
	}
	if c.TenantDBAdminPassword == "" {
		missing = append(missing, "TENANT_DB_ADMIN_PASSWORD")
	}
	if c.AdminToken == "" {
		missing = append(missing, "ADMIN_TOKEN")
	}
	if !c.KubernetesInCluster && c.KubeconfigPath == "" {
		missing = append(missing, "KUBECONFIG_PATH")
	}
	if len(missing) > 0 {
		return errors.New("missing required settings: " + strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) ServerAddr() string {
	return fmt.Sprintf(":%d", c.ServerPort)
}

// StorageSize resolves a plan tier to its volume size, falling back to the
// configured default for unknown tiers.
func (c *Config) StorageSize(plan string) string {
	if size, ok := storageSizes[plan]; ok {
		return size
	}
	return c.DefaultStorageSize
}

// PlanForPrice maps a provider price id to a plan tier, defaulting to the
// smallest tier when the id is not configured.
func (c *Config) PlanForPrice(priceID string) string {
	if plan, ok := c.PlanPriceIDs[priceID]; ok {
		return plan
	}
	return "starter"
}

// parsePlanMap parses "price_abc=starter,price_def=pro" into a lookup map.
func parsePlanMap(s string) map[string]string {
	m := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || k == "" || v == "" {
			continue
		}
		m[k] = v
	}
	return m
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	n, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	f, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func envBool(key string) bool {
	b, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return false
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(key))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
