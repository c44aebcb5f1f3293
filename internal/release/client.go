// Package release manages tenant Helm releases, including transparent
// recovery from stale release locks left by crashed prior attempts.
package release

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"helm.sh/helm/v3/pkg/action"
	"helm.sh/helm/v3/pkg/chart/loader"
	"helm.sh/helm/v3/pkg/kube"
	helmrelease "helm.sh/helm/v3/pkg/release"
	"helm.sh/helm/v3/pkg/storage/driver"

	"github.com/vitrinehq/vitrine/internal/domain"
)

// pendingOperationMsg is the error signature Helm emits when a release is
// still marked in-progress by an earlier install/upgrade/rollback.
const pendingOperationMsg = "another operation (install/upgrade/rollback) is in progress"

// Options carry the chart location and the per-tenant values that do not
// change between tenants.
type Options struct {
	KubeconfigPath string
	ChartPath      string
	Image          string
	CertIssuer     string
	Timezone       string
	AdminEmail     string
	DBHost         string
	DBPort         int
	Timeout        time.Duration
}

// Client implements domain.ReleaseClient on the Helm SDK.
type Client struct {
	opts    Options
	actions actions
	logger  *zap.Logger
}

// actions is the thin seam over Helm's action package; tests substitute it.
type actions interface {
	history(release, namespace string) ([]*helmrelease.Release, error)
	install(ctx context.Context, release, namespace string, values map[string]any) error
	upgrade(ctx context.Context, release, namespace string, values map[string]any) error
	rollback(release, namespace string, revision int) error
	uninstall(release, namespace string) error
}

func NewClient(opts Options, logger *zap.Logger) *Client {
	return &Client{
		opts: opts,
		actions: &helmActions{
			kubeconfigPath: opts.KubeconfigPath,
			chartPath:      opts.ChartPath,
			timeout:        opts.Timeout,
		},
		logger: logger,
	}
}

func (c *Client) Exists(ctx context.Context, release, namespace string) (bool, error) {
	_, err := c.actions.history(release, namespace)
	if err != nil {
		if errors.Is(err, driver.ErrReleaseNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to query release %s: %w", release, err)
	}
	return true, nil
}

// Install installs or upgrades the tenant release atomically. When the
// operation fails on the pending-operation lock, the client rolls the release
// back to its latest recorded revision and retries exactly once; a second
// failure is surfaced as-is.
func (c *Client) Install(ctx context.Context, p domain.ReleaseParams) error {
	values := c.values(p)

	err := c.installOrUpgrade(ctx, p.Release, p.Namespace, values)
	if err == nil {
		return nil
	}
	if !isPendingLock(err) {
		return err
	}

	c.logger.Warn("release is locked by a prior operation, rolling back",
		zap.String("release", p.Release),
		zap.String("namespace", p.Namespace))

	revisions, histErr := c.actions.history(p.Release, p.Namespace)
	if histErr != nil || len(revisions) == 0 {
		return fmt.Errorf("release %s is locked and history is unavailable: %w", p.Release, err)
	}
	latest := revisions[0].Version
	for _, r := range revisions {
		if r.Version > latest {
			latest = r.Version
		}
	}

	if rbErr := c.actions.rollback(p.Release, p.Namespace, latest); rbErr != nil {
		return fmt.Errorf("failed to roll back locked release %s to revision %d: %w", p.Release, latest, rbErr)
	}

	c.logger.Info("rollback complete, retrying install",
		zap.String("release", p.Release),
		zap.Int("revision", latest))

	return c.installOrUpgrade(ctx, p.Release, p.Namespace, values)
}

// Uninstall removes the release. An already-absent release is success so
// tenant deletion stays idempotent.
func (c *Client) Uninstall(ctx context.Context, release, namespace string) error {
	err := c.actions.uninstall(release, namespace)
	if err != nil {
		if errors.Is(err, driver.ErrReleaseNotFound) {
			c.logger.Debug("release already absent", zap.String("release", release))
			return nil
		}
		return fmt.Errorf("failed to uninstall release %s: %w", release, err)
	}
	return nil
}

func (c *Client) installOrUpgrade(ctx context.Context, release, namespace string, values map[string]any) error {
	_, err := c.actions.history(release, namespace)
	if err != nil {
		if errors.Is(err, driver.ErrReleaseNotFound) {
			return c.actions.install(ctx, release, namespace, values)
		}
		return fmt.Errorf("failed to query release %s: %w", release, err)
	}
	return c.actions.upgrade(ctx, release, namespace, values)
}

// values carries both identifier charsets into the chart: instanceId keeps
// the hyphenated release name while appName is the underscore-only form the
// in-instance installer accepts.
func (c *Client) values(p domain.ReleaseParams) map[string]any {
	return map[string]any{
		"tenantName":  p.Release,
		"domain":      p.Domain,
		"storageSize": p.StorageSize,
		"image":       c.opts.Image,
		"certIssuer":  c.opts.CertIssuer,
		"database": map[string]any{
			"name":     p.DBName,
			"user":     p.DBUser,
			"password": p.DBPassword,
			"host":     c.opts.DBHost,
			"port":     c.opts.DBPort,
		},
		"app": map[string]any{
			"timezone":   c.opts.Timezone,
			"adminEmail": c.opts.AdminEmail,
			"instanceId": p.Release,
			"appName":    p.AppID,
		},
	}
}

func isPendingLock(err error) bool {
	return err != nil && strings.Contains(err.Error(), pendingOperationMsg)
}

// helmActions is the real SDK-backed implementation. Helm action
// configurations are namespace-scoped, so one is built per call.
type helmActions struct {
	kubeconfigPath string
	chartPath      string
	timeout        time.Duration
}

func (h *helmActions) config(namespace string) (*action.Configuration, error) {
	cfg := new(action.Configuration)
	getter := kube.GetConfig(h.kubeconfigPath, "", namespace)
	if err := cfg.Init(getter, namespace, "secret", func(string, ...interface{}) {}); err != nil {
		return nil, fmt.Errorf("failed to initialize helm action config: %w", err)
	}
	return cfg, nil
}

func (h *helmActions) history(release, namespace string) ([]*helmrelease.Release, error) {
	cfg, err := h.config(namespace)
	if err != nil {
		return nil, err
	}
	hist := action.NewHistory(cfg)
	return hist.Run(release)
}

func (h *helmActions) install(ctx context.Context, release, namespace string, values map[string]any) error {
	cfg, err := h.config(namespace)
	if err != nil {
		return err
	}
	chart, err := loader.Load(h.chartPath)
	if err != nil {
		return fmt.Errorf("failed to load chart %s: %w", h.chartPath, err)
	}

	install := action.NewInstall(cfg)
	install.ReleaseName = release
	install.Namespace = namespace
	install.CreateNamespace = true
	install.Atomic = true
	install.Wait = true
	install.Timeout = h.timeout

	_, err = install.RunWithContext(ctx, chart, values)
	return err
}

func (h *helmActions) upgrade(ctx context.Context, release, namespace string, values map[string]any) error {
	cfg, err := h.config(namespace)
	if err != nil {
		return err
	}
	chart, err := loader.Load(h.chartPath)
	if err != nil {
		return fmt.Errorf("failed to load chart %s: %w", h.chartPath, err)
	}

	upgrade := action.NewUpgrade(cfg)
	upgrade.Namespace = namespace
	upgrade.Atomic = true
	upgrade.Wait = true
	upgrade.Timeout = h.timeout

	_, err = upgrade.RunWithContext(ctx, release, chart, values)
	return err
}

func (h *helmActions) rollback(release, namespace string, revision int) error {
	cfg, err := h.config(namespace)
	if err != nil {
		return err
	}
	rollback := action.NewRollback(cfg)
	rollback.Version = revision
	rollback.Wait = true
	rollback.Timeout = h.timeout
	return rollback.Run(release)
}

func (h *helmActions) uninstall(release, namespace string) error {
	cfg, err := h.config(namespace)
	if err != nil {
		return err
	}
	uninstall := action.NewUninstall(cfg)
	uninstall.Timeout = h.timeout
	_, err = uninstall.Run(release)
	return err
}
