package release

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	helmrelease "helm.sh/helm/v3/pkg/release"
	"helm.sh/helm/v3/pkg/storage/driver"

	"github.com/vitrinehq/vitrine/internal/domain"
)

// fakeActions scripts the Helm seam.
type fakeActions struct {
	revisions    []*helmrelease.Release
	historyErr   error
	installErrs  []error
	installs     int
	upgradeErr   error
	upgrades     int
	rollbackErr  error
	rollbacks    []int
	uninstallErr error
	uninstalls   int
}

func (f *fakeActions) history(release, namespace string) ([]*helmrelease.Release, error) {
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	return f.revisions, nil
}

func (f *fakeActions) install(ctx context.Context, release, namespace string, values map[string]any) error {
	var err error
	if f.installs < len(f.installErrs) {
		err = f.installErrs[f.installs]
	}
	f.installs++
	return err
}

func (f *fakeActions) upgrade(ctx context.Context, release, namespace string, values map[string]any) error {
	f.upgrades++
	return f.upgradeErr
}

func (f *fakeActions) rollback(release, namespace string, revision int) error {
	f.rollbacks = append(f.rollbacks, revision)
	return f.rollbackErr
}

func (f *fakeActions) uninstall(release, namespace string) error {
	f.uninstalls++
	return f.uninstallErr
}

func newTestClient(fake actions) *Client {
	c := NewClient(Options{ChartPath: "/charts/app"}, zap.NewNop())
	c.actions = fake
	return c
}

func params() domain.ReleaseParams {
	return domain.ReleaseParams{
		Release:     "tenant-ab12cd34",
		Namespace:   "tenant-ab12cd34",
		Domain:      "tenant-ab12cd34.example.com",
		AppID:       "tenant_ab12cd34",
		DBName:      "app_ab12cd34",
		DBUser:      "app_ab12cd34",
		DBPassword:  "pw",
		StorageSize: "20Gi",
	}
}

func TestExists(t *testing.T) {
	fake := &fakeActions{revisions: []*helmrelease.Release{{Version: 1}}}
	c := newTestClient(fake)

	exists, err := c.Exists(context.Background(), "tenant-ab12cd34", "tenant-ab12cd34")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !exists {
		t.Fatal("expected release to exist")
	}
}

func TestExists_NotFound(t *testing.T) {
	fake := &fakeActions{historyErr: driver.ErrReleaseNotFound}
	c := newTestClient(fake)

	exists, err := c.Exists(context.Background(), "tenant-ab12cd34", "tenant-ab12cd34")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if exists {
		t.Fatal("expected release to be absent")
	}
}

func TestInstall_FreshRelease(t *testing.T) {
	fake := &fakeActions{historyErr: driver.ErrReleaseNotFound}
	c := newTestClient(fake)

	if err := c.Install(context.Background(), params()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if fake.installs != 1 || fake.upgrades != 0 {
		t.Fatalf("expected one install, got %d installs / %d upgrades", fake.installs, fake.upgrades)
	}
}

func TestInstall_ExistingReleaseUpgrades(t *testing.T) {
	fake := &fakeActions{revisions: []*helmrelease.Release{{Version: 2}}}
	c := newTestClient(fake)

	if err := c.Install(context.Background(), params()); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if fake.upgrades != 1 || fake.installs != 0 {
		t.Fatalf("expected one upgrade, got %d installs / %d upgrades", fake.installs, fake.upgrades)
	}
}

func TestInstall_PendingLockRecovers(t *testing.T) {
	// History reports revisions 1..3; the lock rollback must target 3, the
	// latest recorded revision, then the retried upgrade succeeds.
	fake := &fakeActions{
		revisions: []*helmrelease.Release{
			{Version: 1}, {Version: 3}, {Version: 2},
		},
		upgradeErr: errors.New(pendingOperationMsg),
	}
	c := newTestClient(fake)

	// The fake keeps returning the lock error on every upgrade, so the retry
	// fails too and the error surfaces.
	err := c.Install(context.Background(), params())
	if err == nil {
		t.Fatal("expected error when lock persists")
	}
	if len(fake.rollbacks) != 1 || fake.rollbacks[0] != 3 {
		t.Fatalf("expected rollback to revision 3, got %v", fake.rollbacks)
	}
	if fake.upgrades != 2 {
		t.Fatalf("expected exactly one retry, got %d upgrades", fake.upgrades)
	}
}

func TestInstall_PendingLockRetrySucceeds(t *testing.T) {
	fake := &lockOnceActions{
		fakeActions: fakeActions{revisions: []*helmrelease.Release{{Version: 1}}},
	}
	c := newTestClient(fake)

	if err := c.Install(context.Background(), params()); err != nil {
		t.Fatalf("expected recovery to succeed, got %v", err)
	}
	if len(fake.rollbacks) != 1 || fake.rollbacks[0] != 1 {
		t.Fatalf("expected rollback to revision 1, got %v", fake.rollbacks)
	}
	if fake.upgrades != 2 {
		t.Fatalf("expected retry after rollback, got %d upgrades", fake.upgrades)
	}
}

// lockOnceActions fails the first upgrade with the pending lock and lets the
// retry through.
type lockOnceActions struct {
	fakeActions
}

func (f *lockOnceActions) upgrade(ctx context.Context, release, namespace string, values map[string]any) error {
	f.upgrades++
	if f.upgrades == 1 {
		return errors.New(pendingOperationMsg)
	}
	return nil
}

func TestInstall_NonLockErrorSurfaces(t *testing.T) {
	fake := &fakeActions{
		historyErr:  driver.ErrReleaseNotFound,
		installErrs: []error{errors.New("chart not found")},
	}
	c := newTestClient(fake)

	err := c.Install(context.Background(), params())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(fake.rollbacks) != 0 {
		t.Fatal("non-lock errors must not trigger rollback")
	}
}

func TestUninstall_AbsentReleaseTolerated(t *testing.T) {
	fake := &fakeActions{uninstallErr: driver.ErrReleaseNotFound}
	c := newTestClient(fake)

	if err := c.Uninstall(context.Background(), "tenant-ab12cd34", "tenant-ab12cd34"); err != nil {
		t.Fatalf("expected absent release to be tolerated, got %v", err)
	}
}

func TestUninstall_ErrorSurfaces(t *testing.T) {
	fake := &fakeActions{uninstallErr: errors.New("connection refused")}
	c := newTestClient(fake)

	if err := c.Uninstall(context.Background(), "tenant-ab12cd34", "tenant-ab12cd34"); err == nil {
		t.Fatal("expected error")
	}
}

func TestValues(t *testing.T) {
	c := NewClient(Options{
		Image:      "registry.example.com/app:latest",
		CertIssuer: "letsencrypt",
		Timezone:   "UTC",
		AdminEmail: "ops@example.com",
		DBHost:     "db.internal",
		DBPort:     3306,
	}, zap.NewNop())

	values := c.values(params())
	app, ok := values["app"].(map[string]any)
	if !ok {
		t.Fatal("expected app values")
	}
	if app["instanceId"] != "tenant-ab12cd34" {
		t.Fatalf("instanceId must keep the hyphenated form, got %v", app["instanceId"])
	}
	if app["appName"] != "tenant_ab12cd34" {
		t.Fatalf("appName must use the underscore form, got %v", app["appName"])
	}
	db, ok := values["database"].(map[string]any)
	if !ok {
		t.Fatal("expected database values")
	}
	if db["host"] != "db.internal" || db["port"] != 3306 {
		t.Fatalf("unexpected database endpoint %v:%v", db["host"], db["port"])
	}
}
