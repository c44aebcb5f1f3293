package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vitrinehq/vitrine/internal/config"
	"github.com/vitrinehq/vitrine/internal/domain"
	"github.com/vitrinehq/vitrine/internal/store"
)

// mockTenantStore implements domain.TenantStore for testing. It shares the
// log and subscription mocks so CreateWithSubscription behaves like the real
// transactional insert.
type mockTenantStore struct {
	byID   map[uuid.UUID]*domain.Tenant
	subFor map[uuid.UUID]string
	logs   *mockLogStore
	subs   *mockSubscriptionStore

	// raceTenant simulates a concurrent winner: invisible to lookups until
	// an insert collides with it.
	raceTenant  *domain.Tenant
	raceVisible bool

	statusUpdates []domain.TenantStatus
}

func newMockTenantStore(logs *mockLogStore, subs *mockSubscriptionStore) *mockTenantStore {
	return &mockTenantStore{
		byID:   make(map[uuid.UUID]*domain.Tenant),
		subFor: make(map[uuid.UUID]string),
		logs:   logs,
		subs:   subs,
	}
}

func (m *mockTenantStore) CreateWithSubscription(ctx context.Context, t *domain.Tenant, sub *domain.Subscription, plog *domain.ProvisioningLog) error {
	if m.raceTenant != nil {
		m.raceVisible = true
		return store.ErrConflict
	}
	for id := range m.byID {
		if m.subFor[id] == sub.ExternalID {
			return store.ErrConflict
		}
	}
	t.ID = uuid.New()
	t.CreatedAt = time.Now()
	m.byID[t.ID] = t
	m.subFor[t.ID] = sub.ExternalID

	sub.ID = uuid.New()
	sub.TenantID = t.ID
	m.subs.subs[sub.ExternalID] = sub

	plog.ID = uuid.New()
	plog.TenantID = t.ID
	m.logs.rows[plog.ID] = plog
	return nil
}

func (m *mockTenantStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Tenant, error) {
	t, ok := m.byID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return t, nil
}

func (m *mockTenantStore) GetByNamespace(ctx context.Context, namespace string) (*domain.Tenant, error) {
	for _, t := range m.byID {
		if t.Namespace == namespace {
			return t, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockTenantStore) GetBySubscriptionID(ctx context.Context, externalID string) (*domain.Tenant, error) {
	if m.raceTenant != nil && m.raceVisible {
		return m.raceTenant, nil
	}
	for id, t := range m.byID {
		if m.subFor[id] == externalID {
			return t, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *mockTenantStore) List(ctx context.Context, limit, offset int) ([]domain.Tenant, int, error) {
	var out []domain.Tenant
	for _, t := range m.byID {
		out = append(out, *t)
	}
	return out, len(out), nil
}

func (m *mockTenantStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.TenantStatus) error {
	t, ok := m.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	t.Status = status
	m.statusUpdates = append(m.statusUpdates, status)
	return nil
}

func (m *mockTenantStore) MarkDeployed(ctx context.Context, id uuid.UUID, adminPassword string) error {
	t, ok := m.byID[id]
	if !ok {
		return store.ErrNotFound
	}
	now := time.Now()
	t.Status = domain.TenantStatusActive
	t.AdminPassword = adminPassword
	t.DeployedAt = &now
	return nil
}

type mockSubscriptionStore struct {
	subs     map[string]*domain.Subscription
	canceled []string
	periods  int
}

func newMockSubscriptionStore() *mockSubscriptionStore {
	return &mockSubscriptionStore{subs: make(map[string]*domain.Subscription)}
}

func (m *mockSubscriptionStore) GetByExternalID(ctx context.Context, externalID string) (*domain.Subscription, error) {
	sub, ok := m.subs[externalID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return sub, nil
}

func (m *mockSubscriptionStore) UpdateStatus(ctx context.Context, externalID, status string) error {
	sub, ok := m.subs[externalID]
	if !ok {
		return store.ErrNotFound
	}
	sub.Status = status
	return nil
}

func (m *mockSubscriptionStore) UpdatePeriod(ctx context.Context, externalID string, start, end time.Time) error {
	sub, ok := m.subs[externalID]
	if !ok {
		return store.ErrNotFound
	}
	sub.CurrentPeriodStart = start
	sub.CurrentPeriodEnd = end
	m.periods++
	return nil
}

func (m *mockSubscriptionStore) MarkCanceled(ctx context.Context, externalID string, at time.Time) error {
	sub, ok := m.subs[externalID]
	if !ok {
		return store.ErrNotFound
	}
	sub.Status = domain.SubscriptionStatusCanceled
	sub.CanceledAt = &at
	m.canceled = append(m.canceled, externalID)
	return nil
}

type mockLogStore struct {
	rows map[uuid.UUID]*domain.ProvisioningLog
}

func newMockLogStore() *mockLogStore {
	return &mockLogStore{rows: make(map[uuid.UUID]*domain.ProvisioningLog)}
}

func (m *mockLogStore) Create(ctx context.Context, l *domain.ProvisioningLog) error {
	l.ID = uuid.New()
	l.CreatedAt = time.Now()
	m.rows[l.ID] = l
	return nil
}

func (m *mockLogStore) Close(ctx context.Context, id uuid.UUID, status, message, errorDetails string) error {
	l, ok := m.rows[id]
	if !ok || l.CompletedAt != nil {
		return store.ErrNotFound
	}
	now := time.Now()
	l.Status = status
	l.Message = message
	l.ErrorDetails = errorDetails
	l.CompletedAt = &now
	return nil
}

func (m *mockLogStore) EventProcessed(ctx context.Context, eventID string) (bool, error) {
	for _, l := range m.rows {
		if l.EventID == eventID {
			return true, nil
		}
	}
	return false, nil
}

// lastByAction returns the most recently created row for an action.
func (m *mockLogStore) lastByAction(action domain.ProvisioningAction) *domain.ProvisioningLog {
	var last *domain.ProvisioningLog
	for _, l := range m.rows {
		if l.Action != action {
			continue
		}
		if last == nil || l.CreatedAt.After(last.CreatedAt) {
			last = l
		}
	}
	return last
}

type mockCluster struct {
	namespaces map[string]bool
	ensured    []string
	ensureErr  error
}

func newMockCluster() *mockCluster {
	return &mockCluster{namespaces: make(map[string]bool)}
}

func (m *mockCluster) EnsureNamespace(ctx context.Context, name string) error {
	if m.ensureErr != nil {
		return m.ensureErr
	}
	m.namespaces[name] = true
	m.ensured = append(m.ensured, name)
	return nil
}

func (m *mockCluster) NamespaceExists(ctx context.Context, name string) (bool, error) {
	return m.namespaces[name], nil
}

func (m *mockCluster) WorkloadSummary(ctx context.Context, namespace string) (domain.WorkloadSummary, error) {
	return domain.WorkloadSummary{Running: 1, Total: 1}, nil
}

func (m *mockCluster) PodName(ctx context.Context, namespace, labelSelector string) (string, error) {
	return "pod-0", nil
}

type mockReleases struct {
	installed    map[string]bool
	installs     []domain.ReleaseParams
	installErr   error
	uninstalled  []string
	uninstallErr error
}

func newMockReleases() *mockReleases {
	return &mockReleases{installed: make(map[string]bool)}
}

func (m *mockReleases) Exists(ctx context.Context, release, namespace string) (bool, error) {
	return m.installed[release], nil
}

func (m *mockReleases) Install(ctx context.Context, p domain.ReleaseParams) error {
	if m.installErr != nil {
		return m.installErr
	}
	m.installed[p.Release] = true
	m.installs = append(m.installs, p)
	return nil
}

func (m *mockReleases) Uninstall(ctx context.Context, release, namespace string) error {
	if m.uninstallErr != nil {
		return m.uninstallErr
	}
	delete(m.installed, release)
	m.uninstalled = append(m.uninstalled, release)
	return nil
}

type mockDatabases struct {
	existing  map[string]bool
	creates   []string
	createErr error
}

func newMockDatabases() *mockDatabases {
	return &mockDatabases{existing: make(map[string]bool)}
}

func (m *mockDatabases) Exists(ctx context.Context, name string) (bool, error) {
	return m.existing[name], nil
}

func (m *mockDatabases) Create(ctx context.Context, name, user, password string) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.existing[name] = true
	m.creates = append(m.creates, name)
	return nil
}

type mockSetup struct {
	password string
	ok       bool
	calls    int
}

func (m *mockSetup) RunSetup(ctx context.Context, namespace, release, appID string) (string, bool) {
	m.calls++
	return m.password, m.ok
}

type fixture struct {
	tenants  *mockTenantStore
	subs     *mockSubscriptionStore
	logs     *mockLogStore
	cluster  *mockCluster
	releases *mockReleases
	dbs      *mockDatabases
	setup    *mockSetup
	cfg      *config.Config
	svc      *ProvisioningService
}

func newFixture() *fixture {
	logs := newMockLogStore()
	subs := newMockSubscriptionStore()
	f := &fixture{
		tenants:  newMockTenantStore(logs, subs),
		subs:     subs,
		logs:     logs,
		cluster:  newMockCluster(),
		releases: newMockReleases(),
		dbs:      newMockDatabases(),
		setup:    &mockSetup{password: "s3cret", ok: true},
		cfg: &config.Config{
			NamespacePrefix:    "tenant",
			BaseDomain:         "example.com",
			DBNamePrefix:       "app",
			DefaultStorageSize: "20Gi",
			PlanPriceIDs:       map[string]string{"price_pro": "pro"},
		},
	}
	f.svc = NewProvisioningService(
		f.tenants, f.subs, f.logs,
		f.cluster, f.releases, f.dbs, f.setup,
		f.cfg, zap.NewNop(),
	)
	return f
}
