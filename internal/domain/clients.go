package domain

import "context"

// WorkloadSummary counts a namespace's pods by phase.
type WorkloadSummary struct {
	Running int `json:"running"`
	Pending int `json:"pending"`
	Failed  int `json:"failed"`
	Total   int `json:"total"`
}

// ClusterClient wraps the cluster control API for namespace lifecycle and
// workload status.
type ClusterClient interface {
	// EnsureNamespace creates the namespace if absent. An already-existing
	// namespace is success, not an error.
	EnsureNamespace(ctx context.Context, name string) error
	NamespaceExists(ctx context.Context, name string) (bool, error)
	WorkloadSummary(ctx context.Context, namespace string) (WorkloadSummary, error)
	// PodName returns the name of one pod matching the label selector, or
	// "" when none is scheduled yet.
	PodName(ctx context.Context, namespace, labelSelector string) (string, error)
}

// ReleaseParams carries the resolved values for one tenant's release.
type ReleaseParams struct {
	Release   string
	Namespace string
	Domain    string

	// AppID is the underscore-charset identifier passed to the instance,
	// distinct from the hyphenated release name.
	AppID string

	DBName     string
	DBUser     string
	DBPassword string

	StorageSize string
}

// ReleaseClient manages templated multi-resource bundles on the cluster.
type ReleaseClient interface {
	Exists(ctx context.Context, release, namespace string) (bool, error)
	Install(ctx context.Context, p ReleaseParams) error
	// Uninstall tolerates an already-absent release.
	Uninstall(ctx context.Context, release, namespace string) error
}

// DatabaseProvisioner creates tenant-scoped databases and principals on the
// shared database server.
type DatabaseProvisioner interface {
	Exists(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, name, user, password string) error
}

// SetupRunner invokes the one-shot in-instance installer and extracts the
// generated administrator credential from its output. A setup that cannot
// complete returns ok=false, never an error: the surrounding workflow treats
// the credential as best-effort once the workload itself is healthy.
type SetupRunner interface {
	RunSetup(ctx context.Context, namespace, release, appID string) (credential string, ok bool)
}
