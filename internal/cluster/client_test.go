package cluster

import (
	"context"
	"testing"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/fake"
)

func pod(name, namespace string, phase corev1.PodPhase, labels map[string]string) *corev1.Pod {
	return &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: namespace,
			Labels:    labels,
		},
		Status: corev1.PodStatus{Phase: phase},
	}
}

func TestEnsureNamespace(t *testing.T) {
	clientset := fake.NewSimpleClientset()
	c := NewWithClientset(clientset, zap.NewNop())
	ctx := context.Background()

	if err := c.EnsureNamespace(ctx, "tenant-ab12cd34"); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	ns, err := clientset.CoreV1().Namespaces().Get(ctx, "tenant-ab12cd34", metav1.GetOptions{})
	if err != nil {
		t.Fatalf("expected namespace created, got %v", err)
	}
	if ns.Labels["managed-by"] != "vitrine" {
		t.Fatalf("expected managed-by label, got %v", ns.Labels)
	}
}

func TestEnsureNamespace_AlreadyExists(t *testing.T) {
	clientset := fake.NewSimpleClientset(&corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{Name: "tenant-ab12cd34"},
	})
	c := NewWithClientset(clientset, zap.NewNop())

	if err := c.EnsureNamespace(context.Background(), "tenant-ab12cd34"); err != nil {
		t.Fatalf("existing namespace must be success, got %v", err)
	}
}

func TestNamespaceExists(t *testing.T) {
	clientset := fake.NewSimpleClientset(&corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{Name: "tenant-ab12cd34"},
	})
	c := NewWithClientset(clientset, zap.NewNop())
	ctx := context.Background()

	exists, err := c.NamespaceExists(ctx, "tenant-ab12cd34")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if !exists {
		t.Fatal("expected namespace to exist")
	}

	exists, err = c.NamespaceExists(ctx, "tenant-missing")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if exists {
		t.Fatal("expected namespace to be absent")
	}
}

func TestWorkloadSummary(t *testing.T) {
	ns := "tenant-ab12cd34"
	clientset := fake.NewSimpleClientset(
		pod("app-0", ns, corev1.PodRunning, nil),
		pod("app-1", ns, corev1.PodRunning, nil),
		pod("db-0", ns, corev1.PodPending, nil),
		pod("job-0", ns, corev1.PodFailed, nil),
		pod("other", "elsewhere", corev1.PodRunning, nil),
	)
	c := NewWithClientset(clientset, zap.NewNop())

	summary, err := c.WorkloadSummary(context.Background(), ns)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if summary.Total != 4 {
		t.Fatalf("expected 4 pods, got %d", summary.Total)
	}
	if summary.Running != 2 || summary.Pending != 1 || summary.Failed != 1 {
		t.Fatalf("unexpected phase counts: %+v", summary)
	}
}

func TestPodName_PrefersRunning(t *testing.T) {
	ns := "tenant-ab12cd34"
	labels := map[string]string{"app": "tenant-ab12cd34"}
	clientset := fake.NewSimpleClientset(
		pod("app-pending", ns, corev1.PodPending, labels),
		pod("app-running", ns, corev1.PodRunning, labels),
	)
	c := NewWithClientset(clientset, zap.NewNop())

	name, err := c.PodName(context.Background(), ns, "app=tenant-ab12cd34")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if name != "app-running" {
		t.Fatalf("expected running pod preferred, got %q", name)
	}
}

func TestPodName_NoneScheduled(t *testing.T) {
	c := NewWithClientset(fake.NewSimpleClientset(), zap.NewNop())

	name, err := c.PodName(context.Background(), "tenant-ab12cd34", "app=tenant-ab12cd34")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if name != "" {
		t.Fatalf("expected empty name, got %q", name)
	}
}
