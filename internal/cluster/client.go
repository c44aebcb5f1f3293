// Package cluster wraps the Kubernetes API for tenant namespace lifecycle
// and workload status queries.
package cluster

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/vitrinehq/vitrine/internal/domain"
)

// RESTConfig builds cluster access configuration, in-cluster when the server
// runs inside Kubernetes, from a kubeconfig file otherwise.
func RESTConfig(inCluster bool, kubeconfigPath string) (*rest.Config, error) {
	if inCluster {
		cfg, err := rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("failed to load in-cluster config: %w", err)
		}
		return cfg, nil
	}
	cfg, err := clientcmd.BuildConfigFromFlags("", kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load kubeconfig %s: %w", kubeconfigPath, err)
	}
	return cfg, nil
}

// Client implements domain.ClusterClient on a Kubernetes clientset.
type Client struct {
	clientset kubernetes.Interface
	logger    *zap.Logger
}

func NewClient(restConfig *rest.Config, logger *zap.Logger) (*Client, error) {
	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create clientset: %w", err)
	}
	return NewWithClientset(clientset, logger), nil
}

// NewWithClientset wraps an existing clientset. Tests use this with the fake
// clientset.
func NewWithClientset(clientset kubernetes.Interface, logger *zap.Logger) *Client {
	return &Client{clientset: clientset, logger: logger}
}

// EnsureNamespace creates the tenant namespace. A namespace that already
// exists is success: creation must stay idempotent across resumed attempts.
func (c *Client) EnsureNamespace(ctx context.Context, name string) error {
	ns := &corev1.Namespace{
		ObjectMeta: metav1.ObjectMeta{
			Name: name,
			Labels: map[string]string{
				"app":        name,
				"managed-by": "vitrine",
			},
		},
	}
	_, err := c.clientset.CoreV1().Namespaces().Create(ctx, ns, metav1.CreateOptions{})
	if err != nil {
		if apierrors.IsAlreadyExists(err) {
			c.logger.Debug("namespace already exists", zap.String("namespace", name))
			return nil
		}
		return fmt.Errorf("failed to create namespace %s: %w", name, err)
	}
	c.logger.Info("created namespace", zap.String("namespace", name))
	return nil
}

func (c *Client) NamespaceExists(ctx context.Context, name string) (bool, error) {
	_, err := c.clientset.CoreV1().Namespaces().Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		if apierrors.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get namespace %s: %w", name, err)
	}
	return true, nil
}

func (c *Client) WorkloadSummary(ctx context.Context, namespace string) (domain.WorkloadSummary, error) {
	pods, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return domain.WorkloadSummary{}, fmt.Errorf("failed to list pods in %s: %w", namespace, err)
	}

	summary := domain.WorkloadSummary{Total: len(pods.Items)}
	for _, p := range pods.Items {
		switch p.Status.Phase {
		case corev1.PodRunning:
			summary.Running++
		case corev1.PodPending:
			summary.Pending++
		case corev1.PodFailed:
			summary.Failed++
		}
	}
	return summary, nil
}

// PodName returns one pod matching the selector, preferring a running pod,
// or "" when none is scheduled yet.
func (c *Client) PodName(ctx context.Context, namespace, labelSelector string) (string, error) {
	pods, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{
		LabelSelector: labelSelector,
	})
	if err != nil {
		return "", fmt.Errorf("failed to list pods in %s: %w", namespace, err)
	}
	if len(pods.Items) == 0 {
		return "", nil
	}
	for _, p := range pods.Items {
		if p.Status.Phase == corev1.PodRunning {
			return p.Name, nil
		}
	}
	return pods.Items[0].Name, nil
}
