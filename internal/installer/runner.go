// Package installer runs the one-shot in-instance setup command inside a
// freshly deployed tenant pod and captures the generated admin credential.
package installer

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/kubernetes/scheme"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/remotecommand"

	"github.com/vitrinehq/vitrine/internal/domain"
)

// Options configure the setup invocation.
type Options struct {
	// Command is the base in-pod command; tenant-specific flags are
	// appended per run.
	Command    []string
	AdminEmail string
	Timeout    time.Duration
}

type executor interface {
	exec(ctx context.Context, namespace, pod string, command []string) (string, error)
}

// Runner implements domain.SetupRunner.
type Runner struct {
	cluster domain.ClusterClient
	exec    executor
	opts    Options
	backoff wait.Backoff
	logger  *zap.Logger
}

var defaultBackoff = wait.Backoff{
	Duration: 2 * time.Second,
	Factor:   1.5,
	Steps:    12,
	Cap:      30 * time.Second,
}

func NewRunner(cluster domain.ClusterClient, clientset kubernetes.Interface, restConfig *rest.Config, opts Options, logger *zap.Logger) *Runner {
	return &Runner{
		cluster: cluster,
		exec:    &spdyExecutor{clientset: clientset, config: restConfig},
		opts:    opts,
		backoff: defaultBackoff,
		logger:  logger,
	}
}

// RunSetup waits for the tenant workload to come up, execs the setup command
// in its pod and scans the output for the generated credential. Every failure
// mode returns ok=false rather than an error: the surrounding workflow treats
// the credential as best-effort once the workload reports healthy.
func (r *Runner) RunSetup(ctx context.Context, namespace, release, appID string) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	if !r.waitForWorkload(ctx, namespace) {
		r.logger.Warn("workload not ready before setup deadline", zap.String("namespace", namespace))
		return "", false
	}

	pod, err := r.cluster.PodName(ctx, namespace, "app="+release)
	if err != nil || pod == "" {
		r.logger.Warn("no pod found for setup",
			zap.String("namespace", namespace),
			zap.String("release", release),
			zap.Error(err))
		return "", false
	}

	command := append(slices.Clone(r.opts.Command),
		"--profile-name=default",
		"--admin-email="+r.opts.AdminEmail,
		"--app-name="+appID,
		"--overwrite",
	)

	output, err := r.exec.exec(ctx, namespace, pod, command)
	if err != nil {
		r.logger.Error("setup command failed",
			zap.String("namespace", namespace),
			zap.String("pod", pod),
			zap.Error(err))
		return "", false
	}

	credential, ok := extractCredential(output)
	if !ok {
		r.logger.Warn("setup output contained no credential", zap.String("namespace", namespace))
	}
	return credential, ok
}

// waitForWorkload polls the namespace's pod summary with backoff until at
// least one pod runs, bounded by the surrounding context deadline.
func (r *Runner) waitForWorkload(ctx context.Context, namespace string) bool {
	err := wait.ExponentialBackoffWithContext(ctx, r.backoff, func(ctx context.Context) (bool, error) {
		summary, err := r.cluster.WorkloadSummary(ctx, namespace)
		if err != nil {
			return false, nil
		}
		return summary.Running > 0, nil
	})
	return err == nil
}

// extractCredential scans installer output for the first line mentioning a
// password and returns its last whitespace-delimited token.
func extractCredential(output string) (string, bool) {
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(strings.ToLower(line), "password") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		return fields[len(fields)-1], true
	}
	return "", false
}

// spdyExecutor execs a command in a pod over the API server's exec
// subresource.
type spdyExecutor struct {
	clientset kubernetes.Interface
	config    *rest.Config
}

func (e *spdyExecutor) exec(ctx context.Context, namespace, pod string, command []string) (string, error) {
	req := e.clientset.CoreV1().RESTClient().Post().
		Resource("pods").
		Name(pod).
		Namespace(namespace).
		SubResource("exec").
		VersionedParams(&corev1.PodExecOptions{
			Command: command,
			Stdout:  true,
			Stderr:  true,
		}, scheme.ParameterCodec)

	exec, err := remotecommand.NewSPDYExecutor(e.config, "POST", req.URL())
	if err != nil {
		return "", fmt.Errorf("failed to create executor: %w", err)
	}

	var stdout, stderr bytes.Buffer
	if err := exec.StreamWithContext(ctx, remotecommand.StreamOptions{
		Stdout: &stdout,
		Stderr: &stderr,
	}); err != nil {
		return stdout.String(), fmt.Errorf("exec failed: %w: %s", err, stderr.String())
	}
	return stdout.String(), nil
}
