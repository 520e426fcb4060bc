// Package kubernetes hands out sandbox agents backed by agent-sandbox
// SandboxClaim resources. Every run gets a fresh pod that is discarded when
// the run is released.
package kubernetes

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	sandboxv1alpha1 "sigs.k8s.io/agent-sandbox/api/v1alpha1"
	extensionsv1alpha1 "sigs.k8s.io/agent-sandbox/extensions/api/v1alpha1"

	"github.com/rhuss/codexec/pkg/runner"
)

var _ runner.Acquirer = (*ClaimAcquirer)(nil)

// Labels put on every claim so stray claims can be found and collected.
const (
	LabelManagedBy = "app.kubernetes.io/managed-by"
	LabelLanguage  = "codexec.dev/language"
)

// Config configures a ClaimAcquirer.
type Config struct {
	// Template names the SandboxTemplate the claims reference. The
	// template's pod must run `codexec sandbox-agent`.
	Template  string
	Namespace string

	// ReadyTimeout bounds the wait for a claimed sandbox to become ready.
	ReadyTimeout time.Duration

	// Port is the agent's listen port inside the pod.
	Port int

	PollInterval time.Duration
}

// ClaimAcquirer creates one SandboxClaim per acquisition, waits for the
// matching Sandbox to report Ready and returns the agent URL behind its
// service. Release deletes the claim.
type ClaimAcquirer struct {
	client client.Client
	cfg    Config
}

// NewClaimAcquirer creates a ClaimAcquirer.
func NewClaimAcquirer(c client.Client, cfg Config) *ClaimAcquirer {
	if cfg.Namespace == "" {
		cfg.Namespace = "default"
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 60 * time.Second
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	return &ClaimAcquirer{client: c, cfg: cfg}
}

// NewScheme returns a runtime.Scheme with the agent-sandbox types registered.
func NewScheme() (*runtime.Scheme, error) {
	scheme := runtime.NewScheme()
	if err := sandboxv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("register sandbox types: %w", err)
	}
	if err := extensionsv1alpha1.AddToScheme(scheme); err != nil {
		return nil, fmt.Errorf("register extensions types: %w", err)
	}
	return scheme, nil
}

// Acquire implements runner.Acquirer.
func (a *ClaimAcquirer) Acquire(ctx context.Context) (string, func(), error) {
	name := generateClaimNameFn()

	claim := &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: a.cfg.Namespace,
			Labels:    map[string]string{LabelManagedBy: "codexec"},
		},
		Spec: extensionsv1alpha1.SandboxClaimSpec{
			TemplateRef: extensionsv1alpha1.SandboxTemplateRef{Name: a.cfg.Template},
		},
	}
	if err := a.client.Create(ctx, claim); err != nil {
		return "", nil, fmt.Errorf("create SandboxClaim %q: %w", name, err)
	}
	log := slog.With("claim", name, "namespace", a.cfg.Namespace)
	log.Debug("created SandboxClaim", "template", a.cfg.Template)

	fqdn, err := a.awaitSandbox(ctx, name)
	if err != nil {
		a.release(log, name)
		return "", nil, err
	}

	url := fmt.Sprintf("http://%s:%d", fqdn, a.cfg.Port)
	log.Debug("sandbox ready", "url", url)
	return url, func() { a.release(log, name) }, nil
}

// awaitSandbox polls the Sandbox named after the claim until it is Ready
// and has a service FQDN.
func (a *ClaimAcquirer) awaitSandbox(ctx context.Context, name string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.ReadyTimeout)
	defer cancel()

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	key := types.NamespacedName{Name: name, Namespace: a.cfg.Namespace}
	for {
		select {
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded {
				return "", fmt.Errorf("sandbox %q not ready after %s", name, a.cfg.ReadyTimeout)
			}
			return "", fmt.Errorf("waiting for sandbox %q: %w", name, ctx.Err())
		case <-ticker.C:
		}

		sandbox := &sandboxv1alpha1.Sandbox{}
		if err := a.client.Get(ctx, key, sandbox); err != nil {
			// The controller has not created it yet.
			continue
		}
		if isReady(sandbox) && sandbox.Status.ServiceFQDN != "" {
			return sandbox.Status.ServiceFQDN, nil
		}
	}
}

func isReady(sandbox *sandboxv1alpha1.Sandbox) bool {
	for _, c := range sandbox.Status.Conditions {
		if c.Type == string(sandboxv1alpha1.SandboxConditionReady) {
			return c.Status == metav1.ConditionTrue
		}
	}
	return false
}

// release deletes the claim. It runs on a fresh context because the
// request context is usually gone by then.
func (a *ClaimAcquirer) release(log *slog.Logger, name string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	claim := &extensionsv1alpha1.SandboxClaim{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: a.cfg.Namespace},
	}
	if err := a.client.Delete(ctx, claim); err != nil {
		log.Warn("failed to delete SandboxClaim", "error", err)
		return
	}
	log.Debug("deleted SandboxClaim")
}

var generateClaimNameFn = func() string {
	return fmt.Sprintf("codexec-%d", time.Now().UnixNano())
}
