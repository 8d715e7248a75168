// Package clusterprovider implements provider.Provider against a Kubernetes
// API server, serving both the ClusterAPI and CloudVendors provider kinds
// (CloudVendors just selects a different kubeconfig context/credential
// chain for a managed control plane).
package clusterprovider

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/hodei/orchestrator/pkg/hodeierr"
	"github.com/hodei/orchestrator/pkg/log"
	"github.com/hodei/orchestrator/pkg/provider"
)

// Config is decoded from ResourcePool.ProviderConfig for cluster_api and
// cloud_vendors pools alike.
type Config struct {
	Kubeconfig string `yaml:"kubeconfig"`
	Context string `yaml:"context"`
	Namespace string `yaml:"namespace"`
	WorkerImage string `yaml:"worker_image"`
}

// Adapter provisions workers as single-Pod batch Jobs. clientset is
// kubernetes.Interface rather than the concrete *kubernetes.Clientset so
// tests can swap in client-go's fake clientset.
type Adapter struct {
	clientset kubernetes.Interface
	namespace string
	image string
	logger zerolog.Logger
}

func New(cfg Config) (*Adapter, error) {
	loadingRules := clientcmd.NewDefaultClientConfigLoadingRules()
	if cfg.Kubeconfig != "" {
		loadingRules.ExplicitPath = cfg.Kubeconfig
	}
	overrides := &clientcmd.ConfigOverrides{CurrentContext: cfg.Context}
	restCfg, err := clientcmd.NewNonInteractiveDeferredLoadingClientConfig(loadingRules, overrides).ClientConfig()
	if err != nil {
		return nil, hodeierr.NewProvisioningError(hodeierr.ProvisioningFailed, "load kubeconfig", err)
	}
	clientset, err := kubernetes.NewForConfig(restCfg)
	if err != nil {
		return nil, hodeierr.NewProvisioningError(hodeierr.ProvisioningFailed, "build clientset", err)
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = "default"
	}
	return &Adapter{
		clientset: clientset,
		namespace: ns,
		image: cfg.WorkerImage,
		logger: log.WithComponent("clusterprovider"),
	}, nil
}

func (a *Adapter) Provision(ctx context.Context, req provider.ProvisionRequest) (provider.ProvisionResult, error) {
	name := fmt.Sprintf("hodei-worker-%s", uuid.NewString()[:8])
	backoff := int32(0)
	job := &batchv1.Job{
		ObjectMeta: metav1.ObjectMeta{
			Name: name,
			Namespace: a.namespace,
			Labels: withPoolLabel(req.Labels, req.PoolID),
		},
		Spec: batchv1.JobSpec{
			BackoffLimit: &backoff,
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: withPoolLabel(req.Labels, req.PoolID)},
				Spec: corev1.PodSpec{
					RestartPolicy: corev1.RestartPolicyNever,
					Containers: []corev1.Container{
						{
							Name: "worker",
							Image: a.image,
							Resources: resourceRequirements(req.Capabilities.CPUCores, req.Capabilities.MemoryBytes),
						},
					},
				},
			},
		},
	}

	created, err := a.clientset.BatchV1().Jobs(a.namespace).Create(ctx, job, metav1.CreateOptions{})
	if err != nil {
		return provider.ProvisionResult{}, hodeierr.NewProvisioningError(hodeierr.ProvisioningFailed, "create job", err)
	}
	return provider.ProvisionResult{WorkerID: created.Name, InstanceRef: created.Name}, nil
}

func (a *Adapter) Terminate(ctx context.Context, instanceRef string) error {
	policy := metav1.DeletePropagationForeground
	err := a.clientset.BatchV1().Jobs(a.namespace).Delete(ctx, instanceRef, metav1.DeleteOptions{PropagationPolicy: &policy})
	if apierrors.IsNotFound(err) {
		return hodeierr.NewProvisioningError(hodeierr.ProvisioningNotFound, "job not found", err)
	}
	if err != nil {
		return hodeierr.NewProvisioningError(hodeierr.ProvisioningFailed, "delete job", err)
	}
	return nil
}

func (a *Adapter) Status(ctx context.Context, instanceRef string) (provider.Status, error) {
	job, err := a.clientset.BatchV1().Jobs(a.namespace).Get(ctx, instanceRef, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		return provider.Status{}, hodeierr.NewProvisioningError(hodeierr.ProvisioningNotFound, "job not found", err)
	}
	if err != nil {
		return provider.Status{}, hodeierr.NewProvisioningError(hodeierr.ProvisioningFailed, "get job", err)
	}
	running := job.Status.Active > 0
	return provider.Status{InstanceRef: instanceRef, Running: running, Message: jobPhase(job)}, nil
}

func (a *Adapter) List(ctx context.Context, poolID string) ([]provider.Status, error) {
	list, err := a.clientset.BatchV1().Jobs(a.namespace).List(ctx, metav1.ListOptions{
		LabelSelector: "hodei.io/pool-id=" + poolID,
	})
	if err != nil {
		return nil, hodeierr.NewProvisioningError(hodeierr.ProvisioningFailed, "list jobs", err)
	}
	out := make([]provider.Status, 0, len(list.Items))
	for _, j := range list.Items {
		out = append(out, provider.Status{
			InstanceRef: j.Name,
			Running: j.Status.Active > 0,
			Message: jobPhase(&j),
		})
	}
	return out, nil
}

// Scale provisions/terminates plain Jobs to match targetCount, since a batch
// Job has no native replica count the way a Deployment does.
func (a *Adapter) Scale(ctx context.Context, poolID string, targetCount int) error {
	current, err := a.List(ctx, poolID)
	if err != nil {
		return err
	}
	diff := targetCount - len(current)
	if diff <= 0 {
		for i := 0; i < -diff && i < len(current); i++ {
			if err := a.Terminate(ctx, current[i].InstanceRef); err != nil {
				return err
			}
		}
		return nil
	}
	for i := 0; i < diff; i++ {
		if _, err := a.Provision(ctx, provider.ProvisionRequest{PoolID: poolID}); err != nil {
			return err
		}
	}
	return nil
}

func (a *Adapter) AvailableInstanceTypes(ctx context.Context) ([]provider.InstanceType, error) {
	nodes, err := a.clientset.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, hodeierr.NewProvisioningError(hodeierr.ProvisioningFailed, "list nodes", err)
	}
	seen := map[string]provider.InstanceType{}
	for _, n := range nodes.Items {
		cpu := n.Status.Capacity.Cpu().AsApproximateFloat64()
		mem := n.Status.Capacity.Memory().Value()
		key := fmt.Sprintf("%.0fcpu-%dmem", cpu, mem)
		seen[key] = provider.InstanceType{Name: key, CPUCores: cpu, MemoryBytes: mem}
	}
	out := make([]provider.InstanceType, 0, len(seen))
	for _, it := range seen {
		out = append(out, it)
	}
	return out, nil
}

func withPoolLabel(labels map[string]string, poolID string) map[string]string {
	out := map[string]string{"hodei.io/pool-id": poolID}
	for k, v := range labels {
		out[k] = v
	}
	return out
}

func resourceRequirements(cpuCores float64, memBytes int64) corev1.ResourceRequirements {
	if cpuCores <= 0 && memBytes <= 0 {
		return corev1.ResourceRequirements{}
	}
	list := corev1.ResourceList{}
	if cpuCores > 0 {
		list[corev1.ResourceCPU] = *resource.NewMilliQuantity(int64(cpuCores*1000), resource.DecimalSI)
	}
	if memBytes > 0 {
		list[corev1.ResourceMemory] = *resource.NewQuantity(memBytes, resource.BinarySI)
	}
	return corev1.ResourceRequirements{Requests: list, Limits: list}
}

func jobPhase(job *batchv1.Job) string {
	switch {
	case job.Status.Succeeded > 0:
		return "succeeded"
	case job.Status.Failed > 0:
		return "failed"
	case job.Status.Active > 0:
		return "active"
	default:
		return "pending"
	}
}
