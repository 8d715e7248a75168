// Package containerdprovider implements the ContainerDaemon provider.Provider
// adapter: workers are short-lived containerd tasks, using the same
// embedded-containerd bootstrap pattern as Hodei's other single-binary
// deployment mode.
package containerdprovider

import (
	"context"
	"fmt"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/cio"
	"github.com/containerd/containerd/namespaces"
	"github.com/containerd/containerd/oci"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hodei/orchestrator/pkg/hodeierr"
	"github.com/hodei/orchestrator/pkg/log"
	"github.com/hodei/orchestrator/pkg/provider"
)

const defaultNamespace = "hodei"

// Config is decoded from ResourcePool.ProviderConfig for container_daemon
// pools.
type Config struct {
	SocketPath  string `yaml:"socket_path"`
	Namespace   string `yaml:"namespace"`
	WorkerImage string `yaml:"worker_image"`
}

// Adapter provisions workers as containerd tasks running the worker-agent
// image. Workers are ephemeral: one task per worker, torn down on Terminate.
type Adapter struct {
	client    *containerd.Client
	namespace string
	image     string
	logger    zerolog.Logger
}

func New(cfg Config) (*Adapter, error) {
	socket := cfg.SocketPath
	if socket == "" {
		socket = "/run/containerd/containerd.sock"
	}
	ns := cfg.Namespace
	if ns == "" {
		ns = defaultNamespace
	}
	client, err := containerd.New(socket)
	if err != nil {
		return nil, hodeierr.NewProvisioningError(hodeierr.ProvisioningFailed, "connect to containerd", err)
	}
	return &Adapter{
		client:    client,
		namespace: ns,
		image:     cfg.WorkerImage,
		logger:    log.WithComponent("containerdprovider"),
	}, nil
}

func (a *Adapter) ctx(ctx context.Context) context.Context {
	return namespaces.WithNamespace(ctx, a.namespace)
}

func (a *Adapter) Provision(ctx context.Context, req provider.ProvisionRequest) (provider.ProvisionResult, error) {
	ctx = a.ctx(ctx)
	image, err := a.client.GetImage(ctx, a.image)
	if err != nil {
		image, err = a.client.Pull(ctx, a.image, containerd.WithPullUnpack)
		if err != nil {
			return provider.ProvisionResult{}, hodeierr.NewProvisioningError(hodeierr.ProvisioningFailed, "pull worker image", err)
		}
	}

	id := fmt.Sprintf("hodei-worker-%s", uuid.NewString())
	limits := cpuMemLimits(req.Capabilities.CPUCores, req.Capabilities.MemoryBytes)
	container, err := a.client.NewContainer(ctx, id,
		containerd.WithNewSnapshot(id+"-snapshot", image),
		containerd.WithNewSpec(
			oci.WithImageConfig(image),
			oci.WithCPUCFS(limits.quota, limits.period),
			oci.WithMemoryLimit(uint64(req.Capabilities.MemoryBytes)),
		),
	)
	if err != nil {
		return provider.ProvisionResult{}, hodeierr.NewProvisioningError(hodeierr.ProvisioningFailed, "create container", err)
	}

	task, err := container.NewTask(ctx, cio.NewCreator(cio.WithStdio))
	if err != nil {
		_ = container.Delete(ctx)
		return provider.ProvisionResult{}, hodeierr.NewProvisioningError(hodeierr.ProvisioningFailed, "create task", err)
	}
	if err := task.Start(ctx); err != nil {
		_ = task.Delete(ctx)
		_ = container.Delete(ctx)
		return provider.ProvisionResult{}, hodeierr.NewProvisioningError(hodeierr.ProvisioningFailed, "start task", err)
	}

	return provider.ProvisionResult{WorkerID: id, InstanceRef: id}, nil
}

func (a *Adapter) Terminate(ctx context.Context, instanceRef string) error {
	ctx = a.ctx(ctx)
	container, err := a.client.LoadContainer(ctx, instanceRef)
	if err != nil {
		return hodeierr.NewProvisioningError(hodeierr.ProvisioningNotFound, "load container", err)
	}
	task, err := container.Task(ctx, nil)
	if err == nil {
		_, _ = task.Delete(ctx, containerd.WithProcessKill)
	}
	if err := container.Delete(ctx, containerd.WithSnapshotCleanup); err != nil {
		return hodeierr.NewProvisioningError(hodeierr.ProvisioningFailed, "delete container", err)
	}
	return nil
}

func (a *Adapter) Status(ctx context.Context, instanceRef string) (provider.Status, error) {
	ctx = a.ctx(ctx)
	container, err := a.client.LoadContainer(ctx, instanceRef)
	if err != nil {
		return provider.Status{}, hodeierr.NewProvisioningError(hodeierr.ProvisioningNotFound, "load container", err)
	}
	task, err := container.Task(ctx, nil)
	if err != nil {
		return provider.Status{InstanceRef: instanceRef, Running: false}, nil
	}
	st, err := task.Status(ctx)
	if err != nil {
		return provider.Status{}, hodeierr.NewProvisioningError(hodeierr.ProvisioningFailed, "task status", err)
	}
	return provider.Status{
		InstanceRef: instanceRef,
		Running:     st.Status == containerd.Running,
		Message:     string(st.Status),
	}, nil
}

func (a *Adapter) List(ctx context.Context, poolID string) ([]provider.Status, error) {
	ctx = a.ctx(ctx)
	containers, err := a.client.Containers(ctx)
	if err != nil {
		return nil, hodeierr.NewProvisioningError(hodeierr.ProvisioningFailed, "list containers", err)
	}
	var out []provider.Status
	for _, c := range containers {
		s, err := a.Status(ctx, c.ID())
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Scale is a no-op for ContainerDaemon: pool size is driven entirely by
// Provision/Terminate calls from the pool's worker lifecycle, not a batch
// target (containerd has no native replica-set concept).
func (a *Adapter) Scale(ctx context.Context, poolID string, targetCount int) error {
	return nil
}

func (a *Adapter) AvailableInstanceTypes(ctx context.Context) ([]provider.InstanceType, error) {
	return []provider.InstanceType{
		{Name: "small", CPUCores: 1, MemoryBytes: 1 << 30},
		{Name: "medium", CPUCores: 2, MemoryBytes: 4 << 30},
		{Name: "large", CPUCores: 4, MemoryBytes: 8 << 30},
	}, nil
}

type cfsLimits struct {
	quota  int64
	period uint64
}

func cpuMemLimits(cpuCores float64, _ int64) cfsLimits {
	const defaultPeriod = uint64(100000)
	if cpuCores <= 0 {
		return cfsLimits{quota: -1, period: defaultPeriod}
	}
	return cfsLimits{quota: int64(cpuCores * float64(defaultPeriod)), period: defaultPeriod}
}
