package embedded

import (
	"context"
	"embed"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hodei/orchestrator/pkg/log"
)

//go:embed binaries/*
var binaries embed.FS

const (
	// DefaultDataDir is where Hodei stores extracted binaries and data
	DefaultDataDir = "/var/lib/hodei"

	// ContainerdSocketPath is the socket path for embedded containerd
	ContainerdSocketPath = "/run/hodei-containerd/containerd.sock"

	// ContainerdConfigPath is the config file path
	ContainerdConfigPath = "/etc/hodei-containerd/config.toml"
)

// ContainerdManager manages the embedded containerd daemon that backs the
// ContainerDaemon provider adapter when no external containerd is
// available, the same single-binary bootstrap Hodei uses for its own
// embedded runtime.
type ContainerdManager struct {
	dataDir     string
	socketPath  string
	configPath  string
	binaryPath  string
	cmd         *exec.Cmd
	useExternal bool
	logger      zerolog.Logger
}

// NewContainerdManager creates a new containerd manager.
func NewContainerdManager(dataDir string, useExternal bool) (*ContainerdManager, error) {
	if dataDir == "" {
		dataDir = DefaultDataDir
	}

	return &ContainerdManager{
		dataDir:     dataDir,
		socketPath:  ContainerdSocketPath,
		configPath:  ContainerdConfigPath,
		useExternal: useExternal,
		logger:      log.WithComponent("embedded-containerd"),
	}, nil
}

// Start starts the embedded containerd daemon.
func (cm *ContainerdManager) Start(ctx context.Context) error {
	if cm.useExternal {
		cm.logger.Info().Msg("using external containerd, skipping embedded start")
		return nil
	}

	if err := cm.extractBinary(); err != nil {
		return fmt.Errorf("failed to extract containerd binary: %w", err)
	}

	if err := cm.createConfig(); err != nil {
		return fmt.Errorf("failed to create containerd config: %w", err)
	}

	socketDir := filepath.Dir(cm.socketPath)
	if err := os.MkdirAll(socketDir, 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	cm.logger.Info().Str("socket", cm.socketPath).Msg("starting embedded containerd")

	cm.cmd = exec.CommandContext(ctx, cm.binaryPath,
		"--config", cm.configPath,
		"--address", cm.socketPath,
		"--root", filepath.Join(cm.dataDir, "containerd"),
		"--state", filepath.Join(cm.dataDir, "containerd-state"),
	)

	cm.cmd.Stdout = &logWriter{logger: cm.logger, level: zerolog.InfoLevel}
	cm.cmd.Stderr = &logWriter{logger: cm.logger, level: zerolog.ErrorLevel}

	if err := cm.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start containerd: %w", err)
	}

	if err := cm.waitForReady(ctx, 30*time.Second); err != nil {
		cm.Stop()
		return fmt.Errorf("containerd failed to become ready: %w", err)
	}

	cm.logger.Info().Msg("embedded containerd started successfully")

	go cm.monitor(ctx)

	return nil
}

// Stop stops the embedded containerd daemon.
func (cm *ContainerdManager) Stop() error {
	if cm.useExternal || cm.cmd == nil || cm.cmd.Process == nil {
		return nil
	}

	cm.logger.Info().Msg("stopping embedded containerd")

	if err := cm.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		cm.logger.Error().Err(err).Msg("failed to send SIGTERM")
	}

	done := make(chan error, 1)
	go func() {
		done <- cm.cmd.Wait()
	}()

	select {
	case <-time.After(10 * time.Second):
		cm.logger.Warn().Msg("containerd did not stop gracefully, force killing")
		if err := cm.cmd.Process.Kill(); err != nil {
			return fmt.Errorf("failed to kill containerd: %w", err)
		}
		<-done
	case err := <-done:
		if err != nil && err.Error() != "signal: terminated" {
			cm.logger.Error().Err(err).Msg("containerd exited with error")
		}
	}

	cm.logger.Info().Msg("embedded containerd stopped")
	return nil
}

// GetSocketPath returns the containerd socket path.
func (cm *ContainerdManager) GetSocketPath() string {
	if cm.useExternal {
		return "/run/containerd/containerd.sock"
	}
	return cm.socketPath
}

// extractBinary extracts the containerd binary from the embedded FS.
func (cm *ContainerdManager) extractBinary() error {
	binaryName := fmt.Sprintf("containerd-%s-%s", runtime.GOOS, runtime.GOARCH)
	embeddedPath := fmt.Sprintf("binaries/%s", binaryName)

	binDir := filepath.Join(cm.dataDir, "bin")
	cm.binaryPath = filepath.Join(binDir, "containerd")

	if info, err := os.Stat(cm.binaryPath); err == nil {
		if time.Since(info.ModTime()) < 24*time.Hour {
			cm.logger.Info().Msg("using existing containerd binary")
			return nil
		}
	}

	cm.logger.Info().Msg("extracting containerd binary")

	if err := os.MkdirAll(binDir, 0755); err != nil {
		return fmt.Errorf("failed to create bin directory: %w", err)
	}

	data, err := binaries.ReadFile(embeddedPath)
	if err != nil {
		return fmt.Errorf("failed to read embedded binary %s: %w (this binary may not have containerd bundled - run 'make build' to bundle it)", embeddedPath, err)
	}

	if err := os.WriteFile(cm.binaryPath, data, 0755); err != nil {
		return fmt.Errorf("failed to write binary: %w", err)
	}

	cm.logger.Info().Str("path", cm.binaryPath).Msg("extracted containerd binary")
	return nil
}

// createConfig creates a minimal containerd config.
func (cm *ContainerdManager) createConfig() error {
	configDir := filepath.Dir(cm.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	config := `version = 2

[plugins]
  [plugins."io.containerd.grpc.v1.cri"]
    sandbox_image = "registry.k8s.io/pause:3.9"

    [plugins."io.containerd.grpc.v1.cri".containerd]
      snapshotter = "overlayfs"

      [plugins."io.containerd.grpc.v1.cri".containerd.runtimes]
        [plugins."io.containerd.grpc.v1.cri".containerd.runtimes.runc]
          runtime_type = "io.containerd.runc.v2"

          [plugins."io.containerd.grpc.v1.cri".containerd.runtimes.runc.options]
            SystemdCgroup = true

[plugins."io.containerd.grpc.v1.cri".registry]
  [plugins."io.containerd.grpc.v1.cri".registry.mirrors]
    [plugins."io.containerd.grpc.v1.cri".registry.mirrors."docker.io"]
      endpoint = ["https://registry-1.docker.io"]
`

	if err := os.WriteFile(cm.configPath, []byte(config), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// waitForReady waits for containerd to be ready.
func (cm *ContainerdManager) waitForReady(ctx context.Context, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for containerd to be ready")
		case <-ticker.C:
			if _, err := os.Stat(cm.socketPath); err == nil {
				return nil
			}
		}
	}
}

// monitor watches the containerd process and logs if it crashes.
func (cm *ContainerdManager) monitor(ctx context.Context) {
	if cm.cmd == nil || cm.cmd.Process == nil {
		return
	}

	err := cm.cmd.Wait()

	select {
	case <-ctx.Done():
		cm.logger.Info().Msg("containerd monitor exiting (context cancelled)")
		return
	default:
	}

	if err != nil {
		cm.logger.Error().Err(err).Msg("containerd process exited unexpectedly")
	} else {
		cm.logger.Warn().Msg("containerd process exited unexpectedly with no error")
	}
}

// logWriter adapts containerd's stdout/stderr to Hodei's component logger.
type logWriter struct {
	logger zerolog.Logger
	level  zerolog.Level
}

func (lw *logWriter) Write(p []byte) (n int, err error) {
	lw.logger.WithLevel(lw.level).Msg(string(p))
	return len(p), nil
}

// EnsureContainerd starts (or connects to, if useExternal) the containerd
// daemon the ContainerDaemon provider adapter dials.
func EnsureContainerd(ctx context.Context, dataDir string, useExternal bool) (*ContainerdManager, error) {
	manager, err := NewContainerdManager(dataDir, useExternal)
	if err != nil {
		return nil, err
	}

	if err := manager.Start(ctx); err != nil {
		return nil, err
	}

	return manager, nil
}
