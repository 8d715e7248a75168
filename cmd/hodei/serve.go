package main

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/hodei/orchestrator/pkg/config"
	"github.com/hodei/orchestrator/pkg/domain"
	"github.com/hodei/orchestrator/pkg/embedded"
	"github.com/hodei/orchestrator/pkg/engine"
	"github.com/hodei/orchestrator/pkg/eventbus"
	"github.com/hodei/orchestrator/pkg/jobservice"
	"github.com/hodei/orchestrator/pkg/log"
	"github.com/hodei/orchestrator/pkg/metrics"
	"github.com/hodei/orchestrator/pkg/placement"
	"github.com/hodei/orchestrator/pkg/pool"
	"github.com/hodei/orchestrator/pkg/provider"
	"github.com/hodei/orchestrator/pkg/provider/clusterprovider"
	"github.com/hodei/orchestrator/pkg/provider/containerdprovider"
	"github.com/hodei/orchestrator/pkg/quota"
	"github.com/hodei/orchestrator/pkg/quota/sweep"
	"github.com/hodei/orchestrator/pkg/reconciler"
	"github.com/hodei/orchestrator/pkg/scheduler"
	"github.com/hodei/orchestrator/pkg/security"
	"github.com/hodei/orchestrator/pkg/storage"
	"github.com/hodei/orchestrator/pkg/storage/bolt"
	"github.com/hodei/orchestrator/pkg/storage/memory"
	"github.com/hodei/orchestrator/pkg/storage/postgres"
	"github.com/hodei/orchestrator/pkg/templateservice"
	"github.com/hodei/orchestrator/pkg/wireproto"
	"github.com/hodei/orchestrator/pkg/workermanager"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Hodei orchestrator daemon",
	Long: `Start the orchestrator process: wires storage, the scheduler, the
quota engine, the configured provider adapter, the worker wire protocol and
the execution engine into one running daemon, a single-binary bootstrap
that constructs the whole object graph and blocks until shutdown.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().Bool("enable-pprof", false, "expose pprof endpoints alongside /metrics")
}

// closer is anything torn down on shutdown, in reverse order of construction.
type closer struct {
	name string
	fn   func() error
}

func runServe(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg = config.ApplyFlags(cfg, cmd)

	log.Init(log.Config{Level: log.Level(cfg.Log.Level), JSONOutput: cfg.Log.JSON})
	logger := log.WithComponent("serve")

	var closers []closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].fn(); err != nil {
				logger.Warn().Err(err).Str("component", closers[i].name).Msg("shutdown step failed")
			}
		}
	}()

	stores, err := openStorage(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	if c, ok := stores.closer(); ok {
		closers = append(closers, closer{"storage", c})
	}

	cache, err := openCache(cfg.Cache)
	if err != nil {
		return fmt.Errorf("open utilization cache: %w", err)
	}

	prov, providerCloser, err := buildProvider(cfg.Infrastructure)
	if err != nil {
		return fmt.Errorf("build provider adapter: %w", err)
	}
	if providerCloser != nil {
		closers = append(closers, closer{"provider", providerCloser})
	}
	breaker := provider.WrapWithBreaker(string(cfg.Infrastructure.Kind), prov)

	monitor := pool.NewWorkerMonitor(stores.workers)
	monitors := map[domain.ProviderKind]pool.ResourceMonitor{
		domain.ProviderContainerDaemon: monitor,
		domain.ProviderClusterAPI:      monitor,
		domain.ProviderCloudVendors:    monitor,
		domain.ProviderLocal:           monitor,
	}
	poolSvc := pool.NewService(pool.NewStorageRegistry(stores.pools), monitors, cache)

	quotas := quota.NewManager()

	rr := placement.NewRoundRobin()
	sched := scheduler.New(poolSvc, quotas.Lookup, placement.Registry(rr))

	wm := workermanager.New(cfg.Worker.HeartbeatTimeout(), nil)
	go wm.ReapLoop(context.Background(), cfg.Worker.HeartbeatTimeout()/3)

	waiter := engine.NewRegistrationWaiter()
	providerKind := cfg.Infrastructure.Kind
	factories := map[domain.ProviderKind]engine.WorkerFactory{
		domain.ProviderLocal: engine.NewLocalFactory(stores.workers),
	}
	switch providerKind {
	case config.InfrastructureContainerDaemon:
		factories[domain.ProviderContainerDaemon] = engine.NewEphemeralFactory(breaker, waiter, engine.DefaultRegistrationTimeout)
	case config.InfrastructureClusterAPI:
		factories[domain.ProviderClusterAPI] = engine.NewEphemeralFactory(breaker, waiter, engine.DefaultRegistrationTimeout)
		factories[domain.ProviderCloudVendors] = engine.NewEphemeralFactory(breaker, waiter, engine.DefaultRegistrationTimeout)
	}

	bus := eventbus.New()
	eng := engine.New(stores.jobs, stores.workers, poolSvc, sched, quotas, wm, waiter,
		factories, bus, engine.Config{
			CancelGracePeriod:   cfg.Execution.CancelGracePeriod(),
			RegistrationTimeout: engine.DefaultRegistrationTimeout,
			LogBufferBytes:      cfg.Logs.PerExecutionBufferBytes,
		})

	jobSvc := jobservice.New(stores.jobs, eng)
	tplSvc := templateservice.New(stores.templates)
	_ = jobSvc
	_ = tplSvc

	thresholds := quota.Thresholds{WarnAtPct: 80}
	sweeper := sweep.New(quotas, thresholds, func(poolID string, alert quota.Alert) {
		logger.Warn().Str("pool_id", poolID).Str("resource", alert.Resource).
			Str("severity", string(alert.Severity)).Str("action", string(alert.Action)).
			Msg(alert.Message)
	})
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	if err := sweeper.Start(sweepCtx, sweep.DefaultSchedule); err != nil {
		sweepCancel()
		return fmt.Errorf("start quota sweep: %w", err)
	}
	closers = append(closers, closer{"quota-sweep", func() error { sweeper.Stop(); sweepCancel(); return nil }})

	recon := reconciler.NewReconciler(stores.artifacts)
	recon.Start()
	closers = append(closers, closer{"reconciler", func() error { recon.Stop(); return nil }})

	collector := metrics.NewCollector(stores.jobs, stores.pools, stores.workers, poolSvc)
	collector.Start()
	closers = append(closers, closer{"metrics-collector", func() error { collector.Stop(); return nil }})

	metrics.SetVersion(Version)
	metrics.RegisterComponent("storage", true, string(cfg.Storage.Backend))
	metrics.RegisterComponent("scheduler", true, "ready")
	metrics.RegisterComponent("grpc", false, "starting")

	pprofEnabled, _ := cmd.Flags().GetBool("enable-pprof")
	httpSrv := startMetricsServer(cfg.Server.MetricsListenAddr, pprofEnabled, logger)
	closers = append(closers, closer{"metrics-http", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(ctx)
	}})

	grpcServer, grpcCloser, err := buildGRPCServer(cfg.Server, wm)
	if err != nil {
		return fmt.Errorf("build grpc server: %w", err)
	}
	closers = append(closers, closer{"grpc", grpcCloser})

	lis, err := net.Listen("tcp", cfg.Server.GRPCListenAddr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.GRPCListenAddr, err)
	}
	errCh := make(chan error, 1)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()
	metrics.UpdateComponent("grpc", true, "ready")

	logger.Info().
		Str("grpc_addr", cfg.Server.GRPCListenAddr).
		Str("metrics_addr", cfg.Server.MetricsListenAddr).
		Str("infrastructure", string(cfg.Infrastructure.Kind)).
		Str("storage", string(cfg.Storage.Backend)).
		Bool("tls", cfg.Server.TLSEnabled).
		Msg("hodei orchestrator started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	select {
	case <-sigCh:
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		logger.Error().Err(err).Msg("grpc server exited")
		return err
	}

	return nil
}

// storageSet bundles every repository implementation behind one backend so
// runServe can wire pool/engine/jobservice/templateservice/reconciler
// without a type switch at every call site.
type storageSet struct {
	jobs      storage.JobRepository
	pools     storage.ResourcePoolRepository
	workers   storage.WorkerRepository
	templates storage.TemplateRepository
	artifacts storage.ArtifactRepository
	close     func() error
}

func (s storageSet) closer() (func() error, bool) {
	if s.close == nil {
		return nil, false
	}
	return s.close, true
}

func openStorage(cfg config.StorageConfig) (storageSet, error) {
	switch cfg.Backend {
	case config.StorageBolt:
		path := cfg.Bolt.Path
		if path == "" {
			path = "./hodei-data/hodei.db"
		}
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return storageSet{}, fmt.Errorf("create bolt data dir: %w", err)
		}
		store, err := bolt.Open(path)
		if err != nil {
			return storageSet{}, fmt.Errorf("open bolt store: %w", err)
		}
		return storageSet{
			jobs: store.Jobs(), pools: store.Pools(), workers: store.Workers(),
			templates: store.Templates(), artifacts: store.Artifacts(), close: store.Close,
		}, nil
	case config.StoragePostgres:
		store, err := postgres.Open(cfg.Postgres.DSN)
		if err != nil {
			return storageSet{}, fmt.Errorf("open postgres store: %w", err)
		}
		return storageSet{
			jobs: store.Jobs(), pools: store.Pools(), workers: store.Workers(),
			templates: store.Templates(), artifacts: store.Artifacts(), close: store.Close,
		}, nil
	case config.StorageMemory, "":
		return storageSet{
			jobs: memory.NewJobs(), pools: memory.NewPools(), workers: memory.NewWorkers(),
			templates: memory.NewTemplates(), artifacts: memory.NewArtifacts(),
		}, nil
	default:
		return storageSet{}, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func openCache(cfg config.CacheConfig) (pool.UtilizationCache, error) {
	switch cfg.Backend {
	case config.CacheRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		return pool.NewRedisCache(client), nil
	case config.CacheMemory, "":
		return pool.NewMemoryCache(), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Backend)
	}
}

// buildProvider selects the provider.Provider adapter for the configured
// infrastructure kind. Local pools never provision through this adapter
// (see engine.LocalFactory), so it's only ever dialed for ephemeral kinds.
func buildProvider(cfg config.InfrastructureConfig) (provider.Provider, func() error, error) {
	switch cfg.Kind {
	case config.InfrastructureContainerDaemon:
		socket := cfg.ContainerDaemon.SocketPath
		var embeddedMgr *embedded.ContainerdManager
		if socket == "" {
			mgr, err := embedded.EnsureContainerd(context.Background(), embedded.DefaultDataDir, false)
			if err != nil {
				return nil, nil, fmt.Errorf("start embedded containerd: %w", err)
			}
			embeddedMgr = mgr
			socket = mgr.GetSocketPath()
		}
		adapter, err := containerdprovider.New(containerdprovider.Config{
			SocketPath:  socket,
			Namespace:   cfg.ContainerDaemon.Namespace,
			WorkerImage: cfg.ContainerDaemon.WorkerImage,
		})
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() error {
			if embeddedMgr != nil {
				return embeddedMgr.Stop()
			}
			return nil
		}
		return adapter, closeFn, nil
	case config.InfrastructureClusterAPI:
		adapter, err := clusterprovider.New(clusterprovider.Config{
			Kubeconfig:  cfg.Cluster.Kubeconfig,
			Context:     cfg.Cluster.Context,
			Namespace:   cfg.Cluster.Namespace,
			WorkerImage: cfg.Cluster.WorkerImage,
		})
		if err != nil {
			return nil, nil, err
		}
		return adapter, nil, nil
	case config.InfrastructureLocal, "":
		return provider.NewLocal(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown infrastructure kind %q", cfg.Kind)
	}
}

func buildGRPCServer(cfg config.ServerConfig, wm *workermanager.Manager) (*grpc.Server, func() error, error) {
	var opts []grpc.ServerOption
	var tlsCloser func() error

	if cfg.TLSEnabled {
		creds, closeFn, err := serverTLSCredentials()
		if err != nil {
			return nil, nil, err
		}
		opts = append(opts, grpc.Creds(creds))
		tlsCloser = closeFn
	}

	srv := grpc.NewServer(opts...)
	wireproto.RegisterWorkerServiceServer(srv, wm)

	return srv, func() error {
		srv.GracefulStop()
		if tlsCloser != nil {
			return tlsCloser()
		}
		return nil
	}, nil
}

// serverTLSCredentials issues (or loads) the orchestrator's own certificate
// from the cluster's self-issued CA and requires client certificates from
// every connecting worker.
func serverTLSCredentials() (credentials.TransportCredentials, func() error, error) {
	store, err := security.NewBoltCAStore(embedded.DefaultDataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("open CA store: %w", err)
	}

	ca := security.NewCertAuthority(store)
	if err := ca.LoadFromStore(); err != nil {
		if err := ca.Initialize(); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("initialize cluster CA: %w", err)
		}
		if err := ca.SaveToStore(); err != nil {
			store.Close()
			return nil, nil, fmt.Errorf("persist cluster CA: %w", err)
		}
	}

	cert, err := ca.IssueNodeCertificate("hodei-orchestrator", "manager", []string{"hodei-orchestrator"}, nil)
	if err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("issue orchestrator certificate: %w", err)
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(certToPEM(ca.GetRootCACert())) {
		store.Close()
		return nil, nil, fmt.Errorf("parse cluster root CA")
	}

	tlsCfg := &tls.Config{
		Certificates: []tls.Certificate{*cert},
		ClientCAs:    pool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS12,
	}
	return credentials.NewTLS(tlsCfg), store.Close, nil
}

func certToPEM(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}

func startMetricsServer(addr string, pprofEnabled bool, logger zerolog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", metrics.HealthHandler())
	mux.HandleFunc("/ready", metrics.ReadyHandler())
	mux.HandleFunc("/live", metrics.LivenessHandler())
	if pprofEnabled {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("metrics server exited")
		}
	}()
	return srv
}
