package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/lextrail/internal/alert"
	"github.com/dropDatabas3/lextrail/internal/audit"
	"github.com/dropDatabas3/lextrail/internal/cache"
	"github.com/dropDatabas3/lextrail/internal/cluster"
	"github.com/dropDatabas3/lextrail/internal/config"
	httpapi "github.com/dropDatabas3/lextrail/internal/http"
	"github.com/dropDatabas3/lextrail/internal/metrics"
	"github.com/dropDatabas3/lextrail/internal/observability/logger"
	"github.com/dropDatabas3/lextrail/internal/store"
	"github.com/dropDatabas3/lextrail/internal/store/partition"
)

// Seteados vía -ldflags en el build.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	var cfgPath string

	root := &cobra.Command{
		Use:   "lextrail",
		Short: "Audit trail partition-tolerant para registros de decisiones legales",
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", os.Getenv("LEXTRAIL_CONFIG"), "Ruta al config.yaml (env LEXTRAIL_CONFIG)")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Levanta el servicio HTTP (y el nodo de cluster si está habilitado)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cfgPath)
		},
	}

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Verifica offline la integridad de la cadena de hashes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(cfgPath)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Imprime versión y commit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("lextrail %s (%s)\n", version, commit)
		},
	}

	root.AddCommand(serveCmd, verifyCmd, versionCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func runServe(cfgPath string) error {
	// .env es opcional, solo para dev local
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.App.LogLevel,
		ServiceName: "lextrail",
		Version:     version,
	})
	defer func() { _ = logger.Sync() }()
	log := logger.Named("main")

	if err := metrics.Register(nil); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	hasher, err := audit.NewHasher(cfg.Storage.HashAlgo)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts, err := buildStoreOptions(cfg)
	if err != nil {
		return err
	}

	// El mailer de conflictos se engancha al hook del engine antes de abrirlo
	mailer := alert.NewMailer(alert.SMTPConfig{
		Host:               cfg.Alert.SMTP.Host,
		Port:               cfg.Alert.SMTP.Port,
		From:               cfg.Alert.SMTP.From,
		To:                 cfg.Alert.SMTP.To,
		Username:           cfg.Alert.SMTP.Username,
		Password:           cfg.Alert.SMTP.Password,
		TLSMode:            cfg.Alert.SMTP.TLSMode,
		InsecureSkipVerify: cfg.Alert.SMTP.InsecureSkipVerify,
	})
	if mailer != nil {
		opts.Partition.OnConflict = mailer.OnConflict
	}

	backend, err := store.Open(ctx, opts)
	if err != nil {
		return err
	}

	handlers := &httpapi.Handlers{
		Storage: backend.Storage,
		Engine:  backend.Engine,
		Hasher:  hasher,
	}

	g, ctx := errgroup.WithContext(ctx)

	if cfg.Cluster.Enabled {
		node, err := cluster.NewNode(cluster.NodeOptions{
			NodeID:             cfg.Partition.NodeID,
			RaftAddr:           cfg.Cluster.RaftAddr,
			RaftDir:            cfg.Cluster.RaftDir,
			FSM:                cluster.NewFSM(backend.Engine),
			Peers:              cfg.Cluster.Peers,
			BootstrapPreferred: cfg.Cluster.BootstrapPreferred,
			DisableBootstrap:   cfg.Cluster.DisableBootstrap,
			RaftTLSEnable:      cfg.Cluster.TLS.Enable,
			RaftTLSCertFile:    cfg.Cluster.TLS.CertFile,
			RaftTLSKeyFile:     cfg.Cluster.TLS.KeyFile,
			RaftTLSCAFile:      cfg.Cluster.TLS.CAFile,
			RaftTLSServerName:  cfg.Cluster.TLS.ServerName,
		})
		if err != nil {
			return err
		}

		replicated := cluster.NewReplicated(backend.Engine, node)
		handlers.Storage = replicated
		handlers.Resolver = replicated

		watcher := cluster.NewWatcher(node, backend.Engine, cluster.WatcherOptions{
			Interval:  config.Duration(cfg.Cluster.Watch.Interval),
			Threshold: cfg.Cluster.Watch.Threshold,
		})
		g.Go(func() error {
			err := watcher.Run(ctx)
			if err == context.Canceled {
				return nil
			}
			return err
		})
	}

	srv := httpapi.NewServer(httpapi.ServerConfig{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  config.Duration(cfg.Server.ReadTimeout),
		WriteTimeout: config.Duration(cfg.Server.WriteTimeout),
	}, httpapi.NewRouter(handlers))

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(),
			config.Duration(cfg.Server.ShutdownTimeout))
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	if cerr := handlers.Storage.Close(); cerr != nil {
		log.Warn("storage close failed", logger.Err(cerr))
	}
	log.Info("bye")
	return err
}

func runVerify(cfgPath string) error {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	logger.Init(logger.Config{Env: cfg.App.Env, Level: "warn", ServiceName: "lextrail"})
	defer func() { _ = logger.Sync() }()

	hasher, err := audit.NewHasher(cfg.Storage.HashAlgo)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	opts, err := buildStoreOptions(cfg)
	if err != nil {
		return err
	}
	opts.Cache = nil // verificación directa contra el backend

	backend, err := store.Open(ctx, opts)
	if err != nil {
		return err
	}
	defer backend.Storage.Close()

	records, err := backend.Storage.GetAll(ctx)
	if err != nil {
		return err
	}
	if err := audit.VerifyChain(records, hasher); err != nil {
		return fmt.Errorf("chain verification failed: %w", err)
	}
	fmt.Printf("chain ok: %d records verified (%s)\n", len(records), hasher.Name())
	return nil
}

func buildStoreOptions(cfg *config.Config) (store.Options, error) {
	strategy, err := partition.ParseStrategy(cfg.Partition.ConflictStrategy)
	if err != nil {
		return store.Options{}, err
	}

	opts := store.Options{
		Driver:       cfg.Storage.Driver,
		DataDir:      cfg.Storage.DataDir,
		DSN:          cfg.Storage.DSN,
		MaxOpenConns: cfg.Storage.Postgres.MaxOpenConns,
		MaxIdleConns: cfg.Storage.Postgres.MaxIdleConns,
		Partition: partition.Config{
			NodeID:           cfg.Partition.NodeID,
			Strategy:         strategy,
			MaxPendingWrites: cfg.Partition.MaxPendingWrites,
			EnableReadRepair: cfg.Partition.EnableReadRepair,
			QuorumReads:      cfg.Partition.QuorumReads,
			QuorumWrites:     cfg.Partition.QuorumWrites,
		},
	}

	if cfg.Cache.Enabled {
		opts.Cache = &cache.Config{
			Driver:     cfg.Cache.Driver,
			Host:       cfg.Cache.Redis.Host,
			Port:       cfg.Cache.Redis.Port,
			Password:   cfg.Cache.Redis.Password,
			DB:         cfg.Cache.Redis.DB,
			Prefix:     cfg.Cache.Prefix,
			DefaultTTL: config.Duration(cfg.Cache.DefaultTTL),
		}
		opts.CacheTTL = config.Duration(cfg.Cache.DefaultTTL)
	}
	return opts, nil
}
