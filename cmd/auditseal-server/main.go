// Command auditseal-server runs the audit export integrity API and its build workers.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/persistorai/auditseal/internal/api"
	"github.com/persistorai/auditseal/internal/config"
	"github.com/persistorai/auditseal/internal/db"
	"github.com/persistorai/auditseal/internal/db/migrations"
	"github.com/persistorai/auditseal/internal/dbpool"
	"github.com/persistorai/auditseal/internal/objectstore"
	"github.com/persistorai/auditseal/internal/service"
	"github.com/persistorai/auditseal/internal/signing"
	"github.com/persistorai/auditseal/internal/source"
	"github.com/persistorai/auditseal/internal/store"
	"github.com/persistorai/auditseal/internal/timestamp"
)

const shutdownTimeout = 15 * time.Second

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	if err := run(log); err != nil {
		log.WithError(err).Fatal("auditseal-server exited with error")
	}
}

func run(log *logrus.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("LOG_LEVEL: %w", err)
	}
	log.SetLevel(level)

	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Database.
	pool, err := dbpool.NewPool(ctx, cfg.DatabaseURL.Value(), int32(cfg.DBMaxConns)) //nolint:gosec // bounded by config validation.
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, log, migrations.FS); err != nil {
		return err
	}

	base := store.Base{Pool: pool, Log: log}
	configs := store.NewConfigStore(base)
	keyStore := store.NewKeyStore(base)
	packages := store.NewPackageStore(base)
	packStore := store.NewPackStore(base)
	verifications := store.NewVerificationStore(base)
	orgs := store.NewOrgStore(pool)

	// Collaborators.
	var secrets signing.SecretStore
	switch cfg.SignerProvider {
	case "vault":
		secrets = signing.NewVaultSecretStore(cfg.VaultAddr, cfg.VaultToken.Value(), cfg.VaultTransitMount, cfg.ExternalTimeout)
		log.WithField("addr", cfg.VaultAddr).Info("signing keys held in vault transit")
	default:
		secrets = signing.NewMemorySecretStore()
		log.Warn("signing keys held in memory; they do not survive a restart")
	}

	var objects objectstore.Store
	switch cfg.StorageProvider {
	case "s3":
		s3Store, err := objectstore.NewS3Store(ctx, objectstore.S3Options{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey.Value(),
		})
		if err != nil {
			return err
		}
		objects = s3Store
		log.WithField("bucket", cfg.S3Bucket).Info("archives stored in s3")
	default:
		objects = objectstore.NewMemoryStore(false)
		log.Warn("archives stored in memory without object lock")
	}

	if cfg.SourceServiceURL == "" {
		log.Warn("SOURCE_SERVICE_URL is not set; package and pack builds will fail")
	}
	records := source.NewClient(cfg.SourceServiceURL, cfg.SourceServiceToken.Value(), cfg.ExternalTimeout, log)
	tsa := timestamp.NewRFC3161Client(cfg.TSAURL, cfg.ExternalTimeout)

	// Services.
	keys := service.NewKeyManager(keyStore, secrets, cfg.ExternalTimeout, log)
	exportConfig := service.NewExportConfigService(configs, objects, cfg.ExternalTimeout, log)

	assembler := service.NewAssembler(service.AssemblerDeps{
		Packages:    packages,
		Configs:     configs,
		Keys:        keys,
		TSA:         tsa,
		Objects:     objects,
		Files:       records,
		HashWorkers: cfg.HashWorkers,
		Timeout:     cfg.ExternalTimeout,
		Log:         log,
	})

	verifier := service.NewVerifier(service.VerifierDeps{
		Packages:    packages,
		Keys:        keys,
		Logs:        verifications,
		Objects:     objects,
		HashWorkers: cfg.HashWorkers,
		Timeout:     cfg.ExternalTimeout,
		Log:         log,
	})

	packs := service.NewPackOrchestrator(packStore, records, assembler, service.PackOptions{
		MaxLineageNodes:  cfg.MaxLineageNodes,
		MaxPackRangeDays: cfg.MaxPackRangeDays,
		Timeout:          cfg.ExternalTimeout,
	}, log)

	queue := service.NewBuildQueue(assembler, packs, log, cfg.BuildQueueSize, cfg.BuildWorkers)

	queueDone := make(chan struct{})
	go func() {
		queue.Run(ctx)
		close(queueDone)
	}()

	router := api.NewRouter(ctx, &api.RouterDeps{
		Log:           log,
		DB:            pool,
		OrgLookup:     orgs,
		Config:        exportConfig,
		Keys:          keys,
		Packages:      assembler,
		PackageReader: packages,
		Verifier:      verifier,
		Packs:         packs,
		Queue:         queue,
		CORSOrigins:   cfg.CORSOrigins,
		Version:       config.Version,
		SchemaVersion: db.SchemaVersion(),
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.WithFields(logrus.Fields{
			"addr":    cfg.Addr(),
			"version": config.Version,
		}).Info("auditseal listening")

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			stop()
			<-queueDone
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("http shutdown did not complete")
	}

	// Queued builds drain after the listener closes.
	select {
	case <-queueDone:
	case <-shutdownCtx.Done():
		log.Warn("build queue still draining at shutdown deadline")
	}

	return nil
}
