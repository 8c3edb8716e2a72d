// Copyright 2025 Certen Protocol
//
// gatewayd is the transaction batching gateway entrypoint: it wires the
// signer, CA client, validator client, upstream queue ingestor, staging
// buffer, rate limiters, dispatcher, confirmation listeners, and
// document store together, then serves health/readiness/metrics until
// signalled to shut down.

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/airanchor/gateway/pkg/batchbuilder"
	"github.com/airanchor/gateway/pkg/caclient"
	"github.com/airanchor/gateway/pkg/confirmation"
	"github.com/airanchor/gateway/pkg/config"
	"github.com/airanchor/gateway/pkg/dispatcher"
	"github.com/airanchor/gateway/pkg/docstore"
	"github.com/airanchor/gateway/pkg/ratelimit"
	"github.com/airanchor/gateway/pkg/server"
	"github.com/airanchor/gateway/pkg/signer"
	"github.com/airanchor/gateway/pkg/staging"
	"github.com/airanchor/gateway/pkg/upstream"
	"github.com/airanchor/gateway/pkg/validatorclient"
)

func main() {
	logger := log.New(os.Stdout, "[Gateway] ", log.LstdFlags)

	if err := run(logger); err != nil {
		logger.Fatalf("fatal: %v", err)
	}
}

func run(logger *log.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	batcherSigner, err := signer.LoadFromFile(cfg.PrivateKeyPath)
	if err != nil {
		return err
	}
	logger.Printf("batcher identity loaded, public key %s", batcherSigner.PublicKeyHex())

	docStore, err := newDocStore(cfg)
	if err != nil {
		return err
	}

	ca := caclient.New(caclient.Config{
		BaseURL: cfg.CAURL,
		Logger:  log.New(os.Stdout, "[CAClient] ", log.LstdFlags),
	})

	validator := validatorclient.New(validatorclient.Config{
		Addr:   cfg.ValidatorAddr,
		Logger: log.New(os.Stdout, "[ValidatorClient] ", log.LstdFlags),
	})
	defer validator.Close()

	confirmationConn, err := amqp.Dial(cfg.AMQPURL)
	if err != nil {
		return err
	}
	defer confirmationConn.Close()
	confirmationChannel, err := confirmationConn.Channel()
	if err != nil {
		return err
	}
	defer confirmationChannel.Close()

	listener := confirmation.New(confirmation.Config{
		Channel: confirmationChannel,
		Store:   docStore,
		Logger:  log.New(os.Stdout, "[Confirmation] ", log.LstdFlags),
	})

	builder := batchbuilder.New(batchbuilder.Config{
		Signer:          batcherSigner,
		CAClient:        ca,
		ValidatorClient: validator,
		Listeners:       listener,
		Logger:          log.New(os.Stdout, "[BatchBuilder] ", log.LstdFlags),
	})

	buffer := staging.New(cfg.BufferMaxSize)

	ingestor, err := upstream.New(upstream.Config{
		URL:    cfg.AMQPURL,
		Buffer: buffer,
		Logger: log.New(os.Stdout, "[Upstream] ", log.LstdFlags),
	})
	if err != nil {
		return err
	}
	defer ingestor.Close()

	tokenBucket, err := ratelimit.NewTokenBucket(cfg.TokenBucketRate, cfg.TokenBucketCapacity)
	if err != nil {
		return err
	}
	leakyShaper := ratelimit.NewLeakyShaper(cfg.LeakyBucketLimit)

	disp := dispatcher.New(dispatcher.Config{
		TokenBucket:  tokenBucket,
		LeakyShaper:  leakyShaper,
		Buffer:       buffer,
		Upstream:     ingestor,
		BatchBuilder: builder,
		Logger:       log.New(os.Stdout, "[Dispatcher] ", log.LstdFlags),
	})

	httpServer := server.New(disp.Registry())
	httpServer.RegisterChecker("amqp", func() error {
		if confirmationConn.IsClosed() {
			return context.DeadlineExceeded
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	disp.Start(ctx)
	defer disp.Stop()

	ingestDone := make(chan error, 1)
	go func() { ingestDone <- ingestor.Run(ctx) }()

	health := &http.Server{Addr: cfg.HealthAddr, Handler: httpServer.Handler()}
	go func() {
		if err := health.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("health server stopped: %v", err)
		}
	}()

	metrics := &http.Server{Addr: cfg.MetricsAddr, Handler: httpServer.MetricsHandler()}
	go func() {
		if err := metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Printf("metrics server stopped: %v", err)
		}
	}()

	logger.Printf("gateway running: health on %s, metrics on %s", cfg.HealthAddr, cfg.MetricsAddr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Printf("received signal %s, shutting down", sig)
	case err := <-ingestDone:
		logger.Printf("upstream ingestor stopped: %v", err)
	}

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := health.Shutdown(shutdownCtx); err != nil {
		logger.Printf("health server shutdown: %v", err)
	}
	if err := metrics.Shutdown(shutdownCtx); err != nil {
		logger.Printf("metrics server shutdown: %v", err)
	}

	return nil
}

func newDocStore(cfg *config.Config) (docstore.Store, error) {
	return docstore.NewClient(context.Background(), &docstore.ClientConfig{
		ProjectID:       cfg.FirebaseProjectID,
		CredentialsFile: cfg.GCPCredentialsFile,
		Enabled:         cfg.FirestoreEnabled,
		Logger:          log.New(os.Stdout, "[DocStore] ", log.LstdFlags),
	})
}
