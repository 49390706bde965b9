package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"

	"github.com/go-chi/httplog/v2"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	myhttp "github.com/shortlyhq/shortly/internal/api/http"
	"github.com/shortlyhq/shortly/internal/auth"
	rediscache "github.com/shortlyhq/shortly/internal/cache/redis"
	"github.com/shortlyhq/shortly/internal/config"
	"github.com/shortlyhq/shortly/internal/database/postgres"
	"github.com/shortlyhq/shortly/internal/metrics"
	"github.com/shortlyhq/shortly/internal/queue/rabbitmq"
	"github.com/shortlyhq/shortly/internal/service"
	"github.com/shortlyhq/shortly/internal/worker"
	pkgpostgres "github.com/shortlyhq/shortly/pkg/postgres"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx); err != nil {
		panic(err)
	}
}

func run(ctx context.Context) error {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return err
	}

	logger := httplog.NewLogger("shortly", httplog.Options{
		JSON:    cfg.Env == config.EnvProd,
		Concise: cfg.Env != config.EnvProd,
	})

	g, ctx := errgroup.WithContext(ctx)

	db, err := postgres.New(
		ctx,
		cfg.Postgres.DSN(),
		postgres.WithConnMaxIdleTime(cfg.Postgres.ConnMaxIdleTime),
		postgres.WithConnMaxLifetime(cfg.Postgres.ConnMaxLifetime),
		postgres.WithMaxIdleConns(cfg.Postgres.MaxIdleConns),
		postgres.WithMaxOpenConns(cfg.Postgres.MaxOpenConns),
	)
	if err != nil {
		return err
	}
	g.Go(func() error {
		<-ctx.Done()
		return db.Close()
	})

	if err := pkgpostgres.RunMigrations("file://migrations", cfg.Postgres.DSN()); err != nil {
		return err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	g.Go(func() error {
		<-ctx.Done()
		return redisClient.Close()
	})

	tasks, err := rabbitmq.New(rabbitmq.Config{
		URL:       cfg.RabbitMQ.URL(),
		QueueName: cfg.RabbitMQ.QueueName,
	})
	if err != nil {
		return err
	}
	g.Go(func() error {
		<-ctx.Done()
		return tasks.Close()
	})

	urlRepo := postgres.NewURLRepository(db)
	urlCache := rediscache.NewURLCache(redisClient, cfg.Redis.CacheTTL)
	rec := metrics.NewSlogRecorder(logger.Logger)
	urlSvc := service.NewURLService(urlRepo, urlCache, tasks, rec, logger.Logger, cfg.ShortCodeLength)

	clickWorker := worker.NewClickWorker(urlRepo, tasks, logger.Logger)
	g.Go(func() error {
		return clickWorker.Run(ctx)
	})

	authenticator := auth.NewAuthenticator(cfg.HMACSecret)
	r := myhttp.NewRouter(logger, urlSvc, authenticator, cfg.BaseURL)

	server := &http.Server{
		Addr:           cfg.HTTPServer.Addr(),
		Handler:        r,
		ReadTimeout:    cfg.HTTPServer.ReadTimeout,
		WriteTimeout:   cfg.HTTPServer.WriteTimeout,
		IdleTimeout:    cfg.HTTPServer.IdleTimeout,
		MaxHeaderBytes: cfg.HTTPServer.MaxHeaderBytes,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	g.Go(func() error {
		var err error

		switch cfg.Env {
		case config.EnvProd:
			err = server.ListenAndServeTLS(cfg.HTTPServer.CertFile, cfg.HTTPServer.KeyFile)
		default:
			err = server.ListenAndServe()
		}

		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		return server.Shutdown(context.Background())
	})

	return g.Wait()
}
