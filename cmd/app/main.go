package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	cfgpkg "github.com/local/exammarker/internal/config"
	"github.com/local/exammarker/internal/converter"
	"github.com/local/exammarker/internal/dispatcher"
	"github.com/local/exammarker/internal/engine"
	"github.com/local/exammarker/internal/grading"
	logpkg "github.com/local/exammarker/internal/logger"
	"github.com/local/exammarker/internal/metrics"
	"github.com/local/exammarker/internal/orchestrator"
	"github.com/local/exammarker/internal/placement"
	"github.com/local/exammarker/internal/queue"
	"github.com/local/exammarker/internal/render"
	"github.com/local/exammarker/internal/statuscheck"
	"github.com/local/exammarker/internal/storage"
	"github.com/local/exammarker/internal/store"
	web "github.com/local/exammarker/internal/web"
)

func main() {
	_ = godotenv.Load()
	cfg := cfgpkg.FromEnv()

	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	defer logpkg.Close()

	metrics.Init()

	rq, err := queue.NewRedisQueue(cfg.Queue.RedisURL, cfg.Queue.Stream, cfg.Queue.Group, cfg.Queue.PollInterval)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer rq.Close()

	rs, err := store.NewRedisStatus(cfg.Queue.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init redis status store")
	}
	defer rs.Close()

	results, err := store.NewResultStore(cfg.Queue.RedisURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init redis result store")
	}
	defer results.Close()

	var s3c *storage.S3Client
	if cfg.S3.Bucket != "" {
		s3c, err = storage.NewS3Client(context.Background(), cfg.S3.Bucket, cfg.S3.Region)
		if err != nil {
			log.Warn().Err(err).Msg("s3 unavailable, remote submissions disabled")
			s3c = nil
		}
	}

	conv := converter.NewLibreOffice(cfg.Worker.Concurrency)
	if err := conv.Initialize(); err != nil {
		log.Warn().Err(err).Msg("LibreOffice unavailable, non-PDF submissions will be rejected")
	}

	breaker := grading.NewRedisBreaker(rq.Client(), cfg.Worker.BreakerBaseBackoff, cfg.Worker.BreakerMaxBackoff)
	grader := grading.NewGrader(
		grading.NewOpenAIClient(),
		grading.NewAnthropicClient(),
		breaker,
		grading.Options{
			PrimaryProvider:  cfg.Providers.PrimaryEngine,
			OpenAI:           grading.ProviderModels(cfg.Providers.OpenAI),
			Anthropic:        grading.ProviderModels(cfg.Providers.Anthropic),
			RequestTimeout:   cfg.Worker.RequestTimeout,
			RateLimitRetries: uint64(cfg.Worker.RateLimitRetries),
			RateLimitWait:    cfg.Worker.RateLimitWait,
			MaxInflight:      cfg.Worker.MaxInflight,
		},
	)

	planner := placement.NewPlanner(placement.Config{
		Gap:             cfg.Placement.Gap,
		Margin:          cfg.Placement.Margin,
		FontSize:        cfg.Placement.FontSize,
		CharWidthFactor: cfg.Placement.CharWidthFactor,
		LineLeading:     cfg.Placement.LineLeading,
		Padding:         cfg.Placement.Padding,
	})
	eng := engine.New(planner, cfg.Placement.MaxRetries)

	annotator, err := render.NewAnnotator(render.Options{
		DPI:      cfg.Render.DPI,
		FontSize: cfg.Placement.FontSize,
		FontPath: cfg.Render.FontPath,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init annotator")
	}

	status := orchestrator.NewStatusAdapter(rs)
	checker := statuscheck.New(statuscheck.Options{
		Redis:        rq,
		S3Bucket:     cfg.S3.Bucket,
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicKey: os.Getenv("ANTHROPIC_API_KEY"),
	})

	orch := orchestrator.New(orchestrator.Dependencies{
		Queue:   rq,
		Status:  status,
		Results: results,
		Checker: checker,
	}, cfg)
	mux := http.NewServeMux()
	orch.RegisterRoutes(mux)
	mux.Handle("/metrics", metrics.Handler())

	dash := web.New()
	dash.RegisterRoutes(mux)

	pipeline := orchestrator.NewPipeline(orchestrator.PipelineDeps{
		Config:    cfg,
		Fetcher:   orchestrator.NewFetcher(s3c, cfg.S3.EncryptionKey),
		Converter: conv,
		Grader:    grader,
		Engine:    eng,
		Annotator: annotator,
		Status:    status,
		Results:   results,
		Cancels:   rq,
		S3:        s3c,
	})

	var worker *dispatcher.Worker
	runWorker := os.Getenv("RUN_WORKER")
	if runWorker == "" || runWorker == "1" || runWorker == "true" {
		worker = dispatcher.New(cfg.Worker, rq, pipeline, status)
		worker.Start()
	}

	srv := &http.Server{Addr: cfg.HTTP.Addr, Handler: mux}
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	if worker != nil {
		_ = worker.Stop(ctx)
	}
	log.Info().Msg("shutdown complete")
}
