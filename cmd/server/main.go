package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	database "github.com/arvik-health/medgate/internal"
	"github.com/arvik-health/medgate/internal/agentclient"
	"github.com/arvik-health/medgate/internal/api"
	"github.com/arvik-health/medgate/internal/cache"
	"github.com/arvik-health/medgate/internal/logging"
	"github.com/arvik-health/medgate/internal/mesh"
	"github.com/arvik-health/medgate/internal/monitor"
	"github.com/arvik-health/medgate/internal/storage"
	"github.com/arvik-health/medgate/internal/tracing"
)

func main() {
	log := logging.Init("medgate-server")
	api.SetLogger(log)
	database.Connect()

	if os.Getenv("MEDGATE_DEV") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	store, err := storage.New(os.Getenv("MEDGATE_STORAGE_DIR"))
	if err != nil {
		log.Error("storage init failed", "error", err)
		os.Exit(1)
	}

	bus := buildBus(log)
	api.SubscribeMetrics(bus)
	rc := api.RedisFromEnv()
	embeds := cache.NewEmbedCache(rc, 24*time.Hour)
	agents := agentclient.New(os.Getenv("AGENT_URL"), os.Getenv("AGENT_HMAC_SECRET"), embeds, log)
	agents.SetObserver(api.RecordExternalOp)

	pollInterval := monitor.DefaultInterval
	if raw := os.Getenv("MEDGATE_POLL_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			pollInterval = d
		}
	}
	mon := monitor.New(agents.Health, pollInterval,
		monitor.WithBus(bus), monitor.WithLogger(log),
		monitor.WithObserver(api.RecordAgentPoll))

	api.Configure(api.Deps{Store: store, Agents: agents, Bus: bus, Monitor: mon})

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	pipeline := api.NewPipeline(store, agents, bus)
	api.StartDocumentWorkers(workerCtx, rc, pipeline.Process)
	api.StartRetentionScheduler(store)
	mon.Start()

	router := gin.New()
	router.Use(gin.Recovery())
	shutdownTracing, traced := tracing.SetupFromEnv("medgate-server")
	if traced {
		router.Use(otelgin.Middleware("medgate-server"))
	}
	router.Use(api.MetricsMiddleware())
	router.Use(api.RequestIDMiddleware())
	router.Use(api.VersionMiddleware(""))
	router.Use(api.CORSMiddleware(api.AllowedOriginsFromEnv()))
	router.Use(api.RequestLogMiddleware())

	router.GET("/healthz", api.Healthz)
	router.GET("/readyz", api.Readyz)
	router.GET("/openapi.json", api.OpenAPIJSON)
	router.GET("/docs", api.SwaggerUI)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	protected := router.Group("/api")
	protected.Use(api.AuthMiddleware())
	protected.Use(api.RateLimitMiddlewareFromEnv())
	protected.Use(api.IdempotencyMiddlewareFromEnv())
	{
		protected.POST("/documents", api.UploadDocument)
		protected.GET("/documents", api.ListDocuments)
		protected.GET("/documents/:id", api.GetDocument)
		protected.GET("/documents/:id/status", api.GetDocumentStatus)
		protected.DELETE("/documents/:id", api.DeleteDocument)

		protected.POST("/chat", api.Chat)
		protected.POST("/medical-consultation", api.MedicalConsultation)
		protected.POST("/voice", api.GenerateVoice)
		protected.GET("/voices", api.ListVoices)

		protected.GET("/agent/status", api.AgentStatus)
		protected.POST("/agent/status/refresh", api.RefreshAgentStatus)

		protected.POST("/sessions", api.StartSession)
		protected.GET("/sessions", api.ListSessions)
		protected.POST("/sessions/:id/end", api.EndSession)

		protected.POST("/keys", api.CreateServiceKey)
		protected.GET("/keys", api.ListServiceKeys)
		protected.DELETE("/keys/:id", api.RevokeServiceKey)
	}

	if api.MountSPA(router, os.Getenv("MEDGATE_SPA_DIST")) {
		log.Info("serving frontend build")
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("gateway listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	log.Info("shutting down")

	mon.Stop()
	cancelWorkers()
	api.StopRetentionScheduler()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("shutdown incomplete", "error", err)
	}
	_ = bus.Close()
	_ = shutdownTracing(context.Background())
}

// buildBus picks the event bus backend: NATS when MEDGATE_BUS=nats (needs
// the nats build tag), the in-process bus otherwise.
func buildBus(log *slog.Logger) mesh.Bus {
	if os.Getenv("MEDGATE_BUS") == "nats" {
		url := os.Getenv("NATS_URL")
		if url == "" {
			url = "nats://localhost:4222"
		}
		b, err := mesh.NewNatsBus(url)
		if err == nil {
			return b
		}
		log.Warn("nats bus unavailable, using local bus", "error", err)
	}
	return mesh.NewLocalBus()
}
