package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/gin-gonic/gin"

	"github.com/arvik-health/medgate/internal/agent"
	"github.com/arvik-health/medgate/internal/logging"
	"github.com/arvik-health/medgate/internal/tracing"
)

func main() {
	_ = godotenv.Load(".env") // the real environment wins when both are set
	log := logging.Init("medgate-agentd")

	if os.Getenv("MEDGATE_DEV") == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	port := os.Getenv("AGENT_PORT")
	if port == "" {
		port = "8090"
	}

	svc := agent.NewServiceFromEnv(log)
	shutdownTracing, traced := tracing.SetupFromEnv("medgate-agentd")
	var extra []gin.HandlerFunc
	if traced {
		extra = append(extra, otelgin.Middleware("medgate-agentd"))
	}
	router := svc.Router(extra...)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("agent service listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	<-sigc
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Warn("shutdown incomplete", "error", err)
	}
	_ = shutdownTracing(context.Background())
}
