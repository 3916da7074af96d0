package server

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"

	"github.com/customeros/mailprobe/api"
	"github.com/customeros/mailprobe/internal/cron"
	"github.com/customeros/mailprobe/internal/logger"
	"github.com/customeros/mailprobe/services"
)

const shutdownTimeout = 15 * time.Second

type Server struct {
	runtime    *Runtime
	httpServer *http.Server
	router     *gin.Engine
	services   *services.Services
	cron       *cron.CronManager
}

func NewServer(rt *Runtime) (*Server, error) {
	cfg := rt.Config

	svcs, err := services.InitServices(cfg, rt.Redis, rt.Repositories, rt.Log)
	if err != nil {
		return nil, err
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	return &Server{
		runtime:  rt,
		router:   router,
		services: svcs,
		cron: cron.NewCronManager(cfg, rt.Log, kubernetesClient(rt.Log),
			rt.Repositories.BatchRepository, svcs.CircuitBreaker),
		httpServer: &http.Server{
			Addr:    ":" + cfg.AppConfig.APIPort,
			Handler: router,
		},
	}, nil
}

// kubernetesClient returns nil outside a cluster, which puts the cron manager
// in local mode.
func kubernetesClient(log logger.Logger) kubernetes.Interface {
	restConfig, err := rest.InClusterConfig()
	if err != nil {
		log.Debugf("Not running in kubernetes: %v", err)
		return nil
	}
	client, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		log.Warnf("Unable to build kubernetes client: %v", err)
		return nil
	}
	return client
}

func (s *Server) Run() error {
	log := s.runtime.Log

	api.RegisterRoutes(s.router, s.services, s.runtime.Config.AppConfig, log)

	podName := os.Getenv("POD_NAME")
	if podName == "" {
		podName = "local"
	}
	if err := s.cron.Start(podName, os.Getenv("POD_NAMESPACE")); err != nil {
		log.Errorf("Cron manager failed to start: %v", err)
	}

	go wrapGoroutine(log, "http_server", func() {
		log.Infof("Starting HTTP server on %s", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorf("HTTP server error: %v", err)
		}
	})
	log.Info("Mailprobe API is now running. Press Ctrl+C to exit.")

	waitForSignal()
	return s.shutdown()
}

func (s *Server) shutdown() error {
	log := s.runtime.Log
	defer recoverWithJaeger(log, "shutdown")
	log.Info("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		log.Errorf("HTTP server shutdown error: %v", err)
	} else {
		log.Info("HTTP server shut down successfully")
	}

	s.cron.Stop()

	if s.services.EventsService != nil {
		if err := s.services.EventsService.Close(); err != nil {
			log.Warnf("Events service close error: %v", err)
		}
	}
	return nil
}

func waitForSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func recoverWithJaeger(log logger.Logger, name string) {
	if r := recover(); r != nil {
		span := opentracing.GlobalTracer().StartSpan(fmt.Sprintf("panic.%s", name))
		defer span.Finish()

		ext.Error.Set(span, true)
		span.LogKV(
			"event", "panic",
			"process", name,
			"error", fmt.Sprintf("%v", r),
			"stack", string(debug.Stack()),
		)

		log.Errorf("Panic in %s: %v\n%s", name, r, debug.Stack())
	}
}

func wrapGoroutine(log logger.Logger, name string, fn func()) {
	defer recoverWithJaeger(log, name)
	fn()
}
