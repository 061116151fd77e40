// Command dispatcher is the long-lived consumer process: it connects to
// the work queue, the submission record store, and the container
// runtime, then runs the dispatch loop until a termination signal
// arrives.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"rce-core/internal/config"
	"rce-core/internal/dispatcher"
	"rce-core/internal/executor"
	"rce-core/internal/logging"
	"rce-core/internal/metrics"
	"rce-core/internal/queue"
	"rce-core/internal/records"
	"rce-core/internal/registry"
	"rce-core/internal/sandboxrt"
	"rce-core/internal/scratch"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../.env"); err != nil {
			// No .env file found; rely on the process environment.
		}
	}

	cfg := config.FromEnv()
	logging.Init()
	log := logging.L()
	defer logging.Sync()

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	// Bootstrap HTTP listener answers health checks immediately while
	// the rest of startup (queue/store/runtime connections) runs,
	// mirroring the teacher's bootstrap-listener pattern.
	var ready atomic.Bool
	var workersAlive atomic.Int32
	healthRouter := gin.New()
	healthRouter.GET("/healthz", func(c *gin.Context) {
		status := http.StatusOK
		if !ready.Load() {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":     ready.Load(),
			"workers":   workersAlive.Load(),
			"languages": registry.New().Supported(),
		})
	})
	healthRouter.GET("/metrics", gin.WrapH(promhttp.Handler()))

	healthSrv := &http.Server{Addr: cfg.HealthAddr, Handler: healthRouter}
	go func() {
		if err := healthSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("health listener stopped unexpectedly", zap.Error(err))
		}
	}()
	log.Info("health listener started", zap.String("addr", cfg.HealthAddr))

	metrics.Get().SetBuildInfo("dev", "unknown", time.Now().UTC().Format(time.RFC3339))

	q, err := queue.New(cfg.QueueURL, cfg.SubmissionQueueName, cfg.AnalysisChannelName)
	if err != nil {
		log.Fatal("failed to connect to work queue", zap.Error(err))
	}
	defer q.Close()

	store, err := records.NewGormStore(cfg.RecordStoreURL)
	if err != nil {
		log.Fatal("failed to connect to record store", zap.Error(err))
	}
	defer store.Close()

	rt, err := sandboxrt.New(cfg.SandboxRuntimeSocket)
	if err != nil {
		log.Fatal("failed to connect to sandbox runtime", zap.Error(err))
	}
	defer rt.Close()
	if cfg.EnablePackageCache {
		rt.EnablePackageCache("")
		log.Info("package cache mounts enabled")
	}

	scr, err := scratch.NewManager(cfg.ScratchHostPath, "/code")
	if err != nil {
		log.Fatal("failed to prepare scratch root", zap.Error(err))
	}

	reg := registry.New()
	log.Info("language registry initialized", zap.Strings("languages", reg.Supported()))

	exec := executor.New(reg, scr, rt)
	exec.SetRemoveTimeout(cfg.ContainerRemoveTimeout)
	if path := os.Getenv("AUDIT_LOG_PATH"); path != "" {
		if err := exec.EnableAuditLog(path); err != nil {
			log.Warn("failed to enable audit log", zap.Error(err))
		} else {
			log.Info("audit log enabled", zap.String("path", path))
		}
	}

	d := dispatcher.New(q, store, exec, cfg.DispatcherWorkers)
	workersAlive.Store(int32(cfg.DispatcherWorkers))

	janitor := dispatcher.NewJanitor(scr, cfg.JanitorInterval, cfg.JanitorInterval*2)

	rootCtx, cancelRoot := context.WithCancel(context.Background())
	defer cancelRoot()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		d.Run(rootCtx)
	}()
	go janitor.Run(rootCtx)

	ready.Store(true)
	log.Info("dispatcher started",
		zap.Int("workers", cfg.DispatcherWorkers),
		zap.String("scratch_root", cfg.ScratchHostPath))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutdown signal received, cancelling in-flight work")
	ready.Store(false)
	cancelRoot()

	select {
	case <-runDone:
		log.Info("dispatcher drained cleanly")
	case <-time.After(cfg.ShutdownGrace):
		log.Warn("shutdown grace period elapsed, exiting with work still unwinding",
			zap.Duration("grace", cfg.ShutdownGrace))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := healthSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("health listener shutdown error", zap.Error(err))
	}

	log.Info("dispatcher exited")
}
