package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"dreamcore/orchestrator/internal/agentdriver"
	"dreamcore/orchestrator/internal/api"
	"dreamcore/orchestrator/internal/auditlog"
	"dreamcore/orchestrator/internal/auxmodel"
	"dreamcore/orchestrator/internal/config"
	"dreamcore/orchestrator/internal/sandbox"
	"dreamcore/orchestrator/internal/structuredgen"
)

func main() {
	logger := log.New(os.Stdout, "orchestrator ", log.LstdFlags|log.LUTC)

	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	rt, err := sandbox.NewRuntime(ctx)
	cancel()
	if err != nil {
		logger.Fatalf("sandbox runtime: %v", err)
	}
	defer rt.Close()

	egressHost := os.Getenv("DREAMCORE_EGRESS_HOST")
	mgr := sandbox.NewManager(rt, cfg, egressHost)

	reapCtx, stopReaper := context.WithCancel(context.Background())
	defer stopReaper()
	mgr.StartReaper(reapCtx, reapInterval(), logger)

	driver := agentdriver.New(rt, cfg, egressHost)
	invoker := auxmodel.NewInvoker(mgr, rt, cfg)
	structGen := structuredgen.New(os.Getenv("DREAMCORE_LARGE_MODEL_ENDPOINT"))

	audit, err := auditlog.Open(cfg.AuditDBPath)
	if err != nil {
		logger.Fatalf("audit log: %v", err)
	}
	defer audit.Close()

	srv := api.New(cfg, rt, mgr, driver, invoker, structGen, audit, logger)

	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", cfg.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop
	logger.Printf("shutting down...")
	_ = httpSrv.Close()
}

// reapInterval reads DREAMCORE_REAP_INTERVAL (a time.ParseDuration string,
// e.g. "2m") and falls back to once a minute.
func reapInterval() time.Duration {
	raw := strings.TrimSpace(os.Getenv("DREAMCORE_REAP_INTERVAL"))
	if raw == "" {
		return time.Minute
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return time.Minute
	}
	return d
}
