package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/flowmatic/conductor/common/logger"
)

// Telemetry hosts the pprof debug listener on its own port.
type Telemetry struct {
	pprofServer *http.Server
	log         *logger.Logger
}

// New creates a telemetry instance
func New(pprofPort int, log *logger.Logger) *Telemetry {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	return &Telemetry{
		pprofServer: &http.Server{
			Addr:        fmt.Sprintf(":%d", pprofPort),
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Start launches the pprof listener in the background
func (t *Telemetry) Start(ctx context.Context) error {
	go func() {
		t.log.Info("pprof listening", "addr", t.pprofServer.Addr)
		if err := t.pprofServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			t.log.Warn("pprof server stopped", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		t.pprofServer.Shutdown(shutdownCtx)
	}()

	return nil
}
