package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/mkorolev/coindeck/internal/domain"
	"github.com/mkorolev/coindeck/internal/services/marketdata"
)

type statusProvider interface {
	GetStatus() marketdata.Status
	SnapshotView() marketdata.Snapshot
	Subscribe(id string, types []marketdata.DataType, fn func(marketdata.Snapshot)) func()
}

type portfolioProvider interface {
	PortfolioSummary() domain.PortfolioSnapshot
}

// Server exposes the control-plane state over HTTP: JSON status and
// portfolio endpoints plus an SSE stream of price snapshots. It is a
// passive subscriber and never mutates anything.
type Server struct {
	addr      string
	data      statusProvider
	portfolio portfolioProvider
	logger    *zap.Logger
}

// NewServer creates a web server.
func NewServer(addr string, data statusProvider, portfolio portfolioProvider, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{addr: addr, data: data, portfolio: portfolio, logger: logger}
}

// Start runs the HTTP server (blocking) and shuts it down when ctx is
// cancelled.
func (s *Server) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/portfolio", s.handlePortfolio)
	mux.HandleFunc("/stream", s.handleStream)

	server := &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.data.GetStatus())
}

func (s *Server) handlePortfolio(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, s.portfolio.PortfolioSummary())
}

func (s *Server) writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("encode response", zap.Error(err))
	}
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// snapshots arrive on orchestrator goroutines; hand them to this
	// request's goroutine through a small buffer, dropping bursts
	// rather than blocking the notifier
	updates := make(chan marketdata.Snapshot, 8)
	unsubscribe := s.data.Subscribe("web-stream-"+r.RemoteAddr, []marketdata.DataType{marketdata.DataTypePrices}, func(snap marketdata.Snapshot) {
		select {
		case updates <- snap:
		default:
		}
	})
	defer unsubscribe()

	if err := writeEvent(w, flusher, s.data.SnapshotView()); err != nil {
		return
	}

	// comment heartbeat every 30s so proxies keep the connection
	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		case snap := <-updates:
			if err := writeEvent(w, flusher, snap); err != nil {
				return
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, flusher http.Flusher, snap marketdata.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "event: snapshot\n")
	fmt.Fprintf(w, "data: %s\n\n", payload)
	flusher.Flush()
	return nil
}
