package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/squabble/internal/bus"
	"github.com/nextlevelbuilder/squabble/internal/channels"
	"github.com/nextlevelbuilder/squabble/internal/config"
	"github.com/nextlevelbuilder/squabble/internal/gameserver"
	"github.com/nextlevelbuilder/squabble/pkg/protocol"
)

const maxBodyBytes = 1 << 20

// Messenger is the subset of channels.Manager the admin API needs.
type Messenger interface {
	Send(ctx context.Context, msg bus.OutboundMessage) error
	ListConversations(ctx context.Context, channel string, filter channels.ConversationFilter) ([]channels.Conversation, error)
	DefaultChannel() string
	GetStatus() map[string]interface{}
}

// Server is the admin HTTP surface. Every route requires the agent secret header.
type Server struct {
	cfg     config.GatewayConfig
	secret  string
	msgs    Messenger
	limiter *rate.Limiter

	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates the admin server. Broadcast sends share one token bucket.
func NewServer(cfg config.GatewayConfig, secret string, msgs Messenger) *Server {
	rps := cfg.BroadcastRPS
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.BroadcastBurst
	if burst <= 0 {
		burst = 5
	}
	return &Server{
		cfg:     cfg,
		secret:  secret,
		msgs:    msgs,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// BuildMux creates and caches the HTTP mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.authMiddleware(s.handleHealth))
	mux.HandleFunc("POST /api/send-message", s.authMiddleware(s.handleSendMessage))
	mux.HandleFunc("GET /api/conversations", s.authMiddleware(s.handleConversations))
	mux.HandleFunc("POST /api/broadcast", s.authMiddleware(s.handleBroadcast))

	s.mux = mux
	return mux
}

// Start listens until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("admin api starting", "addr", addr)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin server: %w", err)
	}
	return nil
}

// authMiddleware rejects requests without the shared secret. An unset secret rejects everything.
func (s *Server) authMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(gameserver.SecretHeader)
		if s.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) != 1 {
			slog.Warn("security.admin_unauthorized", "path", r.URL.Path, "remote", r.RemoteAddr)
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":   "ok",
		"protocol": protocol.ProtocolVersion,
		"channels": s.msgs.GetStatus(),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
