package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"packetSync/internal/model"
	"packetSync/internal/storage"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Server serves read-only queries over committed projection state. Live
// broadcasts are advisory; this is the authoritative read path clients
// reconcile against.
type Server struct {
	store  storage.QueryStore
	logger *zap.Logger
}

func NewServer(store storage.QueryStore, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{store: store, logger: logger}
}

func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/packets/{id}", s.handlePacket)
	mux.HandleFunc("GET /v1/packets/{id}/claims", s.handleClaims)
	mux.HandleFunc("GET /v1/leaderboard", s.handleLeaderboard)
	return mux
}

func (s *Server) handlePacket(w http.ResponseWriter, r *http.Request) {
	packetID := r.PathValue("id")
	st, ok, err := s.store.GetPacket(r.Context(), packetID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "packet not found")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleClaims(w http.ResponseWriter, r *http.Request) {
	packetID := r.PathValue("id")
	_, ok, err := s.store.GetPacket(r.Context(), packetID)
	if err != nil {
		s.internalError(w, err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "packet not found")
		return
	}

	claims, err := s.store.PacketClaims(r.Context(), packetID, parseLimit(r))
	if err != nil {
		s.internalError(w, err)
		return
	}
	if claims == nil {
		claims = []model.Claim{}
	}
	writeJSON(w, http.StatusOK, claims)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	scope := r.URL.Query().Get("scope")
	if scope == "" {
		scope = model.ScopeGlobal
	}
	entries, err := s.store.TopN(r.Context(), scope, parseLimit(r))
	if err != nil {
		s.internalError(w, err)
		return
	}
	if entries == nil {
		entries = []model.RankingEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.logger.Error("query failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func parseLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
