package server

import (
	"encoding/json"
	"net/http"

	units "github.com/docker/go-units"
	"github.com/gorilla/mux"

	"github.com/kartpop/kvs/internal/log"
)

// statsSource is the subset of *log.Engine the admin surface needs:
// only the log-structured engine tracks generations and uncompacted
// bytes, so the admin server is wired to it specifically rather than
// to the Engine interface.
type statsSource interface {
	Stats() log.Stats
}

// NewAdminHTTPServer builds the read-only status server: a gorilla/mux
// router with one JSON handler. It never mutates store state and is
// not part of the wire protocol; it exists purely for operational
// visibility alongside the TCP server.
func NewAdminHTTPServer(addr string, stats statsSource) *http.Server {
	h := &adminHandler{stats: stats}
	r := mux.NewRouter()
	r.HandleFunc("/stats", h.handleStats).Methods(http.MethodGet)
	return &http.Server{
		Addr:    addr,
		Handler: r,
	}
}

type adminHandler struct {
	stats statsSource
}

type statsResponse struct {
	Keys              int    `json:"keys"`
	UncompactedBytes  uint64 `json:"uncompacted_bytes"`
	UncompactedHuman  string `json:"uncompacted_human"`
	CurrentGeneration uint64 `json:"current_generation"`
}

func (h *adminHandler) handleStats(w http.ResponseWriter, r *http.Request) {
	s := h.stats.Stats()
	resp := statsResponse{
		Keys:              s.Keys,
		UncompactedBytes:  s.UncompactedBytes,
		UncompactedHuman:  units.HumanSize(float64(s.UncompactedBytes)),
		CurrentGeneration: s.CurrentGeneration,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
