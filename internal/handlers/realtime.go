package handlers

import (
	"net/http"

	"github.com/dropcart/backend/internal/models"
	"github.com/dropcart/backend/internal/realtime"
)

// ConnectionStats reports live connection counts.
type ConnectionStats interface {
	Stats() realtime.SupervisorStats
}

// DispatchStats reports cumulative publish counters.
type DispatchStats interface {
	Stats() realtime.DispatchStats
}

// RealtimeHandler exposes the realtime layer's counters to admins.
type RealtimeHandler struct {
	connections ConnectionStats
	dispatch    DispatchStats
}

// NewRealtimeHandler creates a RealtimeHandler.
func NewRealtimeHandler(connections ConnectionStats, dispatch DispatchStats) *RealtimeHandler {
	return &RealtimeHandler{connections: connections, dispatch: dispatch}
}

// Stats returns live connection and room counts plus publish totals.
func (h *RealtimeHandler) Stats(w http.ResponseWriter, r *http.Request) {
	conns := h.connections.Stats()
	dispatch := h.dispatch.Stats()

	writeJSON(w, http.StatusOK, models.RealtimeStatsResponse{
		Connections: conns.Connections,
		Rooms:       conns.Rooms,
		Accepted:    conns.Accepted,
		Rejected:    conns.Rejected,
		Published:   dispatch.Published,
		Delivered:   dispatch.Delivered,
		Dropped:     dispatch.Dropped,
	})
}
