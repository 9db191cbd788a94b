package httpserver

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"crossarb/internal/books"
	"crossarb/internal/guard"
	"crossarb/pkg/types"
)

type booksHandler struct {
	books  *books.Manager
	logger *zap.Logger
}

func newBooksHandler(b *books.Manager, logger *zap.Logger) *booksHandler {
	return &booksHandler{books: b, logger: logger}
}

type errorResponse struct {
	Error string `json:"error"`
}

// handleBooks serves GET /api/books?instrument=BTC/USD[&venue=venue-a].
// Without a venue it returns the latest snapshot per venue.
func (h *booksHandler) handleBooks(w http.ResponseWriter, r *http.Request) {
	instrument := types.Instrument(r.URL.Query().Get("instrument"))
	if !instrument.Valid() {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "instrument query parameter required, e.g. BTC/USD"})
		return
	}

	if v := r.URL.Query().Get("venue"); v != "" {
		snap, ok := h.books.Snapshot(types.VenueID(v), instrument)
		if !ok {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "no book for that venue and instrument"})
			return
		}
		writeJSON(w, http.StatusOK, snap)
		return
	}

	snaps := h.books.VenueSnapshots(instrument)
	if len(snaps) == 0 {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "no books for that instrument"})
		return
	}
	writeJSON(w, http.StatusOK, snaps)
}

type guardHandler struct {
	guard *guard.Guard
}

func newGuardHandler(g *guard.Guard) *guardHandler {
	return &guardHandler{guard: g}
}

// handleStatus serves GET /api/guard.
func (h *guardHandler) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.guard.GetStatus())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
