// Package httpapi is the thin HTTP surface in front of the sync engine and
// connectivity monitor. It stands in for the rendering layer: inventory and
// sales views, sale submission, manual sync, and the online/offline signal.
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"puntoventa/backend/internal/connectivity"
	"puntoventa/backend/internal/deltacache"
	"puntoventa/backend/internal/domain"
	"puntoventa/backend/internal/notify"
	"puntoventa/backend/internal/statestore"
	"puntoventa/backend/internal/store"
	"puntoventa/backend/internal/syncengine"
)

type API struct {
	engine        *syncengine.Engine
	monitor       *connectivity.Monitor
	state         *statestore.Store
	deltas        *deltacache.Cache
	notices       *notify.Log
	allowedOrigin string
}

func New(engine *syncengine.Engine, monitor *connectivity.Monitor, state *statestore.Store, deltas *deltacache.Cache, notices *notify.Log, allowedOrigin string) *API {
	return &API{
		engine:        engine,
		monitor:       monitor,
		state:         state,
		deltas:        deltas,
		notices:       notices,
		allowedOrigin: allowedOrigin,
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/inventory", a.handleInventory)
	mux.HandleFunc("/api/v1/sales", a.handleSales)
	mux.HandleFunc("/api/v1/sales/grouped", a.handleGroupedSales)
	mux.HandleFunc("/api/v1/sales/", a.handleSaleActions)
	mux.HandleFunc("/api/v1/sync", a.handleSync)
	mux.HandleFunc("/api/v1/sync/status", a.handleSyncStatus)
	mux.HandleFunc("/api/v1/connectivity", a.handleConnectivity)

	return a.withMiddleware(mux)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok":    true,
		"state": a.monitor.State(),
		"at":    time.Now().UTC().Format(time.RFC3339),
	})
}

// handleInventory returns the remote inventory snapshot overlaid with the
// local delta cache, so sales captured offline show in stock immediately.
func (a *API) handleInventory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	items := a.state.Inventory()
	if err := a.deltas.ApplyToInventory(r.Context(), items); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inventory": items})
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if strings.EqualFold(r.URL.Query().Get("grouped"), "true") {
			writeJSON(w, http.StatusOK, map[string]any{"groups": a.state.GroupedSales()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sales": a.state.Sales()})
	case http.MethodPost:
		var req domain.SaleInput
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		result, err := a.engine.SubmitSale(r.Context(), req)
		if err != nil {
			writeError(w, submitStatus(err), err)
			return
		}
		status := http.StatusCreated
		if !result.Synced {
			// Captured locally, not yet on the remote store.
			status = http.StatusAccepted
		}
		writeJSON(w, status, result)
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleGroupedSales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.GroupedSaleInput
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := a.engine.SubmitGroupedSale(r.Context(), req)
	if err != nil {
		writeError(w, submitStatus(err), err)
		return
	}
	status := http.StatusCreated
	if !result.Synced {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

func (a *API) handleSaleActions(w http.ResponseWriter, r *http.Request) {
	prefix := "/api/v1/sales/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		writeError(w, http.StatusBadRequest, errors.New("invalid sale action path"))
		return
	}

	saleID := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	if saleID == "" {
		writeError(w, http.StatusBadRequest, errors.New("sale id required"))
		return
	}

	switch r.Method {
	case http.MethodPut:
		var req domain.SaleUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		updated, err := a.engine.UpdateSale(r.Context(), saleID, req)
		if err != nil {
			writeError(w, saleActionStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"sale": updated})
	case http.MethodDelete:
		if err := a.engine.DeleteSale(r.Context(), saleID); err != nil {
			writeError(w, saleActionStatus(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	report, err := a.engine.SyncPendingSales(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"report": report,
		"state":  a.monitor.State(),
	})
}

func (a *API) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	pending, err := a.engine.PendingCount(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	report, lastSync := a.engine.LastReport()

	payload := map[string]any{
		"state":       a.monitor.State(),
		"pending":     pending,
		"badge":       a.notices.Badge(),
		"last_report": report,
		"notices":     a.notices.Recent(),
	}
	if !lastSync.IsZero() {
		payload["last_sync_at"] = lastSync.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleConnectivity receives the external online/offline signal. The
// monitor ignores repeated reports of the current state, so callers may
// post the same state as often as they like.
func (a *API) handleConnectivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		State domain.ConnState `json:"state"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	switch req.State {
	case domain.ConnOnline:
		a.monitor.ReportOnline()
	case domain.ConnOffline:
		a.monitor.ReportOffline()
	default:
		writeError(w, http.StatusBadRequest, errors.New("state must be online or offline"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"state": a.monitor.State()})
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func submitStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidQuantity),
		errors.Is(err, domain.ErrInvalidPrice),
		errors.Is(err, domain.ErrInvalidDiscount):
		return http.StatusBadRequest
	default:
		return http.StatusUnprocessableEntity
	}
}

func saleActionStatus(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrRemoteUnavailable):
		return http.StatusConflict
	default:
		return http.StatusUnprocessableEntity
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
