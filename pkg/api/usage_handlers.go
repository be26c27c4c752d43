package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/unwind/pkg/analytics"
	"github.com/platinummonkey/unwind/pkg/contextkeys"
	"github.com/platinummonkey/unwind/pkg/httputil"
	"github.com/platinummonkey/unwind/pkg/observability"
	"github.com/platinummonkey/unwind/pkg/storage"
	"github.com/platinummonkey/unwind/pkg/usage"
)

const msgEntryNotFound = "Usage log not found"

// UsageRecorder receives usage write events
type UsageRecorder interface {
	RecordUsageWrite(ctx context.Context, operation string)
}

// UsageHandlers serves CRUD on the caller's usage log
type UsageHandlers struct {
	store     storage.UsageStore
	analytics *analytics.Service
	clock     Clock
	recorders []UsageRecorder
}

// NewUsageHandlers creates usage handlers. Every write invalidates the
// caller's cached dashboards.
func NewUsageHandlers(store storage.UsageStore, service *analytics.Service, clock Clock, recorders ...UsageRecorder) *UsageHandlers {
	h := &UsageHandlers{store: store, analytics: service, clock: clock}
	for _, r := range recorders {
		if r != nil {
			h.recorders = append(h.recorders, r)
		}
	}
	return h
}

// RegisterRoutes registers usage routes on the authenticated router
func (h *UsageHandlers) RegisterRoutes(protected *mux.Router) {
	protected.HandleFunc("/api/usage", h.create).Methods("POST")
	protected.HandleFunc("/api/usage", h.list).Methods("GET")
	protected.HandleFunc("/api/usage/{id}", h.get).Methods("GET")
	protected.HandleFunc("/api/usage/{id}", h.update).Methods("PUT")
	protected.HandleFunc("/api/usage/{id}", h.remove).Methods("DELETE")
}

type pagination struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

type usageList struct {
	Logs       []usage.Entry `json:"logs"`
	Pagination pagination    `json:"pagination"`
}

// create handles POST /api/usage
func (h *UsageHandlers) create(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var in usage.Input
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	entry, err := in.Normalize(usage.DateOf(h.clock()))
	if err != nil {
		writeError(w, r, err, msgEntryNotFound)
		return
	}
	entry.UserID = userID

	if err := h.store.Create(r.Context(), &entry); err != nil {
		writeError(w, r, err, msgEntryNotFound)
		return
	}

	h.afterWrite(r, userID, "create")
	httputil.WriteCreated(w, "Usage log created successfully", map[string]usage.Entry{"log": entry})
}

// list handles GET /api/usage
// Query params: startDate, endDate, appName, limit, offset
func (h *UsageHandlers) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	filter, err := parseListFilter(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	filter, err = filter.Normalize()
	if err != nil {
		writeError(w, r, err, msgEntryNotFound)
		return
	}

	entries, total, err := h.store.List(r.Context(), userID, filter)
	if err != nil {
		writeError(w, r, err, msgEntryNotFound)
		return
	}
	if entries == nil {
		entries = []usage.Entry{}
	}

	httputil.WriteSuccess(w, usageList{
		Logs:       entries,
		Pagination: pagination{Total: total, Limit: filter.Limit, Offset: filter.Offset},
	})
}

// get handles GET /api/usage/{id}
func (h *UsageHandlers) get(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid usage log id")
		return
	}

	entry, err := h.store.Get(r.Context(), userID, id)
	if err != nil {
		writeError(w, r, err, msgEntryNotFound)
		return
	}
	httputil.WriteSuccess(w, map[string]*usage.Entry{"log": entry})
}

// update handles PUT /api/usage/{id}. The body replaces every field.
func (h *UsageHandlers) update(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid usage log id")
		return
	}

	var in usage.Input
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	entry, err := in.Normalize(usage.DateOf(h.clock()))
	if err != nil {
		writeError(w, r, err, msgEntryNotFound)
		return
	}
	entry.ID = id
	entry.UserID = userID

	if err := h.store.Update(r.Context(), &entry); err != nil {
		writeError(w, r, err, msgEntryNotFound)
		return
	}

	h.afterWrite(r, userID, "update")
	httputil.WriteData(w, http.StatusOK, "Usage log updated successfully", map[string]usage.Entry{"log": entry})
}

// remove handles DELETE /api/usage/{id}
func (h *UsageHandlers) remove(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	id, err := httputil.ParsePathInt64(r, "id")
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid usage log id")
		return
	}

	if err := h.store.Delete(r.Context(), userID, id); err != nil {
		writeError(w, r, err, msgEntryNotFound)
		return
	}

	h.afterWrite(r, userID, "delete")
	httputil.WriteData(w, http.StatusOK, "Usage log deleted successfully", nil)
}

// afterWrite drops cached dashboards and records the write. A failed
// invalidation is logged; the write itself already succeeded.
func (h *UsageHandlers) afterWrite(r *http.Request, userID int64, operation string) {
	ctx := r.Context()
	if h.analytics != nil {
		if err := h.analytics.Invalidate(ctx, userID); err != nil {
			observability.FromContext(ctx).WithError(err).Warn("Failed to invalidate dashboard cache")
		}
	}
	for _, rec := range h.recorders {
		rec.RecordUsageWrite(ctx, operation)
	}
}

func parseListFilter(r *http.Request) (usage.ListFilter, error) {
	q := r.URL.Query()
	var (
		filter usage.ListFilter
		err    error
	)
	if s := q.Get("startDate"); s != "" {
		if filter.From, err = usage.ParseDate(s); err != nil {
			return filter, err
		}
	}
	if s := q.Get("endDate"); s != "" {
		if filter.To, err = usage.ParseDate(s); err != nil {
			return filter, err
		}
	}
	filter.AppName = q.Get("appName")
	if filter.Limit, err = httputil.ParseQueryInt(r, "limit", usage.DefaultListLimit); err != nil {
		return filter, err
	}
	if filter.Offset, err = httputil.ParseQueryInt(r, "offset", 0); err != nil {
		return filter, err
	}
	return filter, nil
}

// requireUser reads the caller set by the auth middleware
func requireUser(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := contextkeys.GetUserID(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required. Please provide a valid token.")
		return 0, false
	}
	return userID, true
}
