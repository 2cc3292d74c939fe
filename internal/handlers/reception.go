package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/bohania/reception-desk/internal/db"
	"github.com/bohania/reception-desk/internal/intake"
	"github.com/bohania/reception-desk/internal/models"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

// ReceptionHandler exposes the intake wizard and the reception register over
// HTTP. Wizard sessions are held in memory; a draft never touches the store
// until it finalizes.
type ReceptionHandler struct {
	engine *intake.Engine
	store  db.RecordStore

	mu       sync.RWMutex
	sessions map[string]*intake.Session
}

// NewReceptionHandler creates a reception handler.
func NewReceptionHandler(engine *intake.Engine, store db.RecordStore) *ReceptionHandler {
	return &ReceptionHandler{
		engine:   engine,
		store:    store,
		sessions: make(map[string]*intake.Session),
	}
}

// RegisterRoutes attaches all intake and register routes. perm wraps each
// route in a role permission check; a nil perm skips enforcement.
func (h *ReceptionHandler) RegisterRoutes(r *mux.Router, perm func(action string) func(http.Handler) http.Handler) {
	guard := func(action string, fn http.HandlerFunc) http.Handler {
		if perm == nil {
			return fn
		}
		return perm(action)(fn)
	}

	r.Handle("/api/intake", guard(models.ActionCreateReception, h.OpenIntake)).Methods(http.MethodPost)
	r.Handle("/api/intake/{sid}", guard(models.ActionCreateReception, h.GetSession)).Methods(http.MethodGet)
	r.Handle("/api/intake/{sid}", guard(models.ActionCreateReception, h.AbandonSession)).Methods(http.MethodDelete)
	r.Handle("/api/intake/{sid}/search", guard(models.ActionSearchVehicles, h.Search)).Methods(http.MethodGet)
	r.Handle("/api/intake/{sid}/select", guard(models.ActionCreateReception, h.SelectCandidate)).Methods(http.MethodPost)
	r.Handle("/api/intake/{sid}/identifier", guard(models.ActionCreateReception, h.SupplyIdentifier)).Methods(http.MethodPost)
	r.Handle("/api/intake/{sid}/new-vehicle", guard(models.ActionCreateReception, h.DeclareNewVehicle)).Methods(http.MethodPost)
	r.Handle("/api/intake/{sid}/contact", guard(models.ActionCreateReception, h.UpdateContact)).Methods(http.MethodPut)
	r.Handle("/api/intake/{sid}/documents", guard(models.ActionCreateReception, h.SetDocument)).Methods(http.MethodPut)
	r.Handle("/api/intake/{sid}/advance", guard(models.ActionCreateReception, h.Advance)).Methods(http.MethodPost)
	r.Handle("/api/intake/{sid}/retreat", guard(models.ActionCreateReception, h.Retreat)).Methods(http.MethodPost)
	r.Handle("/api/intake/{sid}/finalize", guard(models.ActionCreateReception, h.Finalize)).Methods(http.MethodPost)

	r.Handle("/api/reception", guard(models.ActionViewReception, h.ListEntries)).Methods(http.MethodGet)
	r.Handle("/api/reception/check-duplicate", guard(models.ActionSearchVehicles, h.CheckDuplicate)).Methods(http.MethodGet)
	r.Handle("/api/reception/arrivals", guard(models.ActionViewArrivals, h.ListArrivals)).Methods(http.MethodGet)
	r.Handle("/api/reception/{id}", guard(models.ActionViewReception, h.GetEntry)).Methods(http.MethodGet)
}

func (h *ReceptionHandler) session(r *http.Request) (*intake.Session, bool) {
	sid := mux.Vars(r)["sid"]
	h.mu.RLock()
	defer h.mu.RUnlock()
	session, ok := h.sessions[sid]
	return session, ok
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeIntakeError maps intake sentinel errors onto HTTP statuses.
func writeIntakeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, intake.ErrInvalidQuery),
		errors.Is(err, intake.ErrValidationFailed):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, intake.ErrDuplicateIdentifier),
		errors.Is(err, intake.ErrInvalidTransition),
		errors.Is(err, intake.ErrSessionFinalized):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, intake.ErrNoSuchCandidate):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, intake.ErrSessionAbandoned):
		http.Error(w, err.Error(), http.StatusGone)
	case errors.Is(err, intake.ErrCheckFailed):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// OpenIntake starts a wizard session for an arriving vehicle.
func (h *ReceptionHandler) OpenIntake(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Source        models.Source `json:"source"`
		Branch        string        `json:"branch"`
		ReceptionTime time.Time     `json:"vehicle_reception_time"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.ReceptionTime.IsZero() {
		req.ReceptionTime = time.Now()
	}

	session, err := h.engine.OpenIntake(req.Source, req.ReceptionTime, req.Branch)
	if err != nil {
		writeIntakeError(w, err)
		return
	}

	h.mu.Lock()
	h.sessions[session.ID()] = session
	h.mu.Unlock()

	writeJSON(w, http.StatusCreated, session.Snapshot())
}

// GetSession returns the wizard state for rendering.
func (h *ReceptionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(r)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

// AbandonSession drops the draft without persisting anything.
func (h *ReceptionHandler) AbandonSession(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(r)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	session.Abandon()

	h.mu.Lock()
	delete(h.sessions, mux.Vars(r)["sid"])
	h.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

// Search runs a vehicle lookup for the session.
func (h *ReceptionHandler) Search(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(r)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	results, err := session.SubmitQuery(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeIntakeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"candidates": results})
}

// SelectCandidate picks an existing vehicle and returns the reconciled
// contact draft.
func (h *ReceptionHandler) SelectCandidate(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(r)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	var req struct {
		CandidateID string `json:"candidate_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if _, err := session.SelectCandidate(r.Context(), req.CandidateID); err != nil {
		writeIntakeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

// SupplyIdentifier fills a missing reg no or VIN on the selected vehicle.
func (h *ReceptionHandler) SupplyIdentifier(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(r)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	var req struct {
		Kind  models.IdentifierKind `json:"kind"`
		Value string                `json:"value"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if err := session.SupplyIdentifier(r.Context(), req.Kind, req.Value); err != nil {
		writeIntakeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

// DeclareNewVehicle registers a brand-new vehicle after duplicate checks.
func (h *ReceptionHandler) DeclareNewVehicle(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(r)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	var req struct {
		RegNo    string `json:"vehicle_reg_no"`
		VIN      string `json:"vin"`
		EngineNo string `json:"engine_no"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	err := session.DeclareNewVehicle(r.Context(), intake.NewVehicleInput{
		RegNo:    req.RegNo,
		VIN:      req.VIN,
		EngineNo: req.EngineNo,
	})
	if err != nil {
		writeIntakeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

// UpdateContact applies a partial edit to the contact draft.
func (h *ReceptionHandler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(r)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	var update intake.ContactDraftUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if err := session.UpdateContactDraft(update); err != nil {
		writeIntakeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

// SetDocument records custody for one document.
func (h *ReceptionHandler) SetDocument(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(r)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	var req struct {
		Kind   models.DocumentKind   `json:"kind"`
		Status models.DocumentStatus `json:"status"`
		Reason string                `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	err := session.SetDocumentState(req.Kind, models.DocumentState{Status: req.Status, Reason: req.Reason})
	if err != nil {
		writeIntakeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

// Advance moves the wizard one stage forward.
func (h *ReceptionHandler) Advance(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(r)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if err := session.Advance(); err != nil {
		writeIntakeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

// Retreat steps the wizard one stage back.
func (h *ReceptionHandler) Retreat(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(r)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	if err := session.Retreat(); err != nil {
		writeIntakeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

// Finalize persists the draft as a reception entry. A repair warning is
// reported alongside the entry, never as a failure.
func (h *ReceptionHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	session, ok := h.session(r)
	if !ok {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	result, err := session.Finalize(r.Context())
	if err != nil {
		writeIntakeError(w, err)
		return
	}

	body := map[string]interface{}{"entry": result.Entry}
	if result.RepairWarning != nil {
		body["warning"] = result.RepairWarning.Error()
	}
	writeJSON(w, http.StatusCreated, body)
}

// ListEntries returns the reception register, filtered.
func (h *ReceptionHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := models.EntryFilter{
		Branch:     q.Get("branch"),
		Source:     models.Source(q.Get("source")),
		Status:     models.EntryStatus(q.Get("status")),
		DateFilter: models.DateFilter(q.Get("date")),
	}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse("2006-01-02", from)
		if err != nil {
			http.Error(w, "Invalid from date, want YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		filter.From = t
	}
	if to := q.Get("to"); to != "" {
		t, err := time.Parse("2006-01-02", to)
		if err != nil {
			http.Error(w, "Invalid to date, want YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		filter.To = t
	}

	entries, err := h.store.ListReceptionEntries(r.Context(), filter)
	if err != nil {
		log.WithError(err).Error("failed to list reception entries")
		http.Error(w, "Failed to list entries", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"count":   len(entries),
	})
}

// GetEntry returns one register entry.
func (h *ReceptionHandler) GetEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.store.GetReceptionEntry(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			http.Error(w, "Entry not found", http.StatusNotFound)
			return
		}
		log.WithError(err).Error("failed to fetch reception entry")
		http.Error(w, "Failed to fetch entry", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// CheckDuplicate answers whether the given identifiers are already
// registered. The outcome is three-valued: a lookup failure is reported as
// unavailable, not as "no duplicate".
func (h *ReceptionHandler) CheckDuplicate(w http.ResponseWriter, r *http.Request) {
	regNo := r.URL.Query().Get("reg_no")
	vin := r.URL.Query().Get("vin")
	if regNo == "" && vin == "" {
		http.Error(w, "reg_no or vin required", http.StatusBadRequest)
		return
	}

	result := map[string]bool{"duplicate": false}
	if regNo != "" {
		dup, err := h.engine.CheckDuplicate(r.Context(), models.IdentifierRegNo, regNo)
		if err != nil {
			writeIntakeError(w, err)
			return
		}
		result["reg_no_exists"] = dup
		result["duplicate"] = result["duplicate"] || dup
	}
	if vin != "" {
		dup, err := h.engine.CheckDuplicate(r.Context(), models.IdentifierVIN, vin)
		if err != nil {
			writeIntakeError(w, err)
			return
		}
		result["vin_exists"] = dup
		result["duplicate"] = result["duplicate"] || dup
	}
	writeJSON(w, http.StatusOK, result)
}

// ListArrivals returns pending drop-off announcements.
func (h *ReceptionHandler) ListArrivals(w http.ResponseWriter, r *http.Request) {
	arrivals, err := h.store.ListArrivals(r.Context())
	if err != nil {
		log.WithError(err).Error("failed to list arrivals")
		http.Error(w, "Failed to list arrivals", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"arrivals": arrivals,
		"count":    len(arrivals),
	})
}

// Health reports service liveness.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
