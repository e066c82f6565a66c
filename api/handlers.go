/*
handlers.go - HTTP API handlers for the policy issuance wizard

PURPOSE:
  Exposes the wizard engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Sessions:
    POST   /api/drafts                       Start a wizard session
    GET    /api/drafts/{key}                 Current session state
    POST   /api/drafts/{key}/save           Final save
    POST   /api/drafts/{key}/cancel         Abandon the session

  Steps:
    PUT    /api/drafts/{key}/steps/{n}      Submit step data
    POST   /api/drafts/{key}/advance        Validate current step, move on
    POST   /api/drafts/{key}/retreat        Move back, keep data

  Payment:
    POST   /api/drafts/{key}/plan           Generate installment schedule
    POST   /api/drafts/{key}/plan/override  Adjust one installment
    POST   /api/drafts/{key}/commission     Recompute the money triple

  Coverage levels:
    POST   /api/drafts/{key}/levels             Create level
    PUT    /api/drafts/{key}/levels/{id}        Update level
    DELETE /api/drafts/{key}/levels/{id}        Delete level (refused in use)
    POST   /api/drafts/{key}/assignments        Assign insured party
    DELETE /api/drafts/{key}/assignments/{clientId}  Unassign

  Documents:
    POST   /api/drafts/{key}/documents          Upload (multipart)
    DELETE /api/drafts/{key}/documents/{id}     Remove

  Reference data:
    GET    /api/catalogs/{kind}              Catalog items
    GET    /api/clients?q=                   Insured-party search

ARCHITECTURE:
  Handler holds the collaborators and a registry of live sessions keyed
  by draft key. A session is one wizard.Wizard; HTTP requests for the
  same key share it.

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Session or resource not found
  - 409: Conflict (paid lock, duplicate assignment, level in use)
  - 4xx/502: Save-action failures per the taxonomy in save.go

SEE ALSO:
  - dto.go: Request/response data structures
  - save.go: Save-failure taxonomy
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/issuance-engine/branch"
	"github.com/warp/issuance-engine/catalog"
	"github.com/warp/issuance-engine/coverage"
	"github.com/warp/issuance-engine/docs"
	"github.com/warp/issuance-engine/payment"
	"github.com/warp/issuance-engine/wizard"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      wizard.DraftStore
	Catalogs   catalog.Service
	Clients    catalog.ClientSearch
	Factors    payment.FactorSource
	Uploader   wizard.Uploader
	SaveAction wizard.SaveAction
	Codec      wizard.DraftCodec
	Log        *zap.Logger

	// AutosaveDelay overrides the default snapshot debounce when set.
	AutosaveDelay time.Duration

	tracker *docs.Tracker

	mu       sync.Mutex
	sessions map[string]*wizard.Wizard
}

// NewHandler creates a handler with an empty session registry.
func NewHandler(h Handler) *Handler {
	if h.Log == nil {
		h.Log = zap.NewNop()
	}
	h.tracker = docs.NewTracker(h.Uploader, h.Log)
	h.sessions = make(map[string]*wizard.Wizard)
	return &h
}

func (h *Handler) session(key string) (*wizard.Wizard, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	w, ok := h.sessions[key]
	return w, ok
}

func (h *Handler) lookup(w http.ResponseWriter, r *http.Request) (*wizard.Wizard, string, bool) {
	key := chi.URLParam(r, "key")
	wiz, ok := h.session(key)
	if !ok {
		writeError(w, http.StatusNotFound, "Draft not found", wizard.ErrDraftNotFound)
		return nil, key, false
	}
	return wiz, key, true
}

// =============================================================================
// SESSION HANDLERS
// =============================================================================

// StartDraft opens a wizard session.
// POST /api/drafts
func (h *Handler) StartDraft(w http.ResponseWriter, r *http.Request) {
	var req StartDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	key := req.Key
	if key == "" {
		key = uuid.New().String()
	}

	mode := wizard.ModeCreate
	if req.Mode == string(wizard.ModeEdit) {
		mode = wizard.ModeEdit
	}

	cfg := wizard.Config{
		Key:        key,
		Mode:       mode,
		Store:      h.Store,
		Scheduler:  wizard.NewDebouncedScheduler(h.autosaveDelay()),
		Uploader:   h.Uploader,
		SaveAction: h.SaveAction,
		Logger:     h.Log,
		Restore:    req.Restore,
	}

	if mode == wizard.ModeEdit {
		if len(req.Existing) == 0 {
			writeError(w, http.StatusBadRequest, "Edit mode requires an existing policy snapshot", nil)
			return
		}
		existing, err := h.Codec.Decode(req.Existing)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid policy snapshot", err)
			return
		}
		cfg.Existing = existing
	}

	// Surface the pending snapshot so the client can offer a restore
	// prompt before re-posting with restore=true.
	restorableAt := ""
	if mode == wizard.ModeCreate && !req.Restore {
		if at, ok, err := wizard.Restorable(r.Context(), h.Store, key); err == nil && ok {
			restorableAt = at.Format(time.RFC3339)
		}
	}

	wiz, err := wizard.New(r.Context(), cfg)
	if err != nil {
		if errors.Is(err, wizard.ErrNoRestorableDraft) {
			writeError(w, http.StatusNotFound, "No snapshot to restore", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to start session", err)
		return
	}

	h.mu.Lock()
	h.sessions[key] = wiz
	h.mu.Unlock()

	dto := h.toDraftDTO(wiz)
	dto.RestorableSavedAt = restorableAt
	writeJSON(w, http.StatusCreated, dto)
}

// GetDraft returns the current session state.
// GET /api/drafts/{key}
func (h *Handler) GetDraft(w http.ResponseWriter, r *http.Request) {
	wiz, _, ok := h.lookup(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.toDraftDTO(wiz))
}

// =============================================================================
// STEP HANDLERS
// =============================================================================

// SubmitStep records one step's payload without moving the cursor.
// PUT /api/drafts/{key}/steps/{n}
func (h *Handler) SubmitStep(w http.ResponseWriter, r *http.Request) {
	wiz, _, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var step wizard.Step
	if _, err := fmt.Sscanf(chi.URLParam(r, "step"), "%d", &step); err != nil ||
		step < wizard.FirstStep || step > wizard.StepSummary {
		writeError(w, http.StatusBadRequest, "Invalid step number", nil)
		return
	}

	var req StepSubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	switch step {
	case wizard.StepInsuredSearch:
		if req.Insured == nil {
			writeError(w, http.StatusBadRequest, "Missing insured payload", nil)
			return
		}
		wiz.SetInsured(*req.Insured)

	case wizard.StepBasicData:
		if req.Basic == nil {
			writeError(w, http.StatusBadRequest, "Missing basic data payload", nil)
			return
		}
		wiz.SetBasicData(*req.Basic)

	case wizard.StepBranchData:
		if len(req.Branch) == 0 {
			writeError(w, http.StatusBadRequest, "Missing branch payload", nil)
			return
		}
		kind := wiz.Draft().Basic.Branch
		data, err := branch.Decode(kind, req.Branch)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid branch payload", err)
			return
		}
		if err := wiz.SetBranchData(data); err != nil {
			writeDomainError(w, err)
			return
		}

	case wizard.StepPaymentPlan:
		if len(req.Plan) == 0 {
			writeError(w, http.StatusBadRequest, "Missing plan payload", nil)
			return
		}
		var plan payment.Plan
		if err := json.Unmarshal(req.Plan, &plan); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid plan payload", err)
			return
		}
		if err := wiz.SetPlan(plan); err != nil {
			writeDomainError(w, err)
			return
		}

	default:
		// Documents and summary have dedicated endpoints.
		writeError(w, http.StatusBadRequest, "Step has no direct payload", nil)
		return
	}

	writeJSON(w, http.StatusOK, h.toDraftDTO(wiz))
}

// Advance validates the current step and moves forward on success.
// POST /api/drafts/{key}/advance
func (h *Handler) Advance(w http.ResponseWriter, r *http.Request) {
	wiz, _, ok := h.lookup(w, r)
	if !ok {
		return
	}

	fields, err := wiz.Advance()
	if err != nil {
		if errors.Is(err, wizard.ErrStepBlocked) {
			writeJSON(w, http.StatusBadRequest, StepResultDTO{
				CurrentStep: wiz.CurrentStep(),
				StepName:    wiz.CurrentStep().String(),
				Blocked:     true,
				Errors:      fields,
			})
			return
		}
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, StepResultDTO{
		CurrentStep: wiz.CurrentStep(),
		StepName:    wiz.CurrentStep().String(),
	})
}

// Retreat moves one step back. Captured data is kept.
// POST /api/drafts/{key}/retreat
func (h *Handler) Retreat(w http.ResponseWriter, r *http.Request) {
	wiz, _, ok := h.lookup(w, r)
	if !ok {
		return
	}
	wiz.Retreat()
	writeJSON(w, http.StatusOK, StepResultDTO{
		CurrentStep: wiz.CurrentStep(),
		StepName:    wiz.CurrentStep().String(),
	})
}

// =============================================================================
// PAYMENT HANDLERS
// =============================================================================

// GeneratePlan (re)builds the installment schedule. An optional plan body
// replaces the parameters first.
// POST /api/drafts/{key}/plan
func (h *Handler) GeneratePlan(w http.ResponseWriter, r *http.Request) {
	wiz, _, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if r.ContentLength != 0 {
		var plan payment.Plan
		if err := json.NewDecoder(r.Body).Decode(&plan); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid plan payload", err)
			return
		}
		if err := wiz.SetPlan(plan); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	if err := wiz.GeneratePlan(); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wiz.Draft().Plan)
}

// OverrideInstallment adjusts amount or due date of one installment.
// POST /api/drafts/{key}/plan/override
func (h *Handler) OverrideInstallment(w http.ResponseWriter, r *http.Request) {
	wiz, _, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var req OverrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var o payment.Override
	if req.Amount != nil {
		amt, err := decimal.NewFromString(*req.Amount)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid amount", err)
			return
		}
		o.Amount = &amt
	}
	if req.DueDate != nil {
		due, err := time.Parse("2006-01-02", *req.DueDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid due date", err)
			return
		}
		o.DueDate = &due
	}

	if err := wiz.OverrideInstallment(req.Number, o); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wiz.Draft().Plan)
}

// ComputeCommission recomputes the money triple from the current premium.
// POST /api/drafts/{key}/commission
func (h *Handler) ComputeCommission(w http.ResponseWriter, r *http.Request) {
	wiz, _, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var table *payment.FactorTable
	if h.Factors != nil {
		productID := wiz.Draft().Basic.ProductID
		t, err := h.Factors.FactorsFor(r.Context(), productID)
		if err != nil {
			// Legacy fallback; the result carries the degraded flag.
			h.Log.Warn("factor lookup failed",
				zap.String("product_id", productID), zap.Error(err))
		} else {
			table = t
		}
	}

	writeJSON(w, http.StatusOK, wiz.ComputeCommission(table))
}

// =============================================================================
// COVERAGE LEVEL HANDLERS
// =============================================================================

// levelBranch is satisfied by branch payloads built on coverage tiers.
type levelBranch interface {
	SaveLevel(coverage.Level) (coverage.Level, error)
	DeleteLevel(string) error
	Assign(coverage.Assignment) error
	Unassign(string) error
}

var errNoLevels = errors.New("branch has no coverage levels")

// updateLevels runs fn against the branch's tier set through the wizard,
// so the mutation happens under the session lock and rides the autosave
// path.
func (h *Handler) updateLevels(w http.ResponseWriter, wiz *wizard.Wizard, fn func(levelBranch) error) bool {
	err := wiz.UpdateBranch(func(bd wizard.BranchData) error {
		lb, ok := bd.(levelBranch)
		if !ok {
			return errNoLevels
		}
		return fn(lb)
	})
	if err != nil {
		if errors.Is(err, errNoLevels) {
			writeError(w, http.StatusBadRequest, "Branch has no coverage levels", nil)
			return false
		}
		writeDomainError(w, err)
		return false
	}
	return true
}

// SaveLevel creates or updates a coverage level.
// POST /api/drafts/{key}/levels
// PUT  /api/drafts/{key}/levels/{id}
func (h *Handler) SaveLevel(w http.ResponseWriter, r *http.Request) {
	wiz, _, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var level coverage.Level
	if err := json.NewDecoder(r.Body).Decode(&level); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid level payload", err)
		return
	}
	if id := chi.URLParam(r, "id"); id != "" {
		level.ID = id
	}

	var saved coverage.Level
	if !h.updateLevels(w, wiz, func(lb levelBranch) error {
		var err error
		saved, err = lb.SaveLevel(level)
		return err
	}) {
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

// DeleteLevel removes a coverage level. Refused while insured parties
// are assigned to it.
// DELETE /api/drafts/{key}/levels/{id}
func (h *Handler) DeleteLevel(w http.ResponseWriter, r *http.Request) {
	wiz, _, ok := h.lookup(w, r)
	if !ok {
		return
	}

	id := chi.URLParam(r, "id")
	if !h.updateLevels(w, wiz, func(lb levelBranch) error {
		return lb.DeleteLevel(id)
	}) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateAssignment links an insured party to a level.
// POST /api/drafts/{key}/assignments
func (h *Handler) CreateAssignment(w http.ResponseWriter, r *http.Request) {
	wiz, _, ok := h.lookup(w, r)
	if !ok {
		return
	}

	var a coverage.Assignment
	if err := json.NewDecoder(r.Body).Decode(&a); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid assignment payload", err)
		return
	}

	if !h.updateLevels(w, wiz, func(lb levelBranch) error {
		return lb.Assign(a)
	}) {
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

// DeleteAssignment unlinks an insured party.
// DELETE /api/drafts/{key}/assignments/{clientId}
func (h *Handler) DeleteAssignment(w http.ResponseWriter, r *http.Request) {
	wiz, _, ok := h.lookup(w, r)
	if !ok {
		return
	}

	clientID := chi.URLParam(r, "clientId")
	if !h.updateLevels(w, wiz, func(lb levelBranch) error {
		return lb.Unassign(clientID)
	}) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// DOCUMENT HANDLERS
// =============================================================================

// UploadDocument starts an async upload and returns the tracking entry.
// POST /api/drafts/{key}/documents (multipart, field "file")
func (h *Handler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	wiz, _, ok := h.lookup(w, r)
	if !ok {
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing file", err)
		return
	}
	defer file.Close()

	// The upload outlives this request, so buffer the part and detach
	// from the request context.
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, file); err != nil {
		writeError(w, http.StatusBadRequest, "Unreadable file", err)
		return
	}

	doc := h.tracker.Start(context.Background(), wiz, header.Filename, &buf)
	writeJSON(w, http.StatusAccepted, doc)
}

// DeleteDocument removes a tracked document, deleting its blob if any.
// DELETE /api/drafts/{key}/documents/{id}
func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	wiz, _, ok := h.lookup(w, r)
	if !ok {
		return
	}
	wiz.RemoveDocument(r.Context(), chi.URLParam(r, "id"))
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// TERMINAL HANDLERS
// =============================================================================

// SaveDraft re-validates everything and hands the draft to the save
// action. Failures are classified through the save taxonomy.
// POST /api/drafts/{key}/save
func (h *Handler) SaveDraft(w http.ResponseWriter, r *http.Request) {
	wiz, key, ok := h.lookup(w, r)
	if !ok {
		return
	}

	if err := wiz.Save(r.Context()); err != nil {
		var blocked *wizard.StepBlockedError
		if errors.As(err, &blocked) {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:  fmt.Sprintf("Step %d is not valid", blocked.Step),
				Fields: blocked.Fields,
			})
			return
		}
		if errors.Is(err, wizard.ErrAlreadyTerminal) {
			writeError(w, http.StatusConflict, "Session already finished", err)
			return
		}
		failure := ClassifySaveError(err)
		writeJSON(w, failure.Status, failure)
		return
	}

	h.mu.Lock()
	delete(h.sessions, key)
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"saved": true})
}

// CancelDraft abandons the session and cleans up.
// POST /api/drafts/{key}/cancel
func (h *Handler) CancelDraft(w http.ResponseWriter, r *http.Request) {
	wiz, key, ok := h.lookup(w, r)
	if !ok {
		return
	}

	wiz.Cancel(r.Context())

	h.mu.Lock()
	delete(h.sessions, key)
	h.mu.Unlock()

	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// REFERENCE DATA HANDLERS
// =============================================================================

// ListCatalog returns the active items of one catalog.
// GET /api/catalogs/{kind}
func (h *Handler) ListCatalog(w http.ResponseWriter, r *http.Request) {
	kind := catalog.Kind(chi.URLParam(r, "kind"))
	items, err := h.Catalogs.List(r.Context(), kind)
	if err != nil {
		if errors.Is(err, catalog.ErrUnknownKind) {
			writeError(w, http.StatusBadRequest, "Unknown catalog", err)
			return
		}
		// Degrade to an empty list; the wizard can proceed and the
		// operator retries from the UI.
		h.Log.Warn("catalog fetch failed", zap.String("kind", string(kind)), zap.Error(err))
		items = nil
	}
	if items == nil {
		items = []catalog.Item{}
	}
	writeJSON(w, http.StatusOK, items)
}

// SearchClients searches insured-party candidates.
// GET /api/clients?q=
func (h *Handler) SearchClients(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.Clients.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Search failed", err)
		return
	}
	if candidates == nil {
		candidates = []catalog.Candidate{}
	}
	writeJSON(w, http.StatusOK, candidates)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) autosaveDelay() time.Duration {
	if h.AutosaveDelay > 0 {
		return h.AutosaveDelay
	}
	return wizard.DefaultAutosaveDelay
}

func (h *Handler) toDraftDTO(wiz *wizard.Wizard) DraftDTO {
	d := wiz.Draft()
	dto := DraftDTO{
		Key:          d.Key,
		Mode:         d.Mode,
		CurrentStep:  d.CurrentStep,
		StepName:     d.CurrentStep.String(),
		VisibleSteps: d.VisibleSteps(),
		Draft:        d,
		Warnings:     wiz.Warnings(),
	}
	if d.Branch != nil {
		dto.BranchKind = d.Branch.BranchKind()
		if raw, err := json.Marshal(d.Branch); err == nil {
			dto.Branch = raw
		}
	}
	return dto
}

// writeDomainError maps typed domain errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var locked *wizard.PaymentLockedError
	if errors.As(err, &locked) {
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "Payment parameters are locked",
			Details: err.Error(),
		})
		return
	}

	var invalid *coverage.InvalidLevelError
	if errors.As(err, &invalid) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:  "Invalid coverage level",
			Fields: invalid.Fields,
		})
		return
	}

	switch {
	case wizard.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case wizard.IsConflict(err):
		writeError(w, http.StatusConflict, "Conflict", err)
	case wizard.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
