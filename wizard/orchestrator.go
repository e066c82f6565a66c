/*
orchestrator.go - The wizard state machine

PURPOSE:
  Owns the shared form state, sequences the six steps, invokes the step
  validators before allowing transitions, and triggers the draft store.
  Terminal states are "saved" (save action succeeded, draft cleared) and
  "cancelled" (draft cleared, unattached temp documents deleted
  best-effort).

TRANSITIONS:
  Advance: allowed only when the current step's validator returns no
           errors.
  Retreat: always allowed; never discards data already entered for later
           steps.

AUTOSAVE:
  Every mutation in create mode schedules a debounced snapshot; a new
  mutation resets the timer. On construction in create mode, an existing
  snapshot can be restored: documents survive only when fully uploaded
  with a storage path (upload sessions are not resumable).

SEE ALSO:
  - validate.go: the per-step validators run on Advance and Save
  - autosave.go: the debounce scheduler
*/
package wizard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/issuance-engine/payment"
)

// =============================================================================
// CONSTRUCTION
// =============================================================================

// Config wires a wizard session. Store and Scheduler are required;
// Uploader and SaveAction may be nil until the respective step is reached.
type Config struct {
	Key        string
	Mode       Mode
	Store      DraftStore
	Scheduler  SnapshotScheduler
	Uploader   Uploader
	SaveAction SaveAction
	Logger     *zap.Logger

	// Existing hydrates the draft from a persisted policy (edit mode).
	Existing *PolicyDraft

	// Restore hydrates from the draft store instead (create mode). The
	// caller asks the operator first; see Restorable.
	Restore bool
}

// Wizard is one operator session. Methods are safe for concurrent use:
// the shared state is logically single-threaded but HTTP handlers may race.
type Wizard struct {
	mu    sync.Mutex
	draft *PolicyDraft

	store      DraftStore
	sched      SnapshotScheduler
	uploader   Uploader
	saveAction SaveAction
	log        *zap.Logger

	validators map[Step]StepValidator
	terminal   bool
}

// Restorable reports whether a snapshot exists for the key and when it was
// last saved, so the operator can be asked synchronously about restoring.
func Restorable(ctx context.Context, store DraftStore, key string) (time.Time, bool, error) {
	return store.PeekTimestamp(ctx, key)
}

// New starts a wizard session.
func New(ctx context.Context, cfg Config) (*Wizard, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("wizard: draft store is required")
	}
	if cfg.Scheduler == nil {
		cfg.Scheduler = NewDebouncedScheduler(DefaultAutosaveDelay)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeCreate
	}

	w := &Wizard{
		store:      cfg.Store,
		sched:      cfg.Scheduler,
		uploader:   cfg.Uploader,
		saveAction: cfg.SaveAction,
		log:        cfg.Logger,
		validators: Validators(),
	}

	switch {
	case cfg.Restore:
		restored, ok, err := cfg.Store.Load(ctx, cfg.Key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrNoRestorableDraft
		}
		dropped := SanitizeRestored(restored)
		if dropped > 0 {
			restored.AddWarning(WarnDocumentsDropped,
				fmt.Sprintf("%d document(s) were not fully uploaded and must be re-uploaded", dropped))
		}
		restored.Key = cfg.Key
		restored.Mode = ModeCreate
		w.draft = restored

	case cfg.Existing != nil:
		cfg.Existing.Key = cfg.Key
		cfg.Existing.Mode = ModeEdit
		if cfg.Existing.CurrentStep < FirstStep {
			cfg.Existing.CurrentStep = FirstStep
		}
		w.draft = cfg.Existing

	default:
		w.draft = &PolicyDraft{
			Key:         cfg.Key,
			Mode:        cfg.Mode,
			CurrentStep: FirstStep,
		}
	}

	return w, nil
}

// SanitizeRestored drops documents that do not report an uploaded status
// with a storage path. In-flight and failed uploads are unrecoverable
// because the underlying upload session is not resumable. Returns how many
// were dropped.
func SanitizeRestored(d *PolicyDraft) int {
	kept := d.Documents[:0]
	dropped := 0
	for _, doc := range d.Documents {
		if doc.Status == DocUploaded && doc.StoragePath != "" {
			kept = append(kept, doc)
		} else {
			dropped++
		}
	}
	d.Documents = kept
	return dropped
}

// =============================================================================
// STATE ACCESS
// =============================================================================

// Draft returns the live aggregate. Callers must not retain it across
// mutations.
func (w *Wizard) Draft() *PolicyDraft {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft
}

// CurrentStep returns the wizard position.
func (w *Wizard) CurrentStep() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft.CurrentStep
}

// =============================================================================
// TRANSITIONS
// =============================================================================

// Advance validates the current step and moves forward on success. The
// field errors are returned either way so the caller can render them.
func (w *Wizard) Advance() (FieldErrors, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.terminal {
		return nil, ErrAlreadyTerminal
	}

	step := w.draft.CurrentStep
	if errs := w.validators[step](w.draft); len(errs) > 0 {
		return errs, &StepBlockedError{Step: step, Fields: errs}
	}
	if step < LastStep {
		w.draft.CurrentStep = step + 1
		w.touchedLocked()
	}
	return nil, nil
}

// Retreat moves back one step. Always allowed; later-step data stays.
func (w *Wizard) Retreat() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.terminal {
		return
	}
	if w.draft.CurrentStep > FirstStep {
		w.draft.CurrentStep--
		w.touchedLocked()
	}
}

// =============================================================================
// STEP MUTATORS
// =============================================================================

// SetInsured records the step-1 selection.
func (w *Wizard) SetInsured(p InsuredParty) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.draft.Insured = &p
	w.touchedLocked()
}

// SetBasicData records the step-2 payload. Changing the branch here does
// not discard an already-captured branch payload; the step-3 validator
// surfaces the mismatch when the operator returns to it.
func (w *Wizard) SetBasicData(b BasicData) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.draft.Basic = b
	w.touchedLocked()
}

// SetBranchData records the step-3 payload. The tag must match the
// selected branch.
func (w *Wizard) SetBranchData(bd BranchData) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.draft.Basic.Branch != "" && bd.BranchKind() != w.draft.Basic.Branch {
		return fmt.Errorf("%w: payload %q, policy %q",
			ErrBranchMismatch, bd.BranchKind(), w.draft.Basic.Branch)
	}
	w.draft.Branch = bd
	w.touchedLocked()
	return nil
}

// UpdateBranch runs fn against the current branch payload under the
// session lock and schedules a snapshot on success. Callers must mutate
// the payload only through here so mutations never race an in-flight
// snapshot encode.
func (w *Wizard) UpdateBranch(fn func(BranchData) error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := fn(w.draft.Branch); err != nil {
		return err
	}
	w.touchedLocked()
	return nil
}

// SetPlan replaces the payment arrangement. Once any installment is paid
// the generation parameters are frozen: changes to them are rejected and
// the paid schedule is carried over unchanged.
func (w *Wizard) SetPlan(p payment.Plan) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	current := w.draft.Plan
	if locked := payment.LockedFields(current, p); len(locked) > 0 {
		return &PaymentLockedError{Fields: locked}
	}
	if current != nil && current.AnyPaid() {
		// Parameters unchanged; keep the existing schedule with its paid
		// markers rather than trusting the client copy.
		p.Installments = current.Installments
	}
	w.draft.Plan = &p
	w.touchedLocked()
	return nil
}

// GeneratePlan (re)builds the installment schedule from the plan's credit
// parameters. Refused once anything is paid.
func (w *Wizard) GeneratePlan() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.draft.Plan == nil {
		return fmt.Errorf("no payment plan to generate")
	}
	if err := w.draft.Plan.Regenerate(); err != nil {
		return err
	}
	w.touchedLocked()
	return nil
}

// OverrideInstallment applies an operator adjustment to one installment.
func (w *Wizard) OverrideInstallment(number int, o payment.Override) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.draft.Plan == nil {
		return fmt.Errorf("no payment plan to override")
	}
	if err := w.draft.Plan.ApplyOverride(number, o); err != nil {
		return err
	}
	w.touchedLocked()
	return nil
}

// ComputeCommission derives the money triple from the current premium,
// mode and share. Always recomputed, never cached: the calculator is pure.
func (w *Wizard) ComputeCommission(factors *payment.FactorTable) payment.CommissionResult {
	w.mu.Lock()
	defer w.mu.Unlock()

	mode := payment.ModeCash
	if w.draft.Plan != nil {
		mode = w.draft.Plan.Mode
	}
	result := payment.ComputeCommission(w.draft.Basic.TotalPremium, mode, factors, w.draft.Basic.AgentShare)
	if w.draft.Plan != nil {
		w.draft.Plan.Commission = &result
		w.touchedLocked()
	}
	return result
}

// =============================================================================
// DOCUMENTS
// =============================================================================

// AddDocument registers a new upload in "uploading" state and returns it.
func (w *Wizard) AddDocument(id, name string) Document {
	w.mu.Lock()
	defer w.mu.Unlock()
	doc := Document{ID: id, Name: name, Status: DocUploading}
	w.draft.Documents = append(w.draft.Documents, doc)
	w.touchedLocked()
	return doc
}

// CompleteDocument marks an upload as finished.
func (w *Wizard) CompleteDocument(id string, obj StoredObject) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.draft.Documents {
		if w.draft.Documents[i].ID == id {
			w.draft.Documents[i].Status = DocUploaded
			w.draft.Documents[i].StoragePath = obj.StoragePath
			w.draft.Documents[i].PublicURL = obj.PublicURL
			w.draft.Documents[i].Error = ""
			w.touchedLocked()
			return
		}
	}
}

// FailDocument attaches an upload failure to its entry. Other uploads are
// unaffected.
func (w *Wizard) FailDocument(id string, uploadErr error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.draft.Documents {
		if w.draft.Documents[i].ID == id {
			w.draft.Documents[i].Status = DocError
			w.draft.Documents[i].Error = uploadErr.Error()
			w.touchedLocked()
			return
		}
	}
}

// RemoveDocument drops a document from the draft and, when it already
// reached blob storage without being attached to a persisted policy,
// deletes the blob best-effort.
func (w *Wizard) RemoveDocument(ctx context.Context, id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for i := range w.draft.Documents {
		if w.draft.Documents[i].ID != id {
			continue
		}
		doc := w.draft.Documents[i]
		w.draft.Documents = append(w.draft.Documents[:i], w.draft.Documents[i+1:]...)
		w.touchedLocked()
		if doc.Status == DocUploaded && !doc.Persisted && w.uploader != nil {
			if err := w.uploader.Delete(ctx, doc.StoragePath); err != nil {
				w.log.Warn("temp document cleanup failed",
					zap.String("storage_path", doc.StoragePath), zap.Error(err))
			}
		}
		return
	}
}

// =============================================================================
// SUMMARY AND TERMINAL STATES
// =============================================================================

// Warnings recomputes the summary-step soft notices.
func (w *Wizard) Warnings() []Warning {
	w.mu.Lock()
	defer w.mu.Unlock()
	return SummaryWarnings(w.draft)
}

// Save re-validates every step, hands the draft to the save action and, on
// success, clears the draft store. On failure the draft remains intact so
// the attempt can be repeated; no automatic retry.
func (w *Wizard) Save(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.terminal {
		return ErrAlreadyTerminal
	}
	if w.saveAction == nil {
		return fmt.Errorf("no save action configured")
	}

	for step := FirstStep; step < StepSummary; step++ {
		if errs := w.validators[step](w.draft); len(errs) > 0 {
			return &StepBlockedError{Step: step, Fields: errs}
		}
	}
	w.draft.Warnings = SummaryWarnings(w.draft)

	if err := w.saveAction.Save(ctx, w.draft); err != nil {
		w.log.Error("save action failed", zap.String("key", w.draft.Key), zap.Error(err))
		return err
	}

	w.sched.Cancel()
	if err := w.store.Clear(ctx, w.draft.Key); err != nil {
		w.log.Warn("draft clear after save failed", zap.String("key", w.draft.Key), zap.Error(err))
	}
	w.terminal = true
	return nil
}

// Cancel abandons the session: the draft store is cleared (create mode)
// and uploaded temp documents without a persisted policy id are deleted
// best-effort. Cleanup failures are swallowed; orphaned blobs are purged
// out-of-band.
func (w *Wizard) Cancel(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.terminal {
		return
	}
	w.sched.Cancel()

	if w.draft.Mode == ModeCreate {
		if err := w.store.Clear(ctx, w.draft.Key); err != nil {
			w.log.Warn("draft clear on cancel failed", zap.String("key", w.draft.Key), zap.Error(err))
		}
	}

	if w.uploader != nil {
		for _, doc := range w.draft.Documents {
			if doc.Status == DocUploaded && !doc.Persisted && doc.StoragePath != "" {
				if err := w.uploader.Delete(ctx, doc.StoragePath); err != nil {
					w.log.Warn("temp document cleanup failed",
						zap.String("storage_path", doc.StoragePath), zap.Error(err))
				}
			}
		}
	}
	w.terminal = true
}

// Terminal reports whether the session reached saved or cancelled.
func (w *Wizard) Terminal() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.terminal
}

// =============================================================================
// AUTOSAVE
// =============================================================================

// touchedLocked schedules a debounced snapshot. Only create mode
// autosaves; edit mode works directly against the persisted policy.
func (w *Wizard) touchedLocked() {
	if w.terminal || w.draft.Mode != ModeCreate {
		return
	}
	key := w.draft.Key
	w.sched.Schedule(func() {
		// The codec walks the whole draft, so the store call stays
		// inside the critical section: mutators must not run while a
		// snapshot encodes.
		w.mu.Lock()
		defer w.mu.Unlock()
		if w.terminal {
			return
		}
		if err := w.store.Save(context.Background(), key, w.draft); err != nil {
			w.log.Warn("draft autosave failed", zap.String("key", key), zap.Error(err))
		}
	})
}
