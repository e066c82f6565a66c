package wizard_test

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/issuance-engine/branch"
	"github.com/warp/issuance-engine/coverage"
	"github.com/warp/issuance-engine/payment"
	"github.com/warp/issuance-engine/wizard"
	draftstore "github.com/warp/issuance-engine/wizard/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fakeSaveAction struct {
	err   error
	calls int
}

func (f *fakeSaveAction) Save(context.Context, *wizard.PolicyDraft) error {
	f.calls++
	return f.err
}

type fakeUploader struct {
	deleted []string
}

func (f *fakeUploader) Upload(context.Context, string, io.Reader) (wizard.StoredObject, error) {
	panic("not used")
}

func (f *fakeUploader) Delete(_ context.Context, storagePath string) error {
	f.deleted = append(f.deleted, storagePath)
	return nil
}

type testEnv struct {
	w     *wizard.Wizard
	store *draftstore.Memory
	sched *wizard.ManualScheduler
	save  *fakeSaveAction
}

func newTestWizard(t *testing.T, cfg wizard.Config) testEnv {
	t.Helper()
	env := testEnv{
		store: draftstore.NewMemory(branch.NewCodec()),
		sched: wizard.NewManualScheduler(),
		save:  &fakeSaveAction{},
	}
	if cfg.Key == "" {
		cfg.Key = "session-1"
	}
	cfg.Store = env.store
	cfg.Scheduler = env.sched
	if cfg.SaveAction == nil {
		cfg.SaveAction = env.save
	}
	w, err := wizard.New(context.Background(), cfg)
	require.NoError(t, err)
	env.w = w
	return env
}

func validBasic() wizard.BasicData {
	return wizard.BasicData{
		PolicyNumber: "POL-001",
		InsurerID:    "ins-1",
		ProductID:    "prod-1",
		Branch:       "accident",
		PolicyStart:  time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		PolicyEnd:    time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC),
		TotalPremium: decimal.NewFromInt(10000),
		AgentShare:   decimal.NewFromFloat(0.5),
	}
}

func validAccidentData(t *testing.T) *branch.AccidentData {
	t.Helper()
	data := &branch.AccidentData{}
	level, err := data.SaveLevel(coverage.Level{
		Name: "Plan A",
		Coverages: map[coverage.BenefitKind]coverage.Benefit{
			coverage.BenefitDeath: {Enabled: true, Amount: decimal.NewFromInt(50000)},
		},
	})
	require.NoError(t, err)
	require.NoError(t, data.Assign(coverage.Assignment{ClientID: "cli-1", Name: "Ana", LevelID: level.ID}))
	return data
}

func validPlan(t *testing.T) payment.Plan {
	t.Helper()
	plan := payment.Plan{
		Mode:        payment.ModeCredit,
		Total:       decimal.NewFromInt(10000),
		DownPayment: decimal.NewFromInt(1000),
		Cadence:     payment.CadenceMonthly,
		StartDate:   time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC),
		Count:       4,
	}
	require.NoError(t, plan.Regenerate())
	return plan
}

// fillToSummary walks a wizard through every step with valid data.
func fillToSummary(t *testing.T, env testEnv) {
	t.Helper()
	env.w.SetInsured(wizard.InsuredParty{ClientID: "cli-1", Name: "Ana"})
	mustAdvance(t, env.w)
	env.w.SetBasicData(validBasic())
	mustAdvance(t, env.w)
	require.NoError(t, env.w.SetBranchData(validAccidentData(t)))
	mustAdvance(t, env.w)
	require.NoError(t, env.w.SetPlan(validPlan(t)))
	mustAdvance(t, env.w)
	mustAdvance(t, env.w)
	require.Equal(t, wizard.StepSummary, env.w.CurrentStep())
}

func mustAdvance(t *testing.T, w *wizard.Wizard) {
	t.Helper()
	errs, err := w.Advance()
	require.NoError(t, err, "unexpected field errors: %v", errs)
}

// =============================================================================
// TRANSITIONS
// =============================================================================

func TestAdvance_BlockedWhileStepInvalid(t *testing.T) {
	// GIVEN: no insured party selected
	// WHEN: advancing from step 1
	// THEN: blocked with a field error; the step does not change

	env := newTestWizard(t, wizard.Config{})

	errs, err := env.w.Advance()
	assert.ErrorIs(t, err, wizard.ErrStepBlocked)
	assert.Contains(t, errs, "insured")
	assert.Equal(t, wizard.StepInsuredSearch, env.w.CurrentStep())
}

func TestRetreat_NeverDiscardsLaterData(t *testing.T) {
	// GIVEN: a wizard at the summary step
	// WHEN: retreating to step 1 and returning
	// THEN: every later step's data is still present

	env := newTestWizard(t, wizard.Config{})
	fillToSummary(t, env)

	for env.w.CurrentStep() > wizard.StepInsuredSearch {
		env.w.Retreat()
	}
	assert.Equal(t, wizard.StepInsuredSearch, env.w.CurrentStep())

	d := env.w.Draft()
	assert.NotNil(t, d.Insured)
	assert.Equal(t, "POL-001", d.Basic.PolicyNumber)
	assert.NotNil(t, d.Branch)
	assert.NotNil(t, d.Plan)
	assert.Equal(t,
		[]wizard.Step{wizard.StepInsuredSearch},
		d.VisibleSteps())
}

func TestAdvance_EditingEarlierStepDoesNotInvalidateLater(t *testing.T) {
	// GIVEN: a completed wizard
	// WHEN: the branch changes in step 2 while step 3 holds the old payload
	// THEN: nothing is discarded; the step-3 validator reports the mismatch
	//       only when the operator reaches it again

	env := newTestWizard(t, wizard.Config{})
	fillToSummary(t, env)

	basic := validBasic()
	basic.Branch = "life"
	env.w.SetBasicData(basic)

	d := env.w.Draft()
	require.NotNil(t, d.Branch, "branch payload must survive the edit")

	for env.w.CurrentStep() > wizard.StepBranchData {
		env.w.Retreat()
	}
	errs, err := env.w.Advance()
	assert.ErrorIs(t, err, wizard.ErrStepBlocked)
	assert.Contains(t, errs, "branch_data")
}

func TestSetBranchData_MismatchedTagRejected(t *testing.T) {
	env := newTestWizard(t, wizard.Config{})
	env.w.SetBasicData(validBasic()) // branch "accident"

	err := env.w.SetBranchData(&branch.AutoData{})
	assert.ErrorIs(t, err, wizard.ErrBranchMismatch)
}

// =============================================================================
// AUTOSAVE
// =============================================================================

func TestAutosave_DebouncedTrailingEdge(t *testing.T) {
	// GIVEN: rapid consecutive changes
	// WHEN: the debounce window finally elapses (Flush)
	// THEN: exactly one snapshot write happens, containing the latest state

	env := newTestWizard(t, wizard.Config{Key: "session-as"})

	env.w.SetInsured(wizard.InsuredParty{ClientID: "cli-1", Name: "A"})
	env.w.SetInsured(wizard.InsuredParty{ClientID: "cli-2", Name: "B"})
	env.w.SetInsured(wizard.InsuredParty{ClientID: "cli-3", Name: "C"})

	_, ok, err := env.store.Load(context.Background(), "session-as")
	require.NoError(t, err)
	assert.False(t, ok, "nothing written before the window elapses")

	env.sched.Flush()

	restored, ok, err := env.store.Load(context.Background(), "session-as")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "cli-3", restored.Insured.ClientID)
	assert.False(t, env.sched.HasPending(), "flush clears the pending task")
}

func TestAutosave_EditModeDoesNotAutosave(t *testing.T) {
	env := newTestWizard(t, wizard.Config{
		Key:      "session-edit",
		Existing: &wizard.PolicyDraft{PolicyID: "pol-9", CurrentStep: wizard.StepSummary},
	})

	env.w.SetInsured(wizard.InsuredParty{ClientID: "cli-1"})
	assert.False(t, env.sched.HasPending())
}

// =============================================================================
// RESTORE
// =============================================================================

func TestRestore_DropsDocumentsNotFullyUploaded(t *testing.T) {
	// GIVEN: a snapshot whose documents are all still "uploading"
	// WHEN: restoring the draft
	// THEN: zero documents survive and a re-upload notice is recorded

	store := draftstore.NewMemory(branch.NewCodec())
	snapshot := &wizard.PolicyDraft{
		Key:         "session-r",
		Mode:        wizard.ModeCreate,
		CurrentStep: wizard.StepDocuments,
		Documents: []wizard.Document{
			{ID: "d1", Name: "a.pdf", Status: wizard.DocUploading},
			{ID: "d2", Name: "b.pdf", Status: wizard.DocUploading},
		},
	}
	require.NoError(t, store.Save(context.Background(), "session-r", snapshot))

	w, err := wizard.New(context.Background(), wizard.Config{
		Key:       "session-r",
		Store:     store,
		Scheduler: wizard.NewManualScheduler(),
		Restore:   true,
	})
	require.NoError(t, err)

	d := w.Draft()
	assert.Empty(t, d.Documents)

	warnings := w.Warnings()
	require.Len(t, warnings, 1)
	assert.Equal(t, wizard.WarnDocumentsDropped, warnings[0].Code)
}

func TestRestore_KeepsUploadedDropsFailed(t *testing.T) {
	store := draftstore.NewMemory(branch.NewCodec())
	snapshot := &wizard.PolicyDraft{
		Key:  "session-r2",
		Mode: wizard.ModeCreate,
		Documents: []wizard.Document{
			{ID: "d1", Name: "ok.pdf", Status: wizard.DocUploaded, StoragePath: "temp/x/ok.pdf"},
			{ID: "d2", Name: "bad.pdf", Status: wizard.DocError, Error: "boom"},
		},
	}
	require.NoError(t, store.Save(context.Background(), "session-r2", snapshot))

	w, err := wizard.New(context.Background(), wizard.Config{
		Key: "session-r2", Store: store, Scheduler: wizard.NewManualScheduler(), Restore: true,
	})
	require.NoError(t, err)

	d := w.Draft()
	require.Len(t, d.Documents, 1)
	assert.Equal(t, "d1", d.Documents[0].ID)
}

func TestRestore_NoSnapshotFails(t *testing.T) {
	store := draftstore.NewMemory(branch.NewCodec())
	_, err := wizard.New(context.Background(), wizard.Config{
		Key: "missing", Store: store, Scheduler: wizard.NewManualScheduler(), Restore: true,
	})
	assert.ErrorIs(t, err, wizard.ErrNoRestorableDraft)
}

// =============================================================================
// PAID-INSTALLMENT LOCK
// =============================================================================

func editWizardWithPaidPlan(t *testing.T) testEnv {
	t.Helper()
	plan := validPlan(t)
	plan.Installments[0].Status = payment.StatusPaid

	existing := &wizard.PolicyDraft{
		PolicyID:    "pol-1",
		CurrentStep: wizard.StepSummary,
		Insured:     &wizard.InsuredParty{ClientID: "cli-1", Name: "Ana"},
		Basic:       validBasic(),
		Plan:        &plan,
	}
	env := newTestWizard(t, wizard.Config{Key: "session-paid", Existing: existing})
	require.NoError(t, env.w.SetBranchData(validAccidentData(t)))
	return env
}

func TestSetPlan_ParameterChangeRejectedOncePaid(t *testing.T) {
	// GIVEN: edit mode with the down payment already paid
	// WHEN: changing cadence and count
	// THEN: rejected, naming the frozen fields; existing data untouched

	env := editWizardWithPaidPlan(t)

	incoming := *env.w.Draft().Plan
	incoming.Cadence = payment.CadenceSemestral
	incoming.Count = 2

	err := env.w.SetPlan(incoming)
	assert.ErrorIs(t, err, wizard.ErrPaymentLocked)

	var locked *wizard.PaymentLockedError
	require.ErrorAs(t, err, &locked)
	assert.ElementsMatch(t, []string{"cadence", "count"}, locked.Fields)
	assert.Equal(t, payment.CadenceMonthly, env.w.Draft().Plan.Cadence)
}

func TestGeneratePlan_RefusedOncePaid(t *testing.T) {
	env := editWizardWithPaidPlan(t)
	before := append([]payment.Installment(nil), env.w.Draft().Plan.Installments...)

	err := env.w.GeneratePlan()
	assert.ErrorIs(t, err, payment.ErrScheduleLocked)
	assert.Equal(t, before, env.w.Draft().Plan.Installments)
}

func TestOverrideInstallment_PendingStillEditableWhileLocked(t *testing.T) {
	env := editWizardWithPaidPlan(t)

	amount := decimal.NewFromInt(2800)
	require.NoError(t, env.w.OverrideInstallment(3, payment.Override{Amount: &amount}))
	assert.True(t, env.w.Draft().Plan.Installments[2].Amount.Equal(amount))
}

// =============================================================================
// VIGENCIA CONTAINMENT
// =============================================================================

func TestAdvance_PaymentDateOutsideVigenciaBlocks(t *testing.T) {
	// GIVEN: an installment dated after the policy end
	// WHEN: advancing out of the payment step
	// THEN: blocked, reported per offending date

	env := newTestWizard(t, wizard.Config{})
	env.w.SetInsured(wizard.InsuredParty{ClientID: "cli-1"})
	mustAdvance(t, env.w)

	basic := validBasic()
	basic.PolicyEnd = time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	env.w.SetBasicData(basic)
	mustAdvance(t, env.w)
	require.NoError(t, env.w.SetBranchData(validAccidentData(t)))
	mustAdvance(t, env.w)

	require.NoError(t, env.w.SetPlan(validPlan(t))) // runs through April

	errs, err := env.w.Advance()
	assert.ErrorIs(t, err, wizard.ErrStepBlocked)
	assert.Contains(t, errs, "installments.3.due_date")
	assert.Contains(t, errs, "installments.4.due_date")
	assert.NotContains(t, errs, "installments.1.due_date")
}

// =============================================================================
// SUMMARY WARNINGS
// =============================================================================

func TestWarnings_OverrideDriftAndDegradedCommission(t *testing.T) {
	env := newTestWizard(t, wizard.Config{})
	fillToSummary(t, env)

	amount := decimal.NewFromInt(2000)
	require.NoError(t, env.w.OverrideInstallment(4, payment.Override{Amount: &amount}))
	env.w.ComputeCommission(nil) // no factor table -> degraded

	warnings := env.w.Warnings()
	codes := make([]string, 0, len(warnings))
	for _, w := range warnings {
		codes = append(codes, w.Code)
	}
	assert.Contains(t, codes, wizard.WarnSumMismatch)
	assert.Contains(t, codes, wizard.WarnDegradedCommission)
}

// =============================================================================
// TERMINAL STATES
// =============================================================================

func TestSave_SuccessClearsDraft(t *testing.T) {
	env := newTestWizard(t, wizard.Config{Key: "session-save"})
	fillToSummary(t, env)
	env.sched.Flush()

	require.NoError(t, env.w.Save(context.Background()))

	assert.Equal(t, 1, env.save.calls)
	_, ok, err := env.store.Load(context.Background(), "session-save")
	require.NoError(t, err)
	assert.False(t, ok, "draft cleared after successful save")
	assert.True(t, env.w.Terminal())

	assert.ErrorIs(t, env.w.Save(context.Background()), wizard.ErrAlreadyTerminal)
}

func TestSave_FailureKeepsDraftIntact(t *testing.T) {
	// GIVEN: a save action that fails
	// WHEN: saving
	// THEN: the error propagates, the draft survives, no retry happens

	env := newTestWizard(t, wizard.Config{Key: "session-fail"})
	env.save.err = errors.New("ORA-0001: duplicate policy number")
	fillToSummary(t, env)
	env.sched.Flush()

	err := env.w.Save(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, env.save.calls)
	assert.False(t, env.w.Terminal())

	_, ok, loadErr := env.store.Load(context.Background(), "session-fail")
	require.NoError(t, loadErr)
	assert.True(t, ok, "draft must remain for a repeat attempt")
}

func TestSave_RevalidatesEveryStep(t *testing.T) {
	env := newTestWizard(t, wizard.Config{})
	fillToSummary(t, env)

	// Retreat and break step 2 after the fact.
	basic := validBasic()
	basic.PolicyNumber = ""
	env.w.SetBasicData(basic)

	err := env.w.Save(context.Background())
	assert.ErrorIs(t, err, wizard.ErrStepBlocked)

	var blocked *wizard.StepBlockedError
	require.ErrorAs(t, err, &blocked)
	assert.Equal(t, wizard.StepBasicData, blocked.Step)
	assert.Equal(t, 0, env.save.calls)
}

func TestCancel_ClearsDraftAndTempBlobs(t *testing.T) {
	// GIVEN: an uploaded temp document and a pending autosave
	// WHEN: cancelling
	// THEN: the draft store is cleared and the blob deleted best-effort

	uploader := &fakeUploader{}
	store := draftstore.NewMemory(branch.NewCodec())
	sched := wizard.NewManualScheduler()
	w, err := wizard.New(context.Background(), wizard.Config{
		Key: "session-c", Store: store, Scheduler: sched, Uploader: uploader,
	})
	require.NoError(t, err)

	w.AddDocument("d1", "a.pdf")
	w.CompleteDocument("d1", wizard.StoredObject{StoragePath: "temp/x/a.pdf"})
	sched.Flush()

	w.Cancel(context.Background())

	_, ok, loadErr := store.Load(context.Background(), "session-c")
	require.NoError(t, loadErr)
	assert.False(t, ok)
	assert.Equal(t, []string{"temp/x/a.pdf"}, uploader.deleted)
	assert.True(t, w.Terminal())
}

func TestAutosave_SnapshotDoesNotRaceMutations(t *testing.T) {
	// GIVEN a create-mode session with an aggressive snapshot timer so
	// encodes overlap ongoing mutations
	store := draftstore.NewMemory(branch.NewCodec())
	w, err := wizard.New(context.Background(), wizard.Config{
		Key:       "session-race",
		Store:     store,
		Scheduler: wizard.NewDebouncedScheduler(time.Microsecond),
	})
	require.NoError(t, err)

	// WHEN two goroutines hammer the draft while snapshots fire
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			w.SetInsured(wizard.InsuredParty{ClientID: "c1", Name: "Maria Lopez"})
			w.SetBasicData(validBasic())
		}
	}()
	for i := 0; i < 500; i++ {
		w.SetInsured(wizard.InsuredParty{ClientID: "c2", Name: "Juan Perez"})
	}
	<-done

	// THEN the trailing snapshot settles into a decodable copy
	time.Sleep(50 * time.Millisecond)
	loaded, ok, err := store.Load(context.Background(), "session-race")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotNil(t, loaded.Insured)
}

func TestUpdateBranch_MutatesUnderLockAndSchedules(t *testing.T) {
	// GIVEN a session holding a tiered branch payload
	env := newTestWizard(t, wizard.Config{})
	env.w.SetBasicData(validBasic())
	require.NoError(t, env.w.SetBranchData(validAccidentData(t)))
	scheduled := env.sched.Scheduled

	// WHEN a tier is added through UpdateBranch
	err := env.w.UpdateBranch(func(bd wizard.BranchData) error {
		acc := bd.(*branch.AccidentData)
		_, err := acc.SaveLevel(coverage.Level{
			Name: "Oro",
			Coverages: map[coverage.BenefitKind]coverage.Benefit{
				coverage.BenefitDeath: {Enabled: true, Amount: decimal.NewFromInt(10000)},
			},
		})
		return err
	})
	require.NoError(t, err)

	// THEN the mutation landed and another snapshot was scheduled
	acc := env.w.Draft().Branch.(*branch.AccidentData)
	assert.NotEmpty(t, acc.Levels)
	assert.Greater(t, env.sched.Scheduled, scheduled)
}

func TestUpdateBranch_ErrorSkipsSnapshot(t *testing.T) {
	env := newTestWizard(t, wizard.Config{})
	env.w.SetBasicData(validBasic())
	require.NoError(t, env.w.SetBranchData(validAccidentData(t)))
	scheduled := env.sched.Scheduled

	err := env.w.UpdateBranch(func(wizard.BranchData) error {
		return errors.New("nope")
	})
	require.Error(t, err)
	assert.Equal(t, scheduled, env.sched.Scheduled)
}
