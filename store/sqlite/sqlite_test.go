package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/issuance-engine/branch"
	"github.com/warp/issuance-engine/catalog"
	"github.com/warp/issuance-engine/payment"
	"github.com/warp/issuance-engine/wizard"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:", branch.NewCodec())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestDraftRoundTrip(t *testing.T) {
	// GIVEN a draft carrying a concrete branch payload
	store := newTestStore(t)
	ctx := context.Background()

	auto := &branch.AutoData{}
	auto.Vehicles = append(auto.Vehicles, branch.Vehicle{
		Plate:         "ABC-123",
		VehicleTypeID: "sedan",
		BrandID:       "toyota",
		Year:          2021,
		SumInsured:    decimal.NewFromInt(25000),
	})
	draft := &wizard.PolicyDraft{
		Key:         "session-1",
		Mode:        wizard.ModeCreate,
		CurrentStep: wizard.StepBranchData,
		Basic: wizard.BasicData{
			PolicyNumber: "POL-001",
			Branch:       string(branch.KindAuto),
			TotalPremium: decimal.NewFromInt(900),
		},
		Branch: auto,
	}

	// WHEN it is saved and loaded back
	require.NoError(t, store.Save(ctx, draft.Key, draft))
	loaded, ok, err := store.Load(ctx, draft.Key)
	require.NoError(t, err)
	require.True(t, ok)

	// THEN the branch comes back as the same concrete type
	assert.Equal(t, wizard.StepBranchData, loaded.CurrentStep)
	assert.True(t, draft.Basic.TotalPremium.Equal(loaded.Basic.TotalPremium))
	restored, ok := loaded.Branch.(*branch.AutoData)
	require.True(t, ok, "branch payload should survive the round trip")
	require.Len(t, restored.Vehicles, 1)
	assert.Equal(t, "ABC-123", restored.Vehicles[0].Plate)
}

func TestLoadMissingKey(t *testing.T) {
	store := newTestStore(t)

	_, ok, err := store.Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSaveOverwritesAndStamps(t *testing.T) {
	// GIVEN a saved draft
	store := newTestStore(t)
	ctx := context.Background()
	draft := &wizard.PolicyDraft{Key: "k", CurrentStep: wizard.StepInsuredSearch}
	require.NoError(t, store.Save(ctx, "k", draft))

	first, ok, err := store.PeekTimestamp(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	// WHEN it is saved again
	time.Sleep(5 * time.Millisecond)
	draft.CurrentStep = wizard.StepBasicData
	require.NoError(t, store.Save(ctx, "k", draft))

	// THEN the single row is overwritten with a fresher stamp
	second, ok, err := store.PeekTimestamp(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, second.After(first))

	loaded, _, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, wizard.StepBasicData, loaded.CurrentStep)
}

func TestClearIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "k", &wizard.PolicyDraft{Key: "k"}))
	require.NoError(t, store.Clear(ctx, "k"))
	require.NoError(t, store.Clear(ctx, "k"))

	_, ok, err := store.Load(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestArchiveRejectsDuplicateNumber(t *testing.T) {
	// GIVEN a policy already archived under a number
	store := newTestStore(t)
	ctx := context.Background()
	archive := store.Archive()

	first := &wizard.PolicyDraft{Key: "a", Basic: wizard.BasicData{PolicyNumber: "POL-7"}}
	require.NoError(t, archive.Save(ctx, first))

	// WHEN another draft reuses the number
	second := &wizard.PolicyDraft{Key: "b", Basic: wizard.BasicData{PolicyNumber: "POL-7"}}
	err := archive.Save(ctx, second)

	// THEN the failure message names the duplicate for the save taxonomy
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate policy number")
}

func TestArchiveUpdatesByPolicyID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	archive := store.Archive()

	draft := &wizard.PolicyDraft{
		Key:      "a",
		PolicyID: "pol-1",
		Basic:    wizard.BasicData{PolicyNumber: "POL-7"},
	}
	require.NoError(t, archive.Save(ctx, draft))

	// Edit mode resaves under the same id without tripping the number check
	draft.Basic.RegionID = "r2"
	require.NoError(t, archive.Save(ctx, draft))
}

func TestFactorsForMissIsNotAnError(t *testing.T) {
	store := newTestStore(t)

	table, err := store.FactorsFor(context.Background(), "no-such-product")
	require.NoError(t, err)
	assert.Nil(t, table)
}

func TestFactorsRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	in := payment.FactorTable{
		CashFactor:     decimal.NewFromInt(90),
		CreditFactor:   decimal.NewFromInt(85),
		CommissionRate: decimal.NewFromFloat(0.03),
	}
	require.NoError(t, store.SeedFactors(ctx, "prod-1", in))

	out, err := store.FactorsFor(ctx, "prod-1")
	require.NoError(t, err)
	require.NotNil(t, out)
	assert.True(t, in.CashFactor.Equal(out.CashFactor))
	assert.True(t, in.CreditFactor.Equal(out.CreditFactor))
	assert.True(t, in.CommissionRate.Equal(out.CommissionRate))
}

func TestCatalogListFiltersAndSorts(t *testing.T) {
	// GIVEN a mix of active and inactive records
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SeedCatalog(ctx, catalog.KindInsurers, []catalog.Item{
		{ID: "i2", Name: "Zenith", Active: true},
		{ID: "i1", Name: "Alpha", Active: true},
		{ID: "i3", Name: "Gone", Active: false},
	}))

	// WHEN listing
	items, err := store.List(ctx, catalog.KindInsurers)
	require.NoError(t, err)

	// THEN inactive records are hidden and the rest sort by name
	require.Len(t, items, 2)
	assert.Equal(t, "Alpha", items[0].Name)
	assert.Equal(t, "Zenith", items[1].Name)
}

func TestCatalogUnknownKind(t *testing.T) {
	store := newTestStore(t)

	_, err := store.List(context.Background(), catalog.Kind("bogus"))
	assert.ErrorIs(t, err, catalog.ErrUnknownKind)
}

func TestClientSearch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.SeedClients(ctx, []catalog.Candidate{
		{ID: "c1", Name: "Maria Lopez", IDDocument: "8-123-456"},
		{ID: "c2", Name: "Juan Perez", IDDocument: "9-999-111"},
	}))

	byName, err := store.Search(ctx, "maria")
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "c1", byName[0].ID)

	byDoc, err := store.Search(ctx, "9-999")
	require.NoError(t, err)
	require.Len(t, byDoc, 1)
	assert.Equal(t, "c2", byDoc[0].ID)

	empty, err := store.Search(ctx, "   ")
	require.NoError(t, err)
	assert.Empty(t, empty)
}
