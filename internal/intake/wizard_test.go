package intake

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bohania/reception-desk/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openWalkIn(t *testing.T, store *fakeStore) *Session {
	t.Helper()
	engine := NewEngine(store, nil)
	session, err := engine.OpenIntake(models.SourceWalkIn, time.Now(), "Koramangala")
	require.NoError(t, err)
	return session
}

func fillValidContact(t *testing.T, session *Session) {
	t.Helper()
	first, last, phone := "Ramesh", "Kumar", "9876543210"
	require.NoError(t, session.UpdateContactDraft(ContactDraftUpdate{
		FirstName: &first,
		LastName:  &last,
		ContactNo: &phone,
	}))
}

func TestOpenIntakeRejectsUnknownSource(t *testing.T) {
	engine := NewEngine(newFakeStore(), nil)

	_, err := engine.OpenIntake("Telepathy", time.Now(), "")
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestAdvanceBlockedUntilVehicleResolved(t *testing.T) {
	session := openWalkIn(t, newFakeStore())

	assert.False(t, session.CanAdvance())
	assert.ErrorIs(t, session.Advance(), ErrValidationFailed)
	assert.Equal(t, StageVehicleIdentification, session.Stage())
}

func TestDeclareNewVehicleRequiresBothIdentifiers(t *testing.T) {
	session := openWalkIn(t, newFakeStore())

	err := session.DeclareNewVehicle(context.Background(), NewVehicleInput{RegNo: "KA01AB1234"})
	assert.ErrorIs(t, err, ErrValidationFailed)

	err = session.DeclareNewVehicle(context.Background(), NewVehicleInput{VIN: "MALC381CLJM123456"})
	assert.ErrorIs(t, err, ErrValidationFailed)

	assert.False(t, session.CanAdvance())
}

func TestDeclareNewVehicleDuplicateBlocks(t *testing.T) {
	store := newFakeStore()
	store.existing[identifierKey(models.IdentifierVIN, "MALC381CLJM123456")] = true
	session := openWalkIn(t, store)

	err := session.DeclareNewVehicle(context.Background(), NewVehicleInput{
		RegNo: "KA01AB1234",
		VIN:   "malc381cljm123456",
	})
	assert.ErrorIs(t, err, ErrDuplicateIdentifier)
	assert.False(t, session.CanAdvance(), "collision routes back to search")
}

func TestDeclareNewVehicleCheckFailureKeepsGateClosed(t *testing.T) {
	store := newFakeStore()
	store.existsErr = errors.New("timeout")
	session := openWalkIn(t, store)

	err := session.DeclareNewVehicle(context.Background(), NewVehicleInput{
		RegNo: "KA01AB1234",
		VIN:   "MALC381CLJM123456",
	})
	assert.ErrorIs(t, err, ErrCheckFailed)
	assert.False(t, session.CanAdvance())
}

func TestSupplyIdentifierClearsMissingFlag(t *testing.T) {
	store := newFakeStore()
	store.matches = []models.MatchCandidate{{CandidateID: "veh-rsa", RegNo: "KA09EF9012"}}
	session := openWalkIn(t, store)
	_, err := session.SubmitQuery(context.Background(), "KA09")
	require.NoError(t, err)

	recon, err := session.SelectCandidate(context.Background(), "veh-rsa")
	require.NoError(t, err)
	require.True(t, recon.NeedsVIN)
	assert.False(t, session.CanAdvance(), "missing VIN blocks stage 1")

	require.NoError(t, session.SupplyIdentifier(context.Background(), models.IdentifierVIN, "malc381cljm123456"))
	assert.True(t, session.CanAdvance())
	assert.False(t, session.Snapshot().NeedsVIN)
}

func TestSupplyIdentifierRejectsDuplicate(t *testing.T) {
	store := newFakeStore()
	store.matches = []models.MatchCandidate{{CandidateID: "veh-rsa", RegNo: "KA09EF9012"}}
	store.existing[identifierKey(models.IdentifierVIN, "MALC381CLJM123456")] = true
	session := openWalkIn(t, store)
	_, err := session.SubmitQuery(context.Background(), "KA09")
	require.NoError(t, err)
	_, err = session.SelectCandidate(context.Background(), "veh-rsa")
	require.NoError(t, err)

	err = session.SupplyIdentifier(context.Background(), models.IdentifierVIN, "MALC381CLJM123456")
	assert.ErrorIs(t, err, ErrDuplicateIdentifier)
	assert.False(t, session.CanAdvance())
}

func TestStaleSearchResponseCannotReplaceCandidates(t *testing.T) {
	store := newFakeStore()
	slowStarted := make(chan struct{})
	release := make(chan struct{})
	store.findHook = func(query string) ([]models.MatchCandidate, error) {
		if query == "SLOW1" {
			close(slowStarted)
			<-release
			return []models.MatchCandidate{{CandidateID: "stale"}}, nil
		}
		return []models.MatchCandidate{{CandidateID: "fresh", RegNo: "KA01AB1234", VIN: "V111"}}, nil
	}
	session := openWalkIn(t, store)

	staleDone := make(chan []models.MatchCandidate, 1)
	go func() {
		results, err := session.SubmitQuery(context.Background(), "slow1")
		assert.NoError(t, err)
		staleDone <- results
	}()
	<-slowStarted

	fresh, err := session.SubmitQuery(context.Background(), "fresh")
	require.NoError(t, err)
	require.Len(t, fresh, 1)

	close(release)
	stale := <-staleDone
	require.Len(t, stale, 1)
	assert.Equal(t, "stale", stale[0].CandidateID, "superseded response still goes to its caller")

	_, err = session.SelectCandidate(context.Background(), "stale")
	assert.ErrorIs(t, err, ErrNoSuchCandidate, "stale results are never selectable")
	_, err = session.SelectCandidate(context.Background(), "fresh")
	assert.NoError(t, err)
}

func TestContactGate(t *testing.T) {
	session := openWalkIn(t, newFakeStore())
	require.NoError(t, session.DeclareNewVehicle(context.Background(), NewVehicleInput{
		RegNo: "KA01AB1234", VIN: "MALC381CLJM123456",
	}))
	require.NoError(t, session.Advance())

	assert.ErrorIs(t, session.Advance(), ErrValidationFailed)

	company := models.CustomerCompany
	name := "Acme Logistics"
	require.NoError(t, session.UpdateContactDraft(ContactDraftUpdate{CustomerType: &company, CompanyName: &name}))
	assert.ErrorIs(t, session.Advance(), ErrValidationFailed, "phone is mandatory")

	phone := "9876543210"
	require.NoError(t, session.UpdateContactDraft(ContactDraftUpdate{ContactNo: &phone}))
	require.NoError(t, session.Advance())
	assert.Equal(t, StageDocumentCustody, session.Stage())
}

func TestUpdateContactDraftOutsideStage(t *testing.T) {
	session := openWalkIn(t, newFakeStore())

	phone := "9876543210"
	err := session.UpdateContactDraft(ContactDraftUpdate{ContactNo: &phone})
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRetreatStepsBackOneStageAndKeepsDraft(t *testing.T) {
	session := openWalkIn(t, newFakeStore())

	assert.ErrorIs(t, session.Retreat(), ErrInvalidTransition, "nothing before stage 1")

	require.NoError(t, session.DeclareNewVehicle(context.Background(), NewVehicleInput{
		RegNo: "KA01AB1234", VIN: "MALC381CLJM123456",
	}))
	require.NoError(t, session.Advance())
	fillValidContact(t, session)
	require.NoError(t, session.Advance())
	require.NoError(t, session.Retreat())
	assert.Equal(t, StageContactValidation, session.Stage())
	require.NoError(t, session.Retreat())
	assert.Equal(t, StageVehicleIdentification, session.Stage())

	// Round trip loses nothing.
	require.NoError(t, session.Advance())
	assert.Equal(t, "Ramesh", session.Snapshot().Contact.FirstName)
	require.NoError(t, session.Advance())
}

func TestSetDocumentState(t *testing.T) {
	session := openWalkIn(t, newFakeStore())

	err := session.SetDocumentState(models.DocInsurance, models.DocumentState{Status: models.DocAttached})
	assert.ErrorIs(t, err, ErrInvalidTransition, "documents belong to stage 3")

	require.NoError(t, session.DeclareNewVehicle(context.Background(), NewVehicleInput{
		RegNo: "KA01AB1234", VIN: "MALC381CLJM123456",
	}))
	require.NoError(t, session.Advance())
	fillValidContact(t, session)
	require.NoError(t, session.Advance())

	require.NoError(t, session.SetDocumentState(models.DocInsurance, models.DocumentState{
		Status: models.DocAttached,
		Reason: "ignored",
	}))
	require.NoError(t, session.SetDocumentState(models.DocRC, models.DocumentState{
		Status: models.DocNotCollected,
		Reason: "customer kept original",
	}))

	view := session.Snapshot()
	assert.Empty(t, view.Documents.Insurance.Reason, "reason only kept for not_collected")
	assert.Equal(t, "customer kept original", view.Documents.RC.Reason)

	err = session.SetDocumentState("passport", models.DocumentState{Status: models.DocAttached})
	assert.ErrorIs(t, err, ErrValidationFailed)
}

func TestWalkInNewVehicleEndToEnd(t *testing.T) {
	store := newFakeStore()
	session := openWalkIn(t, store)

	results, err := session.SubmitQuery(context.Background(), "KA01AB1234")
	require.NoError(t, err)
	assert.Empty(t, results)

	require.NoError(t, session.DeclareNewVehicle(context.Background(), NewVehicleInput{
		RegNo:    "ka01 ab 1234",
		VIN:      "malc381cljm123456",
		EngineNo: "g4fc 123456",
	}))
	require.NoError(t, session.Advance())
	fillValidContact(t, session)
	require.NoError(t, session.Advance())
	require.NoError(t, session.SetDocumentState(models.DocInsurance, models.DocumentState{Status: models.DocAttached}))
	require.NoError(t, session.SetDocumentState(models.DocRC, models.DocumentState{Status: models.DocAttached}))

	result, err := session.Finalize(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result.Entry)
	assert.NoError(t, result.RepairWarning)

	entry := result.Entry
	assert.Equal(t, "KA01AB1234", entry.RegNo)
	assert.Equal(t, "MALC381CLJM123456", entry.VIN)
	assert.Equal(t, "G4FC123456", entry.EngineNo)
	assert.Equal(t, models.SourceWalkIn, entry.Source)
	assert.Equal(t, "Ramesh Kumar", entry.CustomerName)
	assert.True(t, entry.ContactValid)
	assert.Equal(t, models.StatusCompleted, entry.Status)
	assert.NotEmpty(t, entry.EntryID)
	assert.NotEmpty(t, entry.VehicleID)

	require.Len(t, store.entries, 1)
	assert.Equal(t, StageFinalized, session.Stage())

	_, err = session.Finalize(context.Background())
	assert.ErrorIs(t, err, ErrSessionFinalized)
}

func TestConcurrentFinalizeWritesOneEntry(t *testing.T) {
	store := newFakeStore()
	session := openWalkIn(t, store)
	require.NoError(t, session.DeclareNewVehicle(context.Background(), NewVehicleInput{
		RegNo: "KA01AB1234", VIN: "MALC381CLJM123456",
	}))
	require.NoError(t, session.Advance())
	fillValidContact(t, session)
	require.NoError(t, session.Advance())

	var storeCalls int32
	writeStarted := make(chan struct{}, 2)
	release := make(chan struct{})
	store.createHook = func(*models.ReceptionEntry) (string, error) {
		atomic.AddInt32(&storeCalls, 1)
		writeStarted <- struct{}{}
		<-release
		return "entry-1", nil
	}

	firstDone := make(chan error, 1)
	go func() {
		_, err := session.Finalize(context.Background())
		firstDone <- err
	}()
	<-writeStarted

	// A double-submitted finalize must not reach the store a second time.
	_, err := session.Finalize(context.Background())
	assert.ErrorIs(t, err, ErrInvalidTransition)

	close(release)
	require.NoError(t, <-firstDone)
	assert.Equal(t, StageFinalized, session.Stage())
	assert.EqualValues(t, 1, atomic.LoadInt32(&storeCalls))

	_, err = session.Finalize(context.Background())
	assert.ErrorIs(t, err, ErrSessionFinalized)
}

func TestFinalizeDerivesDocumentsPending(t *testing.T) {
	store := newFakeStore()
	session := openWalkIn(t, store)
	require.NoError(t, session.DeclareNewVehicle(context.Background(), NewVehicleInput{
		RegNo: "KA01AB1234", VIN: "MALC381CLJM123456",
	}))
	require.NoError(t, session.Advance())
	fillValidContact(t, session)
	require.NoError(t, session.Advance())
	require.NoError(t, session.SetDocumentState(models.DocInsurance, models.DocumentState{Status: models.DocAttached}))

	result, err := session.Finalize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.StatusDocumentsPending, result.Entry.Status)
}

func TestFinalizePersistenceFailurePreservesDraft(t *testing.T) {
	store := newFakeStore()
	session := openWalkIn(t, store)
	require.NoError(t, session.DeclareNewVehicle(context.Background(), NewVehicleInput{
		RegNo: "KA01AB1234", VIN: "MALC381CLJM123456",
	}))
	require.NoError(t, session.Advance())
	fillValidContact(t, session)
	require.NoError(t, session.Advance())

	store.createErr = errors.New("write concern error")
	_, err := session.Finalize(context.Background())
	assert.ErrorIs(t, err, ErrPersistenceFailure)
	assert.Equal(t, StageDocumentCustody, session.Stage())
	assert.Equal(t, "Ramesh", session.Snapshot().Contact.FirstName, "draft survives for retry")
	assert.Empty(t, store.entries)

	store.createErr = nil
	result, err := session.Finalize(context.Background())
	require.NoError(t, err)
	require.NotNil(t, result.Entry)
	require.Len(t, store.entries, 1)
}

func repairSession(t *testing.T, store *fakeStore) *Session {
	t.Helper()
	store.matches = []models.MatchCandidate{{CandidateID: "veh-rsa", RegNo: "KA09EF9012"}}
	session := openWalkIn(t, store)
	_, err := session.SubmitQuery(context.Background(), "KA09")
	require.NoError(t, err)
	_, err = session.SelectCandidate(context.Background(), "veh-rsa")
	require.NoError(t, err)
	require.NoError(t, session.SupplyIdentifier(context.Background(), models.IdentifierVIN, "MALC381CLJM123456"))
	require.NoError(t, session.Advance())
	fillValidContact(t, session)
	require.NoError(t, session.Advance())
	return session
}

func TestFinalizeRepairsMissingIdentifier(t *testing.T) {
	store := newFakeStore()
	session := repairSession(t, store)

	result, err := session.Finalize(context.Background())
	require.NoError(t, err)
	assert.NoError(t, result.RepairWarning)
	assert.Equal(t, "MALC381CLJM123456", result.Entry.VIN)
	assert.Equal(t, "veh-rsa", result.Entry.VehicleID)

	patch, ok := store.patches["veh-rsa"]
	require.True(t, ok, "backfill write reaches the vehicle record")
	assert.Nil(t, patch.RegNo)
	require.NotNil(t, patch.VIN)
	assert.Equal(t, "MALC381CLJM123456", *patch.VIN)
}

func TestFinalizeRepairFailureIsAWarningNotAFailure(t *testing.T) {
	store := newFakeStore()
	session := repairSession(t, store)
	store.patchErr = errors.New("update failed")

	result, err := session.Finalize(context.Background())
	require.NoError(t, err, "entry creation is the unit of success")
	require.NotNil(t, result.Entry)
	assert.ErrorIs(t, result.RepairWarning, ErrIdentityRepairFailed)
	require.Len(t, store.entries, 1)
	assert.Equal(t, StageFinalized, session.Stage())
}

func TestAbandonedSessionRejectsEverything(t *testing.T) {
	session := openWalkIn(t, newFakeStore())
	session.Abandon()

	_, err := session.SubmitQuery(context.Background(), "KA01")
	assert.ErrorIs(t, err, ErrSessionAbandoned)
	assert.ErrorIs(t, session.Advance(), ErrSessionAbandoned)
	_, err = session.Finalize(context.Background())
	assert.ErrorIs(t, err, ErrSessionAbandoned)
	assert.False(t, session.CanAdvance())
}
