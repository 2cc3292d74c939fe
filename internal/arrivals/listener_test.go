package arrivals

import (
	"context"
	"errors"
	"testing"

	"github.com/bohania/reception-desk/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type arrivalRecorder struct {
	arrivals  []models.Arrival
	insertErr error
}

func (r *arrivalRecorder) FindVehiclesMatching(context.Context, string) ([]models.MatchCandidate, error) {
	return nil, nil
}

func (r *arrivalRecorder) GetStoredContact(context.Context, string) (*models.ContactRecord, error) {
	return nil, nil
}

func (r *arrivalRecorder) VehicleIdentifierExists(context.Context, models.IdentifierKind, string) (bool, error) {
	return false, nil
}

func (r *arrivalRecorder) CreateReceptionEntry(context.Context, *models.ReceptionEntry) (string, error) {
	return "", nil
}

func (r *arrivalRecorder) UpdateVehicleIdentity(context.Context, string, models.VehicleIdentityPatch) error {
	return nil
}

func (r *arrivalRecorder) ListReceptionEntries(context.Context, models.EntryFilter) ([]models.ReceptionEntry, error) {
	return nil, nil
}

func (r *arrivalRecorder) GetReceptionEntry(context.Context, string) (*models.ReceptionEntry, error) {
	return nil, nil
}

func (r *arrivalRecorder) InsertArrival(_ context.Context, arrival models.Arrival) error {
	if r.insertErr != nil {
		return r.insertErr
	}
	r.arrivals = append(r.arrivals, arrival)
	return nil
}

func (r *arrivalRecorder) ListArrivals(context.Context) ([]models.Arrival, error) {
	return r.arrivals, nil
}

func TestIngestQueuesArrival(t *testing.T) {
	store := &arrivalRecorder{}
	listener := NewListener(store, nil)

	err := listener.ingest([]byte(`{"vehicle_reg_no":"ka05 cd 5678","phone":"9123456780","source":"RSA","note":"towed from ORR"}`))
	require.NoError(t, err)
	require.Len(t, store.arrivals, 1)

	arrival := store.arrivals[0]
	assert.Equal(t, "KA05CD5678", arrival.RegNo)
	assert.Equal(t, "9123456780", arrival.Phone)
	assert.Equal(t, models.SourceRSA, arrival.Source)
	assert.Equal(t, "towed from ORR", arrival.Note)
	assert.NotEmpty(t, arrival.ArrivalID)
	assert.False(t, arrival.ReceivedAt.IsZero())
}

func TestIngestDefaultsUnknownSource(t *testing.T) {
	store := &arrivalRecorder{}
	listener := NewListener(store, nil)

	err := listener.ingest([]byte(`{"vehicle_reg_no":"KA05CD5678","source":"carrier pigeon"}`))
	require.NoError(t, err)
	require.Len(t, store.arrivals, 1)
	assert.Equal(t, models.SourceRSA, store.arrivals[0].Source)
}

func TestIngestRejectsGarbage(t *testing.T) {
	store := &arrivalRecorder{}
	listener := NewListener(store, nil)

	assert.Error(t, listener.ingest([]byte(`not json`)))
	assert.Error(t, listener.ingest([]byte(`{"note":"no identifiers at all"}`)))
	assert.Empty(t, store.arrivals)
}

func TestIngestReportsStoreFailure(t *testing.T) {
	store := &arrivalRecorder{insertErr: errors.New("down")}
	listener := NewListener(store, nil)

	err := listener.ingest([]byte(`{"vehicle_reg_no":"KA05CD5678"}`))
	assert.Error(t, err)
}
