package intake

import (
	"context"
	"fmt"
	"sync"

	"github.com/bohania/reception-desk/internal/db"
	"github.com/bohania/reception-desk/internal/models"
)

// fakeStore is an in-memory RecordStore for exercising the intake core
// without MongoDB. Error fields force the corresponding call to fail.
type fakeStore struct {
	mu sync.Mutex

	matches  []models.MatchCandidate
	findErr  error
	findHook func(query string) ([]models.MatchCandidate, error)

	contacts   map[string]models.ContactRecord
	contactErr error

	existing  map[string]bool
	existsErr error

	entries    []models.ReceptionEntry
	createErr  error
	createHook func(entry *models.ReceptionEntry) (string, error)

	patches  map[string]models.VehicleIdentityPatch
	patchErr error

	arrivals []models.Arrival
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		contacts: make(map[string]models.ContactRecord),
		existing: make(map[string]bool),
		patches:  make(map[string]models.VehicleIdentityPatch),
	}
}

func identifierKey(kind models.IdentifierKind, value string) string {
	return string(kind) + ":" + value
}

func (f *fakeStore) FindVehiclesMatching(_ context.Context, query string) ([]models.MatchCandidate, error) {
	f.mu.Lock()
	hook := f.findHook
	findErr := f.findErr
	matches := append([]models.MatchCandidate(nil), f.matches...)
	f.mu.Unlock()

	if hook != nil {
		return hook(query)
	}
	if findErr != nil {
		return nil, findErr
	}
	return matches, nil
}

func (f *fakeStore) GetStoredContact(_ context.Context, vehicleID string) (*models.ContactRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.contactErr != nil {
		return nil, f.contactErr
	}
	record, ok := f.contacts[vehicleID]
	if !ok {
		return nil, db.ErrNotFound
	}
	return &record, nil
}

func (f *fakeStore) VehicleIdentifierExists(_ context.Context, kind models.IdentifierKind, value string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.existing[identifierKey(kind, value)], nil
}

func (f *fakeStore) CreateReceptionEntry(_ context.Context, entry *models.ReceptionEntry) (string, error) {
	f.mu.Lock()
	hook := f.createHook
	f.mu.Unlock()
	if hook != nil {
		return hook(entry)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	if entry.EntryID == "" {
		entry.EntryID = fmt.Sprintf("entry-%d", len(f.entries)+1)
	}
	if entry.VehicleID == "" {
		entry.VehicleID = fmt.Sprintf("vehicle-%d", len(f.entries)+1)
	}
	f.entries = append(f.entries, *entry)
	return entry.EntryID, nil
}

func (f *fakeStore) UpdateVehicleIdentity(_ context.Context, vehicleID string, patch models.VehicleIdentityPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.patchErr != nil {
		return f.patchErr
	}
	f.patches[vehicleID] = patch
	return nil
}

func (f *fakeStore) ListReceptionEntries(_ context.Context, _ models.EntryFilter) ([]models.ReceptionEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.ReceptionEntry(nil), f.entries...), nil
}

func (f *fakeStore) GetReceptionEntry(_ context.Context, entryID string) (*models.ReceptionEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.entries {
		if f.entries[i].EntryID == entryID {
			entry := f.entries[i]
			return &entry, nil
		}
	}
	return nil, db.ErrNotFound
}

func (f *fakeStore) InsertArrival(_ context.Context, arrival models.Arrival) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.arrivals = append(f.arrivals, arrival)
	return nil
}

func (f *fakeStore) ListArrivals(_ context.Context) ([]models.Arrival, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Arrival(nil), f.arrivals...), nil
}
