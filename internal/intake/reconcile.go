package intake

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bohania/reception-desk/internal/db"
	"github.com/bohania/reception-desk/internal/mask"
	"github.com/bohania/reception-desk/internal/models"
)

// Reconciliation is the result of matching a selected candidate against the
// stored contact record: an editable draft pre-filled with best-known values,
// a masked view of what was on file, and flags for identifiers that must be
// supplied before stage 1 can advance.
type Reconciliation struct {
	// Draft holds editable, pre-filled contact fields. Staff may overwrite
	// any of them; stale data is corrected here, not in the snapshot.
	Draft models.ContactRecord

	// Prior maps field names to masked previously-stored values. Display
	// only; it is a separate copy and is never written back to the store.
	Prior map[string]string

	// NeedsRegNo / NeedsVIN flag identifiers missing on the matched vehicle.
	// They are required-for-completion: the wizard collects them before
	// stage 1 advances and writes them back to the vehicle on finalize.
	NeedsRegNo bool
	NeedsVIN   bool
}

// reconcile fetches the stored contact for a matched vehicle and builds the
// draft/prior pair. When no contact is on file (candidate came from an
// appointment booking with partial data) the candidate snapshot seeds the
// draft and there is nothing to mask.
func (e *Engine) reconcile(ctx context.Context, candidate models.MatchCandidate) (*Reconciliation, error) {
	recon := &Reconciliation{
		NeedsRegNo: candidate.RegNoMissing(),
		NeedsVIN:   candidate.VINMissing(),
	}

	stored, err := e.store.GetStoredContact(ctx, candidate.CandidateID)
	if err != nil {
		if !errors.Is(err, db.ErrNotFound) {
			return nil, fmt.Errorf("%w: %v", ErrCheckFailed, err)
		}
		recon.Draft = draftFromCandidate(candidate)
		return recon, nil
	}

	// Copy by value: mutating the draft must never alter the prior view.
	recon.Draft = *stored
	if recon.Draft.CustomerType == "" {
		recon.Draft.CustomerType = models.CustomerIndividual
	}
	if recon.Draft.DrivenBy == "" {
		recon.Draft.DrivenBy = models.DrivenByOwner
	}
	recon.Prior = maskedSnapshot(stored)
	return recon, nil
}

// draftFromCandidate seeds the draft from the denormalized search snapshot.
func draftFromCandidate(candidate models.MatchCandidate) models.ContactRecord {
	first, last := splitName(candidate.CustomerName)
	return models.ContactRecord{
		CustomerType: models.CustomerIndividual,
		FirstName:    first,
		LastName:     last,
		ContactNo:    candidate.CustomerPhone,
		Email:        candidate.CustomerEmail,
		DrivenBy:     models.DrivenByOwner,
	}
}

// maskedSnapshot produces the per-field "what we had on file" annotations.
// Fields whose stored value is empty, or too short to mask safely, are
// omitted entirely.
func maskedSnapshot(stored *models.ContactRecord) map[string]string {
	fields := map[string]string{
		"first_name":   stored.FirstName,
		"last_name":    stored.LastName,
		"company_name": stored.CompanyName,
		"contact_no":   stored.ContactNo,
		"alternate_no": stored.AlternateNo,
		"email":        stored.Email,
		"address":      stored.Address,
		"city":         stored.City,
		"state":        stored.State,
		"pin":          stored.Pin,
	}
	prior := make(map[string]string, len(fields))
	for name, value := range fields {
		if masked := mask.Mask(value); masked != "" {
			prior[name] = masked
		}
	}
	return prior
}

func splitName(full string) (first, last string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
