package intake

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bohania/reception-desk/internal/models"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type selectionKind int

const (
	selUnselected selectionKind = iota
	selExisting
	selNew
)

// vehicleSelection is the stage-1 tagged union: nothing selected yet, an
// existing match (with optional identifier overrides for repair), or a
// declared new vehicle that already passed both duplicate checks.
type vehicleSelection struct {
	kind        selectionKind
	candidate   models.MatchCandidate
	regOverride string
	vinOverride string
	regNo       string
	vin         string
	engineNo    string
}

// NewVehicleInput declares a brand-new vehicle during intake.
type NewVehicleInput struct {
	RegNo    string
	VIN      string
	EngineNo string
}

// ContactDraftUpdate is a partial update of the editable contact fields. Nil
// fields are left untouched.
type ContactDraftUpdate struct {
	CustomerType *models.CustomerType `json:"customer_type,omitempty"`
	FirstName    *string              `json:"first_name,omitempty"`
	LastName     *string              `json:"last_name,omitempty"`
	CompanyName  *string              `json:"company_name,omitempty"`
	Address      *string              `json:"address,omitempty"`
	City         *string              `json:"city,omitempty"`
	State        *string              `json:"state,omitempty"`
	Pin          *string              `json:"pin,omitempty"`
	ContactNo    *string              `json:"contact_no,omitempty"`
	AlternateNo  *string              `json:"alternate_no,omitempty"`
	Email        *string              `json:"email,omitempty"`
	DateOfBirth  *string              `json:"date_of_birth,omitempty"`
	Anniversary  *string              `json:"anniversary,omitempty"`
	DrivenBy     *models.DrivenBy     `json:"driven_by,omitempty"`
	ContactModes *[]string            `json:"preferred_contact_mode,omitempty"`
	ContactTimes *[]string            `json:"preferred_contact_time,omitempty"`
}

// FinalizeResult carries the created entry plus an optional non-fatal
// identity-repair warning. A non-nil RepairWarning means the entry exists but
// the missing reg no / VIN backfill on the stored vehicle failed.
type FinalizeResult struct {
	Entry         *models.ReceptionEntry
	RepairWarning error
}

// Session is the exclusive owner of one draft intake. All wizard state lives
// here; the surrounding layer holds only the handle.
type Session struct {
	mu     sync.Mutex
	engine *Engine

	id            string
	stage         Stage
	source        models.Source
	branch        string
	receptionTime time.Time

	searchSeq  uint64
	candidates []models.MatchCandidate

	sel     vehicleSelection
	recon   *Reconciliation
	contact models.ContactRecord
	docs    models.DocumentSet

	finalizing bool
	finalized  bool
	abandoned  bool
}

// OpenIntake starts a wizard session for an arriving vehicle.
func (e *Engine) OpenIntake(source models.Source, receptionTime time.Time, branch string) (*Session, error) {
	if !models.IsValidSource(source) {
		return nil, fmt.Errorf("%w: unknown source %q", ErrValidationFailed, source)
	}
	s := &Session{
		engine:        e,
		id:            primitive.NewObjectID().Hex(),
		stage:         StageVehicleIdentification,
		source:        source,
		branch:        branch,
		receptionTime: receptionTime,
		contact: models.ContactRecord{
			CustomerType: models.CustomerIndividual,
			DrivenBy:     models.DrivenByOwner,
		},
		docs: models.DocumentSet{
			Insurance: models.DocumentState{Status: models.DocMissing},
			RC:        models.DocumentState{Status: models.DocMissing},
		},
	}
	e.logger.WithFields(log.Fields{"session_id": s.id, "source": source}).Info("intake opened")
	return s, nil
}

// ID returns the session's stable handle id.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Stage returns the current wizard stage.
func (s *Session) Stage() Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stage
}

func (s *Session) aliveLocked() error {
	if s.abandoned {
		return ErrSessionAbandoned
	}
	if s.finalized {
		return ErrSessionFinalized
	}
	return nil
}

// SubmitQuery runs a vehicle search. Callers may invoke it at any rate; the
// session guarantees last-request-wins: a response superseded by a newer
// query is returned to its caller but never replaces the candidate set, so a
// stale result can never be selected.
func (s *Session) SubmitQuery(ctx context.Context, query string) ([]models.MatchCandidate, error) {
	s.mu.Lock()
	if err := s.aliveLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.searchSeq++
	seq := s.searchSeq
	s.mu.Unlock()

	results, err := s.engine.Search(ctx, query)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.aliveLocked(); err != nil {
		// Abandoned mid-flight: the response must have no observable effect.
		return nil, err
	}
	if seq == s.searchSeq {
		s.candidates = results
	}
	return results, nil
}

// SelectCandidate picks an existing vehicle from the latest result set by its
// stable id and reconciles the stored contact into the draft. Selection is
// sticky for the session; re-selecting replaces it.
func (s *Session) SelectCandidate(ctx context.Context, candidateID string) (*Reconciliation, error) {
	s.mu.Lock()
	if err := s.aliveLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.stage != StageVehicleIdentification {
		s.mu.Unlock()
		return nil, ErrInvalidTransition
	}
	var candidate *models.MatchCandidate
	for i := range s.candidates {
		if s.candidates[i].CandidateID == candidateID {
			candidate = &s.candidates[i]
			break
		}
	}
	if candidate == nil {
		s.mu.Unlock()
		return nil, ErrNoSuchCandidate
	}
	chosen := *candidate
	s.mu.Unlock()

	recon, err := s.engine.reconcile(ctx, chosen)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.aliveLocked(); err != nil {
		return nil, err
	}
	s.sel = vehicleSelection{kind: selExisting, candidate: chosen, engineNo: chosen.EngineNo}
	s.recon = recon
	s.contact = recon.Draft
	return recon, nil
}

// SupplyIdentifier provides a missing reg no or VIN for a selected existing
// vehicle. The value is normalized and duplicate-checked; on finalize it is
// written back to the stored vehicle identity rather than creating a new one.
func (s *Session) SupplyIdentifier(ctx context.Context, kind models.IdentifierKind, value string) error {
	normalized := NormalizeIdentifier(value)
	if normalized == "" {
		return fmt.Errorf("%w: empty identifier", ErrValidationFailed)
	}

	s.mu.Lock()
	if err := s.aliveLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.stage != StageVehicleIdentification || s.sel.kind != selExisting {
		s.mu.Unlock()
		return ErrInvalidTransition
	}
	s.mu.Unlock()

	dup, err := s.engine.CheckDuplicate(ctx, kind, normalized)
	if err != nil {
		return err
	}
	if dup {
		return fmt.Errorf("%w: %s %s", ErrDuplicateIdentifier, kind, normalized)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.aliveLocked(); err != nil {
		return err
	}
	switch kind {
	case models.IdentifierRegNo:
		s.sel.regOverride = normalized
	case models.IdentifierVIN:
		s.sel.vinOverride = normalized
	default:
		return fmt.Errorf("%w: unknown identifier kind %q", ErrValidationFailed, kind)
	}
	return nil
}

// DeclareNewVehicle registers intent to create a brand-new vehicle. Both
// identifiers are required, normalized and duplicate-checked; the two checks
// are independent and run concurrently, and both must come back clean. On a
// collision the selection is cleared so the user is routed back to search.
func (s *Session) DeclareNewVehicle(ctx context.Context, input NewVehicleInput) error {
	regNo := NormalizeIdentifier(input.RegNo)
	vin := NormalizeIdentifier(input.VIN)
	if regNo == "" || vin == "" {
		return fmt.Errorf("%w: registration number and VIN are required", ErrValidationFailed)
	}

	s.mu.Lock()
	if err := s.aliveLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.stage != StageVehicleIdentification {
		s.mu.Unlock()
		return ErrInvalidTransition
	}
	s.mu.Unlock()

	var (
		wg             sync.WaitGroup
		regDup, vinDup bool
		regErr, vinErr error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		regDup, regErr = s.engine.CheckDuplicate(ctx, models.IdentifierRegNo, regNo)
	}()
	go func() {
		defer wg.Done()
		vinDup, vinErr = s.engine.CheckDuplicate(ctx, models.IdentifierVIN, vin)
	}()
	wg.Wait()

	if regErr != nil {
		return regErr
	}
	if vinErr != nil {
		return vinErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.aliveLocked(); err != nil {
		return err
	}
	if regDup || vinDup {
		s.sel = vehicleSelection{}
		s.recon = nil
		if regDup {
			return fmt.Errorf("%w: registration number %s", ErrDuplicateIdentifier, regNo)
		}
		return fmt.Errorf("%w: VIN %s", ErrDuplicateIdentifier, vin)
	}
	s.sel = vehicleSelection{
		kind:     selNew,
		regNo:    regNo,
		vin:      vin,
		engineNo: strings.ToUpper(strings.TrimSpace(input.EngineNo)),
	}
	s.recon = nil
	return nil
}

// SetReceptionTime records when the vehicle physically arrived.
func (s *Session) SetReceptionTime(t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.aliveLocked(); err != nil {
		return err
	}
	s.receptionTime = t
	return nil
}

// UpdateContactDraft applies a partial edit to the contact fields. Only valid
// during contact validation; the prior snapshot is never touched.
func (s *Session) UpdateContactDraft(update ContactDraftUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.aliveLocked(); err != nil {
		return err
	}
	if s.stage != StageContactValidation {
		return ErrInvalidTransition
	}
	if update.CustomerType != nil {
		switch *update.CustomerType {
		case models.CustomerIndividual, models.CustomerCompany:
			s.contact.CustomerType = *update.CustomerType
		default:
			return fmt.Errorf("%w: unknown customer type %q", ErrValidationFailed, *update.CustomerType)
		}
	}
	if update.DrivenBy != nil {
		if !models.IsValidDrivenBy(*update.DrivenBy) {
			return fmt.Errorf("%w: unknown driven-by %q", ErrValidationFailed, *update.DrivenBy)
		}
		s.contact.DrivenBy = *update.DrivenBy
	}
	setIf := func(dst *string, src *string) {
		if src != nil {
			*dst = strings.TrimSpace(*src)
		}
	}
	setIf(&s.contact.FirstName, update.FirstName)
	setIf(&s.contact.LastName, update.LastName)
	setIf(&s.contact.CompanyName, update.CompanyName)
	setIf(&s.contact.Address, update.Address)
	setIf(&s.contact.City, update.City)
	setIf(&s.contact.State, update.State)
	setIf(&s.contact.Pin, update.Pin)
	setIf(&s.contact.ContactNo, update.ContactNo)
	setIf(&s.contact.AlternateNo, update.AlternateNo)
	setIf(&s.contact.Email, update.Email)
	setIf(&s.contact.DateOfBirth, update.DateOfBirth)
	setIf(&s.contact.Anniversary, update.Anniversary)
	if update.ContactModes != nil {
		s.contact.ContactModes = append([]string(nil), (*update.ContactModes)...)
	}
	if update.ContactTimes != nil {
		s.contact.ContactTimes = append([]string(nil), (*update.ContactTimes)...)
	}
	return nil
}

// SetDocumentState records custody for one document kind. A reason is only
// kept for not-collected.
func (s *Session) SetDocumentState(kind models.DocumentKind, state models.DocumentState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.aliveLocked(); err != nil {
		return err
	}
	if s.stage != StageDocumentCustody {
		return ErrInvalidTransition
	}
	switch state.Status {
	case models.DocAttached, models.DocMissing:
		state.Reason = ""
	case models.DocNotCollected:
	default:
		return fmt.Errorf("%w: unknown document status %q", ErrValidationFailed, state.Status)
	}
	switch kind {
	case models.DocInsurance:
		s.docs.Insurance = state
	case models.DocRC:
		s.docs.RC = state
	default:
		return fmt.Errorf("%w: unknown document kind %q", ErrValidationFailed, kind)
	}
	return nil
}

// CanAdvance reports whether the current stage's forward gate is satisfied.
// The UI uses this to enable or disable its Next control.
func (s *Session) CanAdvance() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.abandoned || s.finalized {
		return false
	}
	return s.gateLocked()
}

func (s *Session) gateLocked() bool {
	switch s.stage {
	case StageVehicleIdentification:
		if s.receptionTime.IsZero() {
			return false
		}
		switch s.sel.kind {
		case selNew:
			// Both identifiers were validated and duplicate-checked when
			// the vehicle was declared.
			return true
		case selExisting:
			if s.recon == nil {
				return false
			}
			if s.recon.NeedsRegNo && s.sel.regOverride == "" {
				return false
			}
			if s.recon.NeedsVIN && s.sel.vinOverride == "" {
				return false
			}
			return true
		default:
			return false
		}
	case StageContactValidation:
		return s.contact.Validate() == nil
	case StageDocumentCustody:
		// Documents may legitimately be missing.
		return true
	default:
		return false
	}
}

// Advance moves to the next stage when the gate holds. A failed gate blocks
// the move and leaves the draft untouched.
func (s *Session) Advance() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.aliveLocked(); err != nil {
		return err
	}
	next, ok := forwardOf[s.stage]
	if !ok {
		return ErrInvalidTransition
	}
	if !s.gateLocked() {
		return ErrValidationFailed
	}
	s.stage = next
	return nil
}

// Retreat steps back to the immediately preceding stage.
func (s *Session) Retreat() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.aliveLocked(); err != nil {
		return err
	}
	prev, ok := backwardOf[s.stage]
	if !ok {
		return ErrInvalidTransition
	}
	s.stage = prev
	return nil
}

// Abandon drops the draft. In-flight search or duplicate-check responses for
// this session are discarded when they land.
func (s *Session) Abandon() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return
	}
	s.abandoned = true
}

// SessionView is a read-only snapshot of the wizard state for rendering.
type SessionView struct {
	SessionID     string                  `json:"session_id"`
	Stage         Stage                   `json:"stage"`
	Source        models.Source           `json:"source"`
	Branch        string                  `json:"branch,omitempty"`
	ReceptionTime time.Time               `json:"vehicle_reception_time"`
	Candidates    []models.MatchCandidate `json:"candidates,omitempty"`
	Contact       models.ContactRecord    `json:"contact"`
	Prior         map[string]string       `json:"prior,omitempty"`
	NeedsRegNo    bool                    `json:"needs_reg_no"`
	NeedsVIN      bool                    `json:"needs_vin"`
	Documents     models.DocumentSet      `json:"documents"`
	CanAdvance    bool                    `json:"can_advance"`
	Finalized     bool                    `json:"finalized"`
}

// Snapshot renders the current wizard state.
func (s *Session) Snapshot() SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	view := SessionView{
		SessionID:     s.id,
		Stage:         s.stage,
		Source:        s.source,
		Branch:        s.branch,
		ReceptionTime: s.receptionTime,
		Candidates:    append([]models.MatchCandidate(nil), s.candidates...),
		Contact:       s.contact,
		Documents:     s.docs,
		CanAdvance:    !s.abandoned && !s.finalized && s.gateLocked(),
		Finalized:     s.finalized,
	}
	if s.recon != nil {
		view.Prior = s.recon.Prior
		view.NeedsRegNo = s.recon.NeedsRegNo && s.sel.regOverride == ""
		view.NeedsVIN = s.recon.NeedsVIN && s.sel.vinOverride == ""
	}
	return view
}

// Finalize converts the draft into a persisted, immutable ReceptionEntry.
// Entry creation is the primary unit of success: if the identity-repair write
// for a previously-missing identifier fails afterwards, the entry stands and
// the failure is returned as a warning. A draft converts exactly once: a
// second Finalize while the first is still writing is rejected, finalize on
// an already-finalized session is rejected, and a persistence failure
// preserves the draft for retry.
func (s *Session) Finalize(ctx context.Context) (*FinalizeResult, error) {
	s.mu.Lock()
	if err := s.aliveLocked(); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	if s.stage != StageDocumentCustody || s.finalizing {
		s.mu.Unlock()
		return nil, ErrInvalidTransition
	}
	entry, patch, vehicleID, err := s.buildEntryLocked()
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.finalizing = true
	s.mu.Unlock()

	entryID, err := s.engine.store.CreateReceptionEntry(ctx, entry)
	if err != nil {
		s.mu.Lock()
		s.finalizing = false
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", ErrPersistenceFailure, err)
	}
	entry.EntryID = entryID

	result := &FinalizeResult{Entry: entry}
	if patch != nil {
		if err := s.engine.store.UpdateVehicleIdentity(ctx, vehicleID, *patch); err != nil {
			result.RepairWarning = fmt.Errorf("%w: %v", ErrIdentityRepairFailed, err)
			s.engine.logger.WithFields(log.Fields{
				"session_id": s.id,
				"entry_id":   entryID,
				"vehicle_id": vehicleID,
			}).WithError(err).Warn("identity repair failed, entry kept")
		}
	}

	s.mu.Lock()
	s.finalizing = false
	s.finalized = true
	s.stage = StageFinalized
	s.mu.Unlock()

	s.engine.logger.WithFields(log.Fields{
		"session_id": s.id,
		"entry_id":   entryID,
		"status":     entry.Status,
	}).Info("reception entry finalized")
	return result, nil
}

// buildEntryLocked assembles the entry and the optional identity-repair
// patch from the accumulated draft. It re-checks the stage invariants so an
// entry can never be built past an unmet gate.
func (s *Session) buildEntryLocked() (*models.ReceptionEntry, *models.VehicleIdentityPatch, string, error) {
	if err := s.contact.Validate(); err != nil {
		return nil, nil, "", fmt.Errorf("%w: %v", ErrValidationFailed, err)
	}
	if s.receptionTime.IsZero() {
		return nil, nil, "", fmt.Errorf("%w: reception time required", ErrValidationFailed)
	}

	var (
		regNo, vin, engineNo string
		vehicleID            string
		appointmentID        string
		patch                *models.VehicleIdentityPatch
	)
	switch s.sel.kind {
	case selNew:
		regNo, vin, engineNo = s.sel.regNo, s.sel.vin, s.sel.engineNo
	case selExisting:
		regNo, vin, engineNo = s.sel.candidate.RegNo, s.sel.candidate.VIN, s.sel.engineNo
		vehicleID = s.sel.candidate.CandidateID
		appointmentID = s.sel.candidate.AppointmentID
		p := models.VehicleIdentityPatch{}
		if s.sel.regOverride != "" {
			regNo = s.sel.regOverride
			p.RegNo = &s.sel.regOverride
		}
		if s.sel.vinOverride != "" {
			vin = s.sel.vinOverride
			p.VIN = &s.sel.vinOverride
		}
		if p.RegNo != nil || p.VIN != nil {
			patch = &p
		}
	default:
		return nil, nil, "", fmt.Errorf("%w: no vehicle resolved", ErrValidationFailed)
	}
	if regNo == "" && vin == "" {
		return nil, nil, "", fmt.Errorf("%w: vehicle needs a registration number or VIN", ErrValidationFailed)
	}

	contact := s.contact
	contact.ContactModes = append([]string(nil), s.contact.ContactModes...)
	contact.ContactTimes = append([]string(nil), s.contact.ContactTimes...)

	entry := &models.ReceptionEntry{
		EntryTime:     time.Now(),
		ReceptionTime: s.receptionTime,
		Source:        s.source,
		Branch:        s.branch,
		VehicleID:     vehicleID,
		RegNo:         regNo,
		VIN:           vin,
		EngineNo:      engineNo,
		Contact:       contact,
		CustomerName:  contact.CustomerName(),
		ContactValid:  true,
		Documents:     s.docs,
		Status:        models.DeriveStatus(true, s.docs),
		AppointmentID: appointmentID,
	}
	return entry, patch, vehicleID, nil
}
