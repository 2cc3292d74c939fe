package models

import "time"

// Source records how the vehicle arrived at the desk.
type Source string

const (
	SourceWalkIn      Source = "Walk-in"
	SourceAppointment Source = "Appointment"
	SourceRSA         Source = "RSA"
)

// IsValidSource checks a source against the known set.
func IsValidSource(s Source) bool {
	switch s {
	case SourceWalkIn, SourceAppointment, SourceRSA:
		return true
	default:
		return false
	}
}

// EntryStatus is the register-facing status of a reception entry.
type EntryStatus string

const (
	StatusPendingContactValidation EntryStatus = "Pending Contact Validation"
	StatusValidated                EntryStatus = "Validated"
	StatusDocumentsPending         EntryStatus = "Documents Pending"
	StatusCompleted                EntryStatus = "Completed"
)

// DocumentKind names a document the desk takes custody of.
type DocumentKind string

const (
	DocInsurance DocumentKind = "insurance"
	DocRC        DocumentKind = "rc"
)

// DocumentStatus is the custody outcome for one document.
type DocumentStatus string

const (
	DocAttached     DocumentStatus = "attached"
	DocNotCollected DocumentStatus = "not_collected"
	DocMissing      DocumentStatus = "missing"
)

// DocumentState pairs a custody status with an optional reason. Reason is
// only meaningful for not_collected.
type DocumentState struct {
	Status DocumentStatus `bson:"status" json:"status"`
	Reason string         `bson:"reason,omitempty" json:"reason,omitempty"`
}

// Handled reports whether the document was explicitly dealt with, i.e. it is
// attached or recorded as not collected rather than simply missing.
func (d DocumentState) Handled() bool {
	return d.Status == DocAttached || d.Status == DocNotCollected
}

// DocumentSet covers both documents captured during intake.
type DocumentSet struct {
	Insurance DocumentState `bson:"insurance" json:"insurance"`
	RC        DocumentState `bson:"rc" json:"rc"`
}

// ReceptionEntry is the immutable record produced when a wizard session
// finalizes. Corrections happen elsewhere; this subsystem never mutates one.
type ReceptionEntry struct {
	EntryID       string        `bson:"entry_id" json:"entry_id"`
	EntryTime     time.Time     `bson:"entry_time" json:"entry_time"`
	ReceptionTime time.Time     `bson:"vehicle_reception_time" json:"vehicle_reception_time"`
	Source        Source        `bson:"source" json:"source"`
	Branch        string        `bson:"branch" json:"branch"`
	VehicleID     string        `bson:"vehicle_id" json:"vehicle_id"`
	RegNo         string        `bson:"vehicle_reg_no" json:"vehicle_reg_no"`
	VIN           string        `bson:"vin" json:"vin"`
	EngineNo      string        `bson:"engine_no" json:"engine_no"`
	Contact       ContactRecord `bson:"contact" json:"contact"`
	CustomerName  string        `bson:"customer_name" json:"customer_name"`
	ContactValid  bool          `bson:"contact_validation" json:"contact_validation"`
	Documents     DocumentSet   `bson:"documents" json:"documents"`
	Status        EntryStatus   `bson:"status" json:"status"`
	AppointmentID string        `bson:"linked_appointment_id,omitempty" json:"linked_appointment_id,omitempty"`
}

// DeriveStatus computes the register status from the entry contents. A
// finalized entry always has a validated contact, so the only open question
// is document custody.
func DeriveStatus(contactValid bool, docs DocumentSet) EntryStatus {
	if !contactValid {
		return StatusPendingContactValidation
	}
	if !docs.Insurance.Handled() || !docs.RC.Handled() {
		return StatusDocumentsPending
	}
	return StatusCompleted
}

// DateFilter selects the register view's date window.
type DateFilter string

const (
	DateToday     DateFilter = "today"
	DateYesterday DateFilter = "yesterday"
	DateThisWeek  DateFilter = "this_week"
	DateCustom    DateFilter = "custom"
)

// EntryFilter narrows the register listing. Zero values mean "all".
type EntryFilter struct {
	Branch     string
	Source     Source
	Status     EntryStatus
	DateFilter DateFilter
	From       time.Time
	To         time.Time
}

// Arrival is a roadside-assistance drop-off announcement queued for the
// front desk.
type Arrival struct {
	ArrivalID  string    `bson:"arrival_id" json:"arrival_id"`
	RegNo      string    `bson:"vehicle_reg_no" json:"vehicle_reg_no"`
	Phone      string    `bson:"phone" json:"phone"`
	Source     Source    `bson:"source" json:"source"`
	Note       string    `bson:"note" json:"note"`
	ReceivedAt time.Time `bson:"received_at" json:"received_at"`
	Handled    bool      `bson:"handled" json:"handled"`
}
