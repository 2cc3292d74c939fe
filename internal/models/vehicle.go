package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// VehicleIdentity identifies a physical vehicle independent of any visit.
// It carries a denormalized snapshot of the last known customer so a search
// hit can be rendered without a second round trip.
type VehicleIdentity struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	RegNo         string             `bson:"vehicle_reg_no" json:"vehicle_reg_no"`
	VIN           string             `bson:"vin" json:"vin"`
	EngineNo      string             `bson:"engine_no" json:"engine_no"`
	Model         string             `bson:"model" json:"model"`
	CustomerName  string             `bson:"customer_name" json:"customer_name"`
	CustomerPhone string             `bson:"customer_phone" json:"customer_phone"`
	PhoneDigits   string             `bson:"customer_phone_digits" json:"-"`
	CustomerEmail string             `bson:"customer_email" json:"customer_email"`
	AppointmentID string             `bson:"appointment_id,omitempty" json:"appointment_id,omitempty"`
	LastIntakeAt  time.Time          `bson:"last_intake_at" json:"last_intake_at"`
	CreatedAt     time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time          `bson:"updated_at" json:"updated_at"`
}

// IdentifierKind selects which vehicle identifier an operation refers to.
type IdentifierKind string

const (
	IdentifierRegNo IdentifierKind = "reg_no"
	IdentifierVIN   IdentifierKind = "vin"
)

// VehicleIdentityPatch fills previously-missing identifiers. Nil fields are
// left untouched; writes are last-write-wins.
type VehicleIdentityPatch struct {
	RegNo *string
	VIN   *string
}

// MatchCandidate is the denormalized search result handed to the wizard.
// CandidateID is a stable key; selection is a lookup by id, never a pointer
// comparison.
type MatchCandidate struct {
	CandidateID   string    `json:"candidate_id"`
	RegNo         string    `json:"vehicle_reg_no"`
	VIN           string    `json:"vin"`
	EngineNo      string    `json:"engine_no"`
	Model         string    `json:"model"`
	CustomerName  string    `json:"customer_name"`
	CustomerPhone string    `json:"customer_phone"`
	CustomerEmail string    `json:"customer_email"`
	AppointmentID string    `json:"appointment_id,omitempty"`
	LastIntakeAt  time.Time `json:"last_intake_at"`
}

// RegNoMissing reports whether the candidate lacks a registration number.
func (m *MatchCandidate) RegNoMissing() bool { return m.RegNo == "" }

// VINMissing reports whether the candidate lacks a VIN.
func (m *MatchCandidate) VINMissing() bool { return m.VIN == "" }

// Candidate builds the search snapshot for a stored vehicle.
func (v *VehicleIdentity) Candidate() MatchCandidate {
	return MatchCandidate{
		CandidateID:   v.ID.Hex(),
		RegNo:         v.RegNo,
		VIN:           v.VIN,
		EngineNo:      v.EngineNo,
		Model:         v.Model,
		CustomerName:  v.CustomerName,
		CustomerPhone: v.CustomerPhone,
		CustomerEmail: v.CustomerEmail,
		AppointmentID: v.AppointmentID,
		LastIntakeAt:  v.LastIntakeAt,
	}
}
