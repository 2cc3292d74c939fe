package models

import (
	"errors"
	"strings"
	"time"
)

// CustomerType distinguishes private owners from company fleets.
type CustomerType string

const (
	CustomerIndividual CustomerType = "Individual"
	CustomerCompany    CustomerType = "Company"
)

// DrivenBy records who brought the vehicle in.
type DrivenBy string

const (
	DrivenByOwner  DrivenBy = "Owner"
	DrivenByUser   DrivenBy = "User"
	DrivenByDriver DrivenBy = "Driver"
)

// ContactRecord is the customer-facing data associated with a vehicle's most
// recent intake. Each successful intake supersedes the previous snapshot.
type ContactRecord struct {
	CustomerType  CustomerType `bson:"customer_type" json:"customer_type"`
	FirstName     string       `bson:"first_name" json:"first_name"`
	LastName      string       `bson:"last_name" json:"last_name"`
	CompanyName   string       `bson:"company_name" json:"company_name"`
	Address       string       `bson:"address" json:"address"`
	City          string       `bson:"city" json:"city"`
	State         string       `bson:"state" json:"state"`
	Pin           string       `bson:"pin" json:"pin"`
	ContactNo     string       `bson:"contact_no" json:"contact_no"`
	AlternateNo   string       `bson:"alternate_no" json:"alternate_no"`
	Email         string       `bson:"email" json:"email"`
	DateOfBirth   string       `bson:"date_of_birth" json:"date_of_birth"`
	Anniversary   string       `bson:"anniversary" json:"anniversary"`
	DrivenBy      DrivenBy     `bson:"driven_by" json:"driven_by"`
	ContactModes  []string     `bson:"preferred_contact_mode" json:"preferred_contact_mode"`
	ContactTimes  []string     `bson:"preferred_contact_time" json:"preferred_contact_time"`
}

// StoredContact is a ContactRecord as persisted, keyed by the vehicle it
// belongs to.
type StoredContact struct {
	VehicleID     string        `bson:"vehicle_id" json:"vehicle_id"`
	ContactRecord `bson:",inline"`
	UpdatedAt     time.Time `bson:"updated_at" json:"updated_at"`
}

// CustomerName renders the display name for the record's customer type.
func (c *ContactRecord) CustomerName() string {
	if c.CustomerType == CustomerCompany {
		return strings.TrimSpace(c.CompanyName)
	}
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}

// Validate enforces the contact invariants: customer-type-appropriate name
// fields and a mandatory primary phone.
func (c *ContactRecord) Validate() error {
	switch c.CustomerType {
	case CustomerCompany:
		if strings.TrimSpace(c.CompanyName) == "" {
			return errors.New("company name required")
		}
	case CustomerIndividual, "":
		if strings.TrimSpace(c.FirstName) == "" || strings.TrimSpace(c.LastName) == "" {
			return errors.New("first and last name required")
		}
	default:
		return errors.New("unknown customer type")
	}
	if strings.TrimSpace(c.ContactNo) == "" {
		return errors.New("contact no required")
	}
	return nil
}

// IsValidDrivenBy checks a driven-by value against the known set.
func IsValidDrivenBy(d DrivenBy) bool {
	switch d {
	case DrivenByOwner, DrivenByUser, DrivenByDriver:
		return true
	default:
		return false
	}
}
