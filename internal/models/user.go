package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Role represents front-desk staff roles.
type Role string

const (
	RoleCRM          Role = "CRM" // customer relations manager, full access
	RoleCRE          Role = "CRE"
	RoleReceptionist Role = "Receptionist"
	RoleDP           Role = "DP"
)

// User represents a staff member who can operate the reception desk.
type User struct {
	ID           primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username     string             `bson:"username" json:"username"`
	Email        string             `bson:"email" json:"email"`
	PasswordHash string             `bson:"password_hash" json:"-"`
	Role         Role               `bson:"role" json:"role"`
	FirstName    string             `bson:"first_name" json:"first_name"`
	LastName     string             `bson:"last_name" json:"last_name"`
	Branch       string             `bson:"branch" json:"branch"`
	IsActive     bool               `bson:"is_active" json:"is_active"`
	LastLogin    *time.Time         `bson:"last_login,omitempty" json:"last_login,omitempty"`
	CreatedAt    time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt    time.Time          `bson:"updated_at" json:"updated_at"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse represents a successful login response
type LoginResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
	User         User   `json:"user"`
}

// Claims represents JWT claims
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
	Exp      int64  `json:"exp"`
}

// IsValidRole checks if a role is valid
func IsValidRole(role Role) bool {
	switch role {
	case RoleCRM, RoleCRE, RoleReceptionist, RoleDP:
		return true
	default:
		return false
	}
}

// Actions gated by HasPermission.
const (
	ActionViewReception   = "view_reception"
	ActionCreateReception = "create_reception"
	ActionSearchVehicles  = "search_vehicles"
	ActionViewArrivals    = "view_arrivals"
)

// HasPermission checks if a user has permission for a specific action.
func (u *User) HasPermission(action string) bool {
	switch u.Role {
	case RoleCRM:
		return true
	case RoleCRE, RoleReceptionist:
		return action == ActionViewReception || action == ActionCreateReception ||
			action == ActionSearchVehicles || action == ActionViewArrivals
	case RoleDP:
		return action == ActionViewReception || action == ActionViewArrivals
	default:
		return false
	}
}
