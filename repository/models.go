package repository

import (
	"time"

	"github.com/google/uuid"
	authstate "github.com/safeguard70e/go-authstate"
	"github.com/uptrace/bun"
)

// Profile is the application-side profile row backing a remote identity.
// Its primary key is the identity service's user id.
type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:prf"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	DisplayName   string     `bun:"display_name,notnull" json:"display_name,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Role          string     `bun:"role,notnull" json:"role,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// AssetStatus classifies equipment by test due date.
type AssetStatus = string

const (
	// AssetStatusActive is equipment with more than the warning window left.
	AssetStatusActive AssetStatus = "active"
	// AssetStatusNearDue is equipment due for testing within the window.
	AssetStatusNearDue AssetStatus = "neardue"
	// AssetStatusExpired is equipment past its test due date.
	AssetStatusExpired AssetStatus = "expired"
)

// NearDueWindow is how close to the test due date equipment starts being
// flagged.
const NearDueWindow = 30 * 24 * time.Hour

// Asset is a tracked piece of electrical PPE (gloves, blankets, arc flash
// suits) subject to periodic dielectric testing.
type Asset struct {
	bun.BaseModel  `bun:"table:assets,alias:ast"`
	ID             uuid.UUID        `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	SerialNumber   string           `bun:"serial_number,notnull,unique" json:"serial_number,omitempty"`
	Classification string           `bun:"classification,notnull" json:"classification,omitempty"`
	Description    string           `bun:"description" json:"description,omitempty"`
	AssignedTo     *uuid.UUID       `bun:"assigned_to,nullzero,type:uuid" json:"assigned_to,omitempty"`
	IssuedAt       *time.Time       `bun:"issued_at,nullzero" json:"issued_at,omitempty"`
	LastTestedAt   *time.Time       `bun:"last_tested_at,nullzero" json:"last_tested_at,omitempty"`
	NextTestDue    *time.Time       `bun:"next_test_due,nullzero" json:"next_test_due,omitempty"`
	Documents      []*AssetDocument `bun:"rel:has-many,join:id=asset_id" json:"documents,omitempty"`
	CreatedAt      *time.Time       `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time       `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time       `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// Status derives the compliance state at the given instant. Equipment with
// no due date recorded counts as expired; untested gear must not read as
// compliant.
func (a *Asset) Status(now time.Time) AssetStatus {
	if a == nil || a.NextTestDue == nil {
		return AssetStatusExpired
	}

	remaining := a.NextTestDue.Sub(now)
	switch {
	case remaining < 0:
		return AssetStatusExpired
	case remaining <= NearDueWindow:
		return AssetStatusNearDue
	default:
		return AssetStatusActive
	}
}

// AssetDocument is an attachment on an asset: test certificates, photos,
// manufacturer data sheets.
type AssetDocument struct {
	bun.BaseModel `bun:"table:asset_documents,alias:doc"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	AssetID       uuid.UUID  `bun:"asset_id,notnull,type:uuid" json:"asset_id,omitempty"`
	Name          string     `bun:"name,notnull" json:"name,omitempty"`
	URL           string     `bun:"url,notnull" json:"url,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// AuthProfile projects the row into the auth core's profile shape.
func (p *Profile) AuthProfile() *authstate.Profile {
	if p == nil {
		return nil
	}
	role, _ := authstate.ParseRole(p.Role)
	return &authstate.Profile{
		UserID:      p.ID.String(),
		DisplayName: p.DisplayName,
		Email:       p.Email,
		Role:        role,
	}
}
