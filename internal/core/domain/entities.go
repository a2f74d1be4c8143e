package domain

import (
	"time"
)

// Role is a principal's authorization level.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleEditor, RoleViewer:
		return true
	}
	return false
}

// Principal is an account that can sign in.
type Principal struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	DisplayName  string     `json:"display_name"`
	PasswordHash string     `json:"-"`
	Role         Role       `json:"role"`
	CreatedAt    time.Time  `json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at,omitempty"`
}

// Session binds a browser cookie to a principal between login and logout.
type Session struct {
	ID          string       `json:"id"`
	PrincipalID string       `json:"principal_id"`
	Email       string       `json:"email"`
	DisplayName string       `json:"display_name"`
	Role        Role         `json:"role"`
	CreatedAt   time.Time    `json:"created_at"`
	ExpiresAt   time.Time    `json:"expires_at"`
	Geolocation *Geolocation `json:"geolocation,omitempty"`
}

// Expired reports whether the session is no longer usable at now.
func (s *Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Scope is the caller identity used for row-level checks.
func (s *Session) Scope() Scope {
	return Scope{PrincipalID: s.PrincipalID, Role: s.Role}
}

// Scope identifies who is asking; repositories turn it into SQL predicates.
type Scope struct {
	PrincipalID string
	Role        Role
}

// Visibility controls who besides the owner may read a record.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityShared  Visibility = "shared"
)

// Record is a geotagged entry shown on the dashboard.
type Record struct {
	ID           string         `json:"id"`
	OwnerID      string         `json:"owner_id"`
	Title        string         `json:"title"`
	Description  string         `json:"description,omitempty"`
	Category     string         `json:"category"`
	Location     GeoPoint       `json:"location"`
	Visibility   Visibility     `json:"visibility"`
	Tags         []string       `json:"tags,omitempty"`
	Attributes   map[string]any `json:"attributes,omitempty"`
	CoverMediaID *string        `json:"cover_media_id,omitempty"`
	Version      int            `json:"version"`
	Distance     *float64       `json:"distance,omitempty"` // computed field
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// RecordInput carries user-editable record fields.
type RecordInput struct {
	Title       string         `json:"title" validate:"required,max=200"`
	Description string         `json:"description" validate:"max=4000"`
	Category    string         `json:"category" validate:"required,max=64"`
	Lat         float64        `json:"lat" validate:"gte=-90,lte=90"`
	Lon         float64        `json:"lon" validate:"gte=-180,lte=180"`
	Visibility  Visibility     `json:"visibility" validate:"omitempty,oneof=private shared"`
	Tags        []string       `json:"tags" validate:"max=20,dive,max=32"`
	Attributes  map[string]any `json:"attributes"`
}

// RecordSort is an allowed ORDER BY key for record listings.
type RecordSort string

const (
	SortUpdated  RecordSort = "updated_at"
	SortTitle    RecordSort = "title"
	SortCategory RecordSort = "category"
)

// RecordFilter narrows a record listing.
type RecordFilter struct {
	Category  string
	Query     string
	Bounds    *Bounds
	OwnerOnly bool
	Sort      RecordSort
	Offset    int
	Limit     int
}

// RecordPage is one page of a filtered listing.
type RecordPage struct {
	Records []Record `json:"data"`
	Total   int      `json:"total"`
	Offset  int      `json:"offset"`
	Limit   int      `json:"limit"`
}

// RecordEventType names a change to a record.
type RecordEventType string

const (
	RecordCreated RecordEventType = "record.created"
	RecordUpdated RecordEventType = "record.updated"
	RecordDeleted RecordEventType = "record.deleted"
)

// RecordEvent is broadcast after a successful write.
type RecordEvent struct {
	Type     RecordEventType `json:"type"`
	RecordID string          `json:"record_id"`
	OwnerID  string          `json:"owner_id"`
	Shared   bool            `json:"shared"`
	Version  int             `json:"version"`
	At       time.Time       `json:"at"`
}

// MediaStatus is the processing state of an uploaded image.
type MediaStatus string

const (
	MediaStored     MediaStatus = "stored"
	MediaProcessing MediaStatus = "processing"
	MediaReady      MediaStatus = "ready"
	MediaFailed     MediaStatus = "failed"
)

// Media is an image attached to a record.
type Media struct {
	ID          string            `json:"id"`
	RecordID    string            `json:"record_id"`
	OwnerID     string            `json:"owner_id"`
	Filename    string            `json:"filename"`
	ContentType string            `json:"content_type"`
	Width       int               `json:"width"`
	Height      int               `json:"height"`
	SizeBytes   int64             `json:"size_bytes"`
	ObjectKey   string            `json:"-"`
	Derivatives map[string]string `json:"derivatives,omitempty"` // name -> object key
	Status      MediaStatus       `json:"status"`
	Error       string            `json:"error,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// MediaJob asks the media pipeline to build derivatives for one upload.
type MediaJob struct {
	MediaID   string `json:"media_id"`
	RecordID  string `json:"record_id"`
	ObjectKey string `json:"object_key"`
}

// Derivative is a resized rendition built from an original upload.
type Derivative struct {
	Name   string
	Width  int
	Height int  // 0 = preserve aspect ratio
	Crop   bool // center crop to exact dimensions
}

// Derivatives lists the renditions generated for every upload.
var Derivatives = []Derivative{
	{Name: "thumb", Width: 256, Height: 256, Crop: true},
	{Name: "display", Width: 1024},
}
