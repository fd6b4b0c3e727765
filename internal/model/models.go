package model

import (
	"strings"
	"time"
)

// TempIDPrefix marks client-generated contact ids that the server has not
// confirmed yet. A temp id is replaced, never duplicated, once the remote
// insert returns a durable id.
const TempIDPrefix = "temp_"

// -------------------- EMERGENCY CONTACT --------------------
type EmergencyContact struct {
	ID           string    `json:"id" db:"contact_id"`
	Name         string    `json:"name" db:"name"`
	Phone        string    `json:"phone" db:"phone"` // 10-digit local format
	Relationship string    `json:"relationship,omitempty" db:"relationship"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

// IsLocalOnly reports whether the contact still carries a temp id.
func (c *EmergencyContact) IsLocalOnly() bool {
	return strings.HasPrefix(c.ID, TempIDPrefix)
}

// -------------------- USER PROFILE --------------------
// Email is server-authoritative: it is returned on load but never written
// through the profile-save path.
type UserProfile struct {
	ID        string    `json:"id" db:"user_id"`
	Name      string    `json:"name" db:"name"`
	Email     string    `json:"email" db:"email"`
	Phone     string    `json:"phone,omitempty" db:"phone"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// -------------------- MEDICAL INFO --------------------
// A 1:1 satellite record keyed by user id, upserted as a whole.
type MedicalInfo struct {
	BloodGroup            string `json:"blood_group" db:"blood_group"`
	Allergies             string `json:"allergies" db:"allergies"`
	Medications           string `json:"medications" db:"medications"`
	EmergencyContactName  string `json:"emergency_contact_name" db:"emergency_contact_name"`
	EmergencyContactPhone string `json:"emergency_contact_phone" db:"emergency_contact_phone"`
}

// UserInfo is the aggregate the user-info surface serves.
type UserInfo struct {
	Profile  UserProfile        `json:"userInfo"`
	Medical  MedicalInfo        `json:"medicalInfo"`
	Contacts []EmergencyContact `json:"emergencyContacts"`
}

// -------------------- LOCATION POINT --------------------
type LocationPoint struct {
	ID        string   `json:"id" db:"point_id"`
	Latitude  float64  `json:"latitude" db:"latitude"`
	Longitude float64  `json:"longitude" db:"longitude"`
	Accuracy  *float64 `json:"accuracy,omitempty" db:"accuracy"`
	Altitude  *float64 `json:"altitude,omitempty" db:"altitude"`
	Speed     *float64 `json:"speed,omitempty" db:"speed"`
	Heading   *float64 `json:"heading,omitempty" db:"heading"`
	Timestamp int64    `json:"timestamp" db:"ts"` // epoch millis
	Address   string   `json:"address,omitempty" db:"address"`
}

// -------------------- SHARED DATA SESSION --------------------
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionRevoked SessionStatus = "revoked"
)

// SharedDataSession is server-side only. A session is readable while
// status != revoked and now < expires_at; each successful read increments
// view_count. The access token is "<session_id>.<secret>"; only an argon2
// hash of the secret half is stored.
type SharedDataSession struct {
	ID            string        `json:"id" db:"session_id"`
	TokenHash     string        `json:"-" db:"token_hash"`
	RecipientName string        `json:"recipient_name" db:"recipient_name"`
	ExpiresAt     time.Time     `json:"expires_at" db:"expires_at"`
	Status        SessionStatus `json:"status" db:"status"`
	ViewCount     int           `json:"view_count" db:"view_count"`
	EvidenceIDs   []string      `json:"evidence_ids" db:"evidence_ids"`
	UserID        string        `json:"user_id" db:"user_id"`
	CreatedAt     time.Time     `json:"created_at" db:"created_at"`
}

// Readable reports whether the session may be served at the given time.
func (s *SharedDataSession) Readable(now time.Time) bool {
	return s.Status != SessionRevoked && now.Before(s.ExpiresAt)
}

// SharedDataView is the payload served for a valid shared-data link:
// evidence plus the last 24h of location history.
type SharedDataView struct {
	Session   *SharedDataSession `json:"session"`
	Locations []LocationPoint    `json:"locations"`
}

// -------------------- SYNC AUDIT --------------------
// SyncAuditEvent is published per sync outcome.
type SyncAuditEvent struct {
	UserID    string    `json:"user_id"`
	Entity    string    `json:"entity"`
	Operation string    `json:"operation"`
	Status    string    `json:"status"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
