package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(s string) *string { return &s }

func TestProfilePatchApply(t *testing.T) {
	base := UserProfile{ID: "u1", Name: "Asha", Email: "asha@example.com", Phone: "9876543210"}

	tests := []struct {
		name  string
		patch ProfilePatch
		want  UserProfile
	}{
		{
			"nil fields leave profile untouched",
			ProfilePatch{},
			base,
		},
		{
			"set name only",
			ProfilePatch{Name: ptr("Asha Rao")},
			UserProfile{ID: "u1", Name: "Asha Rao", Email: "asha@example.com", Phone: "9876543210"},
		},
		{
			"empty pointer clears phone",
			ProfilePatch{Phone: ptr("")},
			UserProfile{ID: "u1", Name: "Asha", Email: "asha@example.com", Phone: ""},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.patch.Apply(base)
			assert.Equal(t, tt.want, got)
			// Email has no patch field, so it can never change.
			assert.Equal(t, base.Email, got.Email)
		})
	}
}

func TestMedicalPatchApplyPartial(t *testing.T) {
	base := MedicalInfo{BloodGroup: "O+", Allergies: "peanuts"}

	got := (&MedicalPatch{Allergies: ptr(""), Medications: ptr("aspirin")}).Apply(base)
	assert.Equal(t, "O+", got.BloodGroup)
	assert.Empty(t, got.Allergies)
	assert.Equal(t, "aspirin", got.Medications)
}

// Omitted JSON keys must decode to nil pointers; that is what makes the
// absent-vs-cleared distinction survive the wire.
func TestUserInfoPatchJSONOmittedVsCleared(t *testing.T) {
	var patch UserInfoPatch
	require.NoError(t, json.Unmarshal([]byte(`{"userInfo":{"phone":""}}`), &patch))

	require.NotNil(t, patch.Profile)
	assert.Nil(t, patch.Profile.Name)
	require.NotNil(t, patch.Profile.Phone)
	assert.Empty(t, *patch.Profile.Phone)
	assert.Nil(t, patch.Medical)
	assert.Nil(t, patch.Contacts)
}

func TestEmergencyContactIsLocalOnly(t *testing.T) {
	assert.True(t, (&EmergencyContact{ID: TempIDPrefix + "abc"}).IsLocalOnly())
	assert.False(t, (&EmergencyContact{ID: "srv-1"}).IsLocalOnly())
	assert.False(t, (&EmergencyContact{}).IsLocalOnly())
}

func TestSharedDataSessionReadable(t *testing.T) {
	now := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		session SharedDataSession
		want    bool
	}{
		{"active and unexpired", SharedDataSession{Status: SessionActive, ExpiresAt: now.Add(time.Hour)}, true},
		{"revoked", SharedDataSession{Status: SessionRevoked, ExpiresAt: now.Add(time.Hour)}, false},
		{"expired", SharedDataSession{Status: SessionActive, ExpiresAt: now.Add(-time.Second)}, false},
		{"expires exactly now", SharedDataSession{Status: SessionActive, ExpiresAt: now}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.session.Readable(now))
		})
	}
}
