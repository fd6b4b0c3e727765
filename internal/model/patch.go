package model

// Patch structs make "field not provided" vs "field explicitly cleared"
// unambiguous: nil means untouched, a pointer to the zero value means
// cleared. The source of a patch is always a JSON body with omitted keys
// decoding to nil.

// ProfilePatch updates the user profile. Email is deliberately absent:
// it is server-authoritative and cannot be changed through this path.
type ProfilePatch struct {
	Name  *string `json:"name,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

// Apply merges the patch into a profile copy and returns it.
func (p *ProfilePatch) Apply(profile UserProfile) UserProfile {
	if p.Name != nil {
		profile.Name = *p.Name
	}
	if p.Phone != nil {
		profile.Phone = *p.Phone
	}
	return profile
}

// MedicalPatch updates the medical satellite record. The record is
// upserted whole server-side, so Apply produces the full row.
type MedicalPatch struct {
	BloodGroup            *string `json:"blood_group,omitempty"`
	Allergies             *string `json:"allergies,omitempty"`
	Medications           *string `json:"medications,omitempty"`
	EmergencyContactName  *string `json:"emergency_contact_name,omitempty"`
	EmergencyContactPhone *string `json:"emergency_contact_phone,omitempty"`
}

func (p *MedicalPatch) Apply(info MedicalInfo) MedicalInfo {
	if p.BloodGroup != nil {
		info.BloodGroup = *p.BloodGroup
	}
	if p.Allergies != nil {
		info.Allergies = *p.Allergies
	}
	if p.Medications != nil {
		info.Medications = *p.Medications
	}
	if p.EmergencyContactName != nil {
		info.EmergencyContactName = *p.EmergencyContactName
	}
	if p.EmergencyContactPhone != nil {
		info.EmergencyContactPhone = *p.EmergencyContactPhone
	}
	return info
}

// ContactPatch updates a single emergency contact.
type ContactPatch struct {
	Name         *string `json:"name,omitempty"`
	Phone        *string `json:"phone,omitempty"`
	Relationship *string `json:"relationship,omitempty"`
}

func (p *ContactPatch) Apply(contact EmergencyContact) EmergencyContact {
	if p.Name != nil {
		contact.Name = *p.Name
	}
	if p.Phone != nil {
		contact.Phone = *p.Phone
	}
	if p.Relationship != nil {
		contact.Relationship = *p.Relationship
	}
	return contact
}

// UserInfoPatch is the partial aggregate accepted by POST /api/user-info.
type UserInfoPatch struct {
	Profile  *ProfilePatch      `json:"userInfo,omitempty"`
	Medical  *MedicalPatch      `json:"medicalInfo,omitempty"`
	Contacts []EmergencyContact `json:"emergencyContacts,omitempty"`
}
