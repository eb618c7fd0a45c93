package models

import "strings"

// Claim keys for declared numeric fields.
const (
	ClaimDoctorCount     = "doctor_count"
	ClaimBedCapacity     = "bed_capacity"
	ClaimYearEstablished = "year_established"
)

type Contact struct {
	Phones  []string `json:"phones,omitempty"`
	Email   string   `json:"email,omitempty"`
	Website string   `json:"website,omitempty"`
}

func (c Contact) Empty() bool {
	return len(c.Phones) == 0 && c.Email == "" && c.Website == ""
}

// FacilityRecord is one normalized row of the corpus. RowID is assigned once
// at load time and is the only identity citations refer to.
type FacilityRecord struct {
	RowID            int               `json:"row_id"`
	Name             string            `json:"name"`
	Region           string            `json:"region,omitempty"`
	City             string            `json:"city,omitempty"`
	Country          string            `json:"country,omitempty"`
	FacilityType     string            `json:"facility_type,omitempty"`
	OrganizationType string            `json:"organization_type,omitempty"`
	Specialties      []string          `json:"specialties,omitempty"`
	Procedures       []string          `json:"procedures,omitempty"`
	Equipment        []string          `json:"equipment,omitempty"`
	Capabilities     []string          `json:"capabilities,omitempty"`
	Contact          Contact           `json:"contact"`
	SourceURL        string            `json:"source_url,omitempty"`
	Description      string            `json:"description,omitempty"`
	Claims           map[string]string `json:"claims,omitempty"`
	ProfileText      string            `json:"-"`
}

// HasServices reports whether any of procedures, equipment or capabilities is present.
func (r *FacilityRecord) HasServices() bool {
	return len(r.Procedures) > 0 || len(r.Equipment) > 0 || len(r.Capabilities) > 0
}

func (r *FacilityRecord) HasSpecialty(specialty string) bool {
	for _, s := range r.Specialties {
		if strings.EqualFold(s, specialty) {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers cannot mutate corpus state.
func (r *FacilityRecord) Clone() FacilityRecord {
	out := *r
	out.Specialties = append([]string(nil), r.Specialties...)
	out.Procedures = append([]string(nil), r.Procedures...)
	out.Equipment = append([]string(nil), r.Equipment...)
	out.Capabilities = append([]string(nil), r.Capabilities...)
	out.Contact.Phones = append([]string(nil), r.Contact.Phones...)
	if r.Claims != nil {
		out.Claims = make(map[string]string, len(r.Claims))
		for k, v := range r.Claims {
			out.Claims[k] = v
		}
	}
	return out
}
