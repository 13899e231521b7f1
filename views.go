package authgate

import "strings"

// Output shapes for principal data. Each view is an explicit field-selection
// function: what a shape exposes is visible in code, not decided at runtime
// by reflection. Password hashes never appear in any view.

// PrincipalView is a serialization-ready projection of a principal. Fields
// not selected by the requested shape stay zero and are omitted on encode.
type PrincipalView struct {
	ID          string `json:"id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role,omitempty"`
	Enabled     *bool  `json:"enabled,omitempty"`
}

// BasicView exposes only the identifier and display name.
func BasicView(r PrincipalRecord) PrincipalView {
	return PrincipalView{
		ID:          r.ID,
		DisplayName: r.DisplayName,
	}
}

// RegularView adds the email and role to [BasicView].
func RegularView(r PrincipalRecord) PrincipalView {
	v := BasicView(r)
	v.Email = r.Email
	v.Role = r.Role
	return v
}

// DetailedView adds the enabled flag to [RegularView]. Credential hashes and
// change timestamps are sensitive and have no view.
func DetailedView(r PrincipalRecord) PrincipalView {
	v := RegularView(r)
	enabled := r.Enabled
	v.Enabled = &enabled
	return v
}

// MaskEmail redacts the local part of an address for audit metadata,
// keeping the first character and the domain: "alice@example.com" becomes
// "a***@example.com". Values without an "@" are fully masked.
func MaskEmail(email string) string {
	at := strings.IndexByte(email, '@')
	if at <= 0 {
		return "***"
	}
	return email[:1] + "***" + email[at:]
}
