package deid

// Type values used by the default profile and understood by the built-in
// generators.
const (
	TypeLastName   = "LastName"
	TypeFirstName  = "FirstName"
	TypeMiddleName = "MiddleName"
	TypeAddress    = "Address"
	TypeCity       = "City"
	TypePhone      = "Phone"
	TypeSSN        = "SSN"
	TypeMRN        = "MRN"
	TypeBirthDate  = "BirthDate"
)

// DefaultPHIFields returns the built-in profile for the PID segment. It
// covers the HIPAA Safe Harbor identifiers an ADT feed usually carries:
//
//   - Names (patient, mother's maiden name, alias)
//   - Geographic data smaller than state (street, city, zip)
//   - Phone numbers
//   - Dates directly related to the patient (birth date)
//   - Medical record, account and social security numbers
//
// Name components are flagged for repass so that free text embedding them is
// rewritten with the same generated value. The middle name (PID-5.3) is left
// out: it is usually a single initial, and the rewrite replaces every
// occurrence of the original in the whole message, headers included. A fresh
// slice is returned on each call.
func DefaultPHIFields() []*ConfigItem {
	return []*ConfigItem{
		{ID: "PID-2.1", Label: "Patient ID", Type: TypeMRN, Generator: TypeMRN},
		{ID: "PID-3.1", Label: "Patient Identifier List", Type: TypeMRN, Generator: TypeMRN},
		{ID: "PID-4.1", Label: "Alternate Patient ID", Type: TypeMRN, Generator: TypeMRN},
		{ID: "PID-5.1", Label: "Family Name", Type: TypeLastName, Generator: TypeLastName, Repass: true},
		{ID: "PID-5.2", Label: "Given Name", Type: TypeFirstName, Generator: TypeFirstName, Repass: true},
		{ID: "PID-6.1", Label: "Mother's Maiden Name", Type: TypeLastName, Generator: TypeLastName},
		{ID: "PID-6.2", Label: "Mother's Given Name", Type: TypeFirstName, Generator: TypeFirstName},
		{ID: "PID-7.1", Label: "Date/Time of Birth", Type: TypeBirthDate, Generator: TypeBirthDate},
		{ID: "PID-9.1", Label: "Alias Family Name", Static: StaticValue("")},
		{ID: "PID-9.2", Label: "Alias Given Name", Static: StaticValue("")},
		{ID: "PID-11.1", Label: "Street Address", Type: TypeAddress, Generator: TypeAddress},
		{ID: "PID-11.3", Label: "City", Type: TypeCity, Generator: TypeCity},
		{ID: "PID-11.5", Label: "Zip or Postal Code", Static: StaticValue("00000")},
		{ID: "PID-13.1", Label: "Phone Number - Home", Type: TypePhone, Generator: TypePhone},
		{ID: "PID-14.1", Label: "Phone Number - Business", Type: TypePhone, Generator: TypePhone},
		{ID: "PID-18.1", Label: "Patient Account Number", Type: TypeMRN, Generator: TypeMRN},
		{ID: "PID-19.1", Label: "SSN Number - Patient", Static: StaticValue("999-99-9999")},
	}
}

// PHIFieldIDs returns the identifiers of DefaultPHIFields for fast look-up.
func PHIFieldIDs() map[string]bool {
	fields := DefaultPHIFields()
	ids := make(map[string]bool, len(fields))
	for _, f := range fields {
		ids[f.ID] = true
	}
	return ids
}
