package hl7v2

// Display names for the fields and components that de-identification
// profiles usually touch. Anything not listed is named by its identifier.
var fieldNames = map[string]string{
	"MSH-3":  "Sending Application",
	"MSH-4":  "Sending Facility",
	"MSH-5":  "Receiving Application",
	"MSH-6":  "Receiving Facility",
	"MSH-7":  "Date/Time of Message",
	"MSH-9":  "Message Type",
	"MSH-10": "Message Control ID",
	"MSH-12": "Version ID",
	"PID-2":  "Patient ID",
	"PID-3":  "Patient Identifier List",
	"PID-4":  "Alternate Patient ID",
	"PID-5":  "Patient Name",
	"PID-6":  "Mother's Maiden Name",
	"PID-7":  "Date/Time of Birth",
	"PID-8":  "Administrative Sex",
	"PID-9":  "Patient Alias",
	"PID-11": "Patient Address",
	"PID-13": "Phone Number - Home",
	"PID-14": "Phone Number - Business",
	"PID-18": "Patient Account Number",
	"PID-19": "SSN Number - Patient",
	"PID-20": "Driver's License Number",
	"NK1-2":  "Next of Kin Name",
	"NK1-4":  "Next of Kin Address",
	"NK1-5":  "Next of Kin Phone Number",
	"OBX-5":  "Observation Value",
	"NTE-3":  "Comment",
}

var componentNames = map[string]string{
	"PID-3.1":  "ID Number",
	"PID-5.1":  "Family Name",
	"PID-5.2":  "Given Name",
	"PID-5.3":  "Second and Further Given Names",
	"PID-6.1":  "Family Name",
	"PID-6.2":  "Given Name",
	"PID-11.1": "Street Address",
	"PID-11.2": "Other Designation",
	"PID-11.3": "City",
	"PID-11.4": "State or Province",
	"PID-11.5": "Zip or Postal Code",
	"PID-13.1": "Telephone Number",
	"PID-14.1": "Telephone Number",
	"NK1-2.1":  "Family Name",
	"NK1-2.2":  "Given Name",
}

func fieldName(id string) string {
	if name, ok := fieldNames[id]; ok {
		return name
	}
	return id
}

func componentName(id string) string {
	if name, ok := componentNames[id]; ok {
		return name
	}
	return id
}
