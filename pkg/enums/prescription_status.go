package enums

import "fmt"

// PrescriptionStatus is stored in prescriptions.status.
type PrescriptionStatus string

const (
	PrescriptionStatusPending   PrescriptionStatus = "pending"
	PrescriptionStatusProcessed PrescriptionStatus = "processed"
	PrescriptionStatusRejected  PrescriptionStatus = "rejected"
)

var validPrescriptionStatuses = []PrescriptionStatus{
	PrescriptionStatusPending,
	PrescriptionStatusProcessed,
	PrescriptionStatusRejected,
}

// String implements fmt.Stringer.
func (s PrescriptionStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known PrescriptionStatus.
func (s PrescriptionStatus) IsValid() bool {
	for _, candidate := range validPrescriptionStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no further status change is allowed.
func (s PrescriptionStatus) IsTerminal() bool {
	return s == PrescriptionStatusProcessed || s == PrescriptionStatusRejected
}

// ParsePrescriptionStatus converts raw input into a PrescriptionStatus.
func ParsePrescriptionStatus(value string) (PrescriptionStatus, error) {
	for _, candidate := range validPrescriptionStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid prescription status %q", value)
}
