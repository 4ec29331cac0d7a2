package domain

import (
	"strings"

	dErrors "tracechain/pkg/domain-errors"
)

// maxAddressLength bounds externally supplied addresses at trust boundaries.
const maxAddressLength = 128

// Address identifies a participant. It is opaque and supplied by the caller
// identity source; the ledger only compares it for equality.
type Address string

// ParseAddress trims and validates an address.
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address is required")
	}
	if len(s) > maxAddressLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address must be 128 characters or less")
	}
	if strings.ContainsAny(s, " \t\r\n") {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address must not contain whitespace")
	}
	return Address(s), nil
}

func (a Address) String() string {
	return string(a)
}

func (a Address) IsNil() bool {
	return a == ""
}
