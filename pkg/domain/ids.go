package domain

import (
	"strconv"

	dErrors "tracechain/pkg/domain-errors"
)

// TokenID is assigned by the catalog in creation order. Zero is reserved for
// "no parent".
type TokenID uint64

// TransferID is assigned by the transfer engine in proposal order.
type TransferID uint64

// RegistrationID numbers participant registrations in request order.
type RegistrationID uint64

func ParseTokenID(s string) (TokenID, error) {
	v, err := parsePositive(s, "token id")
	return TokenID(v), err
}

func ParseTransferID(s string) (TransferID, error) {
	v, err := parsePositive(s, "transfer id")
	return TransferID(v), err
}

func (id TokenID) String() string        { return strconv.FormatUint(uint64(id), 10) }
func (id TransferID) String() string     { return strconv.FormatUint(uint64(id), 10) }
func (id RegistrationID) String() string { return strconv.FormatUint(uint64(id), 10) }

// IsRoot reports whether the id is the "no parent" sentinel.
func (id TokenID) IsRoot() bool { return id == 0 }

func parsePositive(s, what string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "invalid "+what)
	}
	if v == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, what+" must be positive")
	}
	return v, nil
}
