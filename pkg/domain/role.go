package domain

import (
	"strings"

	dErrors "tracechain/pkg/domain-errors"
)

// Role is a participant's position in the supply chain.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleProducer Role = "producer"
	RoleFactory  Role = "factory"
	RoleRetailer Role = "retailer"
	RoleConsumer Role = "consumer"
)

// ParseRole accepts role names case-insensitively ("Producer", "producer").
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidRole, "unknown role: "+s)
	}
	return r, nil
}

func (r Role) IsValid() bool {
	switch r {
	case RoleAdmin, RoleProducer, RoleFactory, RoleRetailer, RoleConsumer:
		return true
	}
	return false
}

// IsRequestable reports whether a participant may ask for this role. Admin is
// seeded, never requested.
func (r Role) IsRequestable() bool {
	return r.IsValid() && r != RoleAdmin
}

func (r Role) String() string {
	return string(r)
}
