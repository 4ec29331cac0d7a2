package models

import (
	"strings"
	"time"

	"tracechain/pkg/domain"
	dErrors "tracechain/pkg/domain-errors"
)

// MaxNameLength bounds token names in bytes.
const MaxNameLength = 128

// Token is a minted batch of goods.
//
// Invariants:
//   - ID is assigned once and never reused
//   - TotalSupply > 0 and never changes
//   - ParentID is 0 for raw material, otherwise an older token
type Token struct {
	ID          domain.TokenID `json:"id"`
	Creator     domain.Address `json:"creator"`
	Name        string         `json:"name"`
	TotalSupply int64          `json:"total_supply"`
	Metadata    string         `json:"metadata,omitempty"`
	ParentID    domain.TokenID `json:"parent_id"`
	CreatedAt   time.Time      `json:"created_at"`
}

func (t *Token) IsRoot() bool {
	return t.ParentID.IsRoot()
}

// CreateTokenRequest is the input to minting.
type CreateTokenRequest struct {
	Name        string
	TotalSupply int64
	Metadata    string
	ParentID    domain.TokenID
}

func (r *CreateTokenRequest) Normalize() {
	r.Name = strings.TrimSpace(r.Name)
}

// ValidateName checks the name alone; supply and parent are checked by the
// catalog in its documented order.
func (r *CreateTokenRequest) ValidateName() error {
	if r.Name == "" {
		return dErrors.New(dErrors.CodeBadRequest, "token name is required")
	}
	if len(r.Name) > MaxNameLength {
		return dErrors.New(dErrors.CodeBadRequest, "token name must be 128 bytes or less")
	}
	return nil
}

// NewToken builds a token from a validated request.
func NewToken(id domain.TokenID, creator domain.Address, req CreateTokenRequest, now time.Time) *Token {
	return &Token{
		ID:          id,
		Creator:     creator,
		Name:        req.Name,
		TotalSupply: req.TotalSupply,
		Metadata:    req.Metadata,
		ParentID:    req.ParentID,
		CreatedAt:   now,
	}
}
