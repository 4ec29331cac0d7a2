package models

import "tracechain/pkg/domain"

// Balance is one holder's position in one token.
//
// Invariants:
//   - Available >= 0 and Locked >= 0
//   - For every token, the sum of Total over all holders equals TotalSupply
type Balance struct {
	TokenID   domain.TokenID `json:"token_id"`
	Holder    domain.Address `json:"holder"`
	Available int64          `json:"available"`
	Locked    int64          `json:"locked"`
}

// Zero is the record of a holder that never received the token.
func Zero(token domain.TokenID, holder domain.Address) Balance {
	return Balance{TokenID: token, Holder: holder}
}

func (b Balance) Total() int64 {
	return b.Available + b.Locked
}

func (b Balance) IsZero() bool {
	return b.Available == 0 && b.Locked == 0
}

// Key identifies a balance record and orders lock acquisition.
type Key struct {
	TokenID domain.TokenID
	Holder  domain.Address
}

func (k Key) Less(o Key) bool {
	if k.TokenID != o.TokenID {
		return k.TokenID < o.TokenID
	}
	return k.Holder < o.Holder
}
