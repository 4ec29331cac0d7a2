// Package topology is the closed policy table for who may mint and who may
// ship goods to whom. Goods only move one step forward along
// Producer → Factory → Retailer → Consumer; Admin never holds goods.
package topology

import "tracechain/pkg/domain"

var minters = map[domain.Role]bool{
	domain.RoleProducer: true,
	domain.RoleFactory:  true,
	domain.RoleRetailer: true,
}

// downstream maps each sender role to the single role it may ship to.
var downstream = map[domain.Role]domain.Role{
	domain.RoleProducer: domain.RoleFactory,
	domain.RoleFactory:  domain.RoleRetailer,
	domain.RoleRetailer: domain.RoleConsumer,
}

// CanMint reports whether a participant holding role may create tokens.
func CanMint(role domain.Role) bool {
	return minters[role]
}

// CanSendTo reports whether sender may propose a transfer to recipient.
func CanSendTo(sender, recipient domain.Role) bool {
	next, ok := downstream[sender]
	return ok && next == recipient
}

// RecipientRole returns the role sender may ship to, if any.
func RecipientRole(sender domain.Role) (domain.Role, bool) {
	next, ok := downstream[sender]
	return next, ok
}
