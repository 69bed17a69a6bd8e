package models

import "fmt"

// Plan is the tier a user is billed for. It governs base quota.
type Plan string

const (
	PlanFree     Plan = "FREE"
	PlanPaid     Plan = "PAID"
	PlanReseller Plan = "RESELLER"
)

var planRank = map[Plan]int{
	PlanFree:     0,
	PlanPaid:     1,
	PlanReseller: 2,
}

func (p Plan) Valid() bool {
	_, ok := planRank[p]
	return ok
}

// Rank orders plans FREE < PAID < RESELLER. Unknown plans rank below FREE.
func (p Plan) Rank() int {
	if r, ok := planRank[p]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether p is the same tier as other or higher.
func (p Plan) AtLeast(other Plan) bool {
	return p.Rank() >= other.Rank()
}

func ParsePlan(s string) (Plan, error) {
	p := Plan(s)
	if !p.Valid() {
		return "", fmt.Errorf("unknown plan %q", s)
	}
	return p, nil
}

type Role string

const (
	RoleUser       Role = "USER"
	RoleSuperAdmin Role = "SUPERADMIN"
)

type KeyStatus string

const (
	KeyStatusActive  KeyStatus = "ACTIVE"
	KeyStatusRevoked KeyStatus = "REVOKED"
)

type SubscriptionStatus string

const (
	SubscriptionActive   SubscriptionStatus = "ACTIVE"
	SubscriptionExpired  SubscriptionStatus = "EXPIRED"
	SubscriptionCanceled SubscriptionStatus = "CANCELED"
)

func (s SubscriptionStatus) Valid() bool {
	switch s {
	case SubscriptionActive, SubscriptionExpired, SubscriptionCanceled:
		return true
	}
	return false
}
