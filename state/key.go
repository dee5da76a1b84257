// Package state is the typed, lifetime-aware view of a store.Store that a
// single ledger invocation works against.
//
// A Tx buffers every write and lifetime extension made during one call and
// hands them to the backend in one batch on Commit. Abandoning a Tx without
// committing discards everything it recorded.
package state

import (
	"strconv"

	"github.com/xraph/subledger/id"
	"github.com/xraph/subledger/store"
)

// Kind discriminates the logical tables of the ledger keyspace.
type Kind uint8

// Kinds of the instance class come first, then the persistent ones.
const (
	KindAdmin Kind = iota + 1
	KindPaymentToken
	KindTreasury
	KindPlanCount
	KindSubscriberCount
	KindPlan
	KindPlanIndex
	KindSubscriberIndex
	KindSubscriberSeen
	KindSubscription
)

var kindNames = map[Kind]string{
	KindAdmin:           "admin",
	KindPaymentToken:    "payment_token",
	KindTreasury:        "treasury",
	KindPlanCount:       "plan_count",
	KindSubscriberCount: "subscriber_count",
	KindPlan:            "plan",
	KindPlanIndex:       "plan_index",
	KindSubscriberIndex: "subscriber_index",
	KindSubscriberSeen:  "subscriber_seen",
	KindSubscription:    "sub",
}

// String returns the kind's key prefix.
func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return "unknown"
}

// Key addresses one entry. Construct keys with the helpers below; the zero
// Key is invalid.
type Key struct {
	kind      Kind
	index     uint32
	principal id.Principal
}

// AdminKey addresses the administrator principal.
func AdminKey() Key { return Key{kind: KindAdmin} }

// PaymentTokenKey addresses the token identifier the ledger charges in.
func PaymentTokenKey() Key { return Key{kind: KindPaymentToken} }

// TreasuryKey addresses the principal that receives every charge.
func TreasuryKey() Key { return Key{kind: KindTreasury} }

// PlanCountKey addresses the number of plans ever created.
func PlanCountKey() Key { return Key{kind: KindPlanCount} }

// SubscriberCountKey addresses the number of distinct subscribers.
func SubscriberCountKey() Key { return Key{kind: KindSubscriberCount} }

// PlanKey addresses the plan record with the given id.
func PlanKey(planID uint32) Key { return Key{kind: KindPlan, index: planID} }

// PlanIndexKey addresses the id of the i-th plan in creation order.
func PlanIndexKey(i uint32) Key { return Key{kind: KindPlanIndex, index: i} }

// SubscriberIndexKey addresses the i-th subscriber in first-seen order.
func SubscriberIndexKey(i uint32) Key { return Key{kind: KindSubscriberIndex, index: i} }

// SubscriberSeenKey marks that p has been added to the subscriber index.
func SubscriberSeenKey(p id.Principal) Key { return Key{kind: KindSubscriberSeen, principal: p} }

// SubscriptionKey addresses the subscription record of p.
func SubscriptionKey(p id.Principal) Key { return Key{kind: KindSubscription, principal: p} }

// Kind returns the key's logical table.
func (k Key) Kind() Kind { return k.kind }

// Class returns the lifetime class the key belongs to.
func (k Key) Class() store.Class {
	switch k.kind {
	case KindAdmin, KindPaymentToken, KindTreasury, KindPlanCount, KindSubscriberCount:
		return store.ClassInstance
	default:
		return store.ClassPersistent
	}
}

// String renders the stable backend key, e.g. "plan/7" or "sub/acct_01h...".
func (k Key) String() string {
	switch k.kind {
	case KindPlan, KindPlanIndex, KindSubscriberIndex:
		return k.kind.String() + "/" + strconv.FormatUint(uint64(k.index), 10)
	case KindSubscriberSeen, KindSubscription:
		return k.kind.String() + "/" + k.principal.String()
	default:
		return k.kind.String()
	}
}
