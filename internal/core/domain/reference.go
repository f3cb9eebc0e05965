package domain

import (
	"fmt"
	"strings"
)

// ReferenceKind tells what a charge pays for.
type ReferenceKind int

const (
	ReferenceInvalid ReferenceKind = iota
	ReferencePlan
	ReferenceOrder
)

// Reference is the decoded externalReference of a charge.
type Reference struct {
	Kind    ReferenceKind
	PlanID  string
	UserID  string
	OrderID string
}

// PlanReference composes plan_<planId>_user_<userId>.
func PlanReference(planID, userID string) string {
	return fmt.Sprintf("plan_%s_user_%s", planID, userID)
}

// OrderReference composes order_<orderId>.
func OrderReference(orderID string) string {
	return "order_" + orderID
}

// ParseReference decodes an internal reference. Plan and user ids may contain
// underscores; the last "_user_" separator wins.
func ParseReference(ref string) (Reference, error) {
	switch {
	case strings.HasPrefix(ref, "plan_"):
		rest := strings.TrimPrefix(ref, "plan_")
		idx := strings.LastIndex(rest, "_user_")
		if idx <= 0 || idx+len("_user_") >= len(rest) {
			return Reference{}, fmt.Errorf("malformed plan reference %q", ref)
		}
		return Reference{
			Kind:   ReferencePlan,
			PlanID: rest[:idx],
			UserID: rest[idx+len("_user_"):],
		}, nil
	case strings.HasPrefix(ref, "order_") && len(ref) > len("order_"):
		return Reference{Kind: ReferenceOrder, OrderID: strings.TrimPrefix(ref, "order_")}, nil
	default:
		return Reference{}, fmt.Errorf("unrecognized reference %q", ref)
	}
}
