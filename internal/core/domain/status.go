package domain

import "strings"

// PaymentStatus is the internal payment-status taxonomy.
type PaymentStatus string

const (
	StatusPending          PaymentStatus = "pending"
	StatusPaid             PaymentStatus = "paid"
	StatusOverdue          PaymentStatus = "overdue"
	StatusFailed           PaymentStatus = "failed"
	StatusRefunded         PaymentStatus = "refunded"
	StatusRefundRequested  PaymentStatus = "refund_requested"
	StatusRefundInProgress PaymentStatus = "refund_in_progress"
	StatusChargeback       PaymentStatus = "chargeback"
	StatusDunning          PaymentStatus = "dunning"
	StatusUnknown          PaymentStatus = "unknown"
)

// Provider names a payment gateway vocabulary.
type Provider string

const (
	ProviderAsaas       Provider = "asaas"
	ProviderMercadoPago Provider = "mercadopago"
)

var asaasStatuses = map[string]PaymentStatus{
	"PENDING":                      StatusPending,
	"AWAITING_RISK_ANALYSIS":       StatusPending,
	"RECEIVED":                     StatusPaid,
	"CONFIRMED":                    StatusPaid,
	"RECEIVED_IN_CASH":             StatusPaid,
	"DUNNING_RECEIVED":             StatusPaid,
	"OVERDUE":                      StatusOverdue,
	"REFUNDED":                     StatusRefunded,
	"REFUND_REQUESTED":             StatusRefundRequested,
	"REFUND_IN_PROGRESS":           StatusRefundInProgress,
	"CHARGEBACK_REQUESTED":         StatusChargeback,
	"CHARGEBACK_DISPUTE":           StatusChargeback,
	"AWAITING_CHARGEBACK_REVERSAL": StatusChargeback,
	"DUNNING_REQUESTED":            StatusDunning,
}

var mercadoPagoStatuses = map[string]PaymentStatus{
	"pending":      StatusPending,
	"in_process":   StatusPending,
	"authorized":   StatusPending,
	"approved":     StatusPaid,
	"rejected":     StatusFailed,
	"cancelled":    StatusFailed,
	"refunded":     StatusRefunded,
	"in_mediation": StatusChargeback,
	"charged_back": StatusChargeback,
}

// MapExternalStatus maps the Asaas status vocabulary onto the internal
// taxonomy. Anything not in the table is StatusUnknown.
func MapExternalStatus(raw string) PaymentStatus {
	if s, ok := asaasStatuses[strings.TrimSpace(raw)]; ok {
		return s
	}
	return StatusUnknown
}

// MapMercadoPagoStatus maps the Mercado Pago status vocabulary.
func MapMercadoPagoStatus(raw string) PaymentStatus {
	if s, ok := mercadoPagoStatuses[strings.ToLower(strings.TrimSpace(raw))]; ok {
		return s
	}
	return StatusUnknown
}

// StatusMapper maps one provider's raw status to the internal taxonomy.
type StatusMapper func(raw string) PaymentStatus

// MapperFor returns the status mapper of a provider.
func MapperFor(p Provider) StatusMapper {
	if p == ProviderMercadoPago {
		return MapMercadoPagoStatus
	}
	return MapExternalStatus
}

// statusEdges are the direct "moves forward to" edges of the partial order.
// chargeback is reachable from every other status and handled in Precedes.
var statusEdges = map[PaymentStatus][]PaymentStatus{
	StatusPending:          {StatusPaid, StatusOverdue, StatusFailed, StatusDunning},
	StatusOverdue:          {StatusPaid, StatusDunning},
	StatusDunning:          {StatusPaid},
	StatusPaid:             {StatusRefundRequested, StatusRefunded},
	StatusRefundRequested:  {StatusRefundInProgress},
	StatusRefundInProgress: {StatusRefunded},
}

// Precedes reports whether a < b in the payment-status partial order.
func Precedes(a, b PaymentStatus) bool {
	if a == b || a == StatusUnknown || b == StatusUnknown {
		return false
	}
	if b == StatusChargeback {
		return true
	}
	seen := map[PaymentStatus]bool{a: true}
	queue := []PaymentStatus{a}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range statusEdges[cur] {
			if next == b {
				return true
			}
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}
	return false
}

// Transition classifies a proposed status change.
type Transition int

const (
	// TransitionAdvance moves the charge forward and must be persisted.
	TransitionAdvance Transition = iota
	// TransitionDuplicate repeats the current status.
	TransitionDuplicate
	// TransitionRegression would move backward or sideways and is discarded.
	TransitionRegression
	// TransitionUnknown carries an unmapped provider status.
	TransitionUnknown
)

func (t Transition) String() string {
	switch t {
	case TransitionAdvance:
		return "advance"
	case TransitionDuplicate:
		return "duplicate"
	case TransitionRegression:
		return "regression"
	default:
		return "unknown"
	}
}

// ClassifyTransition decides whether current -> next may be applied.
// An empty current status is treated as a fresh charge.
func ClassifyTransition(current, next PaymentStatus) Transition {
	switch {
	case next == StatusUnknown:
		return TransitionUnknown
	case current == next:
		return TransitionDuplicate
	case current == "" || Precedes(current, next):
		return TransitionAdvance
	default:
		return TransitionRegression
	}
}

func upper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
