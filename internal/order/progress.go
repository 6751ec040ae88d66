package order

import (
	"sort"
	"time"

	"github.com/kiwari-pos/fulfillment/internal/enum"
)

// Stage is a step of the five-step progress stepper.
type Stage int

const (
	StageConfirmed Stage = iota
	StageSentToWarehouse
	StagePacked
	StageShipped
	StageDelivered
)

func (s Stage) String() string {
	switch s {
	case StageConfirmed:
		return "Confirmed"
	case StageSentToWarehouse:
		return "SentToWarehouse"
	case StagePacked:
		return "Packed"
	case StageShipped:
		return "Shipped"
	case StageDelivered:
		return "Delivered"
	default:
		return "Unknown"
	}
}

// MarshalText renders the stage name in JSON.
func (s Stage) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ProgressRule maps one predicate over the order's signals to a stage.
type ProgressRule struct {
	Name  string
	Match func(o *Order) bool
	Stage Stage
}

// progressRules is evaluated top-down; the first match wins.
// Status and packages are updated independently upstream, so ties go to the
// more terminal stage by ordering alone.
var progressRules = []ProgressRule{
	{
		Name:  "delivered",
		Match: func(o *Order) bool { return o.Status == enum.OrderStatusDelivered },
		Stage: StageDelivered,
	},
	{
		Name:  "shipped",
		Match: func(o *Order) bool { return o.Status == enum.OrderStatusShipped },
		Stage: StageShipped,
	},
	{
		Name: "packed",
		Match: func(o *Order) bool {
			return len(o.Packages) > 0 &&
				(o.Status == enum.OrderStatusProcessing || o.Status == enum.OrderStatusConfirmed)
		},
		Stage: StagePacked,
	},
	{
		Name:  "sent_to_warehouse",
		Match: func(o *Order) bool { return o.Status == enum.OrderStatusProcessing },
		Stage: StageSentToWarehouse,
	},
}

// ProgressRules returns a copy of the ladder in evaluation order.
func ProgressRules() []ProgressRule {
	out := make([]ProgressRule, len(progressRules))
	copy(out, progressRules)
	return out
}

// Progress returns the highest satisfied stage. It does not enforce monotonicity.
func Progress(o *Order) Stage {
	for _, r := range progressRules {
		if r.Match(o) {
			return r.Stage
		}
	}
	return StageConfirmed
}

// ShipmentSummary describes an order's shipments for display.
type ShipmentSummary struct {
	Stage           Stage      `json:"stage"`
	StageIndex      int        `json:"stage_index"`
	PackageCount    int        `json:"package_count"`
	LatestShipment  *time.Time `json:"latest_shipment"`
	Carriers        []string   `json:"carriers"`
	TrackingNumbers []string   `json:"tracking_numbers"`
	ShippedPercent  int        `json:"shipped_percent"`
}

// Summarize combines the stage with package metadata and the ledger's shipped share.
func Summarize(o *Order, ledger LedgerResult) ShipmentSummary {
	stage := Progress(o)
	sum := ShipmentSummary{
		Stage:           stage,
		StageIndex:      int(stage),
		PackageCount:    len(o.Packages),
		Carriers:        []string{},
		TrackingNumbers: []string{},
		ShippedPercent:  ledger.ShippedPercent(),
	}

	seen := make(map[string]bool)
	for _, p := range o.Packages {
		if p.ShipmentDate != nil && (sum.LatestShipment == nil || p.ShipmentDate.After(*sum.LatestShipment)) {
			d := *p.ShipmentDate
			sum.LatestShipment = &d
		}
		carrier := p.Carrier
		if carrier == "" {
			carrier = p.DeliveryMethod
		}
		if carrier != "" && !seen[carrier] {
			seen[carrier] = true
			sum.Carriers = append(sum.Carriers, carrier)
		}
		if p.TrackingNumber != "" {
			sum.TrackingNumbers = append(sum.TrackingNumbers, p.TrackingNumber)
		}
	}
	sort.Strings(sum.Carriers)

	return sum
}
