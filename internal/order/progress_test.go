package order

import (
	"testing"
	"time"

	"github.com/kiwari-pos/fulfillment/internal/enum"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgress_Ladder(t *testing.T) {
	pkg := []Package{{ID: "p1"}}

	tests := []struct {
		name     string
		status   string
		packages []Package
		want     Stage
	}{
		{"delivered", enum.OrderStatusDelivered, nil, StageDelivered},
		{"delivered wins over packages", enum.OrderStatusDelivered, pkg, StageDelivered},
		{"shipped", enum.OrderStatusShipped, pkg, StageShipped},
		{"processing with packages", enum.OrderStatusProcessing, pkg, StagePacked},
		{"confirmed with packages", enum.OrderStatusConfirmed, pkg, StagePacked},
		{"processing without packages", enum.OrderStatusProcessing, nil, StageSentToWarehouse},
		{"confirmed without packages", enum.OrderStatusConfirmed, nil, StageConfirmed},
		{"draft with packages", enum.OrderStatusDraft, pkg, StageConfirmed},
		{"partially shipped", enum.OrderStatusPartiallyShipped, pkg, StageConfirmed},
		{"cancelled", enum.OrderStatusCancelled, nil, StageConfirmed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := &Order{Status: tt.status, Packages: tt.packages}
			assert.Equal(t, tt.want, Progress(o))
		})
	}
}

func TestProgress_Idempotent(t *testing.T) {
	o := &Order{Status: enum.OrderStatusProcessing, Packages: []Package{{ID: "p1"}}}
	first := Progress(o)
	second := Progress(o)
	assert.Equal(t, first, second)
	assert.Equal(t, StagePacked, first)
}

func TestProgressRules_Order(t *testing.T) {
	rules := ProgressRules()
	require.Len(t, rules, 4)

	names := make([]string, len(rules))
	for i, r := range rules {
		names[i] = r.Name
	}
	assert.Equal(t, []string{"delivered", "shipped", "packed", "sent_to_warehouse"}, names)

	// Stages strictly decrease down the ladder.
	for i := 1; i < len(rules); i++ {
		assert.Greater(t, rules[i-1].Stage, rules[i].Stage)
	}

	// Mutating the copy leaves the ladder intact.
	rules[0] = ProgressRule{}
	assert.Equal(t, "delivered", ProgressRules()[0].Name)
}

func TestStage_MarshalText(t *testing.T) {
	b, err := StageSentToWarehouse.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "SentToWarehouse", string(b))
	assert.Equal(t, "Unknown", Stage(9).String())
}

func TestSummarize(t *testing.T) {
	d1 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC)
	o := &Order{
		Status: enum.OrderStatusProcessing,
		Packages: []Package{
			{ID: "p1", Carrier: "UPS", TrackingNumber: "1Z1", ShipmentDate: &d1},
			{ID: "p2", Carrier: "DHL", TrackingNumber: "JD2", ShipmentDate: &d2},
			{ID: "p3", DeliveryMethod: "UPS"},
		},
		LineItems: items([]int{2, 2}, []int{2, 0}),
	}
	ledger, err := Ledger(o.LineItems)
	require.NoError(t, err)

	sum := Summarize(o, ledger)

	assert.Equal(t, StagePacked, sum.Stage)
	assert.Equal(t, 2, sum.StageIndex)
	assert.Equal(t, 3, sum.PackageCount)
	require.NotNil(t, sum.LatestShipment)
	assert.True(t, sum.LatestShipment.Equal(d2))
	assert.Equal(t, []string{"DHL", "UPS"}, sum.Carriers)
	assert.Equal(t, []string{"1Z1", "JD2"}, sum.TrackingNumbers)
	assert.Equal(t, 50, sum.ShippedPercent)
}
