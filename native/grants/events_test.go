package grants

import (
	"math/big"
	"testing"
)

func TestClaimedEventAttributes(t *testing.T) {
	p := &Program{
		ID:        3,
		Name:      "audit grant",
		Price:     big.NewInt(1_000_000),
		StartTime: 100,
		EndTime:   200,
		Maker:     newTestAddress(0x01),
		Validator: newTestAddress(0x02),
		Builder:   newTestAddress(0x03),
		Approved:  true,
	}
	evt := NewClaimedEvent(p, big.NewInt(950_000), big.NewInt(50_000))
	if evt.Type != EventTypeProgramClaimed {
		t.Fatalf("unexpected type %q", evt.Type)
	}
	want := map[string]string{
		"id":        "3",
		"name":      "audit grant",
		"price":     "1000000",
		"payout":    "950000",
		"feeAmount": "50000",
		"builder":   "0x" + "03030303030303030303030303030303030303" + "03",
	}
	for key, value := range want {
		if evt.Attributes[key] != value {
			t.Fatalf("attribute %q = %q, want %q", key, evt.Attributes[key], value)
		}
	}
}

func TestProgramEventNilSafety(t *testing.T) {
	evt := NewCreatedEvent(nil)
	if evt.Type != EventTypeProgramCreated || len(evt.Attributes) != 0 {
		t.Fatalf("nil program event carries attributes: %+v", evt)
	}
}

func TestFeeUpdatedEvent(t *testing.T) {
	evt := NewFeeUpdatedEvent(0, 750)
	if evt.Attributes["previousFeeBps"] != "0" || evt.Attributes["feeBps"] != "750" {
		t.Fatalf("unexpected fee attributes: %+v", evt.Attributes)
	}
}

func TestValidatorUpdatedEventCarriesPrevious(t *testing.T) {
	p := &Program{ID: 1, Price: big.NewInt(1), StartTime: 1, EndTime: 2, Validator: newTestAddress(0x09)}
	evt := NewValidatorUpdatedEvent(p, newTestAddress(0x08))
	if evt.Attributes["previousValidator"] == "" || evt.Attributes["validator"] == "" {
		t.Fatalf("validator attributes missing: %+v", evt.Attributes)
	}
	if evt.Attributes["previousValidator"] == evt.Attributes["validator"] {
		t.Fatalf("previous validator should differ from current")
	}
}
