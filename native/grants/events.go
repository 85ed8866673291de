package grants

import (
	"encoding/hex"
	"math/big"
	"strconv"

	"edugrants/core/types"
)

const (
	EventTypeProgramCreated   = "grants.program_created"
	EventTypeProgramApproved  = "grants.program_approved"
	EventTypeProgramClaimed   = "grants.program_claimed"
	EventTypeFundsReclaimed   = "grants.funds_reclaimed"
	EventTypeValidatorUpdated = "grants.validator_updated"
	EventTypeFeeUpdated       = "grants.fee_updated"
)

// NewCreatedEvent returns the canonical event payload for a newly created
// program.
func NewCreatedEvent(p *Program) *types.Event { return newProgramEvent(EventTypeProgramCreated, p) }

// NewApprovedEvent returns the canonical event payload emitted when a
// validator approves a program and designates its builder.
func NewApprovedEvent(p *Program) *types.Event {
	evt := newProgramEvent(EventTypeProgramApproved, p)
	if p != nil {
		evt.Attributes["builder"] = hexAddr(p.Builder)
	}
	return evt
}

// NewClaimedEvent returns the canonical event payload emitted when the
// builder claims the payout. The attributes carry the net payout and the fee
// routed to the fee collector.
func NewClaimedEvent(p *Program, payout, fee *big.Int) *types.Event {
	evt := newProgramEvent(EventTypeProgramClaimed, p)
	evt.Attributes["payout"] = bigString(payout)
	evt.Attributes["feeAmount"] = bigString(fee)
	if p != nil {
		evt.Attributes["builder"] = hexAddr(p.Builder)
	}
	return evt
}

// NewReclaimedEvent returns the canonical event payload emitted when the
// maker reclaims an unapproved deposit after expiry.
func NewReclaimedEvent(p *Program) *types.Event { return newProgramEvent(EventTypeFundsReclaimed, p) }

// NewValidatorUpdatedEvent returns the event payload emitted when the maker
// reassigns the program validator.
func NewValidatorUpdatedEvent(p *Program, previous [20]byte) *types.Event {
	evt := newProgramEvent(EventTypeValidatorUpdated, p)
	evt.Attributes["previousValidator"] = hexAddr(previous)
	return evt
}

// NewFeeUpdatedEvent returns the event payload emitted when the owner
// changes the global fee.
func NewFeeUpdatedEvent(previous, current uint32) *types.Event {
	return &types.Event{Type: EventTypeFeeUpdated, Attributes: map[string]string{
		"previousFeeBps": strconv.FormatUint(uint64(previous), 10),
		"feeBps":         strconv.FormatUint(uint64(current), 10),
	}}
}

func newProgramEvent(eventType string, p *Program) *types.Event {
	attrs := make(map[string]string)
	if p == nil {
		return &types.Event{Type: eventType, Attributes: attrs}
	}
	attrs["id"] = strconv.FormatUint(p.ID, 10)
	attrs["name"] = p.Name
	attrs["maker"] = hexAddr(p.Maker)
	attrs["validator"] = hexAddr(p.Validator)
	attrs["price"] = bigString(p.Price)
	attrs["startTime"] = strconv.FormatInt(p.StartTime, 10)
	attrs["endTime"] = strconv.FormatInt(p.EndTime, 10)
	return &types.Event{Type: eventType, Attributes: attrs}
}

func hexAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
