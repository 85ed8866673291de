package grants

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"edugrants/core/events"
	"edugrants/core/types"
)

var (
	errNilState     = errors.New("grants engine: state not configured")
	errNilCollector = errors.New("grants engine: fee collector not configured")
)

var feeDenominator = big.NewInt(10_000)

// engineState is the ledger surface the engine depends on. Every mutating
// operation runs between Snapshot and Commit so a failed transition leaves
// no partial state behind.
type engineState interface {
	ProgramPut(*Program) error
	ProgramGet(id uint64) (*Program, bool)
	NextProgramID() (uint64, error)
	FeeBpsGet() (uint32, error)
	FeeBpsPut(uint32) error
	Transfer(from, to [20]byte, amount *big.Int) error
	VaultAddress() [20]byte
	Snapshot() int
	RevertToSnapshot(int)
	Commit() error
}

// Authorizer answers the owner-privilege check guarding fee administration.
// It is passed in explicitly rather than read from ambient identity.
type Authorizer interface {
	IsOwner(addr [20]byte) bool
}

// OwnerAuthorizer authorizes a single fixed owner address. The zero address
// never passes, so an unconfigured owner locks fee administration entirely.
type OwnerAuthorizer struct {
	Owner [20]byte
}

// IsOwner implements the Authorizer interface.
func (o OwnerAuthorizer) IsOwner(addr [20]byte) bool {
	return o.Owner != ([20]byte{}) && addr == o.Owner
}

type grantsEvent struct {
	evt *types.Event
}

func (e grantsEvent) EventType() string {
	if e.evt == nil {
		return ""
	}
	return e.evt.Type
}

func (e grantsEvent) Event() *types.Event { return e.evt }

// Engine wires the grants program registry and escrow transitions with
// external state, authorization and event emission. Operations serialize on
// an internal mutex: each transition runs to completion (or fully rolls
// back) before the next begins.
type Engine struct {
	mu           sync.Mutex
	state        engineState
	emitter      events.Emitter
	authorizer   Authorizer
	feeCollector [20]byte
	nowFn        func() int64
}

// NewEngine creates a grants engine with a no-op emitter. Callers can
// override the emitter via SetEmitter.
func NewEngine() *Engine {
	return &Engine{
		emitter: events.NoopEmitter{},
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the engine.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetFeeCollector configures the address that receives claim fees.
func (e *Engine) SetFeeCollector(addr [20]byte) { e.feeCollector = addr }

// SetAuthorizer configures the owner-privilege check used by SetFee.
func (e *Engine) SetAuthorizer(auth Authorizer) { e.authorizer = auth }

// SetNowFunc overrides the time source used by the engine. Primarily
// intended for tests to provide deterministic timestamps.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetEmitter configures the event emitter used by the engine. Passing nil
// resets the emitter to a no-op implementation.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) emit(event *types.Event) {
	if e == nil || e.emitter == nil || event == nil {
		return
	}
	e.emitter.Emit(grantsEvent{evt: event})
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func (e *Engine) loadProgram(id uint64) (*Program, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	program, ok := e.state.ProgramGet(id)
	if !ok {
		return nil, ErrProgramNotFound
	}
	return program, nil
}

// Create registers a new program and moves the attached deposit into the
// module vault. The deposit must equal the program price exactly; on any
// failure the ledger reverts and the id counter is untouched.
func (e *Engine) Create(caller [20]byte, name string, price *big.Int, startTime, endTime int64, validator [20]byte, value *big.Int) (*Program, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if startTime >= endTime {
		return nil, ErrInvalidTimeRange
	}
	amount := cloneBigInt(price)
	deposit := cloneBigInt(value)
	if deposit.Cmp(amount) != 0 {
		return nil, ErrValueMismatch
	}
	snap := e.state.Snapshot()
	if err := e.state.Transfer(caller, e.state.VaultAddress(), amount); err != nil {
		e.state.RevertToSnapshot(snap)
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	id, err := e.state.NextProgramID()
	if err != nil {
		e.state.RevertToSnapshot(snap)
		return nil, err
	}
	program := &Program{
		ID:        id,
		Name:      name,
		Price:     amount,
		StartTime: startTime,
		EndTime:   endTime,
		Maker:     caller,
		Validator: validator,
		CreatedAt: e.now(),
	}
	if err := e.state.ProgramPut(program); err != nil {
		e.state.RevertToSnapshot(snap)
		return nil, err
	}
	if err := e.state.Commit(); err != nil {
		e.state.RevertToSnapshot(snap)
		return nil, err
	}
	e.emit(NewCreatedEvent(program))
	return program.Clone(), nil
}

// Approve marks the program as approved and designates its builder. Only the
// current validator may approve, only before the window closes, and only
// once: approval is monotonic and the builder cannot change via this path.
func (e *Engine) Approve(id uint64, builder, caller [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	program, err := e.loadProgram(id)
	if err != nil {
		return err
	}
	// Approval is monotonic: a second attempt fails the same way no matter
	// who makes it, so the state check runs before authorization.
	if program.Approved {
		return ErrAlreadyApproved
	}
	if caller != program.Validator {
		return ErrUnauthorized
	}
	if e.now() > program.EndTime {
		return ErrWindowClosed
	}
	if builder == ([20]byte{}) {
		return ErrInvalidBuilder
	}
	snap := e.state.Snapshot()
	program.Approved = true
	program.Builder = builder
	if err := e.state.ProgramPut(program); err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	if err := e.state.Commit(); err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	e.emit(NewApprovedEvent(program))
	return nil
}

// Claim pays the deposit out to the builder, minus the global fee routed to
// the fee collector. The claimed flag is flipped and stored before any value
// moves (checks-effects-interactions); a transfer failure reverts the whole
// transition including the flag, since a partial payout would permanently
// strand the remainder.
func (e *Engine) Claim(id uint64, caller [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	program, err := e.loadProgram(id)
	if err != nil {
		return err
	}
	if !program.Approved {
		return ErrNotApproved
	}
	if program.Claimed {
		return ErrAlreadyClaimed
	}
	if caller != program.Builder {
		return ErrUnauthorized
	}
	now := e.now()
	if now < program.StartTime {
		return ErrTooEarly
	}
	if now > program.EndTime {
		return ErrTooLate
	}
	feeBps, err := e.state.FeeBpsGet()
	if err != nil {
		return err
	}
	total := cloneBigInt(program.Price)
	fee := new(big.Int).Mul(total, new(big.Int).SetUint64(uint64(feeBps)))
	fee.Div(fee, feeDenominator)
	payout := new(big.Int).Sub(total, fee)
	if fee.Sign() > 0 && e.feeCollector == ([20]byte{}) {
		return errNilCollector
	}
	vault := e.state.VaultAddress()
	snap := e.state.Snapshot()
	program.Claimed = true
	if err := e.state.ProgramPut(program); err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	if fee.Sign() > 0 {
		if err := e.state.Transfer(vault, e.feeCollector, fee); err != nil {
			e.state.RevertToSnapshot(snap)
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
	}
	if err := e.state.Transfer(vault, program.Builder, payout); err != nil {
		e.state.RevertToSnapshot(snap)
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.state.Commit(); err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	e.emit(NewClaimedEvent(program, payout, fee))
	return nil
}

// Reclaim returns the full deposit to the maker once the window has closed
// without an approval. Approval permanently blocks this path, so claim and
// reclaim are mutually exclusive by construction.
func (e *Engine) Reclaim(id uint64, caller [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	program, err := e.loadProgram(id)
	if err != nil {
		return err
	}
	if program.Approved {
		return ErrAlreadyApproved
	}
	if program.Claimed {
		return ErrAlreadyClaimed
	}
	if e.now() <= program.EndTime {
		return ErrTooEarly
	}
	if caller != program.Maker {
		return ErrUnauthorized
	}
	snap := e.state.Snapshot()
	// Same ordering as Claim: flag first, funds second.
	program.Claimed = true
	if err := e.state.ProgramPut(program); err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	if err := e.state.Transfer(e.state.VaultAddress(), program.Maker, program.Price); err != nil {
		e.state.RevertToSnapshot(snap)
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	if err := e.state.Commit(); err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	e.emit(NewReclaimedEvent(program))
	return nil
}

// UpdateValidator reassigns the approval authority for a program. Only the
// maker may call it. There is deliberately no restriction on program state
// or timing; the reassignment governs the next Approve call immediately.
func (e *Engine) UpdateValidator(id uint64, newValidator, caller [20]byte) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	program, err := e.loadProgram(id)
	if err != nil {
		return err
	}
	if caller != program.Maker {
		return ErrUnauthorized
	}
	previous := program.Validator
	snap := e.state.Snapshot()
	program.Validator = newValidator
	if err := e.state.ProgramPut(program); err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	if err := e.state.Commit(); err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	e.emit(NewValidatorUpdatedEvent(program, previous))
	return nil
}

// SetFee overwrites the global fee in basis points. The caller must pass the
// configured owner-privilege check. There is deliberately no upper bound; a
// fee above 10000 makes every claim fail at transfer time and roll back.
func (e *Engine) SetFee(caller [20]byte, feeBps uint32) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.authorizer == nil || !e.authorizer.IsOwner(caller) {
		return ErrUnauthorized
	}
	previous, err := e.state.FeeBpsGet()
	if err != nil {
		return err
	}
	snap := e.state.Snapshot()
	if err := e.state.FeeBpsPut(feeBps); err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	if err := e.state.Commit(); err != nil {
		e.state.RevertToSnapshot(snap)
		return err
	}
	e.emit(NewFeeUpdatedEvent(previous, feeBps))
	return nil
}

// Fee returns the current global fee in basis points.
func (e *Engine) Fee() (uint32, error) {
	if e == nil || e.state == nil {
		return 0, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state.FeeBpsGet()
}

// Get returns a snapshot of the program record.
func (e *Engine) Get(id uint64) (*Program, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	program, err := e.loadProgram(id)
	if err != nil {
		return nil, err
	}
	return program.Clone(), nil
}
