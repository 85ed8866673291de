package state

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"edugrants/core/types"
	"edugrants/native/grants"
	"edugrants/storage"
)

var ledgerKey = []byte("grants/ledger")

// ErrInsufficientBalance is returned when a transfer would overdraw the
// sending account.
var ErrInsufficientBalance = errors.New("state: insufficient balance")

// vaultAddress is the fixed module account that holds every live deposit.
var vaultAddress = func() [20]byte {
	var addr [20]byte
	copy(addr[:], "edugrants/module/vlt")
	return addr
}()

// Ledger owns the full mutable state of the grants service: account
// balances, the append-only program table, the id counter and the global
// fee. Mutations happen in memory; Commit writes one checkpoint blob to the
// storage backend so a half-applied transition never becomes durable.
type Ledger struct {
	mu        sync.RWMutex
	db        storage.Database
	accounts  map[[20]byte]*types.Account
	programs  map[uint64]*grants.Program
	nextID    uint64
	feeBps    uint32
	snapshots []*checkpoint
}

type checkpoint struct {
	accounts map[[20]byte]*types.Account
	programs map[uint64]*grants.Program
	nextID   uint64
	feeBps   uint32
}

type persistedProgram struct {
	ID        uint64 `json:"id"`
	Name      string `json:"name"`
	Price     string `json:"price"`
	StartTime int64  `json:"startTime"`
	EndTime   int64  `json:"endTime"`
	Maker     string `json:"maker"`
	Validator string `json:"validator"`
	Builder   string `json:"builder"`
	Approved  bool   `json:"approved"`
	Claimed   bool   `json:"claimed"`
	CreatedAt int64  `json:"createdAt"`
}

type persistedLedger struct {
	Accounts      map[string]*types.Account `json:"accounts"`
	Programs      []persistedProgram        `json:"programs"`
	NextProgramID uint64                    `json:"nextProgramId"`
	FeeBps        uint32                    `json:"feeBps"`
}

// NewLedger constructs a ledger over the supplied storage backend. A nil
// backend yields a purely in-memory ledger (used by tests).
func NewLedger(db storage.Database) *Ledger {
	return &Ledger{
		db:       db,
		accounts: make(map[[20]byte]*types.Account),
		programs: make(map[uint64]*grants.Program),
	}
}

// Load restores the last committed checkpoint from the storage backend. A
// missing checkpoint leaves the ledger empty; that is how first boot looks.
func (l *Ledger) Load() error {
	if l.db == nil {
		return nil
	}
	ok, err := l.db.Has(ledgerKey)
	if err != nil {
		return fmt.Errorf("state: checkpoint lookup: %w", err)
	}
	if !ok {
		return nil
	}
	raw, err := l.db.Get(ledgerKey)
	if err != nil {
		return fmt.Errorf("state: checkpoint read: %w", err)
	}
	var persisted persistedLedger
	if err := json.Unmarshal(raw, &persisted); err != nil {
		return fmt.Errorf("state: checkpoint decode: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	accounts := make(map[[20]byte]*types.Account, len(persisted.Accounts))
	for key, acc := range persisted.Accounts {
		addr, err := decodeAddr(key)
		if err != nil {
			return err
		}
		accounts[addr] = acc.Clone()
	}
	programs := make(map[uint64]*grants.Program, len(persisted.Programs))
	for _, entry := range persisted.Programs {
		program, err := decodeProgram(entry)
		if err != nil {
			return err
		}
		programs[program.ID] = program
	}
	l.accounts = accounts
	l.programs = programs
	l.nextID = persisted.NextProgramID
	l.feeBps = persisted.FeeBps
	l.snapshots = nil
	return nil
}

// Commit persists the current state as a single checkpoint blob and drops
// any outstanding snapshots.
func (l *Ledger) Commit() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.db != nil {
		raw, err := json.Marshal(l.persisted())
		if err != nil {
			return fmt.Errorf("state: checkpoint encode: %w", err)
		}
		if err := l.db.Put(ledgerKey, raw); err != nil {
			return fmt.Errorf("state: checkpoint write: %w", err)
		}
	}
	l.snapshots = nil
	return nil
}

// Snapshot captures the in-memory state and returns a handle for
// RevertToSnapshot. State is small by construction (one record per program),
// so a deep copy is the whole mechanism.
func (l *Ledger) Snapshot() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.snapshots = append(l.snapshots, l.copyState())
	return len(l.snapshots) - 1
}

// RevertToSnapshot restores the state captured by the corresponding
// Snapshot call and discards it together with any later snapshots.
func (l *Ledger) RevertToSnapshot(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id < 0 || id >= len(l.snapshots) {
		return
	}
	cp := l.snapshots[id]
	l.accounts = cp.accounts
	l.programs = cp.programs
	l.nextID = cp.nextID
	l.feeBps = cp.feeBps
	l.snapshots = l.snapshots[:id]
}

func (l *Ledger) copyState() *checkpoint {
	cp := &checkpoint{
		accounts: make(map[[20]byte]*types.Account, len(l.accounts)),
		programs: make(map[uint64]*grants.Program, len(l.programs)),
		nextID:   l.nextID,
		feeBps:   l.feeBps,
	}
	for addr, acc := range l.accounts {
		cp.accounts[addr] = acc.Clone()
	}
	for id, program := range l.programs {
		cp.programs[id] = program.Clone()
	}
	return cp
}

func (l *Ledger) persisted() persistedLedger {
	persisted := persistedLedger{
		Accounts:      make(map[string]*types.Account, len(l.accounts)),
		Programs:      make([]persistedProgram, 0, len(l.programs)),
		NextProgramID: l.nextID,
		FeeBps:        l.feeBps,
	}
	for addr, acc := range l.accounts {
		persisted.Accounts[encodeAddr(addr)] = acc.Clone()
	}
	for id := uint64(0); id < l.nextID; id++ {
		program, ok := l.programs[id]
		if !ok {
			continue
		}
		persisted.Programs = append(persisted.Programs, encodeProgram(program))
	}
	return persisted
}

// VaultAddress returns the module account holding live deposits.
func (l *Ledger) VaultAddress() [20]byte { return vaultAddress }

// BalanceOf returns a copy of the account balance for the address.
func (l *Ledger) BalanceOf(addr [20]byte) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	acc, ok := l.accounts[addr]
	if !ok || acc.Balance == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(acc.Balance)
}

// Credit adds funds to an account. Used for genesis allocations and tests.
func (l *Ledger) Credit(addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: credit amount must be non-negative")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	acc := l.ensureAccount(addr)
	acc.Balance = new(big.Int).Add(acc.Balance, amount)
	return nil
}

// Transfer moves funds between accounts. Zero amounts are a no-op; negative
// amounts and overdrafts fail without touching either balance.
func (l *Ledger) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("state: negative transfer amount")
	}
	if amount.Sign() == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	fromAcc := l.ensureAccount(from)
	if fromAcc.Balance.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	toAcc := l.ensureAccount(to)
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	fromAcc.Nonce++
	return nil
}

func (l *Ledger) ensureAccount(addr [20]byte) *types.Account {
	acc, ok := l.accounts[addr]
	if !ok {
		acc = &types.Account{Balance: big.NewInt(0)}
		l.accounts[addr] = acc
	}
	if acc.Balance == nil {
		acc.Balance = big.NewInt(0)
	}
	return acc
}

// ProgramPut validates and stores a program record.
func (l *Ledger) ProgramPut(p *grants.Program) error {
	sanitized, err := grants.SanitizeProgram(p)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.programs[sanitized.ID] = sanitized
	return nil
}

// ProgramGet returns a copy of the stored program record.
func (l *Ledger) ProgramGet(id uint64) (*grants.Program, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	program, ok := l.programs[id]
	if !ok {
		return nil, false
	}
	return program.Clone(), true
}

// ProgramCount returns the number of ids allocated so far.
func (l *Ledger) ProgramCount() uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.nextID
}

// NextProgramID allocates the next sequential program identifier.
func (l *Ledger) NextProgramID() (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	return id, nil
}

// FeeBpsGet returns the global fee in basis points.
func (l *Ledger) FeeBpsGet() (uint32, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.feeBps, nil
}

// FeeBpsPut overwrites the global fee in basis points.
func (l *Ledger) FeeBpsPut(feeBps uint32) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.feeBps = feeBps
	return nil
}

func encodeAddr(addr [20]byte) string {
	return "0x" + hex.EncodeToString(addr[:])
}

func decodeAddr(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := value
	if len(trimmed) >= 2 && trimmed[:2] == "0x" {
		trimmed = trimmed[2:]
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("state: invalid address %q: %w", value, err)
	}
	if len(raw) != len(addr) {
		return addr, fmt.Errorf("state: invalid address length %d", len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}

func encodeProgram(p *grants.Program) persistedProgram {
	price := "0"
	if p.Price != nil {
		price = p.Price.String()
	}
	return persistedProgram{
		ID:        p.ID,
		Name:      p.Name,
		Price:     price,
		StartTime: p.StartTime,
		EndTime:   p.EndTime,
		Maker:     encodeAddr(p.Maker),
		Validator: encodeAddr(p.Validator),
		Builder:   encodeAddr(p.Builder),
		Approved:  p.Approved,
		Claimed:   p.Claimed,
		CreatedAt: p.CreatedAt,
	}
}

func decodeProgram(entry persistedProgram) (*grants.Program, error) {
	price, ok := new(big.Int).SetString(entry.Price, 10)
	if !ok {
		return nil, fmt.Errorf("state: invalid program price %q", entry.Price)
	}
	maker, err := decodeAddr(entry.Maker)
	if err != nil {
		return nil, err
	}
	validator, err := decodeAddr(entry.Validator)
	if err != nil {
		return nil, err
	}
	builder, err := decodeAddr(entry.Builder)
	if err != nil {
		return nil, err
	}
	return &grants.Program{
		ID:        entry.ID,
		Name:      entry.Name,
		Price:     price,
		StartTime: entry.StartTime,
		EndTime:   entry.EndTime,
		Maker:     maker,
		Validator: validator,
		Builder:   builder,
		Approved:  entry.Approved,
		Claimed:   entry.Claimed,
		CreatedAt: entry.CreatedAt,
	}, nil
}
