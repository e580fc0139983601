// Package ledger provides an in-memory, journaled chain state for the router
// and its collaborators.
//
// State tracks native currency, fungible token balances, non-fungible token
// ownership (single and multi edition), raw contract storage words and the
// current block timestamp. Every mutation is recorded in a journal so callers
// can take nested snapshots and roll back to any of them, which is how the
// router gets all-or-nothing execution across heterogeneous handlers.
//
// State is not safe for concurrent use.
package ledger

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrInsufficientBalance indicates a debit larger than the account balance.
	ErrInsufficientBalance = errors.New("ledger: insufficient balance")

	// ErrNotOwner indicates a non-fungible token transfer by a non-owner.
	ErrNotOwner = errors.New("ledger: not token owner")

	// ErrNegativeAmount indicates a negative amount was supplied.
	ErrNegativeAmount = errors.New("ledger: negative amount")
)

// Native is the pseudo token address used for native currency.
var Native = common.Address{}

type tokenKey struct {
	token common.Address
	owner common.Address
}

type nftKey struct {
	collection common.Address
	id         common.Hash
}

type multiKey struct {
	collection common.Address
	id         common.Hash
	owner      common.Address
}

type slotKey struct {
	contract common.Address
	key      common.Hash
}

// State is the journaled chain state.
type State struct {
	timestamp uint64

	native   map[common.Address]*big.Int
	tokens   map[tokenKey]*big.Int
	owners   map[nftKey]common.Address
	editions map[multiKey]*big.Int
	storage  map[slotKey]common.Hash

	journal        *journal
	validRevisions []revision
	nextRevisionID int
}

type revision struct {
	id           int
	journalIndex int
}

// New creates an empty state at the given block timestamp.
func New(timestamp uint64) *State {
	return &State{
		timestamp: timestamp,
		native:    make(map[common.Address]*big.Int),
		tokens:    make(map[tokenKey]*big.Int),
		owners:    make(map[nftKey]common.Address),
		editions:  make(map[multiKey]*big.Int),
		storage:   make(map[slotKey]common.Hash),
		journal:   newJournal(),
	}
}

// Timestamp returns the current block timestamp.
func (s *State) Timestamp() uint64 {
	return s.timestamp
}

// SetTimestamp moves the block clock. It is not journaled.
func (s *State) SetTimestamp(ts uint64) {
	s.timestamp = ts
}

// Snapshot returns an identifier for the current revision of the state.
func (s *State) Snapshot() int {
	id := s.nextRevisionID
	s.nextRevisionID++
	s.validRevisions = append(s.validRevisions, revision{id, s.journal.length()})
	return id
}

// RevertToSnapshot reverts all state changes made since the given revision.
// Snapshots taken after it are invalidated.
func (s *State) RevertToSnapshot(revid int) {
	idx := s.revisionIndex(revid)
	snapshot := s.validRevisions[idx].journalIndex

	s.journal.revert(s, snapshot)
	s.validRevisions = s.validRevisions[:idx]
}

// DiscardSnapshot keeps the changes made since the given revision and drops
// it along with every snapshot taken after it. Once no snapshot is live the
// journal is cleared.
func (s *State) DiscardSnapshot(revid int) {
	idx := s.revisionIndex(revid)
	s.validRevisions = s.validRevisions[:idx]
	if len(s.validRevisions) == 0 {
		s.journal.reset()
	}
}

func (s *State) revisionIndex(revid int) int {
	for i := len(s.validRevisions) - 1; i >= 0; i-- {
		if s.validRevisions[i].id == revid {
			return i
		}
	}
	panic(fmt.Errorf("ledger: revision id %v cannot be reverted", revid))
}

// JournalLength returns the number of journaled mutations.
func (s *State) JournalLength() int {
	return s.journal.length()
}

// Balance returns the balance of owner in token, treating Native as the
// native currency.
func (s *State) Balance(token, owner common.Address) *big.Int {
	if token == Native {
		return s.NativeBalance(owner)
	}
	return s.TokenBalance(token, owner)
}

// Transfer moves amount of token (or native currency) from one account to
// another.
func (s *State) Transfer(token, from, to common.Address, amount *big.Int) error {
	if token == Native {
		return s.TransferNative(from, to, amount)
	}
	return s.TransferToken(token, from, to, amount)
}

// NativeBalance returns the native currency balance of addr.
func (s *State) NativeBalance(addr common.Address) *big.Int {
	if b, ok := s.native[addr]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// AddNative credits native currency to addr.
func (s *State) AddNative(addr common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	s.setNative(addr, new(big.Int).Add(s.NativeBalance(addr), amount))
	return nil
}

// SubNative debits native currency from addr.
func (s *State) SubNative(addr common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	bal := s.NativeBalance(addr)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: native %s has %s, need %s", ErrInsufficientBalance, addr.Hex(), bal, amount)
	}
	s.setNative(addr, bal.Sub(bal, amount))
	return nil
}

// TransferNative moves native currency between accounts.
func (s *State) TransferNative(from, to common.Address, amount *big.Int) error {
	if err := s.SubNative(from, amount); err != nil {
		return err
	}
	return s.AddNative(to, amount)
}

func (s *State) setNative(addr common.Address, amount *big.Int) {
	prev, ok := s.native[addr]
	s.journal.append(nativeChange{addr: addr, prev: prev, existed: ok})
	s.native[addr] = amount
}

// TokenBalance returns the fungible token balance of owner.
func (s *State) TokenBalance(token, owner common.Address) *big.Int {
	if b, ok := s.tokens[tokenKey{token, owner}]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Mint credits newly created tokens to owner.
func (s *State) Mint(token, owner common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	s.setToken(token, owner, new(big.Int).Add(s.TokenBalance(token, owner), amount))
	return nil
}

// Burn destroys tokens held by owner.
func (s *State) Burn(token, owner common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	bal := s.TokenBalance(token, owner)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: token %s owner %s has %s, need %s", ErrInsufficientBalance, token.Hex(), owner.Hex(), bal, amount)
	}
	s.setToken(token, owner, bal.Sub(bal, amount))
	return nil
}

// TransferToken moves fungible tokens between accounts.
func (s *State) TransferToken(token, from, to common.Address, amount *big.Int) error {
	if err := s.Burn(token, from, amount); err != nil {
		return err
	}
	return s.Mint(token, to, amount)
}

func (s *State) setToken(token, owner common.Address, amount *big.Int) {
	key := tokenKey{token, owner}
	prev, ok := s.tokens[key]
	s.journal.append(tokenChange{key: key, prev: prev, existed: ok})
	s.tokens[key] = amount
}

// OwnerOf returns the owner of a non-fungible token.
func (s *State) OwnerOf(collection common.Address, id *big.Int) (common.Address, bool) {
	owner, ok := s.owners[nftKey{collection, common.BigToHash(id)}]
	return owner, ok
}

// SetOwner assigns (or mints) a non-fungible token to owner.
func (s *State) SetOwner(collection common.Address, id *big.Int, owner common.Address) {
	key := nftKey{collection, common.BigToHash(id)}
	prev, ok := s.owners[key]
	s.journal.append(ownerChange{key: key, prev: prev, existed: ok})
	s.owners[key] = owner
}

// TransferNFT moves a non-fungible token that from currently owns to to.
func (s *State) TransferNFT(collection, from, to common.Address, id *big.Int) error {
	owner, ok := s.OwnerOf(collection, id)
	if !ok || owner != from {
		return fmt.Errorf("%w: %s #%s", ErrNotOwner, collection.Hex(), id)
	}
	s.SetOwner(collection, id, to)
	return nil
}

// EditionBalance returns how many copies of a multi-edition token owner holds.
func (s *State) EditionBalance(collection common.Address, id *big.Int, owner common.Address) *big.Int {
	if b, ok := s.editions[multiKey{collection, common.BigToHash(id), owner}]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// MintEditions credits copies of a multi-edition token to owner.
func (s *State) MintEditions(collection common.Address, id *big.Int, owner common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	bal := s.EditionBalance(collection, id, owner)
	s.setEditions(multiKey{collection, common.BigToHash(id), owner}, bal.Add(bal, amount))
	return nil
}

// TransferEditions moves copies of a multi-edition token between accounts.
func (s *State) TransferEditions(collection, from, to common.Address, id, amount *big.Int) error {
	if amount.Sign() < 0 {
		return ErrNegativeAmount
	}
	bal := s.EditionBalance(collection, id, from)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s #%s owner %s has %s, need %s", ErrInsufficientBalance, collection.Hex(), id, from.Hex(), bal, amount)
	}
	s.setEditions(multiKey{collection, common.BigToHash(id), from}, bal.Sub(bal, amount))
	return s.MintEditions(collection, id, to, amount)
}

func (s *State) setEditions(key multiKey, amount *big.Int) {
	prev, ok := s.editions[key]
	s.journal.append(editionChange{key: key, prev: prev, existed: ok})
	s.editions[key] = amount
}

// GetState reads a storage word of contract.
func (s *State) GetState(contract common.Address, key common.Hash) common.Hash {
	return s.storage[slotKey{contract, key}]
}

// SetState writes a storage word of contract.
func (s *State) SetState(contract common.Address, key, value common.Hash) {
	sk := slotKey{contract, key}
	prev, ok := s.storage[sk]
	s.journal.append(storageChange{key: sk, prev: prev, existed: ok})
	s.storage[sk] = value
}
