package ledger

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// journalEntry is a modification entry in the state change journal that can
// be reverted on demand.
type journalEntry interface {
	revert(*State)
}

// journal contains the list of state modifications applied since the last
// snapshot was reverted.
type journal struct {
	entries []journalEntry
}

func newJournal() *journal {
	return &journal{entries: make([]journalEntry, 0, 64)}
}

func (j *journal) append(entry journalEntry) {
	j.entries = append(j.entries, entry)
}

// revert undoes a batch of journalled modifications, newest first.
func (j *journal) revert(s *State, snapshot int) {
	for i := len(j.entries) - 1; i >= snapshot; i-- {
		j.entries[i].revert(s)
	}
	j.entries = j.entries[:snapshot]
}

func (j *journal) reset() {
	j.entries = j.entries[:0]
}

func (j *journal) length() int {
	return len(j.entries)
}

type (
	nativeChange struct {
		addr    common.Address
		prev    *big.Int
		existed bool
	}
	tokenChange struct {
		key     tokenKey
		prev    *big.Int
		existed bool
	}
	ownerChange struct {
		key     nftKey
		prev    common.Address
		existed bool
	}
	editionChange struct {
		key     multiKey
		prev    *big.Int
		existed bool
	}
	storageChange struct {
		key     slotKey
		prev    common.Hash
		existed bool
	}
)

func (ch nativeChange) revert(s *State) {
	if !ch.existed {
		delete(s.native, ch.addr)
		return
	}
	s.native[ch.addr] = ch.prev
}

func (ch tokenChange) revert(s *State) {
	if !ch.existed {
		delete(s.tokens, ch.key)
		return
	}
	s.tokens[ch.key] = ch.prev
}

func (ch ownerChange) revert(s *State) {
	if !ch.existed {
		delete(s.owners, ch.key)
		return
	}
	s.owners[ch.key] = ch.prev
}

func (ch editionChange) revert(s *State) {
	if !ch.existed {
		delete(s.editions, ch.key)
		return
	}
	s.editions[ch.key] = ch.prev
}

func (ch storageChange) revert(s *State) {
	if !ch.existed {
		delete(s.storage, ch.key)
		return
	}
	s.storage[ch.key] = ch.prev
}
