package ledger

import (
	"bytes"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Root returns a keccak256 digest over the canonical form of the state.
// Zero balances and zero storage words are treated as absent, so two states
// that differ only in empty entries have the same root. The journal and the
// timestamp are not part of the digest.
func (s *State) Root() common.Hash {
	var records [][]byte

	for addr, bal := range s.native {
		if bal.Sign() == 0 {
			continue
		}
		records = append(records, concat([]byte{0x01}, addr.Bytes(), common.BigToHash(bal).Bytes()))
	}
	for key, bal := range s.tokens {
		if bal.Sign() == 0 {
			continue
		}
		records = append(records, concat([]byte{0x02}, key.token.Bytes(), key.owner.Bytes(), common.BigToHash(bal).Bytes()))
	}
	for key, owner := range s.owners {
		records = append(records, concat([]byte{0x03}, key.collection.Bytes(), key.id.Bytes(), owner.Bytes()))
	}
	for key, bal := range s.editions {
		if bal.Sign() == 0 {
			continue
		}
		records = append(records, concat([]byte{0x04}, key.collection.Bytes(), key.id.Bytes(), key.owner.Bytes(), common.BigToHash(bal).Bytes()))
	}
	for key, word := range s.storage {
		if word == (common.Hash{}) {
			continue
		}
		records = append(records, concat([]byte{0x05}, key.contract.Bytes(), key.key.Bytes(), word.Bytes()))
	}

	sort.Slice(records, func(i, j int) bool {
		return bytes.Compare(records[i], records[j]) < 0
	})
	return crypto.Keccak256Hash(records...)
}

func concat(parts ...[]byte) []byte {
	var out []byte
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}
