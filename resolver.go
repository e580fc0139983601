package router

import (
	"bytes"
	"math/big"

	"github.com/branched-services/go-router/ledger"
	"github.com/ethereum/go-ethereum/common"
)

// resolve returns a copy of input with every placeholder word replaced:
// pass-through words by the recorded output of an earlier instruction,
// balance words by the router's current holding of the token. Input that
// contains no placeholder is returned unchanged.
func (r *Router) resolve(st *ledger.State, table *valueTable, at int, input []byte) ([]byte, error) {
	var out []byte
	for off := 0; off+32 <= len(input); off += 32 {
		kind, index, token, ok := parsePlaceholder(input[off : off+32])
		if !ok {
			continue
		}

		var v *big.Int
		switch kind {
		case PlaceholderPassThrough:
			var err error
			if v, err = table.get(index, at); err != nil {
				return nil, err
			}
		case PlaceholderBalance:
			v = st.Balance(token, r.address)
		}

		if out == nil {
			out = bytes.Clone(input)
		}
		copy(out[off:off+32], common.BigToHash(v).Bytes())
	}
	if out == nil {
		return input, nil
	}
	return out, nil
}
