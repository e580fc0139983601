package amm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Packed V3 path layout: token (20) | fee (3) | token (20) | fee (3) | ...
const (
	addrSize        = 20
	feeSize         = 3
	nextOffset      = addrSize + feeSize
	popOffset       = nextOffset + addrSize
	multiPoolLength = popOffset + nextOffset

	// MaxFee is the largest fee tier representable in a path, in
	// hundredths of a basis point.
	MaxFee = 1<<24 - 1
)

// Path is a packed V3 swap path.
type Path []byte

// EncodePath packs tokens and the fee tiers between them.
func EncodePath(tokens []common.Address, fees []uint32) (Path, error) {
	if len(tokens) < 2 || len(fees) != len(tokens)-1 {
		return nil, fmt.Errorf("%w: %d tokens, %d fees", ErrInvalidPath, len(tokens), len(fees))
	}
	out := make([]byte, 0, addrSize+len(fees)*nextOffset)
	for i, token := range tokens {
		out = append(out, token.Bytes()...)
		if i < len(fees) {
			fee := fees[i]
			if fee > MaxFee {
				return nil, fmt.Errorf("%w: fee %d out of range", ErrInvalidPath, fee)
			}
			out = append(out, byte(fee>>16), byte(fee>>8), byte(fee))
		}
	}
	return out, nil
}

// Valid reports whether p holds at least one pool and has a well formed length.
func (p Path) Valid() bool {
	return len(p) >= popOffset && (len(p)-addrSize)%nextOffset == 0
}

// HasMultiplePools reports whether p routes through two or more pools.
func (p Path) HasMultiplePools() bool {
	return len(p) >= multiPoolLength
}

// NumPools returns how many pools p routes through.
func (p Path) NumPools() int {
	if !p.Valid() {
		return 0
	}
	return (len(p) - addrSize) / nextOffset
}

// DecodeFirstPool returns the tokens and fee of the first pool in p.
func (p Path) DecodeFirstPool() (tokenA common.Address, fee uint32, tokenB common.Address, err error) {
	if len(p) < popOffset {
		err = fmt.Errorf("%w: length %d", ErrInvalidPath, len(p))
		return
	}
	tokenA = common.BytesToAddress(p[:addrSize])
	fee = uint32(p[addrSize])<<16 | uint32(p[addrSize+1])<<8 | uint32(p[addrSize+2])
	tokenB = common.BytesToAddress(p[nextOffset:popOffset])
	return
}

// FirstToken returns the first token of p.
func (p Path) FirstToken() (common.Address, error) {
	if len(p) < addrSize {
		return common.Address{}, fmt.Errorf("%w: length %d", ErrInvalidPath, len(p))
	}
	return common.BytesToAddress(p[:addrSize]), nil
}

// SkipToken drops the first token and fee, leaving the remaining path.
func (p Path) SkipToken() Path {
	return p[nextOffset:]
}
