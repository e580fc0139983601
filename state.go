package router

import (
	"fmt"
	"math/big"
)

// valueTable records the value produced by each instruction of one stream.
// Entries are written at most once, by the instruction at that index.
type valueTable struct {
	values []*big.Int
	last   int
}

func newValueTable(n int) *valueTable {
	return &valueTable{values: make([]*big.Int, n), last: -1}
}

// set records v as the output of instruction i.
func (t *valueTable) set(i int, v *big.Int) {
	if t.values[i] != nil {
		panic(fmt.Sprintf("router: value %d written twice", i))
	}
	t.values[i] = new(big.Int).Set(v)
	if i > t.last {
		t.last = i
	}
}

// get returns the output of instruction i as seen by instruction at.
func (t *valueTable) get(i, at int) (*big.Int, error) {
	if i >= at || i >= len(t.values) {
		return nil, fmt.Errorf("%w: instruction %d referenced from %d", ErrValueUnavailable, i, at)
	}
	if t.values[i] == nil {
		return nil, fmt.Errorf("%w: instruction %d produced no value", ErrValueUnavailable, i)
	}
	return new(big.Int).Set(t.values[i]), nil
}

// lastValue returns the most recent recorded value.
func (t *valueTable) lastValue() (*big.Int, bool) {
	if t.last < 0 {
		return nil, false
	}
	return new(big.Int).Set(t.values[t.last]), true
}
