package router

import (
	"context"
	"fmt"
	"math/big"

	"github.com/branched-services/go-router/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// session is the lock held by one top-level invocation. It travels in the
// context so collaborator calls that re-enter the same router find it.
type session struct {
	id       uuid.UUID
	active   bool
	violated bool
}

type sessionKey struct {
	router *Router
}

// enter acquires the router lock for ctx. A context that already carries an
// active session of this router is a re-entry: the outer session is marked
// violated and ErrReentrancy is returned.
func (r *Router) enter(ctx context.Context) (context.Context, *session, error) {
	if outer, ok := ctx.Value(sessionKey{r}).(*session); ok && outer.active {
		outer.violated = true
		return ctx, nil, ErrReentrancy
	}
	s := &session{id: uuid.New(), active: true}
	return context.WithValue(ctx, sessionKey{r}, s), s, nil
}

func (s *session) release() {
	s.active = false
}

// checkDeadline fails once the block timestamp is past deadline. A nil
// deadline never expires.
func checkDeadline(st *ledger.State, deadline *big.Int) error {
	if deadline == nil {
		return nil
	}
	now := new(big.Int).SetUint64(st.Timestamp())
	if now.Cmp(deadline) > 0 {
		return fmt.Errorf("%w: now %s, deadline %s", ErrDeadlinePassed, now, deadline)
	}
	return nil
}

// refund returns to sender the part of value still held by the router:
// min(value, native balance now - native balance before value arrived).
func (r *Router) refund(st *ledger.State, sender common.Address, value, before *big.Int) (*big.Int, error) {
	if value == nil || value.Sign() == 0 {
		return new(big.Int), nil
	}
	held := new(big.Int).Sub(st.NativeBalance(r.address), before)
	if held.Sign() <= 0 {
		return new(big.Int), nil
	}
	if held.Cmp(value) > 0 {
		held.Set(value)
	}
	if err := st.TransferNative(r.address, sender, held); err != nil {
		return nil, err
	}
	return held, nil
}
