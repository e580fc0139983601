package router

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/branched-services/go-router/amm"
	"github.com/branched-services/go-router/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Router executes command streams against a ledger. It holds only its
// configuration; all balances live in the ledger.State passed to Execute.
type Router struct {
	address   common.Address
	weth      common.Address
	permit2   AllowanceTransfer
	v2        *amm.V2Router
	v3        *amm.V3Router
	markets   map[CommandType]Marketplace
	producers map[CommandType]bool
	logger    *zap.Logger
}

// New creates a router deployed at address.
func New(address common.Address, opts ...Option) *Router {
	r := &Router{
		address:   address,
		markets:   make(map[CommandType]Marketplace),
		producers: defaultProducers(),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Address returns the router's own account.
func (r *Router) Address() common.Address {
	return r.address
}

// Invocation is one top-level call of the router.
type Invocation struct {
	Sender   common.Address
	Value    *big.Int // native currency attached to the call
	Commands []byte
	Inputs   [][]byte
	Deadline *big.Int // nil means no deadline
}

// Outcome records how one instruction finished.
type Outcome struct {
	Index       int
	Command     CommandType
	AllowRevert bool
	Success     bool
	Output      []byte    // 32-byte value for value-producing commands
	Reason      []byte    // revert bytes when Success is false
	Nested      []Outcome // outcomes of a sub-plan's instructions
}

// Value returns the produced value, or nil if the instruction produced none.
func (o Outcome) Value() *big.Int {
	if len(o.Output) != 32 {
		return nil
	}
	return new(big.Int).SetBytes(o.Output)
}

// Result is the record of an invocation.
type Result struct {
	Session  uuid.UUID
	Outcomes []Outcome
	Refund   *big.Int
}

// frame is the per-invocation context shared by handlers.
type frame struct {
	st     *ledger.State
	sender common.Address
	sess   *session
	log    *zap.Logger
}

// recipient resolves the MsgSender and AddressThis aliases.
func (r *Router) recipient(f *frame, addr common.Address) common.Address {
	switch addr {
	case MsgSender:
		return f.sender
	case AddressThis:
		return r.address
	default:
		return addr
	}
}

// Execute runs inv against st. On success every instruction has either
// succeeded or failed under an allow-revert policy, and unclaimed attached
// value has been returned to the sender. On failure st is left exactly as it
// was; a failing instruction is reported as *ExecutionFailedError.
func (r *Router) Execute(ctx context.Context, st *ledger.State, inv Invocation) (*Result, error) {
	ctx, sess, err := r.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer sess.release()

	log := r.logger.With(zap.Stringer("session", sess.id), zap.Stringer("sender", inv.Sender))

	if err := checkDeadline(st, inv.Deadline); err != nil {
		log.Debug("deadline passed", zap.Error(err))
		return nil, err
	}
	instructions, err := DecodeCommands(inv.Commands, inv.Inputs)
	if err != nil {
		return nil, err
	}

	snap := st.Snapshot()
	before := st.NativeBalance(r.address)
	value := new(big.Int)
	if inv.Value != nil {
		value.Set(inv.Value)
	}
	if value.Sign() != 0 {
		if err := st.TransferNative(inv.Sender, r.address, value); err != nil {
			st.RevertToSnapshot(snap)
			return nil, err
		}
	}

	f := &frame{st: st, sender: inv.Sender, sess: sess, log: log}
	outcomes, _, err := r.run(ctx, f, instructions, 0)
	if err == nil && sess.violated {
		err = ErrReentrancy
	}
	if err != nil {
		st.RevertToSnapshot(snap)
		log.Info("invocation aborted", zap.Error(err))
		return &Result{Session: sess.id, Outcomes: outcomes, Refund: new(big.Int)}, err
	}

	refund, err := r.refund(st, inv.Sender, value, before)
	if err != nil {
		st.RevertToSnapshot(snap)
		return nil, err
	}

	st.DiscardSnapshot(snap)

	log.Info("invocation complete",
		zap.Int("instructions", len(instructions)),
		zap.Stringer("refund", refund),
	)
	return &Result{Session: sess.id, Outcomes: outcomes, Refund: refund}, nil
}

// run executes one stream. Each instruction gets its own snapshot so a
// tolerated failure abandons only its own effects.
func (r *Router) run(ctx context.Context, f *frame, instructions []Instruction, depth int) ([]Outcome, *valueTable, error) {
	table := newValueTable(len(instructions))
	outcomes := make([]Outcome, 0, len(instructions))

	for i, ins := range instructions {
		f.log.Debug("dispatch",
			zap.Int("index", i),
			zap.Int("depth", depth),
			zap.Stringer("command", ins.Type),
			zap.Bool("allow_revert", ins.AllowRevert),
		)

		snap := f.st.Snapshot()
		value, nested, err := r.step(ctx, f, table, i, ins, depth)
		if f.sess.violated && !errors.Is(err, ErrReentrancy) {
			if err == nil {
				err = ErrReentrancy
			} else {
				err = fmt.Errorf("%w: %v", ErrReentrancy, err)
			}
		}

		outcome := Outcome{Index: i, Command: ins.Type, AllowRevert: ins.AllowRevert, Nested: nested}
		if err != nil {
			f.st.RevertToSnapshot(snap)
			outcome.Reason = EncodeRevertReason(err)
			outcomes = append(outcomes, outcome)
			if fatal(err) || !ins.AllowRevert {
				return outcomes, table, &ExecutionFailedError{
					CommandIndex: i,
					Command:      ins.Type,
					Reason:       outcome.Reason,
					Err:          err,
				}
			}
			f.log.Warn("command failed",
				zap.Int("index", i),
				zap.Int("depth", depth),
				zap.Stringer("command", ins.Type),
				zap.Error(err),
			)
			continue
		}

		f.st.DiscardSnapshot(snap)
		outcome.Success = true
		if value != nil && r.producers[ins.Type] {
			table.set(i, value)
			outcome.Output = common.BigToHash(value).Bytes()
		}
		outcomes = append(outcomes, outcome)
	}
	return outcomes, table, nil
}

func (r *Router) step(ctx context.Context, f *frame, table *valueTable, i int, ins Instruction, depth int) (*big.Int, []Outcome, error) {
	input := ins.Input
	if ins.Type.Scanned() {
		var err error
		if input, err = r.resolve(f.st, table, i, input); err != nil {
			return nil, nil, err
		}
	}
	return r.dispatch(ctx, f, ins.Type, input, depth)
}
