package router

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/crypto"
)

// Sentinel errors for invocation failures.
var (
	// ErrLengthMismatch indicates the command stream and inputs differ in length.
	ErrLengthMismatch = errors.New("router: length mismatch")

	// ErrInvalidCommandType indicates a command type outside the known set.
	ErrInvalidCommandType = errors.New("router: invalid command type")

	// ErrDeadlinePassed indicates the invocation arrived after its deadline.
	ErrDeadlinePassed = errors.New("router: transaction deadline passed")

	// ErrReentrancy indicates a nested invocation of a router already executing.
	ErrReentrancy = errors.New("router: contract locked")

	// ErrInvalidBips indicates a fee portion above 10000 basis points.
	ErrInvalidBips = errors.New("router: invalid bips")

	// ErrNestedSubPlan indicates a sub-plan instruction inside a sub-plan.
	ErrNestedSubPlan = errors.New("router: nested sub-plan")

	// ErrValueUnavailable indicates a pass-through placeholder whose source
	// instruction failed, comes later, or produced no value.
	ErrValueUnavailable = errors.New("router: referenced value unavailable")

	// ErrInvalidInput indicates an input blob that does not match the
	// command's argument schema.
	ErrInvalidInput = errors.New("router: invalid command input")

	// ErrNotConfigured indicates a command whose collaborator is not set.
	ErrNotConfigured = errors.New("router: collaborator not configured")

	// ErrTooLittleReceived indicates a swap output below the minimum.
	ErrTooLittleReceived = errors.New("router: too little received")

	// ErrTooMuchRequested indicates a swap input above the maximum.
	ErrTooMuchRequested = errors.New("router: too much requested")

	// ErrInsufficientToken indicates a router token balance below the minimum.
	ErrInsufficientToken = errors.New("router: insufficient token")

	// ErrInsufficientETH indicates a router native balance below the amount.
	ErrInsufficientETH = errors.New("router: insufficient eth")

	// ErrBalanceTooLow indicates a failed BALANCE_CHECK_ERC20.
	ErrBalanceTooLow = errors.New("router: balance too low")

	// ErrInvalidOwnerERC721 indicates a failed OWNER_CHECK_721.
	ErrInvalidOwnerERC721 = errors.New("router: invalid owner erc721")

	// ErrInvalidOwnerERC1155 indicates a failed OWNER_CHECK_1155.
	ErrInvalidOwnerERC1155 = errors.New("router: invalid owner erc1155")
)

// Sentinel errors for plan construction.
var (
	// ErrCyclicPlanner indicates a planner references itself through sub-plans.
	ErrCyclicPlanner = errors.New("router: cyclic planner reference detected")

	// ErrInvalidSubplan indicates a sub-plan that cannot be added.
	ErrInvalidSubplan = errors.New("router: invalid sub-plan")

	// ErrReturnValueNotVisible indicates a return value used outside the
	// planner that created it or before its command.
	ErrReturnValueNotVisible = errors.New("router: return value not visible at this point")

	// ErrNoReturnValue indicates a command that produces no value.
	ErrNoReturnValue = errors.New("router: command has no return value")

	// ErrTooManyCommands indicates a plan above the command limit.
	ErrTooManyCommands = errors.New("router: too many commands")

	// ErrUnscannedPlaceholder indicates a placeholder passed to a command
	// whose input is never resolved.
	ErrUnscannedPlaceholder = errors.New("router: placeholder in unscanned input")
)

// fatal reports whether err aborts the invocation regardless of the
// instruction's revert policy.
func fatal(err error) bool {
	return errors.Is(err, ErrInvalidCommandType) ||
		errors.Is(err, ErrReentrancy) ||
		errors.Is(err, ErrInvalidBips) ||
		errors.Is(err, ErrNestedSubPlan)
}

// ExecutionFailedError reports the instruction that aborted a stream.
type ExecutionFailedError struct {
	CommandIndex int
	Command      CommandType
	Reason       []byte
	Err          error
}

func (e *ExecutionFailedError) Error() string {
	return fmt.Sprintf("router: command %d (%s) failed: %v", e.CommandIndex, e.Command, e.Err)
}

func (e *ExecutionFailedError) Unwrap() error {
	return e.Err
}

// ArgumentError indicates an issue with a command argument.
type ArgumentError struct {
	Command CommandType
	Index   int
	Err     error
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("router: argument %d for %s: %v", e.Index, e.Command, e.Err)
}

func (e *ArgumentError) Unwrap() error {
	return e.Err
}

// TypeMismatchError indicates a value's type doesn't match the expected parameter type.
type TypeMismatchError struct {
	Expected string
	Got      string
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("router: type mismatch: expected %s, got %s", e.Expected, e.Got)
}

// PlanError wraps errors that occur during planning.
type PlanError struct {
	CommandIndex int
	Command      CommandType
	Err          error
}

func (e *PlanError) Error() string {
	return fmt.Sprintf("router: command %d (%s): %v", e.CommandIndex, e.Command, e.Err)
}

func (e *PlanError) Unwrap() error {
	return e.Err
}

// EncodingError indicates a failure during value or command encoding.
type EncodingError struct {
	Value any
	Err   error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("router: encoding error for value %T: %v", e.Value, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

var (
	errorSelector           = crypto.Keccak256([]byte("Error(string)"))[:4]
	executionFailedSelector = crypto.Keccak256([]byte("ExecutionFailed(uint256,bytes)"))[:4]

	errorArgs           = mustArgs("string message")
	executionFailedArgs = mustArgs("uint256 commandIndex", "bytes message")
)

// EncodeRevertReason renders err as revert bytes. Stream aborts become
// ExecutionFailed(uint256,bytes) carrying the inner reason; anything else
// becomes Error(string).
func EncodeRevertReason(err error) []byte {
	var failed *ExecutionFailedError
	if errors.As(err, &failed) {
		packed, perr := executionFailedArgs.Pack(big.NewInt(int64(failed.CommandIndex)), failed.Reason)
		if perr == nil {
			return append(bytes.Clone(executionFailedSelector), packed...)
		}
	}
	packed, perr := errorArgs.Pack(err.Error())
	if perr != nil {
		return nil
	}
	return append(bytes.Clone(errorSelector), packed...)
}

// DecodeRevertReason renders revert bytes as text. Nested ExecutionFailed
// reasons are unwrapped into a "command i: ..." chain.
func DecodeRevertReason(reason []byte) string {
	if len(reason) >= 4 && bytes.Equal(reason[:4], executionFailedSelector) {
		values, err := executionFailedArgs.Unpack(reason[4:])
		if err == nil && len(values) == 2 {
			index, _ := values[0].(*big.Int)
			inner, _ := values[1].([]byte)
			if index != nil {
				return fmt.Sprintf("command %s: %s", index, DecodeRevertReason(inner))
			}
		}
	}
	if msg, err := abi.UnpackRevert(reason); err == nil {
		return msg
	}
	if len(reason) == 0 {
		return ""
	}
	return "0x" + hex.EncodeToString(reason)
}
