// Package permit2 is a reference delegated-allowance verifier. Owners grant a
// spender a time-bounded allowance for a token either directly or by signing
// a permit, and the spender later pulls tokens with TransferFrom. Allowances
// are stored as packed words (nonce | expiration | amount) in ledger storage
// of the verifier's address, so they roll back with the ledger journal.
package permit2

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/branched-services/go-router/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrSignatureExpired indicates the permit's signature deadline passed.
	ErrSignatureExpired = errors.New("permit2: signature expired")

	// ErrInvalidSigner indicates the permit was not signed by the owner.
	ErrInvalidSigner = errors.New("permit2: invalid signer")

	// ErrInvalidSignature indicates a malformed signature.
	ErrInvalidSignature = errors.New("permit2: invalid signature")

	// ErrInvalidNonce indicates the permit nonce was already consumed.
	ErrInvalidNonce = errors.New("permit2: invalid nonce")

	// ErrAllowanceExpired indicates the allowance is past its expiration.
	ErrAllowanceExpired = errors.New("permit2: allowance expired")

	// ErrInsufficientAllowance indicates the allowance does not cover the amount.
	ErrInsufficientAllowance = errors.New("permit2: insufficient allowance")

	// ErrAmountOverflow indicates an amount that does not fit in 160 bits.
	ErrAmountOverflow = errors.New("permit2: amount exceeds 160 bits")
)

// MaxAmount is the unlimited allowance; transfers do not decrease it.
var MaxAmount = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 160), big.NewInt(1))

// MaxUint48 bounds expirations and nonces.
const MaxUint48 = 1<<48 - 1

// PermitDetails is the signed allowance for one token.
type PermitDetails struct {
	Token      common.Address
	Amount     *big.Int
	Expiration uint64
	Nonce      uint64
}

// PermitSingle grants Spender the allowance in Details until SigDeadline.
type PermitSingle struct {
	Details     PermitDetails
	Spender     common.Address
	SigDeadline *big.Int
}

// Allowance is the decoded allowance word.
type Allowance struct {
	Amount     *big.Int
	Expiration uint64
	Nonce      uint64
}

// Permit2 verifies permits and moves tokens on behalf of owners.
type Permit2 struct {
	address common.Address
	chainID *big.Int
}

// New creates a verifier deployed at address on chainID.
func New(address common.Address, chainID *big.Int) *Permit2 {
	return &Permit2{address: address, chainID: new(big.Int).Set(chainID)}
}

// Address returns the verifier address.
func (p *Permit2) Address() common.Address {
	return p.address
}

// Hash returns the digest an owner signs for permit.
func (p *Permit2) Hash(permit PermitSingle) common.Hash {
	domain := crypto.Keccak256(
		[]byte("Permit2"),
		common.LeftPadBytes(p.chainID.Bytes(), 32),
		common.LeftPadBytes(p.address.Bytes(), 32),
	)
	return crypto.Keccak256Hash(
		[]byte("\x19\x01"),
		domain,
		common.LeftPadBytes(permit.Details.Token.Bytes(), 32),
		bigWord(permit.Details.Amount),
		uint64Word(permit.Details.Expiration),
		uint64Word(permit.Details.Nonce),
		common.LeftPadBytes(permit.Spender.Bytes(), 32),
		bigWord(permit.SigDeadline),
	)
}

// Sign produces an owner signature for permit.
func (p *Permit2) Sign(key *ecdsa.PrivateKey, permit PermitSingle) ([]byte, error) {
	h := p.Hash(permit)
	return crypto.Sign(h.Bytes(), key)
}

// Permit verifies owner's signature over permit and records the allowance.
func (p *Permit2) Permit(ctx context.Context, st *ledger.State, owner common.Address, permit PermitSingle, signature []byte) error {
	if permit.SigDeadline != nil && new(big.Int).SetUint64(st.Timestamp()).Cmp(permit.SigDeadline) > 0 {
		return ErrSignatureExpired
	}
	if permit.Details.Amount == nil || permit.Details.Amount.Sign() < 0 || permit.Details.Amount.BitLen() > 160 {
		return ErrAmountOverflow
	}
	if permit.Details.Expiration > MaxUint48 || permit.Details.Nonce >= MaxUint48 {
		return fmt.Errorf("%w: expiration or nonce out of range", ErrInvalidNonce)
	}
	if len(signature) != crypto.SignatureLength {
		return fmt.Errorf("%w: length %d", ErrInvalidSignature, len(signature))
	}
	pub, err := crypto.SigToPub(p.Hash(permit).Bytes(), signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	if crypto.PubkeyToAddress(*pub) != owner {
		return ErrInvalidSigner
	}

	current := p.Allowance(st, owner, permit.Details.Token, permit.Spender)
	if current.Nonce != permit.Details.Nonce {
		return fmt.Errorf("%w: have %d, got %d", ErrInvalidNonce, current.Nonce, permit.Details.Nonce)
	}

	expiration := permit.Details.Expiration
	if expiration == 0 {
		expiration = st.Timestamp()
	}
	p.store(st, owner, permit.Details.Token, permit.Spender, Allowance{
		Amount:     permit.Details.Amount,
		Expiration: expiration,
		Nonce:      current.Nonce + 1,
	})
	return nil
}

// Approve sets an allowance directly, keeping the nonce.
func (p *Permit2) Approve(st *ledger.State, owner, token, spender common.Address, amount *big.Int, expiration uint64) error {
	if amount.Sign() < 0 || amount.BitLen() > 160 {
		return ErrAmountOverflow
	}
	current := p.Allowance(st, owner, token, spender)
	if expiration == 0 {
		expiration = st.Timestamp()
	}
	p.store(st, owner, token, spender, Allowance{Amount: amount, Expiration: expiration, Nonce: current.Nonce})
	return nil
}

// Allowance returns the current allowance of spender over owner's token.
func (p *Permit2) Allowance(st *ledger.State, owner, token, spender common.Address) Allowance {
	return unpack(st.GetState(p.address, allowanceKey(owner, token, spender)))
}

// TransferFrom moves amount of token from from to to, spending spender's
// allowance.
func (p *Permit2) TransferFrom(ctx context.Context, st *ledger.State, spender, from, to, token common.Address, amount *big.Int) error {
	if amount.Sign() < 0 || amount.BitLen() > 160 {
		return ErrAmountOverflow
	}
	allowed := p.Allowance(st, from, token, spender)
	if st.Timestamp() > allowed.Expiration {
		return fmt.Errorf("%w: at %d", ErrAllowanceExpired, allowed.Expiration)
	}
	if allowed.Amount.Cmp(MaxAmount) != 0 {
		if allowed.Amount.Cmp(amount) < 0 {
			return fmt.Errorf("%w: have %s, need %s", ErrInsufficientAllowance, allowed.Amount, amount)
		}
		allowed.Amount = new(big.Int).Sub(allowed.Amount, amount)
		p.store(st, from, token, spender, allowed)
	}
	return st.TransferToken(token, from, to, amount)
}

func (p *Permit2) store(st *ledger.State, owner, token, spender common.Address, a Allowance) {
	st.SetState(p.address, allowanceKey(owner, token, spender), pack(a))
}

func allowanceKey(owner, token, spender common.Address) common.Hash {
	return crypto.Keccak256Hash(owner.Bytes(), token.Bytes(), spender.Bytes())
}

// pack lays out nonce (6 bytes) | expiration (6 bytes) | amount (20 bytes).
func pack(a Allowance) common.Hash {
	var w common.Hash
	putUint48(w[0:6], a.Nonce)
	putUint48(w[6:12], a.Expiration)
	a.Amount.FillBytes(w[12:32])
	return w
}

func unpack(w common.Hash) Allowance {
	return Allowance{
		Nonce:      uint48(w[0:6]),
		Expiration: uint48(w[6:12]),
		Amount:     new(big.Int).SetBytes(w[12:32]),
	}
}

func putUint48(b []byte, v uint64) {
	for i := 5; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}
}

func uint48(b []byte) uint64 {
	var v uint64
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

func bigWord(v *big.Int) []byte {
	if v == nil {
		return make([]byte, 32)
	}
	return common.LeftPadBytes(v.Bytes(), 32)
}

func uint64Word(v uint64) []byte {
	return common.LeftPadBytes(new(big.Int).SetUint64(v).Bytes(), 32)
}
