// Package market provides reference NFT marketplaces that settle on a
// ledger.State: a signed-listing exchange for ERC721 and ERC1155 orders and a
// punk-style market where offers are stored on the collection itself.
//
// Both receive payment the way a payable call would: the caller moves native
// currency to the market address first and passes the amount as value. The
// market pays the seller and refunds anything above the price to the caller.
package market

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/branched-services/go-router/ledger"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrMalformedCall indicates calldata that does not decode as an order.
	ErrMalformedCall = errors.New("market: malformed calldata")

	// ErrInvalidSignature indicates the order was not signed by its seller.
	ErrInvalidSignature = errors.New("market: invalid order signature")

	// ErrOrderFilled indicates the order has already been filled.
	ErrOrderFilled = errors.New("market: order already filled")

	// ErrInsufficientPayment indicates the value sent is below the price.
	ErrInsufficientPayment = errors.New("market: insufficient payment")

	// ErrNotForSale indicates there is no open offer for the item.
	ErrNotForSale = errors.New("market: not for sale")
)

// Order is a seller's signed offer to sell one ERC721 token (Amount zero) or
// Amount editions of an ERC1155 token for Price native currency.
type Order struct {
	Collection common.Address `abi:"collection"`
	TokenID    *big.Int       `abi:"tokenId"`
	Amount     *big.Int       `abi:"amount"`
	Price      *big.Int       `abi:"price"`
	Seller     common.Address `abi:"seller"`
	Recipient  common.Address `abi:"recipient"`
	Salt       *big.Int       `abi:"salt"`
}

type fill struct {
	Collection common.Address `abi:"collection"`
	TokenID    *big.Int       `abi:"tokenId"`
	Amount     *big.Int       `abi:"amount"`
	Price      *big.Int       `abi:"price"`
	Seller     common.Address `abi:"seller"`
	Recipient  common.Address `abi:"recipient"`
	Salt       *big.Int       `abi:"salt"`
	Signature  []byte         `abi:"signature"`
}

var (
	orderArgs = abi.Arguments{
		{Name: "collection", Type: mustType("address")},
		{Name: "tokenId", Type: mustType("uint256")},
		{Name: "amount", Type: mustType("uint256")},
		{Name: "price", Type: mustType("uint256")},
		{Name: "seller", Type: mustType("address")},
		{Name: "recipient", Type: mustType("address")},
		{Name: "salt", Type: mustType("uint256")},
	}
	fillArgs = append(append(abi.Arguments{}, orderArgs...), abi.Argument{Name: "signature", Type: mustType("bytes")})
)

// Listing is a signed-listing exchange deployed at one address.
type Listing struct {
	address common.Address
	domain  []byte
}

// NewListing creates an exchange at address on chainID.
func NewListing(address common.Address, chainID *big.Int) *Listing {
	return &Listing{
		address: address,
		domain: crypto.Keccak256(
			[]byte("Listing"),
			common.LeftPadBytes(chainID.Bytes(), 32),
			common.LeftPadBytes(address.Bytes(), 32),
		),
	}
}

// Address returns the exchange address.
func (m *Listing) Address() common.Address {
	return m.address
}

// Hash returns the digest a seller signs for o.
func (m *Listing) Hash(o Order) (common.Hash, error) {
	packed, err := orderArgs.Pack(o.Collection, o.TokenID, nonNil(o.Amount), o.Price, o.Seller, o.Recipient, nonNil(o.Salt))
	if err != nil {
		return common.Hash{}, fmt.Errorf("%w: %v", ErrMalformedCall, err)
	}
	return crypto.Keccak256Hash([]byte("\x19\x01"), m.domain, crypto.Keccak256(packed)), nil
}

// Sign returns the seller signature for o.
func (m *Listing) Sign(key *ecdsa.PrivateKey, o Order) ([]byte, error) {
	h, err := m.Hash(o)
	if err != nil {
		return nil, err
	}
	return crypto.Sign(h.Bytes(), key)
}

// EncodeFill returns the calldata that fills o.
func (m *Listing) EncodeFill(o Order, signature []byte) ([]byte, error) {
	return fillArgs.Pack(o.Collection, o.TokenID, nonNil(o.Amount), o.Price, o.Seller, o.Recipient, nonNil(o.Salt), signature)
}

// List records a sell order for an item the seller holds and returns the
// signed calldata that fills it.
func (m *Listing) List(key *ecdsa.PrivateKey, o Order) ([]byte, error) {
	o.Seller = crypto.PubkeyToAddress(key.PublicKey)
	sig, err := m.Sign(key, o)
	if err != nil {
		return nil, err
	}
	return m.EncodeFill(o, sig)
}

// Call fills the order in data. value must already be held by the exchange.
// The item goes from the seller to the order recipient, the seller receives
// the price and the caller gets the excess back. It returns the order hash.
func (m *Listing) Call(ctx context.Context, st *ledger.State, from common.Address, value *big.Int, data []byte) ([]byte, error) {
	values, err := fillArgs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCall, err)
	}
	var f fill
	if err := fillArgs.Copy(&f, values); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCall, err)
	}
	o := Order{
		Collection: f.Collection,
		TokenID:    f.TokenID,
		Amount:     f.Amount,
		Price:      f.Price,
		Seller:     f.Seller,
		Recipient:  f.Recipient,
		Salt:       f.Salt,
	}

	h, err := m.Hash(o)
	if err != nil {
		return nil, err
	}
	if len(f.Signature) != crypto.SignatureLength {
		return nil, ErrInvalidSignature
	}
	pub, err := crypto.SigToPub(h.Bytes(), f.Signature)
	if err != nil || crypto.PubkeyToAddress(*pub) != o.Seller {
		return nil, ErrInvalidSignature
	}

	filledKey := crypto.Keccak256Hash([]byte("filled"), h.Bytes())
	if st.GetState(m.address, filledKey) != (common.Hash{}) {
		return nil, ErrOrderFilled
	}
	if value.Cmp(o.Price) < 0 {
		return nil, fmt.Errorf("%w: price %s, sent %s", ErrInsufficientPayment, o.Price, value)
	}

	if o.Amount.Sign() == 0 {
		err = st.TransferNFT(o.Collection, o.Seller, o.Recipient, o.TokenID)
	} else {
		err = st.TransferEditions(o.Collection, o.Seller, o.Recipient, o.TokenID, o.Amount)
	}
	if err != nil {
		return nil, err
	}
	if err := settle(st, m.address, o.Seller, from, o.Price, value); err != nil {
		return nil, err
	}
	st.SetState(m.address, filledKey, common.BytesToHash([]byte{1}))
	return h.Bytes(), nil
}

// settle pays price to seller and refunds value - price to buyer.
func settle(st *ledger.State, market, seller, buyer common.Address, price, value *big.Int) error {
	if err := st.TransferNative(market, seller, price); err != nil {
		return err
	}
	excess := new(big.Int).Sub(value, price)
	if excess.Sign() > 0 {
		return st.TransferNative(market, buyer, excess)
	}
	return nil
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}
