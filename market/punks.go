package market

import (
	"context"
	"fmt"
	"math/big"

	"github.com/branched-services/go-router/ledger"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var buyArgs = abi.Arguments{{Name: "punkIndex", Type: mustType("uint256")}}

// Punks is a collection that is its own market: punks are recorded as
// ERC721 tokens of the market address, and open offers live in its storage.
type Punks struct {
	address common.Address
}

// NewPunks creates the collection at address.
func NewPunks(address common.Address) *Punks {
	return &Punks{address: address}
}

// Address returns the collection address.
func (p *Punks) Address() common.Address {
	return p.address
}

// Assign gives punk id to owner.
func (p *Punks) Assign(st *ledger.State, id *big.Int, owner common.Address) {
	st.SetOwner(p.address, id, owner)
}

// OfferForSale lists punk id for price. Only the current owner may list.
func (p *Punks) OfferForSale(st *ledger.State, seller common.Address, id, price *big.Int) error {
	owner, ok := st.OwnerOf(p.address, id)
	if !ok || owner != seller {
		return fmt.Errorf("%w: punk %s", ledger.ErrNotOwner, id)
	}
	st.SetState(p.address, sellerSlot(id), common.BytesToHash(seller.Bytes()))
	st.SetState(p.address, priceSlot(id), common.BigToHash(price))
	return nil
}

// Offer returns the open offer for punk id.
func (p *Punks) Offer(st *ledger.State, id *big.Int) (seller common.Address, price *big.Int, ok bool) {
	w := st.GetState(p.address, sellerSlot(id))
	if w == (common.Hash{}) {
		return common.Address{}, nil, false
	}
	return common.BytesToAddress(w.Bytes()), st.GetState(p.address, priceSlot(id)).Big(), true
}

// EncodeBuy returns the calldata that buys punk id.
func EncodeBuy(id *big.Int) ([]byte, error) {
	return buyArgs.Pack(id)
}

// Call buys the punk named in data for from. value must already be held by
// the collection.
func (p *Punks) Call(ctx context.Context, st *ledger.State, from common.Address, value *big.Int, data []byte) ([]byte, error) {
	values, err := buyArgs.Unpack(data)
	if err != nil || len(values) != 1 {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCall, err)
	}
	id, ok := values[0].(*big.Int)
	if !ok {
		return nil, ErrMalformedCall
	}

	seller, price, ok := p.Offer(st, id)
	if !ok {
		return nil, fmt.Errorf("%w: punk %s", ErrNotForSale, id)
	}
	if value.Cmp(price) < 0 {
		return nil, fmt.Errorf("%w: price %s, sent %s", ErrInsufficientPayment, price, value)
	}
	if err := st.TransferNFT(p.address, seller, from, id); err != nil {
		return nil, err
	}
	if err := settle(st, p.address, seller, from, price, value); err != nil {
		return nil, err
	}
	st.SetState(p.address, sellerSlot(id), common.Hash{})
	st.SetState(p.address, priceSlot(id), common.Hash{})
	return nil, nil
}

func sellerSlot(id *big.Int) common.Hash {
	return crypto.Keccak256Hash([]byte("seller"), common.BigToHash(id).Bytes())
}

func priceSlot(id *big.Int) common.Hash {
	return crypto.Keccak256Hash([]byte("price"), common.BigToHash(id).Bytes())
}
