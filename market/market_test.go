package market

import (
	"context"
	"math/big"
	"testing"

	"github.com/branched-services/go-router/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	exchangeAddr = common.HexToAddress("0x00000000000000ADc04C56Bf30aC9d3c0aAF14dC")
	collection   = common.HexToAddress("0xBC4CA0EdA7647A8aB7C2061c2E118A18a936f13D")
	buyer        = common.HexToAddress("0x00000000000000000000000000000000000000b0")
)

func TestListingFillsERC721Order(t *testing.T) {
	ctx := context.Background()
	st := ledger.New(0)
	m := NewListing(exchangeAddr, big.NewInt(1))

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	seller := crypto.PubkeyToAddress(key.PublicKey)
	st.SetOwner(collection, big.NewInt(7), seller)

	data, err := m.List(key, Order{
		Collection: collection,
		TokenID:    big.NewInt(7),
		Price:      big.NewInt(100),
		Recipient:  buyer,
	})
	require.NoError(t, err)

	require.NoError(t, st.AddNative(exchangeAddr, big.NewInt(130)))
	_, err = m.Call(ctx, st, buyer, big.NewInt(130), data)
	require.NoError(t, err)

	owner, ok := st.OwnerOf(collection, big.NewInt(7))
	require.True(t, ok)
	assert.Equal(t, buyer, owner)
	assert.Equal(t, int64(100), st.NativeBalance(seller).Int64())
	assert.Equal(t, int64(30), st.NativeBalance(buyer).Int64(), "excess is refunded")
	assert.Zero(t, st.NativeBalance(exchangeAddr).Sign())

	require.NoError(t, st.AddNative(exchangeAddr, big.NewInt(100)))
	_, err = m.Call(ctx, st, buyer, big.NewInt(100), data)
	assert.ErrorIs(t, err, ErrOrderFilled)
}

func TestListingFillsERC1155Order(t *testing.T) {
	ctx := context.Background()
	st := ledger.New(0)
	m := NewListing(exchangeAddr, big.NewInt(1))

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	seller := crypto.PubkeyToAddress(key.PublicKey)
	require.NoError(t, st.MintEditions(collection, big.NewInt(3), seller, big.NewInt(10)))

	data, err := m.List(key, Order{
		Collection: collection,
		TokenID:    big.NewInt(3),
		Amount:     big.NewInt(4),
		Price:      big.NewInt(40),
		Recipient:  buyer,
	})
	require.NoError(t, err)

	require.NoError(t, st.AddNative(exchangeAddr, big.NewInt(40)))
	_, err = m.Call(ctx, st, buyer, big.NewInt(40), data)
	require.NoError(t, err)
	assert.Equal(t, int64(4), st.EditionBalance(collection, big.NewInt(3), buyer).Int64())
	assert.Equal(t, int64(6), st.EditionBalance(collection, big.NewInt(3), seller).Int64())
}

func TestListingRejects(t *testing.T) {
	ctx := context.Background()
	m := NewListing(exchangeAddr, big.NewInt(1))
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	seller := crypto.PubkeyToAddress(key.PublicKey)

	order := Order{Collection: collection, TokenID: big.NewInt(1), Price: big.NewInt(50), Recipient: buyer}

	t.Run("malformed calldata", func(t *testing.T) {
		st := ledger.New(0)
		_, err := m.Call(ctx, st, buyer, big.NewInt(0), []byte{0xde, 0xad})
		assert.ErrorIs(t, err, ErrMalformedCall)
	})

	t.Run("underpaid", func(t *testing.T) {
		st := ledger.New(0)
		st.SetOwner(collection, big.NewInt(1), seller)
		data, err := m.List(key, order)
		require.NoError(t, err)
		require.NoError(t, st.AddNative(exchangeAddr, big.NewInt(49)))
		_, err = m.Call(ctx, st, buyer, big.NewInt(49), data)
		assert.ErrorIs(t, err, ErrInsufficientPayment)
	})

	t.Run("forged seller", func(t *testing.T) {
		st := ledger.New(0)
		forged := order
		forged.Seller = common.HexToAddress("0x00000000000000000000000000000000000000c0")
		sig, err := m.Sign(key, forged)
		require.NoError(t, err)
		data, err := m.EncodeFill(forged, sig)
		require.NoError(t, err)
		_, err = m.Call(ctx, st, buyer, big.NewInt(50), data)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})

	t.Run("signature bound to exchange", func(t *testing.T) {
		st := ledger.New(0)
		other := NewListing(common.HexToAddress("0x00000000000000000000000000000000000000d0"), big.NewInt(1))
		data, err := other.List(key, order)
		require.NoError(t, err)
		_, err = m.Call(ctx, st, buyer, big.NewInt(50), data)
		assert.ErrorIs(t, err, ErrInvalidSignature)
	})
}

func TestPunks(t *testing.T) {
	ctx := context.Background()
	st := ledger.New(0)
	punks := NewPunks(common.HexToAddress("0xb47e3cd837dDF8e4c57F05d70Ab865de6e193BBB"))
	seller := common.HexToAddress("0x00000000000000000000000000000000000000a1")

	assert.ErrorIs(t, punks.OfferForSale(st, seller, big.NewInt(9), big.NewInt(1)), ledger.ErrNotOwner)

	punks.Assign(st, big.NewInt(9), seller)
	require.NoError(t, punks.OfferForSale(st, seller, big.NewInt(9), big.NewInt(70)))

	data, err := EncodeBuy(big.NewInt(9))
	require.NoError(t, err)
	require.NoError(t, st.AddNative(punks.Address(), big.NewInt(75)))
	_, err = punks.Call(ctx, st, buyer, big.NewInt(75), data)
	require.NoError(t, err)

	owner, _ := st.OwnerOf(punks.Address(), big.NewInt(9))
	assert.Equal(t, buyer, owner)
	assert.Equal(t, int64(70), st.NativeBalance(seller).Int64())
	assert.Equal(t, int64(5), st.NativeBalance(buyer).Int64())

	_, _, ok := punks.Offer(st, big.NewInt(9))
	assert.False(t, ok)
	_, err = punks.Call(ctx, st, buyer, big.NewInt(0), data)
	assert.ErrorIs(t, err, ErrNotForSale)
}
