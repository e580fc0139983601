package router

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mainnetParameters = `
router: "0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD"
chain_id: 1
weth: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
permit2: "0x000000000022D473030F116dDEE9F6B43aC78BA3"
v2_factory: "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"
v2_init_code_hash: "0x96e8ac4277198ff8b6f785478aa9a39f403cb768dd02cbee326c3e7da348845f"
v3_factory: "0x1F98431c8aD98523631AE4a59f267346ea31F984"
v3_init_code_hash: "0xe34f199b19b2b4f47f68442619d555527d244f78a3297ea89325f843f87b8b54"
markets:
  seaport_v1_5: "0x00000000000000ADc04C56Bf30aC9d3c0aAF14dC"
  CRYPTOPUNKS: "0xb47e3cd837dDF8e4c57F05d70Ab865de6e193BBB"
`

func TestParseParameters(t *testing.T) {
	p, err := ParseParameters([]byte(mainnetParameters))
	require.NoError(t, err)
	assert.Equal(t, routerAddr, p.RouterAddress())
	assert.Equal(t, uint64(1), p.ChainID)
	assert.Len(t, p.Markets, 2)

	r := New(p.RouterAddress(), p.Options()...)
	assert.Equal(t, weth, r.weth)
	require.NotNil(t, r.permit2)
	assert.Equal(t, permit2Addr, r.permit2.Address())
	require.NotNil(t, r.v2)
	assert.Equal(t, v2InitHash, r.v2.InitCodeHash)
	require.NotNil(t, r.v3)
	assert.Equal(t, v3Factory, r.v3.Factory)
	require.Contains(t, r.markets, SeaportV1_5)
	require.Contains(t, r.markets, CryptoPunks)
	assert.Equal(t, "0xb47e3cd837dDF8e4c57F05d70Ab865de6e193BBB", r.markets[CryptoPunks].Address().Hex())
}

func TestLoadParameters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte(mainnetParameters), 0o600))

	p, err := LoadParameters(path)
	require.NoError(t, err)
	assert.Equal(t, "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", p.WETH)

	_, err = LoadParameters(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestParametersValidate(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "router only",
			yaml: `router: "0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD"`,
		},
		{
			name:    "missing router",
			yaml:    `weth: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"`,
			wantErr: "router is required",
		},
		{
			name:    "bad address",
			yaml:    "router: \"0x3fC9\"",
			wantErr: "is not an address",
		},
		{
			name: "factory without hash",
			yaml: `router: "0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD"
v2_factory: "0x5C69bEe701ef814a2B6a3EDD4B1652CB9cc5aA6f"`,
			wantErr: "must be set together",
		},
		{
			name: "short hash",
			yaml: `router: "0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD"
v3_factory: "0x1F98431c8aD98523631AE4a59f267346ea31F984"
v3_init_code_hash: "0x1234"`,
			wantErr: "not a 32-byte hash",
		},
		{
			name: "permit2 without chain",
			yaml: `router: "0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD"
permit2: "0x000000000022D473030F116dDEE9F6B43aC78BA3"`,
			wantErr: "chain_id is required",
		},
		{
			name: "unknown market",
			yaml: `router: "0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD"
markets:
  SWEEP: "0x00000000000000ADc04C56Bf30aC9d3c0aAF14dC"`,
			wantErr: "not a marketplace command",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseParameters([]byte(tt.yaml))
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, ErrInvalidParameters)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := ParseParameters([]byte("router: [unterminated"))
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidParameters)
	})
}
