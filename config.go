package router

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"

	"github.com/branched-services/go-router/market"
	"github.com/branched-services/go-router/permit2"
	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// ErrInvalidParameters indicates deployment parameters that fail validation.
var ErrInvalidParameters = errors.New("router: invalid parameters")

// Parameters are the fixed addresses of one router deployment.
type Parameters struct {
	Router         string            `yaml:"router"`
	ChainID        uint64            `yaml:"chain_id"`
	WETH           string            `yaml:"weth"`
	Permit2        string            `yaml:"permit2"`
	V2Factory      string            `yaml:"v2_factory"`
	V2InitCodeHash string            `yaml:"v2_init_code_hash"`
	V3Factory      string            `yaml:"v3_factory"`
	V3InitCodeHash string            `yaml:"v3_init_code_hash"`
	Markets        map[string]string `yaml:"markets"` // command name -> marketplace address
}

// LoadParameters reads YAML parameters from path.
func LoadParameters(path string) (*Parameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("router: reading parameters: %w", err)
	}
	return ParseParameters(data)
}

// ParseParameters decodes and validates YAML parameters.
func ParseParameters(data []byte) (*Parameters, error) {
	var p Parameters
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("router: parsing parameters: %w", err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Validate checks that every configured field is well formed. Only the
// router address is required.
func (p *Parameters) Validate() error {
	var problems []string
	checkAddr := func(name, v string, required bool) {
		if v == "" {
			if required {
				problems = append(problems, name+" is required")
			}
			return
		}
		if !common.IsHexAddress(v) {
			problems = append(problems, fmt.Sprintf("%s: %q is not an address", name, v))
		}
	}
	checkHash := func(name, v string) {
		if v == "" {
			return
		}
		if len(strings.TrimPrefix(v, "0x")) != 2*common.HashLength {
			problems = append(problems, fmt.Sprintf("%s: %q is not a 32-byte hash", name, v))
		}
	}

	checkAddr("router", p.Router, true)
	checkAddr("weth", p.WETH, false)
	checkAddr("permit2", p.Permit2, false)
	checkAddr("v2_factory", p.V2Factory, false)
	checkHash("v2_init_code_hash", p.V2InitCodeHash)
	checkAddr("v3_factory", p.V3Factory, false)
	checkHash("v3_init_code_hash", p.V3InitCodeHash)
	if (p.V2Factory == "") != (p.V2InitCodeHash == "") {
		problems = append(problems, "v2_factory and v2_init_code_hash must be set together")
	}
	if (p.V3Factory == "") != (p.V3InitCodeHash == "") {
		problems = append(problems, "v3_factory and v3_init_code_hash must be set together")
	}
	if p.Permit2 != "" && p.ChainID == 0 {
		problems = append(problems, "chain_id is required with permit2")
	}

	names := make([]string, 0, len(p.Markets))
	for name := range p.Markets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		t, err := ParseCommandType(name)
		if err != nil || !isMarketCommand(t) {
			problems = append(problems, fmt.Sprintf("markets: %q is not a marketplace command", name))
			continue
		}
		checkAddr("markets."+name, p.Markets[name], true)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidParameters, strings.Join(problems, "; "))
	}
	return nil
}

// RouterAddress returns the router address.
func (p *Parameters) RouterAddress() common.Address {
	return common.HexToAddress(p.Router)
}

// Options turns the parameters into router options. Marketplaces get the
// reference implementations from package market: CRYPTOPUNKS a punk market,
// every other marketplace command a signed-listing exchange.
func (p *Parameters) Options() []Option {
	chainID := new(big.Int).SetUint64(p.ChainID)
	var opts []Option
	if p.WETH != "" {
		opts = append(opts, WithWETH(common.HexToAddress(p.WETH)))
	}
	if p.Permit2 != "" {
		opts = append(opts, WithPermit2(permit2.New(common.HexToAddress(p.Permit2), chainID)))
	}
	if p.V2Factory != "" {
		opts = append(opts, WithV2(common.HexToAddress(p.V2Factory), common.HexToHash(p.V2InitCodeHash)))
	}
	if p.V3Factory != "" {
		opts = append(opts, WithV3(common.HexToAddress(p.V3Factory), common.HexToHash(p.V3InitCodeHash)))
	}
	for name, addr := range p.Markets {
		t, err := ParseCommandType(name)
		if err != nil {
			continue
		}
		a := common.HexToAddress(addr)
		if t == CryptoPunks {
			opts = append(opts, WithMarketplace(t, market.NewPunks(a)))
		} else {
			opts = append(opts, WithMarketplace(t, market.NewListing(a, chainID)))
		}
	}
	return opts
}

func isMarketCommand(t CommandType) bool {
	switch t {
	case SeaportV1_5, SeaportV1_4, LooksRareV2, NFTX, CryptoPunks, X2Y2_721, Sudoswap, NFT20, X2Y2_1155, Foundation, ElementMarket:
		return true
	default:
		return false
	}
}
