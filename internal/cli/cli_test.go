package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/branched-services/go-router"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testWETH = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	testUSDC = common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
)

// execute runs the root command with args and returns stdout, stderr and
// the command error.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd := NewRootCommand()
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func TestInvalidFormat(t *testing.T) {
	_, _, err := execute(t, "commands", "--format", "yaml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitCommandError, GetExitCode(errors.New("boom")))
	assert.Equal(t, ExitFailure, GetExitCode(WrapExitError(ExitFailure, "reverted", errors.New("boom"))))

	err := WrapExitError(ExitFailure, "reverted", router.ErrDeadlinePassed)
	assert.ErrorIs(t, err, router.ErrDeadlinePassed)
	assert.Equal(t, "reverted: router: transaction deadline passed", err.Error())
	assert.Equal(t, "plain", NewExitError(ExitCommandError, "plain").Error())
}

func TestCommandsText(t *testing.T) {
	out, _, err := execute(t, "commands")
	require.NoError(t, err)
	assert.Contains(t, out, "0x0b  WRAP_ETH")
	assert.Contains(t, out, "address recipient, uint256 amount  [placeholders]")
	assert.Contains(t, out, "0x22  EXECUTE_SUB_PLAN_RETURNING")
	assert.NotContains(t, out, "UNKNOWN")
}

func TestCommandsJSON(t *testing.T) {
	out, _, err := execute(t, "commands", "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   []CommandInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	require.Len(t, resp.Data, len(router.CommandTypes()))
	assert.Equal(t, "0x00", resp.Data[0].Code)
	assert.Equal(t, "V3_SWAP_EXACT_IN", resp.Data[0].Name)
	assert.True(t, resp.Data[0].ProducesValue)
	assert.True(t, resp.Data[0].Scanned)
}

func decodeArgsFor(t *testing.T, plan *router.CompiledPlan) []string {
	t.Helper()
	args := []string{"decode", "--commands", hexutil.Encode(plan.Commands)}
	for _, in := range plan.Inputs {
		args = append(args, "--input", hexutil.Encode(in))
	}
	return args
}

func samplePlan(t *testing.T) *router.CompiledPlan {
	t.Helper()
	p := router.NewPlanner()
	p.Add(router.MustCall(router.WrapETH, router.AddressThis, 1000))
	out := p.Add(router.MustCall(router.V2SwapExactIn, router.AddressThis, router.ContractBalance, 0, []common.Address{testWETH, testUSDC}, false))
	p.Add(router.MustCall(router.Sweep, testUSDC, router.MsgSender, out))

	sub := router.NewPlanner()
	sub.Add(router.MustCall(router.Transfer, router.ETH, router.MsgSender, router.BalanceOf(router.ETH)))
	require.NoError(t, p.AddSubPlan(sub, true))

	plan, err := p.Plan()
	require.NoError(t, err)
	return plan
}

func TestDecodeText(t *testing.T) {
	out, _, err := execute(t, decodeArgsFor(t, samplePlan(t))...)
	require.NoError(t, err)

	assert.Contains(t, out, "0  0x0b WRAP_ETH recipient=$this amount=1000\n")
	assert.Contains(t, out, "amountIn=$contract_balance")
	assert.Contains(t, out, "path=["+testWETH.Hex()+","+testUSDC.Hex()+"]")
	assert.Contains(t, out, "2  0x04 SWEEP token="+testUSDC.Hex()+" recipient=$sender amountMin=$out(1)\n")
	assert.Contains(t, out, "3  0x21 EXECUTE_SUB_PLAN (allow revert)\n")
	assert.Contains(t, out, "    0  0x05 TRANSFER token=0x0000000000000000000000000000000000000000 recipient=$sender value=$balance(ETH)\n")
}

func TestDecodeJSON(t *testing.T) {
	args := append(decodeArgsFor(t, samplePlan(t)), "--format", "json")
	out, _, err := execute(t, args...)
	require.NoError(t, err)

	var resp struct {
		Status string               `json:"status"`
		Data   []DecodedInstruction `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 4)
	assert.Equal(t, "V2_SWAP_EXACT_IN", resp.Data[1].Command)
	assert.Equal(t, Arg{Name: "payerIsUser", Value: "false"}, resp.Data[1].Args[4])
	assert.True(t, resp.Data[3].AllowRevert)
	require.Len(t, resp.Data[3].Nested, 1)
	assert.Equal(t, "TRANSFER", resp.Data[3].Nested[0].Command)
}

func TestDecodeErrors(t *testing.T) {
	t.Run("unknown command", func(t *testing.T) {
		out, _, err := execute(t, "decode", "--commands", "0x07", "--input", "0x")
		require.NoError(t, err)
		assert.Contains(t, out, "UNKNOWN(0x07)")
		assert.Contains(t, out, "invalid command type")
	})

	t.Run("malformed input", func(t *testing.T) {
		out, _, err := execute(t, "decode", "--commands", "0x04", "--input", "0x1234")
		require.NoError(t, err)
		assert.Contains(t, out, "0  0x04 SWEEP error=")
	})

	t.Run("length mismatch", func(t *testing.T) {
		_, _, err := execute(t, "decode", "--commands", "0x0b0b", "--input", "0x")
		require.ErrorIs(t, err, router.ErrLengthMismatch)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("bad hex", func(t *testing.T) {
		_, _, err := execute(t, "decode", "--commands", "0b")
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
	})

	t.Run("missing commands", func(t *testing.T) {
		_, _, err := execute(t, "decode")
		require.Error(t, err)
	})
}

type simulateResponse struct {
	Status string           `json:"status"`
	Data   SimulationReport `json:"data"`
	Error  string           `json:"error"`
}

func TestSimulateWrapAndSwap(t *testing.T) {
	out, _, err := execute(t, "simulate", filepath.Join("testdata", "wrap_swap.yaml"), "--format", "json")
	require.NoError(t, err)

	var resp simulateResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Equal(t, "ok", resp.Status)

	report := resp.Data
	assert.True(t, report.Success)
	assert.NotEmpty(t, report.Session)
	assert.Equal(t, "0x0b0800", report.Commands)
	require.Len(t, report.Outcomes, 3)
	for _, o := range report.Outcomes {
		assert.True(t, o.Success, o.Command)
	}
	assert.Equal(t, "1992", report.Outcomes[1].Value)

	alice := report.Balances["sender"]
	assert.Equal(t, "4000", alice["ETH"])
	assert.Equal(t, "10000", alice["USDC"])
	assert.Equal(t, report.Outcomes[2].Value, alice["DAI"])
	assert.NotEqual(t, "0", alice["DAI"])
	assert.Equal(t, "0", report.Refund)
	assert.Equal(t, "0", report.Balances["router"]["USDC"])
	assert.NotContains(t, report.Balances, "alice")
}

func TestSimulateText(t *testing.T) {
	out, _, err := execute(t, "simulate", filepath.Join("testdata", "wrap_swap.yaml"))
	require.NoError(t, err)
	assert.Contains(t, out, "commands 0x0b0800\n")
	assert.Contains(t, out, "1  V2_SWAP_EXACT_IN ok value=1992\n")
	assert.Contains(t, out, "refund   0\n")
	assert.Contains(t, out, "balance  sender DAI=")
	assert.Contains(t, out, "root     0x")
}

const revertingScenario = `
params:
  router: "0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD"
  weth: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
timestamp: 1000
sender: "0x00000000000000000000000000000000000000aa"
value: "300"
tokens:
  WETH: "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2"
accounts:
  - address: "0x00000000000000000000000000000000000000aa"
    native: "500"
steps:
  - command: WRAP_ETH
    args: [$this, "300"]
  - command: UNWRAP_WETH
    allow_revert: true
    args: [$sender, "1000"]
  - command: TRANSFER
    args: [WETH, $sender, "301"]
`

func writeScenario(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scenario.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestSimulateRevert(t *testing.T) {
	path := writeScenario(t, revertingScenario)
	out, _, err := execute(t, "simulate", path, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var failed *router.ExecutionFailedError
	require.ErrorAs(t, err, &failed)
	assert.Equal(t, 2, failed.CommandIndex)

	var resp simulateResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.Contains(t, resp.Error, "command 2")

	report := resp.Data
	assert.False(t, report.Success)
	require.Len(t, report.Outcomes, 3)
	assert.True(t, report.Outcomes[0].Success)
	assert.False(t, report.Outcomes[1].Success)
	assert.NotEmpty(t, report.Outcomes[1].Reason)
	assert.False(t, report.Outcomes[2].Success)
	assert.Equal(t, "500", report.Balances["sender"]["ETH"], "a reverted invocation leaves the ledger as it was")
	assert.Equal(t, "0", report.Balances["router"]["WETH"])
}

func TestSimulateLogFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "router.log")
	_, errOut, err := execute(t, "simulate", filepath.Join("testdata", "wrap_swap.yaml"), "--log-file", logPath, "-v")
	require.NoError(t, err)
	assert.Contains(t, errOut, "dispatch")

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"invocation complete"`)
	assert.Contains(t, string(data), `"command":"V3_SWAP_EXACT_IN"`)
}

func TestSimulateInvalidScenario(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "missing sender",
			body: "params:\n  router: \"0x3fC91A3afd70395Cd496C647d5a6CC9D4B2b7FAD\"\n",
			want: "sender is required",
		},
		{
			name: "bad params",
			body: "params:\n  router: nope\nsender: \"0x00000000000000000000000000000000000000aa\"\n",
			want: "not an address",
		},
		{
			name: "unknown command",
			body: revertingScenario + "  - command: MINT\n    args: []\n",
			want: "invalid command type",
		},
		{
			name: "forward reference",
			body: revertingScenario + "  - command: SWEEP\n    args: [WETH, $sender, $out(4)]\n",
			want: "step 4 has no value",
		},
		{
			name: "pairs without factory",
			body: revertingScenario + "v2_pairs:\n  - tokens: [WETH, \"0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48\"]\n    reserves: [\"1\", \"1\"]\n",
			want: "v2_pairs need params.v2_factory",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, "simulate", writeScenario(t, tt.body))
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestBuilderArguments(t *testing.T) {
	sc, err := ParseScenario([]byte(revertingScenario))
	require.NoError(t, err)
	b, err := newBuilder(sc)
	require.NoError(t, err)

	t.Run("v3 path", func(t *testing.T) {
		schema, _ := router.V3SwapExactIn.Arguments()
		v, err := b.arg("$v3path(WETH,500,0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48)", schema[3].Type, nil)
		require.NoError(t, err)
		path := v.([]byte)
		require.Len(t, path, 43)
		assert.Equal(t, testWETH.Bytes(), path[:20])
		assert.Equal(t, []byte{0x00, 0x01, 0xf4}, path[20:23])
	})

	t.Run("balance placeholder", func(t *testing.T) {
		schema, _ := router.Sweep.Arguments()
		v, err := b.arg("$balance(WETH)", schema[2].Type, nil)
		require.NoError(t, err)
		bal, ok := v.(*router.BalanceValue)
		require.True(t, ok)
		assert.Equal(t, testWETH, bal.Token())
	})

	t.Run("hex amount", func(t *testing.T) {
		schema, _ := router.Sweep.Arguments()
		v, err := b.arg("0x10", schema[2].Type, nil)
		require.NoError(t, err)
		assert.Equal(t, 0, v.(*big.Int).Cmp(big.NewInt(16)))
	})

	t.Run("amount list", func(t *testing.T) {
		schema, _ := router.Permit2TransferFromBatch.Arguments()
		v, err := b.arg([]any{1, "2"}, schema[2].Type, nil)
		require.NoError(t, err)
		assert.Len(t, v.([]*big.Int), 2)

		_, err = b.arg("1", schema[2].Type, nil)
		require.Error(t, err)
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := b.address("USDT")
		require.Error(t, err)
	})
}
