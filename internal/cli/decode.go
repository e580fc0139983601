package cli

import (
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/branched-services/go-router"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

// Arg is one decoded argument.
type Arg struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// DecodedInstruction is the readable form of one instruction.
type DecodedInstruction struct {
	Index       int                  `json:"index"`
	Code        string               `json:"code"`
	Command     string               `json:"command"`
	AllowRevert bool                 `json:"allow_revert"`
	Args        []Arg                `json:"args,omitempty"`
	Nested      []DecodedInstruction `json:"nested,omitempty"`
	Error       string               `json:"error,omitempty"`
}

// DecodedStream is a decoded command stream.
type DecodedStream []DecodedInstruction

// WriteText renders one instruction per line, sub-plans indented.
func (s DecodedStream) WriteText(w io.Writer) {
	writeInstructions(w, s, "")
}

func writeInstructions(w io.Writer, instructions []DecodedInstruction, indent string) {
	for _, ins := range instructions {
		fmt.Fprintf(w, "%s%d  %s %s", indent, ins.Index, ins.Code, ins.Command)
		if ins.AllowRevert {
			fmt.Fprint(w, " (allow revert)")
		}
		for _, a := range ins.Args {
			fmt.Fprintf(w, " %s=%s", a.Name, a.Value)
		}
		if ins.Error != "" {
			fmt.Fprintf(w, " error=%q", ins.Error)
		}
		fmt.Fprintln(w)
		writeInstructions(w, ins.Nested, indent+"    ")
	}
}

// DecodeOptions holds flags for the decode command.
type DecodeOptions struct {
	Commands string
	Inputs   []string
}

// NewDecodeCommand creates the decode command.
func NewDecodeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DecodeOptions{}

	cmd := &cobra.Command{
		Use:   "decode --commands 0x... --input 0x... [--input 0x...]",
		Short: "Decode a command stream and its inputs",
		Long: `Decode a command stream into readable instructions.

Placeholder words are shown as $out(N) and $balance(TOKEN), and the
recipient aliases as $sender and $this. Sub-plans are decoded recursively.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDecode(rootOpts, opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Commands, "commands", "", "hex-encoded command bytes")
	cmd.Flags().StringArrayVar(&opts.Inputs, "input", nil, "hex-encoded input, once per command")
	_ = cmd.MarkFlagRequired("commands")

	return cmd
}

func runDecode(rootOpts *RootOptions, opts *DecodeOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}

	commands, err := hexutil.Decode(opts.Commands)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --commands", err)
	}
	inputs := make([][]byte, len(opts.Inputs))
	for i, s := range opts.Inputs {
		if inputs[i], err = decodeHex(s); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("invalid --input %d", i), err)
		}
	}

	stream, err := decodeStream(commands, inputs)
	if err != nil {
		return WrapExitError(ExitCommandError, "decoding stream", err)
	}
	return formatter.Success(stream)
}

// decodeHex treats an empty flag value as an empty input.
func decodeHex(s string) ([]byte, error) {
	if s == "" {
		return []byte{}, nil
	}
	return hexutil.Decode(s)
}

// decodeStream decodes every instruction. An input that does not match its
// command's schema is reported on the instruction rather than failing the
// whole stream.
func decodeStream(commands []byte, inputs [][]byte) (DecodedStream, error) {
	instructions, err := router.DecodeCommands(commands, inputs)
	if err != nil {
		return nil, err
	}
	out := make(DecodedStream, len(instructions))
	for i, ins := range instructions {
		d := DecodedInstruction{
			Index:       i,
			Code:        fmt.Sprintf("0x%02x", uint8(ins.Type)),
			Command:     ins.Type.String(),
			AllowRevert: ins.AllowRevert,
		}
		if err := decodeArgs(&d, ins); err != nil {
			d.Error = err.Error()
		}
		out[i] = d
	}
	return out, nil
}

func decodeArgs(d *DecodedInstruction, ins router.Instruction) error {
	values, err := router.DecodeInput(ins.Type, ins.Input)
	if err != nil {
		return err
	}
	if ins.Type.IsSubPlan() {
		nested, err := decodeStream(values[0].([]byte), values[1].([][]byte))
		if err != nil {
			return err
		}
		d.Nested = nested
		return nil
	}
	schema, _ := ins.Type.Arguments()
	d.Args = make([]Arg, len(values))
	for i, v := range values {
		d.Args[i] = Arg{Name: schema[i].Name, Value: formatValue(v)}
	}
	return nil
}

// formatValue renders a decoded ABI value, naming placeholders and aliases.
func formatValue(v any) string {
	switch v := v.(type) {
	case *big.Int:
		return formatAmount(v)
	case common.Address:
		return formatAddress(v)
	case bool:
		return fmt.Sprint(v)
	case []byte:
		return hexutil.Encode(v)
	case []common.Address:
		parts := make([]string, len(v))
		for i, a := range v {
			parts[i] = formatAddress(a)
		}
		return "[" + strings.Join(parts, ",") + "]"
	case []*big.Int:
		parts := make([]string, len(v))
		for i, n := range v {
			parts[i] = formatAmount(n)
		}
		return "[" + strings.Join(parts, ",") + "]"
	default:
		return fmt.Sprint(v)
	}
}

func formatAmount(n *big.Int) string {
	if n.Cmp(router.ContractBalance) == 0 {
		return "$contract_balance"
	}
	if n.BitLen() > 8*common.HashLength {
		return n.String()
	}
	word := common.BigToHash(n)
	index := uint16(word[30])<<8 | uint16(word[31])
	if word == router.PassThroughWord(index) {
		return fmt.Sprintf("$out(%d)", index)
	}
	token := common.BytesToAddress(word[12:])
	if word == router.BalanceWord(token) {
		if token == router.ETH {
			return "$balance(ETH)"
		}
		return fmt.Sprintf("$balance(%s)", token.Hex())
	}
	return n.String()
}

func formatAddress(a common.Address) string {
	switch a {
	case router.MsgSender:
		return "$sender"
	case router.AddressThis:
		return "$this"
	default:
		return a.Hex()
	}
}
