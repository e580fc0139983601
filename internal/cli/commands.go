package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/branched-services/go-router"
	"github.com/spf13/cobra"
)

// CommandInfo describes one command type.
type CommandInfo struct {
	Code          string   `json:"code"`
	Name          string   `json:"name"`
	Arguments     []string `json:"arguments"`
	Scanned       bool     `json:"scanned"`
	ProducesValue bool     `json:"produces_value"`
}

// CommandTable lists every command type in code order.
type CommandTable []CommandInfo

// WriteText renders one command per line.
func (t CommandTable) WriteText(w io.Writer) {
	for _, c := range t {
		var flags []string
		if c.Scanned {
			flags = append(flags, "placeholders")
		}
		if c.ProducesValue {
			flags = append(flags, "value")
		}
		fmt.Fprintf(w, "%s  %-28s %s", c.Code, c.Name, strings.Join(c.Arguments, ", "))
		if len(flags) > 0 {
			fmt.Fprintf(w, "  [%s]", strings.Join(flags, " "))
		}
		fmt.Fprintln(w)
	}
}

// NewCommandsCommand creates the commands command.
func NewCommandsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "commands",
		Short:         "List command types and their argument schemas",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			return formatter.Success(commandTable())
		},
	}
}

func commandTable() CommandTable {
	types := router.CommandTypes()
	table := make(CommandTable, 0, len(types))
	for _, t := range types {
		schema, _ := t.Arguments()
		args := make([]string, len(schema))
		for i, a := range schema {
			args[i] = a.Type.String() + " " + a.Name
		}
		table = append(table, CommandInfo{
			Code:          fmt.Sprintf("0x%02x", uint8(t)),
			Name:          t.String(),
			Arguments:     args,
			Scanned:       t.Scanned(),
			ProducesValue: t.ProducesValue(),
		})
	}
	return table
}
