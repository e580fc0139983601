package cli

import (
	"context"
	"fmt"
	"io"
	"math/big"
	"sort"
	"strings"

	"github.com/branched-services/go-router"
	"github.com/branched-services/go-router/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// OutcomeReport is the readable form of one instruction outcome.
type OutcomeReport struct {
	Index       int             `json:"index"`
	Command     string          `json:"command"`
	AllowRevert bool            `json:"allow_revert"`
	Success     bool            `json:"success"`
	Value       string          `json:"value,omitempty"`
	Reason      string          `json:"reason,omitempty"`
	Nested      []OutcomeReport `json:"nested,omitempty"`
}

// SimulationReport is the result of simulating a scenario.
type SimulationReport struct {
	Session  string                       `json:"session,omitempty"`
	Commands string                       `json:"commands"`
	Inputs   []string                     `json:"inputs"`
	Success  bool                         `json:"success"`
	Refund   string                       `json:"refund,omitempty"`
	Outcomes []OutcomeReport              `json:"outcomes,omitempty"`
	Balances map[string]map[string]string `json:"balances"`
	Root     string                       `json:"root"`
}

// WriteText renders outcomes followed by final balances.
func (r *SimulationReport) WriteText(w io.Writer) {
	fmt.Fprintf(w, "commands %s\n", r.Commands)
	if r.Session != "" {
		fmt.Fprintf(w, "session  %s\n", r.Session)
	}
	writeOutcomes(w, r.Outcomes, "")
	if r.Success {
		fmt.Fprintf(w, "refund   %s\n", r.Refund)
	}

	owners := make([]string, 0, len(r.Balances))
	for owner := range r.Balances {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	for _, owner := range owners {
		tokens := make([]string, 0, len(r.Balances[owner]))
		for token := range r.Balances[owner] {
			tokens = append(tokens, token)
		}
		sort.Strings(tokens)
		parts := make([]string, len(tokens))
		for i, token := range tokens {
			parts[i] = token + "=" + r.Balances[owner][token]
		}
		fmt.Fprintf(w, "balance  %s %s\n", owner, strings.Join(parts, " "))
	}
	fmt.Fprintf(w, "root     %s\n", r.Root)
}

func writeOutcomes(w io.Writer, outcomes []OutcomeReport, indent string) {
	for _, o := range outcomes {
		status := "ok"
		if !o.Success {
			status = "reverted"
		}
		fmt.Fprintf(w, "%s%d  %s %s", indent, o.Index, o.Command, status)
		if o.Value != "" {
			fmt.Fprintf(w, " value=%s", o.Value)
		}
		if o.Reason != "" {
			fmt.Fprintf(w, " reason=%q", o.Reason)
		}
		fmt.Fprintln(w)
		writeOutcomes(w, o.Nested, indent+"    ")
	}
}

// NewSimulateCommand creates the simulate command.
func NewSimulateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "simulate <scenario.yaml>",
		Short: "Plan and execute a scenario against a simulated ledger",
		Long: `Seed a ledger from a scenario file, plan its steps into a command
stream and execute it through the router.

The command exits with status 1 when the invocation reverts and prints the
outcomes recorded up to the failure.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			sc, err := LoadScenario(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "loading scenario", err)
			}
			logger, closeLog := newLogger(rootOpts, cmd.ErrOrStderr())
			defer closeLog()

			formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
			report, err := Simulate(cmd.Context(), sc, logger)
			if report == nil {
				return WrapExitError(ExitCommandError, "simulating scenario", err)
			}
			if err != nil {
				if ferr := formatter.Failure(report, err); ferr != nil {
					return ferr
				}
				return WrapExitError(ExitFailure, "invocation reverted", err)
			}
			return formatter.Success(report)
		},
	}
}

// Simulate seeds the scenario's ledger and executes its steps. A non-nil
// report with a non-nil error means the invocation reverted and the ledger
// is unchanged; a nil report means the scenario could not be run.
func Simulate(ctx context.Context, sc *Scenario, logger *zap.Logger) (*SimulationReport, error) {
	b, err := newBuilder(sc)
	if err != nil {
		return nil, err
	}
	sender, err := b.address(sc.Sender)
	if err != nil {
		return nil, fmt.Errorf("%w: sender: %v", ErrInvalidScenario, err)
	}
	value, err := optionalAmount(sc.Value)
	if err != nil {
		return nil, fmt.Errorf("%w: value: %v", ErrInvalidScenario, err)
	}
	var deadline *big.Int
	if sc.Deadline != "" {
		if deadline, err = amount(sc.Deadline); err != nil {
			return nil, fmt.Errorf("%w: deadline: %v", ErrInvalidScenario, err)
		}
	}

	st, err := b.seed(sc)
	if err != nil {
		return nil, err
	}
	planner, err := b.plan(sc.Steps)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScenario, err)
	}
	plan, err := planner.Plan()
	if err != nil {
		return nil, err
	}

	r := router.New(sc.Params.RouterAddress(), append(sc.Params.Options(), router.WithLogger(logger))...)
	res, execErr := r.Execute(ctx, st, router.Invocation{
		Sender:   sender,
		Value:    value,
		Commands: plan.Commands,
		Inputs:   plan.Inputs,
		Deadline: deadline,
	})

	report := &SimulationReport{
		Commands: hexutil.Encode(plan.Commands),
		Inputs:   make([]string, len(plan.Inputs)),
		Success:  execErr == nil,
		Balances: b.balances(st, sc, r.Address(), sender),
		Root:     st.Root().Hex(),
	}
	for i, in := range plan.Inputs {
		report.Inputs[i] = hexutil.Encode(in)
	}
	if res != nil {
		report.Session = res.Session.String()
		report.Outcomes = outcomeReports(res.Outcomes)
		if execErr == nil {
			report.Refund = res.Refund.String()
		}
	}
	return report, execErr
}

func outcomeReports(outcomes []router.Outcome) []OutcomeReport {
	if len(outcomes) == 0 {
		return nil
	}
	out := make([]OutcomeReport, len(outcomes))
	for i, o := range outcomes {
		rep := OutcomeReport{
			Index:       o.Index,
			Command:     o.Command.String(),
			AllowRevert: o.AllowRevert,
			Success:     o.Success,
			Nested:      outcomeReports(o.Nested),
		}
		if v := o.Value(); v != nil {
			rep.Value = v.String()
		}
		if !o.Success {
			rep.Reason = router.DecodeRevertReason(o.Reason)
		}
		out[i] = rep
	}
	return out
}

// balances lists every named token and native currency for the sender, the
// router and every scenario account.
func (b *builder) balances(st *ledger.State, sc *Scenario, routerAddr, sender common.Address) map[string]map[string]string {
	owners := map[string]common.Address{"router": routerAddr, "sender": sender}
	for _, acct := range sc.Accounts {
		label := acct.Name
		if label == "" {
			label = acct.Address
		}
		if addr, err := b.address(acct.Address); err == nil && addr != sender {
			owners[label] = addr
		}
	}

	out := make(map[string]map[string]string, len(owners))
	for label, owner := range owners {
		row := map[string]string{"ETH": st.NativeBalance(owner).String()}
		for name := range sc.Tokens {
			row[name] = st.TokenBalance(b.names[name], owner).String()
		}
		out[label] = row
	}
	return out
}
