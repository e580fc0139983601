package router

// Command represents a single entry in the plan: either a call or a nested
// sub-plan.
type Command struct {
	call        *Call
	sub         *Planner
	returning   bool
	allowRevert bool
}

// Call returns the underlying call, or nil for a sub-plan.
func (c *Command) Call() *Call {
	return c.call
}

// SubPlan returns the nested planner, or nil for a call.
func (c *Command) SubPlan() *Planner {
	return c.sub
}

// Type returns the command type.
func (c *Command) Type() CommandType {
	switch {
	case c.call != nil:
		return c.call.code
	case c.returning:
		return ExecuteSubPlanReturning
	default:
		return ExecuteSubPlan
	}
}

// AllowsRevert reports whether the command may fail without aborting.
func (c *Command) AllowsRevert() bool {
	if c.call != nil {
		return c.call.allowRevert
	}
	return c.allowRevert
}

func (c *Command) producesValue() bool {
	return c.Type().ProducesValue()
}

// Planner builds a command stream.
type Planner struct {
	commands []*Command
	parent   *Planner // For sub-plan validation and cycle detection
}

// NewPlanner creates a new Planner with the given options.
func NewPlanner(opts ...PlannerOption) *Planner {
	p := &Planner{
		commands: make([]*Command, 0, 16),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Add adds a call to the plan and returns its return value (if any).
// Returns nil if the command does not produce a value.
func (p *Planner) Add(call *Call) *ReturnValue {
	cmd := &Command{call: call}
	p.commands = append(p.commands, cmd)

	if !call.HasReturnValue() {
		return nil
	}
	return &ReturnValue{command: cmd}
}

// AddSubPlan adds sub as an EXECUTE_SUB_PLAN instruction. Failures inside sub
// that are allowed to revert stay inside it; any other failure fails the
// sub-plan as a whole, which is then subject to allowRevert.
func (p *Planner) AddSubPlan(sub *Planner, allowRevert bool) error {
	_, err := p.addSubPlan(sub, allowRevert, false)
	return err
}

// AddSubPlanReturning is like AddSubPlan but the instruction outputs the last
// value produced inside sub.
func (p *Planner) AddSubPlanReturning(sub *Planner, allowRevert bool) (*ReturnValue, error) {
	return p.addSubPlan(sub, allowRevert, true)
}

func (p *Planner) addSubPlan(sub *Planner, allowRevert, returning bool) (*ReturnValue, error) {
	if sub == nil {
		return nil, ErrInvalidSubplan
	}
	if err := p.checkCycle(sub); err != nil {
		return nil, err
	}
	if p.parent != nil {
		return nil, ErrNestedSubPlan
	}
	produces := false
	for _, cmd := range sub.commands {
		if cmd.sub != nil {
			return nil, ErrNestedSubPlan
		}
		produces = produces || cmd.producesValue()
	}
	if returning && !produces {
		return nil, ErrNoReturnValue
	}

	sub.parent = p

	cmd := &Command{sub: sub, returning: returning, allowRevert: allowRevert}
	p.commands = append(p.commands, cmd)

	if !returning {
		return nil, nil
	}
	return &ReturnValue{command: cmd}, nil
}

// Len returns the number of commands in the planner.
func (p *Planner) Len() int {
	return len(p.commands)
}

// CommandAt returns the command at the given index.
func (p *Planner) CommandAt(i int) *Command {
	if i < 0 || i >= len(p.commands) {
		return nil
	}
	return p.commands[i]
}

// ForEachCommand iterates over all commands in the planner.
// The callback receives the index and command. Return false to stop iteration.
func (p *Planner) ForEachCommand(fn func(int, *Command) bool) {
	for i, cmd := range p.commands {
		if !fn(i, cmd) {
			return
		}
	}
}

// Plan compiles all commands into a command stream and its inputs.
func (p *Planner) Plan(opts ...PlanOption) (*CompiledPlan, error) {
	cfg := defaultPlanConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if len(p.commands) > cfg.maxCommands {
		return nil, ErrTooManyCommands
	}

	positions := make(map[*Command]int, len(p.commands))
	commands := make([]byte, len(p.commands))
	inputs := make([][]byte, len(p.commands))

	for i, cmd := range p.commands {
		positions[cmd] = i
		commands[i] = CommandByte(cmd.Type(), cmd.AllowsRevert())

		var (
			input []byte
			err   error
		)
		if cmd.sub != nil {
			input, err = p.encodeSubPlan(cmd, opts)
		} else {
			input, err = p.encodeCall(i, cmd, positions)
		}
		if err != nil {
			return nil, &PlanError{CommandIndex: i, Command: cmd.Type(), Err: err}
		}
		inputs[i] = input
	}

	return &CompiledPlan{Commands: commands, Inputs: inputs}, nil
}

func (p *Planner) encodeSubPlan(cmd *Command, opts []PlanOption) ([]byte, error) {
	compiled, err := cmd.sub.Plan(opts...)
	if err != nil {
		return nil, err
	}
	return EncodeInput(cmd.Type(), compiled.Commands, compiled.Inputs)
}

// encodeCall packs a call's arguments, turning return values and balances
// into placeholder words.
func (p *Planner) encodeCall(i int, cmd *Command, positions map[*Command]int) ([]byte, error) {
	args := cmd.call.Args()
	values := make([]any, len(args))
	for j, arg := range args {
		switch v := arg.(type) {
		case *LiteralValue:
			values[j] = v.value
		case *BalanceValue:
			values[j] = v.Word().Big()
		case *ReturnValue:
			k, ok := positions[v.command]
			if !ok || k >= i {
				return nil, &ArgumentError{Command: cmd.Type(), Index: j, Err: ErrReturnValueNotVisible}
			}
			values[j] = PassThroughWord(uint16(k)).Big()
		default:
			return nil, &EncodingError{Value: arg, Err: ErrReturnValueNotVisible}
		}
	}
	return EncodeInput(cmd.Type(), values...)
}

// checkCycle checks for cyclic planner references.
func (p *Planner) checkCycle(sub *Planner) error {
	visited := make(map[*Planner]bool)
	current := p

	for current != nil {
		if visited[current] {
			return ErrCyclicPlanner
		}
		visited[current] = true
		if current == sub {
			return ErrCyclicPlanner
		}
		current = current.parent
	}

	return nil
}

// CompiledPlan contains the output of Plan(), ready for Router.Execute.
type CompiledPlan struct {
	Commands []byte   // One command byte per instruction
	Inputs   [][]byte // ABI-encoded input per instruction
}

// Len returns the number of instructions.
func (cp *CompiledPlan) Len() int {
	return len(cp.Commands)
}

// Instructions decodes the plan.
func (cp *CompiledPlan) Instructions() ([]Instruction, error) {
	return DecodeCommands(cp.Commands, cp.Inputs)
}
