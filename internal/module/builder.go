package module

// Builder accumulates futures in declaration order. Each method returns the
// new future so optional fields (Value, From, After, ...) can be set before
// Build is called.
//
//	b := module.NewBuilder("Token")
//	token := b.Deploy("Token", "ERC20", module.Lit(ir.String("Ignite")))
//	b.Call("Mint", token.ID(), "mint", module.Account{Index: 0}, module.Lit(ir.Int(100)))
//	b.Results(token.ID())
//	m, err := b.Build()
type Builder struct {
	id      string
	futures []Future
	results []string
}

// NewBuilder starts a module with the given id.
func NewBuilder(id string) *Builder {
	return &Builder{id: id}
}

// ID returns the future id for a local name in this module.
func (b *Builder) ID(name string) string {
	return FutureID(b.id, name)
}

func (b *Builder) meta(name string) Meta {
	return Meta{FutureID: b.ID(name)}
}

// Deploy declares a contract deployment.
func (b *Builder) Deploy(name, contract string, args ...Arg) *DeployContract {
	f := &DeployContract{Meta: b.meta(name), Contract: contract, Args: args}
	b.futures = append(b.futures, f)
	return f
}

// Call declares a state-changing call on the contract produced by contractID.
func (b *Builder) Call(name, contractID, function string, args ...Arg) *CallFunction {
	f := &CallFunction{Meta: b.meta(name), Contract: contractID, Function: function, Args: args}
	b.futures = append(b.futures, f)
	return f
}

// StaticCall declares a read-only call on the contract produced by contractID.
func (b *Builder) StaticCall(name, contractID, function string, args ...Arg) *StaticCall {
	f := &StaticCall{Meta: b.meta(name), Contract: contractID, Function: function, Args: args}
	b.futures = append(b.futures, f)
	return f
}

// ReadEvent declares the extraction of an event argument emitted by the
// transaction of emitterID.
func (b *Builder) ReadEvent(name, emitterID, event, argument string) *ReadEventArgument {
	f := &ReadEventArgument{Meta: b.meta(name), Emitter: emitterID, Event: event, Argument: argument}
	b.futures = append(b.futures, f)
	return f
}

// Send declares a raw transaction.
func (b *Builder) Send(name string, to Arg, data string) *SendData {
	f := &SendData{Meta: b.meta(name), To: to, Data: data}
	b.futures = append(b.futures, f)
	return f
}

// ContractAt declares an existing contract at address.
func (b *Builder) ContractAt(name, contract string, address Arg) *ContractAt {
	f := &ContractAt{Meta: b.meta(name), Contract: contract, Address: address}
	b.futures = append(b.futures, f)
	return f
}

// Add appends a future constructed by the caller.
func (b *Builder) Add(f Future) {
	b.futures = append(b.futures, f)
}

// Results marks futures whose values are reported in the deployment result.
func (b *Builder) Results(ids ...string) {
	b.results = append(b.results, ids...)
}

// Build validates the declared futures; see New.
func (b *Builder) Build() (*Module, error) {
	return New(b.id, b.futures, b.results)
}
