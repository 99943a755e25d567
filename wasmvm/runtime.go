// Package wasmvm executes deployed contract bytecode inside a
// wasmer-go sandbox. It implements native.ContractRuntime: the executor
// wires a *Runtime into native.Dispatcher so contract_deploy and
// contract_call messages run through it.
package wasmvm

import (
	"crypto/sha256"
	"fmt"

	"github.com/wasmerio/wasmer-go/wasmer"

	"dytallix/core/types"
	"dytallix/gas"
	"dytallix/native"
)

// DefaultMaxCallDepth bounds how many nested contract-to-contract calls a
// single top-level Call or Deploy may make through the call_contract host
// import, per spec.md §4.6.
const DefaultMaxCallDepth = 8

// entryPoint is the WASM export every deployed contract must provide;
// constructor and call arguments both arrive through get_args, so deploy
// and call share one entry point.
const entryPoint = "_start"

// Runtime is a single wasmer engine shared across every contract
// execution; wasmer engines are safe for concurrent module compilation.
type Runtime struct {
	engine       *wasmer.Engine
	maxCallDepth int
}

// NewRuntime constructs a Runtime with DefaultMaxCallDepth.
func NewRuntime() *Runtime {
	return &Runtime{engine: wasmer.NewEngine(), maxCallDepth: DefaultMaxCallDepth}
}

// WithMaxCallDepth overrides the default call-depth bound.
func (rt *Runtime) WithMaxCallDepth(depth int) *Runtime {
	rt.maxCallDepth = depth
	return rt
}

func contractAddress(caller [20]byte, code []byte) [20]byte {
	var addr [20]byte
	sum := sha256.Sum256(append(append([]byte{}, caller[:]...), code...))
	copy(addr[:], sum[:20])
	return addr
}

// Deploy installs code under a deterministic address derived from the
// caller and the code itself, then runs the contract's entry point once
// (the constructor) with args available via get_args.
func (rt *Runtime) Deploy(ledger native.ContractLedger, caller [20]byte, code, args []byte, meter *gas.Meter) ([20]byte, []types.Event, error) {
	contract := contractAddress(caller, code)
	if len(code) == 0 {
		return contract, nil, fmt.Errorf("wasmvm: empty contract code")
	}
	existing, err := ledger.GetContractCode(contract)
	if err != nil {
		return contract, nil, fmt.Errorf("wasmvm: check existing contract: %w", err)
	}
	if len(existing) != 0 {
		return contract, nil, fmt.Errorf("wasmvm: contract already deployed at this address")
	}
	if err := ledger.SetContractCode(contract, code); err != nil {
		return contract, nil, fmt.Errorf("wasmvm: store contract code: %w", err)
	}
	_, events, err := rt.run(ledger, caller, contract, code, args, meter, 0)
	return contract, events, err
}

// Call loads the code deployed at contract and runs its entry point with
// args, returning whatever return_value the contract reported.
func (rt *Runtime) Call(ledger native.ContractLedger, caller, contract [20]byte, args []byte, meter *gas.Meter) ([]byte, []types.Event, error) {
	return rt.callAtDepth(ledger, caller, contract, args, meter, 0)
}

func (rt *Runtime) callAtDepth(ledger native.ContractLedger, caller, contract [20]byte, args []byte, meter *gas.Meter, depth int) ([]byte, []types.Event, error) {
	if depth > rt.maxCallDepth {
		return nil, nil, fmt.Errorf("wasmvm: call depth exceeds %d", rt.maxCallDepth)
	}
	code, err := ledger.GetContractCode(contract)
	if err != nil {
		return nil, nil, fmt.Errorf("wasmvm: load contract code: %w", err)
	}
	if len(code) == 0 {
		return nil, nil, fmt.Errorf("wasmvm: no contract deployed at this address")
	}
	ret, events, err := rt.run(ledger, caller, contract, code, args, meter, depth)
	return ret, events, err
}

// run compiles and instantiates code, invokes its entry point, and
// returns whatever the contract passed to return_value plus any emitted
// events. The consume_gas host import charges meter directly (the other
// imports do not charge it), so a trap from gas.ErrOutOfGas propagates as
// the instance call's error.
func (rt *Runtime) run(ledger native.ContractLedger, caller, contract [20]byte, code, args []byte, meter *gas.Meter, depth int) ([]byte, []types.Event, error) {
	store := wasmer.NewStore(rt.engine)
	mod, err := wasmer.NewModule(store, code)
	if err != nil {
		return nil, nil, fmt.Errorf("wasmvm: compile module: %w", err)
	}

	hctx := &hostContext{
		runtime:  rt,
		ledger:   ledger,
		caller:   caller,
		contract: contract,
		args:     args,
		meter:    meter,
		depth:    depth,
	}

	imports := registerHostImports(store, hctx)
	instance, err := wasmer.NewInstance(mod, imports)
	if err != nil {
		return nil, nil, fmt.Errorf("wasmvm: instantiate module: %w", err)
	}
	defer instance.Close()

	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return nil, nil, fmt.Errorf("wasmvm: module does not export linear memory: %w", err)
	}
	hctx.mem = mem

	start, err := instance.Exports.GetFunction(entryPoint)
	if err != nil {
		return nil, nil, fmt.Errorf("wasmvm: module does not export %s: %w", entryPoint, err)
	}
	if _, err := start(); err != nil {
		return nil, hctx.events, fmt.Errorf("wasmvm: execution trapped: %w", err)
	}
	return hctx.returnData, hctx.events, nil
}
