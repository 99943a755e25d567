package wasmvm

import (
	"fmt"

	"github.com/wasmerio/wasmer-go/wasmer"

	"dytallix/core/types"
	"dytallix/gas"
	"dytallix/native"
)

// hostContext is the Go-side state backing one contract execution; every
// host import closes over it.
type hostContext struct {
	runtime  *Runtime
	ledger   native.ContractLedger
	caller   [20]byte
	contract [20]byte
	args     []byte
	meter    *gas.Meter
	depth    int
	mem      *wasmer.Memory

	returnData []byte
	events     []types.Event
}

func (h *hostContext) read(ptr, length int32) ([]byte, error) {
	if ptr < 0 || length < 0 {
		return nil, fmt.Errorf("wasmvm: negative memory offset")
	}
	data := h.mem.Data()
	end := int(ptr) + int(length)
	if end > len(data) {
		return nil, fmt.Errorf("wasmvm: memory read out of bounds")
	}
	out := make([]byte, length)
	copy(out, data[ptr:end])
	return out, nil
}

func (h *hostContext) write(ptr int32, value []byte) error {
	if ptr < 0 {
		return fmt.Errorf("wasmvm: negative memory offset")
	}
	data := h.mem.Data()
	end := int(ptr) + len(value)
	if end > len(data) {
		return fmt.Errorf("wasmvm: memory write out of bounds")
	}
	copy(data[ptr:end], value)
	return nil
}

func i32Type(params, results int) *wasmer.FunctionType {
	p := make([]wasmer.ValueKind, params)
	r := make([]wasmer.ValueKind, results)
	for i := range p {
		p[i] = wasmer.ValueKind(wasmer.I32)
	}
	for i := range r {
		r[i] = wasmer.ValueKind(wasmer.I32)
	}
	return wasmer.NewFunctionType(wasmer.NewValueTypes(p...), wasmer.NewValueTypes(r...))
}

// registerHostImports builds the "env" import namespace every contract
// links against: db_read/db_write for contract storage, get_caller/
// get_args for call context, emit_event/return_value for output, and
// consume_gas/call_contract for metering and composability (spec.md
// §4.6).
func registerHostImports(store *wasmer.Store, h *hostContext) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()

	consumeGas := wasmer.NewFunction(store, i32Type(1, 1), func(args []wasmer.Value) ([]wasmer.Value, error) {
		units := args[0].I32()
		if units < 0 {
			return nil, fmt.Errorf("wasmvm: negative gas units")
		}
		if err := h.meter.Charge(uint64(units) * gas.WASMInstructionCost); err != nil {
			return nil, fmt.Errorf("wasmvm: %w", err)
		}
		return []wasmer.Value{wasmer.NewI32(0)}, nil
	})

	dbRead := wasmer.NewFunction(store, i32Type(4, 1), func(args []wasmer.Value) ([]wasmer.Value, error) {
		keyPtr, keyLen, dstPtr, maxLen := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32()
		key, err := h.read(keyPtr, keyLen)
		if err != nil {
			return nil, err
		}
		val, err := h.ledger.GetContractStorage(h.contract, key)
		if err != nil {
			return nil, fmt.Errorf("wasmvm: db_read: %w", err)
		}
		if int32(len(val)) > maxLen {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		if err := h.write(dstPtr, val); err != nil {
			return nil, err
		}
		return []wasmer.Value{wasmer.NewI32(int32(len(val)))}, nil
	})

	dbWrite := wasmer.NewFunction(store, i32Type(4, 1), func(args []wasmer.Value) ([]wasmer.Value, error) {
		keyPtr, keyLen, valPtr, valLen := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32()
		key, err := h.read(keyPtr, keyLen)
		if err != nil {
			return nil, err
		}
		val, err := h.read(valPtr, valLen)
		if err != nil {
			return nil, err
		}
		if err := h.ledger.SetContractStorage(h.contract, key, val); err != nil {
			return nil, fmt.Errorf("wasmvm: db_write: %w", err)
		}
		return []wasmer.Value{wasmer.NewI32(0)}, nil
	})

	getCaller := wasmer.NewFunction(store, i32Type(1, 1), func(args []wasmer.Value) ([]wasmer.Value, error) {
		dstPtr := args[0].I32()
		if err := h.write(dstPtr, h.caller[:]); err != nil {
			return nil, err
		}
		return []wasmer.Value{wasmer.NewI32(int32(len(h.caller)))}, nil
	})

	getArgs := wasmer.NewFunction(store, i32Type(2, 1), func(args []wasmer.Value) ([]wasmer.Value, error) {
		dstPtr, maxLen := args[0].I32(), args[1].I32()
		if int32(len(h.args)) > maxLen {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		if err := h.write(dstPtr, h.args); err != nil {
			return nil, err
		}
		return []wasmer.Value{wasmer.NewI32(int32(len(h.args)))}, nil
	})

	emitEvent := wasmer.NewFunction(store, i32Type(4, 0), func(args []wasmer.Value) ([]wasmer.Value, error) {
		topicPtr, topicLen, dataPtr, dataLen := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32()
		topic, err := h.read(topicPtr, topicLen)
		if err != nil {
			return nil, err
		}
		data, err := h.read(dataPtr, dataLen)
		if err != nil {
			return nil, err
		}
		h.events = append(h.events, types.Event{
			Type:       string(topic),
			Attributes: map[string]string{"data": fmt.Sprintf("%x", data)},
		})
		return []wasmer.Value{}, nil
	})

	returnValue := wasmer.NewFunction(store, i32Type(2, 0), func(args []wasmer.Value) ([]wasmer.Value, error) {
		ptr, length := args[0].I32(), args[1].I32()
		data, err := h.read(ptr, length)
		if err != nil {
			return nil, err
		}
		h.returnData = data
		return []wasmer.Value{}, nil
	})

	// call_contract(addrPtr, argsPtr, argsLen, dstPtr, maxLen) -> i32(len)|-1
	// re-enters Runtime.Call with depth+1, bounded by maxCallDepth.
	callContract := wasmer.NewFunction(store, i32Type(5, 1), func(args []wasmer.Value) ([]wasmer.Value, error) {
		addrPtr, argsPtr, argsLen, dstPtr, maxLen := args[0].I32(), args[1].I32(), args[2].I32(), args[3].I32(), args[4].I32()
		addrBytes, err := h.read(addrPtr, 20)
		if err != nil {
			return nil, err
		}
		var target [20]byte
		copy(target[:], addrBytes)
		callArgs, err := h.read(argsPtr, argsLen)
		if err != nil {
			return nil, err
		}
		ret, subEvents, err := h.runtime.callAtDepth(h.ledger, h.contract, target, callArgs, h.meter, h.depth+1)
		if err != nil {
			// A sub-call trap (OOG against the shared meter excepted — an
			// exhausted meter is returned as this host function's error and
			// traps the calling instance too) is a failure the outer call
			// observes, not a failure of the outer call itself: return the
			// sentinel rather than erroring this host function.
			if h.meter.Remaining() == 0 {
				return nil, err
			}
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		h.events = append(h.events, subEvents...)
		if int32(len(ret)) > maxLen {
			return []wasmer.Value{wasmer.NewI32(-1)}, nil
		}
		if err := h.write(dstPtr, ret); err != nil {
			return nil, err
		}
		return []wasmer.Value{wasmer.NewI32(int32(len(ret)))}, nil
	})

	imports.Register("env", map[string]wasmer.IntoExtern{
		"consume_gas":   consumeGas,
		"db_read":       dbRead,
		"db_write":      dbWrite,
		"get_caller":    getCaller,
		"get_args":      getArgs,
		"emit_event":    emitEvent,
		"return_value":  returnValue,
		"call_contract": callContract,
	})
	return imports
}
