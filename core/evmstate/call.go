package evmstate

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/holiman/uint256"
)

// ExitReason classifies how a call completed. A revert is a successful
// return, not an error (spec §7's "EVM reverts are not errors").
type ExitReason int

const (
	ExitSucceed ExitReason = iota
	ExitRevert
	ExitError
)

// CallContext is the message-call envelope passed to the EVM engine
// (spec §4.3's ctx = {caller, to, value, data, gas_limit, access_list}).
type CallContext struct {
	Caller     common.Address
	To         *common.Address // nil for contract creation
	Value      *uint256.Int
	Data       []byte
	GasLimit   uint64
	AccessList types.AccessList
}

// TxResponse is what a call reports back to its caller (spec §4.3).
type TxResponse struct {
	ExitReason ExitReason
	Output     []byte
	UsedGas    uint64
	Logs       []Log
}

// ExecutionResult is what an Executor reports after running a call: the
// outward response plus the set of staged account Changes that Apply
// should commit (or discard, for a simulation).
type ExecutionResult struct {
	ExitReason ExitReason
	Output     []byte
	UsedGas    uint64
	Logs       []Log
	Changes    []Apply
}

// Executor is the pluggable opcode-level EVM engine. Opcode semantics
// are an explicit non-goal here (spec §1 assumes "a standard
// byte-accurate EVM engine is available"); Backend only needs to host
// state for whatever Executor a caller wires in.
type Executor interface {
	Execute(ctx CallContext, host *Backend) (ExecutionResult, error)
}

// Observer is the decoupled opcode-level tracer hook (spec §9
// "Execution tracing"): an Executor may invoke it per step when tracing
// is enabled. Backend never calls it directly.
type Observer interface {
	OnStep(pc uint64, opcode byte, gas uint64, stack [][]byte, memory []byte)
}

// Call executes ctx via executor and, if commit is true, applies the
// resulting changes and seals a new root whatever the exit reason. A
// revert/error still charges gas and advances the sender's nonce when
// commit is requested — the Executor is responsible for scoping
// ExecutionResult.Changes to exactly those charged effects in that case
// (spec §8 S3).
func (b *Backend) Call(ctx CallContext, executor Executor, commit bool) (TxResponse, error) {
	result, err := executor.Execute(ctx, b)
	if err != nil {
		return TxResponse{}, err
	}
	if commit {
		if _, err := b.Apply(result.Changes, result.Logs, true); err != nil {
			return TxResponse{}, err
		}
	}
	return TxResponse{
		ExitReason: result.ExitReason,
		Output:     result.Output,
		UsedGas:    result.UsedGas,
		Logs:       result.Logs,
	}, nil
}
