package batch

import (
	"encoding/binary"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
	"github.com/iov-one/safeq/x/multisig"
	"github.com/iov-one/safeq/x/sigs"
)

const safeABIJSON = `[
{"type":"function","name":"execTransaction","stateMutability":"payable","inputs":[
	{"name":"to","type":"address"},
	{"name":"value","type":"uint256"},
	{"name":"data","type":"bytes"},
	{"name":"operation","type":"uint8"},
	{"name":"safeTxGas","type":"uint256"},
	{"name":"baseGas","type":"uint256"},
	{"name":"gasPrice","type":"uint256"},
	{"name":"gasToken","type":"address"},
	{"name":"refundReceiver","type":"address"},
	{"name":"signatures","type":"bytes"}],
	"outputs":[{"name":"success","type":"bool"}]},
{"type":"function","name":"multiSend","stateMutability":"payable","inputs":[
	{"name":"transactions","type":"bytes"}],"outputs":[]}
]`

var safeABI = mustParseABI(safeABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(err)
	}
	return parsed
}

// ExecTransaction returns the calldata of the Safe execTransaction call
// executing given transaction with given packed signatures.
func ExecTransaction(t *safeq.Transaction, signatures []byte) ([]byte, error) {
	tx := t.Tx
	data, err := safeABI.Pack("execTransaction",
		tx.To,
		safeq.BigOrZero(tx.Value),
		[]byte(tx.Data),
		uint8(tx.Operation),
		safeq.BigOrZero(tx.SafeTxGas),
		safeq.BigOrZero(tx.BaseGas),
		safeq.BigOrZero(tx.GasPrice),
		tx.GasToken,
		tx.RefundReceiver,
		signatures,
	)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	return data, nil
}

// Signatures returns the packed signatures of the current owners that
// confirmed the transaction. If lastSigner is not zero, a pre-validated
// signature of that owner is added: the owner sending the execution approves
// it by being the sender.
//
// ErrState is returned if the signatures do not reach the threshold.
func Signatures(a *safeq.Account, t *safeq.Transaction, lastSigner common.Address) ([]byte, error) {
	confs := multisig.OwnerConfirmations(a, t)
	if lastSigner != (common.Address{}) && !t.HasConfirmed(lastSigner) {
		if !a.IsOwner(lastSigner) {
			return nil, errors.Wrapf(errors.ErrValidation, "%s is not an owner", lastSigner.Hex())
		}
		confs = append(confs, safeq.Confirmation{
			Owner:     lastSigner,
			Signature: sigs.Prevalidated(lastSigner),
		})
	}
	if len(confs) < a.Threshold {
		return nil, errors.Wrapf(errors.ErrState, "%d of %d confirmations", len(confs), a.Threshold)
	}
	return sigs.Pack(confs), nil
}

// EncodeMultiSend returns the calldata of a MultiSendCallOnly call executing
// all given transactions in order. Every entry is an execTransaction call on
// the Safe, carrying the signatures of its owners.
func EncodeMultiSend(a *safeq.Account, txs []*safeq.Transaction) ([]byte, error) {
	var packed []byte
	for i, t := range txs {
		if i > 0 && t.Nonce() != txs[i-1].Nonce()+1 {
			return nil, errors.Wrapf(errors.ErrInput, "nonce %d does not follow %d", t.Nonce(), txs[i-1].Nonce())
		}
		signatures, err := Signatures(a, t, common.Address{})
		if err != nil {
			return nil, errors.Wrapf(err, "transaction %s", t.ID.Hex())
		}
		call, err := ExecTransaction(t, signatures)
		if err != nil {
			return nil, err
		}
		packed = append(packed, multiSendEntry(a.Address, call)...)
	}
	data, err := safeABI.Pack("multiSend", packed)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	return data, nil
}

// multiSendEntry encodes a single zero value call: operation (1 byte), to
// (20 bytes), value (32 bytes), data length (32 bytes) and data.
func multiSendEntry(to common.Address, data []byte) []byte {
	entry := make([]byte, 0, 1+20+32+32+len(data))
	entry = append(entry, byte(safeq.OpCall))
	entry = append(entry, to[:]...)
	entry = append(entry, make([]byte, 32)...)
	var size [32]byte
	binary.BigEndian.PutUint64(size[24:], uint64(len(data)))
	entry = append(entry, size[:]...)
	return append(entry, data...)
}

// DecodeMultiSend returns the calls encoded by EncodeMultiSend.
func DecodeMultiSend(data []byte) ([][]byte, error) {
	method, err := safeABI.MethodById(data)
	if err != nil || method.Name != "multiSend" {
		return nil, errors.Wrap(errors.ErrInput, "not a multiSend call")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	packed := args[0].([]byte)

	var calls [][]byte
	for len(packed) > 0 {
		if len(packed) < 85 {
			return nil, errors.Wrap(errors.ErrInput, "truncated entry")
		}
		size := new(big.Int).SetBytes(packed[53:85])
		if !size.IsUint64() || uint64(len(packed)-85) < size.Uint64() {
			return nil, errors.Wrap(errors.ErrInput, "truncated data")
		}
		end := 85 + int(size.Uint64())
		calls = append(calls, packed[85:end])
		packed = packed[end:]
	}
	return calls, nil
}
