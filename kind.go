package safeq

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
	"github.com/iov-one/safeq/errors"
)

// TxKind describes what a transaction does. The coordination never depends on
// it, only on the nonce, the confirmations and the status. It is carried for
// the presentation layer.
//
// The set of kinds is closed. All implementations are declared in this file.
type TxKind interface {
	kindName() string
}

// Transfer moves native currency (zero Token) or an ERC20 token.
type Transfer struct {
	Token     common.Address `json:"token"`
	Recipient common.Address `json:"recipient"`
	Amount    *big.Int       `json:"amount"`
}

// Custom is any contract interaction that is not recognized.
type Custom struct {
	To         common.Address `json:"to"`
	MethodName string         `json:"methodName,omitempty"`
}

// MultiSend bundles several calls into one.
type MultiSend struct {
	Actions int `json:"actions"`
}

// SettingsChange modifies the Safe itself: owners, threshold, modules.
type SettingsChange struct {
	Method string `json:"method,omitempty"`
}

// Cancellation is an empty call of the Safe to itself. Executing it consumes
// the nonce, replacing every other transaction of that nonce.
type Cancellation struct{}

// Creation deploys the Safe.
type Creation struct{}

func (Transfer) kindName() string       { return "TRANSFER" }
func (Custom) kindName() string         { return "CUSTOM" }
func (MultiSend) kindName() string      { return "MULTISEND" }
func (SettingsChange) kindName() string { return "SETTINGS_CHANGE" }
func (Cancellation) kindName() string   { return "CANCELLATION" }
func (Creation) kindName() string       { return "CREATION" }

// KindName returns the wire name of given kind, or an empty string for nil.
func KindName(k TxKind) string {
	if k == nil {
		return ""
	}
	return k.kindName()
}

type kindEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MarshalKind serializes given kind. Nil is serialized as nil.
func MarshalKind(k TxKind) ([]byte, error) {
	if k == nil {
		return nil, nil
	}
	data, err := json.Marshal(k)
	if err != nil {
		return nil, errors.Wrap(err, "kind data")
	}
	return json.Marshal(kindEnvelope{Type: k.kindName(), Data: data})
}

// UnmarshalKind deserializes a kind that was serialized with MarshalKind.
func UnmarshalKind(raw []byte) (TxKind, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var env kindEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}

	var k TxKind
	switch env.Type {
	case "TRANSFER":
		var v Transfer
		if err := decodeKind(env.Data, &v); err != nil {
			return nil, err
		}
		k = v
	case "CUSTOM":
		var v Custom
		if err := decodeKind(env.Data, &v); err != nil {
			return nil, err
		}
		k = v
	case "MULTISEND":
		var v MultiSend
		if err := decodeKind(env.Data, &v); err != nil {
			return nil, err
		}
		k = v
	case "SETTINGS_CHANGE":
		var v SettingsChange
		if err := decodeKind(env.Data, &v); err != nil {
			return nil, err
		}
		k = v
	case "CANCELLATION":
		k = Cancellation{}
	case "CREATION":
		k = Creation{}
	default:
		return nil, errors.Wrapf(errors.ErrType, "unknown transaction kind %q", env.Type)
	}
	return k, nil
}

func decodeKind(raw json.RawMessage, dest interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return errors.Wrap(errors.ErrInput, err.Error())
	}
	return nil
}

var (
	selectorERC20Transfer = common.FromHex("0xa9059cbb")
	selectorMultiSend     = common.FromHex("0x8d80ff0a")
)

// IsCancellation returns true if given payload is a cancellation of the
// nonce for the given Safe.
func IsCancellation(safe common.Address, tx SafeTx) bool {
	return tx.To == safe &&
		BigOrZero(tx.Value).Sign() == 0 &&
		len(tx.Data) == 0 &&
		tx.Operation == OpCall
}

// DetectKind guesses the kind of a payload when the gateway did not provide
// one.
func DetectKind(safe common.Address, tx SafeTx) TxKind {
	switch {
	case IsCancellation(safe, tx):
		return Cancellation{}
	case len(tx.Data) == 0:
		return Transfer{Recipient: tx.To, Amount: BigOrZero(tx.Value)}
	case len(tx.Data) == 4+32+32 && bytes.Equal(tx.Data[:4], selectorERC20Transfer):
		return Transfer{
			Token:     tx.To,
			Recipient: common.BytesToAddress(tx.Data[4:36]),
			Amount:    new(big.Int).SetBytes(tx.Data[36:68]),
		}
	case len(tx.Data) >= 4 && bytes.Equal(tx.Data[:4], selectorMultiSend):
		return MultiSend{}
	case tx.To == safe:
		return SettingsChange{}
	default:
		return Custom{To: tx.To}
	}
}
