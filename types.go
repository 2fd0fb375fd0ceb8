package safeq

import (
	"math/big"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/goccy/go-json"
	"github.com/iov-one/safeq/errors"
)

// Operation is the kind of call a Safe performs when executing a transaction.
type Operation uint8

const (
	OpCall         Operation = 0
	OpDelegateCall Operation = 1
)

// Validate returns an error if this is not a known operation.
func (op Operation) Validate() error {
	switch op {
	case OpCall, OpDelegateCall:
		return nil
	}
	return errors.Wrapf(errors.ErrInput, "unknown operation %d", op)
}

// SafeTx is the payload a Safe executes. Its EIP-712 hash is the identity of
// a transaction and the message owners sign.
type SafeTx struct {
	To             common.Address `json:"to"`
	Value          *big.Int       `json:"value"`
	Data           hexutil.Bytes  `json:"data"`
	Operation      Operation      `json:"operation"`
	SafeTxGas      *big.Int       `json:"safeTxGas"`
	BaseGas        *big.Int       `json:"baseGas"`
	GasPrice       *big.Int       `json:"gasPrice"`
	GasToken       common.Address `json:"gasToken"`
	RefundReceiver common.Address `json:"refundReceiver"`
	Nonce          uint64         `json:"nonce"`
}

// Validate returns an error if any of the amounts is negative or the
// operation is unknown. Nil amounts are zero.
func (tx SafeTx) Validate() error {
	var errs error
	errs = errors.AppendField(errs, "Operation", tx.Operation.Validate())
	for name, v := range map[string]*big.Int{
		"Value":     tx.Value,
		"SafeTxGas": tx.SafeTxGas,
		"BaseGas":   tx.BaseGas,
		"GasPrice":  tx.GasPrice,
	} {
		if v != nil && v.Sign() < 0 {
			errs = errors.AppendField(errs, name, errors.ErrInput)
		}
	}
	return errs
}

// Copy returns a deep copy of this payload.
func (tx SafeTx) Copy() SafeTx {
	tx.Value = copyBig(tx.Value)
	tx.SafeTxGas = copyBig(tx.SafeTxGas)
	tx.BaseGas = copyBig(tx.BaseGas)
	tx.GasPrice = copyBig(tx.GasPrice)
	tx.Data = common.CopyBytes(tx.Data)
	return tx
}

// BigOrZero returns given value or zero if it is nil.
func BigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func copyBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}

// Confirmation is a signature of a single owner over a transaction identity.
type Confirmation struct {
	Owner       common.Address `json:"owner"`
	Signature   hexutil.Bytes  `json:"signature"`
	SubmittedAt UnixTime       `json:"submittedAt"`
}

// Transaction is a single entry of the Safe queue.
type Transaction struct {
	// ID is the SafeTx hash. Two transactions with the same ID are the
	// same confirmation target.
	ID   common.Hash    `json:"id"`
	Safe common.Address `json:"safe"`
	Tx   SafeTx         `json:"tx"`
	// Kind is only carried for presentation.
	Kind                  TxKind         `json:"-"`
	Status                Status         `json:"status"`
	ConfirmationsRequired int            `json:"confirmationsRequired"`
	Confirmations         []Confirmation `json:"confirmations"`
	SubmittedAt           UnixTime       `json:"submittedAt"`
	Proposer              common.Address `json:"proposer"`
	ExecutedTxHash        common.Hash    `json:"executedTxHash,omitempty"`
}

var _ Persistent = (*Transaction)(nil)

// Nonce returns the nonce of the payload.
func (t *Transaction) Nonce() uint64 {
	return t.Tx.Nonce
}

// ConfirmationsSubmitted returns the number of distinct owners that signed
// this transaction.
func (t *Transaction) ConfirmationsSubmitted() int {
	return t.signers().Cardinality()
}

// HasConfirmed returns true if given owner already signed this transaction.
func (t *Transaction) HasConfirmed(owner common.Address) bool {
	for _, c := range t.Confirmations {
		if c.Owner == owner {
			return true
		}
	}
	return false
}

// IsFullyConfirmed returns true if the threshold is met.
func (t *Transaction) IsFullyConfirmed() bool {
	return t.ConfirmationsSubmitted() >= t.ConfirmationsRequired
}

func (t *Transaction) signers() mapset.Set[common.Address] {
	s := mapset.NewThreadUnsafeSet[common.Address]()
	for _, c := range t.Confirmations {
		s.Add(c.Owner)
	}
	return s
}

// Validate returns an error if this transaction cannot be stored.
func (t *Transaction) Validate() error {
	var errs error
	if t.ID == (common.Hash{}) {
		errs = errors.AppendField(errs, "ID", errors.ErrEmpty)
	}
	if t.ConfirmationsRequired < 1 {
		errs = errors.AppendField(errs, "ConfirmationsRequired", errors.ErrInput)
	}
	errs = errors.AppendField(errs, "Status", t.Status.Validate())
	errs = errors.AppendField(errs, "Tx", t.Tx.Validate())
	errs = errors.AppendField(errs, "SubmittedAt", t.SubmittedAt.Validate())
	if t.signers().Cardinality() != len(t.Confirmations) {
		errs = errors.AppendField(errs, "Confirmations", errors.ErrDuplicate)
	}
	return errs
}

// Copy returns a deep copy of this transaction.
func (t *Transaction) Copy() *Transaction {
	c := *t
	c.Tx = t.Tx.Copy()
	c.Confirmations = make([]Confirmation, len(t.Confirmations))
	for i, conf := range t.Confirmations {
		conf.Signature = common.CopyBytes(conf.Signature)
		c.Confirmations[i] = conf
	}
	return &c
}

// MarshalJSON encodes the transaction together with its kind.
func (t Transaction) MarshalJSON() ([]byte, error) {
	type plain Transaction
	kind, err := MarshalKind(t.Kind)
	if err != nil {
		return nil, err
	}
	return json.Marshal(struct {
		plain
		Kind json.RawMessage `json:"kind,omitempty"`
	}{plain: plain(t), Kind: kind})
}

// UnmarshalJSON decodes the transaction together with its kind.
func (t *Transaction) UnmarshalJSON(raw []byte) error {
	type plain Transaction
	var v struct {
		plain
		Kind json.RawMessage `json:"kind"`
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return err
	}
	*t = Transaction(v.plain)
	kind, err := UnmarshalKind(v.Kind)
	if err != nil {
		return errors.Wrap(err, "kind")
	}
	t.Kind = kind
	return nil
}

// Marshal implements Persistent.
func (t *Transaction) Marshal() ([]byte, error) {
	return json.Marshal(t)
}

// Unmarshal implements Persistent.
func (t *Transaction) Unmarshal(raw []byte) error {
	return json.Unmarshal(raw, t)
}

// Account is the state of a Safe as read from the chain.
type Account struct {
	Address common.Address `json:"address"`
	ChainID uint64         `json:"chainId"`
	// Nonce is the next nonce the Safe contract accepts. It is only ever
	// read from the chain.
	Nonce     uint64           `json:"nonce"`
	Owners    []common.Address `json:"owners"`
	Threshold int              `json:"threshold"`
}

var _ Persistent = (*Account)(nil)

// Validate returns an error if the owners and the threshold do not describe
// a usable Safe.
func (a *Account) Validate() error {
	var errs error
	if a.Address == (common.Address{}) {
		errs = errors.AppendField(errs, "Address", errors.ErrEmpty)
	}
	if a.ChainID == 0 {
		errs = errors.AppendField(errs, "ChainID", errors.ErrEmpty)
	}
	owners := mapset.NewThreadUnsafeSet[common.Address](a.Owners...)
	switch {
	case len(a.Owners) == 0:
		errs = errors.AppendField(errs, "Owners", errors.ErrEmpty)
	case owners.Cardinality() != len(a.Owners):
		errs = errors.AppendField(errs, "Owners", errors.ErrDuplicate)
	}
	if a.Threshold < 1 || a.Threshold > len(a.Owners) {
		errs = errors.Append(errs, errors.Field("Threshold", errors.ErrInput,
			"must be between 1 and %d", len(a.Owners)))
	}
	return errs
}

// IsOwner returns true if given address is one of the owners.
func (a *Account) IsOwner(addr common.Address) bool {
	for _, o := range a.Owners {
		if o == addr {
			return true
		}
	}
	return false
}

// Copy returns a deep copy of this account.
func (a *Account) Copy() *Account {
	c := *a
	c.Owners = append([]common.Address(nil), a.Owners...)
	return &c
}

// Marshal implements Persistent.
func (a *Account) Marshal() ([]byte, error) {
	return json.Marshal(a)
}

// Unmarshal implements Persistent.
func (a *Account) Unmarshal(raw []byte) error {
	return json.Unmarshal(raw, a)
}
