package sigs

import (
	"bytes"
	"crypto/ecdsa"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/iov-one/safeq"
	"github.com/iov-one/safeq/errors"
)

// SignatureLength is the length of an owner signature.
const SignatureLength = 65

var (
	domainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(uint256 chainId,address verifyingContract)"))
	safeTxTypeHash = crypto.Keccak256Hash([]byte(
		"SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas," +
			"uint256 baseGas,uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)"))
	ethSignPrefix = []byte("\x19Ethereum Signed Message:\n32")
)

// DomainSeparator returns the EIP-712 domain of given Safe.
func DomainSeparator(chainID uint64, safe common.Address) common.Hash {
	return crypto.Keccak256Hash(
		domainTypeHash[:],
		word(new(big.Int).SetUint64(chainID)),
		common.LeftPadBytes(safe[:], 32),
	)
}

// SafeTxHash returns the identity of a transaction. It is the message owners
// sign.
func SafeTxHash(chainID uint64, safe common.Address, tx safeq.SafeTx) common.Hash {
	structHash := crypto.Keccak256Hash(
		safeTxTypeHash[:],
		common.LeftPadBytes(tx.To[:], 32),
		word(tx.Value),
		crypto.Keccak256(tx.Data),
		word(big.NewInt(int64(tx.Operation))),
		word(tx.SafeTxGas),
		word(tx.BaseGas),
		word(tx.GasPrice),
		common.LeftPadBytes(tx.GasToken[:], 32),
		common.LeftPadBytes(tx.RefundReceiver[:], 32),
		word(new(big.Int).SetUint64(tx.Nonce)),
	)
	domain := DomainSeparator(chainID, safe)
	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domain[:], structHash[:])
}

// word encodes a non negative number as a 32 byte ABI word. Nil is zero.
func word(v *big.Int) []byte {
	return common.LeftPadBytes(safeq.BigOrZero(v).Bytes(), 32)
}

// Recover returns the address that produced given signature over the
// transaction identity.
func Recover(hash common.Hash, sig []byte) (common.Address, error) {
	if len(sig) != SignatureLength {
		return common.Address{}, errors.Wrapf(errors.ErrValidation,
			"signature must be %d bytes, got %d", SignatureLength, len(sig))
	}

	digest := hash
	normalized := common.CopyBytes(sig)
	switch v := sig[64]; v {
	case 0, 1:
	case 27, 28:
		normalized[64] = v - 27
	case 31, 32:
		normalized[64] = v - 31
		digest = crypto.Keccak256Hash(ethSignPrefix, hash[:])
	default:
		return common.Address{}, errors.Wrapf(errors.ErrValidation, "unsupported signature type %d", v)
	}

	pub, err := crypto.SigToPub(digest[:], normalized)
	if err != nil {
		return common.Address{}, errors.Wrap(errors.ErrValidation, err.Error())
	}
	return crypto.PubkeyToAddress(*pub), nil
}

// Verify returns ErrValidation unless given signature over the transaction
// identity was produced by the signer.
func Verify(hash common.Hash, signer common.Address, sig []byte) error {
	got, err := Recover(hash, sig)
	if err != nil {
		return err
	}
	if got != signer {
		return errors.Wrapf(errors.ErrValidation, "signature of %s, not %s", got.Hex(), signer.Hex())
	}
	return nil
}

// Sign signs the transaction identity with given key. The returned signature
// uses v in {27, 28}.
func Sign(key *ecdsa.PrivateKey, hash common.Hash) ([]byte, error) {
	sig, err := crypto.Sign(hash[:], key)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	sig[64] += 27
	return sig, nil
}

// SignEthMessage signs the transaction identity the way eth_sign does and
// adjusts v to {31, 32} so that the Safe recognizes it.
func SignEthMessage(key *ecdsa.PrivateKey, hash common.Hash) ([]byte, error) {
	digest := crypto.Keccak256Hash(ethSignPrefix, hash[:])
	sig, err := crypto.Sign(digest[:], key)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, err.Error())
	}
	sig[64] += 31
	return sig, nil
}

// Prevalidated returns the signature that the Safe accepts for the owner
// sending the execution itself: r is the owner, s is zero and v is 1.
func Prevalidated(owner common.Address) []byte {
	sig := make([]byte, SignatureLength)
	copy(sig[12:32], owner[:])
	sig[64] = 1
	return sig
}

// Pack concatenates the signatures sorted by owner address, as the Safe
// requires them.
func Pack(confs []safeq.Confirmation) []byte {
	sorted := append([]safeq.Confirmation(nil), confs...)
	sort.Slice(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i].Owner[:], sorted[j].Owner[:]) < 0
	})
	out := make([]byte, 0, len(sorted)*SignatureLength)
	for _, c := range sorted {
		out = append(out, c.Signature...)
	}
	return out
}
