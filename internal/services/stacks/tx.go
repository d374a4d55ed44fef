package stacks

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"golang.org/x/crypto/ripemd160"

	"nft-ticket/internal/c32"
	"nft-ticket/internal/clarity"
)

const (
	authTypeStandard   byte = 0x04
	hashModeP2PKH      byte = 0x00
	keyEncCompressed   byte = 0x00
	keyEncUncompressed byte = 0x01

	AnchorModeAny        byte = 0x03
	PostConditionAllow   byte = 0x01
	PostConditionDeny    byte = 0x02
	payloadTokenTransfer byte = 0x00
	payloadContractCall  byte = 0x02

	memoLength = 34
)

var ErrInvalidKey = errors.New("stacks: invalid private key")

// Account is a server-held signing key bound to a network.
type Account struct {
	key        *secp256k1.PrivateKey
	compressed bool
	network    Network
}

// ParseAccount accepts a 64-char hex key (uncompressed public key) or the
// 66-char form with a trailing 01 (compressed public key).
func ParseAccount(hexKey string, network Network) (*Account, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	b, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	compressed := false
	switch {
	case len(b) == 33 && b[32] == 0x01:
		compressed = true
		b = b[:32]
	case len(b) != 32:
		return nil, fmt.Errorf("%w: length %d", ErrInvalidKey, len(b))
	}
	return &Account{key: secp256k1.PrivKeyFromBytes(b), compressed: compressed, network: network}, nil
}

func (a *Account) publicKey() []byte {
	if a.compressed {
		return a.key.PubKey().SerializeCompressed()
	}
	return a.key.PubKey().SerializeUncompressed()
}

func (a *Account) hash160() []byte {
	return Hash160(a.publicKey())
}

// Address is the account's c32 address on its network.
func (a *Account) Address() string {
	addr, _ := c32.Address(a.network.AddressVersion, a.hash160())
	return addr
}

func (a *Account) Network() Network {
	return a.network
}

// Hash160 is ripemd160(sha256(b)).
func Hash160(b []byte) []byte {
	sum := sha256.Sum256(b)
	h := ripemd160.New()
	h.Write(sum[:])
	return h.Sum(nil)
}

// Payload is the body of a transaction.
type Payload interface {
	serialize() ([]byte, error)
}

// ContractCall invokes a public function.
type ContractCall struct {
	ContractAddress string
	ContractName    string
	FunctionName    string
	Args            []clarity.Value
}

func (p ContractCall) serialize() ([]byte, error) {
	version, hash, err := c32.ParseAddress(p.ContractAddress)
	if err != nil {
		return nil, err
	}
	if len(p.ContractName) == 0 || len(p.ContractName) > 128 {
		return nil, fmt.Errorf("stacks: invalid contract name %q", p.ContractName)
	}
	if len(p.FunctionName) == 0 || len(p.FunctionName) > 128 {
		return nil, fmt.Errorf("stacks: invalid function name %q", p.FunctionName)
	}
	out := []byte{payloadContractCall, version}
	out = append(out, hash...)
	out = append(out, byte(len(p.ContractName)))
	out = append(out, p.ContractName...)
	out = append(out, byte(len(p.FunctionName)))
	out = append(out, p.FunctionName...)
	out = binary.BigEndian.AppendUint32(out, uint32(len(p.Args)))
	for _, arg := range p.Args {
		b, err := arg.Serialize()
		if err != nil {
			return nil, fmt.Errorf("stacks: argument: %w", err)
		}
		out = append(out, b...)
	}
	return out, nil
}

// TokenTransfer moves micro-STX to a recipient.
type TokenTransfer struct {
	Recipient string
	Amount    uint64
	Memo      string
}

func (p TokenTransfer) serialize() ([]byte, error) {
	recipient, err := clarity.Principal(p.Recipient)
	if err != nil {
		return nil, err
	}
	rb, err := recipient.Serialize()
	if err != nil {
		return nil, err
	}
	if len(p.Memo) > memoLength {
		return nil, fmt.Errorf("stacks: memo longer than %d bytes", memoLength)
	}
	out := append([]byte{payloadTokenTransfer}, rb...)
	out = binary.BigEndian.AppendUint64(out, p.Amount)
	memo := make([]byte, memoLength)
	copy(memo, p.Memo)
	return append(out, memo...), nil
}

// Transaction is a single-sig, standard-auth transaction.
type Transaction struct {
	Network           Network
	Signer            []byte // hash160 of the signer's public key
	Nonce             uint64
	Fee               uint64
	Compressed        bool
	Signature         [65]byte
	AnchorMode        byte
	PostConditionMode byte
	Payload           Payload
}

// NewTransaction prepares an unsigned transaction for the account.
func (a *Account) NewTransaction(p Payload, nonce, fee uint64) *Transaction {
	return &Transaction{
		Network:           a.network,
		Signer:            a.hash160(),
		Nonce:             nonce,
		Fee:               fee,
		Compressed:        a.compressed,
		AnchorMode:        AnchorModeAny,
		PostConditionMode: PostConditionAllow,
		Payload:           p,
	}
}

func (tx *Transaction) Serialize() ([]byte, error) {
	if len(tx.Signer) != 20 {
		return nil, fmt.Errorf("stacks: signer hash must be 20 bytes")
	}
	out := []byte{tx.Network.TxVersion}
	out = binary.BigEndian.AppendUint32(out, tx.Network.ChainID)
	out = append(out, authTypeStandard, hashModeP2PKH)
	out = append(out, tx.Signer...)
	out = binary.BigEndian.AppendUint64(out, tx.Nonce)
	out = binary.BigEndian.AppendUint64(out, tx.Fee)
	if tx.Compressed {
		out = append(out, keyEncCompressed)
	} else {
		out = append(out, keyEncUncompressed)
	}
	out = append(out, tx.Signature[:]...)
	out = append(out, tx.AnchorMode, tx.PostConditionMode)
	out = binary.BigEndian.AppendUint32(out, 0) // no post conditions
	payload, err := tx.Payload.serialize()
	if err != nil {
		return nil, err
	}
	return append(out, payload...), nil
}

// TxID is the 0x-prefixed sha512/256 of the serialized transaction.
func (tx *Transaction) TxID() (string, error) {
	raw, err := tx.Serialize()
	if err != nil {
		return "", err
	}
	sum := sha512.Sum512_256(raw)
	return "0x" + hex.EncodeToString(sum[:]), nil
}

// sigHash is computed over the transaction with nonce, fee and signature
// cleared, then bound to the real fee and nonce.
func (tx *Transaction) sigHash() ([]byte, error) {
	cleared := *tx
	cleared.Nonce, cleared.Fee = 0, 0
	cleared.Signature = [65]byte{}
	raw, err := cleared.Serialize()
	if err != nil {
		return nil, err
	}
	initial := sha512.Sum512_256(raw)

	buf := append([]byte{}, initial[:]...)
	buf = append(buf, authTypeStandard)
	buf = binary.BigEndian.AppendUint64(buf, tx.Fee)
	buf = binary.BigEndian.AppendUint64(buf, tx.Nonce)
	presign := sha512.Sum512_256(buf)
	return presign[:], nil
}

// Sign fills the signature as [recovery id][r][s].
func (tx *Transaction) Sign(a *Account) error {
	hash, err := tx.sigHash()
	if err != nil {
		return err
	}
	compact := ecdsa.SignCompact(a.key, hash, a.compressed)
	recID := compact[0] - 27
	if a.compressed {
		recID -= 4
	}
	tx.Signature[0] = recID
	copy(tx.Signature[1:], compact[1:])
	return nil
}

// RecoverSigner returns the public key that produced the signature.
func (tx *Transaction) RecoverSigner() (*secp256k1.PublicKey, error) {
	hash, err := tx.sigHash()
	if err != nil {
		return nil, err
	}
	header := tx.Signature[0] + 27
	if tx.Compressed {
		header += 4
	}
	compact := append([]byte{header}, tx.Signature[1:]...)
	pub, _, err := ecdsa.RecoverCompact(compact, hash)
	return pub, err
}
