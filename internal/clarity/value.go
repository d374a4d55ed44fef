// Package clarity encodes and decodes Clarity values in their consensus
// serialization and renders/parses their textual repr.
package clarity

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"nft-ticket/internal/c32"
)

// Type is the consensus type prefix of a serialized value.
type Type byte

const (
	TypeInt               Type = 0x00
	TypeUInt              Type = 0x01
	TypeBuffer            Type = 0x02
	TypeTrue              Type = 0x03
	TypeFalse             Type = 0x04
	TypeStandardPrincipal Type = 0x05
	TypeContractPrincipal Type = 0x06
	TypeResponseOk        Type = 0x07
	TypeResponseErr       Type = 0x08
	TypeOptionalNone      Type = 0x09
	TypeOptionalSome      Type = 0x0a
	TypeList              Type = 0x0b
	TypeTuple             Type = 0x0c
	TypeStringASCII       Type = 0x0d
	TypeStringUTF8        Type = 0x0e
)

var ErrMalformed = errors.New("clarity: malformed value")

// Value is a decoded Clarity value. Which fields are set depends on Type.
type Value struct {
	Type Type

	Int   *big.Int // int, uint
	Bytes []byte   // buffer
	Str   string   // string-ascii, string-utf8

	// principals
	Version      byte
	Hash160      []byte
	ContractName string

	Inner *Value           // ok, err, some
	List  []Value          // list
	Tuple map[string]Value // tuple
}

func UInt(n uint64) Value {
	return Value{Type: TypeUInt, Int: new(big.Int).SetUint64(n)}
}

func Int(n int64) Value {
	return Value{Type: TypeInt, Int: big.NewInt(n)}
}

func Bool(b bool) Value {
	if b {
		return Value{Type: TypeTrue}
	}
	return Value{Type: TypeFalse}
}

func Buffer(b []byte) Value {
	return Value{Type: TypeBuffer, Bytes: b}
}

func StringASCII(s string) Value {
	return Value{Type: TypeStringASCII, Str: s}
}

func StringUTF8(s string) Value {
	return Value{Type: TypeStringUTF8, Str: s}
}

func Some(v Value) Value {
	return Value{Type: TypeOptionalSome, Inner: &v}
}

func None() Value {
	return Value{Type: TypeOptionalNone}
}

func Ok(v Value) Value {
	return Value{Type: TypeResponseOk, Inner: &v}
}

func Err(v Value) Value {
	return Value{Type: TypeResponseErr, Inner: &v}
}

func List(items ...Value) Value {
	return Value{Type: TypeList, List: items}
}

func Tuple(fields map[string]Value) Value {
	return Value{Type: TypeTuple, Tuple: fields}
}

// StandardPrincipal parses an "S..." address into a principal value.
func StandardPrincipal(address string) (Value, error) {
	version, hash, err := c32.ParseAddress(address)
	if err != nil {
		return Value{}, err
	}
	return Value{Type: TypeStandardPrincipal, Version: version, Hash160: hash}, nil
}

// Principal accepts "ADDR" or "ADDR.contract-name".
func Principal(s string) (Value, error) {
	addr, name, found := strings.Cut(s, ".")
	v, err := StandardPrincipal(addr)
	if err != nil || !found {
		return v, err
	}
	if name == "" || len(name) > 128 {
		return Value{}, fmt.Errorf("%w: contract name %q", ErrMalformed, name)
	}
	v.Type = TypeContractPrincipal
	v.ContractName = name
	return v, nil
}

// Address renders a principal value back to its c32 form.
func (v Value) Address() (string, error) {
	if v.Type != TypeStandardPrincipal && v.Type != TypeContractPrincipal {
		return "", fmt.Errorf("%w: not a principal", ErrMalformed)
	}
	addr, err := c32.Address(v.Version, v.Hash160)
	if err != nil {
		return "", err
	}
	if v.Type == TypeContractPrincipal {
		return addr + "." + v.ContractName, nil
	}
	return addr, nil
}

// Serialize produces the consensus encoding.
func (v Value) Serialize() ([]byte, error) {
	out := []byte{byte(v.Type)}
	switch v.Type {
	case TypeInt, TypeUInt:
		b, err := int128(v.Int, v.Type == TypeInt)
		if err != nil {
			return nil, err
		}
		out = append(out, b...)
	case TypeBuffer:
		out = appendLen(out, len(v.Bytes))
		out = append(out, v.Bytes...)
	case TypeTrue, TypeFalse, TypeOptionalNone:
	case TypeStandardPrincipal, TypeContractPrincipal:
		if len(v.Hash160) != 20 {
			return nil, fmt.Errorf("%w: hash160 length %d", ErrMalformed, len(v.Hash160))
		}
		out = append(out, v.Version)
		out = append(out, v.Hash160...)
		if v.Type == TypeContractPrincipal {
			out = append(out, byte(len(v.ContractName)))
			out = append(out, v.ContractName...)
		}
	case TypeResponseOk, TypeResponseErr, TypeOptionalSome:
		if v.Inner == nil {
			return nil, fmt.Errorf("%w: missing inner value", ErrMalformed)
		}
		inner, err := v.Inner.Serialize()
		if err != nil {
			return nil, err
		}
		out = append(out, inner...)
	case TypeList:
		out = appendLen(out, len(v.List))
		for _, item := range v.List {
			b, err := item.Serialize()
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		}
	case TypeTuple:
		out = appendLen(out, len(v.Tuple))
		for _, name := range sortedKeys(v.Tuple) {
			out = append(out, byte(len(name)))
			out = append(out, name...)
			b, err := v.Tuple[name].Serialize()
			if err != nil {
				return nil, err
			}
			out = append(out, b...)
		}
	case TypeStringASCII:
		for i := 0; i < len(v.Str); i++ {
			if v.Str[i] < 0x20 || v.Str[i] > 0x7e {
				return nil, fmt.Errorf("%w: non-ascii byte in string-ascii", ErrMalformed)
			}
		}
		out = appendLen(out, len(v.Str))
		out = append(out, v.Str...)
	case TypeStringUTF8:
		out = appendLen(out, len(v.Str))
		out = append(out, v.Str...)
	default:
		return nil, fmt.Errorf("%w: unknown type 0x%02x", ErrMalformed, byte(v.Type))
	}
	return out, nil
}

// Hex is the 0x-prefixed serialization used by the read-only call API.
func (v Value) Hex() (string, error) {
	b, err := v.Serialize()
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(b), nil
}

// DecodeHex parses a 0x-prefixed (or bare) hex serialization.
func DecodeHex(s string) (Value, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return Value{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	v, rest, err := deserialize(b)
	if err != nil {
		return Value{}, err
	}
	if len(rest) != 0 {
		return Value{}, fmt.Errorf("%w: %d trailing bytes", ErrMalformed, len(rest))
	}
	return v, nil
}

func deserialize(b []byte) (Value, []byte, error) {
	if len(b) == 0 {
		return Value{}, nil, fmt.Errorf("%w: unexpected end", ErrMalformed)
	}
	v := Value{Type: Type(b[0])}
	b = b[1:]
	switch v.Type {
	case TypeInt, TypeUInt:
		if len(b) < 16 {
			return Value{}, nil, fmt.Errorf("%w: short integer", ErrMalformed)
		}
		v.Int = new(big.Int).SetBytes(b[:16])
		if v.Type == TypeInt && b[0]&0x80 != 0 {
			v.Int.Sub(v.Int, new(big.Int).Lsh(big.NewInt(1), 128))
		}
		return v, b[16:], nil
	case TypeBuffer, TypeStringASCII, TypeStringUTF8:
		n, rest, err := readLen(b)
		if err != nil {
			return Value{}, nil, err
		}
		if len(rest) < n {
			return Value{}, nil, fmt.Errorf("%w: short payload", ErrMalformed)
		}
		if v.Type == TypeBuffer {
			v.Bytes = append([]byte{}, rest[:n]...)
		} else {
			v.Str = string(rest[:n])
		}
		return v, rest[n:], nil
	case TypeTrue, TypeFalse, TypeOptionalNone:
		return v, b, nil
	case TypeStandardPrincipal, TypeContractPrincipal:
		if len(b) < 21 {
			return Value{}, nil, fmt.Errorf("%w: short principal", ErrMalformed)
		}
		v.Version = b[0]
		v.Hash160 = append([]byte{}, b[1:21]...)
		b = b[21:]
		if v.Type == TypeContractPrincipal {
			if len(b) < 1 || len(b) < 1+int(b[0]) {
				return Value{}, nil, fmt.Errorf("%w: short contract name", ErrMalformed)
			}
			v.ContractName = string(b[1 : 1+int(b[0])])
			b = b[1+int(b[0]):]
		}
		return v, b, nil
	case TypeResponseOk, TypeResponseErr, TypeOptionalSome:
		inner, rest, err := deserialize(b)
		if err != nil {
			return Value{}, nil, err
		}
		v.Inner = &inner
		return v, rest, nil
	case TypeList:
		n, rest, err := readLen(b)
		if err != nil {
			return Value{}, nil, err
		}
		v.List = make([]Value, 0, n)
		for i := 0; i < n; i++ {
			var item Value
			item, rest, err = deserialize(rest)
			if err != nil {
				return Value{}, nil, err
			}
			v.List = append(v.List, item)
		}
		return v, rest, nil
	case TypeTuple:
		n, rest, err := readLen(b)
		if err != nil {
			return Value{}, nil, err
		}
		v.Tuple = make(map[string]Value, n)
		for i := 0; i < n; i++ {
			if len(rest) < 1 || len(rest) < 1+int(rest[0]) {
				return Value{}, nil, fmt.Errorf("%w: short tuple key", ErrMalformed)
			}
			name := string(rest[1 : 1+int(rest[0])])
			var item Value
			item, rest, err = deserialize(rest[1+int(rest[0]):])
			if err != nil {
				return Value{}, nil, err
			}
			v.Tuple[name] = item
		}
		return v, rest, nil
	default:
		return Value{}, nil, fmt.Errorf("%w: unknown type 0x%02x", ErrMalformed, byte(v.Type))
	}
}

// Repr renders the value the way the chain API's `repr` fields do.
func (v Value) Repr() string {
	switch v.Type {
	case TypeInt:
		return v.Int.String()
	case TypeUInt:
		return "u" + v.Int.String()
	case TypeBuffer:
		return "0x" + hex.EncodeToString(v.Bytes)
	case TypeTrue:
		return "true"
	case TypeFalse:
		return "false"
	case TypeStandardPrincipal, TypeContractPrincipal:
		addr, err := v.Address()
		if err != nil {
			return "<invalid principal>"
		}
		return "'" + addr
	case TypeResponseOk:
		return "(ok " + v.Inner.Repr() + ")"
	case TypeResponseErr:
		return "(err " + v.Inner.Repr() + ")"
	case TypeOptionalNone:
		return "none"
	case TypeOptionalSome:
		return "(some " + v.Inner.Repr() + ")"
	case TypeList:
		parts := make([]string, len(v.List))
		for i, item := range v.List {
			parts[i] = item.Repr()
		}
		return "(list " + strings.Join(parts, " ") + ")"
	case TypeTuple:
		keys := sortedKeys(v.Tuple)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = "(" + k + " " + v.Tuple[k].Repr() + ")"
		}
		return "(tuple " + strings.Join(parts, " ") + ")"
	case TypeStringASCII:
		return fmt.Sprintf("%q", v.Str)
	case TypeStringUTF8:
		return "u" + fmt.Sprintf("%q", v.Str)
	}
	return "<unknown>"
}

// Unwrap strips ok/some wrappers. It reports false on err and none.
func (v Value) Unwrap() (Value, bool) {
	for {
		switch v.Type {
		case TypeResponseOk, TypeOptionalSome:
			v = *v.Inner
		case TypeResponseErr, TypeOptionalNone:
			return v, false
		default:
			return v, true
		}
	}
}

// Uint64 returns a uint value that fits in 64 bits.
func (v Value) Uint64() (uint64, bool) {
	if v.Type != TypeUInt || v.Int == nil || !v.Int.IsUint64() {
		return 0, false
	}
	return v.Int.Uint64(), true
}

func int128(n *big.Int, signed bool) ([]byte, error) {
	if n == nil {
		n = new(big.Int)
	}
	limit := new(big.Int).Lsh(big.NewInt(1), 128)
	x := new(big.Int).Set(n)
	if x.Sign() < 0 {
		if !signed {
			return nil, fmt.Errorf("%w: negative uint", ErrMalformed)
		}
		x.Add(x, limit)
	}
	if x.Sign() < 0 || x.Cmp(limit) >= 0 {
		return nil, fmt.Errorf("%w: integer out of range", ErrMalformed)
	}
	out := make([]byte, 16)
	x.FillBytes(out)
	return out, nil
}

func appendLen(b []byte, n int) []byte {
	return binary.BigEndian.AppendUint32(b, uint32(n))
}

func readLen(b []byte) (int, []byte, error) {
	if len(b) < 4 {
		return 0, nil, fmt.Errorf("%w: short length prefix", ErrMalformed)
	}
	return int(binary.BigEndian.Uint32(b[:4])), b[4:], nil
}

func sortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
