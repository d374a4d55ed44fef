// Package c32 implements the c32check encoding used by Stacks addresses.
package c32

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

const alphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// Address versions for single-signature (p2pkh) accounts.
const (
	VersionMainnetSingleSig byte = 22 // 'P'
	VersionTestnetSingleSig byte = 26 // 'T'
	VersionMainnetMultiSig  byte = 20 // 'M'
	VersionTestnetMultiSig  byte = 21 // 'N'
)

var (
	ErrInvalidAddress  = errors.New("c32: invalid address")
	ErrInvalidChecksum = errors.New("c32: checksum mismatch")
)

var big32 = big.NewInt(32)

// Encode converts bytes to c32, keeping one leading '0' per leading zero byte.
func Encode(data []byte) string {
	n := new(big.Int).SetBytes(data)
	var out []byte
	mod := new(big.Int)
	for n.Sign() > 0 {
		n.DivMod(n, big32, mod)
		out = append(out, alphabet[mod.Int64()])
	}
	for _, b := range data {
		if b != 0 {
			break
		}
		out = append(out, '0')
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return string(out)
}

// Decode reverses Encode. Input is normalized first (case, O→0, L/I→1).
func Decode(s string) ([]byte, error) {
	s = normalize(s)
	zeros := 0
	for zeros < len(s) && s[zeros] == '0' {
		zeros++
	}
	n := new(big.Int)
	for i := zeros; i < len(s); i++ {
		idx := strings.IndexByte(alphabet, s[i])
		if idx < 0 {
			return nil, fmt.Errorf("%w: character %q", ErrInvalidAddress, s[i])
		}
		n.Mul(n, big32)
		n.Add(n, big.NewInt(int64(idx)))
	}
	return append(make([]byte, zeros), n.Bytes()...), nil
}

func normalize(s string) string {
	s = strings.ToUpper(s)
	s = strings.ReplaceAll(s, "O", "0")
	s = strings.ReplaceAll(s, "L", "1")
	return strings.ReplaceAll(s, "I", "1")
}

func checksum(version byte, data []byte) []byte {
	first := sha256.Sum256(append([]byte{version}, data...))
	second := sha256.Sum256(first[:])
	return second[:4]
}

// CheckEncode produces the c32check string: version character followed by data+checksum.
func CheckEncode(version byte, data []byte) (string, error) {
	if version >= 32 {
		return "", fmt.Errorf("%w: version %d", ErrInvalidAddress, version)
	}
	payload := append(append([]byte{}, data...), checksum(version, data)...)
	return string(alphabet[version]) + Encode(payload), nil
}

// CheckDecode splits a c32check string back into version and data.
func CheckDecode(s string) (byte, []byte, error) {
	if len(s) < 2 {
		return 0, nil, ErrInvalidAddress
	}
	s = normalize(s)
	version := strings.IndexByte(alphabet, s[0])
	if version < 0 {
		return 0, nil, fmt.Errorf("%w: version %q", ErrInvalidAddress, s[0])
	}
	raw, err := Decode(s[1:])
	if err != nil {
		return 0, nil, err
	}
	if len(raw) < 4 {
		return 0, nil, ErrInvalidAddress
	}
	data, sum := raw[:len(raw)-4], raw[len(raw)-4:]
	if !bytes.Equal(sum, checksum(byte(version), data)) {
		return 0, nil, ErrInvalidChecksum
	}
	return byte(version), data, nil
}

// Address builds an "S"-prefixed Stacks address from a version and a 20-byte hash160.
func Address(version byte, hash160 []byte) (string, error) {
	if len(hash160) != 20 {
		return "", fmt.Errorf("%w: hash160 must be 20 bytes, got %d", ErrInvalidAddress, len(hash160))
	}
	enc, err := CheckEncode(version, hash160)
	if err != nil {
		return "", err
	}
	return "S" + enc, nil
}

// ParseAddress returns the version and hash160 of an "S"-prefixed address.
func ParseAddress(addr string) (byte, []byte, error) {
	if len(addr) < 5 || (addr[0] != 'S' && addr[0] != 's') {
		return 0, nil, fmt.Errorf("%w: %q", ErrInvalidAddress, addr)
	}
	version, data, err := CheckDecode(addr[1:])
	if err != nil {
		return 0, nil, err
	}
	if len(data) != 20 {
		return 0, nil, fmt.Errorf("%w: hash160 length %d", ErrInvalidAddress, len(data))
	}
	return version, data, nil
}
