package clarity

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nft-ticket/internal/c32"
)

func testAddress(t *testing.T) string {
	t.Helper()
	hash, _ := hex.DecodeString("1a2b3c4d5e6f708192a3b4c5d6e7f80910111213")
	addr, err := c32.Address(c32.VersionTestnetSingleSig, hash)
	require.NoError(t, err)
	return addr
}

func TestSerialize_UInt(t *testing.T) {
	h, err := UInt(17).Hex()
	require.NoError(t, err)
	assert.Equal(t, "0x0100000000000000000000000000000011", h)
}

func TestSerialize_StringASCII(t *testing.T) {
	h, err := StringASCII("hi").Hex()
	require.NoError(t, err)
	assert.Equal(t, "0x0d000000026869", h)

	_, err = StringASCII("café").Serialize()
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestSerialize_Int_Negative(t *testing.T) {
	h, err := Int(-1).Hex()
	require.NoError(t, err)
	assert.Equal(t, "0x00ffffffffffffffffffffffffffffffff", h)

	v, err := DecodeHex(h)
	require.NoError(t, err)
	assert.Equal(t, "-1", v.Repr())
}

func TestRoundTrip(t *testing.T) {
	principal, err := StandardPrincipal(testAddress(t))
	require.NoError(t, err)
	contract, err := Principal(testAddress(t) + ".nft-ticket")
	require.NoError(t, err)

	values := []Value{
		UInt(0),
		UInt(1 << 40),
		Int(-42),
		Bool(true),
		Bool(false),
		Buffer([]byte{0xde, 0xad}),
		StringASCII("ipfs://bafy"),
		StringUTF8("olá"),
		principal,
		contract,
		Ok(UInt(17)),
		Err(UInt(102)),
		Some(StringASCII("uri")),
		None(),
		List(UInt(1), UInt(2)),
		Tuple(map[string]Value{"owner": principal, "id": UInt(3)}),
	}

	for _, v := range values {
		t.Run(v.Repr(), func(t *testing.T) {
			h, err := v.Hex()
			require.NoError(t, err)
			decoded, err := DecodeHex(h)
			require.NoError(t, err)
			assert.Equal(t, v.Repr(), decoded.Repr())
		})
	}
}

func TestRepr(t *testing.T) {
	addr := testAddress(t)
	principal, err := StandardPrincipal(addr)
	require.NoError(t, err)

	assert.Equal(t, "(ok u17)", Ok(UInt(17)).Repr())
	assert.Equal(t, "(err u102)", Err(UInt(102)).Repr())
	assert.Equal(t, `(ok (some "ipfs://x"))`, Ok(Some(StringASCII("ipfs://x"))).Repr())
	assert.Equal(t, "'"+addr, principal.Repr())
	assert.Equal(t, "(tuple (a u1) (b true))", Tuple(map[string]Value{"b": Bool(true), "a": UInt(1)}).Repr())
}

func TestDecodeHex_Errors(t *testing.T) {
	for _, in := range []string{"0x", "0xzz", "0x01ff", "0x0d00000005ab", "0x0100000000000000000000000000000011ff", "0x99"} {
		_, err := DecodeHex(in)
		assert.ErrorIs(t, err, ErrMalformed, in)
	}
}

func TestUnwrap(t *testing.T) {
	inner, ok := Ok(Some(StringASCII("uri"))).Unwrap()
	assert.True(t, ok)
	assert.Equal(t, "uri", inner.Str)

	_, ok = Ok(None()).Unwrap()
	assert.False(t, ok)

	_, ok = Err(UInt(1)).Unwrap()
	assert.False(t, ok)

	n, ok := UInt(9).Uint64()
	assert.True(t, ok)
	assert.Equal(t, uint64(9), n)
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		repr    string
		ok      bool
		inner   string
		uint    uint64
		hasUint bool
	}{
		{"(ok u17)", true, "u17", 17, true},
		{"(err u102)", false, "u102", 102, true},
		{"  (ok u0) ", true, "u0", 0, true},
		{"(ok true)", true, "true", 0, false},
		{"(ok (tuple (id u5)))", true, "(tuple (id u5))", 0, false},
		{`(err "boom)")`, false, `"boom)"`, 0, false},
		{"(ok u99999999999999999999999)", true, "u99999999999999999999999", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.repr, func(t *testing.T) {
			r, err := ParseResponse(tt.repr)
			require.NoError(t, err)
			assert.Equal(t, tt.ok, r.Ok)
			assert.Equal(t, tt.inner, r.Inner)
			n, has := r.UInt()
			assert.Equal(t, tt.hasUint, has)
			assert.Equal(t, tt.uint, n)
		})
	}
}

func TestParseResponse_Malformed(t *testing.T) {
	for _, repr := range []string{"", "u17", "(some u1)", "(ok u17", "(ok )", "(ok (u1)))", "(okay u1)"} {
		_, err := ParseResponse(repr)
		assert.ErrorIs(t, err, ErrMalformed, repr)
	}
}

func TestResponseOf(t *testing.T) {
	r, err := ResponseOf(Ok(UInt(17)))
	require.NoError(t, err)
	id, ok := r.UInt()
	assert.True(t, ok)
	assert.Equal(t, uint64(17), id)

	_, err = ResponseOf(UInt(1))
	assert.Error(t, err)
}
