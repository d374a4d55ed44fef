package clarity

import (
	"fmt"
	"strconv"
	"strings"
)

// Response is the tagged {Ok(value), Err(value)} view of a response repr such
// as "(ok u17)" or "(err u102)". All repr pattern-matching lives here.
type Response struct {
	Ok    bool
	Inner string
}

// ParseResponse decodes a top-level response repr.
func ParseResponse(repr string) (Response, error) {
	s := strings.TrimSpace(repr)
	var r Response
	switch {
	case strings.HasPrefix(s, "(ok "):
		r.Ok = true
		s = s[len("(ok "):]
	case strings.HasPrefix(s, "(err "):
		s = s[len("(err "):]
	default:
		return Response{}, fmt.Errorf("%w: not a response: %q", ErrMalformed, repr)
	}
	if !strings.HasSuffix(s, ")") {
		return Response{}, fmt.Errorf("%w: unterminated response: %q", ErrMalformed, repr)
	}
	r.Inner = strings.TrimSpace(s[:len(s)-1])
	if r.Inner == "" || !balanced(r.Inner) {
		return Response{}, fmt.Errorf("%w: bad response body: %q", ErrMalformed, repr)
	}
	return r, nil
}

// UInt reports the inner value when it is a bare uint literal ("u<digits>").
func (r Response) UInt() (uint64, bool) {
	if len(r.Inner) < 2 || r.Inner[0] != 'u' {
		return 0, false
	}
	digits := r.Inner[1:]
	for i := 0; i < len(digits); i++ {
		if digits[i] < '0' || digits[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.ParseUint(digits, 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ResponseOf converts a decoded value into the same tagged view.
func ResponseOf(v Value) (Response, error) {
	switch v.Type {
	case TypeResponseOk:
		return Response{Ok: true, Inner: v.Inner.Repr()}, nil
	case TypeResponseErr:
		return Response{Ok: false, Inner: v.Inner.Repr()}, nil
	}
	return Response{}, fmt.Errorf("%w: value is not a response", ErrMalformed)
}

func balanced(s string) bool {
	depth := 0
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inString:
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth < 0 {
				return false
			}
		}
	}
	return depth == 0 && !inString
}
