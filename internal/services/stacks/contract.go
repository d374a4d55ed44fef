package stacks

import (
	"context"
	"fmt"
	"strings"

	"nft-ticket/internal/clarity"
)

// Contract identifies a deployed contract.
type Contract struct {
	Address string
	Name    string
}

func ParseContractID(id string) (Contract, error) {
	addr, name, ok := strings.Cut(id, ".")
	if !ok || addr == "" || name == "" {
		return Contract{}, fmt.Errorf("invalid contract id %q", id)
	}
	return Contract{Address: addr, Name: name}, nil
}

func (c Contract) ID() string {
	return c.Address + "." + c.Name
}

// MintCall builds the `mint(recipient, uri)` contract call.
func (c Contract) MintCall(recipient, metadataURI string) (ContractCall, error) {
	principal, err := clarity.StandardPrincipal(recipient)
	if err != nil {
		return ContractCall{}, err
	}
	return ContractCall{
		ContractAddress: c.Address,
		ContractName:    c.Name,
		FunctionName:    "mint",
		Args:            []clarity.Value{principal, clarity.StringASCII(metadataURI)},
	}, nil
}

// MintRecipient returns the recipient of call when call is mint on c. The
// recipient is read from the hex argument, or from its repr when no hex was
// reported.
func (c Contract) MintRecipient(call *TxContractCall) (string, bool) {
	if call == nil || call.FunctionName != "mint" || len(call.FunctionArgs) == 0 {
		return "", false
	}
	if target, err := ParseContractID(call.ContractID); err != nil || target != c {
		return "", false
	}

	arg := call.FunctionArgs[0]
	if arg.Hex != "" {
		v, err := clarity.DecodeHex(arg.Hex)
		if err != nil || v.Type != clarity.TypeStandardPrincipal {
			return "", false
		}
		addr, err := v.Address()
		return addr, err == nil
	}
	addr, ok := strings.CutPrefix(arg.Repr, "'")
	if !ok || addr == "" || strings.Contains(addr, ".") {
		return "", false
	}
	return addr, true
}

// TokenURI reads get-token-uri; ok is false when the token has no URI.
func (cl *Client) TokenURI(ctx context.Context, c Contract, tokenID uint64) (string, bool, error) {
	v, err := cl.CallReadOnly(ctx, c, "get-token-uri", c.Address, clarity.UInt(tokenID))
	if err != nil {
		return "", false, err
	}
	inner, ok := v.Unwrap()
	if !ok {
		return "", false, nil
	}
	if inner.Type != clarity.TypeStringASCII && inner.Type != clarity.TypeStringUTF8 {
		return "", false, fmt.Errorf("get-token-uri: unexpected value %s", v.Repr())
	}
	return inner.Str, true, nil
}

// Owner reads get-owner; ok is false for an unminted token.
func (cl *Client) Owner(ctx context.Context, c Contract, tokenID uint64) (string, bool, error) {
	v, err := cl.CallReadOnly(ctx, c, "get-owner", c.Address, clarity.UInt(tokenID))
	if err != nil {
		return "", false, err
	}
	inner, ok := v.Unwrap()
	if !ok {
		return "", false, nil
	}
	addr, err := inner.Address()
	if err != nil {
		return "", false, fmt.Errorf("get-owner: unexpected value %s", v.Repr())
	}
	return addr, true, nil
}

// LastTokenID reads get-last-token-id, the id of the most recent mint.
func (cl *Client) LastTokenID(ctx context.Context, c Contract) (uint64, error) {
	v, err := cl.CallReadOnly(ctx, c, "get-last-token-id", c.Address)
	if err != nil {
		return 0, err
	}
	inner, ok := v.Unwrap()
	if !ok {
		return 0, fmt.Errorf("get-last-token-id: %s", v.Repr())
	}
	id, ok := inner.Uint64()
	if !ok {
		return 0, fmt.Errorf("get-last-token-id: unexpected value %s", v.Repr())
	}
	return id, nil
}
