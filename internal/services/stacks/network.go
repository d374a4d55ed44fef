package stacks

import (
	"fmt"
	"strings"

	"nft-ticket/internal/c32"
)

// Network carries the per-network constants used when building transactions
// and validating addresses.
type Network struct {
	Name           string
	TxVersion      byte
	ChainID        uint32
	AddressVersion byte
	AddressPrefix  string
}

var (
	Testnet = Network{
		Name:           "testnet",
		TxVersion:      0x80,
		ChainID:        0x80000000,
		AddressVersion: c32.VersionTestnetSingleSig,
		AddressPrefix:  "ST",
	}
	Mainnet = Network{
		Name:           "mainnet",
		TxVersion:      0x00,
		ChainID:        0x00000001,
		AddressVersion: c32.VersionMainnetSingleSig,
		AddressPrefix:  "SP",
	}
)

func ParseNetwork(name string) (Network, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "testnet":
		return Testnet, nil
	case "mainnet":
		return Mainnet, nil
	}
	return Network{}, fmt.Errorf("unknown stacks network %q", name)
}

// HasAddressPrefix is the cheap shape check done before any decoding: the
// network prefix and a minimum length of 32 characters.
func (n Network) HasAddressPrefix(addr string) bool {
	return strings.HasPrefix(addr, n.AddressPrefix) && len(addr) >= 32
}

// ValidateAddress fully decodes addr and checks it belongs to this network.
func (n Network) ValidateAddress(addr string) error {
	version, _, err := c32.ParseAddress(addr)
	if err != nil {
		return err
	}
	if version != n.AddressVersion {
		return fmt.Errorf("%w: address %s is not a %s single-sig address", c32.ErrInvalidAddress, addr, n.Name)
	}
	return nil
}
