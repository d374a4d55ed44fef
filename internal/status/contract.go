package status

import "fmt"

// Error codes returned by the nft-ticket contract.
const (
	CodeUnauthorized     uint64 = 100
	CodeInvalidRecipient uint64 = 101
	CodeInvalidURI       uint64 = 102
	CodeTransferToSelf   uint64 = 103
)

var contractErrors = map[uint64]string{
	CodeUnauthorized:     "Unauthorized: Only contract owner can mint",
	CodeInvalidRecipient: "Invalid recipient",
	CodeInvalidURI:       "Invalid metadata URI",
	CodeTransferToSelf:   "Cannot transfer to yourself",
}

// ContractErrorMessage maps an abort code to its documented message.
func ContractErrorMessage(code uint64) string {
	if msg, ok := contractErrors[code]; ok {
		return msg
	}
	return fmt.Sprintf("Contract error: code %d", code)
}
