package status

import (
	"errors"
	"fmt"
)

var (
	ErrValidation        = errors.New("validation: invalid input")
	ErrUserRejected      = errors.New("wallet: request rejected by user")
	ErrNetwork           = errors.New("network: request failed")
	ErrMissingSigningKey = errors.New("signer: server signing key not configured")
	ErrNotFound          = errors.New("store: record not found")
	ErrForbidden         = errors.New("access: not the owner")
	ErrNoSession         = errors.New("session: wallet not connected")
)

// ValidationError reports malformed or missing input. The operation is never attempted.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// InvalidMetadataError is returned when a metadata URI is empty after sanitization.
type InvalidMetadataError struct {
	Raw string
}

func (e *InvalidMetadataError) Error() string { return "Invalid or empty metadata URI" }

func (e *InvalidMetadataError) Is(target error) bool { return target == ErrValidation }

// UserRejectedError is what the wallet reports on cancellation. It is not final:
// wallets sometimes report it for transactions that did reach the network.
type UserRejectedError struct {
	Reason string
}

func (e *UserRejectedError) Error() string {
	if e.Reason == "" {
		return "Payment canceled by user"
	}
	return "Payment canceled by user: " + e.Reason
}

func (e *UserRejectedError) Is(target error) bool { return target == ErrUserRejected }

// NetworkError wraps transient I/O failures talking to the chain or pinning APIs.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Is(target error) bool { return target == ErrNetwork }

// ContractAbortError is a terminal abort with the contract's numeric error code.
type ContractAbortError struct {
	Code    uint64
	Message string
}

func (e *ContractAbortError) Error() string { return e.Message }

// UnknownFailureError is any other terminal non-success status.
type UnknownFailureError struct {
	Status  string
	Message string
}

func (e *UnknownFailureError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "Minting transaction failed: " + e.Status
}

// BroadcastRejectedError is the node refusing a signed transaction.
type BroadcastRejectedError struct {
	TxID       string
	Err        string
	Reason     string
	ReasonData map[string]any
}

func (e *BroadcastRejectedError) Error() string {
	return fmt.Sprintf("Transaction rejected: %s", e.Reason)
}

// UploadError reports a failed pin. Stage is "image" or "metadata".
type UploadError struct {
	Stage string
	Err   error
}

func (e *UploadError) Error() string { return fmt.Sprintf("upload %s: %v", e.Stage, e.Err) }

func (e *UploadError) Unwrap() error { return e.Err }
