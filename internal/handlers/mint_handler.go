package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/pocketbase/pocketbase/apis"
	"github.com/pocketbase/pocketbase/core"

	"nft-ticket/internal/services"
	"nft-ticket/internal/status"
)

type MintHandler struct {
	minter     Minter
	purchases  Purchases
	sessions   Sessions
	production bool
}

func NewMintHandler(minter Minter, purchases Purchases, sessions Sessions, production bool) *MintHandler {
	return &MintHandler{
		minter:     minter,
		purchases:  purchases,
		sessions:   sessions,
		production: production,
	}
}

type MintNFTRequest struct {
	UserAddress     string `json:"userAddress"`
	MetadataURI     string `json:"metadataUri"`
	ContractAddress string `json:"contractAddress"`
	ContractName    string `json:"contractName"`
	PaymentTxID     string `json:"paymentTxId"`
}

// MintNFT - Submit a mint for a paid ticket. Responses keep the
// {success, txid, message} shape the web client reads.
func (h *MintHandler) MintNFT(e *core.RequestEvent) error {
	var req MintNFTRequest
	if err := e.BindBody(&req); err != nil {
		return e.JSON(http.StatusBadRequest, map[string]any{"success": false, "error": "Invalid request body"})
	}
	if req.UserAddress == "" || req.MetadataURI == "" || req.ContractAddress == "" || req.ContractName == "" {
		return e.JSON(http.StatusBadRequest, map[string]any{"success": false, "error": "Missing required parameters"})
	}
	if !h.minter.Network().HasAddressPrefix(req.UserAddress) {
		return e.JSON(http.StatusBadRequest, map[string]any{"success": false, "error": "Invalid user address format"})
	}

	contract := h.minter.Contract()
	if req.ContractAddress != contract.Address || req.ContractName != contract.Name {
		slog.Warn("contract mismatch, using deployment", "requested", req.ContractAddress+"."+req.ContractName, "using", contract.ID())
	}

	txid, err := h.minter.SubmitMint(e.Request.Context(), services.MintIntent{
		Recipient:   req.UserAddress,
		MetadataURI: req.MetadataURI,
	})
	if err != nil {
		return h.mintError(e, req, err)
	}

	slog.Info("mint submitted", "txid", txid, "recipient", req.UserAddress, "paymentTxId", req.PaymentTxID)
	return e.JSON(http.StatusOK, map[string]any{
		"success": true,
		"txid":    txid,
		"message": "NFT mint transaction submitted successfully",
	})
}

func (h *MintHandler) mintError(e *core.RequestEvent, req MintNFTRequest, err error) error {
	var (
		metadata   *status.InvalidMetadataError
		validation *status.ValidationError
		rejected   *status.BroadcastRejectedError
	)
	switch {
	case errors.As(err, &metadata):
		return e.JSON(http.StatusBadRequest, map[string]any{"success": false, "error": metadata.Error()})
	case errors.As(err, &validation):
		return e.JSON(http.StatusBadRequest, map[string]any{"success": false, "error": validation.Reason})
	case errors.Is(err, status.ErrMissingSigningKey):
		slog.Error("STACKS_PRIVATE_KEY not configured")
		return e.JSON(http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   "Server configuration error: Missing STACKS_PRIVATE_KEY",
		})
	case errors.As(err, &rejected):
		slog.Error("h.minter.SubmitMint()", "req", req, "reason", rejected.Reason, "error", rejected.Err)
		return e.JSON(http.StatusBadRequest, map[string]any{
			"success":    false,
			"txid":       rejected.TxID,
			"error":      rejected.Err,
			"reason":     rejected.Reason,
			"reasonData": rejected.ReasonData,
			"message":    rejected.Error(),
		})
	}

	slog.Error("h.minter.SubmitMint()", "req", req, "error", err)
	body := map[string]any{"success": false, "error": "Transaction error"}
	if !h.production {
		body["details"] = err.Error()
	}
	return e.JSON(http.StatusInternalServerError, body)
}

// GetMintStatus - Job status of a mint transaction
func (h *MintHandler) GetMintStatus(e *core.RequestEvent) error {
	txid := e.Request.PathValue("txid")
	job, err := h.purchases.Job(e.Request.Context(), txid)
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, map[string]any{
		"job":     job,
		"polling": h.purchases.Polling(job.TxID),
	})
}

// CancelMint - Stop polling a mint. The transaction itself is unaffected.
func (h *MintHandler) CancelMint(e *core.RequestEvent) error {
	owner := ""
	if !e.HasSuperuserAuth() {
		sess, err := currentSession(e, h.sessions)
		if err != nil {
			return apiError(err)
		}
		owner = sess.Address
	}

	job, err := h.purchases.Cancel(e.Request.Context(), owner, e.Request.PathValue("txid"))
	if err != nil {
		return apiError(err)
	}
	return e.JSON(http.StatusOK, job)
}

type RecoverRequest struct {
	EventID string `json:"eventId"`
	TxID    string `json:"txid"`
	// Owner is honoured for superusers only.
	Owner string `json:"owner"`
}

// RecoverMint - Poll and reconcile a tx id whose poller was lost
func (h *MintHandler) RecoverMint(e *core.RequestEvent) error {
	var req RecoverRequest
	if err := e.BindBody(&req); err != nil {
		return apis.NewBadRequestError("Invalid request", err)
	}

	owner := req.Owner
	if !e.HasSuperuserAuth() {
		sess, err := currentSession(e, h.sessions)
		if err != nil {
			return apiError(err)
		}
		owner = sess.Address
	}

	job, err := h.purchases.Recover(e.Request.Context(), services.ReconcileInput{
		EventID:  req.EventID,
		Owner:    owner,
		TxID:     req.TxID,
		Operator: e.HasSuperuserAuth(),
	})
	if err != nil {
		slog.Error("h.purchases.Recover()", "req", req, "error", err)
		return apiError(err)
	}
	return e.JSON(http.StatusAccepted, job)
}
