package stacks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"nft-ticket/internal/clarity"
	"nft-ticket/internal/status"
	"nft-ticket/monitoring"
	"nft-ticket/utils"
)

const maxResponseBody = 4 << 20

// ErrTxNotFound is returned while a transaction has not propagated to the API yet.
var ErrTxNotFound = errors.New("stacks: transaction not found")

// APIError is a non-retryable 4xx answer from the chain API.
type APIError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: API error: %d", e.Op, e.StatusCode)
}

type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
}

type Client struct {
	// baseURL is the Hiro API root, e.g. https://api.testnet.hiro.so.
	baseURL string

	// cb guards every outbound call.
	cb *utils.CircuitBreaker

	hc *http.Client
}

func NewClient(c ClientConfig) *Client {
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(c.BaseURL, "/"),
		cb: utils.NewCircuitBreakerWithConfig(utils.BreakerConfig{
			Name:          "stacks-api",
			OnStateChange: monitoring.BreakerStateChanged,
		}),
		hc: &http.Client{Timeout: timeout},
	}
}

type reply struct {
	statusCode int
	body       []byte
}

// do executes req through the circuit breaker. Transport failures, 429 and
// 5xx answers come back as *status.NetworkError; everything else is returned
// to the caller to interpret.
func (c *Client) do(ctx context.Context, op string, req *http.Request) (*reply, error) {
	start := time.Now()
	res, err := c.cb.Execute(ctx, func() (any, error) {
		resp, err := c.hc.Do(req)
		if err != nil {
			return nil, fmt.Errorf("http.Do: %w", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
		if err != nil {
			return nil, fmt.Errorf("io.ReadAll: %w", err)
		}
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("http status %d", resp.StatusCode)
		}
		return &reply{statusCode: resp.StatusCode, body: body}, nil
	})
	if err != nil {
		monitoring.ObserveUpstream("stacks", op, "error", time.Since(start))
		return nil, &status.NetworkError{Op: op, Err: err}
	}
	r := res.(*reply)
	monitoring.ObserveUpstream("stacks", op, fmt.Sprint(r.statusCode), time.Since(start))
	return r, nil
}

func (c *Client) get(ctx context.Context, op, path string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, fmt.Errorf("%s: http.NewReq: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	r, err := c.do(ctx, op, req)
	if err != nil {
		return 0, err
	}
	if r.statusCode != http.StatusOK {
		return r.statusCode, &APIError{Op: op, StatusCode: r.statusCode, Body: string(r.body)}
	}
	if out != nil {
		if err := json.Unmarshal(r.body, out); err != nil {
			return r.statusCode, fmt.Errorf("%s: json.Unmarshal: %w", op, err)
		}
	}
	return r.statusCode, nil
}

type TxResult struct {
	Hex  string `json:"hex"`
	Repr string `json:"repr"`
}

type TokenTransferInfo struct {
	RecipientAddress string `json:"recipient_address"`
	Amount           string `json:"amount"`
	Memo             string `json:"memo"`
}

type FunctionArg struct {
	Hex  string `json:"hex"`
	Repr string `json:"repr"`
	Name string `json:"name"`
	Type string `json:"type"`
}

// TxContractCall is the contract_call section of a contract-call transaction.
type TxContractCall struct {
	ContractID   string        `json:"contract_id"`
	FunctionName string        `json:"function_name"`
	FunctionArgs []FunctionArg `json:"function_args"`
}

// Tx is the subset of the extended transaction object this service reads.
type Tx struct {
	TxID             string             `json:"tx_id"`
	TxStatus         string             `json:"tx_status"`
	TxType           string             `json:"tx_type"`
	SenderAddress    string             `json:"sender_address"`
	Nonce            uint64             `json:"nonce"`
	BurnBlockTimeISO string             `json:"burn_block_time_iso"`
	ReceiptTimeISO   string             `json:"receipt_time_iso"`
	TxResult         *TxResult          `json:"tx_result,omitempty"`
	TokenTransfer    *TokenTransferInfo `json:"token_transfer,omitempty"`
	ContractCall     *TxContractCall    `json:"contract_call,omitempty"`
}

// Time returns the best timestamp the API reported for the transaction.
func (t *Tx) Time() (time.Time, bool) {
	for _, s := range []string{t.BurnBlockTimeISO, t.ReceiptTimeISO} {
		if s == "" {
			continue
		}
		if ts, err := time.Parse(time.RFC3339, s); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

// GetTransaction fetches a transaction by id. A 404 is ErrTxNotFound.
func (c *Client) GetTransaction(ctx context.Context, txid string) (*Tx, error) {
	id := strings.TrimPrefix(txid, "0x")
	var tx Tx
	code, err := c.get(ctx, "getTransaction", "/extended/v1/tx/"+url.PathEscape(id), &tx)
	if code == http.StatusNotFound {
		return nil, ErrTxNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

// LatestTransaction returns the most recent transaction sent by addr, or nil.
func (c *Client) LatestTransaction(ctx context.Context, addr string) (*Tx, error) {
	var page struct {
		Results []Tx `json:"results"`
	}
	path := fmt.Sprintf("/extended/v1/address/%s/transactions?limit=1", url.PathEscape(addr))
	if _, err := c.get(ctx, "latestTransaction", path, &page); err != nil {
		return nil, err
	}
	if len(page.Results) == 0 {
		return nil, nil
	}
	return &page.Results[0], nil
}

// GetNonce returns the next nonce for addr.
func (c *Client) GetNonce(ctx context.Context, addr string) (uint64, error) {
	var account struct {
		Nonce uint64 `json:"nonce"`
	}
	path := fmt.Sprintf("/v2/accounts/%s?proof=0", url.PathEscape(addr))
	if _, err := c.get(ctx, "getNonce", path, &account); err != nil {
		return 0, err
	}
	return account.Nonce, nil
}

type Balance struct {
	Balance uint64
	Locked  uint64
}

func (c *Client) STXBalance(ctx context.Context, addr string) (Balance, error) {
	var body struct {
		STX struct {
			Balance string `json:"balance"`
			Locked  string `json:"locked"`
		} `json:"stx"`
	}
	path := fmt.Sprintf("/extended/v1/address/%s/balances", url.PathEscape(addr))
	if _, err := c.get(ctx, "stxBalance", path, &body); err != nil {
		return Balance{}, err
	}
	var b Balance
	if v, err := strconv.ParseUint(body.STX.Balance, 10, 64); err == nil {
		b.Balance = v
	}
	if v, err := strconv.ParseUint(body.STX.Locked, 10, 64); err == nil {
		b.Locked = v
	}
	return b, nil
}

type Holding struct {
	AssetIdentifier string
	Value           clarity.Value
	TxID            string
	BlockHeight     int64
}

// NFTHoldings lists up to 50 NFTs held by principal.
func (c *Client) NFTHoldings(ctx context.Context, principal string) ([]Holding, error) {
	var page struct {
		Results []struct {
			AssetIdentifier string   `json:"asset_identifier"`
			Value           TxResult `json:"value"`
			TxID            string   `json:"tx_id"`
			BlockHeight     int64    `json:"block_height"`
		} `json:"results"`
	}
	path := "/extended/v1/tokens/nft/holdings?principal=" + url.QueryEscape(principal) + "&limit=50"
	if _, err := c.get(ctx, "nftHoldings", path, &page); err != nil {
		return nil, err
	}
	holdings := make([]Holding, 0, len(page.Results))
	for _, r := range page.Results {
		v, err := clarity.DecodeHex(r.Value.Hex)
		if err != nil {
			return nil, fmt.Errorf("nftHoldings: %s: %w", r.AssetIdentifier, err)
		}
		holdings = append(holdings, Holding{
			AssetIdentifier: r.AssetIdentifier,
			Value:           v,
			TxID:            r.TxID,
			BlockHeight:     r.BlockHeight,
		})
	}
	return holdings, nil
}

// Broadcast posts a serialized transaction. A rejection is returned as
// *status.BroadcastRejectedError.
func (c *Client) Broadcast(ctx context.Context, raw []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/transactions", bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("broadcast: http.NewReq: %w", err)
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	r, err := c.do(ctx, "broadcast", req)
	if err != nil {
		return "", err
	}
	if r.statusCode == http.StatusOK {
		var txid string
		if err := json.Unmarshal(r.body, &txid); err != nil {
			return "", fmt.Errorf("broadcast: json.Unmarshal: %w", err)
		}
		if !strings.HasPrefix(txid, "0x") {
			txid = "0x" + txid
		}
		return txid, nil
	}

	var rejection struct {
		Error      string         `json:"error"`
		Reason     string         `json:"reason"`
		ReasonData map[string]any `json:"reason_data"`
		TxID       string         `json:"txid"`
	}
	if err := json.Unmarshal(r.body, &rejection); err != nil || rejection.Error == "" {
		return "", &APIError{Op: "broadcast", StatusCode: r.statusCode, Body: string(r.body)}
	}
	return "", &status.BroadcastRejectedError{
		TxID:       rejection.TxID,
		Err:        rejection.Error,
		Reason:     rejection.Reason,
		ReasonData: rejection.ReasonData,
	}
}

// CallReadOnly evaluates a read-only function and decodes its result.
func (c *Client) CallReadOnly(ctx context.Context, contract Contract, fn, sender string, args ...clarity.Value) (clarity.Value, error) {
	encoded := make([]string, 0, len(args))
	for _, a := range args {
		h, err := a.Hex()
		if err != nil {
			return clarity.Value{}, fmt.Errorf("callReadOnly: %s: %w", fn, err)
		}
		encoded = append(encoded, h)
	}
	body, err := json.Marshal(map[string]any{"sender": sender, "arguments": encoded})
	if err != nil {
		return clarity.Value{}, fmt.Errorf("callReadOnly: json.Marshal: %w", err)
	}

	path := fmt.Sprintf("/v2/contracts/call-read/%s/%s/%s", contract.Address, contract.Name, fn)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return clarity.Value{}, fmt.Errorf("callReadOnly: http.NewReq: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	r, err := c.do(ctx, "callReadOnly", req)
	if err != nil {
		return clarity.Value{}, err
	}
	if r.statusCode != http.StatusOK {
		return clarity.Value{}, &APIError{Op: "callReadOnly", StatusCode: r.statusCode, Body: string(r.body)}
	}

	var result struct {
		Okay   bool   `json:"okay"`
		Result string `json:"result"`
		Cause  string `json:"cause"`
	}
	if err := json.Unmarshal(r.body, &result); err != nil {
		return clarity.Value{}, fmt.Errorf("callReadOnly: json.Unmarshal: %w", err)
	}
	if !result.Okay {
		return clarity.Value{}, fmt.Errorf("callReadOnly: %s: %s", fn, result.Cause)
	}
	return clarity.DecodeHex(result.Result)
}
