package pinata

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"nft-ticket/internal/status"
	"nft-ticket/monitoring"
	"nft-ticket/utils"
)

const DefaultBaseURL = "https://api.pinata.cloud"

// CID is an IPFS content identifier returned by the pinning service.
type CID string

// URI is the canonical ipfs:// form stored in events and token metadata.
func (c CID) URI() string {
	return "ipfs://" + string(c)
}

// GatewayURL rewrites an ipfs:// URI onto an HTTP gateway. Other URIs are
// returned unchanged.
func GatewayURL(gateway, uri string) string {
	cid, ok := strings.CutPrefix(uri, "ipfs://")
	if !ok {
		return uri
	}
	return strings.TrimRight(gateway, "/") + "/ipfs/" + cid
}

type Config struct {
	BaseURL      string
	APIKey       string
	SecretAPIKey string
	Timeout      time.Duration
}

type Client struct {
	baseURL      string
	apiKey       string
	secretAPIKey string

	cb *utils.CircuitBreaker
	hc *http.Client
}

func NewClient(c Config) *Client {
	baseURL := c.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := c.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       c.APIKey,
		secretAPIKey: c.SecretAPIKey,
		cb: utils.NewCircuitBreakerWithConfig(utils.BreakerConfig{
			Name:          "pinata",
			OnStateChange: monitoring.BreakerStateChanged,
		}),
		hc: &http.Client{Timeout: timeout},
	}
}

// PinFile uploads raw bytes under the given file name.
func (c *Client) PinFile(ctx context.Context, name string, data []byte) (CID, error) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("pinFile: multipart: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("pinFile: multipart: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("pinFile: multipart: %w", err)
	}
	return c.pin(ctx, "pinFile", "/pinning/pinFileToIPFS", w.FormDataContentType(), &body)
}

// PinJSON uploads v as a JSON document.
func (c *Client) PinJSON(ctx context.Context, v any) (CID, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("pinJSON: json.Marshal: %w", err)
	}
	return c.pin(ctx, "pinJSON", "/pinning/pinJSONToIPFS", "application/json", bytes.NewReader(raw))
}

func (c *Client) pin(ctx context.Context, op, path, contentType string, body io.Reader) (CID, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, body)
	if err != nil {
		return "", fmt.Errorf("%s: http.NewReq: %w", op, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("pinata_api_key", c.apiKey)
	req.Header.Set("pinata_secret_api_key", c.secretAPIKey)

	start := time.Now()
	res, err := c.cb.Execute(ctx, func() (any, error) {
		resp, err := c.hc.Do(req)
		if err != nil {
			return nil, fmt.Errorf("http.Do: %w", err)
		}
		defer resp.Body.Close()

		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("http status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
			if resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return nil, utils.Permanent(err)
			}
			return nil, err
		}
		return raw, nil
	})
	if err != nil {
		monitoring.ObserveUpstream("pinata", op, "error", time.Since(start))
		return "", &status.NetworkError{Op: op, Err: err}
	}
	monitoring.ObserveUpstream("pinata", op, "200", time.Since(start))

	var reply struct {
		IpfsHash string `json:"IpfsHash"`
	}
	if err := json.Unmarshal(res.([]byte), &reply); err != nil {
		return "", fmt.Errorf("%s: json.Unmarshal: %w", op, err)
	}
	if reply.IpfsHash == "" {
		return "", fmt.Errorf("%s: empty IpfsHash", op)
	}
	return CID(reply.IpfsHash), nil
}
