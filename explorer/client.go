// Package explorer implements a block-explorer transaction-history client
// compatible with the Etherscan account API.
package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/criptoarchi/txcontroller"
)

const (
	// DefaultBaseURL is the Etherscan API base URL
	DefaultBaseURL = "https://api.etherscan.io"

	httpTimeout = 30 * time.Second

	// maxResponseBody bounds how much of a response is read (4 MB; history
	// pages can carry thousands of entries)
	maxResponseBody = 4 << 20
)

var (
	// ErrAPIError indicates the explorer API returned an error response
	ErrAPIError = errors.New("explorer API returned an error")

	// ErrRateLimited indicates the explorer API rate limit was exceeded
	ErrRateLimited = errors.New("explorer API rate limit exceeded")
)

// apiResponse is the standard explorer response envelope. Result is left raw
// because its shape depends on the action: an entry array on success, an
// explanatory string on failure.
type apiResponse struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

// historyEntry mirrors one entry of the txlist/tokentx result arrays. All
// numeric fields arrive as decimal strings.
type historyEntry struct {
	BlockNumber     string `json:"blockNumber"`
	TimeStamp       string `json:"timeStamp"`
	Hash            string `json:"hash"`
	Nonce           string `json:"nonce"`
	From            string `json:"from"`
	To              string `json:"to"`
	Value           string `json:"value"`
	Gas             string `json:"gas"`
	GasPrice        string `json:"gasPrice"`
	IsError         string `json:"isError"`
	Confirmations   string `json:"confirmations"`
	ContractAddress string `json:"contractAddress"`
	TokenDecimal    string `json:"tokenDecimal"`
	TokenSymbol     string `json:"tokenSymbol"`
}

// Client queries an Etherscan-compatible explorer for account transaction
// history. It satisfies the controller's HistorySource interface.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *RateLimiter
}

// ClientOptions configures the explorer client
type ClientOptions struct {
	// BaseURL overrides the default explorer API URL (useful for testing)
	BaseURL string
	// HTTPClient overrides the default HTTP client
	HTTPClient *http.Client
	// RateLimiter overrides the default limiter (5 req/s, burst 5)
	RateLimiter *RateLimiter
}

// NewClient creates an explorer client. The API key travels per request in
// HistoryQuery, so one client can serve multiple keys.
func NewClient(opts *ClientOptions) *Client {
	c := &Client{
		baseURL:     DefaultBaseURL,
		httpClient:  &http.Client{Timeout: httpTimeout},
		rateLimiter: NewRateLimiter(5, 5),
	}
	if opts != nil {
		if opts.BaseURL != "" {
			c.baseURL = opts.BaseURL
		}
		if opts.HTTPClient != nil {
			c.httpClient = opts.HTTPClient
		}
		if opts.RateLimiter != nil {
			c.rateLimiter = opts.RateLimiter
		}
	}
	return c
}

// NativeTransactions fetches the account's native-asset transaction list
// starting at q.FromBlock
func (c *Client) NativeTransactions(ctx context.Context, q txcontroller.HistoryQuery) ([]txcontroller.RemoteTx, error) {
	return c.fetchList(ctx, "txlist", q)
}

// TokenTransfers fetches the account's token-transfer events starting at
// q.FromBlock
func (c *Client) TokenTransfers(ctx context.Context, q txcontroller.HistoryQuery) ([]txcontroller.RemoteTx, error) {
	return c.fetchList(ctx, "tokentx", q)
}

func (c *Client) fetchList(ctx context.Context, action string, q txcontroller.HistoryQuery) ([]txcontroller.RemoteTx, error) {
	params := url.Values{}
	params.Set("module", "account")
	params.Set("action", action)
	params.Set("address", strings.ToLower(q.Address.Hex()))
	params.Set("startBlock", strconv.FormatUint(q.FromBlock, 10))
	params.Set("sort", "asc")
	if q.APIKey != "" {
		params.Set("apikey", q.APIKey)
	}

	raw, err := c.doRequest(ctx, action, params)
	if err != nil {
		return nil, err
	}

	var entries []historyEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parsing %s result: %w", action, err)
	}

	out := make([]txcontroller.RemoteTx, 0, len(entries))
	for _, e := range entries {
		tx, err := e.toRemoteTx()
		if err != nil {
			return nil, fmt.Errorf("malformed %s entry %s: %w", action, e.Hash, err)
		}
		out = append(out, tx)
	}
	return out, nil
}

func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	if err := c.rateLimiter.Wait(ctx, endpoint); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	reqURL := fmt.Sprintf("%s/api?%s", c.baseURL, params.Encode())
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrAPIError, resp.StatusCode, truncate(string(body), 512))
	}

	var apiResp apiResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return nil, fmt.Errorf("parsing response: %w", err)
	}

	if apiResp.Status != "1" {
		// "No transactions found" comes back with status "0" and an empty
		// result array; it is a valid empty page, not a failure.
		if apiResp.Message == "No transactions found" {
			return json.RawMessage("[]"), nil
		}
		var detail string
		_ = json.Unmarshal(apiResp.Result, &detail)
		if detail == "Max rate limit reached" {
			return nil, ErrRateLimited
		}
		return nil, fmt.Errorf("%w: %s: %s", ErrAPIError, apiResp.Message, truncate(detail, 256))
	}

	return apiResp.Result, nil
}

func (e historyEntry) toRemoteTx() (txcontroller.RemoteTx, error) {
	var tx txcontroller.RemoteTx

	block, err := strconv.ParseUint(e.BlockNumber, 10, 64)
	if err != nil {
		return tx, fmt.Errorf("blockNumber %q: %w", e.BlockNumber, err)
	}
	ts, err := strconv.ParseInt(e.TimeStamp, 10, 64)
	if err != nil {
		return tx, fmt.Errorf("timeStamp %q: %w", e.TimeStamp, err)
	}
	nonce, err := strconv.ParseUint(e.Nonce, 10, 64)
	if err != nil {
		return tx, fmt.Errorf("nonce %q: %w", e.Nonce, err)
	}
	gas, err := strconv.ParseUint(e.Gas, 10, 64)
	if err != nil {
		return tx, fmt.Errorf("gas %q: %w", e.Gas, err)
	}
	confirmations, err := strconv.ParseUint(e.Confirmations, 10, 64)
	if err != nil {
		return tx, fmt.Errorf("confirmations %q: %w", e.Confirmations, err)
	}
	value, ok := new(big.Int).SetString(e.Value, 10)
	if !ok {
		return tx, fmt.Errorf("value %q is not a decimal number", e.Value)
	}
	gasPrice, ok := new(big.Int).SetString(e.GasPrice, 10)
	if !ok {
		return tx, fmt.Errorf("gasPrice %q is not a decimal number", e.GasPrice)
	}

	tx = txcontroller.RemoteTx{
		BlockNumber:   block,
		TimeStamp:     ts,
		Hash:          common.HexToHash(e.Hash),
		Nonce:         nonce,
		From:          common.HexToAddress(e.From),
		To:            common.HexToAddress(e.To),
		Value:         value,
		Gas:           gas,
		GasPrice:      gasPrice,
		IsError:       e.IsError == "1",
		Confirmations: confirmations,
	}

	if e.ContractAddress != "" {
		addr := common.HexToAddress(e.ContractAddress)
		tx.ContractAddress = &addr
		if e.TokenDecimal != "" {
			dec, err := strconv.ParseUint(e.TokenDecimal, 10, 8)
			if err != nil {
				return tx, fmt.Errorf("tokenDecimal %q: %w", e.TokenDecimal, err)
			}
			tx.TokenDecimals = uint8(dec)
		}
		tx.TokenSymbol = e.TokenSymbol
	}
	return tx, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
