package across

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"noctiluca-tools/pkg/retry"
	"noctiluca-tools/pkg/types"
)

// DefaultAPIURL is the Across Protocol API endpoint.
const DefaultAPIURL = "https://app.across.to/api"

// quoteTTL bounds how long a returned quote (and the order built from it)
// stays valid. The swap API does not return an explicit deadline, so the
// quoted calldata is treated as stale after this window.
const quoteTTL = 5 * time.Minute

const (
	quoteAttempts    = 3
	quoteBackoffBase = time.Second
	quoteBackoffMax  = 5 * time.Second
)

// Client talks to the Across Protocol API.
type Client struct {
	baseURL string
	hc      *http.Client
	log     zerolog.Logger
}

// NewClient creates an Across API client. baseURL defaults to the public
// deployment when empty.
func NewClient(baseURL string, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	return &Client{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

// TxPayload is a transaction the API asks the depositor to execute.
type TxPayload struct {
	To    string `json:"to"`
	Data  string `json:"data"`
	Value string `json:"value"`
}

// QuoteHandle is the raw bridge quote: the deposit transaction to sign plus
// any approvals the API considers missing. It is replayed verbatim into the
// built order.
type QuoteHandle struct {
	ExpectedOutput string      `json:"expectedOutput"`
	ApprovalTxns   []TxPayload `json:"approvalTxns"`
	SwapTx         *TxPayload  `json:"swapTx"`
}

// GetQuote requests a bridge quote for moving amount of source to dest and
// normalizes it. The bridge fee is the quoted input/output difference.
func (c *Client) GetQuote(ctx context.Context, source, dest types.Asset, amount *big.Int, depositor, recipient common.Address) (*types.Quote, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("bridge amount must be positive")
	}

	params := url.Values{}
	params.Set("tradeType", "exactInput")
	params.Set("amount", amount.String())
	params.Set("inputToken", source.Address.Hex())
	params.Set("outputToken", dest.Address.Hex())
	params.Set("originChainId", strconv.FormatUint(source.ChainID, 10))
	params.Set("destinationChainId", strconv.FormatUint(dest.ChainID, 10))
	params.Set("depositor", depositor.Hex())
	params.Set("recipient", recipient.Hex())
	params.Set("slippage", "auto")

	// Transient I/O failures are retried locally with backoff.
	var body []byte
	err := retry.Do(ctx, quoteAttempts, quoteBackoffBase, quoteBackoffMax, func() error {
		var reqErr error
		body, reqErr = c.get(ctx, "bridge quote request", "/swap/approval?"+params.Encode())
		return reqErr
	})
	if err != nil {
		return nil, err
	}

	var handle QuoteHandle
	if err := json.Unmarshal(body, &handle); err != nil {
		return nil, fmt.Errorf("malformed bridge quote response: %w", err)
	}
	if handle.SwapTx == nil || handle.SwapTx.To == "" || handle.SwapTx.Data == "" {
		return nil, fmt.Errorf("bridge quote response missing deposit transaction")
	}
	expected, ok := new(big.Int).SetString(handle.ExpectedOutput, 10)
	if !ok {
		return nil, fmt.Errorf("invalid expected output in bridge quote: %q", handle.ExpectedOutput)
	}
	if expected.Sign() == 0 {
		return nil, fmt.Errorf("quoted bridge output is zero: %w", types.ErrNoLiquidity)
	}

	fee := new(big.Int).Sub(amount, expected)
	if fee.Sign() < 0 {
		fee = big.NewInt(0)
	}

	return &types.Quote{
		Protocol:  types.ProtocolBridge,
		Source:    source,
		Dest:      dest,
		AmountIn:  amount,
		AmountOut: expected,
		Fee:       fee,
		Deadline:  time.Now().Add(quoteTTL),
		Handle:    json.RawMessage(body),
	}, nil
}

// DepositStatus is the API's view of a bridge deposit.
type DepositStatus struct {
	Status     string `json:"status"`
	FillTx     string `json:"fillTx"`
	DepositID  string `json:"depositId"`
	FillStatus string `json:"fillStatus"`
}

// GetDepositStatus queries fill progress for a deposit transaction on the
// origin chain.
func (c *Client) GetDepositStatus(ctx context.Context, originChainID uint64, depositTxHash string) (*DepositStatus, error) {
	params := url.Values{}
	params.Set("originChainId", strconv.FormatUint(originChainID, 10))
	params.Set("depositTxHash", depositTxHash)

	body, err := c.get(ctx, "deposit status query", "/deposit/status?"+params.Encode())
	if err != nil {
		return nil, err
	}

	var status DepositStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("malformed deposit status response: %w", err)
	}
	if status.Status == "" {
		return nil, fmt.Errorf("deposit status response missing status field")
	}
	return &status, nil
}

// get performs one API read. Network errors and 5xx responses are
// transient; other non-200 responses are protocol errors.
func (c *Client) get(ctx context.Context, op, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, types.Transient(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.Transient(op, err)
	}
	if resp.StatusCode >= 500 {
		return nil, types.Transient(op, fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}
