package cowswap

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/rs/zerolog"

	"noctiluca-tools/pkg/retry"
	"noctiluca-tools/pkg/types"
)

// Base chain deployment of the CoW settlement contracts. The vault relayer
// is the spender orders must be approved for.
var (
	SettlementContract = common.HexToAddress("0x9008D19f58AAbD9eD0D60971565AA8510560ab41")
	VaultRelayer       = common.HexToAddress("0xC92E8bdf79f0507f65a392b0ab4667716BFE0110")
)

// DefaultAPIURL is the CoW Protocol orderbook endpoint for Base.
const DefaultAPIURL = "https://api.cow.fi/base/api/v1"

// minQuoteValidity guards against clock skew: quotes with less remaining
// validity than this are rejected at receipt time.
const minQuoteValidity = 30 * time.Second

const (
	quoteAttempts    = 3
	quoteBackoffBase = time.Second
	quoteBackoffMax  = 5 * time.Second
)

// Client talks to the CoW Protocol orderbook API.
type Client struct {
	baseURL string
	hc      *http.Client
	log     zerolog.Logger
}

// NewClient creates an orderbook client. baseURL defaults to the Base
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

type quoteRequest struct {
	SellToken           string `json:"sellToken"`
	BuyToken            string `json:"buyToken"`
	SellAmountBeforeFee string `json:"sellAmountBeforeFee"`
	From                string `json:"from"`
	Receiver            string `json:"receiver"`
	Kind                string `json:"kind"`
	SigningScheme       string `json:"signingScheme"`
}

type quotePayload struct {
	SellToken  string `json:"sellToken"`
	BuyToken   string `json:"buyToken"`
	SellAmount string `json:"sellAmount"`
	BuyAmount  string `json:"buyAmount"`
	FeeAmount  string `json:"feeAmount"`
	ValidTo    uint32 `json:"validTo"`
}

type quoteResponse struct {
	Quote quotePayload `json:"quote"`
	ID    *int64       `json:"id"`
}

type apiError struct {
	ErrorType   string `json:"errorType"`
	Description string `json:"description"`
}

// GetQuote requests a sell quote for source→dest and normalizes the response.
// The raw response body is preserved as the quote handle.
func (c *Client) GetQuote(ctx context.Context, source, dest types.Asset, amountIn *big.Int, from, receiver common.Address) (*types.Quote, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return nil, fmt.Errorf("sell amount must be positive")
	}

	reqBody, err := json.Marshal(quoteRequest{
		SellToken:           source.Address.Hex(),
		BuyToken:            dest.Address.Hex(),
		SellAmountBeforeFee: amountIn.String(),
		From:                from.Hex(),
		Receiver:            receiver.Hex(),
		Kind:                "sell",
		SigningScheme:       "eip712",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode quote request: %w", err)
	}

	// Transient I/O failures are retried locally with backoff.
	var body []byte
	err = retry.Do(ctx, quoteAttempts, quoteBackoffBase, quoteBackoffMax, func() error {
		var postErr error
		body, postErr = c.post(ctx, "/quote", reqBody)
		return postErr
	})
	if err != nil {
		return nil, err
	}

	var resp quoteResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("malformed quote response: %w", err)
	}
	if resp.Quote.SellAmount == "" || resp.Quote.BuyAmount == "" || resp.Quote.ValidTo == 0 {
		return nil, fmt.Errorf("quote response missing required fields")
	}

	sellAmount, ok := new(big.Int).SetString(resp.Quote.SellAmount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid sell amount in quote: %s", resp.Quote.SellAmount)
	}
	buyAmount, ok := new(big.Int).SetString(resp.Quote.BuyAmount, 10)
	if !ok {
		return nil, fmt.Errorf("invalid buy amount in quote: %s", resp.Quote.BuyAmount)
	}
	fee := big.NewInt(0)
	if resp.Quote.FeeAmount != "" {
		if fee, ok = new(big.Int).SetString(resp.Quote.FeeAmount, 10); !ok {
			return nil, fmt.Errorf("invalid fee amount in quote: %s", resp.Quote.FeeAmount)
		}
	}

	if buyAmount.Sign() == 0 {
		return nil, fmt.Errorf("quoted output is zero: %w", types.ErrNoLiquidity)
	}
	deadline := time.Unix(int64(resp.Quote.ValidTo), 0)
	if time.Until(deadline) < minQuoteValidity {
		return nil, fmt.Errorf("quote validity window too short: %w", types.ErrNoLiquidity)
	}

	return &types.Quote{
		Protocol:  types.ProtocolGaslessSwap,
		Source:    source,
		Dest:      dest,
		AmountIn:  sellAmount,
		AmountOut: buyAmount,
		Fee:       fee,
		Deadline:  deadline,
		Handle:    json.RawMessage(body),
	}, nil
}

type orderPayload struct {
	SellToken         string `json:"sellToken"`
	BuyToken          string `json:"buyToken"`
	Receiver          string `json:"receiver"`
	SellAmount        string `json:"sellAmount"`
	BuyAmount         string `json:"buyAmount"`
	ValidTo           uint32 `json:"validTo"`
	AppData           string `json:"appData"`
	FeeAmount         string `json:"feeAmount"`
	Kind              string `json:"kind"`
	PartiallyFillable bool   `json:"partiallyFillable"`
	SellTokenBalance  string `json:"sellTokenBalance"`
	BuyTokenBalance   string `json:"buyTokenBalance"`
	SigningScheme     string `json:"signingScheme"`
	Signature         string `json:"signature"`
	From              string `json:"from"`
}

// SubmitOrder posts a signed order to the orderbook and returns its UID.
// Explicit 4xx rejections map to ErrSubmissionRejected; network and 5xx
// failures are transient.
func (c *Client) SubmitOrder(ctx context.Context, order *types.SignedOrder) (string, error) {
	payload := orderPayload{
		SellToken:         order.Quote.Source.Address.Hex(),
		BuyToken:          order.Quote.Dest.Address.Hex(),
		Receiver:          order.Receiver.Hex(),
		SellAmount:        order.Quote.AmountIn.String(),
		BuyAmount:         order.Quote.AmountOut.String(),
		ValidTo:           uint32(order.Quote.Deadline.Unix()),
		AppData:           hexutil.Encode(order.Salt[:]),
		FeeAmount:         order.Quote.Fee.String(),
		Kind:              "sell",
		PartiallyFillable: false,
		SellTokenBalance:  "erc20",
		BuyTokenBalance:   "erc20",
		SigningScheme:     "eip712",
		Signature:         hexutil.Encode(order.Signature),
		From:              order.Signer.Hex(),
	}
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return "", types.Transient("order submission", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", types.Transient("order submission", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var uid string
		if err := json.Unmarshal(body, &uid); err != nil || uid == "" {
			return "", fmt.Errorf("malformed order submission response: %s", string(body))
		}
		return uid, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return "", fmt.Errorf("%w: %s", types.ErrSubmissionRejected, describeError(body))
	default:
		return "", types.Transient("order submission", fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}
}

// OrderStatus is the orderbook's view of a submitted order.
type OrderStatus struct {
	UID                string `json:"uid"`
	Status             string `json:"status"`
	ExecutedSellAmount string `json:"executedSellAmount"`
	ExecutedBuyAmount  string `json:"executedBuyAmount"`
}

// GetOrder fetches the current status of an order by UID.
func (c *Client) GetOrder(ctx context.Context, uid string) (*OrderStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/orders/"+uid, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, types.Transient("order status query", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.Transient("order status query", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, types.Transient("order status query", fmt.Errorf("status %d: %s", resp.StatusCode, string(body)))
	}

	var status OrderStatus
	if err := json.Unmarshal(body, &status); err != nil {
		return nil, fmt.Errorf("malformed order status response: %w", err)
	}
	if status.Status == "" {
		return nil, fmt.Errorf("order status response missing status field")
	}
	return &status, nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, types.Transient("quote request", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.Transient("quote request", err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return respBody, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.ErrorType != "" {
			if apiErr.ErrorType == "NoLiquidity" || apiErr.ErrorType == "SellAmountDoesNotCoverFee" {
				return nil, fmt.Errorf("%s: %w", apiErr.Description, types.ErrNoLiquidity)
			}
			return nil, fmt.Errorf("API error %s: %s", apiErr.ErrorType, apiErr.Description)
		}
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	default:
		return nil, types.Transient("quote request", fmt.Errorf("status %d: %s", resp.StatusCode, string(respBody)))
	}
}

func describeError(body []byte) string {
	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.ErrorType != "" {
		return fmt.Sprintf("%s: %s", apiErr.ErrorType, apiErr.Description)
	}
	return string(body)
}

func itoa(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}
