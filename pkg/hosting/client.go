// Package hosting is a client for the EDIS Global VPS order API, the
// spend leg of the value-transfer workflow. Orders are paid through the
// provider's crypto processor with bridged Polygon USDC.
package hosting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"noctiluca-tools/pkg/types"
)

// DefaultAPIURL is the EDIS Global KVM order API endpoint.
const DefaultAPIURL = "https://order.edisglobal.com/kvm/v2"

// PaymentMethodCrypto is the processor that accepts Polygon USDC.
const PaymentMethodCrypto = "cryptomus"

// Credentials authenticate every API call. The password is deliberately
// excluded from String and JSON output.
type Credentials struct {
	Email    string
	Password string
}

// String renders the credentials without the password.
func (c Credentials) String() string {
	return c.Email + ":***"
}

// ParseCredentials reads the email:password form used by the credential
// file.
func ParseCredentials(s string) (Credentials, error) {
	s = strings.TrimSpace(s)
	email, password, ok := strings.Cut(s, ":")
	if !ok || email == "" || password == "" {
		return Credentials{}, fmt.Errorf("hosting credentials must use email:password format")
	}
	return Credentials{Email: email, Password: password}, nil
}

// Client talks to the hosting provider's order API.
type Client struct {
	baseURL string
	creds   Credentials
	hc      *http.Client
	log     zerolog.Logger
}

// NewClient creates a hosting API client. baseURL defaults to the public
// deployment when empty.
func NewClient(baseURL string, creds Credentials, log zerolog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	return &Client{
		baseURL: baseURL,
		creds:   creds,
		hc:      &http.Client{Timeout: 30 * time.Second},
		log:     log,
	}
}

// Location is a datacenter a VPS can be ordered in.
type Location struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Country    string `json:"country"`
	OutOfStock bool   `json:"out_of_stock"`
}

type locationsResponse struct {
	Locations map[string]Location `json:"locations"`
}

// Locations lists datacenters, in-stock first and sorted by ID within
// each group.
func (c *Client) Locations(ctx context.Context) ([]Location, error) {
	body, err := c.postForm(ctx, "get/locations", nil)
	if err != nil {
		return nil, err
	}

	var resp locationsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("malformed locations response: %w", err)
	}
	if len(resp.Locations) == 0 {
		return nil, fmt.Errorf("locations response is empty")
	}

	locations := make([]Location, 0, len(resp.Locations))
	for _, loc := range resp.Locations {
		locations = append(locations, loc)
	}
	sort.Slice(locations, func(i, j int) bool {
		if locations[i].OutOfStock != locations[j].OutOfStock {
			return !locations[i].OutOfStock
		}
		return locations[i].ID < locations[j].ID
	})
	return locations, nil
}

// Products lists the plans available in a location. The response shape
// varies per location, so the raw document is returned.
func (c *Client) Products(ctx context.Context, locationID int) (json.RawMessage, error) {
	body, err := c.postForm(ctx, "get/products", url.Values{
		"location": {strconv.Itoa(locationID)},
	})
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("malformed products response")
	}
	return json.RawMessage(body), nil
}

type paymentMethodsResponse struct {
	PaymentMethods []string `json:"paymentmethods"`
}

// PaymentMethods lists the provider's accepted payment processors.
func (c *Client) PaymentMethods(ctx context.Context) ([]string, error) {
	body, err := c.postForm(ctx, "get/paymentmethods", nil)
	if err != nil {
		return nil, err
	}

	var resp paymentMethodsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("malformed payment methods response: %w", err)
	}
	if len(resp.PaymentMethods) == 0 {
		return nil, fmt.Errorf("payment methods response is empty")
	}
	return resp.PaymentMethods, nil
}

// SupportsCrypto reports whether the crypto processor is offered.
func (c *Client) SupportsCrypto(ctx context.Context) (bool, error) {
	methods, err := c.PaymentMethods(ctx)
	if err != nil {
		return false, err
	}
	for _, m := range methods {
		if m == PaymentMethodCrypto {
			return true, nil
		}
	}
	return false, nil
}

// OrderItem describes one VPS in an order.
type OrderItem struct {
	ProductID      int    `json:"pid"`
	OS             int    `json:"os"`
	Hostname       string `json:"hostname"`
	AdditionalRAM  string `json:"additional_ram"`
	AdditionalVCPU string `json:"additional_vcpu"`
	AdditionalIP   string `json:"additional_ip"`
	AdditionalDisk string `json:"additional_diskboost"`
	SSHPublicKey   string `json:"ssh_pubkey"`
}

type orderRequest struct {
	Email         string      `json:"email"`
	Password      string      `json:"pw"`
	BillingCycle  string      `json:"billingcycle"`
	PaymentMethod string      `json:"paymentmethod"`
	ApplyCredit   bool        `json:"applycredit"`
	Items         []OrderItem `json:"item"`
}

// Order places a VPS order billed monthly through the crypto processor,
// consuming any account credit first. The raw order confirmation is
// returned for the caller to surface.
func (c *Client) Order(ctx context.Context, item OrderItem) (json.RawMessage, error) {
	if item.ProductID <= 0 {
		return nil, fmt.Errorf("order requires a product ID")
	}
	if item.Hostname == "" {
		return nil, fmt.Errorf("order requires a hostname")
	}

	reqBody, err := json.Marshal(orderRequest{
		Email:         c.creds.Email,
		Password:      c.creds.Password,
		BillingCycle:  "monthly",
		PaymentMethod: PaymentMethodCrypto,
		ApplyCredit:   true,
		Items:         []OrderItem{item},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/add/order", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := c.do(req, "order placement")
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("malformed order response")
	}

	c.log.Info().Int("product", item.ProductID).Str("hostname", item.Hostname).Msg("hosting order placed")
	return json.RawMessage(body), nil
}

// postForm sends credentials plus extra form fields to an API read
// endpoint.
func (c *Client) postForm(ctx context.Context, endpoint string, extra url.Values) ([]byte, error) {
	form := url.Values{
		"email": {c.creds.Email},
		"pw":    {c.creds.Password},
	}
	for key, vals := range extra {
		form[key] = vals
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/"+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return c.do(req, "hosting API request")
}

func (c *Client) do(req *http.Request, op string) ([]byte, error) {
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
		return nil, fmt.Errorf("hosting API error (status %d): %s", resp.StatusCode, string(body))
	}
	return body, nil
}
