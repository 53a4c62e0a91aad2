package jupiter

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
)

const (
	DefaultBaseURL = "https://api.jup.ag/swap/v1"
	DefaultTimeout = 30 * time.Second
)

// Quote keeps the raw response so it can be handed back to /swap untouched.
type Quote struct {
	InputMint  string
	OutputMint string
	InAmount   uint64
	OutAmount  uint64
	// PriceImpactPct is the route's estimated price impact in percent.
	PriceImpactPct decimal.Decimal
	Raw            json.RawMessage
}

type quoteFields struct {
	InputMint  string `json:"inputMint"`
	OutputMint string `json:"outputMint"`
	InAmount   string `json:"inAmount"`
	OutAmount  string `json:"outAmount"`
	// PriceImpact is a decimal string such as "0.0012".
	PriceImpact string `json:"priceImpactPct"`
	Error       string `json:"error"`
}

type swapRequest struct {
	QuoteResponse             json.RawMessage `json:"quoteResponse"`
	UserPublicKey             string          `json:"userPublicKey"`
	WrapAndUnwrapSol          bool            `json:"wrapAndUnwrapSol"`
	PrioritizationFeeLamports uint64          `json:"prioritizationFeeLamports,omitempty"`
}

type swapResponse struct {
	SwapTransaction string `json:"swapTransaction"`
	Error           string `json:"error"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

func (c *Client) Quote(ctx context.Context, inputMint, outputMint solana.PublicKey, amount uint64, slippageBps uint16) (*Quote, error) {
	query := url.Values{}
	query.Set("inputMint", inputMint.String())
	query.Set("outputMint", outputMint.String())
	query.Set("amount", strconv.FormatUint(amount, 10))
	query.Set("slippageBps", strconv.FormatUint(uint64(slippageBps), 10))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/quote?"+query.Encode(), nil)
	if err != nil {
		return nil, err
	}
	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("quote: %w", err)
	}
	fields := quoteFields{}
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("quote: decode response: %w", err)
	}
	if fields.Error != "" {
		return nil, fmt.Errorf("quote: %s", fields.Error)
	}
	quote := &Quote{
		InputMint:  fields.InputMint,
		OutputMint: fields.OutputMint,
		Raw:        json.RawMessage(body),
	}
	if quote.InAmount, err = strconv.ParseUint(fields.InAmount, 10, 64); err != nil {
		return nil, fmt.Errorf("quote: inAmount %q: %w", fields.InAmount, err)
	}
	if quote.OutAmount, err = strconv.ParseUint(fields.OutAmount, 10, 64); err != nil {
		return nil, fmt.Errorf("quote: outAmount %q: %w", fields.OutAmount, err)
	}
	if fields.PriceImpact != "" {
		if quote.PriceImpactPct, err = decimal.NewFromString(fields.PriceImpact); err != nil {
			return nil, fmt.Errorf("quote: priceImpactPct %q: %w", fields.PriceImpact, err)
		}
	}
	return quote, nil
}

// SwapTransaction asks the aggregator to build the swap for quote and
// returns the decoded, still unsigned, transaction bytes.
func (c *Client) SwapTransaction(ctx context.Context, quote *Quote, user solana.PublicKey, priorityFeeLamports uint64) ([]byte, error) {
	payload, err := json.Marshal(swapRequest{
		QuoteResponse:             quote.Raw,
		UserPublicKey:             user.String(),
		WrapAndUnwrapSol:          true,
		PrioritizationFeeLamports: priorityFeeLamports,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/swap", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("swap: %w", err)
	}
	resp := swapResponse{}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("swap: decode response: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("swap: %s", resp.Error)
	}
	if resp.SwapTransaction == "" {
		return nil, fmt.Errorf("swap: no swapTransaction in response")
	}
	raw, err := base64.StdEncoding.DecodeString(resp.SwapTransaction)
	if err != nil {
		return nil, fmt.Errorf("swap: decode transaction: %w", err)
	}
	return raw, nil
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}
	return body, nil
}
