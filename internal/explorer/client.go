// internal/explorer/client.go
// Package explorer provides a client for the configured block explorer.
// It resolves transaction status and builds human-facing links for wishes.
package explorer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrNotFound is returned when the explorer does not know the transaction.
var ErrNotFound = errors.New("transaction not found")

// Client talks to a Blockscout-compatible explorer API.
type Client struct {
	base string       // Base URL of the explorer
	hc   *http.Client // HTTP client with custom configuration
}

// Transaction is the subset of explorer transaction data the service exposes.
type Transaction struct {
	Hash        string `json:"hash"`
	Status      string `json:"status"` // "ok" or "error"
	BlockNumber uint64 `json:"block"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"` // Base units as a decimal string
}

// New creates a new explorer client with the specified base URL.
// It configures short timeouts so a slow explorer never stalls a request.
func New(baseURL string) *Client {
	transport := &http.Transport{
		DialContext: (&net.Dialer{Timeout: 2 * time.Second}).DialContext,
	}
	return &Client{
		base: strings.TrimSuffix(baseURL, "/"),
		hc:   &http.Client{Transport: transport, Timeout: 3 * time.Second},
	}
}

// TxURL returns the explorer page for a transaction.
func (c *Client) TxURL(txHash string) string {
	return fmt.Sprintf("%s/tx/%s", c.base, txHash)
}

// AddressURL returns the explorer page for an account.
func (c *Client) AddressURL(address string) string {
	return fmt.Sprintf("%s/address/%s", c.base, address)
}

// explorerTx mirrors the Blockscout v2 transaction response fields we read.
type explorerTx struct {
	Hash        string `json:"hash"`
	Status      string `json:"status"`
	BlockNumber uint64 `json:"block_number"`
	From        struct {
		Hash string `json:"hash"`
	} `json:"from"`
	To struct {
		Hash string `json:"hash"`
	} `json:"to"`
	Value string `json:"value"`
}

// GetTransaction fetches one transaction from the explorer API.
func (c *Client) GetTransaction(ctx context.Context, txHash string) (Transaction, error) {
	u, err := url.Parse(c.base)
	if err != nil {
		return Transaction{}, fmt.Errorf("explorer base url: %w", err)
	}
	u.Path = "/api/v2/transactions/" + txHash

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Transaction{}, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return Transaction{}, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var raw explorerTx
		if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
			return Transaction{}, err
		}
		return Transaction{
			Hash:        raw.Hash,
			Status:      raw.Status,
			BlockNumber: raw.BlockNumber,
			From:        raw.From.Hash,
			To:          raw.To.Hash,
			Value:       raw.Value,
		}, nil
	case http.StatusNotFound:
		return Transaction{}, ErrNotFound
	default:
		return Transaction{}, fmt.Errorf("explorer transaction lookup failed: %s", resp.Status)
	}
}
