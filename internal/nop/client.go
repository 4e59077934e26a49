// Package nop talks to the KVERKOM national payment platform (NOP) API over
// mutual TLS.
package nop

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/efabox/instapay-api/internal/cert"
	"github.com/efabox/instapay-api/internal/common"
)

const transactionIDPath = "/api/v1/generateNewTransactionId"

// TransactionID is the upstream-issued end-to-end identifier of one payment
// attempt. It is requested once per checkout attempt and never reused.
type TransactionID struct {
	ID        string `json:"transaction_id"`
	CreatedAt string `json:"created_at"`
}

// Client performs mTLS calls against the NOP API. One call, no retry: a
// failed attempt fails the whole initiation.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// NewClient builds a client presenting the given certificate material.
func NewClient(baseURL string, material cert.Material, timeout time.Duration) (*Client, error) {
	tlsConfig, err := material.TLSConfig()
	if err != nil {
		return nil, common.ConfigError("invalid certificate material", err)
	}
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{
			Transport: &http.Transport{TLSClientConfig: tlsConfig},
		},
		Timeout: timeout,
	}, nil
}

// GenerateTransactionID requests a fresh transaction identifier. Any non-200
// status, unparsable body or network/TLS failure surfaces as a TX_ID error
// carrying the cause; the caller aborts initiation.
func (c *Client) GenerateTransactionID(ctx context.Context) (TransactionID, error) {
	if c == nil || c.HTTPClient == nil {
		return TransactionID{}, common.ConfigError("nop client not configured", nil)
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+transactionIDPath, nil)
	if err != nil {
		return TransactionID{}, common.TransactionIDError("build transaction id request", err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return TransactionID{}, common.TransactionIDError("transaction id request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return TransactionID{}, common.TransactionIDError("read transaction id response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return TransactionID{}, common.TransactionIDError(
			fmt.Sprintf("transaction id endpoint returned HTTP %d", resp.StatusCode),
			fmt.Errorf("nop: HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		)
	}

	var tx TransactionID
	if err := json.Unmarshal(body, &tx); err != nil {
		return TransactionID{}, common.TransactionIDError("parse transaction id response", err)
	}
	if strings.TrimSpace(tx.ID) == "" {
		return TransactionID{}, common.TransactionIDError("transaction id missing in response", nil)
	}
	return tx, nil
}
