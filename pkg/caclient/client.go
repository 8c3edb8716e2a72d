// Copyright 2025 Certen Protocol
//
// Package caclient talks to the certificate authority that countersigns
// sender CSRs before a transaction payload is built. The batcher never
// holds the CA's key; it only relays a CSR and reports the signature it
// gets back.

package caclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/airanchor/gateway/pkg/gwerrors"
)

var validate = validator.New()

// SignRequest is the JSON body POSTed to the CA's sign endpoint.
type SignRequest struct {
	DistinguishedName string            `json:"distinguished_name" validate:"required"`
	PublicKey         string            `json:"public_key" validate:"required,hexadecimal"`
	OptionalParams    map[string]string `json:"optional_params,omitempty"`
}

// Client is an HTTP client for the certificate authority's CSR signing
// endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *log.Logger
}

// Config configures a Client.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Logger     *log.Logger
}

// New builds a Client. If cfg.HTTPClient is nil, a default client with no
// per-request timeout is used; callers bound the call with ctx instead.
func New(cfg Config) *Client {
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		baseURL = "http://" + baseURL
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[CAClient] ", log.LstdFlags)
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// SignCSR submits a CSR to {baseURL}/api/v1/sign and returns the CA's
// signature over it. Only a 200 response is success; 401 ->
// CAUnauthorized, any other status (2xx included) or transport failure
// -> CAUnavailable.
func (c *Client) SignCSR(ctx context.Context, req SignRequest) (string, error) {
	if err := validate.Struct(req); err != nil {
		return "", fmt.Errorf("invalid CSR: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal CSR: %w", err)
	}

	url := c.baseURL + "/api/v1/sign"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", gwerrors.NewCAUnavailable("build request: %v", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", gwerrors.NewCAUnavailable("request failed: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized {
		c.logger.Printf("CA rejected credentials for public_key=%s", req.PublicKey)
		return "", gwerrors.ErrCAUnauthorized
	}

	if resp.StatusCode != http.StatusOK {
		return "", gwerrors.NewCAUnavailable("status %d: %s", resp.StatusCode, string(respBody))
	}

	var sig string
	if err := json.Unmarshal(respBody, &sig); err != nil {
		return "", gwerrors.NewCAUnavailable("malformed response: %v", err)
	}

	c.logger.Printf("CA signed CSR for public_key=%s", req.PublicKey)
	return sig, nil
}
