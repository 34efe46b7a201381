package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

type Client struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
}

// NewClient builds the shared client for the extraction/classification/vector
// endpoints. Base URL and key come from env:
//
//	EXTRACT_API_BASE_URL (required)
//	EXTRACT_API_KEY      (required)
//	EXTRACT_API_KEY_HEADER (default "X-API-Key")
func NewClient() (*Client, error) {
	baseURL := strings.TrimSpace(os.Getenv("EXTRACT_API_BASE_URL"))
	if baseURL == "" {
		return nil, errors.New("EXTRACT_API_BASE_URL is required")
	}
	apiKey := strings.TrimSpace(os.Getenv("EXTRACT_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("EXTRACT_API_KEY is required")
	}
	apiKeyHeader := strings.TrimSpace(os.Getenv("EXTRACT_API_KEY_HEADER"))
	if apiKeyHeader == "" {
		apiKeyHeader = "X-API-Key"
	}

	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		apiKey:    apiKey,
		apiKeyHdr: apiKeyHeader,
		http:      &http.Client{Timeout: 60 * time.Second},
	}, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload interface{}, dest interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set(c.apiKeyHdr, c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("extract api error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return json.Unmarshal(respBody, dest)
}

// ExtractDocument sends the raw document to the extraction service and
// returns the candidate invoice. Failure here aborts the ingestion attempt:
// without structured fields there is nothing to write to the ledger.
func (c *Client) ExtractDocument(ctx context.Context, document []byte, mediaType string) (*CandidateInvoice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/extract", bytes.NewReader(document))
	if err != nil {
		return nil, err
	}
	req.Header.Set(c.apiKeyHdr, c.apiKey)
	req.Header.Set("Content-Type", mediaType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("extraction service unreachable: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("extraction failed %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var candidate CandidateInvoice
	if err := json.Unmarshal(respBody, &candidate); err != nil {
		return nil, fmt.Errorf("extraction returned malformed payload: %w", err)
	}
	return &candidate, nil
}
