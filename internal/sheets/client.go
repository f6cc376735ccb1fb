// Package sheets reads spreadsheet columns through the Google Sheets values
// REST endpoint. Only the read-only values.get call is used, so the client
// speaks plain HTTP with an API key instead of pulling in a full SDK.
package sheets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultBaseURL = "https://sheets.googleapis.com"

// Config holds the Sheets API settings.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client is a read-only Sheets values client.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// NewClient creates a Sheets client.
func NewClient(cfg *Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// valuesResponse is the shape of spreadsheets.values.get.
type valuesResponse struct {
	Range  string     `json:"range"`
	Values [][]string `json:"values"`
}

// FetchColumn returns the first cell of every row in the range, in row order.
// Rows the API omits entirely come back as empty strings are not synthesized;
// callers align columns by index and treat missing rows per their own policy.
func (c *Client) FetchColumn(ctx context.Context, spreadsheetID, cellRange string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/v4/spreadsheets/%s/values/%s",
		c.baseURL,
		url.PathEscape(spreadsheetID),
		url.PathEscape(cellRange),
	)
	if c.apiKey != "" {
		endpoint += "?key=" + url.QueryEscape(c.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build sheets request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sheets request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read sheets response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sheets API error: %s - %s", resp.Status, string(body))
	}

	var parsed valuesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode sheets response: %w", err)
	}

	column := make([]string, len(parsed.Values))
	for i, row := range parsed.Values {
		if len(row) > 0 {
			column[i] = row[0]
		}
	}
	return column, nil
}
