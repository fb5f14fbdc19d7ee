// Package client is a small HTTP client for the admin API, used by the CLI.
package client

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

type Client struct {
	BaseURL        string
	AdminKey       string
	AdminKeyHeader string
}

func NewClient(baseURL, adminKey, adminKeyHeader string) *Client {
	if adminKeyHeader == "" {
		adminKeyHeader = "X-Admin-Key"
	}
	return &Client{
		BaseURL:        baseURL,
		AdminKey:       adminKey,
		AdminKeyHeader: adminKeyHeader,
	}
}

type ListBansResponse struct {
	Bans []string `json:"bans"`
}

type UnbanResponse struct {
	IP      string `json:"ip"`
	Removed bool   `json:"removed"`
}

type ErrorResponse struct {
	Detail string `json:"detail"`
}

// ListBans fetches the actively banned IPs.
func (c *Client) ListBans() (*ListBansResponse, error) {
	var resp ListBansResponse
	if err := c.do("GET", "/v1/admin/bans", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Unban removes the ban for an IP.
func (c *Client) Unban(ip string) (*UnbanResponse, error) {
	var resp UnbanResponse
	if err := c.do("DELETE", "/v1/admin/bans/"+ip, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(method, path string, out any) error {
	req, err := http.NewRequest(method, c.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set(c.AdminKeyHeader, c.AdminKey)
	// The gate rejects empty User-Agents; identify ourselves honestly.
	req.Header.Set("User-Agent", "lumicat-cli")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if json.Unmarshal(body, &errResp) == nil && errResp.Detail != "" {
			return fmt.Errorf("%s %s: %s", method, path, errResp.Detail)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	return json.Unmarshal(body, out)
}
