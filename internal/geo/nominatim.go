// Package geo wraps the Nominatim reverse-geocoding API at country
// granularity for the author map.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const DefaultBaseURL = "https://nominatim.openstreetmap.org"

type Client struct {
	BaseURL    string
	UserAgent  string
	HTTPClient *http.Client
}

func NewClient(userAgent string) *Client {
	return &Client{
		BaseURL:    DefaultBaseURL,
		UserAgent:  userAgent,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type Place struct {
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
	DisplayName string `json:"displayName"`
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		Country     string `json:"country"`
		CountryCode string `json:"country_code"`
	} `json:"address"`
}

// Reverse resolves coordinates to a country. zoom=3 asks Nominatim for
// country-level detail only.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (*Place, error) {
	endpoint := fmt.Sprintf("%s/reverse?format=json&lat=%s&lon=%s&zoom=3",
		c.BaseURL,
		strconv.FormatFloat(lat, 'f', -1, 64),
		strconv.FormatFloat(lon, 'f', -1, 64),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	// Nominatim's usage policy requires an identifying User-Agent.
	if c.UserAgent != "" {
		req.Header.Set("User-Agent", c.UserAgent)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("nominatim responded with status %d", resp.StatusCode)
	}

	var raw reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, err
	}

	return &Place{
		Country:     raw.Address.Country,
		CountryCode: raw.Address.CountryCode,
		DisplayName: raw.DisplayName,
	}, nil
}
