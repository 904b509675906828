// Melograph - Streaming History Star-Schema Analytics
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/melograph

// Package geo enriches the location dimension with IP-geolocation data.
// Enrichment is strictly optional: every failure mode (no provider, rate
// limit, open circuit, unresolvable IP) degrades to an unenriched row,
// never to a failed run.
package geo

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/tomtom215/melograph/internal/models"
)

// Provider is a geolocation lookup backend.
type Provider interface {
	// Lookup returns geolocation data for the given IP address.
	// Returns nil and an error if the lookup fails or the IP is invalid.
	Lookup(ctx context.Context, ipAddress string) (*models.Geolocation, error)

	// Name returns the provider name for logging and metrics.
	Name() string

	// IsAvailable checks if the provider is properly configured.
	IsAvailable() bool
}

// ========================================
// MaxMind GeoLite2 Provider
// ========================================

// MaxMindProvider implements Provider using MaxMind's GeoLite2 web service.
// Requires a free MaxMind account and license key.
// Rate limit: 1,000 lookups/day for GeoLite2 free tier.
type MaxMindProvider struct {
	client     *http.Client
	accountID  string
	licenseKey string
	baseURL    string
}

// maxMindResponse represents the JSON response from the GeoLite2 web service
type maxMindResponse struct {
	City struct {
		Names map[string]string `json:"names"`
	} `json:"city"`
	Country struct {
		ISOCode string            `json:"iso_code"`
		Names   map[string]string `json:"names"`
	} `json:"country"`
	Location struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
	Subdivisions []struct {
		ISOCode string            `json:"iso_code"`
		Names   map[string]string `json:"names"`
	} `json:"subdivisions"`
	Traits struct {
		ISP       string `json:"isp"`
		IPAddress string `json:"ip_address"`
	} `json:"traits"`
}

type maxMindErrorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// NewMaxMindProvider creates a MaxMind GeoLite2 provider. accountID and
// licenseKey come from https://www.maxmind.com/en/account
func NewMaxMindProvider(accountID, licenseKey string) *MaxMindProvider {
	return &MaxMindProvider{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		accountID:  accountID,
		licenseKey: licenseKey,
		baseURL:    "https://geolite.info/geoip/v2.1/city",
	}
}

// Name returns the provider name.
func (p *MaxMindProvider) Name() string {
	return "maxmind-geolite2"
}

// IsAvailable returns true if account ID and license key are configured.
func (p *MaxMindProvider) IsAvailable() bool {
	return p.accountID != "" && p.licenseKey != ""
}

// Lookup queries the GeoLite2 web service for geolocation data.
func (p *MaxMindProvider) Lookup(ctx context.Context, ipAddress string) (*models.Geolocation, error) {
	if !p.IsAvailable() {
		return nil, fmt.Errorf("MaxMind credentials not configured")
	}
	if ip := net.ParseIP(ipAddress); ip == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ipAddress)
	}

	result, err := p.queryMaxMind(ctx, ipAddress)
	if err != nil {
		return nil, err
	}
	return convertMaxMindResponse(result, ipAddress), nil
}

func (p *MaxMindProvider) queryMaxMind(ctx context.Context, ipAddress string) (*maxMindResponse, error) {
	url := fmt.Sprintf("%s/%s", p.baseURL, ipAddress)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	// MaxMind uses Basic Auth with account ID as username and license key as password
	req.SetBasicAuth(p.accountID, p.licenseKey)
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query MaxMind: %w", err)
	}
	defer resp.Body.Close()

	if err := checkMaxMindResponse(resp); err != nil {
		return nil, err
	}

	var result maxMindResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode MaxMind response: %w", err)
	}
	return &result, nil
}

func checkMaxMindResponse(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	var errResp maxMindErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err == nil && errResp.Error != "" {
		return fmt.Errorf("MaxMind error (%s): %s", errResp.Code, errResp.Error)
	}
	return fmt.Errorf("MaxMind returned status %d", resp.StatusCode)
}

func convertMaxMindResponse(result *maxMindResponse, ipAddress string) *models.Geolocation {
	geo := &models.Geolocation{
		IPAddress:   ipAddress,
		Latitude:    result.Location.Latitude,
		Longitude:   result.Location.Longitude,
		Country:     result.Country.Names["en"],
		LastUpdated: time.Now().UTC(),
	}

	if cityName := result.City.Names["en"]; cityName != "" {
		geo.City = &cityName
	}
	if len(result.Subdivisions) > 0 {
		if regionName := result.Subdivisions[0].Names["en"]; regionName != "" {
			geo.Region = &regionName
		}
	}
	if result.Traits.ISP != "" {
		geo.ISP = &result.Traits.ISP
	}
	return geo
}

// ========================================
// ip-api.com Provider (Free, No API Key)
// ========================================

// IPAPIProvider implements Provider using the free ip-api.com service.
// Rate limit: 45 requests per minute on the free tier; pacing is enforced
// client-side with a token bucket so the service never returns 429s.
type IPAPIProvider struct {
	client  *http.Client
	limiter *rate.Limiter
	baseURL string
}

// ipAPIResponse represents the JSON response from ip-api.com
type ipAPIResponse struct {
	Status      string  `json:"status"`  // "success" or "fail"
	Message     string  `json:"message"` // Error message if status is "fail"
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	RegionName  string  `json:"regionName"`
	City        string  `json:"city"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	ISP         string  `json:"isp"`
	Query       string  `json:"query"`
}

// NewIPAPIProvider creates an ip-api.com provider paced at requestsPerMinute
// (45 on the free tier; values <= 0 fall back to 45).
func NewIPAPIProvider(requestsPerMinute int) *IPAPIProvider {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 45
	}
	return &IPAPIProvider{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), requestsPerMinute),
		baseURL: "http://ip-api.com/json",
	}
}

// Name returns the provider name.
func (p *IPAPIProvider) Name() string {
	return "ip-api.com"
}

// IsAvailable returns true (ip-api.com doesn't require an API key).
func (p *IPAPIProvider) IsAvailable() bool {
	return true
}

// Lookup queries ip-api.com for geolocation data, blocking on the rate
// limiter until a request slot is available or the context expires.
func (p *IPAPIProvider) Lookup(ctx context.Context, ipAddress string) (*models.Geolocation, error) {
	if ip := net.ParseIP(ipAddress); ip == nil {
		return nil, fmt.Errorf("invalid IP address: %s", ipAddress)
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	result, err := p.queryIPAPI(ctx, ipAddress)
	if err != nil {
		return nil, err
	}
	return convertIPAPIResponse(result, ipAddress), nil
}

func (p *IPAPIProvider) queryIPAPI(ctx context.Context, ipAddress string) (*ipAPIResponse, error) {
	// The fields parameter trims the response to what we store.
	url := fmt.Sprintf("%s/%s?fields=status,message,country,countryCode,regionName,city,lat,lon,isp,query",
		p.baseURL, ipAddress)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query ip-api.com: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ip-api.com returned status %d", resp.StatusCode)
	}

	var result ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode ip-api.com response: %w", err)
	}

	if result.Status != "success" {
		return nil, fmt.Errorf("ip-api.com lookup failed: %s", result.Message)
	}
	return &result, nil
}

func convertIPAPIResponse(result *ipAPIResponse, ipAddress string) *models.Geolocation {
	geo := &models.Geolocation{
		IPAddress:   ipAddress,
		Latitude:    result.Lat,
		Longitude:   result.Lon,
		Country:     result.Country,
		LastUpdated: time.Now().UTC(),
	}

	if result.City != "" {
		geo.City = &result.City
	}
	if result.RegionName != "" {
		geo.Region = &result.RegionName
	}
	if result.ISP != "" {
		geo.ISP = &result.ISP
	}
	return geo
}

// IsPrivateIP checks if the IP address is in a private/local range.
// Private IPs cannot be geolocated and are marked instead of queried.
func IsPrivateIP(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	return isInPrivateRanges(ip)
}

func isInPrivateRanges(ip net.IP) bool {
	// RFC 1918: 10.0.0.0/8, 172.16.0.0/12, 192.168.0.0/16
	// Loopback: 127.0.0.0/8
	// Link-local: 169.254.0.0/16
	privateRanges := []string{
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"127.0.0.0/8",
		"169.254.0.0/16",
		"::1/128",   // IPv6 loopback
		"fc00::/7",  // IPv6 unique local
		"fe80::/10", // IPv6 link-local
	}

	for _, cidr := range privateRanges {
		if isInCIDR(ip, cidr) {
			return true
		}
	}
	return false
}

func isInCIDR(ip net.IP, cidr string) bool {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return false
	}
	return network.Contains(ip)
}

// LocalGeolocation builds the placeholder entry for private/LAN IPs. They
// are marked with "Local Network" so that reports can filter them.
func LocalGeolocation(ipAddress string) *models.Geolocation {
	local := "Local Network"
	return &models.Geolocation{
		IPAddress:   ipAddress,
		Country:     "Local",
		City:        &local,
		LastUpdated: time.Now().UTC(),
	}
}
