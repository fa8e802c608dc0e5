package httpserver

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// AdminClient talks to the admin API of a gateway.
type AdminClient struct {
	baseURL    string
	adminID    string
	privateKey ed25519.PrivateKey
	httpClient *http.Client
}

// NewAdminClient creates an admin client. baseURL includes the /admin prefix.
func NewAdminClient(baseURL string, privateKey ed25519.PrivateKey, timeout ...time.Duration) *AdminClient {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	c := &AdminClient{
		baseURL:    baseURL,
		privateKey: privateKey,
		httpClient: &http.Client{Timeout: clientTimeout},
	}
	if privateKey != nil {
		c.adminID = AdminID(privateKey.Public().(ed25519.PublicKey))
	}
	return c
}

func (c *AdminClient) GetStatus(ctx context.Context) (*AdminStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/status", nil)
	if err != nil {
		return nil, err
	}

	var status AdminStatus
	if err := c.do(req, http.StatusOK, &status); err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}
	return &status, nil
}

func (c *AdminClient) SetToken(ctx context.Context, raw string) (*AdminStatus, error) {
	body, err := json.Marshal(SetTokenRequest{Token: raw})
	if err != nil {
		return nil, err
	}
	req, err := CreateSignedAdminRequest(ctx, http.MethodPut, c.baseURL+"/token", body, c.adminID, c.privateKey)
	if err != nil {
		return nil, err
	}

	var status AdminStatus
	if err := c.do(req, http.StatusOK, &status); err != nil {
		return nil, fmt.Errorf("set token request failed: %w", err)
	}
	return &status, nil
}

// EnsureReady asks the gateway to drive sensorID to Ready. A device that does
// not become Ready is reported in the response, not as an error.
func (c *AdminClient) EnsureReady(ctx context.Context, sensorID string) (*EnsureReadyResponse, error) {
	req, err := CreateSignedAdminRequest(ctx, http.MethodPost, c.baseURL+"/devices/"+url.PathEscape(sensorID)+"/ensure-ready", nil, c.adminID, c.privateKey)
	if err != nil {
		return nil, err
	}

	var resp EnsureReadyResponse
	if err := c.do(req, 0, &resp); err != nil {
		return nil, fmt.Errorf("ensure-ready request failed: %w", err)
	}
	return &resp, nil
}

// SubmitReading injects a reading. It returns false when the gateway dropped it.
func (c *AdminClient) SubmitReading(ctx context.Context, sensorID string, values []int32) (bool, error) {
	body, err := json.Marshal(SubmitReadingRequest{Sensor: sensorID, Values: values})
	if err != nil {
		return false, err
	}
	req, err := CreateSignedAdminRequest(ctx, http.MethodPost, c.baseURL+"/readings", body, c.adminID, c.privateKey)
	if err != nil {
		return false, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("submit request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		return true, nil
	case http.StatusServiceUnavailable:
		return false, nil
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		return false, fmt.Errorf("submit request failed with code %d: %s", resp.StatusCode, string(msg))
	}
}

// do sends req and decodes a JSON answer into out. expected 0 accepts any
// status that carries a JSON body.
func (c *AdminClient) do(req *http.Request, expected int, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if expected != 0 && resp.StatusCode != expected || resp.Header.Get("Content-Type") != "application/json" {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		return fmt.Errorf("unexpected code %d: %s", resp.StatusCode, string(body))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// CreateSignedAdminRequest creates a request carrying the admin signature
// headers over the URL path followed by body.
func CreateSignedAdminRequest(ctx context.Context, method, reqURL string, body []byte, adminID string, privateKey ed25519.PrivateKey) (*http.Request, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("no admin key to sign %s", reqURL)
	}

	parsedURL, err := url.Parse(reqURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	signature := ed25519.Sign(privateKey, adminMessage(parsedURL.Path, body))
	req.Header.Set(AdminIDHeader, adminID)
	req.Header.Set(AdminSignatureHeader, base64.StdEncoding.EncodeToString(signature))
	return req, nil
}
