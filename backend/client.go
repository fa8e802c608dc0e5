package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/sensor-anchoring-gateway/interfaces"
	"github.com/stretchr/testify/mock"
)

const maxResponseSize = 64 * 1024

// ClientOpts configures a Client.
type ClientOpts struct {
	// BaseURL of the identity service, e.g. "https://identity.example.com".
	BaseURL string

	// DeviceType is sent with every identity registration.
	DeviceType string

	// KeyValidity is the lifetime written into key certificates.
	KeyValidity time.Duration

	// AnchorToken, when set, authorizes anchoring requests.
	AnchorToken interfaces.Token

	HTTPClient *http.Client
}

// Client implements interfaces.BackendClient over HTTP.
type Client struct {
	opts   ClientOpts
	crypto interfaces.CryptoProvider
	http   *http.Client
	log    *slog.Logger
}

// NewClient creates a backend client. Key certificates are signed with crypto.
func NewClient(opts ClientOpts, crypto interfaces.CryptoProvider, log *slog.Logger) *Client {
	opts.BaseURL = strings.TrimSuffix(opts.BaseURL, "/")
	if opts.DeviceType == "" {
		opts.DeviceType = "sensor"
	}
	if opts.KeyValidity == 0 {
		opts.KeyValidity = 365 * 24 * time.Hour
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &Client{opts: opts, crypto: crypto, http: httpClient, log: log}
}

// RegisterIdentity creates the device identity at the backend.
// The returned error is nil only for RegistrationSuccess.
func (c *Client) RegisterIdentity(ctx context.Context, id uuid.UUID, description string, token interfaces.Token) (interfaces.RegistrationOutcome, error) {
	body, err := json.Marshal(ThingRequest{
		HwDeviceID:  id,
		Description: description,
		DeviceType:  c.opts.DeviceType,
	})
	if err != nil {
		return interfaces.RegistrationUnavailable, fmt.Errorf("could not encode thing request: %w", err)
	}

	status, respBody, err := c.post(ctx, c.opts.BaseURL+"/api/things", "application/json", body, token)
	if err != nil {
		return interfaces.RegistrationUnavailable, fmt.Errorf("could not request thing registration: %w", err)
	}

	switch {
	case status >= 200 && status < 300:
		return interfaces.RegistrationSuccess, nil
	case status == http.StatusConflict:
		return interfaces.RegistrationAlreadyRegistered, ErrAlreadyRegistered
	default:
		return interfaces.RegistrationRejected, fmt.Errorf("%w: thing registration returned %d: %s", ErrRejected, status, string(respBody))
	}
}

// RegisterKeys publishes the current key pair of dev.
func (c *Client) RegisterKeys(ctx context.Context, dev *interfaces.DeviceContext, token interfaces.Token) error {
	reg, err := c.keyRegistration(dev, nil)
	if err != nil {
		return err
	}
	return c.postKeys(ctx, c.opts.BaseURL+"/api/keys", reg, token)
}

// UpdateKeys publishes the current key pair of dev as the successor of previous.
func (c *Client) UpdateKeys(ctx context.Context, dev *interfaces.DeviceContext, previous interfaces.KeyPair, token interfaces.Token) error {
	reg, err := c.keyRegistration(dev, &previous)
	if err != nil {
		return err
	}
	return c.postKeys(ctx, c.opts.BaseURL+"/api/keys/update", reg, token)
}

// SendEnvelope posts an encoded envelope to endpoint. Any HTTP status is a
// successful exchange; only transport failures return an error.
func (c *Client) SendEnvelope(ctx context.Context, endpoint string, id uuid.UUID, data []byte) (*interfaces.AnchorResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("could not initialize request: %w", err)
	}
	req.Header.Set("Content-Type", ContentTypeCBOR)
	req.Header.Set(DeviceUUIDHeader, id.String())
	if c.opts.AnchorToken != nil && c.opts.AnchorToken.IsValid() {
		req.Header.Set("Authorization", "Bearer "+c.opts.AnchorToken.Value())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("could not request anchoring endpoint: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("could not read anchoring response: %w", err)
	}

	c.log.Debug("anchoring response",
		slog.String("uuid", id.String()),
		slog.Int("status", resp.StatusCode),
		slog.Int("size", len(body)))

	return &interfaces.AnchorResponse{StatusCode: resp.StatusCode, Body: body}, nil
}

func (c *Client) keyRegistration(dev *interfaces.DeviceContext, previous *interfaces.KeyPair) (*KeyRegistration, error) {
	created := dev.KeyCreated.UTC()
	cert := KeyCertificate{
		Algorithm:      AlgorithmEd25519,
		HwDeviceID:     dev.UUID,
		PubKey:         dev.PublicKey,
		PubKeyID:       PubKeyID(dev.PublicKey),
		Created:        created,
		ValidNotBefore: created,
		ValidNotAfter:  created.Add(c.opts.KeyValidity),
	}
	if previous != nil {
		cert.PrevPubKeyID = PubKeyID(previous.Public)
	}

	msg, err := cert.SigningBytes()
	if err != nil {
		return nil, fmt.Errorf("could not encode key certificate: %w", err)
	}

	sig, err := c.crypto.Sign(dev.PrivateKey, msg)
	if err != nil {
		return nil, fmt.Errorf("could not sign key certificate: %w", err)
	}
	reg := &KeyRegistration{Certificate: cert, Signature: sig.Bytes()}

	if previous != nil {
		prevSig, err := c.crypto.Sign(previous.Private, msg)
		if err != nil {
			return nil, fmt.Errorf("could not counter-sign key certificate: %w", err)
		}
		reg.PrevSignature = prevSig.Bytes()
	}

	return reg, nil
}

func (c *Client) postKeys(ctx context.Context, url string, reg *KeyRegistration, token interfaces.Token) error {
	body, err := json.Marshal(reg)
	if err != nil {
		return fmt.Errorf("could not encode key registration: %w", err)
	}

	status, respBody, err := c.post(ctx, url, "application/json", body, token)
	if err != nil {
		return fmt.Errorf("could not request key registration: %w", err)
	}
	if status < 200 || status >= 300 {
		return fmt.Errorf("%w: key registration returned %d: %s", ErrRejected, status, string(respBody))
	}
	return nil
}

func (c *Client) post(ctx context.Context, url, contentType string, body []byte, token interfaces.Token) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("could not initialize request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if token != nil {
		req.Header.Set("Authorization", "Bearer "+token.Value())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("could not read response: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// MockClient implements interfaces.BackendClient for testing.
type MockClient struct {
	mock.Mock
}

func (m *MockClient) RegisterIdentity(ctx context.Context, id uuid.UUID, description string, token interfaces.Token) (interfaces.RegistrationOutcome, error) {
	args := m.Called(ctx, id, description, token)
	return args.Get(0).(interfaces.RegistrationOutcome), args.Error(1)
}

func (m *MockClient) RegisterKeys(ctx context.Context, dev *interfaces.DeviceContext, token interfaces.Token) error {
	args := m.Called(ctx, dev, token)
	return args.Error(0)
}

func (m *MockClient) UpdateKeys(ctx context.Context, dev *interfaces.DeviceContext, previous interfaces.KeyPair, token interfaces.Token) error {
	args := m.Called(ctx, dev, previous, token)
	return args.Error(0)
}

func (m *MockClient) SendEnvelope(ctx context.Context, endpoint string, id uuid.UUID, data []byte) (*interfaces.AnchorResponse, error) {
	args := m.Called(ctx, endpoint, id, data)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*interfaces.AnchorResponse), args.Error(1)
}
