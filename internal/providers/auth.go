// Package providers – device-flow authorizer client.
//
// This file implements the OAuth-style device authorization flow the auth
// gate runs users through: StartDeviceFlow obtains a device/user code pair
// and PollDeviceFlow asks whether the user has completed verification yet.
// The client maps the standard pending/denied/expired responses to values
// the service layer can branch on without parsing upstream payloads.
package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Device-flow terminal errors, mapped from the upstream error codes.
var (
	// ErrAuthDenied means the user explicitly refused the verification.
	ErrAuthDenied = errors.New("authorization denied by user")

	// ErrDeviceCodeExpired means the device code aged out before the user
	// completed verification. The flow must be restarted.
	ErrDeviceCodeExpired = errors.New("device code expired")
)

// DeviceAuth is the result of starting a device flow: the opaque DeviceCode
// the service polls with, and the UserCode the user types in at the
// verification URI.
type DeviceAuth struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int    `json:"expires_in"`
	Interval        int    `json:"interval"`
}

// ExpiresAt converts the relative expiry to an absolute deadline.
func (d DeviceAuth) ExpiresAt(now time.Time) time.Time {
	return now.Add(time.Duration(d.ExpiresIn) * time.Second)
}

// AuthProvider is the contract against the external authorizer.
type AuthProvider interface {
	// StartDeviceFlow begins a new device authorization and returns the
	// codes the user needs to complete it.
	StartDeviceFlow(ctx context.Context) (DeviceAuth, error)

	// PollDeviceFlow checks whether the flow identified by deviceCode has
	// been approved. It returns (false, nil) while the decision is still
	// pending, and ErrAuthDenied or ErrDeviceCodeExpired on terminal
	// failures.
	PollDeviceFlow(ctx context.Context, deviceCode string) (bool, error)
}

// HTTPAuthProvider implements AuthProvider against a standard device-flow
// authorization server.
type HTTPAuthProvider struct {
	// DeviceURL is the device authorization endpoint.
	DeviceURL string
	// TokenURL is the token endpoint polled for completion.
	TokenURL string
	// ClientID identifies this bot to the authorizer.
	ClientID string
	// Client is the HTTP client used for all calls.
	Client *http.Client
}

// NewHTTPAuthProvider constructs a provider with a sane default timeout.
func NewHTTPAuthProvider(deviceURL, tokenURL, clientID string) *HTTPAuthProvider {
	return &HTTPAuthProvider{
		DeviceURL: deviceURL,
		TokenURL:  tokenURL,
		ClientID:  clientID,
		Client:    &http.Client{Timeout: 10 * time.Second},
	}
}

// StartDeviceFlow implements AuthProvider.
func (p *HTTPAuthProvider) StartDeviceFlow(ctx context.Context) (DeviceAuth, error) {
	form := url.Values{"client_id": {p.ClientID}}
	var out DeviceAuth
	if err := p.postForm(ctx, p.DeviceURL, form, &out); err != nil {
		return DeviceAuth{}, err
	}
	return out, nil
}

// PollDeviceFlow implements AuthProvider.
func (p *HTTPAuthProvider) PollDeviceFlow(ctx context.Context, deviceCode string) (bool, error) {
	form := url.Values{
		"client_id":   {p.ClientID},
		"device_code": {deviceCode},
		"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
	}
	var out struct {
		AccessToken string `json:"access_token"`
		Error       string `json:"error"`
	}
	if err := p.postForm(ctx, p.TokenURL, form, &out); err != nil {
		return false, err
	}
	switch out.Error {
	case "":
		return out.AccessToken != "", nil
	case "authorization_pending", "slow_down":
		return false, nil
	case "access_denied":
		return false, ErrAuthDenied
	case "expired_token":
		return false, ErrDeviceCodeExpired
	default:
		return false, errors.New("device flow failed: " + out.Error)
	}
}

// postForm sends a form-encoded POST and decodes the JSON response. Device
// flow servers answer pending polls with 4xx plus an error payload, so any
// status with a decodable body is passed through to the caller.
func (p *HTTPAuthProvider) postForm(ctx context.Context, endpoint string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return &StatusError{Status: resp.StatusCode}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
