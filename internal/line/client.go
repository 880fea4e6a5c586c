package line

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultEndpoint is the production LINE Messaging API base URL. It is
// overridable in config for tests and regional deployments.
const DefaultEndpoint = "https://api.line.me"

// ErrProfileNotFound indicates the contact has blocked the bot or deleted
// their account: the Profile API answers 404 for them. Callers treat this
// differently from transport failures (it is a stable fact about the
// contact, not a retryable error).
var ErrProfileNotFound = errors.New("line: profile not found")

// Profile is the display metadata of a contact as returned by the LINE
// Profile API.
type Profile struct {
	DisplayName   string `json:"displayName"`
	PictureURL    string `json:"pictureUrl"`
	StatusMessage string `json:"statusMessage"`
	Language      string `json:"language"`
}

// ProfileClient is the capability the ingestion pipeline and the dashboard
// need from the messaging platform: resolving a contact's profile.
//
// Implementations must honor the context for cancellation and timeouts and
// return ErrProfileNotFound (possibly wrapped) for blocked/removed contacts.
type ProfileClient interface {
	GetProfile(ctx context.Context, lineUserID string) (*Profile, error)
}

// Client is the HTTP implementation of ProfileClient against the LINE
// Messaging API.
type Client struct {
	endpoint    string
	accessToken string
	http        *http.Client
}

// NewClient constructs a Client for the given API endpoint and channel
// access token. An empty endpoint falls back to DefaultEndpoint; a nil
// httpClient falls back to a client with a 10s overall timeout.
func NewClient(endpoint, channelAccessToken string, httpClient *http.Client) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		endpoint:    endpoint,
		accessToken: channelAccessToken,
		http:        httpClient,
	}
}

// GetProfile fetches the profile of a contact by their LINE user ID.
//
// A 404 maps to ErrProfileNotFound; any other non-200 status or transport
// failure is returned as a generic error.
func (c *Client) GetProfile(ctx context.Context, lineUserID string) (*Profile, error) {
	url := fmt.Sprintf("%s/v2/bot/profile/%s", c.endpoint, lineUserID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("line: profile request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrProfileNotFound, lineUserID)
	default:
		// Drain a little of the body for the error message; LINE returns a
		// short JSON problem document.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("line: profile request failed: status %d: %s", resp.StatusCode, snippet)
	}

	var p Profile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("line: decode profile: %w", err)
	}
	return &p, nil
}

// PushText sends a one-off text message to a contact via the Push API.
// The ingestion pipeline never sends messages; this exists for operator
// tooling built on the same client.
func (c *Client) PushText(ctx context.Context, lineUserID, text string) error {
	payload := map[string]any{
		"to": lineUserID,
		"messages": []map[string]string{
			{"type": "text", "text": text},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	url := c.endpoint + "/v2/bot/message/push"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("line: push request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("line: push failed: status %d: %s", resp.StatusCode, snippet)
	}
	return nil
}
