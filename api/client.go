// Package api implements the signaling transport: an HTTP + SSE exchange
// carrying the offer, answer and ICE candidates between peers. It is the
// concrete Signaler the webrtc package is decoupled from.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pion/webrtc/v4"
)

const peerIDHeader = "X-Peer-ID"

// peerIDInjector is an http.RoundTripper that stamps every request with the
// local peer's ID.
type peerIDInjector struct {
	peerID string
	next   http.RoundTripper
}

func (t *peerIDInjector) RoundTrip(req *http.Request) (*http.Response, error) {
	req.Header.Set(peerIDHeader, t.peerID)
	return t.next.RoundTrip(req)
}

// Client is a stateless HTTP client for a remote peer's signaling endpoint.
type Client struct {
	HTTPClient *http.Client
	peerURL    string
}

// NewClient creates a signaling client that identifies itself as peerID on
// every request.
func NewClient(peerID string) *Client {
	return &Client{
		HTTPClient: &http.Client{
			// Long-lived: the /connect response streams events for the
			// whole negotiation.
			Timeout: 0,
			Transport: &peerIDInjector{
				peerID: peerID,
				next:   http.DefaultTransport,
			},
		},
	}
}

// SetPeerURL points the client at the remote peer's signaling endpoint.
func (c *Client) SetPeerURL(url string) {
	c.peerURL = url
}

// SendICECandidateRequest posts one local candidate to the remote peer.
func (c *Client) SendICECandidateRequest(ctx context.Context, candidate webrtc.ICECandidateInit) error {
	if c.peerURL == "" {
		return fmt.Errorf("peer URL is not set")
	}

	body, err := json.Marshal(candidate)
	if err != nil {
		return fmt.Errorf("failed to marshal candidate payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.peerURL+"/candidate", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create candidate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send candidate request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("candidate endpoint responded with non-OK status: %s", resp.Status)
	}
	return nil
}
