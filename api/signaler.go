package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pion/webrtc/v4"
)

// ConnectPayload is the request body for the /connect endpoint: the offer
// plus the channel parameters the answering side needs to mirror.
type ConnectPayload struct {
	Offer         webrtc.SessionDescription `json:"offer"`
	Label         string                    `json:"label"`
	Serialization string                    `json:"serialization"`
}

// HTTPSignaler is the offering side's Signaler: it posts the offer to the
// remote /connect endpoint and consumes the SSE stream of answer and
// candidate events coming back.
type HTTPSignaler struct {
	client              *Client
	ctx                 context.Context
	params              ConnectPayload
	addICECandidateFunc func(webrtc.ICECandidateInit) error
	answerChan          chan *webrtc.SessionDescription
	errChan             chan error
}

// NewHTTPSignaler creates a signaler. addICECandidateFunc feeds candidates
// received from the remote peer into the local peer connection.
func NewHTTPSignaler(
	ctx context.Context,
	client *Client,
	params ConnectPayload,
	addICECandidateFunc func(webrtc.ICECandidateInit) error,
) *HTTPSignaler {
	return &HTTPSignaler{
		client:              client,
		ctx:                 ctx,
		params:              params,
		addICECandidateFunc: addICECandidateFunc,
		answerChan:          make(chan *webrtc.SessionDescription, 1),
		errChan:             make(chan error, 1),
	}
}

// SendOffer posts the offer to the remote peer and starts consuming the SSE
// event stream. This is the entry point of the whole signaling exchange.
func (s *HTTPSignaler) SendOffer(offer webrtc.SessionDescription) error {
	payload := s.params
	payload.Offer = offer

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal connect payload: %w", err)
	}

	req, err := http.NewRequestWithContext(s.ctx, http.MethodPost, s.client.peerURL+"/connect", bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create /connect request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := s.client.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach /connect endpoint: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return fmt.Errorf("/connect responded with non-OK status: %s", resp.Status)
	}

	// The body stays open; the goroutine owns it for the stream's lifetime.
	go s.listenToSSEResponse(resp)

	return nil
}

func (s *HTTPSignaler) listenToSSEResponse(resp *http.Response) {
	defer resp.Body.Close()
	scanner := bufio.NewScanner(resp.Body)
	var currentEvent string

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event:") {
			currentEvent = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		} else if strings.HasPrefix(line, "data:") {
			data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
			s.routeEvent(currentEvent, data)
		}
	}

	if err := scanner.Err(); err != nil {
		s.errChan <- fmt.Errorf("error reading SSE stream: %w", err)
	}
}

func (s *HTTPSignaler) routeEvent(event, data string) {
	switch event {
	case "answer":
		s.handleAnswerEvent(data)
	case "candidate":
		s.handleCandidateEvent(data)
	case "rejection":
		s.errChan <- errors.New("connection rejected by the remote peer")
	case "candidates_done":
		slog.Debug("Remote peer finished sending candidates")
	default:
		slog.Warn("Received unknown SSE event", "event", event)
	}
}

func (s *HTTPSignaler) handleAnswerEvent(data string) {
	var respData struct {
		Answer webrtc.SessionDescription `json:"answer"`
	}
	if err := json.Unmarshal([]byte(data), &respData); err != nil {
		s.errChan <- fmt.Errorf("failed to unmarshal answer event: %w", err)
		return
	}
	s.answerChan <- &respData.Answer
}

func (s *HTTPSignaler) handleCandidateEvent(data string) {
	var respData struct {
		Candidate webrtc.ICECandidateInit `json:"candidate"`
	}
	if err := json.Unmarshal([]byte(data), &respData); err != nil {
		slog.Error("Failed to unmarshal candidate event", "error", err)
		return // One bad candidate should not kill the negotiation.
	}

	if err := s.addICECandidateFunc(respData.Candidate); err != nil {
		slog.Warn("Failed to add ICE candidate", "error", err)
	}
}

// WaitForAnswer blocks until the answer arrives on the SSE stream or the
// context is cancelled.
func (s *HTTPSignaler) WaitForAnswer(ctx context.Context) (*webrtc.SessionDescription, error) {
	select {
	case answer := <-s.answerChan:
		return answer, nil
	case err := <-s.errChan:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendICECandidate posts a local candidate to the remote peer,
// fire-and-forget.
func (s *HTTPSignaler) SendICECandidate(candidate webrtc.ICECandidateInit) {
	go func() {
		if err := s.client.SendICECandidateRequest(context.Background(), candidate); err != nil {
			slog.Warn("Failed to send ICE candidate", "error", err)
		}
	}()
}
