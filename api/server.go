package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v4"

	pcwebrtc "github.com/rescp17/peerchannel/pkg/webrtc"
)

// ChannelHandler is invoked when the remote peer's data channel shows up on
// an accepted connection, together with the parameters it was requested
// with. The application wraps the channel in a session from here.
type ChannelHandler func(dc *webrtc.DataChannel, payload ConnectPayload)

// Server is the answering side of the signaling exchange. It accepts one
// negotiation at a time: one session per channel, one channel per peer
// connection.
type Server struct {
	mux       *http.ServeMux
	api       *pcwebrtc.API
	iceConfig pcwebrtc.Config
	onChannel ChannelHandler

	mu   sync.Mutex
	conn *pcwebrtc.AnswerConn
}

// NewServer creates the signaling server. onChannel must not be nil.
func NewServer(api *pcwebrtc.API, iceConfig pcwebrtc.Config, onChannel ChannelHandler) *Server {
	s := &Server{
		mux:       http.NewServeMux(),
		api:       api,
		iceConfig: iceConfig,
		onChannel: onChannel,
	}
	s.mux.HandleFunc("POST /connect", s.ConnectHandler)
	s.mux.HandleFunc("POST /candidate", s.CandidateHandler)
	return s
}

// ServeHTTP satisfies http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ConnectHandler processes an incoming offer and answers it over an SSE
// stream: first the answer event, then one candidate event per local ICE
// candidate, then candidates_done.
func (s *Server) ConnectHandler(w http.ResponseWriter, r *http.Request) {
	var payload ConnectPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Invalid request", http.StatusBadRequest)
		return
	}
	slog.Info("Connect request received", "peer", r.Header.Get(peerIDHeader), "label", payload.Label, "serialization", payload.Serialization)

	conn, err := s.api.NewAnswerConnection(s.iceConfig)
	if err != nil {
		slog.Error("Failed to create answer connection", "error", err)
		http.Error(w, "Failed to create connection", http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	if s.conn != nil {
		s.mu.Unlock()
		if err := conn.Close(); err != nil {
			slog.Warn("Failed to close extra connection", "error", err)
		}
		http.Error(w, "Busy with another negotiation", http.StatusServiceUnavailable)
		return
	}
	s.conn = conn
	s.mu.Unlock()
	// The slot is held only while this stream is live. Signaling is done
	// once the stream ends (candidates_done, an error, or the peer going
	// away), and the next /connect may start a fresh negotiation; the
	// peer connection itself lives on with its session.
	defer s.releaseConnection(conn)

	conn.OnDataChannel(func(dc *webrtc.DataChannel) {
		slog.Info("Remote data channel arrived", "label", dc.Label())
		s.onChannel(dc, payload)
	})

	// Candidates can start gathering as soon as the local description is
	// set, so register the collector before answering.
	candidates := make(chan *webrtc.ICECandidate, 16)
	conn.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		candidates <- candidate
	})

	answer, err := conn.HandleOfferAndCreateAnswer(payload.Offer)
	if err != nil {
		slog.Error("Failed to answer offer", "error", err)
		http.Error(w, "Failed to answer offer", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	if err := writeSSE(w, flusher, "answer", map[string]any{"answer": answer}); err != nil {
		slog.Error("Failed to send answer event", "error", err)
		return
	}

	for {
		select {
		case candidate := <-candidates:
			if candidate == nil {
				// Gathering complete.
				if err := writeSSE(w, flusher, "candidates_done", map[string]any{}); err != nil {
					slog.Warn("Failed to send candidates_done event", "error", err)
				}
				return
			}
			if err := writeSSE(w, flusher, "candidate", map[string]any{"candidate": candidate.ToJSON()}); err != nil {
				slog.Warn("Failed to send candidate event", "error", err)
				return
			}
		case <-r.Context().Done():
			return
		}
	}
}

// CandidateHandler accepts ICE candidates posted by the offering peer.
func (s *Server) CandidateHandler(w http.ResponseWriter, r *http.Request) {
	var candidate webrtc.ICECandidateInit
	if err := json.NewDecoder(r.Body).Decode(&candidate); err != nil {
		http.Error(w, "Invalid candidate", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		http.Error(w, "No negotiation in progress", http.StatusConflict)
		return
	}

	if err := conn.AddICECandidate(candidate); err != nil {
		slog.Warn("Failed to add remote candidate", "error", err)
		http.Error(w, "Failed to add candidate", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
}

// releaseConnection frees the negotiation slot if conn still holds it.
func (s *Server) releaseConnection(conn *pcwebrtc.AnswerConn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		s.conn = nil
	}
}

func writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", event, err)
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
