// Package webrtc wraps pion peer connections as the negotiation
// collaborator for sessions: it establishes data channels and hands them
// over as session.Channel implementations. Sessions consume only the
// channel-ready signal and the channel handle; everything about offers,
// answers and ICE stays in here.
package webrtc

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pion/ice/v4"
	"github.com/pion/webrtc/v4"
)

// MTU bounds a single inbound SCTP packet.
const MTU uint = 1400

// ChannelParams describes the data channel one peer asks the other to open.
type ChannelParams struct {
	// Originator marks the side that creates the channel and sends the
	// offer.
	Originator bool
	// Kind selects delivery semantics; "reliable" is the only kind the
	// sessions here rely on.
	Kind string
	// Label names the channel on both peers.
	Label string
}

// CommonConnection is the surface shared by both ends of a peer connection.
type CommonConnection interface {
	OnDataChannel(f func(*webrtc.DataChannel))
	OnICECandidate(f func(*webrtc.ICECandidate))
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	Close() error
}

// OfferConnection is the originator side: it opens the data channel and
// drives the offer/answer exchange.
type OfferConnection interface {
	CommonConnection
	Establish(ctx context.Context, params ChannelParams) (*webrtc.DataChannel, error)
}

// AnswerConnection is the answering side: it waits for the remote channel
// and answers the remote offer.
type AnswerConnection interface {
	CommonConnection
	HandleOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error)
}

// Connection wraps a single pion peer connection.
type Connection struct {
	peerConnection *webrtc.PeerConnection
}

// OfferConn is a Connection plus the signaler used to reach the remote peer.
type OfferConn struct {
	*Connection
	signaler Signaler
}

// AnswerConn answers offers; its signaling runs through the HTTP handler
// that received the offer, so it carries no signaler of its own.
type AnswerConn struct {
	*Connection
}

// API owns a shared pion API instance. Using one API for all peer
// connections keeps the settings engine consistent across them.
type API struct {
	api *webrtc.API
}

// Config holds the configuration for creating a new Connection.
type Config struct {
	ICEServers []webrtc.ICEServer
}

func NewAPI() *API {
	settings := webrtc.SettingEngine{}
	settings.SetICEMulticastDNSMode(ice.MulticastDNSModeQueryAndGather)
	settings.SetReceiveMTU(MTU)

	return &API{
		api: webrtc.NewAPI(webrtc.WithSettingEngine(settings)),
	}
}

func (a *API) createPeerConnection(config Config) (*webrtc.PeerConnection, error) {
	if len(config.ICEServers) == 0 {
		config.ICEServers = append(config.ICEServers, webrtc.ICEServer{
			URLs: []string{"stun:stun.l.google.com:19302"},
		})
	}
	return a.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: config.ICEServers,
	})
}

// NewOfferConnection creates the originator side of a peer connection.
func (a *API) NewOfferConnection(config Config, signaler Signaler) (*OfferConn, error) {
	if signaler == nil {
		return nil, fmt.Errorf("signaler is not configured")
	}

	pc, err := a.createPeerConnection(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	return &OfferConn{
		Connection: &Connection{peerConnection: pc},
		signaler:   signaler,
	}, nil
}

// NewAnswerConnection creates the answering side of a peer connection.
func (a *API) NewAnswerConnection(config Config) (*AnswerConn, error) {
	pc, err := a.createPeerConnection(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	return &AnswerConn{
		Connection: &Connection{peerConnection: pc},
	}, nil
}

// Establish opens the data channel described by params and runs the offer
// exchange through the signaler. The returned channel is not yet open; wrap
// it with NewChannel and let the session wait for the ready signal.
func (c *OfferConn) Establish(ctx context.Context, params ChannelParams) (*webrtc.DataChannel, error) {
	if !params.Originator {
		return nil, fmt.Errorf("establish called on the non-originating side")
	}

	ordered := true
	dc, err := c.peerConnection.CreateDataChannel(params.Label, &webrtc.DataChannelInit{
		Ordered: &ordered,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create data channel %q: %w", params.Label, err)
	}

	c.peerConnection.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate != nil {
			c.signaler.SendICECandidate(candidate.ToJSON())
		}
	})

	offer, err := c.peerConnection.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create offer: %w", err)
	}
	if err := c.peerConnection.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("failed to set local description: %w", err)
	}
	if err := c.signaler.SendOffer(offer); err != nil {
		return nil, fmt.Errorf("failed to send offer: %w", err)
	}

	answer, err := c.signaler.WaitForAnswer(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed waiting for answer: %w", err)
	}
	if err := c.peerConnection.SetRemoteDescription(*answer); err != nil {
		return nil, fmt.Errorf("failed to set remote description: %w", err)
	}

	slog.Info("Channel establishment started", "label", params.Label, "kind", params.Kind)
	return dc, nil
}

// HandleOfferAndCreateAnswer is called by the answering side to process an
// incoming offer.
func (c *AnswerConn) HandleOfferAndCreateAnswer(offer webrtc.SessionDescription) (*webrtc.SessionDescription, error) {
	if err := c.peerConnection.SetRemoteDescription(offer); err != nil {
		return nil, fmt.Errorf("failed to set remote description: %w", err)
	}

	answer, err := c.peerConnection.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create answer: %w", err)
	}
	if err := c.peerConnection.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("failed to set local description for answer: %w", err)
	}
	return &answer, nil
}

// AddICECandidate adds a candidate received from the remote peer.
func (c *Connection) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	if err := c.peerConnection.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("failed to add ICE candidate: %w", err)
	}
	return nil
}

func (c *Connection) OnICECandidate(f func(*webrtc.ICECandidate)) {
	c.peerConnection.OnICECandidate(f)
}

func (c *Connection) OnDataChannel(f func(*webrtc.DataChannel)) {
	c.peerConnection.OnDataChannel(f)
}

// Close shuts down the peer connection and every channel on it.
func (c *Connection) Close() error {
	if c.peerConnection != nil {
		slog.Debug("Closing peer connection")
		return c.peerConnection.Close()
	}
	return nil
}
