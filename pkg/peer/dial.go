// Package peer ties signaling, WebRTC negotiation and sessions together
// into the two entry points applications use: Dial to reach a remote peer
// and Listen to accept one.
package peer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/rescp17/peerchannel/api"
	"github.com/rescp17/peerchannel/pkg/serialize"
	"github.com/rescp17/peerchannel/pkg/session"
	pcwebrtc "github.com/rescp17/peerchannel/pkg/webrtc"
)

// DefaultLabel names data channels created by Dial when the caller does not
// pick one.
const DefaultLabel = "peerchannel"

// DialOptions configures the offering side.
type DialOptions struct {
	// PeerURL is the remote signaling endpoint, e.g. "http://host:8080".
	PeerURL string
	// PeerID identifies this peer to the remote; defaults to a fresh UUID.
	PeerID string
	// Label names the data channel; defaults to DefaultLabel.
	Label string
	// Serialization selects the session's mode; empty means "binary".
	Serialization string
	// ICEServers overrides the default STUN server list.
	ICEServers []webrtc.ICEServer
	// Channel tunes the data-channel adapter; nil uses defaults.
	Channel *pcwebrtc.ChannelConfig
}

// Conn is an established connection: the session plus the peer connection
// it runs over.
type Conn struct {
	Session *session.Session
	pc      *pcwebrtc.OfferConn
}

// Close tears down the session and the peer connection under it.
func (c *Conn) Close() error {
	if err := c.Session.Close(); err != nil {
		return err
	}
	return c.pc.Close()
}

// Dial negotiates a data channel with the peer at opts.PeerURL and binds a
// session to it. The returned session is pending until the channel opens;
// register callbacks (and send) right away, the open flush keeps order.
func Dial(ctx context.Context, opts DialOptions) (*Conn, error) {
	if opts.PeerURL == "" {
		return nil, fmt.Errorf("peer URL is required")
	}
	// Validate before any connection exists; a bad mode or channel config
	// should never cost a negotiation.
	if _, err := serialize.ParseMode(opts.Serialization); err != nil {
		return nil, err
	}
	if opts.Channel != nil {
		if err := opts.Channel.Validate(); err != nil {
			return nil, err
		}
	}
	if opts.PeerID == "" {
		opts.PeerID = uuid.NewString()
	}
	if opts.Label == "" {
		opts.Label = DefaultLabel
	}

	client := api.NewClient(opts.PeerID)
	client.SetPeerURL(opts.PeerURL)

	rtcAPI := pcwebrtc.NewAPI()

	var conn *pcwebrtc.OfferConn
	signaler := api.NewHTTPSignaler(ctx, client, api.ConnectPayload{
		Label:         opts.Label,
		Serialization: opts.Serialization,
	}, func(candidate webrtc.ICECandidateInit) error {
		return conn.AddICECandidate(candidate)
	})

	conn, err := rtcAPI.NewOfferConnection(pcwebrtc.Config{ICEServers: opts.ICEServers}, signaler)
	if err != nil {
		return nil, err
	}

	dc, err := conn.Establish(ctx, pcwebrtc.ChannelParams{
		Originator: true,
		Kind:       "reliable",
		Label:      opts.Label,
	})
	if err != nil {
		closeConn(conn)
		return nil, err
	}

	ch, err := pcwebrtc.NewChannel(dc, opts.Channel)
	if err != nil {
		closeConn(conn)
		return nil, err
	}
	sess, err := session.New(ch, &session.Config{Serialization: opts.Serialization})
	if err != nil {
		closeConn(conn)
		return nil, err
	}

	slog.Info("Dialed peer", "url", opts.PeerURL, "label", opts.Label, "mode", sess.SerializationMode())
	return &Conn{Session: sess, pc: conn}, nil
}

// closeConn tears a half-built connection down on a Dial error path.
func closeConn(conn *pcwebrtc.OfferConn) {
	if err := conn.Close(); err != nil {
		slog.Warn("Failed to close connection after dial error", "error", err)
	}
}
