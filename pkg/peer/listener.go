package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/pion/webrtc/v4"

	"github.com/rescp17/peerchannel/api"
	"github.com/rescp17/peerchannel/pkg/discovery"
	"github.com/rescp17/peerchannel/pkg/session"
	pcwebrtc "github.com/rescp17/peerchannel/pkg/webrtc"
)

// ListenOptions configures the answering side.
type ListenOptions struct {
	// Port for the HTTP signaling endpoint.
	Port int
	// Name announces the endpoint over mDNS under this instance name; empty
	// disables discovery.
	Name string
	// ICEServers overrides the default STUN server list.
	ICEServers []webrtc.ICEServer
	// Channel tunes the data-channel adapter; nil uses defaults.
	Channel *pcwebrtc.ChannelConfig
}

// Listener accepts inbound connections: it serves the signaling endpoint
// and emits one session per successfully negotiated data channel.
type Listener struct {
	sessions chan *session.Session
	httpSrv  *http.Server
	cancel   context.CancelFunc
}

// Listen starts the signaling endpoint and, if a name is configured, the
// mDNS announcement. Sessions arrive on Sessions as remote peers connect.
func Listen(ctx context.Context, opts ListenOptions) (*Listener, error) {
	ctx, cancel := context.WithCancel(ctx)

	l := &Listener{
		sessions: make(chan *session.Session, 1),
		cancel:   cancel,
	}

	rtcAPI := pcwebrtc.NewAPI()
	srv := api.NewServer(rtcAPI, pcwebrtc.Config{ICEServers: opts.ICEServers}, func(dc *webrtc.DataChannel, payload api.ConnectPayload) {
		ch, err := pcwebrtc.NewChannel(dc, opts.Channel)
		if err != nil {
			slog.Error("Failed to wrap data channel", "error", err)
			return
		}
		sess, err := session.New(ch, &session.Config{Serialization: payload.Serialization})
		if err != nil {
			slog.Error("Failed to create session for inbound channel", "label", dc.Label(), "error", err)
			if closeErr := ch.Close(); closeErr != nil {
				slog.Warn("Failed to close rejected channel", "error", closeErr)
			}
			return
		}
		select {
		case l.sessions <- sess:
		case <-ctx.Done():
			if closeErr := sess.Close(); closeErr != nil {
				slog.Warn("Failed to close session on shutdown", "error", closeErr)
			}
		}
	})

	ln, err := net.Listen("tcp", ":"+strconv.Itoa(opts.Port))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to listen on port %d: %w", opts.Port, err)
	}

	l.httpSrv = &http.Server{Handler: srv}
	go func() {
		if err := l.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Signaling server stopped", "error", err)
		}
	}()

	if opts.Name != "" {
		adapter := &discovery.MDNSAdapter{}
		go func() {
			err := adapter.Announce(ctx, discovery.ServiceInfo{
				Name:   opts.Name,
				Type:   discovery.DefaultServiceType,
				Domain: discovery.DefaultDomain,
				Port:   opts.Port,
			})
			if err != nil {
				slog.Warn("mDNS announcement failed", "error", err)
			}
		}()
	}

	slog.Info("Listening for peers", "port", opts.Port, "announce", opts.Name)
	return l, nil
}

// Sessions delivers one session per negotiated inbound channel.
func (l *Listener) Sessions() <-chan *session.Session {
	return l.sessions
}

// Close shuts the signaling endpoint and the announcement down. Sessions
// already handed out stay alive; the peer connections outlive signaling.
func (l *Listener) Close() error {
	l.cancel()
	return l.httpSrv.Close()
}
