package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/rescp17/peerchannel/internal/ui"
	"github.com/rescp17/peerchannel/pkg/discovery"
	"github.com/rescp17/peerchannel/pkg/peer"
	"github.com/rescp17/peerchannel/pkg/serialize"
	"github.com/rescp17/peerchannel/pkg/session"
)

func main() {
	var (
		port          int
		serialization string
	)

	root := &cobra.Command{
		Use:   "peerchannel",
		Short: "Send arbitrarily large values between peers over WebRTC data channels",
	}
	root.PersistentFlags().IntVar(&port, "port", 8080, "Signaling port")
	root.PersistentFlags().StringVar(&serialization, "serialization", "binary", "Serialization mode: binary, binary-utf8, json or none")

	var name string
	listenCmd := &cobra.Command{
		Use:   "listen",
		Short: "Accept a connection and print received values",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runListen(cmd.Context(), port, name)
		},
	}
	listenCmd.Flags().StringVar(&name, "name", "", "Announce this instance name over mDNS")

	var filePath string
	sendCmd := &cobra.Command{
		Use:   "send [peer-url] [message]",
		Short: "Connect to a peer and send a message or file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			message := ""
			if len(args) > 1 {
				message = args[1]
			}
			return runSend(cmd.Context(), args[0], message, filePath, serialization)
		},
	}
	sendCmd.Flags().StringVar(&filePath, "file", "", "Send the contents of this file instead of a message")

	discoverCmd := &cobra.Command{
		Use:   "discover",
		Short: "Browse for peers announced on the local network",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiscover(cmd.Context())
		},
	}

	root.AddCommand(listenCmd, sendCmd, discoverCmd)

	if err := fang.Execute(context.Background(), root); err != nil {
		os.Exit(1)
	}
}

// wireSessionEvents forwards session callbacks into the UI event channel.
func wireSessionEvents(sess *session.Session, events chan<- tea.Msg) {
	sess.OnOpen(func() {
		events <- ui.SessionOpenMsg{Mode: sess.SerializationMode()}
	})
	sess.OnData(func(value any) {
		events <- ui.DataMsg{Value: value}
	})
	sess.OnError(func(err error) {
		events <- ui.ErrMsg{Err: err}
	})
	sess.OnClose(func() {
		events <- ui.ClosedMsg{}
	})
}

func runListen(ctx context.Context, port int, name string) error {
	listener, err := peer.Listen(ctx, peer.ListenOptions{Port: port, Name: name})
	if err != nil {
		return err
	}
	defer listener.Close()

	events := make(chan tea.Msg, 16)
	go func() {
		sess := <-listener.Sessions()
		wireSessionEvents(sess, events)
	}()

	model := ui.NewModel(ui.Receiver, "port "+strconv.Itoa(port), events)
	_, err = tea.NewProgram(model).Run()
	return err
}

func runSend(ctx context.Context, peerURL, message, filePath, serialization string) error {
	conn, err := peer.Dial(ctx, peer.DialOptions{
		PeerURL:       peerURL,
		Serialization: serialization,
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	events := make(chan tea.Msg, 16)
	wireSessionEvents(conn.Session, events)

	var value any = message
	summary := fmt.Sprintf("%q", message)
	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", filePath, err)
		}
		value = serialize.File{Name: filepath.Base(filePath), Data: data}
		summary = fmt.Sprintf("file %q (%d bytes)", filepath.Base(filePath), len(data))
	}

	// Send after the channel opens; the session would buffer anyway, but
	// this keeps the first UI event the open notice rather than an error.
	conn.Session.OnOpen(func() {
		events <- ui.SessionOpenMsg{Mode: conn.Session.SerializationMode()}
		conn.Session.Send(value)
		events <- ui.SentMsg{Summary: summary}
	})

	model := ui.NewModel(ui.Sender, peerURL, events)
	_, err = tea.NewProgram(model).Run()
	return err
}

func runDiscover(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	adapter := &discovery.MDNSAdapter{}
	fmt.Println("Browsing for peers (10s)...")
	for result := range adapter.Discover(ctx, discovery.DefaultServiceType) {
		if result.Error != nil {
			return result.Error
		}
		for _, svc := range result.Services {
			fmt.Printf("  %s  http://%s:%d\n", svc.Name, svc.Addr, svc.Port)
		}
	}
	return nil
}
