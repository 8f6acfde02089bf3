// ABOUTME: WebSocket client for watching a remote level feed
// ABOUTME: Handles connection, handshake, and pushing received levels into level channels
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Resonate-Protocol/vumeter/internal/levelchan"
	"github.com/Resonate-Protocol/vumeter/internal/protocol"
	"github.com/Resonate-Protocol/vumeter/pkg/audio/input"
)

const handshakeTimeout = 5 * time.Second

// ErrBadHello is returned when the feed describes an unusable source
var ErrBadHello = errors.New("feed hello has no channels")

// Config holds client configuration
type Config struct {
	ServerAddr string
	Path       string
	ClientID   string
	Name       string
}

// Client is the single producer of level values in watch mode
type Client struct {
	config Config
	log    *logrus.Entry

	conn      *websocket.Conn
	hello     protocol.ServerHello
	closeOnce sync.Once

	received atomic.Uint64
	pushed   atomic.Uint64
	dropped  atomic.Uint64
}

// Stats counts level messages seen by Run
type Stats struct {
	Received uint64
	Pushed   uint64
	Dropped  uint64
}

// NewClient creates a new feed client
func NewClient(config Config, log *logrus.Entry) *Client {
	if config.Path == "" {
		config.Path = protocol.Path
	}
	if config.ClientID == "" {
		config.ClientID = uuid.New().String()
	}
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Client{config: config, log: log}
}

// Connect dials the feed and performs the handshake. Failures are configuration
// errors: nothing has been metered yet.
func (c *Client) Connect(ctx context.Context) error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: c.config.Path}
	c.log.Infof("Connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return c.configError(fmt.Errorf("dial failed: %w", err))
	}
	c.conn = conn

	if err := c.handshake(); err != nil {
		c.Close()
		return c.configError(fmt.Errorf("handshake failed: %w", err))
	}

	c.log.Infof("Watching %s (%d channels at %d Hz)", c.hello.Name, c.hello.Channels, c.hello.SampleRate)
	return nil
}

func (c *Client) configError(err error) error {
	return &input.ConfigError{Backend: "feed", Device: c.config.ServerAddr, Err: err}
}

// handshake sends client/hello and waits for server/hello
func (c *Client) handshake() error {
	hello := protocol.Message{
		Type: protocol.TypeClientHello,
		Payload: protocol.ClientHello{
			ClientID: c.config.ClientID,
			Name:     c.config.Name,
			Version:  protocol.Version,
		},
	}
	if err := c.conn.WriteJSON(hello); err != nil {
		return fmt.Errorf("failed to send client/hello: %w", err)
	}

	c.conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read server/hello: %w", err)
	}
	c.conn.SetReadDeadline(time.Time{})

	if err := protocol.Decode(data, protocol.TypeServerHello, &c.hello); err != nil {
		return err
	}
	if c.hello.Channels < 1 {
		return ErrBadHello
	}
	return nil
}

// Hello returns the server's description of the metered source
func (c *Client) Hello() protocol.ServerHello {
	return c.hello
}

// Run reads level messages and pushes one value per channel until ctx is done or
// the connection drops. A full level channel drops the value, never blocks.
func (c *Client) Run(ctx context.Context, levels []levelchan.Producer) error {
	if len(levels) != c.hello.Channels {
		return fmt.Errorf("feed has %d channels, got %d level channels", c.hello.Channels, len(levels))
	}

	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()
	defer func() {
		c.log.Infof("Feed reader stopped (received: %d, pushed: %d, dropped: %d)",
			c.received.Load(), c.pushed.Load(), c.dropped.Load())
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return &input.DeviceError{Op: "feed", Err: err}
		}

		var msg protocol.Levels
		if err := protocol.Decode(data, protocol.TypeLevels, &msg); err != nil {
			c.log.Debugf("Ignoring message: %v", err)
			continue
		}
		c.received.Add(1)

		if len(msg.Levels) != len(levels) {
			c.log.Warnf("Levels message has %d channels, expected %d", len(msg.Levels), len(levels))
			continue
		}
		for ch, v := range msg.Levels {
			if levels[ch].Push(v) {
				c.pushed.Add(1)
			} else {
				c.dropped.Add(1)
			}
		}
	}
}

// Stats returns counters for the current run
func (c *Client) Stats() Stats {
	return Stats{
		Received: c.received.Load(),
		Pushed:   c.pushed.Load(),
		Dropped:  c.dropped.Load(),
	}
}

// Close closes the connection; safe to call more than once
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}
