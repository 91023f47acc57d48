package websocket

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"signage-fleet-server/internal/domain"
)

type ClientKind string

const (
	KindDevice ClientKind = "device"
	KindAdmin  ClientKind = "admin"
)

type Client struct {
	ID        string
	Kind      ClientKind
	DeviceID  string
	CompanyID string
	Conn      *websocket.Conn
	Manager   *Manager

	snapshot domain.DeviceSnapshot
	send     chan []byte
	// handling is set while an inbound message is being processed.
	handling atomic.Bool
}

// NewDeviceClient wraps an admitted device socket. The snapshot seeds the
// status cache on registration.
func NewDeviceClient(conn *websocket.Conn, manager *Manager, snapshot domain.DeviceSnapshot) *Client {
	return &Client{
		ID:        uuid.NewString(),
		Kind:      KindDevice,
		DeviceID:  snapshot.DeviceID,
		CompanyID: snapshot.CompanyID,
		Conn:      conn,
		Manager:   manager,
		snapshot:  snapshot,
		send:      make(chan []byte, manager.opts.SendBuffer),
	}
}

// NewAdminClient wraps an operator socket. An empty companyID receives
// events for every company.
func NewAdminClient(conn *websocket.Conn, manager *Manager, companyID string) *Client {
	return &Client{
		ID:        uuid.NewString(),
		Kind:      KindAdmin,
		CompanyID: companyID,
		Conn:      conn,
		Manager:   manager,
		send:      make(chan []byte, manager.opts.SendBuffer),
	}
}

// Start registers the client and runs its pumps.
func (c *Client) Start() error {
	if err := c.Manager.Register(c); err != nil {
		c.Conn.Close()
		return err
	}
	go c.WritePump()
	go c.ReadPump()
	return nil
}

func (c *Client) ReadPump() {
	defer func() {
		c.Manager.Unregister(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.opts.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.opts.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.opts.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				logrus.WithError(err).WithField("client_id", c.ID).Debug("Websocket read error")
			}
			break
		}

		if c.Kind != KindDevice {
			continue
		}

		select {
		case c.Manager.inbound <- &ClientMessage{Client: c, Message: message}:
		case <-c.Manager.done:
			return
		}
	}
}

// WritePump sends one frame per queued message. A closed send channel is
// drained first, then the socket is closed.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.Manager.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.opts.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.opts.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
