package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/wfunc/blinkduel/logger"
)

// NATSNotifier publishes outcomes on <prefix>.<roomCode>.
type NATSNotifier struct {
	conn   *nats.Conn
	prefix string
}

// DialNATS connects with reconnects enabled.
func DialNATS(url string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("blinkduel"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.Log.Warnf("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Log.Infof("NATS reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			logger.Log.Errorf("NATS error: %v", err)
		}),
	}

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

// NewNATSNotifier publishes through conn.
func NewNATSNotifier(conn *nats.Conn, prefix string) *NATSNotifier {
	if prefix == "" {
		prefix = "pvp.outcome"
	}
	return &NATSNotifier{conn: conn, prefix: prefix}
}

// Subject returns the subject of the outcome of room code.
func (n *NATSNotifier) Subject(code string) string {
	return n.prefix + "." + code
}

func (n *NATSNotifier) Notify(ctx context.Context, o Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(n.Subject(o.RoomCode))
	msg.Data = data
	msg.Header.Set("Event-ID", uuid.NewString())
	msg.Header.Set("Content-Type", "application/json")

	if err := n.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish outcome %s: %w", o.RoomCode, err)
	}
	return n.conn.FlushWithContext(ctx)
}

// Close drains the connection.
func (n *NATSNotifier) Close() error {
	return n.conn.Drain()
}
