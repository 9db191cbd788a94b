package feed

import (
	"context"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"crossarb/pkg/types"
)

const (
	defaultDialTimeout  = 10 * time.Second
	defaultPingInterval = 30 * time.Second
	defaultPongTimeout  = 60 * time.Second
)

// openStream dials the venue's websocket, subscribes one book channel and
// returns a snapshot channel. The channel closes on any stream error; the
// gateway's handle owns restarts, so no reconnection happens here.
func (d *Driver) openStream(ctx context.Context, instrument types.Instrument, depth int) (<-chan *types.OrderBookSnapshot, error) {
	dialer := websocket.Dialer{HandshakeTimeout: defaultDialTimeout}

	conn, _, err := dialer.DialContext(ctx, d.wsURL, nil)
	if err != nil {
		return nil, &types.VenueError{
			Venue: d.name,
			Op:    "stream-dial",
			Err:   err,
		}
	}

	sub := subscribeMessage{
		Op:         "subscribe",
		Channel:    "book",
		Instrument: string(instrument),
		Depth:      depth,
	}
	err = conn.WriteJSON(sub)
	if err != nil {
		conn.Close()
		return nil, &types.VenueError{
			Venue: d.name,
			Op:    "stream-subscribe",
			Err:   err,
		}
	}

	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(defaultPongTimeout))
	})
	_ = conn.SetReadDeadline(time.Now().Add(defaultPongTimeout))

	out := make(chan *types.OrderBookSnapshot)

	go d.pingLoop(ctx, conn)
	go d.readLoop(ctx, conn, instrument, out)

	return out, nil
}

func (d *Driver) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(defaultPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			if err != nil {
				d.logger.Debug("ping-failed", zap.Error(err))
				conn.Close()
				return
			}
		}
	}
}

// readLoop decodes book messages until the connection drops, then closes
// the output channel so the handle sees the stream end.
func (d *Driver) readLoop(ctx context.Context, conn *websocket.Conn, instrument types.Instrument, out chan<- *types.OrderBookSnapshot) {
	defer close(out)
	defer conn.Close()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				d.logger.Debug("stream-read-failed",
					zap.String("instrument", string(instrument)),
					zap.Error(err))
			}
			return
		}

		var msg bookMessage
		err = json.Unmarshal(raw, &msg)
		if err != nil {
			d.logger.Warn("stream-decode-failed", zap.Error(err))
			continue
		}
		if msg.Channel != "book" || types.Instrument(msg.Instrument) != instrument {
			continue
		}

		book := snapshotFromLevels(d.name, instrument, msg.Asks, msg.Bids, msg.Timestamp)
		if len(book.Asks) == 0 && len(book.Bids) == 0 {
			continue
		}

		select {
		case out <- book:
		case <-ctx.Done():
			return
		}
	}
}
