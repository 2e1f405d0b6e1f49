package transport

import (
	"log/slog"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// peer is one connected client with a single write goroutine.
type peer struct {
	id     string
	conn   *ws.Conn
	sendCh chan []byte
	done   chan struct{}
	once   sync.Once
	logger *slog.Logger
}

func newPeer(id string, conn *ws.Conn, logger *slog.Logger) *peer {
	return &peer{
		id:     id,
		conn:   conn,
		sendCh: make(chan []byte, peerSendSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

func (p *peer) writeLoop() {
	for {
		select {
		case <-p.done:
			return
		case data := <-p.sendCh:
			if err := p.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				p.logger.Warn("WebSocket SetWriteDeadline error", "peer", p.id, "error", err)
				p.close()
				return
			}
			if err := p.conn.WriteMessage(ws.TextMessage, data); err != nil {
				p.logger.Warn("WebSocket write error", "peer", p.id, "error", err)
				p.close()
				return
			}
		}
	}
}

// send queues data for the client; drops it once the queue is full.
func (p *peer) send(data []byte) {
	select {
	case <-p.done:
	case p.sendCh <- data:
	default:
		p.logger.Warn("Peer send queue full, dropping message", "peer", p.id)
	}
}

func (p *peer) close() {
	p.once.Do(func() {
		close(p.done)
		_ = p.conn.WriteControl(ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""), time.Now().Add(time.Second))
		_ = p.conn.Close()
	})
}
