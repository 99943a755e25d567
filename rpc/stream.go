package rpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"dytallix/core/types"
)

const wsWriteTimeout = 10 * time.Second

// streamHub fans out committed-block notifications to every connected
// /blockchain/stream subscriber. Grounded on the teacher's
// rpc/ws.go streaming handler, simplified from a subscribe-with-cursor
// backlog (core.POSFinalitySubscribe) down to a plain broadcast channel,
// since no consumer in this build needs replay-from-cursor.
type streamHub struct {
	mu          sync.Mutex
	subscribers map[chan *types.BlockHeader]struct{}
}

func newStreamHub() *streamHub {
	return &streamHub{subscribers: make(map[chan *types.BlockHeader]struct{})}
}

func (h *streamHub) subscribe() chan *types.BlockHeader {
	ch := make(chan *types.BlockHeader, 16)
	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *streamHub) unsubscribe(ch chan *types.BlockHeader) {
	h.mu.Lock()
	delete(h.subscribers, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *streamHub) broadcast(header *types.BlockHeader) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers {
		select {
		case ch <- header:
		default:
			// Slow subscriber; drop rather than block the committer.
		}
	}
}

type blockStreamMessage struct {
	Height       uint64 `json:"height"`
	Timestamp    int64  `json:"timestamp"`
	StateRoot    string `json:"stateRoot"`
	TxRoot       string `json:"txRoot"`
	ReceiptsRoot string `json:"receiptsRoot"`
	Proposer     string `json:"proposer"`
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")

	sub := s.hub.subscribe()
	defer s.hub.unsubscribe(sub)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case header, ok := <-sub:
			if !ok {
				return
			}
			if err := writeBlockHeader(ctx, conn, header); err != nil {
				return
			}
		}
	}
}

func writeBlockHeader(ctx context.Context, conn *websocket.Conn, header *types.BlockHeader) error {
	msg := blockStreamMessage{
		Height:       header.Height,
		Timestamp:    header.Timestamp,
		StateRoot:    hex.EncodeToString(header.StateRoot),
		TxRoot:       hex.EncodeToString(header.TxRoot),
		ReceiptsRoot: hex.EncodeToString(header.ReceiptsRoot),
		Proposer:     hex.EncodeToString(header.Proposer),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
