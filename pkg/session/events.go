package session

import (
	"context"
	"strconv"
	"time"

	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/common"
	"github.com/ainblockchain/papers-with-claudecode-sub002/pkg/types"
	"github.com/rs/zerolog/log"
)

const (
	eventBufferSize  = 256
	eventEmitTimeout = 2 * time.Second
)

// SetEventEmitter publishes every status transition to emitter. Call before Start.
func (m *Manager) SetEventEmitter(emitter common.EventEmitter) {
	m.emitter = emitter
}

// publish queues a transition event without blocking. Caller holds e.mu.
func (m *Manager) publish(s types.Session, from types.SessionStatus) {
	if m.emitter == nil {
		return
	}

	event := map[string]any{
		"session_id": s.Id,
		"owner_id":   s.OwnerId,
		"from":       string(from),
		"to":         string(s.Status),
		"at":         strconv.FormatInt(m.now().UnixMilli(), 10),
	}

	select {
	case m.events <- event:
	default:
		log.Warn().Str("session_id", s.Id).Str("to", string(s.Status)).Msg("session event dropped, buffer full")
	}
}

func (m *Manager) eventLoop() {
	defer m.eventsDone.Done()

	for {
		select {
		case event := <-m.events:
			m.emit(event)
		case <-m.stopEvents:
			for {
				select {
				case event := <-m.events:
					m.emit(event)
				default:
					return
				}
			}
		}
	}
}

func (m *Manager) emit(event map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), eventEmitTimeout)
	defer cancel()

	if err := m.emitter.Emit(ctx, event); err != nil {
		log.Warn().Err(err).Interface("event", event).Msg("failed to emit session event")
	}
}
