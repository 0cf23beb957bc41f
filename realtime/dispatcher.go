package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/TerryMooreII/rss-reader/models"
)

// RawFrame is one unparsed message from the websocket.
type RawFrame struct {
	Data []byte
}

func (l *Listener) startWorkers(ctx context.Context) {
	for i := 0; i < l.config.Workers; i++ {
		go l.worker(ctx, i)
	}
}

func (l *Listener) worker(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			log.Debugf("Change worker %d: shutting down", id)
			return
		case frame := <-l.queue:
			if err := l.dispatch(frame); err != nil {
				log.Errorf("Change worker %d: %v", id, err)
			}
		}
	}
}

// dispatch decodes one change frame and hands it to the handler. Frames for
// tables other than the subscribed one are dropped; the server should not
// send them, but a protocol hiccup must not reach the handler.
func (l *Listener) dispatch(frame *RawFrame) error {
	var change models.ChangeEvent
	if err := json.Unmarshal(frame.Data, &change); err != nil {
		return fmt.Errorf("failed to decode change frame: %w", err)
	}
	if change.Table != l.config.Table {
		log.WithFields(log.Fields{
			"table": change.Table,
			"type":  change.Type,
		}).Debug("Dropping change frame for unsubscribed table")
		return nil
	}

	wsChangesReceived.WithLabelValues(change.Type).Inc()
	l.handler(change)
	return nil
}
