package mapping

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/searchmapper/internal/mapping/store"
	"github.com/Adithya-Monish-Kumar-K/searchmapper/pkg/kafka"
)

// UpdateEvent announces an installed mapping version on the mapping
// updates topic.
type UpdateEvent struct {
	Index   string          `json:"index"`
	Type    string          `json:"type"`
	Version int64           `json:"version"`
	Mapping json.RawMessage `json:"mapping"`
}

// HandleUpdate returns a Kafka MessageHandler that installs mapping
// versions announced by other workers of the same index. Versions at or
// below the local snapshot are ignored.
func (s *Service) HandleUpdate() kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		event, err := kafka.DecodeJSON[UpdateEvent](value)
		if err != nil {
			return err
		}
		if event.Index != s.index {
			return nil
		}
		if cur := s.snapshot(event.Type); cur != nil && cur.Version() >= event.Version {
			return nil
		}
		dm, err := s.fromRecord(store.Record{
			Index:   event.Index,
			Type:    event.Type,
			Version: event.Version,
			Source:  event.Mapping,
		})
		if err != nil {
			return fmt.Errorf("%w: %w", kafka.ErrPoison, err)
		}
		if installed := s.swapIfNewer(dm); installed == dm {
			s.logger.Info("mapping update received", "type", event.Type, "version", event.Version, "key", string(key))
		}
		return nil
	}
}
