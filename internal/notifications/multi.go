package notifications

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// MultiPublisher delivers an event to every configured sink
type MultiPublisher struct {
	publishers map[string]AlertPublisher
}

// Ensure MultiPublisher implements AlertPublisher
var _ AlertPublisher = (*MultiPublisher)(nil)

// NewMultiPublisher creates an empty fan-out publisher
func NewMultiPublisher() *MultiPublisher {
	return &MultiPublisher{publishers: make(map[string]AlertPublisher)}
}

// Add registers a named sink
func (m *MultiPublisher) Add(name string, publisher AlertPublisher) {
	m.publishers[name] = publisher
}

// Len reports the number of sinks
func (m *MultiPublisher) Len() int {
	return len(m.publishers)
}

// PublishAlert tries every sink; one failing sink does not stop the others
func (m *MultiPublisher) PublishAlert(ctx context.Context, event AlertEvent) error {
	var errors []string

	for name, publisher := range m.publishers {
		if err := publisher.PublishAlert(ctx, event); err != nil {
			logrus.Errorf("Failed to publish alert %s to %s: %v", event.ID, name, err)
			errors = append(errors, fmt.Sprintf("%s: %v", name, err))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}

	return nil
}
