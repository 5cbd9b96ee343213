// Package notify implements the outbound notification capability. The
// engine fires events and forgets them; delivery failures never affect
// trigger processing.
package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trailguard/internal/domain"
)

const webhookTimeout = 10 * time.Second

type journal interface {
	Append(event domain.Event) error
}

// Notifier logs every event, journals it, and optionally posts it to a
// webhook in the background.
type Notifier struct {
	logger     *zap.Logger
	journal    journal
	webhookURL string
	hc         *http.Client
	now        func() time.Time
	newID      func() string
}

// NewNotifier builds a notifier. journal and webhookURL may be nil/empty;
// the log line is always produced.
func NewNotifier(logger *zap.Logger, journal journal, webhookURL string) *Notifier {
	return &Notifier{
		logger:     logger,
		journal:    journal,
		webhookURL: webhookURL,
		hc:         &http.Client{Timeout: webhookTimeout},
		now:        time.Now,
		newID:      func() string { return uuid.NewString() },
	}
}

// Notify emits one event. Journal and webhook failures are logged and
// swallowed.
func (n *Notifier) Notify(kind domain.EventKind, fields map[string]string) {
	event := domain.Event{
		ID:        n.newID(),
		Kind:      kind,
		Timestamp: n.now(),
		Fields:    fields,
	}

	logFields := make([]zap.Field, 0, len(fields)+1)
	logFields = append(logFields, zap.String("kind", string(kind)))
	for k, v := range fields {
		logFields = append(logFields, zap.String(k, v))
	}
	n.logger.Info("notification", logFields...)

	if n.journal != nil {
		if err := n.journal.Append(event); err != nil {
			n.logger.Warn("failed to journal event", zap.String("kind", string(kind)), zap.Error(err))
		}
	}

	if n.webhookURL != "" {
		go n.post(event)
	}
}

func (n *Notifier) post(event domain.Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		n.logger.Warn("failed to encode webhook payload", zap.Error(err))
		return
	}

	resp, err := n.hc.Post(n.webhookURL, "application/json", bytes.NewReader(payload))
	if err != nil {
		n.logger.Warn("webhook delivery failed", zap.String("kind", string(event.Kind)), zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		n.logger.Warn("webhook rejected event",
			zap.String("kind", string(event.Kind)), zap.Int("status", resp.StatusCode))
	}
}
