package notify

import (
	"context"
	"encoding/json"
	"time"

	log "github.com/sirupsen/logrus"

	"smartmonitor/internal/strategies"
)

// QueueHandler decodes queued alerts and hands them to a Notifier.
type QueueHandler struct {
	Notifier Notifier
	Logger   *log.Logger
	Timeout  time.Duration
}

// Handle never fails: malformed messages and delivery errors are logged and
// the message is dropped so one bad alert cannot block the queue.
func (h *QueueHandler) Handle(ctx context.Context, body []byte) error {
	logger := h.Logger
	if logger == nil {
		logger = log.StandardLogger()
	}

	var a strategies.Alert
	if err := json.Unmarshal(body, &a); err != nil {
		logger.WithError(err).WithField("size", len(body)).Warn("Dropping malformed alert message")
		return nil
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	nctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := h.Notifier.Notify(nctx, a); err != nil {
		logger.WithFields(log.Fields{
			"rule":      a.RuleName,
			"signature": a.Signature,
			"error":     err.Error(),
		}).Warn("Alert delivery failed")
	}
	return nil
}
