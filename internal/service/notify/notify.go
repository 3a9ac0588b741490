// Package notify holds the default host-side notification and audio
// implementations. Headless deployments log instead of rendering; browser
// or desktop hosts swap in their own implementations of the same ports.
package notify

import (
	"context"
	"fmt"

	"github.com/tadams95/4ex.ninja-sub006/internal/domain/models"
	"github.com/tadams95/4ex.ninja-sub006/pkg/logger"
)

// LogNotifier implements repository.Notifier by writing push payloads to
// the structured log. Permission is always granted.
type LogNotifier struct {
	log *logger.Logger
}

func NewLogNotifier(log *logger.Logger) *LogNotifier {
	return &LogNotifier{log: log.With("notify")}
}

func (n *LogNotifier) RequestPermission(ctx context.Context) (bool, error) {
	return true, nil
}

func (n *LogNotifier) Push(sn models.SignalNotification) error {
	n.log.Info("push notification",
		logger.String("title", Title(sn)),
		logger.String("body", Body(sn)),
		logger.String("signal_id", sn.SignalID))
	return nil
}

// Title renders the push notification title for a signal.
func Title(n models.SignalNotification) string {
	return fmt.Sprintf("%s %s Signal", n.Pair, n.SignalType)
}

// Body renders the push notification body for a signal.
func Body(n models.SignalNotification) string {
	return fmt.Sprintf("Entry %.5f, confidence %.0f%%", n.EntryPrice, n.ConfidenceScore*100)
}

// LogAudio implements repository.AudioPlayer by logging the cue that would
// have played.
type LogAudio struct {
	log *logger.Logger
}

func NewLogAudio(log *logger.Logger) *LogAudio {
	return &LogAudio{log: log.With("audio")}
}

func (a *LogAudio) Play(signalType models.SignalType) error {
	a.log.Debug("audio cue", logger.String("signal_type", string(signalType)))
	return nil
}
