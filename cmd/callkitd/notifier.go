package main

import (
	"log/slog"

	"github.com/arzzra/callkit/pkg/callkit"
)

// logNotifier уведомления о звонках для демона без графической оболочки.
// Клиенты узнают о звонках из потока событий, уведомления только логируются.
type logNotifier struct {
	logger *slog.Logger
}

func newLogNotifier(logger *slog.Logger) *logNotifier {
	return &logNotifier{logger: logger.With(slog.String("component", "notifications"))}
}

func (n *logNotifier) ShowIncoming(meta callkit.Metadata) {
	n.logger.Info("incoming call notification", slog.String("caller", meta.CallerName), slog.String("handle", meta.Handle))
}

func (n *logNotifier) ClearIncoming(meta callkit.Metadata) {
	n.logger.Debug("incoming call notification cleared", slog.String("handle", meta.Handle))
}

func (n *logNotifier) ShowOngoing(meta callkit.Metadata) {
	n.logger.Info("ongoing call notification", slog.String("caller", meta.CallerName), slog.String("handle", meta.Handle))
}

func (n *logNotifier) ShowMissed(meta callkit.Metadata) {
	n.logger.Info("missed call notification", slog.String("caller", meta.CallerName), slog.String("handle", meta.Handle))
}
