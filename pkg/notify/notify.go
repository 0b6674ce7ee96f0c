// Package notify delivers engine notifications outside the chat view: to
// the desktop through beeep and to the log.
package notify

import (
	"sync"

	"github.com/aeolun/tower/pkg/engine"
	"github.com/gen2brain/beeep"
	"github.com/rs/zerolog"
)

// Desktop shows notifications as desktop popups
type Desktop struct {
	mu       sync.Mutex
	iconPath string
	logger   zerolog.Logger
	send     func(title, message string, icon any) error
}

// NewDesktop creates a desktop notifier. iconPath may be empty.
func NewDesktop(appName, iconPath string, logger zerolog.Logger) *Desktop {
	if appName != "" {
		beeep.AppName = appName
	}
	return &Desktop{
		iconPath: iconPath,
		logger:   logger,
		send:     beeep.Notify,
	}
}

func (d *Desktop) Notify(n engine.Notification) {
	d.mu.Lock()
	send := d.send
	d.mu.Unlock()

	if err := send(n.Title, n.Description, d.iconPath); err != nil {
		d.logger.Debug().Err(err).Str("title", n.Title).Msg("desktop notification failed")
	}
}

// Log writes notifications to a zerolog logger
type Log struct {
	logger zerolog.Logger
}

func NewLog(logger zerolog.Logger) *Log {
	return &Log{logger: logger}
}

func (l *Log) Notify(n engine.Notification) {
	ev := l.logger.Warn()
	if n.Err == nil {
		ev = l.logger.Info()
	}
	ev.Err(n.Err).
		Str("title", n.Title).
		Str("description", n.Description).
		Bool("retryable", n.Retry != nil).
		Msg("notification")
}

// Multi fans a notification out to every non-nil notifier, in order
type Multi []engine.Notifier

func (m Multi) Notify(n engine.Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(n)
		}
	}
}

var (
	_ engine.Notifier = (*Desktop)(nil)
	_ engine.Notifier = (*Log)(nil)
	_ engine.Notifier = Multi(nil)
)
