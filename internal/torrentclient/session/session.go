package session

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/GeminiZA/GoTorrentHandler/internal/logger"
	"github.com/GeminiZA/GoTorrentHandler/internal/torrentclient/engine"
)

// DefaultNotificationMask keeps only error and status notifications.
const DefaultNotificationMask = engine.CategoryError | engine.CategoryStatus

// Manager owns at most one live engine session. It is not safe for
// concurrent use; TorrentClient serializes access.
type Manager struct {
	engine   engine.Engine
	settings engine.Settings
	log      *logger.Logger

	session engine.Session
	id      string
}

func New(eng engine.Engine, log *logger.Logger) *Manager {
	return &Manager{
		engine:   eng,
		settings: engine.Settings{NotificationMask: DefaultNotificationMask},
		log:      log,
	}
}

// Init creates the session if none exists and reports whether it did.
func (m *Manager) Init() (bool, error) {
	if m.session != nil {
		m.log.Info(fmt.Sprintf("Session %s already initialized", m.id))
		return false, nil
	}
	m.log.Info("Initializing session")
	sess, err := m.engine.NewSession(m.settings)
	if err != nil {
		return false, fmt.Errorf("creating session: %w", err)
	}
	m.session = sess
	m.id = uuid.NewString()
	m.log.Info(fmt.Sprintf("Session %s initialized (notifications: %s)", m.id, m.settings.NotificationMask))
	return true, nil
}

// Shutdown closes the session. Without one it does nothing.
func (m *Manager) Shutdown() error {
	if m.session == nil {
		return nil
	}
	id := m.id
	err := m.session.Close()
	m.session = nil
	m.id = ""
	if err != nil {
		return fmt.Errorf("closing session %s: %w", id, err)
	}
	m.log.Info(fmt.Sprintf("Session %s destroyed", id))
	return nil
}

func (m *Manager) Session() (engine.Session, bool) {
	return m.session, m.session != nil
}

func (m *Manager) Initialized() bool {
	return m.session != nil
}

// ID identifies the live session in logs; empty when uninitialized.
func (m *Manager) ID() string {
	return m.id
}
