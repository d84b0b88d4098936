package session

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/lumeo-ai/lumeo/internal/audio"
	"github.com/lumeo-ai/lumeo/internal/flow"
	"github.com/lumeo-ai/lumeo/internal/shared"
	"github.com/lumeo-ai/lumeo/internal/tools"
	"github.com/lumeo-ai/lumeo/internal/transcript"
)

type ManagerConfig struct {
	Connection   flow.ConnectionConfig
	Audio        flow.AudioSettings
	Conversation flow.ConversationConfig
	Backoff      shared.BackoffConfig
	Registry     *tools.Registry
	Records      *Store            // optional
	Transcripts  *transcript.Store // optional
	Log          *slog.Logger
}

// Manager holds the live controllers keyed by session ID.
type Manager struct {
	cfg ManagerConfig
	log *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Controller
}

func NewManager(cfg ManagerConfig) *Manager {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		cfg:      cfg,
		log:      log.With("component", "session_manager"),
		sessions: make(map[string]*Controller),
	}
}

// Create builds a controller bound to the given UI surface and playback
// device and registers it under a fresh session ID.
func (m *Manager) Create(ui UI, device audio.Device) *Controller {
	id := uuid.NewString()

	var tbuf *transcript.Buffer
	if m.cfg.Transcripts != nil {
		tbuf = transcript.NewBuffer(m.cfg.Transcripts, id, m.log)
	}

	ctrl := NewController(Config{
		SessionID:    id,
		Connection:   m.cfg.Connection,
		Audio:        m.cfg.Audio,
		Conversation: m.cfg.Conversation,
		Backoff:      m.cfg.Backoff,
		Registry:     m.cfg.Registry,
		UI:           ui,
		Device:       device,
		Records:      m.cfg.Records,
		Transcript:   tbuf,
		Log:          m.log,
	})

	m.mu.Lock()
	m.sessions[id] = ctrl
	m.mu.Unlock()

	m.log.Info("session created", "session_id", id)
	return ctrl
}

func (m *Manager) Get(id string) (*Controller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ctrl, ok := m.sessions[id]
	return ctrl, ok
}

// Remove stops the controller and drops it from the map.
func (m *Manager) Remove(ctx context.Context, id string) {
	m.mu.Lock()
	ctrl, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	if ctrl != nil {
		if err := ctrl.Close(ctx); err != nil {
			m.log.Error("failed to stop session", "session_id", id, "error", err)
		}
		m.log.Info("session removed", "session_id", id)
	}
}

func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close stops every live session. Used on server shutdown.
func (m *Manager) Close() error {
	m.mu.Lock()
	sessions := make([]*Controller, 0, len(m.sessions))
	for _, ctrl := range m.sessions {
		sessions = append(sessions, ctrl)
	}
	m.sessions = make(map[string]*Controller)
	m.mu.Unlock()

	for _, ctrl := range sessions {
		if err := ctrl.Close(context.Background()); err != nil {
			m.log.Error("failed to stop session", "session_id", ctrl.ID(), "error", err)
		}
	}
	return nil
}
