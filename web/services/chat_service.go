package services

import (
	"context"
	"sync"
	"time"

	"crispr-agent/agent"
	"crispr-agent/config"
	"crispr-agent/database"
	"crispr-agent/web/types"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"
)

// ChatService owns the session boundary of the dialogue loop: it serializes
// turns per session identifier, loads and persists history, and caches the
// histories of recently active sessions. Distinct sessions proceed in
// parallel; one session is never advanced by two turns at once.
type ChatService struct {
	cfg          *config.Config
	store        *database.PostgresStore
	agent        *agent.Agent
	logger       *zap.Logger
	historyCache *lru.Cache

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// TurnResult is what one completed turn hands back to the HTTP surface.
type TurnResult struct {
	Session types.Session
	Answer  string
}

func NewChatService(cfg *config.Config, store *database.PostgresStore, ag *agent.Agent, logger *zap.Logger) (*ChatService, error) {
	cache, err := lru.New(cfg.SessionCacheSize)
	if err != nil {
		return nil, err
	}
	return &ChatService{
		cfg:          cfg,
		store:        store,
		agent:        ag,
		logger:       logger,
		historyCache: cache,
		locks:        make(map[uuid.UUID]*sync.Mutex),
	}, nil
}

// sessionLock returns the mutex guarding one session identifier. Lock entries
// are small and never removed; sessions are bounded by the retention policy.
func (cs *ChatService) sessionLock(sessionID uuid.UUID) *sync.Mutex {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	lock, ok := cs.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		cs.locks[sessionID] = lock
	}
	return lock
}

// HandleMessage runs one full turn for the session: load history, run the
// dialogue loop, and commit the turn's messages atomically. A session is
// created on first contact with an unknown identifier.
func (cs *ChatService) HandleMessage(ctx context.Context, sessionID uuid.UUID, input string) (TurnResult, error) {
	lock := cs.sessionLock(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, isNew, err := cs.loadOrCreateSession(ctx, sessionID)
	if err != nil {
		return TurnResult{}, err
	}

	history, err := cs.loadHistory(ctx, sessionID)
	if err != nil {
		return TurnResult{}, err
	}

	appended, answer, err := cs.agent.Run(ctx, input, sessionID.String(), history)
	if err != nil {
		// Nothing from the aborted turn is persisted.
		return TurnResult{}, err
	}

	if err := cs.store.AppendMessages(ctx, sessionID, appended); err != nil {
		cs.logger.Error("Failed to persist turn",
			zap.Error(err),
			zap.String("session_id", sessionID.String()))
		cs.historyCache.Remove(sessionID)
		return TurnResult{}, err
	}
	cs.historyCache.Add(sessionID, append(history, appended...))

	if isNew {
		cs.generateTitleAsync(sessionID, input)
	}

	return TurnResult{Session: session, Answer: answer}, nil
}

func (cs *ChatService) loadOrCreateSession(ctx context.Context, sessionID uuid.UUID) (types.Session, bool, error) {
	session, err := cs.store.GetSessionByID(ctx, sessionID)
	if err == nil {
		return session, false, nil
	}
	if !database.IsNotFound(err) {
		cs.logger.Error("Failed to load session",
			zap.Error(err),
			zap.String("session_id", sessionID.String()))
		return types.Session{}, false, err
	}

	session, err = cs.store.CreateSession(ctx, sessionID)
	if err != nil {
		return types.Session{}, false, err
	}
	cs.logger.Info("Created session", zap.String("session_id", sessionID.String()))
	return session, true, nil
}

func (cs *ChatService) loadHistory(ctx context.Context, sessionID uuid.UUID) ([]types.AgentMessage, error) {
	if cached, ok := cs.historyCache.Get(sessionID); ok {
		if history, ok := cached.([]types.AgentMessage); ok {
			return history, nil
		}
	}
	history, err := cs.store.GetMessagesBySession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return history, nil
}

// generateTitleAsync titles a new session off the turn's critical path.
// Failures keep the fallback title from session creation.
func (cs *ChatService) generateTitleAsync(sessionID uuid.UUID, firstMessage string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		title, err := cs.agent.GenerateTitle(ctx, firstMessage)
		if err != nil {
			cs.logger.Warn("Failed to generate session title",
				zap.Error(err),
				zap.String("session_id", sessionID.String()))
			return
		}
		if err := cs.store.UpdateSessionTitle(ctx, sessionID, title); err != nil {
			cs.logger.Warn("Failed to store session title",
				zap.Error(err),
				zap.String("session_id", sessionID.String()))
		}
	}()
}

// Sessions lists active sessions, most recent first. Returns an empty slice
// on error to allow graceful degradation.
func (cs *ChatService) Sessions(ctx context.Context) []types.Session {
	sessions, err := cs.store.GetSessions(ctx)
	if err != nil {
		cs.logger.Error("Failed to list sessions", zap.Error(err))
		return []types.Session{}
	}
	return sessions
}

// History returns the ordered message history for a session.
func (cs *ChatService) History(ctx context.Context, sessionID uuid.UUID) ([]types.AgentMessage, error) {
	return cs.loadHistory(ctx, sessionID)
}
