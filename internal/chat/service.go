package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/yungbote/docchat-backend/internal/domain"
	"github.com/yungbote/docchat-backend/internal/inference/engine"
	"github.com/yungbote/docchat-backend/internal/observability"
	"github.com/yungbote/docchat-backend/internal/platform/apierr"
	"github.com/yungbote/docchat-backend/internal/platform/ctxutil"
	"github.com/yungbote/docchat-backend/internal/platform/logger"
)

type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]domain.Source, error)
}

// HistoryStore is the part of the session store the pipeline writes to.
type HistoryStore interface {
	History(ctx context.Context, sessionID string) ([]domain.ChatMessage, error)
	AppendTurn(ctx context.Context, sessionID, human, ai string) error
	Touch(ctx context.Context, userID, chatID string) error
}

type Config struct {
	Model   string
	Options engine.GenerateOptions
	Persona string
	// K is passed to the retriever; <= 0 uses its default.
	K int
}

type AnswerRequest struct {
	UserID    string
	ChatID    string
	SessionID string
	Input     string
}

type Package struct {
	Output  string          `json:"output"`
	Sources []domain.Source `json:"sources"`
}

type Service struct {
	log       *logger.Logger
	retriever Retriever
	history   HistoryStore
	eng       engine.Engine
	cfg       Config
}

func NewService(log *logger.Logger, retriever Retriever, history HistoryStore, eng engine.Engine, cfg Config) *Service {
	return &Service{
		log:       log.With("component", "AnswerPipeline"),
		retriever: retriever,
		history:   history,
		eng:       eng,
		cfg:       cfg,
	}
}

type turn struct {
	sessionID string
	userID    string
	chatID    string
	query     string
	sources   []domain.Source
	messages  []engine.Message
}

// Answer runs fetch, compose and invoke, then records the turn. History is
// only written when the model call succeeds.
func (s *Service) Answer(ctx context.Context, req AnswerRequest) (*Package, error) {
	start := time.Now()
	t, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	completion, err := s.eng.GenerateText(ctx, s.cfg.Model, t.messages, s.cfg.Options)
	if err != nil {
		return nil, apierr.Upstream("generate", err)
	}
	output := completion.Text()
	s.record(ctx, t, output)
	observability.Current().ObserveAnswer(len(t.sources))

	s.log.Info("answered", append(ctxutil.LogFields(ctx),
		"session_id", t.sessionID,
		"sources", len(t.sources),
		"duration_ms", time.Since(start).Milliseconds(),
	)...)
	return &Package{Output: output, Sources: t.sources}, nil
}

// Stream is Answer with incremental output. onDelta receives text fragments
// in order; history is written after the stream completes.
func (s *Service) Stream(ctx context.Context, req AnswerRequest, onDelta func(string)) (*Package, error) {
	t, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	output, err := s.eng.StreamText(ctx, s.cfg.Model, t.messages, s.cfg.Options, onDelta)
	if err != nil {
		return nil, apierr.Upstream("stream", err)
	}
	s.record(ctx, t, output)
	observability.Current().ObserveAnswer(len(t.sources))
	return &Package{Output: output, Sources: t.sources}, nil
}

// Sources runs retrieval only; it never reads or writes history.
func (s *Service) Sources(ctx context.Context, query string, k int) ([]domain.Source, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: input is required", apierr.ErrInvalidArgument)
	}
	if k <= 0 {
		k = s.cfg.K
	}
	return s.retriever.Retrieve(ctx, query, k)
}

func (s *Service) prepare(ctx context.Context, req AnswerRequest) (*turn, error) {
	query := strings.TrimSpace(req.Input)
	if query == "" {
		return nil, fmt.Errorf("%w: input is required", apierr.ErrInvalidArgument)
	}
	sessionID, userID, chatID, err := ResolveSession(req)
	if err != nil {
		return nil, err
	}

	sources, err := s.retriever.Retrieve(ctx, query, s.cfg.K)
	if err != nil {
		return nil, err
	}
	if sources == nil {
		sources = []domain.Source{}
	}
	history, err := s.history.History(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &turn{
		sessionID: sessionID,
		userID:    userID,
		chatID:    chatID,
		query:     query,
		sources:   sources,
		messages:  composeMessages(s.cfg.Persona, sources, history, query),
	}, nil
}

// record appends the turn and bumps chat recency. The answer has already
// been produced, so failures here are logged, not returned.
func (s *Service) record(ctx context.Context, t *turn, output string) {
	if err := s.history.AppendTurn(ctx, t.sessionID, t.query, output); err != nil {
		s.log.Error("append history failed", append(ctxutil.LogFields(ctx), "session_id", t.sessionID, "error", err)...)
	}
	if t.userID == "" || t.chatID == "" {
		return
	}
	if err := s.history.Touch(ctx, t.userID, t.chatID); err != nil {
		s.log.Warn("touch chat failed", append(ctxutil.LogFields(ctx), "chat_id", t.chatID, "error", err)...)
	}
}

// ResolveSession returns the session id for req together with the user and
// chat it belongs to when those can be determined.
func ResolveSession(req AnswerRequest) (sessionID, userID, chatID string, err error) {
	userID = strings.TrimSpace(req.UserID)
	chatID = strings.TrimSpace(req.ChatID)
	sessionID = strings.TrimSpace(req.SessionID)
	if sessionID == "" {
		if userID == "" || chatID == "" {
			return "", "", "", fmt.Errorf("%w: session_id or user_id and chat_id are required", apierr.ErrInvalidArgument)
		}
		return domain.SessionID(userID, chatID), userID, chatID, nil
	}
	if u, c, ok := ParseSessionID(sessionID); ok {
		return sessionID, u, c, nil
	}
	return sessionID, userID, chatID, nil
}

// ParseSessionID splits "user:<uid>:chat:<cid>".
func ParseSessionID(sessionID string) (userID, chatID string, ok bool) {
	rest, found := strings.CutPrefix(sessionID, "user:")
	if !found {
		return "", "", false
	}
	i := strings.LastIndex(rest, ":chat:")
	if i <= 0 || i+len(":chat:") >= len(rest) {
		return "", "", false
	}
	return rest[:i], rest[i+len(":chat:"):], true
}
