package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/docchat-backend/internal/domain"
	"github.com/yungbote/docchat-backend/internal/platform/apierr"
	"github.com/yungbote/docchat-backend/internal/platform/ctxutil"
	"github.com/yungbote/docchat-backend/internal/platform/logger"
)

const (
	DefaultHistoryTTL = 24 * time.Hour
	DefaultListLimit  = 50
	MaxListLimit      = 200
)

func historyKey(sessionID string) string   { return "message_store:" + sessionID }
func metaKey(userID, chatID string) string { return "chatmeta:" + userID + ":" + chatID }
func chatsKey(userID string) string        { return "chats:" + userID }

// storedMessage mirrors the {"type", "data": {"content"}} records kept in
// message_store lists.
type storedMessage struct {
	Type string `json:"type"`
	Data struct {
		Content string `json:"content"`
	} `json:"data"`
}

// Store owns chat history and chat metadata in Redis.
type Store struct {
	log *logger.Logger
	rdb goredis.UniversalClient
	ttl time.Duration
	now func() time.Time
}

type Option func(*Store)

// WithClock overrides the time source used for created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func NewStore(log *logger.Logger, rdb goredis.UniversalClient, historyTTL time.Duration, opts ...Option) *Store {
	if historyTTL <= 0 {
		historyTTL = DefaultHistoryTTL
	}
	s := &Store{
		log: log.With("component", "SessionStore"),
		rdb: rdb,
		ttl: historyTTL,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func requireIDs(ids ...string) error {
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return fmt.Errorf("%w: user_id and chat_id are required", apierr.ErrInvalidArgument)
		}
	}
	return nil
}

// NormalizeTitle trims, clamps to MaxChatTitleLen runes and falls back to
// the default title when nothing is left.
func NormalizeTitle(title string) string {
	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) > domain.MaxChatTitleLen {
		title = strings.TrimSpace(string([]rune(title)[:domain.MaxChatTitleLen]))
	}
	if title == "" {
		return domain.DefaultChatTitle
	}
	return title
}

func (s *Store) CreateChat(ctx context.Context, userID, title string) (domain.ChatMeta, error) {
	if err := requireIDs(userID); err != nil {
		return domain.ChatMeta{}, err
	}
	now := s.now().Unix()
	meta := domain.ChatMeta{
		ChatID:    uuid.New().String(),
		Title:     NormalizeTitle(title),
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.HSet(ctx, metaKey(userID, meta.ChatID), metaFields(meta))
		p.ZAdd(ctx, chatsKey(userID), goredis.Z{Score: float64(now), Member: meta.ChatID})
		return nil
	})
	if err != nil {
		return domain.ChatMeta{}, apierr.Upstream("create chat", err)
	}
	return meta, nil
}

// ListChats returns the user's chats, most recently updated first.
func (s *Store) ListChats(ctx context.Context, userID string, limit int) ([]domain.ChatMeta, error) {
	if err := requireIDs(userID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	ids, err := s.rdb.ZRevRange(ctx, chatsKey(userID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, apierr.Upstream("list chats", err)
	}
	if len(ids) == 0 {
		return []domain.ChatMeta{}, nil
	}

	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	_, err = s.rdb.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, metaKey(userID, id))
		}
		return nil
	})
	if err != nil {
		return nil, apierr.Upstream("list chats", err)
	}

	// Index entries without metadata are skipped, not repaired.
	out := make([]domain.ChatMeta, 0, len(ids))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		out = append(out, parseMeta(ids[i], fields))
	}
	return out, nil
}

func (s *Store) GetChat(ctx context.Context, userID, chatID string) (domain.ChatMeta, error) {
	if err := requireIDs(userID, chatID); err != nil {
		return domain.ChatMeta{}, err
	}
	fields, err := s.rdb.HGetAll(ctx, metaKey(userID, chatID)).Result()
	if err != nil {
		return domain.ChatMeta{}, apierr.Upstream("get chat", err)
	}
	if len(fields) == 0 {
		return domain.ChatMeta{}, fmt.Errorf("chat %s: %w", chatID, apierr.ErrNotFound)
	}
	return parseMeta(chatID, fields), nil
}

// GetMessages returns the chat's history oldest first; a chat without
// history yields an empty slice.
func (s *Store) GetMessages(ctx context.Context, userID, chatID string) ([]domain.ChatMessage, error) {
	if err := requireIDs(userID, chatID); err != nil {
		return nil, err
	}
	return s.History(ctx, domain.SessionID(userID, chatID))
}

func (s *Store) History(ctx context.Context, sessionID string) ([]domain.ChatMessage, error) {
	raw, err := s.rdb.LRange(ctx, historyKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, apierr.Upstream("read history", err)
	}
	out := make([]domain.ChatMessage, 0, len(raw))
	for _, r := range raw {
		var m storedMessage
		if err := json.Unmarshal([]byte(r), &m); err != nil || m.Type == "" {
			s.log.Warn("skipping malformed history entry", append(ctxutil.LogFields(ctx), "session_id", sessionID)...)
			continue
		}
		out = append(out, domain.ChatMessage{Role: m.Type, Content: m.Data.Content})
	}
	return out, nil
}

// RenameChat sets the title, bumps updated_at and moves the chat to the
// front of the recency index.
func (s *Store) RenameChat(ctx context.Context, userID, chatID, title string) (domain.ChatMeta, error) {
	if err := requireIDs(userID, chatID); err != nil {
		return domain.ChatMeta{}, err
	}
	meta, err := s.bump(ctx, userID, chatID, NormalizeTitle(title))
	if err != nil {
		if errors.Is(err, apierr.ErrNotFound) {
			return domain.ChatMeta{}, err
		}
		return domain.ChatMeta{}, apierr.Upstream("rename chat", err)
	}
	return meta, nil
}

// DeleteChat removes metadata, recency entry and history. Every step is
// attempted; failures are joined.
func (s *Store) DeleteChat(ctx context.Context, userID, chatID string) error {
	if err := requireIDs(userID, chatID); err != nil {
		return err
	}
	var errs []error
	if err := s.rdb.Del(ctx, metaKey(userID, chatID)).Err(); err != nil {
		errs = append(errs, fmt.Errorf("delete chat meta: %w", err))
	}
	if err := s.rdb.ZRem(ctx, chatsKey(userID), chatID).Err(); err != nil {
		errs = append(errs, fmt.Errorf("remove chat from index: %w", err))
	}
	if err := s.rdb.Del(ctx, historyKey(domain.SessionID(userID, chatID))).Err(); err != nil {
		errs = append(errs, fmt.Errorf("delete chat history: %w", err))
	}
	if len(errs) > 0 {
		return apierr.Upstream("delete chat", errors.Join(errs...))
	}
	return nil
}

func (s *Store) ClearMessages(ctx context.Context, sessionID string) error {
	if strings.TrimSpace(sessionID) == "" {
		return fmt.Errorf("%w: session_id is required", apierr.ErrInvalidArgument)
	}
	if err := s.rdb.Del(ctx, historyKey(sessionID)).Err(); err != nil {
		return apierr.Upstream("clear history", err)
	}
	return nil
}

// AppendTurn records a human message and the model reply, then refreshes
// the history TTL.
func (s *Store) AppendTurn(ctx context.Context, sessionID, human, ai string) error {
	h, err := encodeMessage(domain.RoleHuman, human)
	if err != nil {
		return err
	}
	a, err := encodeMessage(domain.RoleAI, ai)
	if err != nil {
		return err
	}
	key := historyKey(sessionID)
	_, err = s.rdb.TxPipelined(ctx, func(p goredis.Pipeliner) error {
		p.RPush(ctx, key, h, a)
		p.Expire(ctx, key, s.ttl)
		return nil
	})
	if err != nil {
		return apierr.Upstream("append history", err)
	}
	return nil
}

// Touch bumps updated_at and recency for an existing chat; unknown chats
// are left alone.
func (s *Store) Touch(ctx context.Context, userID, chatID string) error {
	if err := requireIDs(userID, chatID); err != nil {
		return err
	}
	_, err := s.bump(ctx, userID, chatID, "")
	if err == nil || errors.Is(err, apierr.ErrNotFound) {
		return nil
	}
	return apierr.Upstream("touch chat", err)
}

const maxBumpAttempts = 3

// bump sets updated_at (and the title when non-empty) on an existing chat
// and re-scores it in the recency index. The meta key is watched so a
// concurrent DeleteChat cannot leave a partial hash behind.
func (s *Store) bump(ctx context.Context, userID, chatID, title string) (domain.ChatMeta, error) {
	key := metaKey(userID, chatID)
	var meta domain.ChatMeta
	txf := func(tx *goredis.Tx) error {
		fields, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		if len(fields) == 0 {
			return fmt.Errorf("chat %s: %w", chatID, apierr.ErrNotFound)
		}
		meta = parseMeta(chatID, fields)
		meta.UpdatedAt = s.now().Unix()
		if title != "" {
			meta.Title = title
		}
		_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
			if title != "" {
				p.HSet(ctx, key, "title", meta.Title, "updated_at", meta.UpdatedAt)
			} else {
				p.HSet(ctx, key, "updated_at", meta.UpdatedAt)
			}
			p.ZAdd(ctx, chatsKey(userID), goredis.Z{Score: float64(meta.UpdatedAt), Member: chatID})
			return nil
		})
		return err
	}

	var err error
	for i := 0; i < maxBumpAttempts; i++ {
		err = s.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, goredis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		return domain.ChatMeta{}, err
	}
	return meta, nil
}

func encodeMessage(role, content string) (string, error) {
	var m storedMessage
	m.Type = role
	m.Data.Content = content
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func metaFields(m domain.ChatMeta) map[string]interface{} {
	return map[string]interface{}{
		"chat_id":    m.ChatID,
		"title":      m.Title,
		"created_at": m.CreatedAt,
		"updated_at": m.UpdatedAt,
	}
}

func parseMeta(chatID string, fields map[string]string) domain.ChatMeta {
	m := domain.ChatMeta{ChatID: chatID, Title: fields["title"]}
	if v := fields["chat_id"]; v != "" {
		m.ChatID = v
	}
	m.CreatedAt, _ = strconv.ParseInt(fields["created_at"], 10, 64)
	m.UpdatedAt, _ = strconv.ParseInt(fields["updated_at"], 10, 64)
	if m.Title == "" {
		m.Title = domain.DefaultChatTitle
	}
	return m
}
