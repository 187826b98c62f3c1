package handlers

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/docchat-backend/internal/chat"
	"github.com/yungbote/docchat-backend/internal/platform/apierr"
)

// invokeRequest accepts both the runnable-style body
// {input, config:{configurable:{session_id}}} and flat user/chat ids.
type invokeRequest struct {
	Input  json.RawMessage `json:"input"`
	Config struct {
		Configurable struct {
			SessionID string `json:"session_id"`
		} `json:"configurable"`
	} `json:"config"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	ChatID    string `json:"chat_id"`
	K         int    `json:"k"`
}

func (r invokeRequest) sessionID() string {
	if s := strings.TrimSpace(r.Config.Configurable.SessionID); s != "" {
		return s
	}
	return strings.TrimSpace(r.SessionID)
}

func (r invokeRequest) answerRequest() (chat.AnswerRequest, error) {
	input, err := decodeInput(r.Input)
	if err != nil {
		return chat.AnswerRequest{}, err
	}
	return chat.AnswerRequest{
		UserID:    r.UserID,
		ChatID:    r.ChatID,
		SessionID: r.sessionID(),
		Input:     input,
	}, nil
}

const maxInputDepth = 4

// decodeInput unwraps "text", {"input": "text"} and {"input": {"input": "text"}}.
func decodeInput(raw json.RawMessage) (string, error) {
	for depth := 0; depth < maxInputDepth; depth++ {
		if len(raw) == 0 || string(raw) == "null" {
			return "", nil
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s, nil
		}
		var obj struct {
			Input json.RawMessage `json:"input"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return "", fmt.Errorf("%w: input must be a string or an object with an input field", apierr.ErrInvalidArgument)
		}
		raw = obj.Input
	}
	return "", fmt.Errorf("%w: input is nested too deeply", apierr.ErrInvalidArgument)
}
