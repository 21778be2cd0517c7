package backend

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"voicecall/internal/domain"
)

type chatRequest struct {
	Message     string `json:"message"`
	UseTTS      bool   `json:"use_tts"`
	TTSProvider string `json:"tts_provider"`
}

type chatResponse struct {
	Success  bool    `json:"success"`
	Response string  `json:"response"`
	AudioURL *string `json:"audio_url"`
	Error    string  `json:"error"`
}

// GetReply sends one utterance to the chat endpoint and asks for synthesized audio.
func (c *Client) GetReply(ctx context.Context, text string) (domain.Reply, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.Reply{}, &Error{Op: "chat", Kind: domain.ErrBackend, Err: errors.New("empty message")}
	}

	var out chatResponse
	req := chatRequest{Message: text, UseTTS: true, TTSProvider: c.ttsProvider}
	if err := c.doJSON(ctx, "chat", http.MethodPost, "/api/chat", req, &out, domain.ErrBackend); err != nil {
		return domain.Reply{}, err
	}

	if !out.Success {
		message := strings.TrimSpace(out.Error)
		if message == "" {
			message = "unknown error occurred"
		}
		return domain.Reply{}, &Error{Op: "chat", Kind: domain.ErrBackend, Message: message}
	}
	if strings.TrimSpace(out.Response) == "" {
		return domain.Reply{}, &Error{Op: "chat", Kind: domain.ErrBackend, Message: "empty response"}
	}

	reply := domain.Reply{Text: out.Response}
	if out.AudioURL != nil {
		reply.AudioURL = strings.TrimSpace(*out.AudioURL)
	}
	return reply, nil
}

type historyResponse struct {
	Messages []struct {
		Content    string `json:"content"`
		IsFromUser bool   `json:"is_from_user"`
		Timestamp  string `json:"timestamp"`
	} `json:"messages"`
}

// ChatHistory returns one page of the stored conversation in chronological order.
func (c *Client) ChatHistory(ctx context.Context, page int, perPage int) ([]domain.ChatMessage, error) {
	query := url.Values{}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if perPage > 0 {
		query.Set("per_page", strconv.Itoa(perPage))
	}
	path := "/api/chat_history"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var out historyResponse
	if err := c.doJSON(ctx, "chat history", http.MethodGet, path, nil, &out, domain.ErrNetwork); err != nil {
		return nil, err
	}

	messages := make([]domain.ChatMessage, 0, len(out.Messages))
	for _, msg := range out.Messages {
		messages = append(messages, domain.ChatMessage{
			Content:   msg.Content,
			FromUser:  msg.IsFromUser,
			Timestamp: msg.Timestamp,
		})
	}
	return messages, nil
}
