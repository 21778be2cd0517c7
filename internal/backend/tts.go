package backend

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"voicecall/internal/domain"
)

const maxAssetBytes = 32 << 20

type ttsRequest struct {
	Text     string `json:"text"`
	Voice    string `json:"voice"`
	Provider string `json:"provider"`
}

type ttsResponse struct {
	Success  bool    `json:"success"`
	AudioURL *string `json:"audio_url"`
	Error    string  `json:"error"`
}

// Synthesize asks the neural TTS endpoint for speech and returns the asset reference.
func (c *Client) Synthesize(ctx context.Context, text string, voice string) (string, error) {
	var out ttsResponse
	req := ttsRequest{Text: text, Voice: voice, Provider: c.ttsProvider}
	if err := c.doJSON(ctx, "tts", http.MethodPost, "/api/tts", req, &out, domain.ErrBackend); err != nil {
		return "", err
	}

	if out.Success && out.AudioURL != nil && strings.TrimSpace(*out.AudioURL) != "" {
		return strings.TrimSpace(*out.AudioURL), nil
	}

	message := strings.TrimSpace(out.Error)
	if message == "" {
		message = "no audio generated"
	}
	return "", &Error{Op: "tts", Kind: domain.ErrBackend, Message: message}
}

// FetchAsset downloads a backend audio asset.
func (c *Client) FetchAsset(ctx context.Context, ref string) ([]byte, error) {
	target, err := c.Resolve(ref)
	if err != nil {
		return nil, &Error{Op: "fetch asset", Kind: domain.ErrBackend, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, &Error{Op: "fetch asset", Kind: domain.ErrBackend, Err: err}
	}
	// The session cookie only goes to the backend itself.
	if c.cookie != nil && target.Host == c.base.Host {
		req.AddCookie(c.cookie)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &Error{Op: "fetch asset", Kind: domain.ErrNetwork, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{Op: "fetch asset", StatusCode: resp.StatusCode, Kind: domain.ErrBackend}
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxAssetBytes+1))
	if err != nil {
		return nil, &Error{Op: "fetch asset", Kind: domain.ErrNetwork, Err: err}
	}
	if len(data) > maxAssetBytes {
		return nil, &Error{Op: "fetch asset", Kind: domain.ErrBackend, Err: fmt.Errorf("asset exceeds %d bytes", maxAssetBytes)}
	}
	if len(data) == 0 {
		return nil, &Error{Op: "fetch asset", Kind: domain.ErrBackend, Message: "empty asset"}
	}
	return data, nil
}
