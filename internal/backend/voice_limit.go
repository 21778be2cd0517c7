package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"voicecall/internal/domain"
)

// VoiceLimit is the raw answer of the voice limit endpoint.
type VoiceLimit struct {
	IsAdmin          bool    `json:"is_admin"`
	IsPaid           bool    `json:"is_paid"`
	CanMakeCall      bool    `json:"can_make_call"`
	RemainingMinutes Minutes `json:"remaining_minutes"`
}

// Minutes accepts a number or the literal "unlimited".
type Minutes struct {
	Value     int
	Unlimited bool
}

func (m *Minutes) UnmarshalJSON(data []byte) error {
	text := strings.TrimSpace(string(data))
	if text == "null" || text == "" {
		*m = Minutes{}
		return nil
	}

	if strings.HasPrefix(text, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(strings.ToLower(s))
		if s == "unlimited" {
			*m = Minutes{Unlimited: true}
			return nil
		}
		text = s
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return fmt.Errorf("invalid remaining_minutes %s", string(data))
	}
	if f < 0 || math.IsNaN(f) {
		f = 0
	}
	*m = Minutes{Value: int(math.Floor(f))}
	return nil
}

// CheckVoiceLimit fetches the caller's voice call entitlement.
func (c *Client) CheckVoiceLimit(ctx context.Context) (VoiceLimit, error) {
	var out VoiceLimit
	if err := c.doJSON(ctx, "check voice limit", http.MethodGet, "/api/check_voice_limit", nil, &out, domain.ErrNetwork); err != nil {
		return VoiceLimit{}, err
	}
	return out, nil
}
