// Package eligibility decides whether the caller may open a voice call.
package eligibility

import (
	"context"
	"fmt"
	"log/slog"

	"voicecall/internal/backend"
	"voicecall/internal/domain"
)

const (
	ReasonDailyLimit  = "Daily limit reached"
	ReasonPremiumOnly = "Premium only"
	ReasonUnavailable = "Unavailable"
)

// LimitSource is the backend endpoint that reports voice call entitlement.
type LimitSource interface {
	CheckVoiceLimit(ctx context.Context) (backend.VoiceLimit, error)
}

// Gate implements ports.EligibilityGate.
type Gate struct {
	source LimitSource
}

func NewGate(source LimitSource) *Gate {
	return &Gate{source: source}
}

// Check queries the backend once. Any failure yields a disabled decision alongside the error.
func (g *Gate) Check(ctx context.Context) (domain.EntryDecision, error) {
	if g.source == nil {
		return unavailable(), fmt.Errorf("eligibility source is not configured: %w", domain.ErrNetwork)
	}

	limit, err := g.source.CheckVoiceLimit(ctx)
	if err != nil {
		slog.Warn("Voice limit check failed", "err", err)
		return unavailable(), err
	}

	decision := Evaluate(StatusFromLimit(limit))
	slog.Debug("Voice eligibility resolved",
		"role", decision.Status.Role,
		"enabled", decision.Enabled,
		"reason", decision.Reason,
	)
	return decision, nil
}

// StatusFromLimit maps the raw endpoint answer onto the entitlement model.
func StatusFromLimit(limit backend.VoiceLimit) domain.EligibilityStatus {
	switch {
	case limit.IsAdmin:
		return domain.EligibilityStatus{Role: domain.RoleAdmin, Eligible: true, Unlimited: true}
	case limit.IsPaid:
		status := domain.EligibilityStatus{
			Role:             domain.RolePaid,
			Eligible:         limit.CanMakeCall,
			Unlimited:        limit.RemainingMinutes.Unlimited,
			RemainingMinutes: max(limit.RemainingMinutes.Value, 0),
		}
		if !limit.CanMakeCall {
			status.Message = ReasonDailyLimit
		}
		return status
	default:
		return domain.EligibilityStatus{Role: domain.RoleFree, Message: ReasonPremiumOnly}
	}
}

// Evaluate derives the entry point state. It is pure so every response shape can be tested.
func Evaluate(status domain.EligibilityStatus) domain.EntryDecision {
	decision := domain.EntryDecision{Status: status}

	switch status.Role {
	case domain.RoleAdmin:
		decision.Enabled = true
		decision.Unlimited = true
		decision.Action = domain.EntryActionStartCall
		decision.Status.Eligible = true
		decision.Status.Unlimited = true
	case domain.RolePaid:
		if !status.Eligible {
			decision.Reason = ReasonDailyLimit
			decision.Action = domain.EntryActionNone
			break
		}
		decision.Enabled = true
		decision.Action = domain.EntryActionStartCall
		decision.Unlimited = status.Unlimited
		if !status.Unlimited {
			decision.Indicator = fmt.Sprintf("%d min", status.RemainingMinutes)
		}
	default:
		decision.Reason = ReasonPremiumOnly
		decision.Action = domain.EntryActionShowUpsell
		decision.Status.Eligible = false
	}

	return decision
}

func unavailable() domain.EntryDecision {
	return domain.EntryDecision{
		Reason: ReasonUnavailable,
		Action: domain.EntryActionNone,
		Status: domain.EligibilityStatus{Role: domain.RoleFree},
	}
}
