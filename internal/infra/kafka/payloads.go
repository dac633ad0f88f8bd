package kafka

import (
	"time"

	"github.com/RASA-RCS/userauth-service/internal/core/domain"
	"github.com/RASA-RCS/userauth-service/internal/infra/logger"
)

// Event types, prefixed with kafka.topic_prefix to form topic names.
const (
	EventUserRegistered         = "user.registered"
	EventEmailVerified          = "user.email_verified"
	EventAccountLocked          = "user.locked"
	EventPasswordChanged        = "user.password.changed"
	EventPasswordResetRequested = "user.password.reset_requested"
	EventLoginOTPIssued         = "login.otp_issued"
	EventSessionAdmitted        = "session.admitted"
	EventForceLogoutRequired    = "session.force_logout_required"
	EventSessionRevoked         = "session.revoked"
)

// outbound is the transport-neutral form of a domain event.
type outbound struct {
	eventID   string
	eventType string
	userID    string
	at        time.Time
	payload   any
}

func userRegisteredPayload(event domain.UserRegisteredEvent) outbound {
	return outbound{
		eventID:   event.EventID,
		eventType: EventUserRegistered,
		userID:    event.UserID,
		at:        event.RegisteredAt,
		payload: struct {
			UserID             string    `json:"user_id"`
			Email              string    `json:"email"`
			RegisteredAt       time.Time `json:"registered_at"`
			RegistrationMethod string    `json:"registration_method"`
			Verified           bool      `json:"verified"`
		}{
			UserID:             event.UserID,
			Email:              logger.MaskEmail(event.Email),
			RegisteredAt:       event.RegisteredAt.UTC(),
			RegistrationMethod: string(event.RegistrationMethod),
			Verified:           event.Verified,
		},
	}
}

func emailVerifiedPayload(event domain.EmailVerifiedEvent) outbound {
	return outbound{
		eventID:   event.EventID,
		eventType: EventEmailVerified,
		userID:    event.UserID,
		at:        event.VerifiedAt,
		payload: struct {
			UserID     string    `json:"user_id"`
			Email      string    `json:"email"`
			VerifiedAt time.Time `json:"verified_at"`
		}{
			UserID:     event.UserID,
			Email:      logger.MaskEmail(event.Email),
			VerifiedAt: event.VerifiedAt.UTC(),
		},
	}
}

func loginOTPIssuedPayload(event domain.LoginOTPIssuedEvent) outbound {
	return outbound{
		eventID:   event.EventID,
		eventType: EventLoginOTPIssued,
		userID:    event.UserID,
		at:        event.IssuedAt,
		payload: struct {
			UserID    string    `json:"user_id"`
			IssuedAt  time.Time `json:"issued_at"`
			ExpiresAt time.Time `json:"expires_at"`
			Delivered bool      `json:"delivered"`
		}{
			UserID:    event.UserID,
			IssuedAt:  event.IssuedAt.UTC(),
			ExpiresAt: event.ExpiresAt.UTC(),
			Delivered: event.Delivered,
		},
	}
}

func accountLockedPayload(event domain.AccountLockedEvent) outbound {
	return outbound{
		eventID:   event.EventID,
		eventType: EventAccountLocked,
		userID:    event.UserID,
		at:        event.LockedAt,
		payload: struct {
			UserID      string    `json:"user_id"`
			LockedAt    time.Time `json:"locked_at"`
			LockedUntil time.Time `json:"locked_until"`
			Attempts    int       `json:"attempts"`
		}{
			UserID:      event.UserID,
			LockedAt:    event.LockedAt.UTC(),
			LockedUntil: event.LockedUntil.UTC(),
			Attempts:    event.Attempts,
		},
	}
}

func sessionAdmittedPayload(event domain.SessionAdmittedEvent) outbound {
	return outbound{
		eventID:   event.EventID,
		eventType: EventSessionAdmitted,
		userID:    event.UserID,
		at:        event.AdmittedAt,
		payload: struct {
			UserID      string    `json:"user_id"`
			Method      string    `json:"method"`
			AdmittedAt  time.Time `json:"admitted_at"`
			ExpiresAt   time.Time `json:"expires_at"`
			IPAddress   string    `json:"ip_address,omitempty"`
			UserAgent   string    `json:"user_agent,omitempty"`
			ForceLogout bool      `json:"force_logout"`
		}{
			UserID:      event.UserID,
			Method:      string(event.Method),
			AdmittedAt:  event.AdmittedAt.UTC(),
			ExpiresAt:   event.ExpiresAt.UTC(),
			IPAddress:   logger.MaskIP(event.IPAddress),
			UserAgent:   event.UserAgent,
			ForceLogout: event.ForceLogout,
		},
	}
}

func forceLogoutRequiredPayload(event domain.ForceLogoutRequiredEvent) outbound {
	return outbound{
		eventID:   event.EventID,
		eventType: EventForceLogoutRequired,
		userID:    event.UserID,
		at:        event.RequestedAt,
		payload: struct {
			UserID         string    `json:"user_id"`
			Method         string    `json:"method"`
			ActiveSessions int       `json:"active_sessions"`
			RequestedAt    time.Time `json:"requested_at"`
			IPAddress      string    `json:"ip_address,omitempty"`
		}{
			UserID:         event.UserID,
			Method:         string(event.Method),
			ActiveSessions: event.ActiveSessions,
			RequestedAt:    event.RequestedAt.UTC(),
			IPAddress:      logger.MaskIP(event.IPAddress),
		},
	}
}

func sessionRevokedPayload(event domain.SessionRevokedEvent) outbound {
	return outbound{
		eventID:   event.EventID,
		eventType: EventSessionRevoked,
		userID:    event.UserID,
		at:        event.RevokedAt,
		payload: struct {
			UserID    string    `json:"user_id"`
			Reason    string    `json:"reason"`
			Count     int       `json:"count"`
			RevokedAt time.Time `json:"revoked_at"`
		}{
			UserID:    event.UserID,
			Reason:    event.Reason,
			Count:     event.Count,
			RevokedAt: event.RevokedAt.UTC(),
		},
	}
}

func passwordChangedPayload(event domain.PasswordChangedEvent) outbound {
	return outbound{
		eventID:   event.EventID,
		eventType: EventPasswordChanged,
		userID:    event.UserID,
		at:        event.ChangedAt,
		payload: struct {
			UserID    string    `json:"user_id"`
			ChangedAt time.Time `json:"changed_at"`
			Via       string    `json:"via"`
		}{
			UserID:    event.UserID,
			ChangedAt: event.ChangedAt.UTC(),
			Via:       event.Via,
		},
	}
}

func passwordResetRequestedPayload(event domain.PasswordResetRequestedEvent) outbound {
	at := event.RequestedAt
	if at.IsZero() {
		at = event.ExpiresAt
	}
	return outbound{
		eventID:   event.EventID,
		eventType: EventPasswordResetRequested,
		userID:    event.UserID,
		at:        at,
		payload: struct {
			UserID            string    `json:"user_id"`
			RequestedAt       time.Time `json:"requested_at"`
			MaskedDestination string    `json:"masked_destination,omitempty"`
			ExpiresAt         time.Time `json:"expires_at"`
		}{
			UserID:            event.UserID,
			RequestedAt:       event.RequestedAt.UTC(),
			MaskedDestination: event.MaskedDestination,
			ExpiresAt:         event.ExpiresAt.UTC(),
		},
	}
}
