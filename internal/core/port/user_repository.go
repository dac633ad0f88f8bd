package port

import (
	"context"

	"github.com/RASA-RCS/userauth-service/internal/core/domain"
)

// UserStore persists user documents together with their embedded sessions.
//
// Save is conditional on user.Version matching the stored version; on success
// the stored and in-memory versions are incremented, otherwise
// repository.ErrConflict is returned and nothing is written.
type UserStore interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Save(ctx context.Context, user *domain.User) error
	ListIDsWithSessions(ctx context.Context) ([]string, error)
}
