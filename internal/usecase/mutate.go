package usecase

import (
	"context"
	"errors"

	"github.com/RASA-RCS/userauth-service/internal/core/domain"
	"github.com/RASA-RCS/userauth-service/internal/core/port"
	"github.com/RASA-RCS/userauth-service/internal/repository"
)

const defaultConflictRetries = 3

// errSkipSave stops mutateUser without writing and without failing.
var errSkipSave = errors.New("skip save")

type userLoader func(ctx context.Context) (*domain.User, error)

func byID(store port.UserStore, id string) userLoader {
	return func(ctx context.Context) (*domain.User, error) {
		return lookup(store.GetByID(ctx, id))
	}
}

func byEmail(store port.UserStore, email string) userLoader {
	return func(ctx context.Context) (*domain.User, error) {
		return lookup(store.GetByEmail(ctx, domain.NormalizeEmail(email)))
	}
}

func lookup(user *domain.User, err error) (*domain.User, error) {
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, dependency("load user", err)
	}
	return user, nil
}

// mutateUser loads the user, applies fn and saves it conditioned on the loaded
// version. A version conflict reloads and re-applies fn, at most attempts
// times in total. fn returning errSkipSave ends the call successfully without
// a write; any other error aborts unchanged. Other store failures are not
// retried.
func mutateUser(ctx context.Context, store port.UserStore, load userLoader, fn func(*domain.User) error, attempts int) (*domain.User, error) {
	if attempts <= 0 {
		attempts = defaultConflictRetries
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		user, err := load(ctx)
		if err != nil {
			return nil, err
		}

		if err := fn(user); err != nil {
			if errors.Is(err, errSkipSave) {
				return user, nil
			}
			return nil, err
		}

		err = store.Save(ctx, user)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, repository.ErrConflict) {
			return nil, dependency("save user", err)
		}
		lastErr = err
	}
	return nil, dependency("save user", lastErr)
}
