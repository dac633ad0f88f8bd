package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	driver "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/RASA-RCS/userauth-service/internal/core/domain"
	"github.com/RASA-RCS/userauth-service/internal/repository"
)

// userDocument is the stored shape of a user, sessions embedded.
type userDocument struct {
	ID                 string            `bson:"_id"`
	Email              string            `bson:"email"`
	FirstName          string            `bson:"fname"`
	MiddleName         string            `bson:"mname,omitempty"`
	LastName           string            `bson:"lname"`
	Phone              string            `bson:"phone,omitempty"`
	PhotoURL           string            `bson:"photoURL,omitempty"`
	PasswordHash       string            `bson:"password,omitempty"`
	GoogleID           *string           `bson:"googleId,omitempty"`
	FacebookID         *string           `bson:"facebookId,omitempty"`
	IsVerified         bool              `bson:"isVerified"`
	FailedAttempts     int               `bson:"failedLoginAttempts"`
	LockUntil          *time.Time        `bson:"lockUntil,omitempty"`
	LastLoginMethod    string            `bson:"lastLoginMethod,omitempty"`
	LoginOTP           *int              `bson:"loginOTP,omitempty"`
	LoginOTPExpiry     *time.Time        `bson:"loginOTPExpires,omitempty"`
	PendingToken       string            `bson:"pendingToken,omitempty"`
	PendingTokenExpiry *time.Time        `bson:"pendingTokenExpires,omitempty"`
	Sessions           []sessionDocument `bson:"sessions"`
	Version            int64             `bson:"version"`
	CreatedAt          time.Time         `bson:"createdAt"`
	UpdatedAt          time.Time         `bson:"updatedAt"`
}

type sessionDocument struct {
	Token        string    `bson:"token"`
	UserAgent    string    `bson:"userAgent,omitempty"`
	IP           string    `bson:"ip,omitempty"`
	LastActivity time.Time `bson:"lastActivity"`
	ExpiresAt    time.Time `bson:"expiresAt"`
	CreatedAt    time.Time `bson:"createdAt"`
}

// UserRepository implements port.UserStore on a MongoDB collection.
type UserRepository struct {
	coll *driver.Collection
}

// NewUserRepository wraps the users collection.
func NewUserRepository(coll *driver.Collection) *UserRepository {
	return &UserRepository{coll: coll}
}

// Create inserts a new user document with version 1.
func (r *UserRepository) Create(ctx context.Context, user *domain.User) error {
	if user.Version <= 0 {
		user.Version = 1
	}
	if _, err := r.coll.InsertOne(ctx, toDocument(user)); err != nil {
		if driver.IsDuplicateKeyError(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetByID retrieves a user by identifier.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// GetByEmail retrieves a user by normalised email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findOne(ctx, bson.M{"email": domain.NormalizeEmail(email)})
}

// Save replaces the document if the stored version still matches user.Version.
func (r *UserRepository) Save(ctx context.Context, user *domain.User) error {
	doc := toDocument(user)
	doc.Version = user.Version + 1

	res, err := r.coll.ReplaceOne(ctx, bson.M{"_id": user.ID, "version": user.Version}, doc)
	if err != nil {
		if driver.IsDuplicateKeyError(err) {
			return repository.ErrDuplicate
		}
		return fmt.Errorf("replace user: %w", err)
	}
	if res.MatchedCount == 0 {
		return repository.ErrConflict
	}

	user.Version = doc.Version
	return nil
}

// ListIDsWithSessions returns ids of users holding at least one session.
func (r *UserRepository) ListIDsWithSessions(ctx context.Context) ([]string, error) {
	cur, err := r.coll.Find(ctx,
		bson.M{"sessions.0": bson.M{"$exists": true}},
		options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.M{"_id": 1}),
	)
	if err != nil {
		return nil, fmt.Errorf("find users with sessions: %w", err)
	}
	defer cur.Close(ctx)

	var ids []string
	for cur.Next(ctx) {
		var row struct {
			ID string `bson:"_id"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, fmt.Errorf("decode user id: %w", err)
		}
		ids = append(ids, row.ID)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return ids, nil
}

func (r *UserRepository) findOne(ctx context.Context, filter bson.M) (*domain.User, error) {
	var doc userDocument
	if err := r.coll.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, driver.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return fromDocument(doc), nil
}

func toDocument(u *domain.User) userDocument {
	sessions := make([]sessionDocument, 0, len(u.Sessions))
	for _, s := range u.Sessions {
		sessions = append(sessions, sessionDocument(s))
	}
	return userDocument{
		ID:                 u.ID,
		Email:              u.Email,
		FirstName:          u.FirstName,
		MiddleName:         u.MiddleName,
		LastName:           u.LastName,
		Phone:              u.Phone,
		PhotoURL:           u.PhotoURL,
		PasswordHash:       u.PasswordHash,
		GoogleID:           u.GoogleID,
		FacebookID:         u.FacebookID,
		IsVerified:         u.IsVerified,
		FailedAttempts:     u.FailedAttempts,
		LockUntil:          u.LockUntil,
		LastLoginMethod:    string(u.LastLoginMethod),
		LoginOTP:           u.LoginOTP,
		LoginOTPExpiry:     u.LoginOTPExpiry,
		PendingToken:       u.PendingToken,
		PendingTokenExpiry: u.PendingTokenExpiry,
		Sessions:           sessions,
		Version:            u.Version,
		CreatedAt:          u.CreatedAt,
		UpdatedAt:          u.UpdatedAt,
	}
}

func fromDocument(doc userDocument) *domain.User {
	var sessions []domain.Session
	for _, s := range doc.Sessions {
		sessions = append(sessions, domain.Session(s))
	}
	return &domain.User{
		ID:                 doc.ID,
		Email:              doc.Email,
		FirstName:          doc.FirstName,
		MiddleName:         doc.MiddleName,
		LastName:           doc.LastName,
		Phone:              doc.Phone,
		PhotoURL:           doc.PhotoURL,
		PasswordHash:       doc.PasswordHash,
		GoogleID:           doc.GoogleID,
		FacebookID:         doc.FacebookID,
		IsVerified:         doc.IsVerified,
		FailedAttempts:     doc.FailedAttempts,
		LockUntil:          doc.LockUntil,
		LastLoginMethod:    domain.LoginMethod(doc.LastLoginMethod),
		LoginOTP:           doc.LoginOTP,
		LoginOTPExpiry:     doc.LoginOTPExpiry,
		PendingToken:       doc.PendingToken,
		PendingTokenExpiry: doc.PendingTokenExpiry,
		Sessions:           sessions,
		Version:            doc.Version,
		CreatedAt:          doc.CreatedAt,
		UpdatedAt:          doc.UpdatedAt,
	}
}
