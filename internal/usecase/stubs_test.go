package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/RASA-RCS/userauth-service/internal/core/domain"
	"github.com/RASA-RCS/userauth-service/internal/core/port"
	"github.com/RASA-RCS/userauth-service/internal/infra/config"
	"github.com/RASA-RCS/userauth-service/internal/repository"
)

var baseTime = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: baseTime}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		App:     config.AppSettings{Env: "test", BaseURL: "http://localhost:8000", FrontendURL: "http://localhost:3000"},
		Store:   config.StoreSettings{Driver: "postgres", MaxConflictRetries: 3},
		Token:   config.TokenSettings{TTL: 48 * time.Hour, VerificationTTL: 10 * time.Minute, ResetTTL: 5 * time.Minute},
		Session: config.SessionSettings{TTL: 48 * time.Hour, InactivityWindow: 5 * time.Minute},
		Lockout: config.LockoutSettings{Threshold: 4, Duration: 15 * time.Minute, DisplayLimit: 5},
		OTP:     config.OTPSettings{Enabled: true, TTL: 5 * time.Minute},
	}
}

type memoryUserStore struct {
	mu    sync.Mutex
	users map[string]domain.User

	saves      int
	conflicts  int
	saveErr    error
	getErr     error
	createErr  error
	beforeSave func(id string)
}

func newMemoryUserStore(users ...domain.User) *memoryUserStore {
	s := &memoryUserStore{users: map[string]domain.User{}}
	for _, u := range users {
		s.users[u.ID] = cloneUser(u)
	}
	return s
}

func cloneUser(u domain.User) domain.User {
	out := u
	out.Sessions = append([]domain.Session(nil), u.Sessions...)
	if u.LockUntil != nil {
		t := *u.LockUntil
		out.LockUntil = &t
	}
	if u.LoginOTP != nil {
		c := *u.LoginOTP
		out.LoginOTP = &c
	}
	if u.LoginOTPExpiry != nil {
		t := *u.LoginOTPExpiry
		out.LoginOTPExpiry = &t
	}
	if u.PendingTokenExpiry != nil {
		t := *u.PendingTokenExpiry
		out.PendingTokenExpiry = &t
	}
	if u.GoogleID != nil {
		g := *u.GoogleID
		out.GoogleID = &g
	}
	if u.FacebookID != nil {
		f := *u.FacebookID
		out.FacebookID = &f
	}
	return out
}

func (s *memoryUserStore) Create(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	for _, existing := range s.users {
		if clashes(existing, *user) {
			return repository.ErrDuplicate
		}
	}
	s.users[user.ID] = cloneUser(*user)
	return nil
}

// clashes mirrors the unique email and provider id constraints of the real stores.
func clashes(existing, candidate domain.User) bool {
	if existing.ID == candidate.ID {
		return false
	}
	same := func(a, b *string) bool { return a != nil && b != nil && *a == *b }
	return existing.Email == candidate.Email ||
		same(existing.GoogleID, candidate.GoogleID) ||
		same(existing.FacebookID, candidate.FacebookID)
}

func (s *memoryUserStore) GetByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := cloneUser(u)
	return &out, nil
}

func (s *memoryUserStore) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	for _, u := range s.users {
		if u.Email == email {
			out := cloneUser(u)
			return &out, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (s *memoryUserStore) Save(_ context.Context, user *domain.User) error {
	if s.beforeSave != nil {
		hook := s.beforeSave
		s.beforeSave = nil
		hook(user.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	current, ok := s.users[user.ID]
	if !ok {
		return repository.ErrNotFound
	}
	if current.Version != user.Version {
		s.conflicts++
		return repository.ErrConflict
	}
	for _, existing := range s.users {
		if clashes(existing, *user) {
			return repository.ErrDuplicate
		}
	}
	user.Version++
	s.users[user.ID] = cloneUser(*user)
	s.saves++
	return nil
}

func (s *memoryUserStore) ListIDsWithSessions(context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, u := range s.users {
		if len(u.Sessions) > 0 {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// bump simulates a concurrent writer.
func (s *memoryUserStore) bump(id string, mutate func(*domain.User)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u := s.users[id]
	if mutate != nil {
		mutate(&u)
	}
	u.Version++
	s.users[id] = u
}

func (s *memoryUserStore) get(id string) domain.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneUser(s.users[id])
}

type stubHasher struct {
	err error
}

func (h stubHasher) Hash(password string) (string, error) {
	if h.err != nil {
		return "", h.err
	}
	return "hashed:" + password, nil
}

func (h stubHasher) Verify(password, encoded string) (bool, error) {
	if h.err != nil {
		return false, h.err
	}
	return encoded == "hashed:"+password, nil
}

// legacyHasher treats "legacy:" hashes as outdated, like bcrypt hashes in production.
type legacyHasher struct {
	stubHasher
}

func (legacyHasher) Verify(password, encoded string) (bool, error) {
	return encoded == "hashed:"+password || encoded == "legacy:"+password, nil
}

func (legacyHasher) NeedsRehash(encoded string) bool {
	return strings.HasPrefix(encoded, "legacy:")
}

type stubPolicy struct {
	err error
}

func (p stubPolicy) Validate(string, ...string) error {
	return p.err
}

type stubTokens struct {
	mu     sync.Mutex
	seq    int
	issued map[string]string
	err    error
}

func newStubTokens() *stubTokens {
	return &stubTokens{issued: map[string]string{}}
}

func (t *stubTokens) Issue(userID string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return "", t.err
	}
	t.seq++
	token := fmt.Sprintf("token-%s-%d", userID, t.seq)
	t.issued[token] = userID
	return token, nil
}

func (t *stubTokens) Verify(token string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if id, ok := t.issued[token]; ok {
		return id, nil
	}
	return "", errors.New("unknown token")
}

type stubMailer struct {
	mu   sync.Mutex
	sent []port.MailMessage
	err  error
}

func (m *stubMailer) Send(_ context.Context, msg port.MailMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *stubMailer) last() port.MailMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.sent) == 0 {
		return port.MailMessage{}
	}
	return m.sent[len(m.sent)-1]
}

type stubDenylist struct {
	used map[string]time.Duration
	err  error
}

func newStubDenylist() *stubDenylist {
	return &stubDenylist{used: map[string]time.Duration{}}
}

func (d *stubDenylist) Consume(_ context.Context, id string, ttl time.Duration) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	if _, ok := d.used[id]; ok {
		return false, nil
	}
	d.used[id] = ttl
	return true, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *recordingPublisher) record(e any) error {
	p.mu.Lock()
	p.events = append(p.events, e)
	p.mu.Unlock()
	return nil
}

func (p *recordingPublisher) PublishUserRegistered(_ context.Context, e domain.UserRegisteredEvent) error {
	return p.record(e)
}

func (p *recordingPublisher) PublishEmailVerified(_ context.Context, e domain.EmailVerifiedEvent) error {
	return p.record(e)
}

func (p *recordingPublisher) PublishLoginOTPIssued(_ context.Context, e domain.LoginOTPIssuedEvent) error {
	return p.record(e)
}

func (p *recordingPublisher) PublishAccountLocked(_ context.Context, e domain.AccountLockedEvent) error {
	return p.record(e)
}

func (p *recordingPublisher) PublishSessionAdmitted(_ context.Context, e domain.SessionAdmittedEvent) error {
	return p.record(e)
}

func (p *recordingPublisher) PublishForceLogoutRequired(_ context.Context, e domain.ForceLogoutRequiredEvent) error {
	return p.record(e)
}

func (p *recordingPublisher) PublishSessionRevoked(_ context.Context, e domain.SessionRevokedEvent) error {
	return p.record(e)
}

func (p *recordingPublisher) PublishPasswordChanged(_ context.Context, e domain.PasswordChangedEvent) error {
	return p.record(e)
}

func (p *recordingPublisher) PublishPasswordResetRequested(_ context.Context, e domain.PasswordResetRequestedEvent) error {
	return p.record(e)
}

func eventsOf[T any](p *recordingPublisher) []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []T
	for _, e := range p.events {
		if typed, ok := e.(T); ok {
			out = append(out, typed)
		}
	}
	return out
}

func verifiedUser(id, email, password string) domain.User {
	return domain.User{
		ID:              id,
		Email:           strings.ToLower(email),
		FirstName:       "Alice",
		LastName:        "Liddell",
		PasswordHash:    "hashed:" + password,
		IsVerified:      true,
		LastLoginMethod: domain.LoginMethodPassword,
		Sessions:        []domain.Session{},
		CreatedAt:       baseTime.Add(-24 * time.Hour),
		UpdatedAt:       baseTime.Add(-24 * time.Hour),
	}
}

var (
	_ port.UserStore        = (*memoryUserStore)(nil)
	_ port.PasswordHasher   = stubHasher{}
	_ port.PasswordRehasher = legacyHasher{}
	_ port.TokenIssuer      = (*stubTokens)(nil)
	_ port.Mailer           = (*stubMailer)(nil)
	_ port.LinkDenylist     = (*stubDenylist)(nil)
	_ port.EventPublisher   = (*recordingPublisher)(nil)
)
