package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"museum-chatbot/internal/domain"
)

var userListFields = []string{"userId", "createdAt", "firstName", "lastName", "email", "phoneNumber", "supportQuestion"}

type UserStore interface {
	PutUser(ctx context.Context, u domain.User) error
	GetUser(ctx context.Context, userID, createdAt string) (domain.User, error)
	QueryUser(ctx context.Context, userID string) ([]domain.User, error)
	UpdateUser(ctx context.Context, userID, createdAt string, fields map[string]any) (domain.User, error)
	DeleteUser(ctx context.Context, userID, createdAt string) error
	ScanUsers(ctx context.Context, fields ...string) ([]domain.User, error)
}

type UserSummary struct {
	ID              string  `json:"id"`
	FirstName       string  `json:"firstName"`
	LastName        string  `json:"lastName"`
	Email           string  `json:"email"`
	PhoneNumber     *string `json:"phoneNumber"`
	SupportQuestion string  `json:"supportQuestion"`
	CreatedAt       string  `json:"createdAt"`
}

type UserPage struct {
	Users   []UserSummary `json:"users"`
	Total   int           `json:"total"`
	Offset  int           `json:"offset"`
	Limit   int           `json:"limit"`
	HasMore bool          `json:"hasMore"`
}

// Users manages records of the user information table.
type Users struct {
	store  UserStore
	logger *slog.Logger
	now    func() time.Time
}

func NewUsers(store UserStore, logger *slog.Logger, now func() time.Time) (*Users, error) {
	if store == nil {
		return nil, errors.New("usecase: user store must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &Users{store: store, logger: logger, now: now}, nil
}

// Create stores a new record. userId comes from body; createdAt defaults to now.
func (s *Users) Create(ctx context.Context, body map[string]any) (domain.User, error) {
	userID := stringField(body, "userId")
	if userID == "" {
		return domain.User{}, invalidInput("missing_user_id", "userId is required in request body")
	}
	createdAt := stringField(body, "createdAt")
	if createdAt == "" {
		createdAt = s.now().UTC().Format(TimestampLayout)
	}
	u := domain.User{UserID: userID, CreatedAt: createdAt, Fields: withoutKeys(body)}
	if err := s.store.PutUser(ctx, u); err != nil {
		return domain.User{}, &Error{Code: ErrorInternal, Reason: "create_user_failed", Message: "Failed to create user: " + err.Error(), Err: err}
	}
	s.logger.Info("user created", "userId", userID)
	return u, nil
}

// Get returns one record when createdAt is given, else every record of userID.
func (s *Users) Get(ctx context.Context, userID, createdAt string) ([]domain.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, invalidInput("missing_user_id", "userId is required in path")
	}
	if createdAt == "" {
		users, err := s.store.QueryUser(ctx, userID)
		if err != nil {
			return nil, &Error{Code: ErrorInternal, Reason: "query_user_failed", Message: "Failed to retrieve user: " + err.Error(), Err: err}
		}
		return users, nil
	}
	u, err := s.store.GetUser(ctx, userID, createdAt)
	if errors.Is(err, domain.ErrNotFound) {
		return nil, userNotFound(userID, createdAt, err)
	}
	if err != nil {
		return nil, &Error{Code: ErrorInternal, Reason: "get_user_failed", Message: "Failed to retrieve user: " + err.Error(), Err: err}
	}
	return []domain.User{u}, nil
}

// Update sets every body field except the key pair on an existing record.
func (s *Users) Update(ctx context.Context, userID string, body map[string]any) (domain.User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.User{}, invalidInput("missing_user_id", "userId is required in path")
	}
	createdAt := stringField(body, "createdAt")
	if createdAt == "" {
		return domain.User{}, invalidInput("missing_created_at", "createdAt is required in request body for update operation")
	}
	fields := withoutKeys(body)
	if len(fields) == 0 {
		return domain.User{}, invalidInput("no_fields", "No fields to update. Provide at least one field besides userId and createdAt.")
	}
	u, err := s.store.UpdateUser(ctx, userID, createdAt, fields)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.User{}, userNotFound(userID, createdAt, err)
	}
	if err != nil {
		return domain.User{}, &Error{Code: ErrorInternal, Reason: "update_user_failed", Message: "Failed to update user: " + err.Error(), Err: err}
	}
	s.logger.Info("user updated", "userId", userID, "fields", len(fields))
	return u, nil
}

func (s *Users) Delete(ctx context.Context, userID, createdAt string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return invalidInput("missing_user_id", "userId is required in path")
	}
	if createdAt == "" {
		return invalidInput("missing_created_at", "createdAt is required in request body for delete operation")
	}
	if err := s.store.DeleteUser(ctx, userID, createdAt); err != nil {
		return &Error{Code: ErrorInternal, Reason: "delete_user_failed", Message: "Failed to delete user: " + err.Error(), Err: err}
	}
	s.logger.Info("user deleted", "userId", userID)
	return nil
}

// List pages through the whole table, newest createdAt first.
func (s *Users) List(ctx context.Context, limit, offset int) (UserPage, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	limit = min(limit, maxPageLimit)
	if offset < 0 {
		return UserPage{}, invalidInput("invalid_offset", "offset must not be negative")
	}

	users, err := s.store.ScanUsers(ctx, userListFields...)
	if err != nil {
		return UserPage{}, &Error{Code: ErrorInternal, Reason: "list_users_failed", Message: "Failed to fetch users: " + err.Error(), Err: err}
	}
	sort.SliceStable(users, func(i, j int) bool { return users[i].CreatedAt > users[j].CreatedAt })

	total := len(users)
	from, to := min(offset, total), min(offset+limit, total)
	page := UserPage{
		Users:   make([]UserSummary, 0, to-from),
		Total:   total,
		Offset:  offset,
		Limit:   limit,
		HasMore: offset+limit < total,
	}
	for _, u := range users[from:to] {
		page.Users = append(page.Users, UserSummary{
			ID:              u.UserID,
			FirstName:       stringField(u.Fields, "firstName"),
			LastName:        stringField(u.Fields, "lastName"),
			Email:           stringField(u.Fields, "email"),
			PhoneNumber:     optional(stringField(u.Fields, "phoneNumber")),
			SupportQuestion: stringField(u.Fields, "supportQuestion"),
			CreatedAt:       u.CreatedAt,
		})
	}
	return page, nil
}

func userNotFound(userID, createdAt string, err error) *Error {
	return &Error{
		Code:    ErrorNotFound,
		Reason:  "user_not_found",
		Message: fmt.Sprintf("User record not found for userId: %s, createdAt: %s", userID, createdAt),
		Err:     err,
	}
}

func withoutKeys(body map[string]any) map[string]any {
	out := make(map[string]any, len(body))
	for k, v := range body {
		if k == "userId" || k == "createdAt" {
			continue
		}
		out[k] = v
	}
	return out
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
