package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"museum-chatbot/internal/domain"
)

const userMethods = "GET,POST,PUT,DELETE,OPTIONS"

type UserService interface {
	Create(ctx context.Context, body map[string]any) (domain.User, error)
	Get(ctx context.Context, userID, createdAt string) ([]domain.User, error)
	Update(ctx context.Context, userID string, body map[string]any) (domain.User, error)
	Delete(ctx context.Context, userID, createdAt string) error
}

// UsersHandler serves CRUD on the user information table behind API Gateway.
type UsersHandler struct {
	users  UserService
	logger *slog.Logger
}

func NewUsersHandler(users UserService, logger *slog.Logger) (*UsersHandler, error) {
	if users == nil {
		return nil, errors.New("handler: user service must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &UsersHandler{users: users, logger: logger}, nil
}

func (h *UsersHandler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(req.Headers)
	headers := proxyHeaders(userMethods, corrID)
	log := h.logger.With("correlationId", corrID, "method", req.HTTPMethod, "path", req.Path)
	start := time.Now()

	status, body, err := h.route(ctx, req)
	if err != nil {
		resp := proxyError(err, headers)
		log.Warn("user request failed", "status", resp.StatusCode, "err", err, "elapsedMs", time.Since(start).Milliseconds())
		return resp, nil
	}
	log.Info("user request served", "status", status, "elapsedMs", time.Since(start).Milliseconds())
	return proxyJSON(status, body, headers), nil
}

func (h *UsersHandler) route(ctx context.Context, req events.APIGatewayProxyRequest) (int, any, error) {
	method := strings.ToUpper(req.HTTPMethod)
	userID := pathUserID(req)

	switch method {
	case http.MethodOptions:
		return http.StatusOK, map[string]any{}, nil

	case http.MethodPost:
		body := map[string]any{}
		if err := decodeBody(req, &body); err != nil {
			return 0, nil, err
		}
		u, err := h.users.Create(ctx, body)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, map[string]any{"message": "User created successfully", "user": u.Record()}, nil

	case http.MethodGet:
		createdAt := strings.TrimSpace(req.QueryStringParameters["createdAt"])
		users, err := h.users.Get(ctx, userID, createdAt)
		if err != nil {
			return 0, nil, err
		}
		if createdAt != "" && len(users) == 1 {
			return http.StatusOK, map[string]any{"user": users[0].Record()}, nil
		}
		records := make([]map[string]any, 0, len(users))
		for _, u := range users {
			records = append(records, u.Record())
		}
		return http.StatusOK, map[string]any{"users": records, "count": len(records)}, nil

	case http.MethodPut:
		body := map[string]any{}
		if err := decodeBody(req, &body); err != nil {
			return 0, nil, err
		}
		u, err := h.users.Update(ctx, userID, body)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, map[string]any{"message": "User updated successfully", "user": u.Record()}, nil

	case http.MethodDelete:
		body := map[string]any{}
		if err := decodeBody(req, &body); err != nil {
			return 0, nil, err
		}
		createdAt, _ := body["createdAt"].(string)
		if createdAt == "" {
			createdAt = req.QueryStringParameters["createdAt"]
		}
		createdAt = strings.TrimSpace(createdAt)
		if err := h.users.Delete(ctx, userID, createdAt); err != nil {
			return 0, nil, err
		}
		return http.StatusOK, map[string]any{"message": "User deleted successfully", "userId": userID, "createdAt": createdAt}, nil
	}
	return http.StatusMethodNotAllowed, errorResponse{Error: fmt.Sprintf("Method %s not allowed", req.HTTPMethod)}, nil
}

// pathUserID prefers the API Gateway path parameter and falls back to the
// segment after /users/.
func pathUserID(req events.APIGatewayProxyRequest) string {
	if id := strings.TrimSpace(req.PathParameters["userId"]); id != "" {
		return id
	}
	_, rest, ok := strings.Cut(strings.TrimSuffix(req.Path, "/"), "/users/")
	if !ok {
		return ""
	}
	id, _, _ := strings.Cut(rest, "/")
	return id
}
