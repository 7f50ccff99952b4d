package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"museum-chatbot/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

var statusByCode = map[usecase.ErrorCode]int{
	usecase.ErrorInvalidInput:     http.StatusBadRequest,
	usecase.ErrorNotFound:         http.StatusNotFound,
	usecase.ErrorRateLimited:      http.StatusTooManyRequests,
	usecase.ErrorAccessDenied:     http.StatusForbidden,
	usecase.ErrorConflict:         http.StatusConflict,
	usecase.ErrorDependencyFailed: http.StatusFailedDependency,
	usecase.ErrorQuotaExceeded:    http.StatusBadRequest,
	usecase.ErrorUpstream:         http.StatusBadGateway,
	usecase.ErrorUpstreamInternal: http.StatusInternalServerError,
	usecase.ErrorInternal:         http.StatusInternalServerError,
}

func statusFor(code usecase.ErrorCode) int {
	if s, ok := statusByCode[code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// errorBody maps err to a status and a client body. Errors that were not
// classified by a use case surface their raw text as INTERNAL_ERROR.
func errorBody(err error) (int, errorResponse) {
	var uerr *usecase.Error
	if errors.As(err, &uerr) {
		return statusFor(uerr.Code), errorResponse{Error: uerr.ClientMessage(), Code: string(uerr.Code)}
	}
	return http.StatusInternalServerError, errorResponse{Error: err.Error(), Code: string(usecase.ErrorInternal)}
}

func badRequest(reason, message string) *usecase.Error {
	return &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: reason, Message: message}
}

// headerValue looks a header up case-insensitively.
func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return v
		}
	}
	return ""
}

func correlationID(headers map[string]string) string {
	if id := strings.TrimSpace(headerValue(headers, correlationHeader)); id != "" {
		return id
	}
	return uuid.NewString()
}

func proxyHeaders(methods, corrID string) map[string]string {
	return map[string]string{
		"Content-Type":                 "application/json",
		"Access-Control-Allow-Origin":  "*",
		"Access-Control-Allow-Headers": "Content-Type,X-Amz-Date,Authorization,X-Api-Key,X-Amz-Security-Token,X-Correlation-Id",
		"Access-Control-Allow-Methods": methods,
		correlationHeader:              corrID,
	}
}

func proxyJSON(status int, v any, headers map[string]string) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"failed to encode response","code":"INTERNAL_ERROR"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    headers,
		Body:       string(body),
	}
}

func proxyError(err error, headers map[string]string) events.APIGatewayProxyResponse {
	status, body := errorBody(err)
	return proxyJSON(status, body, headers)
}

// requestBody returns the raw body, decoding base64 payloads.
func requestBody(req events.APIGatewayProxyRequest) ([]byte, error) {
	if !req.IsBase64Encoded {
		return []byte(req.Body), nil
	}
	raw, err := base64.StdEncoding.DecodeString(req.Body)
	if err != nil {
		return nil, badRequest("invalid_body", "request body is not valid base64")
	}
	return raw, nil
}

// decodeBody unmarshals a JSON body into out. An empty body leaves out untouched.
func decodeBody(req events.APIGatewayProxyRequest, out any) error {
	raw, err := requestBody(req)
	if err != nil {
		return err
	}
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return badRequest("invalid_json", "request body must be valid JSON")
	}
	return nil
}

// intParam reads an optional integer query parameter.
func intParam(params map[string]string, key string) (int, error) {
	v := strings.TrimSpace(params[key])
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, badRequest("invalid_"+key, key+" must be an integer")
	}
	return n, nil
}
