package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"storagetree/internal/auth"
	"storagetree/internal/domain"
	"storagetree/internal/logging"
)

type errorResponse struct {
	Code    domain.ErrorCode `json:"code"`
	Message string           `json:"message"`
}

var statusByCode = map[domain.ErrorCode]int{
	domain.CodeNotFound:          http.StatusNotFound,
	domain.CodeForbidden:         http.StatusForbidden,
	domain.CodeConflict:          http.StatusConflict,
	domain.CodeInsufficientQuota: http.StatusInsufficientStorage,
	domain.CodeNotEmpty:          http.StatusConflict,
	domain.CodeInvalidName:       http.StatusBadRequest,
	domain.CodeInvalidArgument:   http.StatusBadRequest,
	domain.CodeBelowUsedSpace:    http.StatusConflict,
	domain.CodeIO:                http.StatusBadGateway,
	domain.CodeInternal:          http.StatusInternalServerError,
}

// StatusOf возвращает HTTP-статус для ошибки ядра
func StatusOf(err error) int {
	if status, ok := statusByCode[domain.CodeOf(err)]; ok {
		return status
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := sonic.Marshal(v)
	if err != nil {
		http.Error(w, "Error encoding response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeError отдает {code, message}. Текст внутренних ошибок клиенту не показываем.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	code := domain.CodeOf(err)
	status := StatusOf(err)
	message := err.Error()

	logger := logging.WithContext(r.Context(), nil)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("code", string(code)), zap.Error(err))
		if code == domain.CodeInternal {
			message = "internal error"
		}
	} else {
		logger.Debug("request rejected", zap.String("code", string(code)), zap.Error(err))
	}

	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

func decodeJSON(r *http.Request, v any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read body: %v", domain.ErrInvalidArgument, err)
	}
	if err := sonic.Unmarshal(body, v); err != nil {
		return fmt.Errorf("%w: invalid request body", domain.ErrInvalidArgument)
	}
	return nil
}

// principal достает пользователя, положенного auth.Middleware
func principal(r *http.Request) (domain.Principal, error) {
	p, ok := auth.PrincipalFrom(r.Context())
	if !ok {
		return domain.Principal{}, errors.New("principal is missing from request context")
	}
	return p, nil
}

func uuidParam(r *http.Request, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s", domain.ErrInvalidArgument, name)
	}
	return id, nil
}

// optionalUUID разбирает необязательный идентификатор; пустая строка - корень
func optionalUUID(raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid folder id", domain.ErrInvalidArgument)
	}
	return &id, nil
}
