package controllers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"bankcore/apperrors"
	"bankcore/middleware"
	"bankcore/services"
	"bankcore/utils"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		utils.LogError("failed to encode response: %v", err)
	}
}

// writeError отвечает ошибкой в формате {"error": {"code", "message", "details"}}
func writeError(w http.ResponseWriter, err error) {
	if apperrors.KindOf(err) == apperrors.KindInternal {
		utils.LogError("internal error: %v", err)
	}
	status, body := apperrors.Response(err)
	writeJSON(w, status, body)
}

// decodeRequest читает JSON-тело и проверяет его тегами validate
func decodeRequest(r *http.Request, v *validator.Validate, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.Validation("пустое тело запроса")
		}
		return apperrors.Validation("некорректное тело запроса")
	}
	if err := v.Struct(dst); err != nil {
		return apperrors.ParseValidationErrors(err)
	}
	return nil
}

// currentIdentity возвращает личность, установленную AuthMiddleware
func currentIdentity(r *http.Request) (services.Identity, error) {
	id, ok := middleware.IdentityFromContext(r.Context())
	if !ok {
		return services.Identity{}, apperrors.Unauthenticated("требуется авторизация")
	}
	return id, nil
}

func parseID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		return 0, apperrors.Validation("некорректный идентификатор: " + raw)
	}
	return uint(id), nil
}

// pathID читает числовой параметр маршрута mux
func pathID(r *http.Request, name string) (uint, error) {
	return parseID(mux.Vars(r)[name])
}
