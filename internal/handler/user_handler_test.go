package handler

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/yourusername/account-api/internal/pkg/errors"
)

func TestUpdateProfile_ValidationErrors(t *testing.T) {
	handler := &UserHandler{}

	tests := []struct {
		name string
		body interface{}
	}{
		{name: "empty body", body: nil},
		{name: "missing username", body: map[string]string{}},
		{name: "short username", body: map[string]string{"username": "ab"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestGinContext("PUT", "/api/users/me/profile", tt.body)
			c.Set("user_id", uint(3))
			handler.UpdateProfile(c)

			assert.Equal(t, http.StatusBadRequest, w.Code)
			resp := parseJSONResponse(t, w)
			assert.Equal(t, "validation_error", resp["error_type"])
		})
	}
}

func TestUploadAvatar_MissingFile(t *testing.T) {
	handler := &UserHandler{}

	c, w := newTestGinContext("POST", "/api/users/me/avatar", nil)
	c.Set("user_id", uint(3))
	handler.UploadAvatar(c)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	resp := parseJSONResponse(t, w)
	assert.Equal(t, "validation_error", resp["error_type"])
}

func TestHandleUserError_StatusMapping(t *testing.T) {
	handler := &UserHandler{}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"not found", apperrors.ErrNotFound, http.StatusNotFound, "not_found"},
		{"forbidden", fmt.Errorf("%w: admin account", apperrors.ErrForbidden), http.StatusForbidden, "forbidden"},
		{"conflict", fmt.Errorf("%w: username taken", apperrors.ErrConflict), http.StatusConflict, "conflict"},
		{"validation", fmt.Errorf("%w: unsupported image type", apperrors.ErrValidation), http.StatusBadRequest, "validation_error"},
		{"unavailable", apperrors.ErrUnavailable, http.StatusServiceUnavailable, "unavailable"},
		{"unknown error", assert.AnError, http.StatusInternalServerError, "internal_server_error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestGinContext("GET", "/api/users/me", nil)
			handler.handleUserError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := parseJSONResponse(t, w)
			assert.Equal(t, tt.wantType, resp["error_type"])
		})
	}
}
