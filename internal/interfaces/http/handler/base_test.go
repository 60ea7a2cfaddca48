package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ledgerbook/backend/internal/domain/shared"
	"github.com/ledgerbook/backend/internal/infrastructure/logger"
	"github.com/ledgerbook/backend/internal/interfaces/http/dto"
	"github.com/ledgerbook/backend/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
	if err := middleware.SetupValidator(); err != nil {
		panic(err)
	}
}

func newTestContext(method, target string) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(method, target, nil)
	return c, w
}

func decodeResponse(t *testing.T, w *httptest.ResponseRecorder) dto.Response {
	t.Helper()
	var resp dto.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestGetRequestID(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(*gin.Context)
		expectedID string
	}{
		{
			name: "from request context",
			setup: func(c *gin.Context) {
				ctx := logger.WithRequestID(c.Request.Context(), "ctx-request-id")
				c.Request = c.Request.WithContext(ctx)
			},
			expectedID: "ctx-request-id",
		},
		{
			name: "from gin context",
			setup: func(c *gin.Context) {
				c.Set(logger.RequestIDHeader, "gin-request-id")
			},
			expectedID: "gin-request-id",
		},
		{
			name: "from header when context empty",
			setup: func(c *gin.Context) {
				c.Request.Header.Set(logger.RequestIDHeader, "header-request-id")
			},
			expectedID: "header-request-id",
		},
		{
			name:       "empty when not set",
			setup:      func(c *gin.Context) {},
			expectedID: "",
		},
		{
			name: "gin context takes precedence over header",
			setup: func(c *gin.Context) {
				c.Set(logger.RequestIDHeader, "ctx-id")
				c.Request.Header.Set(logger.RequestIDHeader, "header-id")
			},
			expectedID: "ctx-id",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestContext(http.MethodGet, "/")
			tt.setup(c)
			assert.Equal(t, tt.expectedID, getRequestID(c))
		})
	}
}

func TestBaseHandler_HandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "validation error",
			err:        shared.NewValidationError("amount must be positive"),
			wantStatus: http.StatusBadRequest,
			wantCode:   dto.ErrCodeValidation,
			wantMsg:    "amount must be positive",
		},
		{
			name:       "not found",
			err:        shared.NewNotFoundError("bill", uuid.Nil),
			wantStatus: http.StatusNotFound,
			wantCode:   dto.ErrCodeNotFound,
		},
		{
			name:       "invalid state",
			err:        shared.NewDomainError(shared.CodeInvalidState, "payment already refunded"),
			wantStatus: http.StatusUnprocessableEntity,
			wantCode:   dto.ErrCodeInvalidState,
			wantMsg:    "payment already refunded",
		},
		{
			name:       "wrapped domain error",
			err:        errors.Join(errors.New("context"), shared.NewValidationError("bad date")),
			wantStatus: http.StatusBadRequest,
			wantCode:   dto.ErrCodeValidation,
			wantMsg:    "bad date",
		},
		{
			name:       "unknown error is hidden",
			err:        errors.New("connection reset by peer"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   dto.ErrCodeInternal,
			wantMsg:    "An unexpected error occurred",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestContext(http.MethodGet, "/")
			c.Set(logger.RequestIDHeader, "req-1")

			h := &BaseHandler{}
			h.HandleError(c, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeResponse(t, w)
			assert.False(t, resp.Success)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, "req-1", resp.Error.RequestID)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, resp.Error.Message)
			}
		})
	}
}

func TestBaseHandler_HandleErrorNil(t *testing.T) {
	c, w := newTestContext(http.MethodGet, "/")
	h := &BaseHandler{}
	h.HandleError(c, nil)
	assert.False(t, c.Writer.Written())
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestBaseHandler_ParseID(t *testing.T) {
	h := &BaseHandler{}

	t.Run("valid", func(t *testing.T) {
		id := uuid.New()
		c, _ := newTestContext(http.MethodGet, "/")
		c.Params = gin.Params{{Key: "id", Value: id.String()}}

		got, ok := h.ParseID(c)
		assert.True(t, ok)
		assert.Equal(t, id, got)
	})

	t.Run("malformed", func(t *testing.T) {
		c, w := newTestContext(http.MethodGet, "/")
		c.Params = gin.Params{{Key: "id", Value: "not-a-uuid"}}

		_, ok := h.ParseID(c)
		assert.False(t, ok)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeValidationFormat, resp.Error.Code)
	})
}

func TestBaseHandler_Responses(t *testing.T) {
	h := &BaseHandler{}

	c, w := newTestContext(http.MethodGet, "/")
	h.SuccessWithMeta(c, []string{"a"}, 41, 2, 20)
	assert.Equal(t, http.StatusOK, w.Code)
	resp := decodeResponse(t, w)
	require.NotNil(t, resp.Meta)
	assert.Equal(t, int64(41), resp.Meta.Total)
	assert.Equal(t, 3, resp.Meta.TotalPages)

	c, w = newTestContext(http.MethodGet, "/")
	h.BadRequest(c, "nope")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeBadRequest, decodeResponse(t, w).Error.Code)

	c, _ = newTestContext(http.MethodDelete, "/")
	h.NoContent(c)
	assert.Equal(t, http.StatusNoContent, c.Writer.Status())
}

func TestBaseHandler_BindJSONMalformed(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", jsonBody(t, "{"))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Request = c.Request.WithContext(context.Background())

	var req dto.CreatePartyRequest
	h := &BaseHandler{}
	assert.False(t, h.BindJSON(c, &req))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, dto.ErrCodeInvalidJSON, decodeResponse(t, w).Error.Code)
}
