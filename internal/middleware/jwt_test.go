package myMiddleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockValidator struct {
	mock.Mock
}

func (m *mockValidator) ValidateToken(tokenString string) (int, string, error) {
	args := m.Called(tokenString)
	return args.Int(0), args.String(1), args.Error(2)
}

func echoUser(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, name, ok := UserFromContext(r.Context())
		assert.True(t, ok)
		assert.Equal(t, 5, id)
		assert.Equal(t, "ngozi", name)
		w.WriteHeader(http.StatusNoContent)
	})
}

func TestAuthMiddleware_Handle(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(r *http.Request, v *mockValidator)
		wantStatus int
	}{
		{
			name: "bearer header",
			setup: func(r *http.Request, v *mockValidator) {
				r.Header.Set("Authorization", "Bearer good")
				v.On("ValidateToken", "good").Return(5, "ngozi", nil)
			},
			wantStatus: http.StatusNoContent,
		},
		{
			name: "query fallback",
			setup: func(r *http.Request, v *mockValidator) {
				q := r.URL.Query()
				q.Set("token", "good")
				r.URL.RawQuery = q.Encode()
				v.On("ValidateToken", "good").Return(5, "ngozi", nil)
			},
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "missing token",
			setup:      func(r *http.Request, v *mockValidator) {},
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "invalid token",
			setup: func(r *http.Request, v *mockValidator) {
				r.Header.Set("Authorization", "Bearer bad")
				v.On("ValidateToken", "bad").Return(0, "", errors.New("signature is invalid"))
			},
			wantStatus: http.StatusUnauthorized,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &mockValidator{}
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			tt.setup(req, v)

			rec := httptest.NewRecorder()
			NewAuthMiddleware(v).Handle(echoUser(t)).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			v.AssertExpectations(t)
		})
	}
}

func TestUserFromContext_Missing(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	_, _, ok := UserFromContext(req.Context())
	assert.False(t, ok)
}
