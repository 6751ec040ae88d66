package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiwari-pos/fulfillment/internal/auth"
	"github.com/kiwari-pos/fulfillment/internal/enum"
	"github.com/kiwari-pos/fulfillment/internal/middleware"
)

const testSecret = "test-secret"

func token(t *testing.T, agentID, role string) string {
	t.Helper()
	tok, err := auth.GenerateToken(testSecret, uuid.New(), agentID, role, time.Minute)
	if err != nil {
		t.Fatalf("generate token: %v", err)
	}
	return tok
}

func serve(h http.Handler, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/", nil)
	if bearer != "" {
		req.Header.Set("Authorization", bearer)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAuthMiddleware_ValidToken(t *testing.T) {
	userID := uuid.New()
	tok, _ := auth.GenerateToken(testSecret, userID, "agent-1", enum.RoleSales, time.Minute)

	handler := middleware.Authenticate(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := middleware.ClaimsFromContext(r.Context())
		if claims == nil {
			t.Fatal("expected claims in context")
		}
		if claims.UserID != userID {
			t.Errorf("user ID: got %v, want %v", claims.UserID, userID)
		}
		if claims.AgentID != "agent-1" {
			t.Errorf("agent ID: got %q", claims.AgentID)
		}
		w.WriteHeader(http.StatusOK)
	}))

	if rr := serve(handler, "Bearer "+tok); rr.Code != http.StatusOK {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestAuthMiddleware_Rejections(t *testing.T) {
	handler := middleware.Authenticate(testSecret)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"wrong scheme", "Basic abc"},
		{"no token", "Bearer "},
		{"garbage", "Bearer invalid-token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := serve(handler, tt.header)
			if rr.Code != http.StatusUnauthorized {
				t.Errorf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
			}
			if rr.Header().Get("WWW-Authenticate") == "" {
				t.Error("expected WWW-Authenticate challenge")
			}
		})
	}
}

func TestAuthMiddleware_SchemeIsCaseInsensitive(t *testing.T) {
	handler := middleware.Authenticate(testSecret)(ok)
	if rr := serve(handler, "bearer "+token(t, "", enum.RoleViewer)); rr.Code != http.StatusOK {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestRequireRole(t *testing.T) {
	handler := middleware.Authenticate(testSecret)(middleware.RequireRole(enum.RoleAdmin, enum.RoleSales)(ok))

	if rr := serve(handler, "Bearer "+token(t, "", enum.RoleViewer)); rr.Code != http.StatusForbidden {
		t.Errorf("viewer: got %d, want %d", rr.Code, http.StatusForbidden)
	}
	if rr := serve(handler, "Bearer "+token(t, "", enum.RoleSales)); rr.Code != http.StatusOK {
		t.Errorf("sales: got %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestRequireAgent(t *testing.T) {
	handler := middleware.Authenticate(testSecret)(middleware.RequireAgent(ok))

	if rr := serve(handler, "Bearer "+token(t, "", enum.RoleWarehouse)); rr.Code != http.StatusForbidden {
		t.Errorf("no agent: got %d, want %d", rr.Code, http.StatusForbidden)
	}
	if rr := serve(handler, "Bearer "+token(t, "agent-9", enum.RoleSales)); rr.Code != http.StatusOK {
		t.Errorf("agent: got %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestRequireAgent_Unauthenticated(t *testing.T) {
	if rr := serve(middleware.RequireAgent(ok), ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}
