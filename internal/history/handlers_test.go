package history

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/solvemate/solvemate-api/internal/auth"
)

func newHistoryRouter(store Store, userID string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if userID != "" {
		r.Use(func(c *gin.Context) {
			c.Set(string(auth.UserIDKey), userID)
		})
	}

	h := NewHandler(store, testLogger())
	r.GET("/api/v1/history", h.List)
	r.DELETE("/api/v1/history", h.Delete)
	return r
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode request: %v", err)
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestDeleteEndpointRemovesOnlyRequestedIDs(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if err := store.Append(ctx, "user-1", testItem(id)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	router := newHistoryRouter(store, "user-1")

	rec := doJSON(t, router, http.MethodDelete, "/api/v1/history", DeleteRequest{IDs: []string{"a", "c"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp DeleteResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Deleted != 2 {
		t.Errorf("expected 2 deletions reported, got %d", resp.Deleted)
	}

	items, _ := store.List(ctx, "user-1")
	if len(items) != 1 || items[0].ID != "b" {
		t.Errorf("expected only item b to remain, got %+v", items)
	}

	// Repeating the same delete is harmless.
	rec = doJSON(t, router, http.MethodDelete, "/api/v1/history", DeleteRequest{IDs: []string{"a", "c"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("repeat delete: expected 200, got %d", rec.Code)
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode repeat response: %v", err)
	}
	if resp.Deleted != 0 {
		t.Errorf("expected 0 deletions on repeat, got %d", resp.Deleted)
	}
}

func TestListEndpointReturnsOwnItems(t *testing.T) {
	store := newMemStore()
	ctx := context.Background()
	if err := store.Append(ctx, "user-1", testItem("a")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := store.Append(ctx, "user-2", testItem("z")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	router := newHistoryRouter(store, "user-1")

	rec := doJSON(t, router, http.MethodGet, "/api/v1/history", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp ListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Items) != 1 || resp.Items[0].ID != "a" {
		t.Errorf("expected only the caller's item, got %+v", resp.Items)
	}
}

func TestHistoryEndpointsRequireIdentity(t *testing.T) {
	router := newHistoryRouter(newMemStore(), "")

	if rec := doJSON(t, router, http.MethodGet, "/api/v1/history", nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("list without identity: expected 401, got %d", rec.Code)
	}
	if rec := doJSON(t, router, http.MethodDelete, "/api/v1/history", DeleteRequest{IDs: []string{"a"}}); rec.Code != http.StatusUnauthorized {
		t.Errorf("delete without identity: expected 401, got %d", rec.Code)
	}
}
