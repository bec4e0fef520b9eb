package errors

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestAbortHelpersStopTheChain(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()

	ranNext := false
	r.GET("/conflict", func(c *gin.Context) {
		AbortWithConflict(c, "submission already in flight", map[string]interface{}{"state": "submitting"})
	}, func(c *gin.Context) {
		ranNext = true
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/conflict", nil))

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if ranNext {
		t.Error("abort must prevent later handlers from running")
	}

	var body APIError
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body.Error != "submission already in flight" {
		t.Errorf("unexpected error message %q", body.Error)
	}
	if body.Details["state"] != "submitting" {
		t.Errorf("details not carried through: %v", body.Details)
	}
}

func TestEnvelopeOmitsEmptyDetails(t *testing.T) {
	encoded, err := json.Marshal(NewAPIError("authentication required", nil))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(encoded) != `{"error":"authentication required"}` {
		t.Errorf("nil details must be omitted, got %s", encoded)
	}
}
