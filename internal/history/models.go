package history

import (
	"time"

	"github.com/solvemate/solvemate-api/internal/analyzer"
)

// Item is one persisted analysis. Items are immutable after creation and are
// only ever removed by an explicit user delete.
type Item struct {
	ID              string                  `json:"id"`
	Timestamp       time.Time               `json:"timestamp"`
	ImageURL        string                  `json:"imageUrl"`
	UserDescription string                  `json:"userDescription"`
	Result          analyzer.AnalysisResult `json:"result"`
}

// ListResponse is the payload for GET /api/v1/history.
type ListResponse struct {
	Items []Item `json:"items"`
}

// DeleteRequest is the payload for batch deletion.
type DeleteRequest struct {
	IDs []string `json:"ids" binding:"required"`
}

// DeleteResponse reports the outcome of a batch deletion.
type DeleteResponse struct {
	Deleted int64 `json:"deleted"`
}
