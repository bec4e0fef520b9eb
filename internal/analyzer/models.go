package analyzer

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/solvemate/solvemate-api/internal/common"
)

// ErrIncompleteResponse marks an analyzer response that parsed as JSON but is
// missing one of the required diagnosis fields. Callers treat it as a failed
// attempt, never as a partial success.
var ErrIncompleteResponse = errors.New("analyzer response missing required field")

// AnalysisRequest is one submission to the remote analyzer. Image presence is
// enforced by the session controller before the request is built.
type AnalysisRequest struct {
	Image       []byte
	MIMEType    string
	Description string
	Category    string
}

// AnalysisResult is the structured diagnosis returned by the analyzer. All six
// fields are required by the response contract.
type AnalysisResult struct {
	Summary           string   `json:"summary"`
	LikelyCause       string   `json:"likelyCause"`
	SolutionSteps     []string `json:"solutionSteps"`
	AlternativeCauses []string `json:"alternativeCauses"`
	SearchQueries     []string `json:"searchQueries"`
	Warnings          []string `json:"warnings"`
}

var requiredFields = []string{
	"summary",
	"likelyCause",
	"solutionSteps",
	"alternativeCauses",
	"searchQueries",
	"warnings",
}

// ParseResult decodes a raw model response into an AnalysisResult, tolerating
// a surrounding markdown fence. A body that is not valid JSON or lacks any of
// the six required fields is rejected.
func ParseResult(raw string) (AnalysisResult, error) {
	cleaned := common.StripCodeFences(raw)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &fields); err != nil {
		return AnalysisResult{}, fmt.Errorf("bad analyzer JSON: %w", err)
	}

	for _, field := range requiredFields {
		if _, ok := fields[field]; !ok {
			return AnalysisResult{}, fmt.Errorf("%w: %s", ErrIncompleteResponse, field)
		}
	}

	var out AnalysisResult
	if err := json.Unmarshal([]byte(cleaned), &out); err != nil {
		return AnalysisResult{}, fmt.Errorf("bad analyzer JSON: %w", err)
	}

	if out.Summary == "" {
		return AnalysisResult{}, fmt.Errorf("%w: summary is empty", ErrIncompleteResponse)
	}
	if out.LikelyCause == "" {
		return AnalysisResult{}, fmt.Errorf("%w: likelyCause is empty", ErrIncompleteResponse)
	}

	return out, nil
}
