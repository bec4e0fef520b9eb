package analyzer

import (
	"errors"
	"strings"
	"testing"
)

const wellFormed = `{
	"summary": "The PC does not power on.",
	"likelyCause": "Faulty power supply unit.",
	"solutionSteps": ["Check the wall outlet.", "Reseat the power cable.", "Test with a known-good PSU."],
	"alternativeCauses": ["Dead motherboard"],
	"searchQueries": ["PC no power PSU test"],
	"warnings": ["Unplug the PC before opening the case."]
}`

func TestParseResultWellFormed(t *testing.T) {
	got, err := ParseResult(wellFormed)
	if err != nil {
		t.Fatalf("ParseResult: %v", err)
	}

	if got.Summary != "The PC does not power on." {
		t.Errorf("unexpected summary: %q", got.Summary)
	}
	if len(got.SolutionSteps) != 3 {
		t.Errorf("expected 3 solution steps, got %d", len(got.SolutionSteps))
	}
	if got.SolutionSteps[0] != "Check the wall outlet." {
		t.Errorf("step order not preserved: %q", got.SolutionSteps[0])
	}
}

func TestParseResultStripsCodeFence(t *testing.T) {
	fenced := "```json\n" + wellFormed + "\n```"
	if _, err := ParseResult(fenced); err != nil {
		t.Fatalf("ParseResult with fence: %v", err)
	}
}

func TestParseResultMissingField(t *testing.T) {
	for _, field := range requiredFields {
		// Drop one required field at a time.
		mutated := dropField(t, wellFormed, field)

		_, err := ParseResult(mutated)
		if err == nil {
			t.Errorf("expected error when %q is missing", field)
			continue
		}
		if !errors.Is(err, ErrIncompleteResponse) {
			t.Errorf("expected ErrIncompleteResponse for %q, got %v", field, err)
		}
	}
}

func TestParseResultEmptyRequiredStrings(t *testing.T) {
	mutated := strings.Replace(wellFormed, `"The PC does not power on."`, `""`, 1)
	if _, err := ParseResult(mutated); !errors.Is(err, ErrIncompleteResponse) {
		t.Errorf("expected ErrIncompleteResponse for empty summary, got %v", err)
	}
}

func TestParseResultEmptyArraysAllowed(t *testing.T) {
	mutated := strings.Replace(wellFormed, `["Dead motherboard"]`, `[]`, 1)
	got, err := ParseResult(mutated)
	if err != nil {
		t.Fatalf("empty array should satisfy the contract: %v", err)
	}
	if len(got.AlternativeCauses) != 0 {
		t.Errorf("expected empty alternativeCauses")
	}
}

func TestParseResultNotJSON(t *testing.T) {
	if _, err := ParseResult("I could not analyze the image."); err == nil {
		t.Errorf("expected error for non-JSON body")
	}
}

// dropField removes a top-level field line from the fixture JSON.
func dropField(t *testing.T, src, field string) string {
	t.Helper()

	lines := strings.Split(src, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if strings.Contains(line, `"`+field+`"`) {
			continue
		}
		out = append(out, line)
	}

	joined := strings.Join(out, "\n")
	// Repair a dangling comma before the closing brace.
	joined = strings.Replace(joined, ",\n}", "\n}", 1)
	if joined == src {
		t.Fatalf("field %q not found in fixture", field)
	}
	return joined
}
