package analyzer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/solvemate/solvemate-api/internal/logger"
	"github.com/solvemate/solvemate-api/internal/metrics"
	"google.golang.org/api/option"
)

const systemInstruction = `You are an expert technical troubleshooter and problem solver.
Your goal is to analyze images of broken items, error screens, or general problems provided by users, along with their description.
You must diagnose the issue and provide a safe, clear, step-by-step solution.
Be concise but thorough. Prioritize safety.
If the image is unclear, provide general advice based on the description but note the ambiguity.`

// Engine calls the Gemini API for one image+text diagnosis. Submissions are
// billed per call, so the engine makes exactly one attempt per request and
// leaves retries to the user.
type Engine struct {
	apiKey  string
	model   string
	timeout time.Duration
	logger  *logger.Logger
}

func NewEngine(apiKey, model string, timeout time.Duration, logger *logger.Logger) *Engine {
	return &Engine{
		apiKey:  strings.TrimSpace(apiKey),
		model:   strings.TrimSpace(model),
		timeout: timeout,
		logger:  logger,
	}
}

// responseSchema declares the six-field diagnosis contract. The model is
// constrained to emit exactly this shape.
func responseSchema() *genai.Schema {
	stringArray := func(desc string) *genai.Schema {
		return &genai.Schema{
			Type:        genai.TypeArray,
			Items:       &genai.Schema{Type: genai.TypeString},
			Description: desc,
		}
	}

	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"summary": {
				Type:        genai.TypeString,
				Description: "A concise summary of the identified problem.",
			},
			"likelyCause": {
				Type:        genai.TypeString,
				Description: "The most probable root cause of the issue.",
			},
			"solutionSteps":     stringArray("Step-by-step instructions to fix the problem. Ordered from easiest/safest to most complex."),
			"alternativeCauses": stringArray("Other possible causes if the primary one is incorrect."),
			"searchQueries":     stringArray("Keywords for the user to search on Google for more help."),
			"warnings":          stringArray("Safety warnings or things to avoid doing."),
		},
		Required: []string{"summary", "likelyCause", "solutionSteps", "alternativeCauses", "searchQueries", "warnings"},
	}
}

// contextPrompt renders the user-supplied context for the model.
func contextPrompt(req AnalysisRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Context Category: %s\n", req.Category)
	if desc := strings.TrimSpace(req.Description); desc != "" {
		fmt.Fprintf(&b, "User Description: %q", desc)
	} else {
		b.WriteString("Please analyze this image and identify the problem.")
	}
	return b.String()
}

// Analyze performs a single analyzer call. Any transport error, non-JSON body
// or missing required field is returned as an error; no partial result is
// ever produced.
func (e *Engine) Analyze(ctx context.Context, req AnalysisRequest) (AnalysisResult, error) {
	if e.apiKey == "" {
		return AnalysisResult{}, errors.New("GEMINI_API_KEY is empty")
	}
	if len(req.Image) == 0 {
		return AnalysisResult{}, errors.New("analysis request has no image")
	}

	log := e.logger.WithContext(ctx).WithComponent("analyzer")

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := e.analyze(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		metrics.ObserveAnalysis("failure", elapsed)
		log.Error("analyzer call failed",
			slog.String("model", e.model),
			slog.String("category", req.Category),
			slog.Duration("elapsed", elapsed),
			slog.String("error", err.Error()))
		return AnalysisResult{}, err
	}

	metrics.ObserveAnalysis("success", elapsed)
	log.Info("analyzer call completed",
		slog.String("model", e.model),
		slog.String("category", req.Category),
		slog.Duration("elapsed", elapsed),
		slog.Int("solution_steps", len(result.SolutionSteps)))

	return result, nil
}

func (e *Engine) analyze(ctx context.Context, req AnalysisRequest) (AnalysisResult, error) {
	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.apiKey))
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("gemini client: %w", err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.model)
	temperature := float32(0)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature:      &temperature,
		ResponseMIMEType: "application/json",
		ResponseSchema:   responseSchema(),
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemInstruction)},
	}

	parts := []genai.Part{
		&genai.Blob{MIMEType: req.MIMEType, Data: req.Image},
		genai.Text(contextPrompt(req)),
	}

	resp, err := m.GenerateContent(ctx, parts...)
	if err != nil {
		return AnalysisResult{}, fmt.Errorf("gemini generate: %w", err)
	}

	txt := firstText(resp)
	if txt == "" {
		return AnalysisResult{}, errors.New("gemini: empty response")
	}

	return ParseResult(txt)
}

// firstText concatenates the text parts of the first candidate.
func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}
