package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/recruiter-outreach/internal/ai"
	"github.com/spigell/recruiter-outreach/internal/utils"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, prompt string) (string, error)
}

//go:embed prompt.md
var promptTemplate string

const (
	defaultMaxLogLength = 200
	systemInstruction   = "You answer with a single JSON object and nothing else."
)

// Finder asks Gemini for a recruiter contact.
type Finder struct {
	generator     contentGenerator
	minConfidence float64
	logger        *zap.Logger
	maxLogLen     int
}

var _ ai.ContactFinder = (*Finder)(nil)

func NewFinder(generator contentGenerator, minConfidence float64, maxLogLength int, logger *zap.Logger) *Finder {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Finder{
		generator:     generator,
		minConfidence: minConfidence,
		logger:        logger,
		maxLogLen:     maxLogLength,
	}
}

func (f *Finder) FindContact(ctx context.Context, req ai.ContactRequest) (*ai.Contact, error) {
	payload := map[string]string{
		"company": req.Company,
		"title":   req.Title,
	}
	if req.URL != "" {
		payload["url"] = req.URL
	}
	if req.RecruiterHint != "" {
		payload["recruiter_hint"] = req.RecruiterHint
	}

	jobJSON, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}

	prompt := buildPrompt(string(jobJSON))

	f.logger.Debug("gemini generate content request",
		zap.String("job_id", req.JobID),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, f.maxLogLen)),
	)

	raw, err := f.generator.GenerateContent(ctx, systemInstruction, prompt)
	if err != nil {
		return nil, err
	}

	f.logger.Debug("gemini generate content response",
		zap.String("job_id", req.JobID),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, f.maxLogLen)),
	)

	contact, err := parseResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ai.ErrTemporary, err)
	}
	if contact == nil {
		return nil, nil
	}

	if f.minConfidence > 0 && contact.Confidence < f.minConfidence {
		f.logger.Debug("dropping contact below confidence threshold",
			zap.String("job_id", req.JobID),
			zap.Float64("confidence", contact.Confidence),
			zap.Float64("threshold", f.minConfidence),
		)
		return nil, nil
	}

	return contact, nil
}

func buildPrompt(jobJSON string) string {
	template := promptTemplate
	if strings.TrimSpace(template) == "" {
		template = "Job:\n{{JOB_JSON}}\n\nJSON Response:"
	}
	return strings.ReplaceAll(template, "{{JOB_JSON}}", jobJSON)
}

func parseResponse(raw string) (*ai.Contact, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	if found, ok := data["found"]; ok && !coerceBool(found) {
		return nil, nil
	}

	contact := &ai.Contact{
		Name:       coerceString(data["name"]),
		Channel:    coerceString(data["contact"]),
		Confidence: coerceFloat(data["confidence"]),
		Raw:        raw,
	}

	if math.IsNaN(contact.Confidence) {
		contact.Confidence = 0
	}

	if contact.Channel == "" {
		return nil, nil
	}

	return contact, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		lower := strings.ToLower(strings.TrimSpace(val))
		return lower == "true" || lower == "yes"
	case float64:
		return val != 0
	default:
		return false
	}
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", val))
	}
}
