package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"google.golang.org/genai"

	"github.com/vango-go/vai-intake/pkg/core/types"
)

// DefaultGeminiModel is used when no model is configured.
const DefaultGeminiModel = "gemini-2.5-flash"

// maxHistoryTurns caps the history sent to the model.
const maxHistoryTurns = 10

// contentGenerator is the subset of *genai.Models used here.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GeminiBackend runs the intake assistant directly against Gemini.
type GeminiBackend struct {
	models contentGenerator
	model  string
}

// GeminiConfig configures NewGeminiBackend.
type GeminiConfig struct {
	APIKey   string
	Model    string
	Project  string
	Location string
}

// NewGeminiBackend creates a Gemini client. With a Project set it uses
// Vertex AI, otherwise the Gemini API with APIKey.
func NewGeminiBackend(ctx context.Context, cfg GeminiConfig) (*GeminiBackend, error) {
	cc := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.Project != "" {
		cc = &genai.ClientConfig{
			Project:  cfg.Project,
			Location: cfg.Location,
			Backend:  genai.BackendVertexAI,
		}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return newGeminiBackend(client.Models, cfg.Model), nil
}

func newGeminiBackend(models contentGenerator, model string) *GeminiBackend {
	if model == "" {
		model = DefaultGeminiModel
	}
	return &GeminiBackend{models: models, model: model}
}

// Converse implements Backend.
func (g *GeminiBackend) Converse(ctx context.Context, req Request) (*Reply, error) {
	history := req.History
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}

	contents := make([]*genai.Content, 0, len(history)+1)
	for _, t := range history {
		var role genai.Role = genai.RoleUser
		if t.Role == types.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Text, role))
	}
	contents = append(contents, genai.NewContentFromText(req.Message, genai.RoleUser))

	temp := float32(0.3)
	cfg := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt(req), genai.RoleUser),
		Temperature:       &temp,
		MaxOutputTokens:   int32(700),
	}

	res, err := g.models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}
	raw := res.Text()
	if strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("gemini returned empty text")
	}
	return parseModelOutput(raw), nil
}

func systemPrompt(req Request) string {
	known := "Nothing collected yet."
	if len(req.KnownSymptoms) > 0 {
		known = "Symptoms: " + strings.Join(req.KnownSymptoms, ", ")
	}
	return `You are a compassionate medical intake assistant for a clinic.
Your only job is to collect the patient's symptom information before their consultation.
Reply in the same language the patient uses (requested language: ` + req.Language + `).

Never diagnose, never recommend medication, never give a prognosis, and ask at most one question per reply.
If the patient describes an emergency such as severe chest pain or inability to breathe, tell them to call emergency services first.

Already collected:
` + known + `

Collect, in order: symptoms, duration, severity (1-10), location, associated symptoms, medical history.

After your reply, on a new line, add this hidden block:
<data>
{"symptoms": [], "severity_score": null, "severity_band": "HIGH|MODERATE|LOW|null", "intake_complete": false, "follow_ups": []}
</data>
Only include symptoms the patient mentioned. intake_complete is true only once symptoms, duration and severity are known.`
}

var (
	dataBlockRe = regexp.MustCompile(`(?s)<data>\s*(\{.*?\})\s*</data>`)
	stripDataRe = regexp.MustCompile(`(?s)\s*<data>.*?</data>`)
)

type modelData struct {
	Symptoms       []string `json:"symptoms"`
	SeverityScore  *float64 `json:"severity_score"`
	SeverityBand   *string  `json:"severity_band"`
	IntakeComplete bool     `json:"intake_complete"`
	FollowUps      []string `json:"follow_ups"`
}

// parseModelOutput splits the visible reply from the hidden data block.
func parseModelOutput(raw string) *Reply {
	reply := &Reply{Text: strings.TrimSpace(stripDataRe.ReplaceAllString(raw, ""))}

	m := dataBlockRe.FindStringSubmatch(raw)
	if m == nil {
		return reply
	}
	var data modelData
	if err := json.Unmarshal([]byte(m[1]), &data); err != nil {
		return reply
	}

	reply.Symptoms = data.Symptoms
	reply.FollowUps = data.FollowUps
	reply.IntakeComplete = data.IntakeComplete
	if data.SeverityBand != nil && *data.SeverityBand != "" && *data.SeverityBand != "null" {
		reply.Severity = *data.SeverityBand
	} else if data.SeverityScore != nil {
		reply.Severity = severityBand(int(*data.SeverityScore))
	}
	return reply
}

func severityBand(score int) string {
	switch {
	case score >= 9:
		return "CRITICAL"
	case score >= 7:
		return "HIGH"
	case score >= 4:
		return "MODERATE"
	case score >= 1:
		return "LOW"
	default:
		return ""
	}
}
