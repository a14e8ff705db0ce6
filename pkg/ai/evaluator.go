package ai

import (
	"context"
	"encoding/json"
	"fmt"

	"lessonlab/pkg/domain"
)

const (
	evaluationTemperature float32 = 0.2
	evaluationMaxTokens           = 1000
)

const evaluatorSystemPrompt = "You are a strict pedagogy reviewer. Score lesson plans honestly and respond with a single valid JSON object only."

const evaluatorPromptTemplate = `Evaluate this lesson plan for a %d-minute grade %s lesson on "%s":

%s

Score each rubric from 0.0 to 1.0 and return one JSON object:

{
  "objective_clarity": {"score": 0.0, "reasoning": "..."},
  "age_appropriateness": {"score": 0.0, "reasoning": "..."},
  "completeness": {"score": 0.0, "reasoning": "..."},
  "overall_score": 0.0,
  "suggestions": ["concrete improvement suggestions"]
}`

var evaluationSchema = map[string]any{
	"type": "object",
	"required": []string{
		"objective_clarity", "age_appropriateness", "completeness",
		"overall_score", "suggestions",
	},
	"properties": map[string]any{
		"objective_clarity":   rubricSchema,
		"age_appropriateness": rubricSchema,
		"completeness":        rubricSchema,
		"overall_score":       map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		"suggestions":         map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
	},
}

var rubricSchema = map[string]any{
	"type":     "object",
	"required": []string{"score", "reasoning"},
	"properties": map[string]any{
		"score":     map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		"reasoning": map[string]any{"type": "string"},
	},
}

// Evaluator scores an assembled plan along three rubrics.
type Evaluator struct {
	client Client
	model  string
}

func NewEvaluator(client Client, model string) *Evaluator {
	return &Evaluator{client: client, model: model}
}

// Evaluate never fails. It runs detached from any request, so an error
// here would abort the background task with nobody watching; every failure
// (call, parse, schema) degrades to fixed neutral scores instead.
func (e *Evaluator) Evaluate(ctx context.Context, plan domain.PlanDocument, topic, grade string, duration int) domain.Evaluation {
	planJSON, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return fallbackEvaluation()
	}
	prompt := fmt.Sprintf(evaluatorPromptTemplate, duration, grade, topic, planJSON)

	completion, err := e.client.Complete(ctx, CompletionRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: evaluatorSystemPrompt},
			{Role: RoleUser, Content: prompt},
		},
		Model:       e.model,
		MaxTokens:   evaluationMaxTokens,
		Temperature: evaluationTemperature,
	})
	if err != nil {
		return fallbackEvaluation()
	}

	var evaluation domain.Evaluation
	if err := decodeStructured(completion.Text, "lesson-evaluation", evaluationSchema, &evaluation); err != nil {
		return fallbackEvaluation()
	}
	return evaluation
}

func fallbackEvaluation() domain.Evaluation {
	neutral := domain.RubricScore{
		Score:     0.7,
		Reasoning: "Automatic evaluation was unavailable",
	}
	return domain.Evaluation{
		ObjectiveClarity:   neutral,
		AgeAppropriateness: neutral,
		Completeness:       neutral,
		OverallScore:       0.7,
		Suggestions:        []string{"Automatic evaluation failed; review this plan manually"},
	}
}
