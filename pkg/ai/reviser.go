package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"lessonlab/pkg/domain"
)

const (
	// Revisions get a larger budget than generation: the model restates
	// the whole plan and elaborates on the feedback.
	revisionTemperature float32 = 0.7
	revisionMaxTokens           = 3000
)

const reviserSystemPrompt = "You are an experienced curriculum designer revising a lesson plan based on teacher feedback. You must respond with a single valid JSON object and nothing else."

const reviserPromptTemplate = `Here is an existing lesson plan for a %d-minute grade %s lesson on "%s":

%s

The teacher gave this feedback:
"%s"

Rewrite the plan so it addresses the feedback. Return the COMPLETE replacement plan as one JSON object with this exact shape (not a diff):

{
  "title": "...",
  "objectives": ["..."],
  "structure": {"introduction": "...", "main_activity": "...", "assessment": "...", "timing": "..."},
  "resources": [{"title": "...", "type": "...", "url": "...", "score": 0.0, "reasoning": "..."}],
  "materials_needed": ["..."],
  "differentiation": "..."
}`

// Reviser turns teacher feedback into a full replacement plan.
type Reviser struct {
	client Client
	model  string
}

func NewReviser(client Client, model string) *Reviser {
	return &Reviser{client: client, model: model}
}

// Revise asks the model for a complete replacement plan. Two failure paths,
// deliberately asymmetric: a response that was received but cannot be
// parsed degrades to the original plan with RevisionFailed set and a nil
// error; a failed call itself propagates to the caller.
func (r *Reviser) Revise(ctx context.Context, original domain.PlanDocument, feedback, topic, grade string, duration int) (domain.PlanDocument, domain.RevisionMetadata, error) {
	originalJSON, err := json.MarshalIndent(original, "", "  ")
	if err != nil {
		return domain.PlanDocument{}, domain.RevisionMetadata{}, fmt.Errorf("encode original plan: %w", err)
	}
	prompt := fmt.Sprintf(reviserPromptTemplate, duration, grade, topic, originalJSON, feedback)

	completion, err := r.client.Complete(ctx, CompletionRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: reviserSystemPrompt},
			{Role: RoleUser, Content: prompt},
		},
		Model:       r.model,
		MaxTokens:   revisionMaxTokens,
		Temperature: revisionTemperature,
	})
	if err != nil {
		return domain.PlanDocument{}, domain.RevisionMetadata{}, fmt.Errorf("revise lesson: %w", err)
	}

	var revised domain.PlanDocument
	if err := decodeStructured(completion.Text, "plan-document", planDocumentSchema, &revised); err != nil {
		return original, domain.RevisionMetadata{
			Feedback:       feedback,
			RevisedAt:      time.Now().UTC(),
			RevisionFailed: true,
			Error:          err.Error(),
		}, nil
	}

	return revised, domain.RevisionMetadata{
		Feedback:         feedback,
		Model:            r.model,
		PromptTokens:     completion.PromptTokens,
		CompletionTokens: completion.CompletionTokens,
		TotalTokens:      completion.TotalTokens,
		Prompt:           truncate(prompt, 500),
		RevisedAt:        time.Now().UTC(),
	}, nil
}
