package ai

import (
	"context"
	"fmt"
	"time"

	"lessonlab/pkg/domain"
)

const (
	generationTemperature float32 = 0.7
	generationMaxTokens           = 2000
)

const generatorSystemPrompt = "You are an experienced curriculum designer who writes clear, age-appropriate lesson plans. You must respond with a single valid JSON object and nothing else: no prose, no markdown."

const generatorPromptTemplate = `Design a %d-minute lesson on "%s" for grade %s students.

Return one JSON object with exactly these fields:

{
  "objectives": ["3 to 5 specific, measurable learning objectives"],
  "structure": {
    "introduction": "how the lesson opens (5-10 min)",
    "main_activity": "the core activity in detail",
    "assessment": "how understanding is checked",
    "timing": "how the %d minutes are divided"
  },
  "pedagogical_reasoning": {
    "objectives_reasoning": "why these objectives suit grade %s",
    "structure_reasoning": "why the lesson is structured this way",
    "resources_reasoning": "what supporting materials would help",
    "timing_reasoning": "why the time is divided this way"
  }
}`

var generationSchema = map[string]any{
	"type":     "object",
	"required": []string{"objectives", "structure", "pedagogical_reasoning"},
	"properties": map[string]any{
		"objectives": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items":    map[string]any{"type": "string"},
		},
		"structure": lessonStructureSchema,
		"pedagogical_reasoning": map[string]any{
			"type": "object",
			"required": []string{
				"objectives_reasoning", "structure_reasoning",
				"resources_reasoning", "timing_reasoning",
			},
		},
	},
}

// Generator produces the objectives, structure and rationale for a new
// lesson with one combined completion call.
type Generator struct {
	client Client
	model  string
}

func NewGenerator(client Client, model string) *Generator {
	return &Generator{client: client, model: model}
}

// Generate builds the plan skeleton. A failed completion call propagates;
// an unparseable or schema-invalid response never does — it degrades to a
// synthetic fallback plan flagged in the metadata.
func (g *Generator) Generate(ctx context.Context, topic, grade string, duration int) (domain.GeneratedPlan, error) {
	prompt := fmt.Sprintf(generatorPromptTemplate, duration, topic, grade, duration, grade)

	completion, err := g.client.Complete(ctx, CompletionRequest{
		Messages: []Message{
			{Role: RoleSystem, Content: generatorSystemPrompt},
			{Role: RoleUser, Content: prompt},
		},
		Model:       g.model,
		MaxTokens:   generationMaxTokens,
		Temperature: generationTemperature,
	})
	if err != nil {
		return domain.GeneratedPlan{}, fmt.Errorf("generate lesson: %w", err)
	}

	meta := domain.GenerationMetadata{
		Prompt:           prompt,
		SystemPrompt:     generatorSystemPrompt,
		Model:            g.model,
		MaxTokens:        generationMaxTokens,
		Temperature:      generationTemperature,
		PromptTokens:     completion.PromptTokens,
		CompletionTokens: completion.CompletionTokens,
		TotalTokens:      completion.TotalTokens,
		GeneratedAt:      time.Now().UTC(),
	}

	var payload struct {
		Objectives []string               `json:"objectives"`
		Structure  domain.LessonStructure `json:"structure"`
		Reasoning  domain.AgentThoughts   `json:"pedagogical_reasoning"`
	}
	if err := decodeStructured(completion.Text, "lesson-generation", generationSchema, &payload); err != nil {
		return fallbackGeneration(topic, grade, duration, completion.Text, meta), nil
	}

	return domain.GeneratedPlan{
		Objectives: payload.Objectives,
		Structure:  payload.Structure,
		Reasoning:  payload.Reasoning,
		Metadata:   meta,
	}, nil
}

// fallbackGeneration is the terminal error boundary for generation: it
// always yields a schema-complete plan and never fails.
func fallbackGeneration(topic, grade string, duration int, raw string, meta domain.GenerationMetadata) domain.GeneratedPlan {
	meta.ParsingFailed = true
	meta.RawResponse = truncate(raw, 500)

	return domain.GeneratedPlan{
		Objectives: []string{
			fmt.Sprintf("Students will be able to describe the key ideas of %s.", topic),
			fmt.Sprintf("Students will be able to explain why %s matters in everyday life.", topic),
			fmt.Sprintf("Students will be able to apply what they learned about %s in a short exercise.", topic),
		},
		Structure: domain.LessonStructure{
			Introduction: fmt.Sprintf("Engage students with a short overview of %s.", topic),
			MainActivity: truncate(raw, 200),
			Assessment:   "Quick formative assessment",
			Timing:       fmt.Sprintf("%d minutes total", duration),
		},
		Reasoning: domain.AgentThoughts{
			ObjectivesReasoning: fmt.Sprintf("Default objectives generated for %s at grade %s.", topic, grade),
			StructureReasoning:  "Standard introduction, activity and assessment split.",
			ResourcesReasoning:  "Curated placeholder resources attached.",
			TimingReasoning:     fmt.Sprintf("Even split across the %d-minute session.", duration),
		},
		Metadata: meta,
	}
}
