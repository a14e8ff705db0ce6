package domain

import "time"

// LessonStructure is the four-part skeleton of a lesson.
type LessonStructure struct {
	Introduction string `json:"introduction"`
	MainActivity string `json:"main_activity"`
	Assessment   string `json:"assessment"`
	Timing       string `json:"timing"`
}

// Resource is a scored supplementary material attached to a plan.
type Resource struct {
	Title     string  `json:"title"`
	Type      string  `json:"type"`
	URL       string  `json:"url"`
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// PlanDocument is the full structured lesson content. Field names are
// snake_case because the document mirrors the JSON schema the model is
// instructed to emit, and it is stored and returned as-is.
type PlanDocument struct {
	Title           string          `json:"title"`
	Objectives      []string        `json:"objectives"`
	Structure       LessonStructure `json:"structure"`
	Resources       []Resource      `json:"resources"`
	MaterialsNeeded []string        `json:"materials_needed"`
	Differentiation string          `json:"differentiation"`
}

// AgentThoughts carries the pedagogical rationale behind a generated plan.
type AgentThoughts struct {
	ObjectivesReasoning string `json:"objectives_reasoning"`
	StructureReasoning  string `json:"structure_reasoning"`
	ResourcesReasoning  string `json:"resources_reasoning"`
	TimingReasoning     string `json:"timing_reasoning"`
}

// RubricScore is one scored evaluation dimension.
type RubricScore struct {
	Score     float64 `json:"score"`
	Reasoning string  `json:"reasoning"`
}

// Evaluation is the model's assessment of an assembled plan.
type Evaluation struct {
	ObjectiveClarity   RubricScore `json:"objective_clarity"`
	AgeAppropriateness RubricScore `json:"age_appropriateness"`
	Completeness       RubricScore `json:"completeness"`
	OverallScore       float64     `json:"overall_score"`
	Suggestions        []string    `json:"suggestions"`
}

// GenerationMetadata records exactly how a plan was produced, for audit.
type GenerationMetadata struct {
	Prompt           string    `json:"prompt"`
	SystemPrompt     string    `json:"system_prompt"`
	Model            string    `json:"model"`
	MaxTokens        int       `json:"max_tokens"`
	Temperature      float32   `json:"temperature"`
	PromptTokens     int       `json:"prompt_tokens"`
	CompletionTokens int       `json:"completion_tokens"`
	TotalTokens      int       `json:"total_tokens"`
	GeneratedAt      time.Time `json:"generated_at"`
	ParsingFailed    bool      `json:"parsing_failed,omitempty"`
	RawResponse      string    `json:"raw_response,omitempty"`
}

// RevisionMetadata records how a revision attempt went. On a failed
// revision the plan is returned unchanged and RevisionFailed is set.
type RevisionMetadata struct {
	Feedback         string    `json:"feedback"`
	Model            string    `json:"model,omitempty"`
	PromptTokens     int       `json:"prompt_tokens,omitempty"`
	CompletionTokens int       `json:"completion_tokens,omitempty"`
	TotalTokens      int       `json:"total_tokens,omitempty"`
	Prompt           string    `json:"prompt,omitempty"`
	RevisedAt        time.Time `json:"revised_at"`
	RevisionFailed   bool      `json:"revision_failed,omitempty"`
	Error            string    `json:"error,omitempty"`
}

// GeneratedPlan is the generator's output before assembly.
type GeneratedPlan struct {
	Objectives []string           `json:"objectives"`
	Structure  LessonStructure    `json:"structure"`
	Reasoning  AgentThoughts      `json:"pedagogical_reasoning"`
	Metadata   GenerationMetadata `json:"metadata"`
}

// LessonPlan is the persisted lesson record. The envelope uses camelCase
// like the rest of the API; the embedded documents keep their model-facing
// snake_case schema.
type LessonPlan struct {
	ID                     string              `json:"id"`
	OwnerID                string              `json:"ownerId"`
	Title                  string              `json:"title,omitempty"`
	Topic                  string              `json:"topic"`
	Grade                  string              `json:"grade"`
	Duration               int                 `json:"duration"`
	Plan                   PlanDocument        `json:"plan"`
	AgentThoughts          *AgentThoughts      `json:"agentThoughts,omitempty"`
	Evaluation             *Evaluation         `json:"evaluation,omitempty"`
	GenerationMeta         *GenerationMetadata `json:"generationMeta,omitempty"`
	LatestRevisionPlan     *PlanDocument       `json:"latestRevisionPlan,omitempty"`
	LatestRevisionFeedback string              `json:"latestRevisionFeedback,omitempty"`
	RevisionCount          int                 `json:"revisionCount"`
	UserRating             *bool               `json:"userRating,omitempty"`
	CreatedAt              time.Time           `json:"createdAt"`
	UpdatedAt              time.Time           `json:"updatedAt"`
}

// LessonRevision is one immutable revision-history entry. RevisionNumber is
// 1-based and matches the parent's RevisionCount at the time it was written.
type LessonRevision struct {
	ID             string           `json:"id"`
	LessonID       string           `json:"lessonId"`
	RevisionNumber int              `json:"revisionNumber"`
	Plan           PlanDocument     `json:"plan"`
	Feedback       string           `json:"feedback"`
	Metadata       RevisionMetadata `json:"metadata"`
	CreatedAt      time.Time        `json:"createdAt"`
}
