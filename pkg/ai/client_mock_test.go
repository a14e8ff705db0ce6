package ai

import "context"

// scriptClient plays back canned completions (or errors) in order and
// records every request it receives.
type scriptClient struct {
	completions []Completion
	errs        []error
	calls       []CompletionRequest
}

func (c *scriptClient) Complete(_ context.Context, req CompletionRequest) (Completion, error) {
	i := len(c.calls)
	c.calls = append(c.calls, req)
	if i < len(c.errs) && c.errs[i] != nil {
		return Completion{}, c.errs[i]
	}
	if i < len(c.completions) {
		return c.completions[i], nil
	}
	return Completion{}, &CompletionError{Err: context.Canceled}
}

func textCompletion(text string) Completion {
	return Completion{
		Text:             text,
		PromptTokens:     120,
		CompletionTokens: 80,
		TotalTokens:      200,
	}
}

const validGenerationJSON = `{
  "objectives": [
    "Students will be able to explain how plants make food",
    "Students will be able to name the inputs of photosynthesis",
    "Students will be able to describe why sunlight matters"
  ],
  "structure": {
    "introduction": "Show a time-lapse of a growing plant",
    "main_activity": "Leaf starch experiment in pairs",
    "assessment": "Exit ticket with two questions",
    "timing": "10 intro / 25 activity / 10 assessment, 45 minutes total"
  },
  "pedagogical_reasoning": {
    "objectives_reasoning": "Concrete and observable for grade 5",
    "structure_reasoning": "Hands-on work keeps attention",
    "resources_reasoning": "Video primes the experiment",
    "timing_reasoning": "Activity needs the biggest block"
  }
}`

const validPlanDocumentJSON = `{
  "title": "Lesson Plan: Photosynthesis with experiments",
  "objectives": ["Students will run a hands-on experiment"],
  "structure": {
    "introduction": "Recap last lesson",
    "main_activity": "Hands-on leaf experiment",
    "assessment": "Lab worksheet",
    "timing": "45 minutes total"
  },
  "resources": [
    {"title": "Leaf lab video", "type": "video", "url": "https://example.com/video", "score": 0.9, "reasoning": "Shows the setup"}
  ],
  "materials_needed": ["Leaves", "Iodine"],
  "differentiation": "Pair weaker readers with stronger ones"
}`

const validEvaluationJSON = `{
  "objective_clarity": {"score": 0.85, "reasoning": "Measurable verbs"},
  "age_appropriateness": {"score": 0.9, "reasoning": "Fits grade 5"},
  "completeness": {"score": 0.8, "reasoning": "Assessment is thin"},
  "overall_score": 0.85,
  "suggestions": ["Add a closing discussion"]
}`
