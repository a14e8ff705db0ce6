package ai

import (
	"fmt"

	"lessonlab/pkg/domain"
)

// FindResources returns scored supplementary resources for a topic.
//
// This is a deterministic stand-in for a real search integration
// (YouTube/web search); it always returns one video and one worksheet.
// TODO: replace with a search-backed finder once a provider is chosen.
func FindResources(topic, grade string) []domain.Resource {
	return []domain.Resource{
		{
			Title:     fmt.Sprintf("Educational video about %s", topic),
			Type:      "video",
			URL:       "https://example.com/video",
			Score:     0.9,
			Reasoning: fmt.Sprintf("Highly relevant to %s, appropriate for grade %s", topic, grade),
		},
		{
			Title:     fmt.Sprintf("Interactive worksheet on %s", topic),
			Type:      "worksheet",
			URL:       "https://example.com/worksheet",
			Score:     0.8,
			Reasoning: "Good practice material with clear instructions",
		},
	}
}
