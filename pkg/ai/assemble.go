package ai

import "lessonlab/pkg/domain"

const fallbackPlanTitle = "Lesson Plan: Custom Topic"

// AssemblePlan merges objectives, structure and resources into the final
// plan document. Pure function, total over its inputs.
func AssemblePlan(objectives []string, structure domain.LessonStructure, resources []domain.Resource) domain.PlanDocument {
	title := fallbackPlanTitle
	if len(objectives) > 0 {
		title = "Lesson Plan: " + objectives[0]
	}
	return domain.PlanDocument{
		Title:           title,
		Objectives:      objectives,
		Structure:       structure,
		Resources:       resources,
		MaterialsNeeded: []string{"Whiteboard", "Handouts", "Computer/Projector"},
		Differentiation: "Provide visual aids for visual learners, allow verbal responses for auditory learners",
	}
}
