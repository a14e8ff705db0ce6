package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestReviseReturnsReplacementPlan(t *testing.T) {
	client := &scriptClient{completions: []Completion{textCompletion(validPlanDocumentJSON)}}
	rev := NewReviser(client, "gpt-4o")

	plan, meta, err := rev.Revise(context.Background(), samplePlan(), "add a hands-on experiment", "Photosynthesis", "5", 45)
	if err != nil {
		t.Fatalf("revise: %v", err)
	}
	if meta.RevisionFailed {
		t.Fatalf("revision_failed set on success")
	}
	if plan.Title != "Lesson Plan: Photosynthesis with experiments" {
		t.Fatalf("unexpected revised title %q", plan.Title)
	}
	if meta.Feedback != "add a hands-on experiment" {
		t.Fatalf("metadata feedback = %q", meta.Feedback)
	}
	if meta.TotalTokens != 200 {
		t.Fatalf("metadata tokens = %d, want 200", meta.TotalTokens)
	}
	if len(meta.Prompt) > 500 {
		t.Fatalf("stored prompt must be truncated, got %d chars", len(meta.Prompt))
	}

	req := client.calls[0]
	if req.MaxTokens != revisionMaxTokens {
		t.Fatalf("max tokens = %d, want %d", req.MaxTokens, revisionMaxTokens)
	}
	if !strings.Contains(req.Messages[1].Content, "add a hands-on experiment") {
		t.Fatalf("prompt does not embed the verbatim feedback")
	}
}

func TestReviseKeepsOriginalOnMalformedResponse(t *testing.T) {
	client := &scriptClient{completions: []Completion{textCompletion("Happy to help! First, ...")}}
	rev := NewReviser(client, "gpt-4o")
	original := samplePlan()

	plan, meta, err := rev.Revise(context.Background(), original, "make it shorter", "Photosynthesis", "5", 45)
	if err != nil {
		t.Fatalf("parse failure must not be an error: %v", err)
	}
	got, _ := json.Marshal(plan)
	want, _ := json.Marshal(original)
	if string(got) != string(want) {
		t.Fatalf("plan changed on failed revision:\n got %s\nwant %s", got, want)
	}
	if !meta.RevisionFailed {
		t.Fatalf("revision_failed not set")
	}
	if meta.Error == "" || meta.Feedback != "make it shorter" {
		t.Fatalf("failure metadata incomplete: %+v", meta)
	}
}

func TestReviseRejectsIncompleteReplacement(t *testing.T) {
	// A diff-style response misses required document fields; the reviser
	// must treat it as a failed revision, not merge it.
	client := &scriptClient{completions: []Completion{textCompletion(`{"objectives": ["only objectives changed"]}`)}}
	rev := NewReviser(client, "gpt-4o")
	original := samplePlan()

	plan, meta, err := rev.Revise(context.Background(), original, "tweak objectives", "Photosynthesis", "5", 45)
	if err != nil {
		t.Fatalf("schema failure must not be an error: %v", err)
	}
	if !meta.RevisionFailed {
		t.Fatalf("revision_failed not set")
	}
	if plan.Title != original.Title {
		t.Fatalf("original plan must be returned unchanged")
	}
}

func TestRevisePropagatesCompletionFailure(t *testing.T) {
	client := &scriptClient{errs: []error{&CompletionError{Err: fmt.Errorf("502 bad gateway")}}}
	rev := NewReviser(client, "gpt-4o")

	_, _, err := rev.Revise(context.Background(), samplePlan(), "anything", "Photosynthesis", "5", 45)
	if err == nil {
		t.Fatalf("transport failure must propagate")
	}
	var completionErr *CompletionError
	if !errors.As(err, &completionErr) {
		t.Fatalf("expected CompletionError, got %v", err)
	}
}
