// Package placement computes pause points for pre-recorded lectures: it
// scores transcript moments by estimated cognitive load, reconciles the
// candidate set to an exact requested count, and attaches one generated
// question per point.
package placement

import (
	"time"

	"github.com/classlive/platform/internal/question"
)

// TranscriptSegment is one timestamped span of the stored transcript.
type TranscriptSegment struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// DomainProfile biases scoring toward a lecture's subject area.
type DomainProfile string

const (
	DomainGeneral DomainProfile = "general"
	DomainMedical DomainProfile = "medical"
)

// PausePoint is one insertion point in a pre-recorded lecture. A set is
// immutable once generated; re-analysis replaces the whole set.
type PausePoint struct {
	LectureID          string            `json:"lecture_id"`
	TimestampSeconds   float64           `json:"timestamp_seconds"`
	CognitiveLoadScore int               `json:"cognitive_load_score"`
	ReasonText         string            `json:"reason_text"`
	QuestionType       question.Type     `json:"question_type"`
	OrderIndex         int               `json:"order_index"`
	Question           question.Question `json:"question"`
	CreatedAt          time.Time         `json:"created_at,omitempty"`
}

// AnalyzeRequest is the batch placement request body.
type AnalyzeRequest struct {
	LectureID     string              `json:"lectureId" validate:"required"`
	Transcript    []TranscriptSegment `json:"transcript"`
	QuestionCount int                 `json:"questionCount" validate:"required,min=1,max=20"`
	DomainProfile DomainProfile       `json:"domainProfile" validate:"omitempty,oneof=general medical"`
}
