// Package question defines the comprehension question model, the shared
// send limiter, and the generation/delivery gateway implementations.
package question

import (
	"context"
	"time"
)

// Origin identifies which trigger path produced a question.
type Origin string

const (
	OriginAuto   Origin = "auto"
	OriginVoice  Origin = "voice"
	OriginManual Origin = "manual"
	OriginBatch  Origin = "batch"
)

// Type is the suggested question format.
type Type string

const (
	TypeMultipleChoice Type = "multiple_choice"
	TypeShortAnswer    Type = "short_answer"
	TypeReflection     Type = "reflection"
	TypeTakeaway       Type = "takeaway"
)

// Question is one generated comprehension question.
type Question struct {
	ID            string    `json:"id"`
	LectureID     string    `json:"lecture_id"`
	Prompt        string    `json:"question"`
	Options       []string  `json:"options,omitempty"`
	CorrectAnswer string    `json:"correct_answer,omitempty"`
	Explanation   string    `json:"explanation,omitempty"`
	Type          Type      `json:"type"`
	Origin        Origin    `json:"origin"`
	CreatedAt     time.Time `json:"created_at"`
}

// Generator turns a transcript window into one structured question.
type Generator interface {
	Generate(ctx context.Context, contextText string, questionType Type) (Question, error)
}

// Delivery persists/broadcasts a generated question to students.
type Delivery interface {
	Deliver(ctx context.Context, q Question) error
}
