// Package auth answers instructor role checks against the platform's
// PostgREST data API.
package auth

import (
	"context"
	"fmt"

	postgrest "github.com/supabase-community/postgrest-go"

	"github.com/classlive/platform/internal/errors"
)

const instructorTable = "lecture_instructors"

// Service checks lecture roles stored in the instructors table.
type Service struct {
	client *postgrest.Client
}

// New creates a role checker against a Supabase/PostgREST endpoint.
func New(baseURL, serviceKey string) (*Service, error) {
	client := postgrest.NewClient(baseURL+"/rest/v1", "", map[string]string{
		"apikey":        serviceKey,
		"Authorization": fmt.Sprintf("Bearer %s", serviceKey),
	})
	if client.ClientError != nil {
		return nil, errors.Wrap(client.ClientError, errors.CodeStorageFailed, "postgrest client init failed")
	}
	return &Service{client: client}, nil
}

type instructorRow struct {
	LectureID string `json:"lecture_id"`
}

// IsInstructor reports whether the token belongs to an instructor of
// the lecture.
func (s *Service) IsInstructor(_ context.Context, token, lectureID string) (bool, error) {
	if token == "" {
		return false, nil
	}

	var rows []instructorRow
	_, err := s.client.From(instructorTable).
		Select("lecture_id", "", false).
		Eq("lecture_id", lectureID).
		Eq("api_token", token).
		ExecuteTo(&rows)
	if err != nil {
		return false, errors.Wrapf(err, errors.CodeStorageFailed, "role lookup for lecture %s", lectureID)
	}
	return len(rows) > 0, nil
}

// AllowAll accepts every caller. Used when no data API is configured,
// typically local development.
type AllowAll struct{}

func (AllowAll) IsInstructor(context.Context, string, string) (bool, error) {
	return true, nil
}
