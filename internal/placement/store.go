package placement

import (
	"fmt"
	"log/slog"

	postgrest "github.com/supabase-community/postgrest-go"

	"github.com/classlive/platform/internal/errors"
)

const (
	pausePointTable = "pause_points"
	transcriptTable = "lecture_transcripts"
)

// Store persists pause point sets and serves stored transcripts through
// the PostgREST data API.
type Store struct {
	client *postgrest.Client
}

// NewStore creates a store against a Supabase/PostgREST endpoint.
func NewStore(baseURL, serviceKey string) (*Store, error) {
	client := postgrest.NewClient(baseURL+"/rest/v1", "", map[string]string{
		"apikey":        serviceKey,
		"Authorization": fmt.Sprintf("Bearer %s", serviceKey),
	})
	if client.ClientError != nil {
		return nil, errors.Wrap(client.ClientError, errors.CodeStorageFailed, "postgrest client init failed")
	}
	return &Store{client: client}, nil
}

// storedSegment mirrors one lecture_transcripts row.
type storedSegment struct {
	LectureID string  `json:"lecture_id"`
	Text      string  `json:"text"`
	Start     float64 `json:"start_seconds"`
	End       float64 `json:"end_seconds"`
}

// Transcript loads the stored transcript for a lecture, ordered by
// start time.
func (s *Store) Transcript(lectureID string) ([]TranscriptSegment, error) {
	var rows []storedSegment
	_, err := s.client.From(transcriptTable).
		Select("*", "", false).
		Eq("lecture_id", lectureID).
		Order("start_seconds", nil).
		ExecuteTo(&rows)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeStorageFailed, "loading transcript for lecture %s", lectureID)
	}
	if len(rows) == 0 {
		return nil, errors.Newf(errors.CodeNotFound, "no transcript stored for lecture %s", lectureID)
	}

	segments := make([]TranscriptSegment, len(rows))
	for i, r := range rows {
		segments[i] = TranscriptSegment{Text: r.Text, Start: r.Start, End: r.End}
	}
	return segments, nil
}

// Replace swaps the lecture's pause point set in full: the previous set
// is deleted, then the new batch is inserted. Partial merges are never
// performed; a failed insert after the delete leaves the lecture with
// no set rather than a mixed one.
func (s *Store) Replace(lectureID string, points []PausePoint) error {
	var deleted []PausePoint
	_, err := s.client.From(pausePointTable).
		Delete("", "").
		Eq("lecture_id", lectureID).
		ExecuteTo(&deleted)
	if err != nil {
		return errors.Wrapf(err, errors.CodeStorageFailed, "deleting pause points for lecture %s", lectureID)
	}

	var inserted []PausePoint
	_, err = s.client.From(pausePointTable).
		Insert(points, false, "", "representation", "").
		ExecuteTo(&inserted)
	if err != nil {
		return errors.Wrapf(err, errors.CodeStorageFailed, "inserting pause points for lecture %s", lectureID)
	}

	slog.Info("pause point set replaced", "lecture", lectureID, "points", len(points))
	return nil
}

// PausePoints returns the stored set for a lecture in insertion order.
func (s *Store) PausePoints(lectureID string) ([]PausePoint, error) {
	var points []PausePoint
	_, err := s.client.From(pausePointTable).
		Select("*", "", false).
		Eq("lecture_id", lectureID).
		Order("order_index", nil).
		ExecuteTo(&points)
	if err != nil {
		return nil, errors.Wrapf(err, errors.CodeStorageFailed, "loading pause points for lecture %s", lectureID)
	}
	return points, nil
}
