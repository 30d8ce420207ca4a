package assessment

import (
	"context"

	"github.com/google/uuid"
)

type QuestionRepository interface {
	List(ctx context.Context) ([]Question, error)
}

type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	GetByID(ctx context.Context, id uuid.UUID) (*Session, error)
	// Complete stores scores and contraindications and flips the status.
	// It must not overwrite a session that is already completed.
	Complete(ctx context.Context, s *Session) error
	GrantClearance(ctx context.Context, id uuid.UUID, by string) error
	LatestCompleted(ctx context.Context, patientID uuid.UUID) (*Session, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Session, error)
}

type ResponseRepository interface {
	Insert(ctx context.Context, r *Response) error
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]Response, error)
}

// FollowUpRepository keeps one follow-up set per session.
type FollowUpRepository interface {
	// Create fails with KindDataIntegrity when the session already has a set.
	Create(ctx context.Context, set *FollowUpSet) error
	Get(ctx context.Context, sessionID uuid.UUID) (*FollowUpSet, error)
	SaveAnswer(ctx context.Context, sessionID uuid.UUID, a FollowUpAnswer) error
}
