package assessment

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/celloxen/intake/internal/platform/apperror"
	"github.com/celloxen/intake/internal/platform/db"
)

// -- Questions --

type questionRepoPG struct{ db db.Querier }

func NewQuestionRepoPG(q db.Querier) QuestionRepository {
	return &questionRepoPG{db: q}
}

func (r *questionRepoPG) List(ctx context.Context) ([]Question, error) {
	rows, err := r.db.Query(ctx, `SELECT id, category, weight, position, text, options FROM questions ORDER BY position, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Question
	for rows.Next() {
		var q Question
		var category string
		var options []byte
		if err := rows.Scan(&q.ID, &category, &q.Weight, &q.Position, &q.Text, &options); err != nil {
			return nil, err
		}
		q.Category = Category(category)
		if !ValidCategory(q.Category) {
			return nil, apperror.Integrity("questions.list", "question %s has unknown category %q", q.ID, category)
		}
		if len(options) > 0 {
			if err := json.Unmarshal(options, &q.Options); err != nil {
				return nil, fmt.Errorf("decode options for %s: %w", q.ID, err)
			}
		}
		items = append(items, q)
	}
	return items, rows.Err()
}

// -- Sessions --

type sessionRepoPG struct{ db db.Querier }

func NewSessionRepoPG(q db.Querier) SessionRepository {
	return &sessionRepoPG{db: q}
}

const sessionCols = `id, patient_id, clinic_id, mode, status, scores, contraindications,
	requires_clearance, clearance_granted, clearance_by, started_at, completed_at`

func (r *sessionRepoPG) scan(row pgx.Row) (*Session, error) {
	var s Session
	var mode string
	var scores, contra []byte
	var clearanceBy *string
	if err := row.Scan(&s.ID, &s.PatientID, &s.ClinicID, &mode, &s.Status, &scores, &contra,
		&s.RequiresClearance, &s.ClearanceGranted, &clearanceBy, &s.StartedAt, &s.CompletedAt); err != nil {
		return nil, err
	}
	s.Mode = Mode(mode)
	if clearanceBy != nil {
		s.ClearanceBy = *clearanceBy
	}
	if len(scores) > 0 {
		var set CategoryScoreSet
		if err := json.Unmarshal(scores, &set); err != nil {
			return nil, fmt.Errorf("decode scores: %w", err)
		}
		s.Scores = &set
	}
	s.Contraindications = []Contraindication{}
	if len(contra) > 0 {
		if err := json.Unmarshal(contra, &s.Contraindications); err != nil {
			return nil, fmt.Errorf("decode contraindications: %w", err)
		}
	}
	return &s, nil
}

func (r *sessionRepoPG) Create(ctx context.Context, s *Session) error {
	s.ID = uuid.New()
	s.Status = SessionInProgress
	if s.StartedAt.IsZero() {
		s.StartedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO assessment_sessions (id, patient_id, clinic_id, mode, status, contraindications, started_at)
		VALUES ($1, $2, $3, $4, $5, '[]'::jsonb, $6)`,
		s.ID, s.PatientID, s.ClinicID, string(s.Mode), s.Status, s.StartedAt)
	return err
}

func (r *sessionRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	s, err := r.scan(r.db.QueryRow(ctx, `SELECT `+sessionCols+` FROM assessment_sessions WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return nil, apperror.NotFound("assessment.get", "assessment session")
	}
	return s, err
}

func (r *sessionRepoPG) Complete(ctx context.Context, s *Session) error {
	scores, err := json.Marshal(s.Scores)
	if err != nil {
		return err
	}
	contra, err := json.Marshal(s.Contraindications)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE assessment_sessions
		SET status = 'completed', scores = $2, overall_score = $3, contraindications = $4,
			requires_clearance = $5, completed_at = $6
		WHERE id = $1 AND status = 'in_progress'`,
		s.ID, scores, s.Scores.Overall, contra, s.RequiresClearance, s.CompletedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.Integrity("assessment.complete", "session %s is not in progress", s.ID)
	}
	return nil
}

func (r *sessionRepoPG) GrantClearance(ctx context.Context, id uuid.UUID, by string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE assessment_sessions SET clearance_granted = TRUE, clearance_by = $2
		WHERE id = $1`, id, by)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("assessment.clearance", "assessment session")
	}
	return nil
}

func (r *sessionRepoPG) LatestCompleted(ctx context.Context, patientID uuid.UUID) (*Session, error) {
	s, err := r.scan(r.db.QueryRow(ctx, `
		SELECT `+sessionCols+` FROM assessment_sessions
		WHERE patient_id = $1 AND status = 'completed'
		ORDER BY completed_at DESC LIMIT 1`, patientID))
	if db.IsNoRows(err) {
		return nil, apperror.NotFound("assessment.latest", "completed assessment")
	}
	return s, err
}

func (r *sessionRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Session, error) {
	rows, err := r.db.Query(ctx, `SELECT `+sessionCols+` FROM assessment_sessions WHERE patient_id = $1 ORDER BY started_at DESC`, patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []*Session
	for rows.Next() {
		s, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

// -- Responses --

type responseRepoPG struct{ db db.Querier }

func NewResponseRepoPG(q db.Querier) ResponseRepository {
	return &responseRepoPG{db: q}
}

func (r *responseRepoPG) Insert(ctx context.Context, resp *Response) error {
	resp.ID = uuid.New()
	if resp.CreatedAt.IsZero() {
		resp.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, `
		INSERT INTO responses (id, session_id, question_id, letter, score, free_text, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		resp.ID, resp.SessionID, resp.QuestionID, resp.Letter, resp.Score, resp.Text, resp.CreatedAt)
	return err
}

func (r *responseRepoPG) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]Response, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, session_id, question_id, letter, score, COALESCE(free_text, ''), created_at
		FROM responses WHERE session_id = $1 ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Response
	for rows.Next() {
		var resp Response
		if err := rows.Scan(&resp.ID, &resp.SessionID, &resp.QuestionID, &resp.Letter, &resp.Score, &resp.Text, &resp.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, resp)
	}
	return items, rows.Err()
}

// -- Follow-ups --

type followUpRepoPG struct{ db db.Querier }

func NewFollowUpRepoPG(q db.Querier) FollowUpRepository {
	return &followUpRepoPG{db: q}
}

func (r *followUpRepoPG) Create(ctx context.Context, set *FollowUpSet) error {
	questions, err := json.Marshal(set.Questions)
	if err != nil {
		return err
	}
	if set.CreatedAt.IsZero() {
		set.CreatedAt = time.Now().UTC()
	}
	tag, err := r.db.Exec(ctx, `
		INSERT INTO follow_ups (session_id, source, questions, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO NOTHING`,
		set.SessionID, set.Source, questions, set.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.Integrity("followups.create", "session %s already has follow-up questions", set.SessionID)
	}
	return nil
}

func (r *followUpRepoPG) Get(ctx context.Context, sessionID uuid.UUID) (*FollowUpSet, error) {
	set := FollowUpSet{SessionID: sessionID}
	var questions, answers []byte
	err := r.db.QueryRow(ctx, `
		SELECT source, questions, answers, created_at FROM follow_ups WHERE session_id = $1`, sessionID).
		Scan(&set.Source, &questions, &answers, &set.CreatedAt)
	if db.IsNoRows(err) {
		return nil, apperror.NotFound("followups.get", "follow-up questions")
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(questions, &set.Questions); err != nil {
		return nil, fmt.Errorf("decode follow-up questions: %w", err)
	}
	set.Answers = map[string]FollowUpAnswer{}
	if len(answers) > 0 {
		if err := json.Unmarshal(answers, &set.Answers); err != nil {
			return nil, fmt.Errorf("decode follow-up answers: %w", err)
		}
	}
	return &set, nil
}

func (r *followUpRepoPG) SaveAnswer(ctx context.Context, sessionID uuid.UUID, a FollowUpAnswer) error {
	body, err := json.Marshal(a)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE follow_ups SET answers = answers || jsonb_build_object($2::text, $3::jsonb)
		WHERE session_id = $1`, sessionID, a.QuestionID, body)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("followups.answer", "follow-up questions")
	}
	return nil
}
