package assessment

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/celloxen/intake/internal/platform/apperror"
)

// Service runs questionnaire sessions. It does not touch workflow stages;
// callers advance the workflow once Complete returns.
type Service struct {
	questions QuestionRepository
	sessions  SessionRepository
	responses ResponseRepository
	engine    ScoringEngine
	detector  *ContraindicationDetector
	followUps FollowUpRepository
	generator FollowUpGenerator
	logger    zerolog.Logger
	now       func() time.Time

	mu      sync.RWMutex
	catalog map[string]Question
	ordered []Question
}

func NewService(q QuestionRepository, s SessionRepository, r ResponseRepository, detector *ContraindicationDetector, logger zerolog.Logger) *Service {
	if detector == nil {
		detector = NewContraindicationDetector()
	}
	return &Service{
		questions: q,
		sessions:  s,
		responses: r,
		detector:  detector,
		logger:    logger.With().Str("component", "assessment").Logger(),
		now:       time.Now,
	}
}

// WithFollowUps enables the follow-up phase. A nil generator serves the
// fallback bank only.
func (s *Service) WithFollowUps(repo FollowUpRepository, gen FollowUpGenerator) *Service {
	s.followUps = repo
	s.generator = gen
	return s
}

// Questions returns the catalogue in position order. It is loaded once and
// reused; ReloadQuestions forces a refresh.
func (s *Service) Questions(ctx context.Context) ([]Question, error) {
	s.mu.RLock()
	if s.ordered != nil {
		out := s.ordered
		s.mu.RUnlock()
		return out, nil
	}
	s.mu.RUnlock()
	return s.ReloadQuestions(ctx)
}

func (s *Service) ReloadQuestions(ctx context.Context) ([]Question, error) {
	qs, err := s.questions.List(ctx)
	if err != nil {
		return nil, apperror.Transient("assessment.questions", err)
	}
	sortQuestions(qs)
	byID := make(map[string]Question, len(qs))
	for _, q := range qs {
		byID[q.ID] = q
	}
	s.mu.Lock()
	s.catalog = byID
	s.ordered = qs
	s.mu.Unlock()
	return qs, nil
}

func (s *Service) question(ctx context.Context, id string) (Question, bool, error) {
	if _, err := s.Questions(ctx); err != nil {
		return Question{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.catalog[id]
	return q, ok, nil
}

func (s *Service) StartSession(ctx context.Context, patientID uuid.UUID, clinicID string, mode Mode) (*Session, error) {
	if patientID == uuid.Nil {
		return nil, apperror.Validation("assessment.start", "patient id is required")
	}
	if clinicID == "" {
		return nil, apperror.Validation("assessment.start", "clinic id is required")
	}
	if mode == "" {
		mode = ModeInitial
	}
	if mode != ModeInitial && mode != ModeReassessment {
		return nil, apperror.Validation("assessment.start", "unknown mode %q", mode)
	}
	sess := &Session{
		PatientID:         patientID,
		ClinicID:          clinicID,
		Mode:              mode,
		Contraindications: []Contraindication{},
		StartedAt:         s.now().UTC(),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, apperror.Transient("assessment.start", err)
	}
	return sess, nil
}

func (s *Service) GetSession(ctx context.Context, id uuid.UUID) (*Session, error) {
	sess, err := s.sessions.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.Store("assessment.get", err)
	}
	return sess, nil
}

// RecordResponse stores one answer. Answers to unknown questions are
// rejected and logged, and letters outside a..e score the neutral 3.
func (s *Service) RecordResponse(ctx context.Context, sessionID uuid.UUID, questionID, letter, text string) (*Response, error) {
	letter = strings.ToLower(strings.TrimSpace(letter))
	if questionID == "" {
		return nil, apperror.Validation("assessment.respond", "question id is required")
	}
	if letter == "" {
		return nil, apperror.Validation("assessment.respond", "answer letter is required")
	}

	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Completed() {
		return nil, apperror.Validation("assessment.respond", "session %s is already completed", sessionID)
	}

	q, ok, err := s.question(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Warn().Str("session_id", sessionID.String()).Str("question_id", questionID).Msg("response to unknown question dropped")
		return nil, apperror.Integrity("assessment.respond", "unknown question %q", questionID)
	}

	resp := &Response{
		SessionID:  sessionID,
		QuestionID: q.ID,
		Letter:     letter,
		Score:      LetterScore(letter),
		Text:       text,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.responses.Insert(ctx, resp); err != nil {
		return nil, apperror.Transient("assessment.respond", err)
	}
	return resp, nil
}

func (s *Service) load(ctx context.Context, sessionID uuid.UUID) ([]Question, []Response, error) {
	qs, err := s.Questions(ctx)
	if err != nil {
		return nil, nil, err
	}
	rs, err := s.responses.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, nil, apperror.Transient("assessment.responses", err)
	}
	return qs, rs, nil
}

// ComputeScores scores the current responses without completing the session.
func (s *Service) ComputeScores(ctx context.Context, sessionID uuid.UUID) (CategoryScoreSet, error) {
	qs, rs, err := s.load(ctx, sessionID)
	if err != nil {
		return CategoryScoreSet{}, err
	}
	return s.engine.Score(qs, rs), nil
}

func (s *Service) DetectContraindications(ctx context.Context, sessionID uuid.UUID, patient PatientAttributes) ([]Contraindication, error) {
	qs, rs, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return s.detector.Detect(patient, qs, rs), nil
}

// Complete scores the session, runs the contraindication rules and marks it
// completed. Completing an already completed session returns it unchanged.
func (s *Service) Complete(ctx context.Context, sessionID uuid.UUID, patient PatientAttributes) (*Session, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Completed() {
		return sess, nil
	}

	qs, rs, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	scores := s.engine.Score(qs, rs)
	contra := s.detector.Detect(patient, qs, rs)
	now := s.now().UTC()

	sess.Scores = &scores
	sess.Contraindications = contra
	sess.RequiresClearance = RequiresClearance(contra)
	sess.Status = SessionCompleted
	sess.CompletedAt = &now

	if err := s.sessions.Complete(ctx, sess); err != nil {
		if apperror.Is(err, apperror.KindDataIntegrity) {
			// Lost a race with another completion; return what won.
			return s.GetSession(ctx, sessionID)
		}
		return nil, apperror.Transient("assessment.complete", err)
	}

	s.logger.Info().
		Str("session_id", sessionID.String()).
		Str("patient_id", sess.PatientID.String()).
		Int("overall_score", scores.Overall).
		Int("contraindications", len(contra)).
		Bool("requires_clearance", sess.RequiresClearance).
		Msg("assessment completed")
	return sess, nil
}

// GrantClearance records physician sign-off for a session that needs it.
func (s *Service) GrantClearance(ctx context.Context, sessionID uuid.UUID, by string) (*Session, error) {
	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Completed() {
		return nil, apperror.Validation("assessment.clearance", "session %s is not completed", sessionID)
	}
	if !sess.RequiresClearance || sess.ClearanceGranted {
		return sess, nil
	}
	if err := s.sessions.GrantClearance(ctx, sessionID, by); err != nil {
		return nil, apperror.Store("assessment.clearance", err)
	}
	sess.ClearanceGranted = true
	sess.ClearanceBy = by
	return sess, nil
}

func (s *Service) LatestCompleted(ctx context.Context, patientID uuid.UUID) (*Session, error) {
	sess, err := s.sessions.LatestCompleted(ctx, patientID)
	if err != nil {
		return nil, apperror.Store("assessment.latest", err)
	}
	return sess, nil
}

func (s *Service) ListSessions(ctx context.Context, patientID uuid.UUID) ([]*Session, error) {
	items, err := s.sessions.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, apperror.Store("assessment.list", err)
	}
	return items, nil
}

func (s *Service) Responses(ctx context.Context, sessionID uuid.UUID) ([]Response, error) {
	rs, err := s.responses.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, apperror.Transient("assessment.responses", err)
	}
	return rs, nil
}

// FollowUps returns the follow-up questions of a completed session,
// generating and storing them on first use. Later calls return the stored
// set so answers keep pointing at the same questions.
func (s *Service) FollowUps(ctx context.Context, sessionID uuid.UUID, patient PatientAttributes) (*FollowUpSet, error) {
	const op = "assessment.followups"
	if s.followUps == nil {
		return nil, apperror.Validation(op, "follow-up questions are not enabled")
	}
	set, err := s.followUps.Get(ctx, sessionID)
	if err == nil {
		return set, nil
	}
	if !apperror.Is(err, apperror.KindNotFound) {
		return nil, apperror.Store(op, err)
	}

	sess, err := s.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !sess.Completed() || sess.Scores == nil {
		return nil, apperror.Validation(op, "session %s is not completed", sessionID)
	}

	var generated []FollowUpQuestion
	if s.generator != nil {
		req := FollowUpRequest{SessionID: sessionID, Age: patient.Age, Gender: patient.Gender, Scores: sess.Scores.Scores}
		generated, err = s.generator.Generate(ctx, req)
		if err != nil {
			s.logger.Warn().Err(err).Str("session_id", sessionID.String()).Msg("follow-up generation failed, using fallback questions")
			generated = nil
		}
	}
	questions, source := BuildFollowUps(generated, sess.Scores.Scores)
	set = &FollowUpSet{
		SessionID: sessionID,
		Source:    source,
		Questions: questions,
		Answers:   map[string]FollowUpAnswer{},
		CreatedAt: s.now().UTC(),
	}
	if err := s.followUps.Create(ctx, set); err != nil {
		if apperror.Is(err, apperror.KindDataIntegrity) {
			// Another request stored a set first; serve that one.
			return s.GetFollowUps(ctx, sessionID)
		}
		return nil, apperror.Transient(op, err)
	}
	s.logger.Info().Str("session_id", sessionID.String()).Str("source", source).Int("questions", len(questions)).Msg("follow-up questions created")
	return set, nil
}

func (s *Service) GetFollowUps(ctx context.Context, sessionID uuid.UUID) (*FollowUpSet, error) {
	if s.followUps == nil {
		return nil, apperror.Validation("assessment.followups", "follow-up questions are not enabled")
	}
	set, err := s.followUps.Get(ctx, sessionID)
	if err != nil {
		return nil, apperror.Store("assessment.followups", err)
	}
	return set, nil
}

// AnswerFollowUp records one follow-up answer. Only the letters a..e are
// accepted; answering again replaces the earlier answer.
func (s *Service) AnswerFollowUp(ctx context.Context, sessionID uuid.UUID, questionID, letter string) (*FollowUpAnswer, error) {
	const op = "assessment.followups.answer"
	letter = strings.ToLower(strings.TrimSpace(letter))
	if questionID == "" {
		return nil, apperror.Validation(op, "question id is required")
	}
	if !slices.Contains(answerLetters, letter) {
		return nil, apperror.Validation(op, "answer must be one of a, b, c, d, e")
	}
	set, err := s.GetFollowUps(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if _, ok := set.question(questionID); !ok {
		return nil, apperror.Integrity(op, "unknown follow-up question %q", questionID)
	}
	a := FollowUpAnswer{QuestionID: questionID, Letter: letter, Score: LetterScore(letter), AnsweredAt: s.now().UTC()}
	if err := s.followUps.SaveAnswer(ctx, sessionID, a); err != nil {
		return nil, apperror.Store(op, err)
	}
	return &a, nil
}
