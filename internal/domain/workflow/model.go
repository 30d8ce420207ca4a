package workflow

import (
	"time"

	"github.com/google/uuid"
)

// Stage is a step of the intake pipeline.
type Stage string

const (
	StageRegistered          Stage = "REGISTERED"
	StageHealthAssessment    Stage = "HEALTH_ASSESSMENT"
	StageIrisAssessment      Stage = "IRIS_ASSESSMENT"
	StageReportGeneration    Stage = "REPORT_GENERATION"
	StageTreatmentPlanning   Stage = "TREATMENT_PLANNING"
	StageTreatmentScheduling Stage = "TREATMENT_SCHEDULING"
	StageInTreatment         Stage = "IN_TREATMENT"
	StageReassessment        Stage = "REASSESSMENT"
	StageCompleted           Stage = "COMPLETED"
	StageMaintenance         Stage = "MAINTENANCE"
)

// Stages lists every stage in pipeline order.
var Stages = []Stage{
	StageRegistered,
	StageHealthAssessment,
	StageIrisAssessment,
	StageReportGeneration,
	StageTreatmentPlanning,
	StageTreatmentScheduling,
	StageInTreatment,
	StageReassessment,
	StageCompleted,
	StageMaintenance,
}

var transitions = map[Stage][]Stage{
	StageRegistered:          {StageHealthAssessment},
	StageHealthAssessment:    {StageIrisAssessment},
	StageIrisAssessment:      {StageReportGeneration},
	StageReportGeneration:    {StageTreatmentPlanning},
	StageTreatmentPlanning:   {StageTreatmentScheduling},
	StageTreatmentScheduling: {StageInTreatment},
	StageInTreatment:         {StageReassessment, StageCompleted, StageMaintenance},
	StageReassessment:        {StageInTreatment, StageCompleted, StageHealthAssessment},
}

// ParseStage validates a stage name. Legacy lower-case names are not accepted.
func ParseStage(s string) (Stage, bool) {
	for _, st := range Stages {
		if string(st) == s {
			return st, true
		}
	}
	return "", false
}

// Terminal reports whether no further transition leaves s.
func (s Stage) Terminal() bool {
	return s == StageCompleted || s == StageMaintenance
}

// CanTransition reports whether from → to is an edge of the pipeline.
func CanTransition(from, to Stage) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Reassessment outcome thresholds, in points of overall improvement.
const (
	CompletionThreshold = 30
	RestartThreshold    = -10
)

// NextStageAfterReassessment maps a reassessment's overall improvement to
// the stage the patient moves to.
func NextStageAfterReassessment(overallImprovement int) Stage {
	switch {
	case overallImprovement > CompletionThreshold:
		return StageCompleted
	case overallImprovement < RestartThreshold:
		return StageHealthAssessment
	default:
		return StageInTreatment
	}
}

// Status is the single workflow record of a patient.
type Status struct {
	PatientID    uuid.UUID           `json:"patient_id"`
	ClinicID     string              `json:"clinic_id"`
	CurrentStage Stage               `json:"current_stage"`
	Completed    map[Stage]time.Time `json:"completed_stages"`
	// CycleStartedAt is when the current treatment cycle began; the
	// reassessment timer counts from here.
	CycleStartedAt *time.Time `json:"cycle_started_at,omitempty"`
	Version        int        `json:"version"`
	StartedAt      time.Time  `json:"started_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func newStatus(patientID uuid.UUID, clinicID string, now time.Time) *Status {
	return &Status{
		PatientID:    patientID,
		ClinicID:     clinicID,
		CurrentStage: StageRegistered,
		Completed:    map[Stage]time.Time{},
		StartedAt:    now,
		UpdatedAt:    now,
	}
}

func (s *Status) clone() *Status {
	c := *s
	c.Completed = make(map[Stage]time.Time, len(s.Completed))
	for k, v := range s.Completed {
		c.Completed[k] = v
	}
	if s.CycleStartedAt != nil {
		t := *s.CycleStartedAt
		c.CycleStartedAt = &t
	}
	return &c
}

// IsCompleted reports whether stage has been completed in the current pass.
func (s *Status) IsCompleted(stage Stage) bool {
	_, ok := s.Completed[stage]
	return ok
}

// apply moves s to target, marking the stage it leaves as completed.
func (s *Status) apply(target Stage, now time.Time) {
	if s.Completed == nil {
		s.Completed = map[Stage]time.Time{}
	}
	s.Completed[s.CurrentStage] = now

	switch {
	case target == StageHealthAssessment && s.CurrentStage == StageReassessment:
		// restart: the assessment stages run again from scratch
		for _, st := range []Stage{StageHealthAssessment, StageIrisAssessment, StageReportGeneration,
			StageTreatmentPlanning, StageTreatmentScheduling, StageInTreatment, StageReassessment} {
			delete(s.Completed, st)
		}
		s.CycleStartedAt = nil
	case target == StageInTreatment:
		t := now
		s.CycleStartedAt = &t
	}

	s.CurrentStage = target
	s.UpdatedAt = now
}

// DaysInCycle returns whole days since the current treatment cycle began.
func (s *Status) DaysInCycle(now time.Time) int {
	if s.CycleStartedAt == nil {
		return 0
	}
	return int(now.Sub(*s.CycleStartedAt).Hours() / 24)
}

// DueForReassessment reports whether an in-treatment patient has reached
// the reassessment interval.
func (s *Status) DueForReassessment(now time.Time, intervalDays int) bool {
	return s.CurrentStage == StageInTreatment && s.CycleStartedAt != nil && s.DaysInCycle(now) >= intervalDays
}
