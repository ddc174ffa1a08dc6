package domain

import (
	"time"
)

// Stage is the interview phase. Stages only move forward until Reset.
type Stage string

const (
	StageIntro      Stage = "intro"
	StageTechnical  Stage = "technical"
	StageBehavioral Stage = "behavioral"
	StageClosing    Stage = "closing"
)

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool {
	switch s {
	case StageIntro, StageTechnical, StageBehavioral, StageClosing:
		return true
	}
	return false
}

func (s Stage) order() int {
	switch s {
	case StageTechnical:
		return 1
	case StageBehavioral:
		return 2
	case StageClosing:
		return 3
	default:
		return 0
	}
}

// Role identifies the author of a transcript message.
type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
	RoleSystem    Role = "system"
)

// ViewMode is the persisted presentation the client last showed.
type ViewMode string

const (
	ViewChat    ViewMode = "chat"
	ViewSummary ViewMode = "summary"
)

// Score bounds and stage thresholds.
const (
	MinScore = 0
	MaxScore = 100

	progressComplete   = 100
	progressStart      = 10
	progressStep       = 15
	progressAdvance    = 20
	progressStepCap    = 95
	progressClosing    = 20
	technicalAtOrLess  = 6
	behavioralAtOrLess = 3
	closingAtOrLess    = 1
)

var stageCeiling = map[Stage]int{
	StageTechnical:  45,
	StageBehavioral: 75,
	StageClosing:    95,
}

// TurnAnalysis scores one user answer.
type TurnAnalysis struct {
	Clarity    int    `json:"clarity"`
	Relevance  int    `json:"relevance"`
	Depth      int    `json:"depth"`
	Confidence int    `json:"confidence"`
	Feedback   string `json:"feedback"`
	// Fallback marks analyses whose feedback is a canned recovery message.
	Fallback bool `json:"fallback,omitempty"`
}

// Scores returns the four sub-scores in a fixed order.
func (a TurnAnalysis) Scores() [4]int {
	return [4]int{a.Clarity, a.Relevance, a.Depth, a.Confidence}
}

// Message is one transcript entry.
type Message struct {
	Role                Role          `json:"role"`
	Content             string        `json:"content"`
	ThinkingTimeSeconds *int          `json:"thinkingTimeSeconds,omitempty"`
	Analysis            *TurnAnalysis `json:"analysis,omitempty"`
	CreatedAt           time.Time     `json:"createdAt"`
}

// PerformanceSummary aggregates analyzed turns at completion.
type PerformanceSummary struct {
	Clarity               int      `json:"clarity"`
	Relevance             int      `json:"relevance"`
	Depth                 int      `json:"depth"`
	Confidence            int      `json:"confidence"`
	Overall               int      `json:"overall"`
	Strengths             []string `json:"strengths"`
	Improvements          []string `json:"improvements"`
	CompletionTimeSeconds int      `json:"completionTimeSeconds"`
	ResponseCount         int      `json:"responseCount"`
}

// InterviewSetup carries the context the prompts are built from.
type InterviewSetup struct {
	Position       string `json:"position"`
	Company        string `json:"company,omitempty"`
	JobDescription string `json:"jobDescription,omitempty"`
	InterviewType  string `json:"interviewType,omitempty"`
}

// InterviewSession is the full per-(user, interview) state. It is persisted as one blob.
type InterviewSession struct {
	UserID             string              `json:"userId"`
	InterviewID        string              `json:"interviewId"`
	Setup              InterviewSetup      `json:"setup"`
	Stage              Stage               `json:"stage"`
	Progress           int                 `json:"progress"`
	RemainingQuestions int                 `json:"remainingQuestions"`
	ElapsedSeconds     int                 `json:"elapsedSeconds"`
	Transcript         []Message           `json:"transcript"`
	Summary            *PerformanceSummary `json:"summary,omitempty"`
	ViewMode           ViewMode            `json:"viewMode"`
	CreditsCharged     bool                `json:"creditsCharged"`
	Completed          bool                `json:"isComplete"`
	UpdatedAt          time.Time           `json:"updatedAt"`
}

// NewInterviewSession returns an empty session for the key.
func NewInterviewSession(userID, interviewID string) *InterviewSession {
	return &InterviewSession{
		UserID:      userID,
		InterviewID: interviewID,
		Stage:       StageIntro,
		Transcript:  []Message{},
		ViewMode:    ViewChat,
	}
}

// IsComplete is derived from progress; the stored flag mirrors it for clients.
func (s *InterviewSession) IsComplete() bool { return s.Progress >= progressComplete }

// Started reports whether the opening question has been asked.
func (s *InterviewSession) Started() bool { return len(s.Transcript) > 0 }

// Begin prepares counters for a freshly started interview.
func (s *InterviewSession) Begin(totalQuestions int) {
	if totalQuestions < 0 {
		totalQuestions = 0
	}
	s.Stage = StageIntro
	s.RemainingQuestions = totalQuestions
	s.Progress = progressStart
	s.Completed = false
}

// ApplyAnsweredTurn advances counters for one answered user turn.
// It returns true when the turn moved the session to a new stage.
func (s *InterviewSession) ApplyAnsweredTurn() bool {
	if s.IsComplete() {
		return false
	}
	if s.Stage == StageClosing {
		s.raiseProgress(min(s.Progress+progressClosing, progressComplete))
		s.Completed = s.IsComplete()
		return false
	}

	if s.RemainingQuestions > 0 {
		s.RemainingQuestions--
	}

	next := s.Stage
	switch s.Stage {
	case StageIntro:
		if s.RemainingQuestions <= technicalAtOrLess {
			next = StageTechnical
		}
	case StageTechnical:
		if s.RemainingQuestions <= behavioralAtOrLess {
			next = StageBehavioral
		}
	case StageBehavioral:
		if s.RemainingQuestions <= closingAtOrLess {
			next = StageClosing
		}
	}

	advanced := next != s.Stage
	if advanced {
		s.Stage = next
		s.raiseProgress(min(s.Progress+progressAdvance, stageCeiling[next]))
	} else {
		s.raiseProgress(min(s.Progress+progressStep, progressStepCap))
	}
	s.Completed = s.IsComplete()
	return advanced
}

// raiseProgress keeps progress non-decreasing when a ceiling sits below the current value.
func (s *InterviewSession) raiseProgress(p int) {
	if p > s.Progress {
		s.Progress = p
	}
	if s.Progress > progressComplete {
		s.Progress = progressComplete
	}
}

// Reset returns the session to a fresh intro state. Credits are not refunded.
func (s *InterviewSession) Reset() {
	*s = *NewInterviewSession(s.UserID, s.InterviewID)
}

// LastAssistant returns the most recent assistant message, if any.
func (s *InterviewSession) LastAssistant() (Message, bool) {
	for i := len(s.Transcript) - 1; i >= 0; i-- {
		if s.Transcript[i].Role == RoleAssistant {
			return s.Transcript[i], true
		}
	}
	return Message{}, false
}

// Normalize repairs fields a restored blob may carry out of range and reports
// whether the blob was usable at all.
func (s *InterviewSession) Normalize() bool {
	if s.Stage == "" {
		s.Stage = StageIntro
	}
	if !s.Stage.Valid() {
		return false
	}
	if s.Progress < 0 || s.Progress > progressComplete || s.RemainingQuestions < 0 {
		return false
	}
	if s.Transcript == nil {
		s.Transcript = []Message{}
	}
	for i := range s.Transcript {
		if s.Transcript[i].Role != RoleUser {
			s.Transcript[i].Analysis = nil
		}
	}
	if s.ViewMode == "" {
		s.ViewMode = ViewChat
	}
	s.Completed = s.IsComplete()
	return true
}

// AtLeast reports whether s has reached other.
func (s Stage) AtLeast(other Stage) bool { return s.order() >= other.order() }
