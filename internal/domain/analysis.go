package domain

// Documented maxima for analysis output lists.
const (
	MaxSkills     = 10
	MaxListItems  = 5
	MaxItemLength = 120
	MinATSScore   = 0
	MaxATSScore   = 100
)

// ResumeAnalysis is the ATS scoring result for a resume.
type ResumeAnalysis struct {
	ATSScore        int      `json:"atsScore"`
	Strengths       []string `json:"strengths"`
	Improvements    []string `json:"improvements"`
	MissingKeywords []string `json:"missingKeywords"`
}

// JobAnalysis is the skill extraction result for a job description.
type JobAnalysis struct {
	RequiredSkills   []string `json:"requiredSkills"`
	PreferredSkills  []string `json:"preferredSkills"`
	Responsibilities []string `json:"responsibilities"`
	ExperienceLevel  string   `json:"experienceLevel"`
}
