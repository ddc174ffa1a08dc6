package usecase

import (
	"fmt"
	"strings"

	"github.com/fairyhunter13/interview-coach/internal/domain"
	"github.com/fairyhunter13/interview-coach/pkg/textx"
)

// promptHistoryTurns bounds how much transcript is replayed into a question prompt.
const promptHistoryTurns = 8

// promptFieldLimit bounds free-text fields copied into prompts (runes).
const promptFieldLimit = 4000

func setupBlock(s domain.InterviewSetup) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Position: %s\n", textx.Truncate(s.Position, 200))
	if s.Company != "" {
		fmt.Fprintf(&b, "Company: %s\n", textx.Truncate(s.Company, 200))
	}
	if s.InterviewType != "" {
		fmt.Fprintf(&b, "Interview type: %s\n", textx.Truncate(s.InterviewType, 100))
	}
	if s.JobDescription != "" {
		fmt.Fprintf(&b, "Job description:\n%s\n", textx.Truncate(s.JobDescription, promptFieldLimit))
	}
	return b.String()
}

func buildOpeningPrompt(s domain.InterviewSetup) string {
	return "You are an experienced interviewer running a mock job interview.\n" +
		setupBlock(s) +
		"\nGreet the candidate in one or two sentences and ask the first question. " +
		"The first question should invite the candidate to introduce themselves and their background for this role.\n" +
		"Reply with the interviewer's words only. Do not write a resume, a cover letter, headings, or placeholders in brackets."
}

func buildNextQuestionPrompt(s *domain.InterviewSession) string {
	var b strings.Builder
	b.WriteString("You are an experienced interviewer running a mock job interview.\n")
	b.WriteString(setupBlock(s.Setup))
	fmt.Fprintf(&b, "\nCurrent stage: %s\n", stageFocus(s.Stage))
	fmt.Fprintf(&b, "Questions remaining after this one: %d\n", max(s.RemainingQuestions-1, 0))
	b.WriteString("\nConversation so far:\n")
	start := max(len(s.Transcript)-promptHistoryTurns, 0)
	for _, m := range s.Transcript[start:] {
		who := "Interviewer"
		if m.Role == domain.RoleUser {
			who = "Candidate"
		} else if m.Role == domain.RoleSystem {
			continue
		}
		fmt.Fprintf(&b, "%s: %s\n", who, textx.Truncate(m.Content, promptFieldLimit))
	}
	b.WriteString("\nBriefly acknowledge the candidate's last answer, then ask exactly one new question that fits the current stage. ")
	b.WriteString("Do not repeat earlier questions. Reply with the interviewer's words only.")
	return b.String()
}

func stageFocus(st domain.Stage) string {
	switch st {
	case domain.StageTechnical:
		return "technical (role-specific skills and problem solving)"
	case domain.StageBehavioral:
		return "behavioral (past situations, teamwork, conflict, ownership)"
	case domain.StageClosing:
		return "closing (motivation, questions for the company, wrap up)"
	default:
		return "introduction (background and motivation)"
	}
}

func buildAnswerAnalysisPrompt(in EvaluationInput) string {
	var b strings.Builder
	b.WriteString("You are grading one answer from a mock job interview.\n")
	b.WriteString(setupBlock(in.Setup))
	fmt.Fprintf(&b, "Stage: %s\n", in.Stage)
	fmt.Fprintf(&b, "\nQuestion:\n%s\n\nAnswer:\n%s\n\n", textx.Truncate(in.Question, promptFieldLimit), textx.Truncate(in.Answer, promptFieldLimit))
	b.WriteString("Score the answer from 0 to 100 on clarity, relevance, depth and confidence. ")
	b.WriteString("Use the full range; do not default to 70.\n")
	b.WriteString("Write feedback as one sentence naming a strength, then \"but\", then one concrete improvement.\n")
	b.WriteString("Return ONLY this JSON object, with no markdown and no extra text:\n")
	b.WriteString(`{"scores":{"clarity":0,"relevance":0,"depth":0,"confidence":0},"feedback":"..."}`)
	return b.String()
}

func buildResumePrompt(in ResumeAnalysisInput, strict bool) string {
	var b strings.Builder
	b.WriteString("You are an applicant tracking system reviewing a resume.\n")
	fmt.Fprintf(&b, "Target role: %s\n", textx.Truncate(in.TargetRole, 200))
	if in.JobDescription != "" {
		fmt.Fprintf(&b, "Job description:\n%s\n", textx.Truncate(in.JobDescription, promptFieldLimit))
	}
	fmt.Fprintf(&b, "\nResume:\n%s\n\n", textx.Truncate(in.ResumeText, promptFieldLimit*2))
	b.WriteString("Return ONLY a JSON object with exactly these fields:\n")
	b.WriteString(`{"atsScore":0,"strengths":["..."],"improvements":["..."],"missingKeywords":["..."]}` + "\n")
	fmt.Fprintf(&b, "atsScore is an integer 0-100. Each list has 1 to %d short items of at most %d characters.\n", domain.MaxListItems, domain.MaxItemLength)
	b.WriteString("Do NOT return requiredSkills, preferredSkills, responsibilities or experienceLevel. ")
	b.WriteString("Do NOT wrap the JSON in markdown. Do NOT rewrite the resume.\n")
	if strict {
		b.WriteString("Your previous reply analyzed a job posting instead of this resume. Score the resume.\n")
	}
	return b.String()
}

func buildJobPrompt(in JobAnalysisInput, strict bool) string {
	var b strings.Builder
	b.WriteString("You are a recruiter extracting requirements from a job posting.\n")
	fmt.Fprintf(&b, "Title: %s\n", textx.Truncate(in.Title, 200))
	if in.Company != "" {
		fmt.Fprintf(&b, "Company: %s\n", textx.Truncate(in.Company, 200))
	}
	fmt.Fprintf(&b, "\nDescription:\n%s\n\n", textx.Truncate(in.Description, promptFieldLimit*2))
	b.WriteString("Return ONLY a JSON object with exactly these fields:\n")
	b.WriteString(`{"requiredSkills":["..."],"preferredSkills":["..."],"responsibilities":["..."],"experienceLevel":"..."}` + "\n")
	fmt.Fprintf(&b, "Skill lists have at most %d items, responsibilities at most %d, each at most %d characters. ", domain.MaxSkills, domain.MaxListItems, domain.MaxItemLength)
	b.WriteString("experienceLevel is one of entry, mid, senior, lead.\n")
	b.WriteString("Do NOT return atsScore, strengths, improvements or missingKeywords. ")
	b.WriteString("Do NOT wrap the JSON in markdown. Do NOT write a cover letter.\n")
	if strict {
		b.WriteString("Your previous reply scored a resume instead of this job posting. Extract the job requirements.\n")
	}
	return b.String()
}
