package usecase

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/fairyhunter13/interview-coach/internal/adapter/ai"
	"github.com/fairyhunter13/interview-coach/internal/adapter/observability"
	"github.com/fairyhunter13/interview-coach/internal/domain"
	obsctx "github.com/fairyhunter13/interview-coach/internal/observability"
	"github.com/fairyhunter13/interview-coach/pkg/textx"
)

// Workflow names used in logs and metrics.
const (
	WorkflowResume = "resume"
	WorkflowJob    = "job"
)

// unspecifiedLevel is reported when no experience level can be found.
const unspecifiedLevel = "unspecified"

var errCrossSchema = errors.New("response matched another analysis schema")

// AnalysisConfig holds costs and sampling for the analysis workflows.
type AnalysisConfig struct {
	ResumeCost  int64
	JobCost     int64
	Temperature float64
}

// ResumeAnalysisInput is what a resume is scored against.
type ResumeAnalysisInput struct {
	ResumeText     string `json:"resumeText" validate:"required"`
	TargetRole     string `json:"targetRole" validate:"required"`
	JobDescription string `json:"jobDescription,omitempty"`
}

// JobAnalysisInput is a job posting to extract requirements from.
type JobAnalysisInput struct {
	Title       string `json:"title" validate:"required"`
	Company     string `json:"company,omitempty"`
	Description string `json:"description" validate:"required"`
}

// AnalysisService runs the one-shot resume and job analysis workflows.
type AnalysisService struct {
	ledger    CreditLedger
	completer domain.Completer
	cleaner   *ai.ResponseCleaner
	cfg       AnalysisConfig
}

// NewAnalysisService constructs an AnalysisService.
func NewAnalysisService(ledger CreditLedger, completer domain.Completer, cfg AnalysisConfig) *AnalysisService {
	return &AnalysisService{ledger: ledger, completer: completer, cleaner: ai.NewResponseCleaner(), cfg: cfg}
}

// AnalyzeResume scores a resume for a target role.
func (a *AnalysisService) AnalyzeResume(ctx domain.Context, userID string, in ResumeAnalysisInput) (domain.ResumeAnalysis, error) {
	in.ResumeText = textx.SanitizeText(in.ResumeText)
	in.TargetRole = textx.SanitizeText(in.TargetRole)
	in.JobDescription = textx.SanitizeText(in.JobDescription)
	switch {
	case in.ResumeText == "":
		return domain.ResumeAnalysis{}, fmt.Errorf("%w: resume text is required", domain.ErrInvalidArgument)
	case in.TargetRole == "":
		return domain.ResumeAnalysis{}, fmt.Errorf("%w: target role is required", domain.ErrInvalidArgument)
	}
	if err := a.spend(ctx, userID, a.cfg.ResumeCost, domain.FeatureResumeAnalysis, "Resume analysis: "+textx.Truncate(in.TargetRole, 80)); err != nil {
		return domain.ResumeAnalysis{}, fmt.Errorf("op=analysis.AnalyzeResume: %w", err)
	}

	out := runWorkflow(ctx, a, WorkflowResume, domain.CompletionResumeAnalysis,
		func(strict bool) string { return buildResumePrompt(in, strict) },
		a.parseResume)
	switch out.Kind {
	case domain.OutcomeOK:
		observability.ObserveAnalysis(WorkflowResume, out.Kind.String())
		return out.Value, nil
	case domain.OutcomeSchemaError, domain.OutcomeTransportError:
		return domain.ResumeAnalysis{}, a.fail(ctx, userID, WorkflowResume, a.cfg.ResumeCost, out.Kind, out.Err)
	default:
		return domain.ResumeAnalysis{}, fmt.Errorf("%w: unhandled outcome %s", domain.ErrInternal, out.Kind)
	}
}

// AnalyzeJob extracts requirements from a job posting.
func (a *AnalysisService) AnalyzeJob(ctx domain.Context, userID string, in JobAnalysisInput) (domain.JobAnalysis, error) {
	in.Title = textx.SanitizeText(in.Title)
	in.Company = textx.SanitizeText(in.Company)
	in.Description = textx.SanitizeText(in.Description)
	switch {
	case in.Title == "":
		return domain.JobAnalysis{}, fmt.Errorf("%w: job title is required", domain.ErrInvalidArgument)
	case in.Description == "":
		return domain.JobAnalysis{}, fmt.Errorf("%w: job description is required", domain.ErrInvalidArgument)
	}
	if err := a.spend(ctx, userID, a.cfg.JobCost, domain.FeatureJobAnalysis, "Job analysis: "+textx.Truncate(in.Title, 80)); err != nil {
		return domain.JobAnalysis{}, fmt.Errorf("op=analysis.AnalyzeJob: %w", err)
	}

	out := runWorkflow(ctx, a, WorkflowJob, domain.CompletionJobAnalysis,
		func(strict bool) string { return buildJobPrompt(in, strict) },
		a.parseJob)
	switch out.Kind {
	case domain.OutcomeOK:
		observability.ObserveAnalysis(WorkflowJob, out.Kind.String())
		return out.Value, nil
	case domain.OutcomeSchemaError, domain.OutcomeTransportError:
		return domain.JobAnalysis{}, a.fail(ctx, userID, WorkflowJob, a.cfg.JobCost, out.Kind, out.Err)
	default:
		return domain.JobAnalysis{}, fmt.Errorf("%w: unhandled outcome %s", domain.ErrInternal, out.Kind)
	}
}

func (a *AnalysisService) spend(ctx domain.Context, userID string, cost int64, feature, description string) error {
	ok, err := a.ledger.CheckAndSpend(ctx, userID, cost, feature, description)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrInsufficientCredits
	}
	return nil
}

// fail refunds the spend of a workflow that produced nothing usable.
func (a *AnalysisService) fail(ctx domain.Context, userID, workflow string, cost int64, kind domain.OutcomeKind, cause error) error {
	observability.ObserveAnalysis(workflow, kind.String())
	obsctx.LoggerFromContext(ctx).Warn("analysis workflow failed",
		slog.String("workflow", workflow), slog.String("outcome", kind.String()), slog.Any("error", cause))
	if err := a.ledger.Refund(ctx, userID, cost, workflow+" analysis failed"); err != nil {
		return fmt.Errorf("op=analysis.%s: %w", workflow, err)
	}
	return fmt.Errorf("op=analysis.%s: %w", workflow, cause)
}

// runWorkflow calls the gateway and parses the reply, retrying once when the
// reply matches the other workflow's schema.
func runWorkflow[T any](ctx domain.Context, a *AnalysisService, workflow, completionType string,
	prompt func(strict bool) string, parse func(raw string) (domain.Outcome[T], bool)) domain.Outcome[T] {
	lg := obsctx.LoggerFromContext(ctx)
	var (
		out     domain.Outcome[T]
		attempt int
	)
	op := func() error {
		strict := attempt > 0
		attempt++
		temp := a.cfg.Temperature
		raw, err := a.completer.Complete(ctx, domain.CompletionRequest{Prompt: prompt(strict), Type: completionType, Temperature: &temp})
		if err != nil {
			out = domain.TransportFailure[T](err)
			return backoff.Permanent(err)
		}
		var crossed bool
		out, crossed = parse(raw)
		if crossed {
			return errCrossSchema
		}
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 1), ctx)
	_ = backoff.RetryNotify(op, b, func(err error, _ time.Duration) {
		observability.RetryAnalysis(workflow)
		lg.Warn("analysis reply used the wrong schema, retrying", slog.String("workflow", workflow), slog.Any("error", err))
	})
	return out
}

var (
	resumeKeys = []string{"atsScore", "strengths", "improvements", "missingKeywords"}
	jobKeys    = []string{"requiredSkills", "preferredSkills", "responsibilities", "experienceLevel"}
)

func (a *AnalysisService) parseResume(raw string) (domain.Outcome[domain.ResumeAnalysis], bool) {
	top, ok := a.decodeObject(raw)
	if !ok {
		return validateResume(resumeFromText(raw))
	}
	if crossedSchema(top, resumeKeys, jobKeys) {
		return domain.SchemaFailure[domain.ResumeAnalysis](errCrossSchema.Error()), true
	}
	r := domain.ResumeAnalysis{
		Strengths:       decodeList(top["strengths"]),
		Improvements:    decodeList(top["improvements"]),
		MissingKeywords: decodeList(top["missingKeywords"]),
		ATSScore:        -1,
	}
	if v, ok := decodeScore(top["atsScore"]); ok {
		r.ATSScore = v
	}
	return validateResume(r)
}

func (a *AnalysisService) parseJob(raw string) (domain.Outcome[domain.JobAnalysis], bool) {
	top, ok := a.decodeObject(raw)
	if !ok {
		return validateJob(jobFromText(raw))
	}
	if crossedSchema(top, jobKeys, resumeKeys) {
		return domain.SchemaFailure[domain.JobAnalysis](errCrossSchema.Error()), true
	}
	j := domain.JobAnalysis{
		RequiredSkills:   decodeList(top["requiredSkills"]),
		PreferredSkills:  decodeList(top["preferredSkills"]),
		Responsibilities: decodeList(top["responsibilities"]),
	}
	var level string
	if err := json.Unmarshal(top["experienceLevel"], &level); err == nil {
		j.ExperienceLevel = level
	}
	return validateJob(j)
}

func (a *AnalysisService) decodeObject(raw string) (map[string]json.RawMessage, bool) {
	cleaned, err := a.cleaner.CleanAndValidateJSON(raw)
	if err != nil {
		// Prose replies fall through to the plain-text extractors.
		return nil, false
	}
	var top map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &top); err != nil || top == nil {
		return nil, false
	}
	return top, true
}

// crossedSchema reports an object carrying none of its own keys but some of the other workflow's.
func crossedSchema(top map[string]json.RawMessage, own, other []string) bool {
	for _, k := range own {
		if _, ok := top[k]; ok {
			return false
		}
	}
	for _, k := range other {
		if _, ok := top[k]; ok {
			return true
		}
	}
	return false
}

func validateResume(r domain.ResumeAnalysis) (domain.Outcome[domain.ResumeAnalysis], bool) {
	if r.ATSScore < domain.MinATSScore || r.ATSScore > domain.MaxATSScore {
		return domain.SchemaFailure[domain.ResumeAnalysis]("atsScore missing or out of range"), false
	}
	r.Strengths = textx.CleanList(r.Strengths, domain.MaxListItems, domain.MaxItemLength)
	r.Improvements = textx.CleanList(r.Improvements, domain.MaxListItems, domain.MaxItemLength)
	r.MissingKeywords = textx.CleanList(r.MissingKeywords, domain.MaxSkills, domain.MaxItemLength)
	switch {
	case len(r.Strengths) == 0:
		return domain.SchemaFailure[domain.ResumeAnalysis]("strengths is empty"), false
	case len(r.Improvements) == 0:
		return domain.SchemaFailure[domain.ResumeAnalysis]("improvements is empty"), false
	}
	return domain.Ok(r), false
}

func validateJob(j domain.JobAnalysis) (domain.Outcome[domain.JobAnalysis], bool) {
	j.RequiredSkills = textx.CleanList(j.RequiredSkills, domain.MaxSkills, domain.MaxItemLength)
	j.PreferredSkills = textx.CleanList(j.PreferredSkills, domain.MaxSkills, domain.MaxItemLength)
	j.Responsibilities = textx.CleanList(j.Responsibilities, domain.MaxListItems, domain.MaxItemLength)
	j.ExperienceLevel = strings.ToLower(textx.Truncate(textx.SanitizeText(j.ExperienceLevel), 40))
	if j.ExperienceLevel == "" {
		j.ExperienceLevel = unspecifiedLevel
	}
	switch {
	case len(j.RequiredSkills) == 0:
		return domain.SchemaFailure[domain.JobAnalysis]("requiredSkills is empty"), false
	case len(j.Responsibilities) == 0:
		return domain.SchemaFailure[domain.JobAnalysis]("responsibilities is empty"), false
	}
	return domain.Ok(j), false
}

// decodeList accepts an array of strings, an array of objects with a text-like
// field, or a single delimited string.
func decodeList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var items []any
	if err := json.Unmarshal(raw, &items); err == nil {
		out := make([]string, 0, len(items))
		for _, it := range items {
			switch v := it.(type) {
			case string:
				out = append(out, v)
			case float64:
				out = append(out, strconv.FormatFloat(v, 'f', -1, 64))
			case map[string]any:
				for _, k := range []string{"name", "skill", "text", "item", "title"} {
					if s, ok := v[k].(string); ok {
						out = append(out, s)
						break
					}
				}
			}
		}
		return out
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return splitInline(s)
	}
	return nil
}

var scoreTextRe = regexp.MustCompile(`^\s*(\d{1,3}(?:\.\d+)?)`)

// decodeScore accepts a number or a string such as "85" or "85/100".
func decodeScore(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		m := scoreTextRe.FindStringSubmatch(s)
		if m == nil {
			return 0, false
		}
		if f, err = strconv.ParseFloat(m[1], 64); err != nil {
			return 0, false
		}
	}
	return int(math.Round(f)), true
}

func splitInline(s string) []string {
	if strings.Contains(s, "\n") {
		if items := ai.ListItems(s); len(items) > 0 {
			return items
		}
		return strings.Split(s, "\n")
	}
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' })
}

// Plain-text fallback: bullets are assigned to the most recent heading that
// matches a section keyword.

type section struct {
	name     string
	keywords []string
}

var (
	resumeSections = []section{
		{"strengths", []string{"strength", "what works", "highlights"}},
		{"improvements", []string{"improvement", "improve", "weakness", "recommendation", "suggestion"}},
		{"missingKeywords", []string{"missing keyword", "keywords", "missing"}},
	}
	jobSections = []section{
		{"requiredSkills", []string{"required", "must have", "requirements", "qualifications"}},
		{"preferredSkills", []string{"preferred", "nice to have", "bonus", "plus"}},
		{"responsibilities", []string{"responsibilit", "duties", "you will", "what you'll do"}},
	}
	atsScoreTextRe = regexp.MustCompile(`(?i)(?:ats|score)[^0-9\n]{0,20}(\d{1,3})`)
	levelTextRe    = regexp.MustCompile(`(?i)\b(entry|junior|mid|senior|lead|principal|staff)\b`)
)

// maxHeadingLength separates headings from prose lines.
const maxHeadingLength = 60

func splitSections(text string, sections []section) map[string][]string {
	out := make(map[string][]string, len(sections))
	current := ""
	for _, line := range strings.Split(text, "\n") {
		if items := ai.ListItems(line); len(items) > 0 {
			if current != "" {
				out[current] = append(out[current], items...)
			}
			continue
		}
		heading, rest, inline := strings.Cut(line, ":")
		heading = strings.ToLower(strings.Trim(heading, " \t#*_"))
		if heading == "" || len(heading) > maxHeadingLength {
			continue
		}
		for _, s := range sections {
			if containsAny(heading, s.keywords) {
				current = s.name
				break
			}
		}
		// "Heading: a, b, c" carries its items on the same line.
		if rest = strings.Trim(rest, " \t*_"); inline && rest != "" && current != "" {
			out[current] = append(out[current], splitInline(rest)...)
		}
	}
	return out
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func resumeFromText(text string) domain.ResumeAnalysis {
	secs := splitSections(text, resumeSections)
	r := domain.ResumeAnalysis{
		ATSScore:        -1,
		Strengths:       secs["strengths"],
		Improvements:    secs["improvements"],
		MissingKeywords: secs["missingKeywords"],
	}
	if m := atsScoreTextRe.FindStringSubmatch(text); m != nil {
		if v, err := strconv.Atoi(m[1]); err == nil {
			r.ATSScore = v
		}
	}
	return r
}

func jobFromText(text string) domain.JobAnalysis {
	secs := splitSections(text, jobSections)
	j := domain.JobAnalysis{
		RequiredSkills:   secs["requiredSkills"],
		PreferredSkills:  secs["preferredSkills"],
		Responsibilities: secs["responsibilities"],
	}
	if m := levelTextRe.FindStringSubmatch(text); m != nil {
		j.ExperienceLevel = m[1]
	}
	return j
}
