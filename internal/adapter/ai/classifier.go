package ai

import (
	"regexp"
	"strings"
)

// ResponseKind labels what a completion looks like.
type ResponseKind int

const (
	// InterviewTurn is ordinary conversational interviewer output.
	InterviewTurn ResponseKind = iota
	// LikelyTemplate is document-template output (resume, cover letter) sent to the wrong flow.
	LikelyTemplate
)

func (k ResponseKind) String() string {
	if k == LikelyTemplate {
		return "likely_template"
	}
	return "interview_turn"
}

// Thresholds for misroute detection.
const (
	BoldHeaderThreshold      = 3
	TemplateKeywordThreshold = 2
)

var (
	boldHeaderRe  = regexp.MustCompile(`\*\*[^*\n]+\*\*`)
	placeholderRe = regexp.MustCompile(`(?i)\[(?:your|company|candidate|insert|job|position|date|name|address|phone|email)[^\]\n]{0,40}\]`)
)

// TemplateKeywords are section headers typical of resume and letter
// templates. They only count when they head a line.
var TemplateKeywords = []string{
	"professional summary",
	"work experience",
	"education",
	"certifications",
	"references",
	"contact information",
	"objective",
	"core competencies",
}

// Classification carries the signals behind a ResponseKind.
type Classification struct {
	Kind        ResponseKind
	BoldHeaders int
	Keywords    int
	Placeholder bool
}

// ClassifyResponseKind decides whether text is an interview turn or misrouted template output.
func ClassifyResponseKind(text string) ResponseKind {
	return Classify(text).Kind
}

// Classify returns the kind together with the counts that produced it.
func Classify(text string) Classification {
	c := Classification{
		BoldHeaders: len(boldHeaderRe.FindAllStringIndex(text, -1)),
		Placeholder: placeholderRe.MatchString(text),
	}
	seen := make(map[string]bool, len(TemplateKeywords))
	for _, line := range strings.Split(text, "\n") {
		if kw, ok := headerKeyword(line); ok && !seen[kw] {
			seen[kw] = true
			c.Keywords++
		}
	}
	if c.BoldHeaders >= BoldHeaderThreshold || c.Keywords >= TemplateKeywordThreshold || c.Placeholder {
		c.Kind = LikelyTemplate
	}
	return c
}

// headerKeyword reports the template keyword a line is headed by, as in
// "## Education", "**Work Experience:**" or "Objective: ...".
func headerKeyword(line string) (string, bool) {
	l := strings.ToLower(strings.TrimSpace(line))
	l = strings.TrimLeft(l, "#> ")
	l = strings.NewReplacer("**", "", "__", "").Replace(l)
	l = strings.TrimSpace(l)
	for _, kw := range TemplateKeywords {
		if !strings.HasPrefix(l, kw) {
			continue
		}
		rest := strings.TrimSpace(l[len(kw):])
		if rest == "" || strings.HasPrefix(rest, ":") {
			return kw, true
		}
	}
	return "", false
}
