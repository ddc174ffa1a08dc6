package usecase

import (
	"math"
	"regexp"
	"strings"

	"github.com/fairyhunter13/interview-coach/internal/domain"
)

// maxSummaryItems caps strengths and improvements.
const maxSummaryItems = 3

var (
	butRe     = regexp.MustCompile(`(?i)\bbut\b`)
	howeverRe = regexp.MustCompile(`(?i)\bhowever\b`)
)

// Summarize aggregates the analyzed user turns of a transcript. It reports
// false when there is nothing to aggregate.
func Summarize(transcript []domain.Message, elapsedSeconds int) (domain.PerformanceSummary, bool) {
	var (
		sums      [4]int
		n         int
		strengths []string
		improves  []string
	)
	for _, m := range transcript {
		if m.Role != domain.RoleUser || m.Analysis == nil {
			continue
		}
		n++
		for i, s := range m.Analysis.Scores() {
			sums[i] += s
		}
		if m.Analysis.Fallback {
			continue
		}
		strength, improvement := splitFeedback(m.Analysis.Feedback)
		strengths = appendUnique(strengths, strength)
		improves = appendUnique(improves, improvement)
	}
	if n == 0 {
		return domain.PerformanceSummary{}, false
	}

	avg := func(total, count int) int {
		return int(math.Round(float64(total) / float64(count)))
	}
	total := sums[0] + sums[1] + sums[2] + sums[3]
	return domain.PerformanceSummary{
		Clarity:               avg(sums[0], n),
		Relevance:             avg(sums[1], n),
		Depth:                 avg(sums[2], n),
		Confidence:            avg(sums[3], n),
		Overall:               avg(total, 4*n),
		Strengths:             nonNil(strengths),
		Improvements:          nonNil(improves),
		CompletionTimeSeconds: elapsedSeconds,
		ResponseCount:         n,
	}, true
}

// splitFeedback splits once on the first "but", else "however", else a comma.
// Without a separator the whole text counts as a strength.
func splitFeedback(text string) (string, string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ""
	}
	for _, re := range []*regexp.Regexp{butRe, howeverRe} {
		if loc := re.FindStringIndex(text); loc != nil {
			return cleanFragment(text[:loc[0]]), cleanFragment(text[loc[1]:])
		}
	}
	if i := strings.IndexByte(text, ','); i >= 0 {
		return cleanFragment(text[:i]), cleanFragment(text[i+1:])
	}
	return cleanFragment(text), ""
}

func cleanFragment(s string) string {
	return strings.Trim(s, " \t\n\r,.;:!-")
}

// appendUnique keeps first-seen order with exact-match dedup.
func appendUnique(list []string, s string) []string {
	if s == "" || len(list) >= maxSummaryItems {
		return list
	}
	for _, x := range list {
		if x == s {
			return list
		}
	}
	return append(list, s)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
