package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyResponseKind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		text string
		want ResponseKind
	}{
		{
			name: "ordinary opening question",
			text: "Hi! Thanks for joining. Could you walk me through a recent backend project you are proud of?",
			want: InterviewTurn,
		},
		{
			name: "bold headers and placeholder",
			text: "**Summary**\n**Experience**\n**Skills**\n[Your Name]",
			want: LikelyTemplate,
		},
		{
			name: "three bold headers",
			text: "**Profile** text **Experience** text **Skills** text",
			want: LikelyTemplate,
		},
		{
			name: "two bold phrases are fine",
			text: "Let's talk about **system design** and **trade-offs**. What would you choose?",
			want: InterviewTurn,
		},
		{
			name: "two template keywords",
			text: "Professional Summary: seasoned engineer.\nWork Experience: Acme Corp.",
			want: LikelyTemplate,
		},
		{
			name: "markdown section headers",
			text: "## Education\nBSc Computer Science\n\n**Certifications**\nCKA",
			want: LikelyTemplate,
		},
		{
			name: "keywords inside a question",
			text: "Tell me about your education and work experience.",
			want: InterviewTurn,
		},
		{
			name: "keywords across question lines",
			text: "Great answer.\nHow did your education shape your work experience?\nAny certifications you value?",
			want: InterviewTurn,
		},
		{
			name: "one keyword only",
			text: "Tell me about your education and how it prepared you for this role.",
			want: InterviewTurn,
		},
		{
			name: "placeholder alone",
			text: "Dear hiring manager at [Company Name], I am excited",
			want: LikelyTemplate,
		},
		{
			name: "bracket that is not a placeholder",
			text: "Consider an array like [1, 2, 3]. How would you reverse it?",
			want: InterviewTurn,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ClassifyResponseKind(tt.text))
		})
	}
}

func TestClassify_Signals(t *testing.T) {
	t.Parallel()

	c := Classify("**A** **B**\nObjective: build things\n## Education\nEducation\n[Insert date]")
	assert.Equal(t, LikelyTemplate, c.Kind)
	assert.Equal(t, 2, c.BoldHeaders)
	assert.Equal(t, 2, c.Keywords)
	assert.True(t, c.Placeholder)
	assert.Equal(t, "likely_template", c.Kind.String())
	assert.Equal(t, "interview_turn", InterviewTurn.String())
}
