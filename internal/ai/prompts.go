package ai

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/example/outreachbot/internal/models"
)

const (
	NoteMaxLength    = 250
	MessageMaxLength = 1500

	profileTextLimit = 2000
)

// Truncate cuts s to at most max runes, ending in "..." when shortened.
func Truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= 3 {
		return string([]rune(s)[:max])
	}
	return string([]rune(s)[:max-3]) + "..."
}

func topSkills(r models.ResumeSummary, n int) string {
	skills := r.Skills
	if len(skills) > n {
		skills = skills[:n]
	}
	return strings.Join(skills, ", ")
}

func experience(r models.ResumeSummary) string {
	if r.YearsExperience > 0 {
		return strconv.FormatFloat(r.YearsExperience, 'f', -1, 64) + " years of professional experience"
	}
	if len(r.Roles) > 0 {
		return "Experienced " + r.Roles[0]
	}
	return "Experienced professional"
}

func classifyPrompt(p models.ProfileText) string {
	var b strings.Builder
	fmt.Fprintf(&b, "I am looking for recruiters, talent acquisition professionals, or HR at '%s'.\n\n", p.Company)
	fmt.Fprintf(&b, "Profile Information:\nName: %s\nRole/Headline: %s\n", p.Name, p.Headline)
	if p.FullText != "" {
		fmt.Fprintf(&b, "\nFULL PROFILE CONTENT:\n%s\n", Truncate(p.FullText, profileTextLimit))
	}
	fmt.Fprintf(&b, "\nIs this person CURRENTLY a recruiter/HR/Talent Acquisition person at (or hiring for) '%s'?\n", p.Company)
	b.WriteString("Reply strictly with only 'YES' or 'NO'.")
	return b.String()
}

func notePrompt(p models.ProfileText, r models.ResumeSummary) string {
	return fmt.Sprintf(`Generate a SHORT, professional connection request note (under %d characters) with:
- Brief introduction
- Mention of their company
- Your key relevant skill
- Professional interest

Context:
Company: %s
Their Role: %s
Your Skills: %s

Keep it concise, friendly, and professional. No generic templates.`,
		NoteMaxLength, p.Company, p.Headline, topSkills(r, 3))
}

func messagePrompt(p models.ProfileText, r models.ResumeSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate a professional, personalized LinkedIn message (under %d characters) for a recruiter.\n\n", MessageMaxLength)
	fmt.Fprintf(&b, "Context:\n- Their Name: %s\n- Their Role: %s\n- Company: %s\n- Your Skills: %s\n- Your Experience Summary: %s\n",
		p.Name, p.Headline, p.Company, topSkills(r, 5), experience(r))
	if len(r.Roles) > 0 {
		fmt.Fprintf(&b, "- Roles you are interested in: %s\n", strings.Join(r.Roles, ", "))
	}
	if p.FullText != "" {
		fmt.Fprintf(&b, "\nTheir profile:\n%s\n", Truncate(p.FullText, profileTextLimit))
	}
	b.WriteString(`
The message should greet them, briefly introduce yourself, mention your interest in their company,
highlight 2-3 relevant skills, and ask for a short conversation about relevant roles.
Tone: professional but warm, confident, specific. Avoid generic templates and excessive flattery.`)
	return b.String()
}

// FallbackNote is sent when note generation is unavailable.
func FallbackNote(company string, r models.ResumeSummary) string {
	skills := topSkills(r, 3)
	if skills == "" {
		return Truncate(fmt.Sprintf("Hi! I'm interested in opportunities at %s. Would love to connect!", company), NoteMaxLength)
	}
	return Truncate(fmt.Sprintf("Hi! I'm interested in opportunities at %s. I specialize in %s. Would love to connect!", company, skills), NoteMaxLength)
}

// FallbackMessage is sent when message generation is unavailable.
func FallbackMessage(name, company string, r models.ResumeSummary) string {
	greeting := "Hi"
	if first := strings.Fields(name); len(first) > 0 {
		greeting = "Hi " + first[0]
	}
	skills := topSkills(r, 5)
	if skills == "" {
		skills = "software engineering"
	}
	return Truncate(fmt.Sprintf(`%s,

I hope this message finds you well. I'm reaching out because I'm very interested in opportunities at %s.

%s, with expertise in %s, and I would love to explore how my skills could contribute to your team.

Would you be open to a brief conversation about potential roles that might be a good fit?

Thank you for your time!
Best regards`, greeting, company, background(r), skills), MessageMaxLength)
}

func background(r models.ResumeSummary) string {
	switch {
	case r.YearsExperience > 0:
		return "I bring " + strconv.FormatFloat(r.YearsExperience, 'f', -1, 64) + " years of professional experience"
	case len(r.Roles) > 0:
		return "I work as a " + r.Roles[0]
	}
	return "I am an experienced professional"
}

// FollowUpMessage is the short nudge sent once after an unanswered message.
func FollowUpMessage(name, company string) string {
	greeting := "Hi"
	if first := strings.Fields(name); len(first) > 0 {
		greeting = "Hi " + first[0]
	}
	return fmt.Sprintf("%s, just following up on my earlier message about opportunities at %s. "+
		"I'd be glad to share more about my background if helpful. Thanks again!", greeting, company)
}
