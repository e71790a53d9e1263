package email

import (
	"html"
	"strings"
	"time"

	"placement/internal/types"
)

// Vars maps placeholder keys (without braces) to their values.
type Vars map[string]string

// RenderedEmail holds the substituted content ready for a transport.
type RenderedEmail struct {
	Subject  string
	BodyHTML string
	BodyText string
}

// Substitute replaces every occurrence of each {key} in text with its value.
// Placeholders without a value are left as they are.
func Substitute(text string, vars Vars) string {
	if len(vars) == 0 || !strings.Contains(text, "{") {
		return text
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}

// Render substitutes vars into every part of tpl. Values placed in the HTML
// body are escaped; the subject and the text body receive them verbatim.
func Render(tpl *types.EmailTemplate, vars Vars) RenderedEmail {
	escaped := make(Vars, len(vars))
	for k, v := range vars {
		escaped[k] = html.EscapeString(v)
	}
	return RenderedEmail{
		Subject:  Substitute(tpl.Subject, vars),
		BodyHTML: Substitute(tpl.BodyHTML, escaped),
		BodyText: Substitute(tpl.BodyText, vars),
	}
}

// Display formats used in reminder content.
const (
	dateLayout = "Monday, January 2, 2006"
	timeLayout = "3:04 PM MST"
)

// ReminderVars builds the placeholder values for a reminder of kind about c.
// Times are rendered in loc; a nil loc means UTC.
func ReminderVars(c types.ReminderCandidate, kind types.ReminderKind, loc *time.Location) Vars {
	if loc == nil {
		loc = time.UTC
	}
	at := c.InterviewDate.In(loc)

	where := c.LocationOrLink
	if where == "" {
		where = "To be confirmed"
	}

	return Vars{
		"candidate_name":   c.CandidateName,
		"job_title":        c.JobTitle,
		"company_name":     c.CompanyName,
		"interview_date":   at.Format(dateLayout),
		"interview_time":   at.Format(timeLayout),
		"interview_mode":   modeLabel(c.Mode),
		"location_or_link": where,
		"time_until":       kind.Label(),
	}
}

func modeLabel(m types.InterviewMode) string {
	switch m {
	case types.InterviewOnline:
		return "Online"
	case types.InterviewOnsite:
		return "On-site"
	}
	return string(m)
}
