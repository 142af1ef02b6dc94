package email

import (
	"fmt"
	"html"
	"strings"

	"keywordhub/internal/models"
)

// page wraps content in the shared HTML layout.
func page(title, content string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>%s</title></head>
<body style="font-family: sans-serif; color: #333; max-width: 600px; margin: 0 auto;">
<h2>%s</h2>
%s
<p style="font-size: 12px; color: #6b7280;">Sent by Keyword Hub</p>
</body>
</html>`, html.EscapeString(title), html.EscapeString(title), content)
}

func areaLabel(area *string) string {
	if area == nil {
		return "all areas"
	}
	return *area
}

// SubmissionCreated renders the reviewer notice for a new submission.
func SubmissionCreated(sub *models.Submission) (subject, htmlBody, textBody string) {
	subject = fmt.Sprintf("[Keyword Hub] Keyword pending review: %s", sub.KeywordText)

	htmlBody = page("Keyword pending review", fmt.Sprintf(`
<p>A locally learned keyword reached its trigger threshold and needs review.</p>
<table>
<tr><td><b>Keyword</b></td><td><code>%s</code></td></tr>
<tr><td><b>Area</b></td><td>%s</td></tr>
<tr><td><b>Triggers</b></td><td>%d</td></tr>
<tr><td><b>Last reported by</b></td><td>%s</td></tr>
</table>
<p>Submission id: <code>%s</code></p>`,
		html.EscapeString(sub.KeywordText),
		html.EscapeString(areaLabel(sub.Area)),
		sub.TriggerCount,
		html.EscapeString(sub.SubmittedBy),
		sub.ID,
	))

	var text strings.Builder
	text.WriteString("A locally learned keyword reached its trigger threshold and needs review.\n\n")
	fmt.Fprintf(&text, "Keyword: %s\n", sub.KeywordText)
	fmt.Fprintf(&text, "Area: %s\n", areaLabel(sub.Area))
	fmt.Fprintf(&text, "Triggers: %d\n", sub.TriggerCount)
	fmt.Fprintf(&text, "Last reported by: %s\n", sub.SubmittedBy)
	fmt.Fprintf(&text, "Submission id: %s\n", sub.ID)
	return subject, htmlBody, text.String()
}

// SubmissionReviewed renders the notice sent after a review decision.
func SubmissionReviewed(sub *models.Submission) (subject, htmlBody, textBody string) {
	decision := "approved"
	if sub.Status == models.StatusRejected {
		decision = "rejected"
	}
	reviewer := "unknown"
	if sub.ReviewedBy != nil {
		reviewer = *sub.ReviewedBy
	}

	subject = fmt.Sprintf("[Keyword Hub] Keyword %s: %s", decision, sub.KeywordText)

	notes := ""
	if sub.ReviewNotes != "" {
		notes = fmt.Sprintf("<p><b>Notes:</b> %s</p>", html.EscapeString(sub.ReviewNotes))
	}
	htmlBody = page("Keyword "+decision, fmt.Sprintf(`
<p>The keyword <code>%s</code> (%s) was %s by %s.</p>%s`,
		html.EscapeString(sub.KeywordText),
		html.EscapeString(areaLabel(sub.Area)),
		decision,
		html.EscapeString(reviewer),
		notes,
	))

	textBody = fmt.Sprintf("The keyword %q (%s) was %s by %s.\n", sub.KeywordText, areaLabel(sub.Area), decision, reviewer)
	if sub.ReviewNotes != "" {
		textBody += "Notes: " + sub.ReviewNotes + "\n"
	}
	return subject, htmlBody, textBody
}
