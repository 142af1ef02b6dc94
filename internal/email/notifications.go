package email

import (
	"context"

	"keywordhub/internal/config"
	"keywordhub/internal/models"
)

// Notifier emails reviewers about submission events.
type Notifier struct {
	service   *Service
	reviewers []string
}

// NewNotifier creates a notifier sending through service to the reviewers
// configured in REVIEWER_EMAILS.
func NewNotifier(cfg *config.Config, service *Service) *Notifier {
	return &Notifier{service: service, reviewers: cfg.ReviewerEmails}
}

// NotifySubmissionCreated tells reviewers a keyword awaits review.
func (n *Notifier) NotifySubmissionCreated(ctx context.Context, sub *models.Submission) {
	if !n.service.IsEnabled() || len(n.reviewers) == 0 {
		return
	}
	subject, htmlBody, textBody := SubmissionCreated(sub)
	n.service.SendAsync(n.reviewers, subject, htmlBody, textBody)
}

// NotifySubmissionReviewed tells reviewers about a review decision so the
// rest of the team sees it.
func (n *Notifier) NotifySubmissionReviewed(ctx context.Context, sub *models.Submission) {
	if !n.service.IsEnabled() || len(n.reviewers) == 0 {
		return
	}
	subject, htmlBody, textBody := SubmissionReviewed(sub)
	n.service.SendAsync(n.reviewers, subject, htmlBody, textBody)
}
