// Package promotion tracks hits on locally learned keywords and moves them
// through review into the curated keyword set.
//
// A client keyword is Tracking until its hit count reaches its trigger
// threshold. The next trigger opens a pending Submission; approval merges
// the keyword into a server keyword, rejection leaves it tracking so a new
// submission opens on a later trigger.
package promotion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"keywordhub/internal/internalerr"
	"keywordhub/internal/metrics"
	"keywordhub/internal/models"
	"keywordhub/internal/store"
)

// Notifier is told about submission lifecycle events. Calls must not block.
type Notifier interface {
	NotifySubmissionCreated(ctx context.Context, sub *models.Submission)
	NotifySubmissionReviewed(ctx context.Context, sub *models.Submission)
}

// Invalidator drops cached keyword sets for an area.
type Invalidator interface {
	Invalidate(area *string)
}

// RuleInvalidator drops cached keyword trigger rules.
type RuleInvalidator interface {
	InvalidateRules()
}

// Pipeline runs the promotion state machine.
type Pipeline struct {
	store     store.Store
	cache     Invalidator
	rules     RuleInvalidator
	notifier  Notifier
	threshold int
	now       func() time.Time
}

// New creates a Pipeline. threshold applies to client keywords created by
// RecordTrigger; zero means models.DefaultTriggerThreshold. notifier may be nil.
func New(st store.Store, cache Invalidator, notifier Notifier, threshold int) *Pipeline {
	if threshold <= 0 {
		threshold = models.DefaultTriggerThreshold
	}
	return &Pipeline{
		store:     st,
		cache:     cache,
		notifier:  notifier,
		threshold: threshold,
		now:       time.Now,
	}
}

// SetRuleCache registers the trigger rule cache to drop after an approval
// moves trigger rules onto a server keyword. The trigger pipeline depends on
// the promotion pipeline, so it is attached after both are built.
func (p *Pipeline) SetRuleCache(rules RuleInvalidator) {
	p.rules = rules
}

// TriggerResult reports the effect of one RecordTrigger call.
type TriggerResult struct {
	Keyword  models.Keyword `json:"keyword"`
	HitCount int            `json:"hit_count"`
	// Submission is set when this trigger opened a new pending submission.
	Submission *models.Submission `json:"submission,omitempty"`
}

// RecordTrigger counts one hit on the client keyword for text in area,
// creating the keyword on first sight, and opens a submission once the
// threshold is reached and none is pending. The whole transition commits
// atomically.
func (p *Pipeline) RecordTrigger(ctx context.Context, text string, area *string, userID, triggerContext string) (*TriggerResult, error) {
	if text == "" {
		return nil, fmt.Errorf("keyword text is required: %w", internalerr.ErrValidation)
	}

	var res TriggerResult
	var created bool
	err := p.store.InTx(ctx, func(tx store.Store) error {
		kw, err := tx.FindOrCreateKeyword(ctx, p.newClientKeyword(text, area))
		if err != nil {
			return err
		}
		created = kw.HitCount == 0

		count, err := tx.IncrementHitCount(ctx, kw.ID, 1)
		if err != nil {
			return err
		}
		kw.HitCount = count

		entry := &models.KeywordTriggerLog{
			KeywordID:   kw.ID,
			Area:        area,
			UserID:      userID,
			Context:     triggerContext,
			TriggeredAt: p.now(),
		}
		if err := tx.InsertTriggerLog(ctx, entry); err != nil {
			return err
		}

		res.Keyword = *kw
		res.HitCount = count
		if !kw.ThresholdReached() {
			return nil
		}

		sub := &models.Submission{
			KeywordText:     kw.Text,
			Area:            kw.Area,
			OriginKeywordID: kw.ID,
			TriggerCount:    count,
			SubmittedBy:     userID,
			Status:          models.StatusPending,
		}
		ok, err := tx.CreateSubmission(ctx, sub)
		if err != nil {
			return err
		}
		if ok {
			res.Submission = sub
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("record trigger %q: %w", text, err)
	}

	if created && p.cache != nil {
		p.cache.Invalidate(area)
	}
	if res.Submission != nil {
		metrics.RecordSubmission(models.StatusPending)
		if p.notifier != nil {
			p.notifier.NotifySubmissionCreated(ctx, res.Submission)
		}
	}
	return &res, nil
}

func (p *Pipeline) newClientKeyword(text string, area *string) *models.Keyword {
	kind := models.KindCustom
	if area != nil {
		kind = models.KindLocal
	}
	return &models.Keyword{
		Text:             text,
		Kind:             kind,
		Priority:         models.PriorityNormal,
		Area:             area,
		Active:           true,
		Source:           models.SourceClient,
		Weight:           models.WeightClient,
		TriggerThreshold: p.threshold,
	}
}

// ReviewResult is the outcome of a review call.
type ReviewResult struct {
	Submission models.Submission `json:"submission"`
	// Keyword is the server keyword the submission was merged into. It is
	// nil for rejections and for repeated approvals.
	Keyword *models.Keyword `json:"keyword,omitempty"`
}

// Approve merges the submission into a server keyword. If a server keyword
// with the same text exists in the submission's area (or unscoped) the
// submission's trigger count is added to it, otherwise a new server keyword
// is created with that count. The originating client keyword is folded into
// the server keyword. Approving an approved submission is a no-op.
func (p *Pipeline) Approve(ctx context.Context, id uuid.UUID, reviewerID, notes string) (*ReviewResult, error) {
	var res ReviewResult
	changed := false

	err := p.store.InTx(ctx, func(tx store.Store) error {
		sub, err := tx.GetSubmission(ctx, id)
		if err != nil {
			return err
		}
		res.Submission = *sub
		switch sub.Status {
		case models.StatusApproved:
			return nil
		case models.StatusRejected:
			return fmt.Errorf("submission %s was rejected: %w", id, internalerr.ErrConflict)
		}

		p.markReviewed(sub, models.StatusApproved, reviewerID, notes)
		won, err := p.claim(ctx, tx, sub)
		if err != nil || !won {
			res.Submission = *sub
			return err
		}

		origin, err := tx.GetKeyword(ctx, sub.OriginKeywordID)
		if err != nil && !errors.Is(err, internalerr.ErrNotFound) {
			return err
		}

		server, err := p.findServerKeyword(ctx, tx, sub.KeywordText, sub.Area)
		if err != nil {
			return err
		}
		if server != nil {
			count, err := tx.IncrementHitCount(ctx, server.ID, sub.TriggerCount)
			if err != nil {
				return err
			}
			server.HitCount = count
		} else {
			server = p.newServerKeyword(sub, origin)
			if err := tx.CreateKeyword(ctx, server); err != nil {
				return err
			}
		}

		if origin != nil && origin.ID != server.ID {
			if err := tx.RepointKeywordReferences(ctx, origin.ID, server.ID); err != nil {
				return err
			}
			if origin.Active {
				if err := tx.DeactivateKeyword(ctx, origin.ID); err != nil {
					return err
				}
			}
		}

		res.Submission = *sub
		res.Keyword = server
		changed = true
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("approve submission %s: %w", id, err)
	}

	if changed {
		p.afterReview(ctx, &res.Submission)
	}
	return &res, nil
}

// Reject marks the submission rejected. The client keyword keeps its hit
// count and continues tracking. Rejecting a rejected submission is a no-op.
func (p *Pipeline) Reject(ctx context.Context, id uuid.UUID, reviewerID, notes string) (*ReviewResult, error) {
	var res ReviewResult
	changed := false

	err := p.store.InTx(ctx, func(tx store.Store) error {
		sub, err := tx.GetSubmission(ctx, id)
		if err != nil {
			return err
		}
		res.Submission = *sub
		switch sub.Status {
		case models.StatusRejected:
			return nil
		case models.StatusApproved:
			return fmt.Errorf("submission %s was approved: %w", id, internalerr.ErrConflict)
		}

		p.markReviewed(sub, models.StatusRejected, reviewerID, notes)
		won, err := p.claim(ctx, tx, sub)
		res.Submission = *sub
		changed = won
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("reject submission %s: %w", id, err)
	}

	if changed {
		p.afterReview(ctx, &res.Submission)
	}
	return &res, nil
}

// claim moves sub from pending to its review status before anything else
// in the review changes. It reports false when a concurrent review already
// decided the submission; sub then holds the stored decision, and a
// decision other than sub's is a conflict.
func (p *Pipeline) claim(ctx context.Context, tx store.Store, sub *models.Submission) (bool, error) {
	want := sub.Status
	won, err := tx.UpdateSubmissionReview(ctx, sub)
	if err != nil || won {
		return won, err
	}
	current, err := tx.GetSubmission(ctx, sub.ID)
	if err != nil {
		return false, err
	}
	*sub = *current
	if current.Status != want {
		return false, fmt.Errorf("submission %s was %s: %w", sub.ID, current.Status, internalerr.ErrConflict)
	}
	return false, nil
}

func (p *Pipeline) findServerKeyword(ctx context.Context, tx store.Store, text string, area *string) (*models.Keyword, error) {
	scopes := []*string{area}
	if area != nil {
		scopes = append(scopes, nil)
	}
	for _, scope := range scopes {
		found, err := tx.FindByText(ctx, text, scope)
		if err != nil {
			return nil, err
		}
		for i := range found {
			if found[i].IsServer() {
				return &found[i], nil
			}
		}
	}
	return nil, nil
}

func (p *Pipeline) newServerKeyword(sub *models.Submission, origin *models.Keyword) *models.Keyword {
	kw := &models.Keyword{
		Text:             sub.KeywordText,
		Kind:             models.KindGlobal,
		Priority:         models.PriorityNormal,
		Area:             sub.Area,
		Active:           true,
		Source:           models.SourceServer,
		Weight:           models.WeightServer,
		HitCount:         sub.TriggerCount,
		TriggerThreshold: p.threshold,
	}
	if sub.Area != nil {
		kw.Kind = models.KindLocal
	}
	if origin != nil {
		kw.Priority = origin.Priority
		kw.Description = origin.Description
		if origin.TriggerThreshold > 0 {
			kw.TriggerThreshold = origin.TriggerThreshold
		}
	}
	return kw
}

func (p *Pipeline) markReviewed(sub *models.Submission, status, reviewerID, notes string) {
	now := p.now()
	sub.Status = status
	sub.ReviewedBy = &reviewerID
	sub.ReviewNotes = notes
	sub.ReviewedAt = &now
}

func (p *Pipeline) afterReview(ctx context.Context, sub *models.Submission) {
	metrics.RecordSubmission(sub.Status)
	if sub.Status == models.StatusApproved {
		if p.cache != nil {
			p.cache.Invalidate(sub.Area)
		}
		if p.rules != nil {
			p.rules.InvalidateRules()
		}
	}
	if p.notifier != nil {
		p.notifier.NotifySubmissionReviewed(ctx, sub)
	}
}
