package rules

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"keywordhub/internal/internalerr"
	"keywordhub/internal/models"
)

// condition is a RuleCondition prepared for matching.
type condition struct {
	models.RuleCondition
	re *regexp.Regexp
}

func compileCondition(c models.RuleCondition) (condition, error) {
	cc := condition{RuleCondition: c}
	if c.Type != models.ConditionRegex {
		return cc, nil
	}
	pattern := c.Value
	if !c.CaseSensitive {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return cc, fmt.Errorf("condition %s regex %q: %v: %w", c.ID, c.Value, err, internalerr.ErrValidation)
	}
	cc.re = re
	return cc, nil
}

// match tests one condition against text.
func (c *condition) match(text string) bool {
	switch c.Type {
	case models.ConditionRegex:
		return c.re != nil && c.re.MatchString(text)
	case models.ConditionExact:
		return c.fold(strings.TrimSpace(text)) == c.fold(strings.TrimSpace(c.Value))
	case models.ConditionKeyword, models.ConditionPhrase:
		return matchMode(c.MatchMode, c.fold(text), c.fold(c.Value))
	default:
		return false
	}
}

func (c *condition) fold(s string) string {
	if c.CaseSensitive {
		return s
	}
	return strings.ToLower(s)
}

func matchMode(mode, text, value string) bool {
	switch mode {
	case models.MatchEquals:
		return text == value
	case models.MatchStartsWith:
		return strings.HasPrefix(text, value)
	case models.MatchEndsWith:
		return strings.HasSuffix(text, value)
	default:
		return strings.Contains(text, value)
	}
}

// evaluation is the outcome of testing one rule's conditions.
type evaluation struct {
	matched bool
	ids     []uuid.UUID
	score   float64
}

// evaluate applies every condition with implicit AND. A rule without
// conditions never matches.
func evaluate(conds []condition, text string) evaluation {
	ev := evaluation{matched: len(conds) > 0}
	for i := range conds {
		if conds[i].match(text) {
			ev.ids = append(ev.ids, conds[i].ID)
			ev.score += conds[i].EffectiveWeight()
		} else {
			ev.matched = false
		}
	}
	return ev
}
