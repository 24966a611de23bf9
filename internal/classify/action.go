package classify

import (
	"fmt"

	"github.com/abhisek/cohortwatch/internal/cohort"
)

// ActionInput is what an ActionRule sees: the reconstructed entity and
// its already computed status.
type ActionInput struct {
	Entity *cohort.Entity
	Status Status
}

// ActionRule proposes a recommended action, or ("", false) if the rule
// does not apply.
type ActionRule interface {
	Name() string
	Recommend(in *ActionInput) (string, bool)
}

// DefaultActionRules returns rules in evaluation order. Stage checks come
// first so that Offer and Interviewing override any status.
func DefaultActionRules() []ActionRule {
	return []ActionRule{
		&TerminalStageRule{},
		&InterviewingRule{},
		&OnTrackRule{},
		&BehindRule{},
		&AtRiskRule{},
	}
}

// RunActionRules executes rules in order and returns the first match and
// the name of the rule that produced it.
func RunActionRules(rules []ActionRule, in *ActionInput) (string, string) {
	for _, r := range rules {
		if action, ok := r.Recommend(in); ok {
			return action, r.Name()
		}
	}
	return "", ""
}

// RecommendAction returns the action for e under the default rules.
func RecommendAction(e *cohort.Entity, status Status) string {
	action, _ := RunActionRules(DefaultActionRules(), &ActionInput{Entity: e, Status: status})
	return action
}

// TerminalStageRule fires for entities that already hold an offer.
type TerminalStageRule struct{}

func (r *TerminalStageRule) Name() string { return "terminal-stage" }

func (r *TerminalStageRule) Recommend(in *ActionInput) (string, bool) {
	if in.Entity.Stage.Terminal() {
		return "No action: Celebrate + optional offer evaluation resources", true
	}
	return "", false
}

// InterviewingRule fires for entities in the interview stage.
type InterviewingRule struct{}

func (r *InterviewingRule) Name() string { return "interviewing" }

func (r *InterviewingRule) Recommend(in *ActionInput) (string, bool) {
	if in.Entity.Stage == cohort.StageInterviewing {
		return "Recommend: Interview prep / mock interview resources", true
	}
	return "", false
}

// OnTrackRule covers every On Track entity.
type OnTrackRule struct{}

func (r *OnTrackRule) Name() string { return "on-track" }

func (r *OnTrackRule) Recommend(in *ActionInput) (string, bool) {
	if in.Status != StatusOnTrack {
		return "", false
	}
	if in.Entity.Stage == cohort.StageApplying {
		return fmt.Sprintf("Recommend: %s recruiting tips + next relevant workshop", in.Entity.Category), true
	}
	return "Recommend: Light-touch resource roundup", true
}

// BehindRule covers every Behind entity.
type BehindRule struct{}

func (r *BehindRule) Name() string { return "behind" }

func (r *BehindRule) Recommend(in *ActionInput) (string, bool) {
	if in.Status != StatusBehind {
		return "", false
	}
	if !in.Entity.Engaged {
		return fmt.Sprintf("Send: %s timeline reminder + top 2 workshops to attend", in.Entity.Category), true
	}
	return fmt.Sprintf("Recommend: Next-step checklist for %s", in.Entity.Category), true
}

// AtRiskRule is the fallback and always matches.
type AtRiskRule struct{}

func (r *AtRiskRule) Name() string { return "at-risk" }

func (r *AtRiskRule) Recommend(in *ActionInput) (string, bool) {
	if !in.Entity.Engaged {
		return fmt.Sprintf("Send: High-urgency nudge + 'start here' resource path for %s", in.Entity.Category), true
	}
	return fmt.Sprintf("Recommend: Targeted support bundle for %s", in.Entity.Category), true
}
