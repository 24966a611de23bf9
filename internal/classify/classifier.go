// Package classify derives a status and a recommended action from a
// single reconstructed entity. Both are pure functions of the row.
package classify

import "github.com/abhisek/cohortwatch/internal/cohort"

// Result is the classification of one entity.
type Result struct {
	Status     Status
	Action     string
	ActionRule string // name of the action rule that fired
}

// Classifier pairs a category rule table with the action rules.
type Classifier struct {
	rules   Rules
	actions []ActionRule
}

// New creates a Classifier. A nil rules table uses DefaultRules.
func New(rules Rules) *Classifier {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Classifier{rules: rules, actions: DefaultActionRules()}
}

// Classify computes the status and then the action for e.
func (c *Classifier) Classify(e *cohort.Entity) Result {
	status := c.rules.Status(e)
	action, name := RunActionRules(c.actions, &ActionInput{Entity: e, Status: status})
	return Result{Status: status, Action: action, ActionRule: name}
}
