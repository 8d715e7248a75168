package domain

import (
	"time"

	"github.com/hodei/orchestrator/pkg/hodeierr"
)

// TemplateStatus is the closed sum type driving Template's lifecycle.
type TemplateStatus string

const (
	TemplateDraft      TemplateStatus = "draft"
	TemplateValidating TemplateStatus = "validating"
	TemplatePublished  TemplateStatus = "published"
	TemplateDeprecated TemplateStatus = "deprecated"
	TemplateArchived   TemplateStatus = "archived"
)

var templateTransitions = map[TemplateStatus][]TemplateStatus{
	TemplateDraft:      {TemplateValidating},
	TemplateValidating: {TemplatePublished, TemplateDraft},
	TemplatePublished:  {TemplateDeprecated},
	TemplateDeprecated: {TemplateArchived, TemplatePublished},
	TemplateArchived:   {},
}

func (s TemplateStatus) CanTransitionTo(target TemplateStatus) bool {
	for _, allowed := range templateTransitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

// Template is a versioned job blueprint. (name, version) is unique; versions
// follow semantic versioning.
type Template struct {
	ID          string
	Name        string
	Version     string
	Description string
	Tags        []string
	Spec        []byte
	Status      TemplateStatus
	UsageCount  int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
	CreatedBy   string
}

func (t *Template) UpdateStatus(target TemplateStatus) error {
	if t.Status == target {
		return nil
	}
	if !t.Status.CanTransitionTo(target) {
		return hodeierr.BusinessRule("template %s: cannot transition %s -> %s", t.ID, t.Status, target)
	}
	t.Status = target
	t.UpdatedAt = time.Now()
	return nil
}

// Instantiable reports whether a Job may be created from this template.
func (t *Template) Instantiable() bool {
	return t.Status == TemplatePublished
}
