package templateservice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hodei/orchestrator/pkg/domain"
	"github.com/hodei/orchestrator/pkg/hodeierr"
	"github.com/hodei/orchestrator/pkg/storage"
	"github.com/hodei/orchestrator/pkg/storage/memory"
)

func newService() (*Service, *memory.Templates) {
	repo := memory.NewTemplates()
	return New(repo), repo
}

func TestCreate_AssignsIDAndDraftStatus(t *testing.T) {
	s, _ := newService()
	id, err := s.Create(context.Background(), &domain.Template{Name: "build-image", Version: "1.0.0"})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	tpl, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.TemplateDraft, tpl.Status)
}

func TestCreate_RejectsBlankNameOrVersion(t *testing.T) {
	s, _ := newService()
	_, err := s.Create(context.Background(), &domain.Template{Name: "build-image"})
	require.Error(t, err)
	var herr *hodeierr.Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, hodeierr.KindValidation, herr.Kind)
}

func TestCreate_RejectsDuplicateNameVersion(t *testing.T) {
	s, _ := newService()
	_, err := s.Create(context.Background(), &domain.Template{Name: "build-image", Version: "1.0.0"})
	require.NoError(t, err)

	_, err = s.Create(context.Background(), &domain.Template{Name: "build-image", Version: "1.0.0"})
	require.Error(t, err)
	var herr *hodeierr.Error
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, hodeierr.KindConflict, herr.Kind)
}

func TestPublishLifecycle_OnlyPublishedIsInstantiable(t *testing.T) {
	s, _ := newService()
	id, err := s.Create(context.Background(), &domain.Template{Name: "build-image", Version: "1.0.0"})
	require.NoError(t, err)

	tpl, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, tpl.Instantiable())

	// Draft cannot go straight to Published.
	require.Error(t, s.Publish(context.Background(), id))

	require.NoError(t, s.Validate(context.Background(), id))
	require.NoError(t, s.Publish(context.Background(), id))

	tpl, err = s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, tpl.Instantiable())
	assert.Equal(t, domain.TemplatePublished, tpl.Status)
}

func TestDeprecateAndArchive(t *testing.T) {
	s, _ := newService()
	id, err := s.Create(context.Background(), &domain.Template{Name: "build-image", Version: "1.0.0"})
	require.NoError(t, err)
	require.NoError(t, s.Validate(context.Background(), id))
	require.NoError(t, s.Publish(context.Background(), id))

	require.NoError(t, s.Deprecate(context.Background(), id))
	tpl, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.TemplateDeprecated, tpl.Status)
	assert.False(t, tpl.Instantiable())

	// A deprecated template may still be republished...
	require.NoError(t, s.Publish(context.Background(), id))
	require.NoError(t, s.Deprecate(context.Background(), id))
	// ...or retired permanently.
	require.NoError(t, s.Archive(context.Background(), id))

	tpl, err = s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.TemplateArchived, tpl.Status)

	// Archived is terminal.
	require.Error(t, s.Publish(context.Background(), id))
}

func TestVersions_ReturnsEveryVersionOfAName(t *testing.T) {
	s, _ := newService()
	_, err := s.Create(context.Background(), &domain.Template{Name: "build-image", Version: "1.0.0"})
	require.NoError(t, err)
	_, err = s.Create(context.Background(), &domain.Template{Name: "build-image", Version: "1.1.0"})
	require.NoError(t, err)
	_, err = s.Create(context.Background(), &domain.Template{Name: "other", Version: "1.0.0"})
	require.NoError(t, err)

	versions, err := s.Versions(context.Background(), "build-image")
	require.NoError(t, err)
	require.Len(t, versions, 2)
}

func TestSearch_CaseInsensitiveSubstringOverNameAndTags(t *testing.T) {
	s, _ := newService()
	_, err := s.Create(context.Background(), &domain.Template{Name: "build-image", Version: "1.0.0", Tags: []string{"ci"}})
	require.NoError(t, err)
	_, err = s.Create(context.Background(), &domain.Template{Name: "deploy-service", Version: "1.0.0", Tags: []string{"CD", "prod"}})
	require.NoError(t, err)

	byName, err := s.Search(context.Background(), storage.TemplateSearchQuery{Text: "BUILD"})
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "build-image", byName[0].Name)

	byTag, err := s.Search(context.Background(), storage.TemplateSearchQuery{Text: "cd"})
	require.NoError(t, err)
	require.Len(t, byTag, 1)
	assert.Equal(t, "deploy-service", byTag[0].Name)
}

func TestRecordUsage_IncrementsCounter(t *testing.T) {
	s, _ := newService()
	id, err := s.Create(context.Background(), &domain.Template{Name: "build-image", Version: "1.0.0"})
	require.NoError(t, err)

	require.NoError(t, s.RecordUsage(context.Background(), id))
	require.NoError(t, s.RecordUsage(context.Background(), id))

	tpl, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.EqualValues(t, 2, tpl.UsageCount)
}

func TestGet_NotFound(t *testing.T) {
	s, _ := newService()
	_, err := s.Get(context.Background(), "ghost")
	require.Error(t, err)
}
