package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-results-api/internal/dto"
	"github.com/noah-isme/sma-results-api/internal/models"
	appErrors "github.com/noah-isme/sma-results-api/pkg/errors"
)

type subjectGroupStoreStub struct {
	groups  map[string]*models.SubjectGroup
	members map[string][]string
	catalog *subjectStoreStub
	refs    map[string]int
}

func newSubjectGroupStoreStub(catalog *subjectStoreStub) *subjectGroupStoreStub {
	return &subjectGroupStoreStub{
		groups:  map[string]*models.SubjectGroup{},
		members: map[string][]string{},
		catalog: catalog,
		refs:    map[string]int{},
	}
}

func (s *subjectGroupStoreStub) List(ctx context.Context, filter models.SubjectGroupFilter) ([]models.SubjectGroup, error) {
	out := []models.SubjectGroup{}
	for id := range s.groups {
		g, _ := s.FindByID(ctx, id)
		out = append(out, *g)
	}
	return out, nil
}

func (s *subjectGroupStoreStub) FindByID(ctx context.Context, id string) (*models.SubjectGroup, error) {
	g, ok := s.groups[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *g
	copied.Subjects, _ = s.catalog.FindByIDs(ctx, s.members[id])
	return &copied, nil
}

func (s *subjectGroupStoreStub) Create(ctx context.Context, group *models.SubjectGroup, subjectIDs []string) error {
	copied := *group
	s.groups[group.ID] = &copied
	s.members[group.ID] = append([]string(nil), subjectIDs...)
	return nil
}

func (s *subjectGroupStoreStub) Update(ctx context.Context, group *models.SubjectGroup, subjectIDs *[]string) error {
	if _, ok := s.groups[group.ID]; !ok {
		return sql.ErrNoRows
	}
	copied := *group
	s.groups[group.ID] = &copied
	if subjectIDs != nil {
		s.members[group.ID] = append([]string(nil), (*subjectIDs)...)
	}
	return nil
}

func (s *subjectGroupStoreStub) Delete(ctx context.Context, id string) error {
	if _, ok := s.groups[id]; !ok {
		return sql.ErrNoRows
	}
	delete(s.groups, id)
	delete(s.members, id)
	return nil
}

func (s *subjectGroupStoreStub) CountBatchReferences(ctx context.Context, id string) (int, error) {
	return s.refs[id], nil
}

func newSubjectGroupFixture() (*SubjectGroupService, *subjectGroupStoreStub) {
	catalog := &subjectStoreStub{subjects: []models.Subject{
		{ID: "sub-math", Code: "MATH", Name: "Mathematics", IsActive: true},
		{ID: "sub-eng", Code: "ENG", Name: "English", IsActive: true},
		{ID: "sub-bio", Code: "BIO", Name: "Biology", IsActive: true},
	}}
	store := newSubjectGroupStoreStub(catalog)
	return NewSubjectGroupService(store, catalog, nil, nil), store
}

func TestSubjectGroupServiceCreateKeepsMembershipOrder(t *testing.T) {
	svc, _ := newSubjectGroupFixture()

	group, err := svc.Create(context.Background(), dto.CreateSubjectGroupRequest{
		Name:       " Science ",
		SubjectIDs: []string{"sub-math", "sub-bio", "sub-math"},
	}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "Science", group.Name)
	require.Len(t, group.Subjects, 2)
	assert.Equal(t, "MATH", group.Subjects[0].Code)
	assert.Equal(t, "BIO", group.Subjects[1].Code)
	require.NotNil(t, group.CreatedBy)
}

func TestSubjectGroupServiceRejectsUnknownSubjectsAllOrNothing(t *testing.T) {
	svc, store := newSubjectGroupFixture()

	_, err := svc.Create(context.Background(), dto.CreateSubjectGroupRequest{
		Name:       "Broken",
		SubjectIDs: []string{"sub-math", "sub-ghost"},
	}, "admin-1")
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	assert.Contains(t, err.Error(), "sub-ghost")
	assert.Empty(t, store.groups)
}

func TestSubjectGroupServiceUpdateReplacesMembershipOnlyWhenGiven(t *testing.T) {
	svc, _ := newSubjectGroupFixture()
	ctx := context.Background()
	group, err := svc.Create(ctx, dto.CreateSubjectGroupRequest{Name: "Core", SubjectIDs: []string{"sub-math", "sub-eng"}}, "admin-1")
	require.NoError(t, err)

	renamed := "Core subjects"
	updated, err := svc.Update(ctx, group.ID, dto.UpdateSubjectGroupRequest{Name: &renamed})
	require.NoError(t, err)
	assert.Equal(t, "Core subjects", updated.Name)
	assert.Len(t, updated.Subjects, 2)

	ids := []string{"sub-bio"}
	updated, err = svc.Update(ctx, group.ID, dto.UpdateSubjectGroupRequest{SubjectIDs: &ids})
	require.NoError(t, err)
	require.Len(t, updated.Subjects, 1)
	assert.Equal(t, "BIO", updated.Subjects[0].Code)

	bad := []string{"sub-nope"}
	_, err = svc.Update(ctx, group.ID, dto.UpdateSubjectGroupRequest{SubjectIDs: &bad})
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
	current, err := svc.Get(ctx, group.ID)
	require.NoError(t, err)
	assert.Len(t, current.Subjects, 1, "a rejected update leaves membership untouched")
}

func TestSubjectGroupServiceDeleteRefusedWhileReferenced(t *testing.T) {
	svc, store := newSubjectGroupFixture()
	ctx := context.Background()
	group, err := svc.Create(ctx, dto.CreateSubjectGroupRequest{Name: "Core", SubjectIDs: []string{"sub-math"}}, "admin-1")
	require.NoError(t, err)

	store.refs[group.ID] = 2
	err = svc.Delete(ctx, group.ID)
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrInUse))
	assert.Contains(t, store.groups, group.ID)

	store.refs[group.ID] = 0
	require.NoError(t, svc.Delete(ctx, group.ID))
	assert.True(t, appErrors.Is(svc.Delete(ctx, group.ID), appErrors.ErrNotFound))
}
