package asana

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"

	"github.com/worklane/worklane/modules/core/domain/entities/user"
	"github.com/worklane/worklane/modules/integrations/domain/entitymap"
	"github.com/worklane/worklane/modules/pm/domain/entities/client"
	"github.com/worklane/worklane/modules/pm/domain/entities/project"
	"github.com/worklane/worklane/modules/pm/domain/entities/section"
	"github.com/worklane/worklane/modules/pm/domain/entities/task"
	"github.com/worklane/worklane/pkg/composables"
)

var errFakeNotFound = errors.New("not found")

// noopTx satisfies pgx.Tx for contexts handed to in-memory fakes; none of
// its methods are ever called because RLS is disabled in tests.
type noopTx struct{ pgx.Tx }

func tenantCtx() context.Context {
	ctx := composables.WithTenantID(context.Background(), uuid.New())
	return composables.WithTx(ctx, noopTx{})
}

type fakeAPI struct {
	users    []User
	projects map[string]*Project
	sections map[string][]Section
	tasks    map[string][]Task
	subtasks map[string][]Task
}

func (f *fakeAPI) WorkspaceUsers(_ context.Context, _ string) ([]User, error) {
	return f.users, nil
}

func (f *fakeAPI) Project(_ context.Context, gid string) (*Project, error) {
	p, ok := f.projects[gid]
	if !ok {
		return nil, errFakeNotFound
	}
	return p, nil
}

func (f *fakeAPI) ProjectSections(_ context.Context, gid string) ([]Section, error) {
	return f.sections[gid], nil
}

func (f *fakeAPI) ProjectTasks(_ context.Context, gid string) ([]Task, error) {
	return f.tasks[gid], nil
}

func (f *fakeAPI) Subtasks(_ context.Context, gid string) ([]Task, error) {
	return f.subtasks[gid], nil
}

// newWorkspaceFixture covers every entity kind: two users, one project with
// a team, two sections and two top-level tasks, one of which has a subtask.
func newWorkspaceFixture() *fakeAPI {
	return &fakeAPI{
		users: []User{
			{GID: "u-ada", Name: "Ada Lovelace", Email: "ada@initech.test"},
			{GID: "u-grace", Name: "Grace Hopper", Email: "grace@initech.test"},
		},
		projects: map[string]*Project{
			"p-apollo": {GID: "p-apollo", Name: "Apollo", Notes: "Lunar program", Team: &Team{GID: "t-initech", Name: "Initech"}},
		},
		sections: map[string][]Section{
			"p-apollo": {
				{GID: "s-todo", Name: "To Do"},
				{GID: "s-done", Name: "Done"},
			},
		},
		tasks: map[string][]Task{
			"p-apollo": {
				{
					GID: "t-hull", Name: "Design hull", Notes: "first pass", DueOn: "2026-09-01",
					Assignee:    &userRef{GID: "u-ada"},
					Memberships: []membership{{Section: &sectionRef{GID: "s-todo"}}},
					NumSubtasks: 1,
				},
				{
					GID: "t-fuel", Name: "Order fuel", Completed: true,
					Memberships: []membership{{Section: &sectionRef{GID: "s-done"}}},
				},
			},
		},
		subtasks: map[string][]Task{
			"t-hull": {
				{GID: "t-rivets", Name: "Count rivets", Parent: &taskRef{GID: "t-hull"}},
			},
		},
	}
}

type memUserRepo struct {
	items []*user.User
}

func (r *memUserRepo) GetByID(_ context.Context, id uuid.UUID) (*user.User, error) {
	for _, u := range r.items {
		if u.ID() == id {
			return u, nil
		}
	}
	return nil, errFakeNotFound
}

func (r *memUserRepo) GetByEmail(_ context.Context, email string) (*user.User, error) {
	for _, u := range r.items {
		if strings.EqualFold(u.Email(), email) {
			return u, nil
		}
	}
	return nil, errFakeNotFound
}

func (r *memUserRepo) GetAll(_ context.Context) ([]*user.User, error) {
	return r.items, nil
}

func (r *memUserRepo) Create(_ context.Context, u *user.User) (*user.User, error) {
	r.items = append(r.items, u)
	return u, nil
}

func (r *memUserRepo) Update(_ context.Context, u *user.User) (*user.User, error) {
	for i, existing := range r.items {
		if existing.ID() == u.ID() {
			r.items[i] = u
			return u, nil
		}
	}
	return nil, errFakeNotFound
}

func (r *memUserRepo) Delete(_ context.Context, id uuid.UUID) error {
	for i, existing := range r.items {
		if existing.ID() == id {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return nil
		}
	}
	return errFakeNotFound
}

type memClientRepo struct {
	items []*client.Client
}

func (r *memClientRepo) GetByID(_ context.Context, id uuid.UUID) (*client.Client, error) {
	for _, c := range r.items {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, errFakeNotFound
}

func (r *memClientRepo) GetByCompanyName(_ context.Context, name string) (*client.Client, error) {
	for _, c := range r.items {
		if strings.EqualFold(c.CompanyName, name) {
			return c, nil
		}
	}
	return nil, errFakeNotFound
}

func (r *memClientRepo) GetAll(_ context.Context) ([]*client.Client, error) {
	return r.items, nil
}

func (r *memClientRepo) GetPaginated(_ context.Context, _ *client.FindParams) ([]*client.Client, error) {
	return r.items, nil
}

func (r *memClientRepo) Create(_ context.Context, c *client.Client) (*client.Client, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	r.items = append(r.items, c)
	return c, nil
}

func (r *memClientRepo) Update(_ context.Context, c *client.Client) (*client.Client, error) {
	for i, existing := range r.items {
		if existing.ID == c.ID {
			r.items[i] = c
			return c, nil
		}
	}
	return nil, errFakeNotFound
}

func (r *memClientRepo) Delete(_ context.Context, id uuid.UUID) error {
	for i, existing := range r.items {
		if existing.ID == id {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return nil
		}
	}
	return errFakeNotFound
}

type memProjectRepo struct {
	items []*project.Project
}

func (r *memProjectRepo) GetByID(_ context.Context, id uuid.UUID) (*project.Project, error) {
	for _, p := range r.items {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, errFakeNotFound
}

func (r *memProjectRepo) GetByName(_ context.Context, name string) (*project.Project, error) {
	for _, p := range r.items {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return nil, errFakeNotFound
}

func (r *memProjectRepo) GetAll(_ context.Context) ([]*project.Project, error) {
	return r.items, nil
}

func (r *memProjectRepo) Create(_ context.Context, p *project.Project) (*project.Project, error) {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.Status == "" {
		p.Status = project.StatusActive
	}
	r.items = append(r.items, p)
	return p, nil
}

func (r *memProjectRepo) Update(_ context.Context, p *project.Project) (*project.Project, error) {
	for i, existing := range r.items {
		if existing.ID == p.ID {
			r.items[i] = p
			return p, nil
		}
	}
	return nil, errFakeNotFound
}

func (r *memProjectRepo) Delete(_ context.Context, id uuid.UUID) error {
	for i, existing := range r.items {
		if existing.ID == id {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return nil
		}
	}
	return errFakeNotFound
}

type memSectionRepo struct {
	items []*section.Section
}

func (r *memSectionRepo) GetByID(_ context.Context, id uuid.UUID) (*section.Section, error) {
	for _, s := range r.items {
		if s.ID == id {
			return s, nil
		}
	}
	return nil, errFakeNotFound
}

func (r *memSectionRepo) GetByProjectAndName(_ context.Context, projectID uuid.UUID, name string) (*section.Section, error) {
	for _, s := range r.items {
		if s.ProjectID == projectID && strings.EqualFold(s.Name, name) {
			return s, nil
		}
	}
	return nil, errFakeNotFound
}

func (r *memSectionRepo) ListByProject(_ context.Context, projectID uuid.UUID) ([]*section.Section, error) {
	var out []*section.Section
	for _, s := range r.items {
		if s.ProjectID == projectID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *memSectionRepo) Create(_ context.Context, s *section.Section) (*section.Section, error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	r.items = append(r.items, s)
	return s, nil
}

func (r *memSectionRepo) Update(_ context.Context, s *section.Section) (*section.Section, error) {
	for i, existing := range r.items {
		if existing.ID == s.ID {
			r.items[i] = s
			return s, nil
		}
	}
	return nil, errFakeNotFound
}

func (r *memSectionRepo) Delete(_ context.Context, id uuid.UUID) error {
	for i, existing := range r.items {
		if existing.ID == id {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return nil
		}
	}
	return errFakeNotFound
}

type memTaskRepo struct {
	items []*task.Task
}

func (r *memTaskRepo) GetByID(_ context.Context, id uuid.UUID) (*task.Task, error) {
	for _, t := range r.items {
		if t.ID == id {
			return t, nil
		}
	}
	return nil, errFakeNotFound
}

func (r *memTaskRepo) GetByProjectAndTitle(_ context.Context, projectID uuid.UUID, title string) (*task.Task, error) {
	for _, t := range r.items {
		if t.ProjectID == projectID && strings.EqualFold(t.Title, title) {
			return t, nil
		}
	}
	return nil, errFakeNotFound
}

func (r *memTaskRepo) GetAll(_ context.Context) ([]*task.Task, error) {
	return r.items, nil
}

func (r *memTaskRepo) ListByProject(_ context.Context, projectID uuid.UUID) ([]*task.Task, error) {
	var out []*task.Task
	for _, t := range r.items {
		if t.ProjectID == projectID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (r *memTaskRepo) Create(_ context.Context, t *task.Task) (*task.Task, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	r.items = append(r.items, t)
	return t, nil
}

func (r *memTaskRepo) Update(_ context.Context, t *task.Task) (*task.Task, error) {
	for i, existing := range r.items {
		if existing.ID == t.ID {
			r.items[i] = t
			return t, nil
		}
	}
	return nil, errFakeNotFound
}

func (r *memTaskRepo) Delete(_ context.Context, id uuid.UUID) error {
	for i, existing := range r.items {
		if existing.ID == id {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return nil
		}
	}
	return errFakeNotFound
}

type memMappingRepo struct {
	items map[string]*entitymap.Mapping
}

func newMemMappingRepo() *memMappingRepo {
	return &memMappingRepo{items: map[string]*entitymap.Mapping{}}
}

func mappingKey(provider, entityType, providerEntityID string) string {
	return provider + "/" + entityType + "/" + providerEntityID
}

func (r *memMappingRepo) Get(_ context.Context, provider, entityType, providerEntityID string) (*entitymap.Mapping, error) {
	if m, ok := r.items[mappingKey(provider, entityType, providerEntityID)]; ok {
		return m, nil
	}
	return nil, entitymap.ErrNotFound
}

func (r *memMappingRepo) Upsert(_ context.Context, m *entitymap.Mapping) (*entitymap.Mapping, error) {
	r.items[mappingKey(m.Provider, m.EntityType, m.ProviderEntityID)] = m
	return m, nil
}

func (r *memMappingRepo) Delete(_ context.Context, provider, entityType, providerEntityID string) error {
	delete(r.items, mappingKey(provider, entityType, providerEntityID))
	return nil
}

type memStores struct {
	users    *memUserRepo
	clients  *memClientRepo
	projects *memProjectRepo
	sections *memSectionRepo
	tasks    *memTaskRepo
	mappings *memMappingRepo
}

func newMemStores() *memStores {
	return &memStores{
		users:    &memUserRepo{},
		clients:  &memClientRepo{},
		projects: &memProjectRepo{},
		sections: &memSectionRepo{},
		tasks:    &memTaskRepo{},
		mappings: newMemMappingRepo(),
	}
}

func (m *memStores) repos() Repos {
	return Repos{
		Users:    m.users,
		Clients:  m.clients,
		Projects: m.projects,
		Sections: m.sections,
		Tasks:    m.tasks,
		Mappings: m.mappings,
	}
}

func (m *memStores) taskByTitle(t *testing.T, title string) *task.Task {
	t.Helper()
	for _, item := range m.tasks.items {
		if item.Title == title {
			return item
		}
	}
	t.Fatalf("no task titled %q", title)
	return nil
}

func runImport(t *testing.T, api API, stores *memStores, opts PipelineOptions) *RunSummary {
	t.Helper()
	p, err := NewPipeline(PipelineConfig{API: api, Repos: stores.repos(), Options: opts})
	require.NoError(t, err)
	sum, err := p.Run(tenantCtx(), RunInput{WorkspaceGID: "w-main", ProjectGIDs: []string{"p-apollo"}})
	require.NoError(t, err)
	return sum
}

func TestNewPipeline_Validation(t *testing.T) {
	t.Parallel()

	_, err := NewPipeline(PipelineConfig{Repos: newMemStores().repos()})
	require.Error(t, err)

	repos := newMemStores().repos()
	repos.Tasks = nil
	_, err = NewPipeline(PipelineConfig{API: &fakeAPI{}, Repos: repos})
	require.Error(t, err)

	_, err = NewPipeline(PipelineConfig{API: &fakeAPI{}, Repos: newMemStores().repos()})
	require.NoError(t, err)
}

func TestPipeline_RunInputValidation(t *testing.T) {
	t.Parallel()

	p, err := NewPipeline(PipelineConfig{API: &fakeAPI{}, Repos: newMemStores().repos()})
	require.NoError(t, err)

	_, err = p.Run(tenantCtx(), RunInput{ProjectGIDs: []string{"p-apollo"}})
	require.Error(t, err)

	_, err = p.Run(tenantCtx(), RunInput{WorkspaceGID: "w-main"})
	require.Error(t, err)
}

func TestPipeline_ImportsWorkspace(t *testing.T) {
	t.Parallel()

	stores := newMemStores()
	var phases []string
	p, err := NewPipeline(PipelineConfig{
		API:     newWorkspaceFixture(),
		Repos:   stores.repos(),
		Options: PipelineOptions{AutoCreateClients: true},
		OnPhase: func(phase string) { phases = append(phases, phase) },
	})
	require.NoError(t, err)

	sum, err := p.Run(tenantCtx(), RunInput{WorkspaceGID: "w-main", ProjectGIDs: []string{"p-apollo"}})
	require.NoError(t, err)

	require.Empty(t, sum.Errors)
	require.Equal(t, sum.Validate, sum.Execute)
	require.Equal(t, EntityCounts{Create: 2}, sum.Execute.Users)
	require.Equal(t, EntityCounts{Create: 1}, sum.Execute.Clients)
	require.Equal(t, EntityCounts{Create: 1}, sum.Execute.Projects)
	require.Equal(t, EntityCounts{Create: 2}, sum.Execute.Sections)
	require.Equal(t, EntityCounts{Create: 3}, sum.Execute.Tasks)

	require.Len(t, stores.users.items, 2)
	require.Len(t, stores.clients.items, 1)
	require.Len(t, stores.projects.items, 1)
	require.Len(t, stores.sections.items, 2)
	require.Len(t, stores.tasks.items, 3)
	require.Len(t, stores.mappings.items, 9)

	proj := stores.projects.items[0]
	require.Equal(t, "Apollo", proj.Name)
	require.Equal(t, "Lunar program", proj.Description)
	require.Equal(t, project.StatusActive, proj.Status)
	require.NotNil(t, proj.ClientID)
	require.Equal(t, stores.clients.items[0].ID, *proj.ClientID)

	hull := stores.taskByTitle(t, "Design hull")
	require.Equal(t, proj.ID, hull.ProjectID)
	require.NotNil(t, hull.AssigneeID)
	require.NotNil(t, hull.SectionID)
	require.Nil(t, hull.ParentTaskID)
	require.NotNil(t, hull.DueAt)
	require.Equal(t, time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC), hull.DueAt.UTC())

	rivets := stores.taskByTitle(t, "Count rivets")
	require.Equal(t, proj.ID, rivets.ProjectID)
	require.NotNil(t, rivets.ParentTaskID)
	require.Equal(t, hull.ID, *rivets.ParentTaskID)
	require.Nil(t, rivets.SectionID)

	require.Equal(t, "fetching workspace users", phases[0])
	require.Contains(t, phases, "fetching project 1/1")
	require.Contains(t, phases, "validating users")
	require.Contains(t, phases, "importing users")
	require.Contains(t, phases, "importing subtasks for Apollo")
}

func TestPipeline_SecondRunChangesNothing(t *testing.T) {
	t.Parallel()

	stores := newMemStores()
	api := newWorkspaceFixture()
	runImport(t, api, stores, PipelineOptions{AutoCreateClients: true})

	sum := runImport(t, api, stores, PipelineOptions{AutoCreateClients: true})

	require.Empty(t, sum.Errors)
	require.Equal(t, sum.Validate, sum.Execute)
	require.Equal(t, EntityCounts{Skip: 2}, sum.Execute.Users)
	require.Equal(t, EntityCounts{Skip: 1}, sum.Execute.Clients)
	require.Equal(t, EntityCounts{Skip: 1}, sum.Execute.Projects)
	require.Equal(t, EntityCounts{Skip: 2}, sum.Execute.Sections)
	require.Equal(t, EntityCounts{Skip: 3}, sum.Execute.Tasks)

	require.Len(t, stores.users.items, 2)
	require.Len(t, stores.clients.items, 1)
	require.Len(t, stores.projects.items, 1)
	require.Len(t, stores.sections.items, 2)
	require.Len(t, stores.tasks.items, 3)
}

func TestPipeline_AdoptsExistingRowsByNaturalKey(t *testing.T) {
	t.Parallel()

	stores := newMemStores()
	existingUser := user.New("ADA@initech.test", user.WithName("Ada", "Byron"))
	stores.users.items = append(stores.users.items, existingUser)
	stores.clients.items = append(stores.clients.items, &client.Client{ID: uuid.New(), CompanyName: "initech"})
	existingProject := &project.Project{ID: uuid.New(), Name: "apollo", Status: project.StatusActive}
	stores.projects.items = append(stores.projects.items, existingProject)
	stores.sections.items = append(stores.sections.items, &section.Section{
		ID: uuid.New(), ProjectID: existingProject.ID, Name: "to do",
	})
	existingTask := &task.Task{ID: uuid.New(), ProjectID: existingProject.ID, Title: "design hull"}
	stores.tasks.items = append(stores.tasks.items, existingTask)

	sum := runImport(t, newWorkspaceFixture(), stores, PipelineOptions{AutoCreateClients: true})

	require.Empty(t, sum.Errors)
	require.Equal(t, EntityCounts{Create: 1, Skip: 1}, sum.Execute.Users)
	require.Equal(t, EntityCounts{Skip: 1}, sum.Execute.Clients)
	require.Equal(t, EntityCounts{Skip: 1}, sum.Execute.Projects)
	require.Equal(t, EntityCounts{Create: 1, Skip: 1}, sum.Execute.Sections)
	require.Equal(t, EntityCounts{Create: 2, Skip: 1}, sum.Execute.Tasks)

	// Adoption links without rewriting fields.
	require.Equal(t, "Byron", existingUser.LastName())
	require.Len(t, stores.users.items, 2)
	require.Len(t, stores.clients.items, 1)
	require.Len(t, stores.projects.items, 1)
	require.Len(t, stores.mappings.items, 9)

	m, err := stores.mappings.Get(context.Background(), Provider, entitymap.EntityTask, "t-hull")
	require.NoError(t, err)
	require.Equal(t, existingTask.ID, m.LocalEntityID)

	rivets := stores.taskByTitle(t, "Count rivets")
	require.NotNil(t, rivets.ParentTaskID)
	require.Equal(t, existingTask.ID, *rivets.ParentTaskID)
}

func TestPipeline_AppliesRemoteChangesOnRerun(t *testing.T) {
	t.Parallel()

	stores := newMemStores()
	api := newWorkspaceFixture()
	runImport(t, api, stores, PipelineOptions{AutoCreateClients: true})

	api.users[0].Name = "Ada King"
	api.projects["p-apollo"].Notes = "Lunar program, phase two"
	api.projects["p-apollo"].Team.Name = "Initech GmbH"
	api.tasks["p-apollo"][0].DueOn = "2026-09-15"
	api.tasks["p-apollo"][1].Completed = false

	sum := runImport(t, api, stores, PipelineOptions{AutoCreateClients: true})

	require.Empty(t, sum.Errors)
	require.Equal(t, sum.Validate, sum.Execute)
	require.Equal(t, EntityCounts{Update: 1, Skip: 1}, sum.Execute.Users)
	require.Equal(t, EntityCounts{Update: 1}, sum.Execute.Clients)
	require.Equal(t, EntityCounts{Update: 1}, sum.Execute.Projects)
	require.Equal(t, EntityCounts{Skip: 2}, sum.Execute.Sections)
	require.Equal(t, EntityCounts{Update: 2, Skip: 1}, sum.Execute.Tasks)

	require.Len(t, stores.users.items, 2)
	require.Len(t, stores.tasks.items, 3)

	ada, err := stores.users.GetByEmail(context.Background(), "ada@initech.test")
	require.NoError(t, err)
	require.Equal(t, "King", ada.LastName())

	require.Equal(t, "Lunar program, phase two", stores.projects.items[0].Description)
	require.Equal(t, "Initech GmbH", stores.clients.items[0].CompanyName)

	hull := stores.taskByTitle(t, "Design hull")
	require.Equal(t, time.Date(2026, 9, 15, 0, 0, 0, 0, time.UTC), hull.DueAt.UTC())
	require.False(t, stores.taskByTitle(t, "Order fuel").Completed)
}

func TestPipeline_ClientMissWithoutAutoCreate(t *testing.T) {
	t.Parallel()

	stores := newMemStores()
	sum := runImport(t, newWorkspaceFixture(), stores, PipelineOptions{AutoCreateClients: false})

	require.Equal(t, EntityCounts{Errors: 1}, sum.Execute.Clients)
	require.Len(t, stores.clients.items, 0)

	require.Len(t, sum.Errors, 1)
	require.Equal(t, CodeClientNotFound, sum.Errors[0].Code)
	require.Equal(t, "Initech", sum.Errors[0].Name)

	// The project is still imported, just without a client link.
	require.Len(t, stores.projects.items, 1)
	require.Nil(t, stores.projects.items[0].ClientID)
}

func TestPipeline_BadRefsAreRecordedNotFatal(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		users: []User{
			{GID: "u-ghost", Name: "Ghost"}, // no email
		},
		projects: map[string]*Project{
			"p-apollo": {GID: "p-apollo", Name: "Apollo"},
		},
		tasks: map[string][]Task{
			"p-apollo": {
				{GID: "t-solo", Name: "Haunt the basement", Assignee: &userRef{GID: "u-ghost"}},
			},
		},
	}
	stores := newMemStores()
	sum := runImport(t, api, stores, PipelineOptions{})

	require.Equal(t, EntityCounts{Errors: 1}, sum.Execute.Users)
	require.Equal(t, EntityCounts{Create: 1, Errors: 1}, sum.Execute.Tasks)

	codes := make([]string, 0, len(sum.Errors))
	for _, e := range sum.Errors {
		codes = append(codes, e.Code)
	}
	require.ElementsMatch(t, []string{CodeUserInvalid, CodeAssigneeNotFound}, codes)

	require.Empty(t, stores.users.items)
	solo := stores.taskByTitle(t, "Haunt the basement")
	require.Nil(t, solo.AssigneeID)
}

func TestPipeline_CancelStopsBetweenBatches(t *testing.T) {
	t.Parallel()

	stores := newMemStores()
	cancelled := false
	p, err := NewPipeline(PipelineConfig{
		API:   newWorkspaceFixture(),
		Repos: stores.repos(),
		OnPhase: func(phase string) {
			if phase == "validating users" {
				cancelled = true
			}
		},
		IsCancelled: func() bool { return cancelled },
	})
	require.NoError(t, err)

	_, err = p.Run(tenantCtx(), RunInput{WorkspaceGID: "w-main", ProjectGIDs: []string{"p-apollo"}})
	require.ErrorIs(t, err, ErrCancelled)

	require.Empty(t, stores.users.items)
	require.Empty(t, stores.projects.items)
	require.Empty(t, stores.mappings.items)
}

func TestPipeline_ArchivedProjectStatus(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{
		projects: map[string]*Project{
			"p-apollo": {GID: "p-apollo", Name: "Apollo", Archived: true},
		},
	}
	stores := newMemStores()
	sum := runImport(t, api, stores, PipelineOptions{})

	require.Equal(t, EntityCounts{Create: 1}, sum.Execute.Projects)
	require.Equal(t, project.StatusArchived, stores.projects.items[0].Status)
}

func TestSplitName(t *testing.T) {
	t.Parallel()

	cases := []struct {
		full  string
		first string
		last  string
	}{
		{"Ada Lovelace", "Ada", "Lovelace"},
		{"Ada", "Ada", ""},
		{"Ada Byron King", "Ada", "Byron King"},
		{"  Ada   Lovelace  ", "Ada", "Lovelace"},
		{"", "", ""},
	}
	for _, tc := range cases {
		first, last := splitName(tc.full)
		if first != tc.first || last != tc.last {
			t.Errorf("splitName(%q) = %q, %q; want %q, %q", tc.full, first, last, tc.first, tc.last)
		}
	}
}

func TestParseDueOn(t *testing.T) {
	t.Parallel()

	require.Nil(t, parseDueOn(""))
	require.Nil(t, parseDueOn("not a date"))
	got := parseDueOn("2026-03-09")
	require.NotNil(t, got)
	require.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), got.UTC())
}
