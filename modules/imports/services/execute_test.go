package services

import (
	"context"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/worklane/worklane/modules/core/domain/entities/user"
	"github.com/worklane/worklane/modules/imports/domain/importjob"
	"github.com/worklane/worklane/modules/imports/domain/sheet"
	"github.com/worklane/worklane/modules/pm/domain/entities/client"
	"github.com/worklane/worklane/modules/pm/domain/entities/project"
	"github.com/worklane/worklane/modules/pm/domain/entities/section"
	"github.com/worklane/worklane/modules/pm/domain/entities/task"
	"github.com/worklane/worklane/modules/pm/domain/entities/timeentry"
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

type memUserRepo struct {
	items     []*user.User
	createErr error
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
	if r.createErr != nil {
		return nil, r.createErr
	}
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
	items     []*client.Client
	createErr error
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
	if r.createErr != nil {
		return nil, r.createErr
	}
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
	// panicOnTitle simulates an unexpected store crash for row isolation
	// tests.
	panicOnTitle string
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
	if r.panicOnTitle != "" && strings.EqualFold(t.Title, r.panicOnTitle) {
		panic("simulated store failure")
	}
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

type memTimeEntryRepo struct {
	items []*timeentry.TimeEntry
}

func (r *memTimeEntryRepo) GetByID(_ context.Context, id uuid.UUID) (*timeentry.TimeEntry, error) {
	for _, e := range r.items {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, errFakeNotFound
}

func (r *memTimeEntryRepo) GetPaginated(_ context.Context, _ *timeentry.FindParams) ([]*timeentry.TimeEntry, error) {
	return r.items, nil
}

func (r *memTimeEntryRepo) Create(_ context.Context, e *timeentry.TimeEntry) (*timeentry.TimeEntry, error) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	r.items = append(r.items, e)
	return e, nil
}

func (r *memTimeEntryRepo) Delete(_ context.Context, id uuid.UUID) error {
	for i, existing := range r.items {
		if existing.ID == id {
			r.items = append(r.items[:i], r.items[i+1:]...)
			return nil
		}
	}
	return errFakeNotFound
}

type memRepos struct {
	users    *memUserRepo
	clients  *memClientRepo
	projects *memProjectRepo
	sections *memSectionRepo
	tasks    *memTaskRepo
	entries  *memTimeEntryRepo
}

func newMemRepos() *memRepos {
	return &memRepos{
		users:    &memUserRepo{},
		clients:  &memClientRepo{},
		projects: &memProjectRepo{},
		sections: &memSectionRepo{},
		tasks:    &memTaskRepo{},
		entries:  &memTimeEntryRepo{},
	}
}

func (m *memRepos) bundle() Repos {
	return Repos{
		Users:       m.users,
		Clients:     m.clients,
		Projects:    m.projects,
		Sections:    m.sections,
		Tasks:       m.tasks,
		TimeEntries: m.entries,
	}
}

func TestExecuteRows_CreatesAndSkips(t *testing.T) {
	t.Parallel()

	mem := newMemRepos()
	mem.clients.items = append(mem.clients.items, &client.Client{ID: uuid.New(), CompanyName: "Globex"})

	summary, errorRows, err := executeRows(
		tenantCtx(),
		mem.bundle(),
		sheet.EntityTypeClients,
		[]string{"companyName"},
		[][]string{{"Acme"}, {"acme"}, {"GLOBEX"}},
		passthrough("companyName"),
		importjob.Options{},
		0,
		nil,
	)
	require.NoError(t, err)

	require.Equal(t, 1, summary.Created)
	require.Equal(t, 2, summary.Skipped)
	require.Equal(t, 0, summary.Failed)
	require.Empty(t, errorRows)
	require.Len(t, mem.clients.items, 2)
}

func TestExecuteRows_AutoCreatePrePass(t *testing.T) {
	t.Parallel()

	mem := newMemRepos()
	cols := []string{"title", "projectName", "assigneeEmail"}
	rows := [][]string{
		{"Ship it", "Apollo", "bob@example.com"},
		{"Write docs", "Apollo", "bob@example.com"},
	}

	summary, errorRows, err := executeRows(
		tenantCtx(),
		mem.bundle(),
		sheet.EntityTypeTasks,
		cols,
		rows,
		passthrough(cols...),
		importjob.Options{AutoCreateMissing: true},
		0,
		nil,
	)
	require.NoError(t, err)

	require.Equal(t, 2, summary.Created)
	require.Equal(t, 0, summary.Failed)
	require.Empty(t, errorRows)

	// The pre-pass deduplicated the references: one project, one user.
	require.Len(t, mem.projects.items, 1)
	require.Equal(t, "Apollo", mem.projects.items[0].Name)
	require.Len(t, mem.users.items, 1)
	require.Equal(t, "bob@example.com", mem.users.items[0].Email())

	require.Len(t, mem.tasks.items, 2)
	for _, created := range mem.tasks.items {
		require.Equal(t, mem.projects.items[0].ID, created.ProjectID)
		require.NotNil(t, created.AssigneeID)
		require.Equal(t, mem.users.items[0].ID(), *created.AssigneeID)
	}
}

func TestExecuteRows_MissingProjectFailsWithoutAutoCreate(t *testing.T) {
	t.Parallel()

	mem := newMemRepos()
	summary, errorRows, err := executeRows(
		tenantCtx(),
		mem.bundle(),
		sheet.EntityTypeTasks,
		[]string{"title", "projectName"},
		[][]string{{"Ship it", "Apollo"}},
		passthrough("title", "projectName"),
		importjob.Options{},
		0,
		nil,
	)
	require.NoError(t, err)

	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 0, summary.Created)
	require.Len(t, errorRows, 1)
	require.Equal(t, importjob.CodeProjectNotFound, errorRows[0].Code)
	require.Equal(t, "Apollo / Ship it", errorRows[0].PrimaryKey)
	require.Equal(t, 1, errorRows[0].Row)
	require.Empty(t, mem.tasks.items)
}

func TestExecuteRows_RowIsolationOnPanic(t *testing.T) {
	t.Parallel()

	mem := newMemRepos()
	mem.projects.items = append(mem.projects.items, &project.Project{ID: uuid.New(), Name: "Apollo"})
	mem.tasks.panicOnTitle = "boom"

	summary, errorRows, err := executeRows(
		tenantCtx(),
		mem.bundle(),
		sheet.EntityTypeTasks,
		[]string{"title", "projectName"},
		[][]string{{"boom", "Apollo"}, {"fine", "Apollo"}},
		passthrough("title", "projectName"),
		importjob.Options{},
		0,
		nil,
	)
	require.NoError(t, err)

	require.Equal(t, 1, summary.Failed)
	require.Equal(t, 1, summary.Created)
	require.Len(t, errorRows, 1)
	require.Equal(t, importjob.CodeDBError, errorRows[0].Code)
	require.Equal(t, 1, errorRows[0].Row)
	require.Len(t, mem.tasks.items, 1)
	require.Equal(t, "fine", mem.tasks.items[0].Title)
}

func TestExecuteRows_StoreErrorBecomesDBError(t *testing.T) {
	t.Parallel()

	mem := newMemRepos()
	mem.clients.createErr = errors.New("connection reset")

	summary, errorRows, err := executeRows(
		tenantCtx(),
		mem.bundle(),
		sheet.EntityTypeClients,
		[]string{"companyName"},
		[][]string{{"Acme"}},
		passthrough("companyName"),
		importjob.Options{},
		0,
		nil,
	)
	require.NoError(t, err)

	require.Equal(t, 1, summary.Failed)
	require.Len(t, errorRows, 1)
	require.Equal(t, importjob.CodeDBError, errorRows[0].Code)
	require.Contains(t, errorRows[0].Message, "connection reset")
	require.Len(t, summary.Errors, 1)
	require.Equal(t, importjob.CodeDBError, summary.Errors[0].Code)
}

func TestExecuteRows_ParentClientCreatedInline(t *testing.T) {
	t.Parallel()

	mem := newMemRepos()
	summary, _, err := executeRows(
		tenantCtx(),
		mem.bundle(),
		sheet.EntityTypeClients,
		[]string{"companyName", "parentClientName"},
		[][]string{{"Acme Sub", "Acme Holdings"}},
		passthrough("companyName", "parentClientName"),
		importjob.Options{},
		0,
		nil,
	)
	require.NoError(t, err)

	// The parent is created regardless of the auto-create option; the
	// validation warning promised it.
	require.Equal(t, 1, summary.Created)
	require.Len(t, mem.clients.items, 2)

	parent, err := mem.clients.GetByCompanyName(context.Background(), "Acme Holdings")
	require.NoError(t, err)
	child, err := mem.clients.GetByCompanyName(context.Background(), "Acme Sub")
	require.NoError(t, err)
	require.NotNil(t, child.ParentClientID)
	require.Equal(t, parent.ID, *child.ParentClientID)
}

func TestExecuteRows_SectionsResolvedOncePerProject(t *testing.T) {
	t.Parallel()

	mem := newMemRepos()
	proj := &project.Project{ID: uuid.New(), Name: "Apollo"}
	mem.projects.items = append(mem.projects.items, proj)
	mem.sections.items = append(mem.sections.items, &section.Section{ID: uuid.New(), ProjectID: proj.ID, Name: "Backlog", Position: 0})

	cols := []string{"title", "projectName", "sectionName"}
	rows := [][]string{
		{"a", "Apollo", "QA"},
		{"b", "Apollo", "qa"},
		{"c", "Apollo", "Backlog"},
	}

	summary, _, err := executeRows(
		tenantCtx(),
		mem.bundle(),
		sheet.EntityTypeTasks,
		cols,
		rows,
		passthrough(cols...),
		importjob.Options{},
		0,
		nil,
	)
	require.NoError(t, err)
	require.Equal(t, 3, summary.Created)

	// "QA" created once with the next position; "Backlog" reused.
	require.Len(t, mem.sections.items, 2)
	qa, err := mem.sections.GetByProjectAndName(context.Background(), proj.ID, "QA")
	require.NoError(t, err)
	require.Equal(t, 1, qa.Position)

	require.Equal(t, qa.ID, *mem.tasks.items[0].SectionID)
	require.Equal(t, qa.ID, *mem.tasks.items[1].SectionID)
}

func TestExecuteRows_SubtaskParentCreatedFirst(t *testing.T) {
	t.Parallel()

	mem := newMemRepos()
	proj := &project.Project{ID: uuid.New(), Name: "Apollo"}
	mem.projects.items = append(mem.projects.items, proj)

	cols := []string{"title", "projectName", "parentTaskTitle"}
	summary, _, err := executeRows(
		tenantCtx(),
		mem.bundle(),
		sheet.EntityTypeTasks,
		cols,
		[][]string{{"Child", "Apollo", "Parent"}},
		passthrough(cols...),
		importjob.Options{},
		0,
		nil,
	)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Created)

	require.Len(t, mem.tasks.items, 2)
	parent, err := mem.tasks.GetByProjectAndTitle(context.Background(), proj.ID, "Parent")
	require.NoError(t, err)
	child, err := mem.tasks.GetByProjectAndTitle(context.Background(), proj.ID, "Child")
	require.NoError(t, err)
	require.NotNil(t, child.ParentTaskID)
	require.Equal(t, parent.ID, *child.ParentTaskID)
}

func TestExecuteRows_TimeEntryDerivesHours(t *testing.T) {
	t.Parallel()

	mem := newMemRepos()
	mem.users.items = append(mem.users.items, user.New("bob@example.com"))

	cols := []string{"userEmail", "startTime", "endTime", "billable"}
	rows := [][]string{{"bob@example.com", "2024-03-01T10:00:00Z", "2024-03-01T11:30:00Z", "yes"}}

	summary, _, err := executeRows(
		tenantCtx(),
		mem.bundle(),
		sheet.EntityTypeTimeEntries,
		cols,
		rows,
		passthrough(cols...),
		importjob.Options{},
		0,
		nil,
	)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Created)

	require.Len(t, mem.entries.items, 1)
	entry := mem.entries.items[0]
	require.True(t, entry.Hours.Equal(decimal.RequireFromString("1.5")), "got %s", entry.Hours)
	require.True(t, entry.Billable)
	require.NotNil(t, entry.EndedAt)
}

func TestExecuteRows_ProgressReportedPerBatch(t *testing.T) {
	t.Parallel()

	mem := newMemRepos()
	cols := []string{"email"}
	rows := [][]string{{"a@x.com"}, {"b@x.com"}, {"c@x.com"}, {"d@x.com"}, {"e@x.com"}}

	var progress [][2]int
	summary, _, err := executeRows(
		tenantCtx(),
		mem.bundle(),
		sheet.EntityTypeUsers,
		cols,
		rows,
		passthrough(cols...),
		importjob.Options{},
		2,
		func(processed, total int) {
			progress = append(progress, [2]int{processed, total})
		},
	)
	require.NoError(t, err)
	require.Equal(t, 5, summary.Created)
	require.Equal(t, [][2]int{{2, 5}, {4, 5}, {5, 5}}, progress)
}

func TestExecuteRows_AdminSheetSetsRole(t *testing.T) {
	t.Parallel()

	mem := newMemRepos()
	summary, _, err := executeRows(
		tenantCtx(),
		mem.bundle(),
		sheet.EntityTypeAdmins,
		[]string{"email", "firstName", "lastName"},
		[][]string{{"root@example.com", "Root", "Admin"}},
		passthrough("email", "firstName", "lastName"),
		importjob.Options{},
		0,
		nil,
	)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Created)
	require.Len(t, mem.users.items, 1)
	require.Equal(t, user.RoleAdmin, mem.users.items[0].Role())
	require.Equal(t, "Root Admin", mem.users.items[0].FullName())
}

func TestExecuteRows_DurationRecorded(t *testing.T) {
	t.Parallel()

	mem := newMemRepos()
	summary, _, err := executeRows(
		tenantCtx(),
		mem.bundle(),
		sheet.EntityTypeClients,
		[]string{"companyName"},
		[][]string{{"Acme"}},
		passthrough("companyName"),
		importjob.Options{},
		0,
		nil,
	)
	require.NoError(t, err)
	require.GreaterOrEqual(t, summary.DurationMs, int64(0))
}
