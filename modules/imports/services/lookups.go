package services

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/worklane/worklane/modules/core/domain/entities/user"
	"github.com/worklane/worklane/modules/pm/domain/entities/client"
	"github.com/worklane/worklane/modules/pm/domain/entities/project"
	"github.com/worklane/worklane/modules/pm/domain/entities/task"
)

// TenantLookups indexes a tenant's existing records by natural key. It is
// rebuilt from the repositories for every validate/execute call and never
// shared across jobs; auto-create seeds it as new records appear so later
// rows resolve references created by earlier ones.
type TenantLookups struct {
	users    map[string]*user.User
	clients  map[string]*client.Client
	projects map[string]*project.Project
	tasks    map[string]*task.Task
}

func NewTenantLookups() *TenantLookups {
	return &TenantLookups{
		users:    make(map[string]*user.User),
		clients:  make(map[string]*client.Client),
		projects: make(map[string]*project.Project),
		tasks:    make(map[string]*task.Task),
	}
}

// BuildTenantLookups loads the tenant's users, clients, projects and tasks
// into fresh natural-key indexes. ctx must carry the tenant and a tx or pool.
func BuildTenantLookups(
	ctx context.Context,
	users user.Repository,
	clients client.Repository,
	projects project.Repository,
	tasks task.Repository,
) (*TenantLookups, error) {
	l := NewTenantLookups()

	us, err := users.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, u := range us {
		l.AddUser(u)
	}

	cs, err := clients.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, c := range cs {
		l.AddClient(c)
	}

	ps, err := projects.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range ps {
		l.AddProject(p)
	}

	ts, err := tasks.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range ts {
		l.AddTask(t)
	}

	return l, nil
}

func naturalKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func taskKey(projectID uuid.UUID, title string) string {
	return projectID.String() + "::" + naturalKey(title)
}

func (l *TenantLookups) ResolveUser(email string) (*user.User, bool) {
	u, ok := l.users[naturalKey(email)]
	return u, ok
}

func (l *TenantLookups) ResolveClient(name string) (*client.Client, bool) {
	c, ok := l.clients[naturalKey(name)]
	return c, ok
}

func (l *TenantLookups) ResolveProject(name string) (*project.Project, bool) {
	p, ok := l.projects[naturalKey(name)]
	return p, ok
}

func (l *TenantLookups) ResolveTask(projectID uuid.UUID, title string) (*task.Task, bool) {
	t, ok := l.tasks[taskKey(projectID, title)]
	return t, ok
}

func (l *TenantLookups) AddUser(u *user.User) {
	l.users[naturalKey(u.Email())] = u
}

func (l *TenantLookups) AddClient(c *client.Client) {
	l.clients[naturalKey(c.CompanyName)] = c
}

func (l *TenantLookups) AddProject(p *project.Project) {
	l.projects[naturalKey(p.Name)] = p
}

func (l *TenantLookups) AddTask(t *task.Task) {
	l.tasks[taskKey(t.ProjectID, t.Title)] = t
}
