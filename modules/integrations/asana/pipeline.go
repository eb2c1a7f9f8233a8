package asana

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/worklane/worklane/modules/core/domain/entities/user"
	"github.com/worklane/worklane/modules/integrations/domain/entitymap"
	"github.com/worklane/worklane/modules/pm/domain/entities/client"
	"github.com/worklane/worklane/modules/pm/domain/entities/project"
	"github.com/worklane/worklane/modules/pm/domain/entities/section"
	"github.com/worklane/worklane/modules/pm/domain/entities/task"
	"github.com/worklane/worklane/pkg/composables"
)

// Error codes recorded on sync errors.
const (
	CodeClientNotFound   = "CLIENT_NOT_FOUND"
	CodeAssigneeNotFound = "ASSIGNEE_NOT_FOUND"
	CodeParentNotFound   = "PARENT_NOT_FOUND"
	CodeUserInvalid      = "USER_INVALID"
	CodeDBError          = "DB_ERROR"
)

// ErrCancelled aborts a run between entity batches after a cancel request.
var ErrCancelled = errors.New("asana import cancelled")

// API is the slice of the Asana client the pipeline consumes.
type API interface {
	WorkspaceUsers(ctx context.Context, workspaceGID string) ([]User, error)
	Project(ctx context.Context, projectGID string) (*Project, error)
	ProjectSections(ctx context.Context, projectGID string) ([]Section, error)
	ProjectTasks(ctx context.Context, projectGID string) ([]Task, error)
	Subtasks(ctx context.Context, taskGID string) ([]Task, error)
}

// Repos bundles the tenant stores the pipeline reads and writes.
type Repos struct {
	Users    user.Repository
	Clients  client.Repository
	Projects project.Repository
	Sections section.Repository
	Tasks    task.Repository
	Mappings entitymap.Repository
}

// PipelineOptions control optional behavior of one run.
type PipelineOptions struct {
	// AutoCreateClients creates a client from the Asana project's team name
	// when no mapping or company-name match exists. When off, the project is
	// imported unlinked and a CLIENT_NOT_FOUND error is recorded.
	AutoCreateClients bool `json:"autoCreateClients"`
}

// PipelineConfig wires a pipeline. OnPhase and IsCancelled are optional.
type PipelineConfig struct {
	API     API
	Repos   Repos
	Options PipelineOptions

	// OnPhase receives coarse progress checkpoints as human-readable text.
	OnPhase func(phase string)
	// IsCancelled is polled between entity batches.
	IsCancelled func() bool
}

type Pipeline struct {
	api   API
	repos Repos
	opts  PipelineOptions

	onPhase     func(string)
	isCancelled func() bool
}

func NewPipeline(cfg PipelineConfig) (*Pipeline, error) {
	if cfg.API == nil {
		return nil, errors.New("asana: api client is required")
	}
	if cfg.Repos.Users == nil || cfg.Repos.Clients == nil || cfg.Repos.Projects == nil ||
		cfg.Repos.Sections == nil || cfg.Repos.Tasks == nil || cfg.Repos.Mappings == nil {
		return nil, errors.New("asana: all repositories are required")
	}
	p := &Pipeline{
		api:         cfg.API,
		repos:       cfg.Repos,
		opts:        cfg.Options,
		onPhase:     cfg.OnPhase,
		isCancelled: cfg.IsCancelled,
	}
	if p.onPhase == nil {
		p.onPhase = func(string) {}
	}
	if p.isCancelled == nil {
		p.isCancelled = func() bool { return false }
	}
	return p, nil
}

// RunInput selects what to import.
type RunInput struct {
	WorkspaceGID string
	ProjectGIDs  []string
}

type EntityCounts struct {
	Create int `json:"create"`
	Update int `json:"update"`
	Skip   int `json:"skip"`
	Errors int `json:"errors"`
}

func (c *EntityCounts) add(a action) {
	switch a {
	case actionCreate:
		c.Create++
	case actionUpdate:
		c.Update++
	case actionSkip:
		c.Skip++
	}
}

type PhaseSummary struct {
	Users    EntityCounts `json:"users"`
	Clients  EntityCounts `json:"clients"`
	Projects EntityCounts `json:"projects"`
	Sections EntityCounts `json:"sections"`
	Tasks    EntityCounts `json:"tasks"`
}

// SyncError is a typed per-entity problem that did not halt the run.
type SyncError struct {
	EntityType string `json:"entityType"`
	ProviderID string `json:"providerId"`
	Name       string `json:"name"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

type RunSummary struct {
	Validate   PhaseSummary `json:"validate"`
	Execute    PhaseSummary `json:"execute"`
	Errors     []SyncError  `json:"errors"`
	DurationMs int64        `json:"durationMs"`
}

type action int

const (
	actionCreate action = iota
	actionUpdate
	actionSkip
)

// Run fetches the selected workspace slice once, dry-walks it for the
// validate counts, then walks it again applying changes. Both walks visit
// entities in dependency order: users, then per project its client, the
// project, sections, top-level tasks, and finally subtasks.
func (p *Pipeline) Run(ctx context.Context, in RunInput) (*RunSummary, error) {
	if in.WorkspaceGID == "" {
		return nil, errors.New("asana: workspace gid is required")
	}
	if len(in.ProjectGIDs) == 0 {
		return nil, errors.New("asana: at least one project gid is required")
	}
	started := time.Now()

	snap, err := p.fetch(ctx, in)
	if err != nil {
		return nil, err
	}

	validate, _, err := p.walk(ctx, snap, true)
	if err != nil {
		return nil, err
	}

	execute, syncErrs, err := p.walk(ctx, snap, false)
	if err != nil {
		return nil, err
	}

	return &RunSummary{
		Validate:   *validate,
		Execute:    *execute,
		Errors:     syncErrs,
		DurationMs: time.Since(started).Milliseconds(),
	}, nil
}

type projectSnapshot struct {
	project  *Project
	sections []Section
	topLevel []Task
	subtasks map[string][]Task
}

type snapshot struct {
	users    []User
	projects []projectSnapshot
}

func (p *Pipeline) fetch(ctx context.Context, in RunInput) (*snapshot, error) {
	p.onPhase("fetching workspace users")
	users, err := p.api.WorkspaceUsers(ctx, in.WorkspaceGID)
	if err != nil {
		return nil, err
	}
	snap := &snapshot{users: users}

	for i, gid := range in.ProjectGIDs {
		if p.isCancelled() {
			return nil, ErrCancelled
		}
		p.onPhase(fmt.Sprintf("fetching project %d/%d", i+1, len(in.ProjectGIDs)))

		proj, err := p.api.Project(ctx, gid)
		if err != nil {
			return nil, err
		}
		sections, err := p.api.ProjectSections(ctx, gid)
		if err != nil {
			return nil, err
		}
		tasks, err := p.api.ProjectTasks(ctx, gid)
		if err != nil {
			return nil, err
		}

		ps := projectSnapshot{project: proj, sections: sections, subtasks: map[string][]Task{}}
		for _, t := range tasks {
			if t.ParentGID() == "" {
				ps.topLevel = append(ps.topLevel, t)
			}
		}
		// Subtasks are not in the project task list; they surface through
		// the parent's subtask count.
		for _, t := range ps.topLevel {
			if t.NumSubtasks == 0 {
				continue
			}
			subs, err := p.api.Subtasks(ctx, t.GID)
			if err != nil {
				return nil, err
			}
			ps.subtasks[t.GID] = subs
		}
		snap.projects = append(snap.projects, ps)
	}
	return snap, nil
}

func (p *Pipeline) walk(ctx context.Context, snap *snapshot, dry bool) (*PhaseSummary, []SyncError, error) {
	w := &walker{
		p:   p,
		dry: dry,

		userIDs:    map[string]uuid.UUID{},
		clientIDs:  map[string]uuid.UUID{},
		projectIDs: map[string]uuid.UUID{},
		sectionIDs: map[string]uuid.UUID{},
		taskIDs:    map[string]uuid.UUID{},
	}
	if err := w.buildIndex(ctx); err != nil {
		return nil, nil, err
	}

	prefix := "importing"
	if dry {
		prefix = "validating"
	}

	p.onPhase(prefix + " users")
	for _, u := range snap.users {
		w.visitUser(ctx, u)
	}

	for i, ps := range snap.projects {
		if p.isCancelled() {
			return nil, nil, ErrCancelled
		}
		p.onPhase(fmt.Sprintf("%s project %d/%d: %s", prefix, i+1, len(snap.projects), ps.project.Name))

		clientID := w.visitClient(ctx, ps.project.Team)
		projectID, ok := w.visitProject(ctx, ps.project, clientID)
		if !ok {
			continue
		}
		for pos, s := range ps.sections {
			w.visitSection(ctx, s, projectID, pos)
		}
		for _, t := range ps.topLevel {
			w.visitTask(ctx, t, projectID, uuid.Nil)
		}

		if p.isCancelled() {
			return nil, nil, ErrCancelled
		}
		if len(ps.subtasks) > 0 {
			p.onPhase(fmt.Sprintf("%s subtasks for %s", prefix, ps.project.Name))
			for _, parent := range ps.topLevel {
				subs := ps.subtasks[parent.GID]
				if len(subs) == 0 {
					continue
				}
				parentLocal, ok := w.taskIDs[parent.GID]
				if !ok || parentLocal == uuid.Nil {
					for _, sub := range subs {
						w.recordError(entitymap.EntityTask, sub.GID, sub.Name, CodeParentNotFound,
							"parent task was not imported", &w.counts.Tasks)
					}
					continue
				}
				for _, sub := range subs {
					w.visitTask(ctx, sub, projectID, parentLocal)
				}
			}
		}
	}

	return &w.counts, w.errs, nil
}

// walker carries one phase's state: the tenant's current entities indexed by
// natural key and id, plus gid overlays for everything resolved so far.
type walker struct {
	p   *Pipeline
	dry bool

	counts PhaseSummary
	errs   []SyncError

	usersByEmail   map[string]*user.User
	usersByID      map[uuid.UUID]*user.User
	clientsByName  map[string]*client.Client
	clientsByID    map[uuid.UUID]*client.Client
	projectsByName map[string]*project.Project
	projectsByID   map[uuid.UUID]*project.Project
	tasksByKey     map[string]*task.Task
	tasksByID      map[uuid.UUID]*task.Task
	sectionsByKey  map[string]*section.Section
	loadedSections map[uuid.UUID]bool

	userIDs    map[string]uuid.UUID
	clientIDs  map[string]uuid.UUID
	projectIDs map[string]uuid.UUID
	sectionIDs map[string]uuid.UUID
	taskIDs    map[string]uuid.UUID
}

func naturalKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func taskKey(projectID uuid.UUID, title string) string {
	return projectID.String() + "::" + naturalKey(title)
}

func sectionKey(projectID uuid.UUID, name string) string {
	return projectID.String() + "::" + naturalKey(name)
}

func (w *walker) buildIndex(ctx context.Context) error {
	w.usersByEmail = map[string]*user.User{}
	w.usersByID = map[uuid.UUID]*user.User{}
	w.clientsByName = map[string]*client.Client{}
	w.clientsByID = map[uuid.UUID]*client.Client{}
	w.projectsByName = map[string]*project.Project{}
	w.projectsByID = map[uuid.UUID]*project.Project{}
	w.tasksByKey = map[string]*task.Task{}
	w.tasksByID = map[uuid.UUID]*task.Task{}
	w.sectionsByKey = map[string]*section.Section{}
	w.loadedSections = map[uuid.UUID]bool{}

	return composables.InTenantTx(ctx, func(txCtx context.Context) error {
		users, err := w.p.repos.Users.GetAll(txCtx)
		if err != nil {
			return errors.Wrap(err, "asana: load users")
		}
		for _, u := range users {
			w.usersByEmail[naturalKey(u.Email())] = u
			w.usersByID[u.ID()] = u
		}
		clients, err := w.p.repos.Clients.GetAll(txCtx)
		if err != nil {
			return errors.Wrap(err, "asana: load clients")
		}
		for _, c := range clients {
			w.clientsByName[naturalKey(c.CompanyName)] = c
			w.clientsByID[c.ID] = c
		}
		projects, err := w.p.repos.Projects.GetAll(txCtx)
		if err != nil {
			return errors.Wrap(err, "asana: load projects")
		}
		for _, pr := range projects {
			w.projectsByName[naturalKey(pr.Name)] = pr
			w.projectsByID[pr.ID] = pr
		}
		tasks, err := w.p.repos.Tasks.GetAll(txCtx)
		if err != nil {
			return errors.Wrap(err, "asana: load tasks")
		}
		for _, t := range tasks {
			w.tasksByKey[taskKey(t.ProjectID, t.Title)] = t
			w.tasksByID[t.ID] = t
		}
		return nil
	})
}

func (w *walker) loadSections(ctx context.Context, projectID uuid.UUID) {
	if projectID == uuid.Nil || w.loadedSections[projectID] {
		return
	}
	w.loadedSections[projectID] = true
	err := composables.InTenantTx(ctx, func(txCtx context.Context) error {
		sections, err := w.p.repos.Sections.ListByProject(txCtx, projectID)
		if err != nil {
			return err
		}
		for _, s := range sections {
			w.sectionsByKey[sectionKey(projectID, s.Name)] = s
		}
		return nil
	})
	if err != nil {
		w.recordError(entitymap.EntitySection, "", "", CodeDBError, err.Error(), &w.counts.Sections)
	}
}

func (w *walker) recordError(entityType, providerID, name, code, message string, counts *EntityCounts) {
	counts.Errors++
	w.errs = append(w.errs, SyncError{
		EntityType: entityType,
		ProviderID: providerID,
		Name:       name,
		Code:       code,
		Message:    message,
	})
}

// mappedID consults the entity map; uuid.Nil means no mapping.
func (w *walker) mappedID(ctx context.Context, entityType, gid string) (uuid.UUID, error) {
	m, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*entitymap.Mapping, error) {
		return w.p.repos.Mappings.Get(txCtx, Provider, entityType, gid)
	})
	if errors.Is(err, entitymap.ErrNotFound) {
		return uuid.Nil, nil
	}
	if err != nil {
		return uuid.Nil, err
	}
	return m.LocalEntityID, nil
}

func (w *walker) upsertMapping(ctx context.Context, entityType, gid string, localID uuid.UUID, name string) error {
	if w.dry {
		return nil
	}
	return composables.InTenantTx(ctx, func(txCtx context.Context) error {
		_, err := w.p.repos.Mappings.Upsert(txCtx, &entitymap.Mapping{
			Provider:         Provider,
			EntityType:       entityType,
			ProviderEntityID: gid,
			LocalEntityID:    localID,
			Metadata:         map[string]string{"name": name},
		})
		return err
	})
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	if len(parts) == 0 {
		return "", ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}

func (w *walker) visitUser(ctx context.Context, u User) {
	if _, seen := w.userIDs[u.GID]; seen {
		w.counts.Users.add(actionSkip)
		return
	}
	if u.Email == "" {
		w.recordError(entitymap.EntityUser, u.GID, u.Name, CodeUserInvalid, "user has no email", &w.counts.Users)
		return
	}
	first, last := splitName(u.Name)

	mapped, err := w.mappedID(ctx, entitymap.EntityUser, u.GID)
	if err != nil {
		w.recordError(entitymap.EntityUser, u.GID, u.Name, CodeDBError, err.Error(), &w.counts.Users)
		return
	}
	if existing, ok := w.usersByID[mapped]; mapped != uuid.Nil && ok {
		w.userIDs[u.GID] = existing.ID()
		if existing.Email() == naturalKey(u.Email) && existing.FirstName() == first && existing.LastName() == last {
			w.counts.Users.add(actionSkip)
			return
		}
		if w.dry {
			w.counts.Users.add(actionUpdate)
			return
		}
		updated := user.New(
			u.Email,
			user.WithID(existing.ID()),
			user.WithTenantID(existing.TenantID()),
			user.WithName(first, last),
			user.WithRole(existing.Role()),
			user.WithCreatedAt(existing.CreatedAt()),
		)
		saved, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*user.User, error) {
			saved, err := w.p.repos.Users.Update(txCtx, updated)
			if err != nil {
				return nil, err
			}
			return saved, w.reupsert(txCtx, entitymap.EntityUser, u.GID, saved.ID(), u.Name)
		})
		if err != nil {
			w.recordError(entitymap.EntityUser, u.GID, u.Name, CodeDBError, err.Error(), &w.counts.Users)
			return
		}
		w.indexUser(saved)
		w.counts.Users.add(actionUpdate)
		return
	}

	if existing, ok := w.usersByEmail[naturalKey(u.Email)]; ok {
		// Adopt: the local user predates the sync, link it.
		w.userIDs[u.GID] = existing.ID()
		if err := w.upsertMapping(ctx, entitymap.EntityUser, u.GID, existing.ID(), u.Name); err != nil {
			w.recordError(entitymap.EntityUser, u.GID, u.Name, CodeDBError, err.Error(), &w.counts.Users)
			return
		}
		w.counts.Users.add(actionSkip)
		return
	}

	created := user.New(u.Email, user.WithName(first, last))
	if w.dry {
		w.indexUser(created)
		w.userIDs[u.GID] = created.ID()
		w.counts.Users.add(actionCreate)
		return
	}
	saved, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*user.User, error) {
		saved, err := w.p.repos.Users.Create(txCtx, created)
		if err != nil {
			return nil, err
		}
		return saved, w.reupsert(txCtx, entitymap.EntityUser, u.GID, saved.ID(), u.Name)
	})
	if err != nil {
		w.recordError(entitymap.EntityUser, u.GID, u.Name, CodeDBError, err.Error(), &w.counts.Users)
		return
	}
	w.indexUser(saved)
	w.userIDs[u.GID] = saved.ID()
	w.counts.Users.add(actionCreate)
}

// reupsert writes a mapping row inside an already-open transaction.
func (w *walker) reupsert(txCtx context.Context, entityType, gid string, localID uuid.UUID, name string) error {
	_, err := w.p.repos.Mappings.Upsert(txCtx, &entitymap.Mapping{
		Provider:         Provider,
		EntityType:       entityType,
		ProviderEntityID: gid,
		LocalEntityID:    localID,
		Metadata:         map[string]string{"name": name},
	})
	return err
}

func (w *walker) indexUser(u *user.User) {
	w.usersByEmail[naturalKey(u.Email())] = u
	w.usersByID[u.ID()] = u
}

// visitClient resolves the project's team to a local client. uuid.Nil means
// no client link.
func (w *walker) visitClient(ctx context.Context, team *Team) uuid.UUID {
	if team == nil || strings.TrimSpace(team.Name) == "" {
		return uuid.Nil
	}
	if id, seen := w.clientIDs[team.GID]; seen {
		w.counts.Clients.add(actionSkip)
		return id
	}

	mapped, err := w.mappedID(ctx, entitymap.EntityClient, team.GID)
	if err != nil {
		w.recordError(entitymap.EntityClient, team.GID, team.Name, CodeDBError, err.Error(), &w.counts.Clients)
		return uuid.Nil
	}
	if existing, ok := w.clientsByID[mapped]; mapped != uuid.Nil && ok {
		w.clientIDs[team.GID] = existing.ID
		if existing.CompanyName == team.Name {
			w.counts.Clients.add(actionSkip)
			return existing.ID
		}
		if w.dry {
			w.counts.Clients.add(actionUpdate)
			return existing.ID
		}
		renamed := *existing
		renamed.CompanyName = team.Name
		saved, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*client.Client, error) {
			saved, err := w.p.repos.Clients.Update(txCtx, &renamed)
			if err != nil {
				return nil, err
			}
			return saved, w.reupsert(txCtx, entitymap.EntityClient, team.GID, saved.ID, team.Name)
		})
		if err != nil {
			w.recordError(entitymap.EntityClient, team.GID, team.Name, CodeDBError, err.Error(), &w.counts.Clients)
			return existing.ID
		}
		w.indexClient(saved)
		w.counts.Clients.add(actionUpdate)
		return saved.ID
	}

	if existing, ok := w.clientsByName[naturalKey(team.Name)]; ok {
		w.clientIDs[team.GID] = existing.ID
		if err := w.upsertMapping(ctx, entitymap.EntityClient, team.GID, existing.ID, team.Name); err != nil {
			w.recordError(entitymap.EntityClient, team.GID, team.Name, CodeDBError, err.Error(), &w.counts.Clients)
			return existing.ID
		}
		w.counts.Clients.add(actionSkip)
		return existing.ID
	}

	if !w.p.opts.AutoCreateClients {
		w.recordError(entitymap.EntityClient, team.GID, team.Name, CodeClientNotFound,
			fmt.Sprintf("no client matches team %q and client auto-create is off", team.Name), &w.counts.Clients)
		return uuid.Nil
	}

	if w.dry {
		placeholder := &client.Client{ID: uuid.New(), CompanyName: team.Name}
		w.indexClient(placeholder)
		w.clientIDs[team.GID] = placeholder.ID
		w.counts.Clients.add(actionCreate)
		return placeholder.ID
	}
	saved, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*client.Client, error) {
		saved, err := w.p.repos.Clients.Create(txCtx, &client.Client{CompanyName: team.Name})
		if err != nil {
			return nil, err
		}
		return saved, w.reupsert(txCtx, entitymap.EntityClient, team.GID, saved.ID, team.Name)
	})
	if err != nil {
		w.recordError(entitymap.EntityClient, team.GID, team.Name, CodeDBError, err.Error(), &w.counts.Clients)
		return uuid.Nil
	}
	w.indexClient(saved)
	w.clientIDs[team.GID] = saved.ID
	w.counts.Clients.add(actionCreate)
	return saved.ID
}

func (w *walker) indexClient(c *client.Client) {
	w.clientsByName[naturalKey(c.CompanyName)] = c
	w.clientsByID[c.ID] = c
}

func (w *walker) visitProject(ctx context.Context, proj *Project, clientID uuid.UUID) (uuid.UUID, bool) {
	status := project.StatusActive
	if proj.Archived {
		status = project.StatusArchived
	}
	var clientRef *uuid.UUID
	if clientID != uuid.Nil {
		clientRef = &clientID
	}

	mapped, err := w.mappedID(ctx, entitymap.EntityProject, proj.GID)
	if err != nil {
		w.recordError(entitymap.EntityProject, proj.GID, proj.Name, CodeDBError, err.Error(), &w.counts.Projects)
		return uuid.Nil, false
	}
	if existing, ok := w.projectsByID[mapped]; mapped != uuid.Nil && ok {
		w.projectIDs[proj.GID] = existing.ID
		// A project keeps its local client link when the Asana side has no
		// team, so a nil clientRef never counts as a change.
		clientChanged := clientRef != nil && !sameRef(existing.ClientID, clientRef)
		if existing.Name == proj.Name && existing.Description == proj.Notes &&
			existing.Status == status && !clientChanged {
			w.counts.Projects.add(actionSkip)
			return existing.ID, true
		}
		if w.dry {
			w.counts.Projects.add(actionUpdate)
			return existing.ID, true
		}
		changed := *existing
		changed.Name = proj.Name
		changed.Description = proj.Notes
		changed.Status = status
		if clientRef != nil {
			changed.ClientID = clientRef
		}
		saved, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*project.Project, error) {
			saved, err := w.p.repos.Projects.Update(txCtx, &changed)
			if err != nil {
				return nil, err
			}
			return saved, w.reupsert(txCtx, entitymap.EntityProject, proj.GID, saved.ID, proj.Name)
		})
		if err != nil {
			w.recordError(entitymap.EntityProject, proj.GID, proj.Name, CodeDBError, err.Error(), &w.counts.Projects)
			return existing.ID, true
		}
		w.indexProject(saved)
		w.counts.Projects.add(actionUpdate)
		return saved.ID, true
	}

	if existing, ok := w.projectsByName[naturalKey(proj.Name)]; ok {
		w.projectIDs[proj.GID] = existing.ID
		if err := w.upsertMapping(ctx, entitymap.EntityProject, proj.GID, existing.ID, proj.Name); err != nil {
			w.recordError(entitymap.EntityProject, proj.GID, proj.Name, CodeDBError, err.Error(), &w.counts.Projects)
			return existing.ID, true
		}
		w.counts.Projects.add(actionSkip)
		return existing.ID, true
	}

	if w.dry {
		placeholder := &project.Project{ID: uuid.New(), Name: proj.Name, Description: proj.Notes, Status: status, ClientID: clientRef}
		w.indexProject(placeholder)
		w.projectIDs[proj.GID] = placeholder.ID
		w.counts.Projects.add(actionCreate)
		return placeholder.ID, true
	}
	saved, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*project.Project, error) {
		saved, err := w.p.repos.Projects.Create(txCtx, &project.Project{
			Name:        proj.Name,
			Description: proj.Notes,
			Status:      status,
			ClientID:    clientRef,
		})
		if err != nil {
			return nil, err
		}
		return saved, w.reupsert(txCtx, entitymap.EntityProject, proj.GID, saved.ID, proj.Name)
	})
	if err != nil {
		w.recordError(entitymap.EntityProject, proj.GID, proj.Name, CodeDBError, err.Error(), &w.counts.Projects)
		return uuid.Nil, false
	}
	w.indexProject(saved)
	w.projectIDs[proj.GID] = saved.ID
	w.counts.Projects.add(actionCreate)
	return saved.ID, true
}

func (w *walker) indexProject(p *project.Project) {
	w.projectsByName[naturalKey(p.Name)] = p
	w.projectsByID[p.ID] = p
}

func sameRef(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (w *walker) visitSection(ctx context.Context, s Section, projectID uuid.UUID, position int) {
	mapped, err := w.mappedID(ctx, entitymap.EntitySection, s.GID)
	if err != nil {
		w.recordError(entitymap.EntitySection, s.GID, s.Name, CodeDBError, err.Error(), &w.counts.Sections)
		return
	}
	if mapped != uuid.Nil {
		w.sectionIDs[s.GID] = mapped
		w.counts.Sections.add(actionSkip)
		return
	}

	w.loadSections(ctx, projectID)
	if existing, ok := w.sectionsByKey[sectionKey(projectID, s.Name)]; ok {
		w.sectionIDs[s.GID] = existing.ID
		if err := w.upsertMapping(ctx, entitymap.EntitySection, s.GID, existing.ID, s.Name); err != nil {
			w.recordError(entitymap.EntitySection, s.GID, s.Name, CodeDBError, err.Error(), &w.counts.Sections)
			return
		}
		w.counts.Sections.add(actionSkip)
		return
	}

	if w.dry {
		placeholder := &section.Section{ID: uuid.New(), ProjectID: projectID, Name: s.Name, Position: position}
		w.sectionsByKey[sectionKey(projectID, s.Name)] = placeholder
		w.sectionIDs[s.GID] = placeholder.ID
		w.counts.Sections.add(actionCreate)
		return
	}
	saved, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*section.Section, error) {
		saved, err := w.p.repos.Sections.Create(txCtx, &section.Section{
			ProjectID: projectID,
			Name:      s.Name,
			Position:  position,
		})
		if err != nil {
			return nil, err
		}
		return saved, w.reupsert(txCtx, entitymap.EntitySection, s.GID, saved.ID, s.Name)
	})
	if err != nil {
		w.recordError(entitymap.EntitySection, s.GID, s.Name, CodeDBError, err.Error(), &w.counts.Sections)
		return
	}
	w.sectionsByKey[sectionKey(projectID, saved.Name)] = saved
	w.sectionIDs[s.GID] = saved.ID
	w.counts.Sections.add(actionCreate)
}

func (w *walker) visitTask(ctx context.Context, t Task, projectID uuid.UUID, parentID uuid.UUID) {
	dueAt := parseDueOn(t.DueOn)

	mapped, err := w.mappedID(ctx, entitymap.EntityTask, t.GID)
	if err != nil {
		w.recordError(entitymap.EntityTask, t.GID, t.Name, CodeDBError, err.Error(), &w.counts.Tasks)
		return
	}
	if existing, ok := w.tasksByID[mapped]; mapped != uuid.Nil && ok {
		w.taskIDs[t.GID] = existing.ID
		if existing.Title == t.Name && existing.Notes == t.Notes &&
			existing.Completed == t.Completed && sameTime(existing.DueAt, dueAt) {
			w.counts.Tasks.add(actionSkip)
			return
		}
		if w.dry {
			w.counts.Tasks.add(actionUpdate)
			return
		}
		changed := *existing
		changed.Title = t.Name
		changed.Notes = t.Notes
		changed.Completed = t.Completed
		changed.DueAt = dueAt
		saved, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*task.Task, error) {
			saved, err := w.p.repos.Tasks.Update(txCtx, &changed)
			if err != nil {
				return nil, err
			}
			return saved, w.reupsert(txCtx, entitymap.EntityTask, t.GID, saved.ID, t.Name)
		})
		if err != nil {
			w.recordError(entitymap.EntityTask, t.GID, t.Name, CodeDBError, err.Error(), &w.counts.Tasks)
			return
		}
		w.indexTask(saved)
		w.counts.Tasks.add(actionUpdate)
		return
	}

	if existing, ok := w.tasksByKey[taskKey(projectID, t.Name)]; ok {
		w.taskIDs[t.GID] = existing.ID
		if err := w.upsertMapping(ctx, entitymap.EntityTask, t.GID, existing.ID, t.Name); err != nil {
			w.recordError(entitymap.EntityTask, t.GID, t.Name, CodeDBError, err.Error(), &w.counts.Tasks)
			return
		}
		w.counts.Tasks.add(actionSkip)
		return
	}

	// Reference resolution only matters on create; assignee, section and
	// parent links are not synced on later runs.
	var assigneeID *uuid.UUID
	if gid := t.AssigneeGID(); gid != "" {
		if id, ok := w.userIDs[gid]; ok && id != uuid.Nil {
			assigneeID = &id
		} else {
			w.recordError(entitymap.EntityTask, t.GID, t.Name, CodeAssigneeNotFound,
				fmt.Sprintf("assignee %s is not a workspace user; task imported unassigned", gid), &w.counts.Tasks)
		}
	}
	var sectionID *uuid.UUID
	if gid := t.SectionGID(); gid != "" {
		if id, ok := w.sectionIDs[gid]; ok && id != uuid.Nil {
			sectionID = &id
		}
	}
	var parentTaskID *uuid.UUID
	if parentID != uuid.Nil {
		parentTaskID = &parentID
	}

	if w.dry {
		placeholder := &task.Task{ID: uuid.New(), ProjectID: projectID, Title: t.Name, Completed: t.Completed}
		w.indexTask(placeholder)
		w.taskIDs[t.GID] = placeholder.ID
		w.counts.Tasks.add(actionCreate)
		return
	}
	saved, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*task.Task, error) {
		saved, err := w.p.repos.Tasks.Create(txCtx, &task.Task{
			ProjectID:    projectID,
			SectionID:    sectionID,
			ParentTaskID: parentTaskID,
			AssigneeID:   assigneeID,
			Title:        t.Name,
			Notes:        t.Notes,
			DueAt:        dueAt,
			Completed:    t.Completed,
		})
		if err != nil {
			return nil, err
		}
		return saved, w.reupsert(txCtx, entitymap.EntityTask, t.GID, saved.ID, t.Name)
	})
	if err != nil {
		w.recordError(entitymap.EntityTask, t.GID, t.Name, CodeDBError, err.Error(), &w.counts.Tasks)
		return
	}
	w.indexTask(saved)
	w.taskIDs[t.GID] = saved.ID
	w.counts.Tasks.add(actionCreate)
}

func (w *walker) indexTask(t *task.Task) {
	w.tasksByKey[taskKey(t.ProjectID, t.Title)] = t
	w.tasksByID[t.ID] = t
}

func parseDueOn(dueOn string) *time.Time {
	if dueOn == "" {
		return nil
	}
	parsed, err := time.Parse("2006-01-02", dueOn)
	if err != nil {
		return nil
	}
	return &parsed
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
