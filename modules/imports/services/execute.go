package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

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

const defaultBatchSize = 200

type progressFunc func(processed, total int)

type execOutcome struct {
	action rowAction
	errRow *importjob.ErrorRow
}

func failExec(row int, pk, code, message string) execOutcome {
	return execOutcome{
		action: actionFail,
		errRow: &importjob.ErrorRow{Row: row, PrimaryKey: pk, Code: code, Message: message},
	}
}

// executeRows writes a mapped sheet into the tenant's store. Each create is
// its own transaction and each row is isolated: a panic or store error fails
// that row with DB_ERROR and the batch moves on. Progress is reported after
// every batch. The returned error is infra-only (context cancelled, lookup
// load failed, auto-create pre-pass failed); data problems land in the
// summary and error rows instead.
func executeRows(
	ctx context.Context,
	repos Repos,
	entityType sheet.EntityType,
	columns []string,
	rows [][]string,
	mappings []sheet.ColumnMapping,
	opts importjob.Options,
	batchSize int,
	onProgress progressFunc,
) (*importjob.ImportSummary, []importjob.ErrorRow, error) {
	if !entityType.Valid() {
		return nil, nil, errors.Wrapf(sheet.ErrUnknownEntityType, "%q", string(entityType))
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	started := time.Now()

	lookups, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*TenantLookups, error) {
		return BuildTenantLookups(txCtx, repos.Users, repos.Clients, repos.Projects, repos.Tasks)
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to build tenant lookups")
	}

	role := user.RoleMember
	if entityType == sheet.EntityTypeAdmins {
		role = user.RoleAdmin
	}
	e := &executor{
		repos:    repos,
		lookups:  lookups,
		entity:   entityType,
		rm:       sheet.NewRowMapper(columns, mappings),
		sections: make(map[uuid.UUID]map[string]*section.Section),
		role:     role,
	}

	if opts.AutoCreateMissing {
		if err := e.autoCreatePass(ctx, rows); err != nil {
			return nil, nil, err
		}
	}

	summary := &importjob.ImportSummary{Errors: []importjob.ValidationError{}}
	errorRows := []importjob.ErrorRow{}
	total := len(rows)

	for start := 0; start < total; start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		end := min(start+batchSize, total)
		for i := start; i < end; i++ {
			out := e.executeRow(ctx, i+1, rows[i])
			switch out.action {
			case actionCreate:
				summary.Created++
			case actionUpdate:
				summary.Updated++
			case actionSkip:
				summary.Skipped++
			case actionFail:
				summary.Failed++
				if out.errRow != nil {
					errorRows = append(errorRows, *out.errRow)
					summary.Errors = append(summary.Errors, importjob.ValidationError{
						Row:     out.errRow.Row,
						Code:    out.errRow.Code,
						Message: out.errRow.Message,
					})
				}
			}
		}
		if onProgress != nil {
			onProgress(end, total)
		}
	}

	summary.DurationMs = time.Since(started).Milliseconds()
	return summary, errorRows, nil
}

type executor struct {
	repos   Repos
	lookups *TenantLookups
	entity  sheet.EntityType
	rm      *sheet.RowMapper
	// sections caches each touched project's sections by lowercased name so
	// repeated rows do not refetch; positions continue from what exists.
	sections map[uuid.UUID]map[string]*section.Section
	role     user.Role
}

// autoCreatePass creates every distinct unresolved client, user and project
// referenced anywhere in the sheet, exactly once, before row execution. Later
// rows then resolve references created here. Pre-pass failures abort the job:
// nothing row-scoped has happened yet and retrying is safe.
func (e *executor) autoCreatePass(ctx context.Context, rows [][]string) error {
	clientRefs := map[string]string{}
	userRefs := map[string]string{}
	projectRefs := map[string]string{}

	note := func(m map[string]string, raw string) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return
		}
		if _, ok := m[naturalKey(raw)]; !ok {
			m[naturalKey(raw)] = raw
		}
	}

	for _, raw := range rows {
		rec := e.rm.Map(raw)
		switch e.entity {
		case sheet.EntityTypeClients:
			note(clientRefs, rec["parentClientName"])
		case sheet.EntityTypeProjects:
			note(clientRefs, rec["clientName"])
		case sheet.EntityTypeTasks:
			note(projectRefs, rec["projectName"])
			note(userRefs, rec["assigneeEmail"])
		case sheet.EntityTypeTimeEntries:
			note(userRefs, rec["userEmail"])
			note(projectRefs, rec["projectName"])
		}
	}

	// Sorted key order keeps re-runs deterministic. Clients go first so a
	// future project ref could attach to them; users and projects carry no
	// cross-references when auto-created.
	for _, k := range sortedRefKeys(clientRefs) {
		if _, ok := e.lookups.ResolveClient(k); ok {
			continue
		}
		if _, err := e.createClient(ctx, &client.Client{CompanyName: clientRefs[k]}); err != nil {
			return errors.Wrapf(err, "failed to auto-create client %q", clientRefs[k])
		}
	}
	for _, k := range sortedRefKeys(userRefs) {
		if _, ok := e.lookups.ResolveUser(k); ok {
			continue
		}
		if _, err := e.createUser(ctx, user.New(userRefs[k], user.WithRole(user.RoleMember))); err != nil {
			return errors.Wrapf(err, "failed to auto-create user %q", userRefs[k])
		}
	}
	for _, k := range sortedRefKeys(projectRefs) {
		if _, ok := e.lookups.ResolveProject(k); ok {
			continue
		}
		if _, err := e.createProject(ctx, &project.Project{Name: projectRefs[k], Status: project.StatusActive}); err != nil {
			return errors.Wrapf(err, "failed to auto-create project %q", projectRefs[k])
		}
	}
	return nil
}

func sortedRefKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (e *executor) executeRow(ctx context.Context, rowNum int, raw []string) (out execOutcome) {
	rec := e.rm.Map(raw)
	pk := primaryKeyFor(e.entity, rec)
	defer func() {
		if r := recover(); r != nil {
			out = failExec(rowNum, pk, importjob.CodeDBError, fmt.Sprintf("row execution panicked: %v", r))
		}
	}()

	switch e.entity {
	case sheet.EntityTypeClients:
		return e.executeClientRow(ctx, rowNum, pk, rec)
	case sheet.EntityTypeProjects:
		return e.executeProjectRow(ctx, rowNum, pk, rec)
	case sheet.EntityTypeTasks:
		return e.executeTaskRow(ctx, rowNum, pk, rec)
	case sheet.EntityTypeUsers, sheet.EntityTypeAdmins:
		return e.executeUserRow(ctx, rowNum, pk, rec)
	case sheet.EntityTypeTimeEntries:
		return e.executeTimeEntryRow(ctx, rowNum, pk, rec)
	}
	return failExec(rowNum, pk, importjob.CodeDBError, fmt.Sprintf("unsupported entity type %q", e.entity))
}

// primaryKeyFor renders the row's natural key for the error-row export.
func primaryKeyFor(entityType sheet.EntityType, rec map[string]string) string {
	switch entityType {
	case sheet.EntityTypeClients:
		return strings.TrimSpace(rec["companyName"])
	case sheet.EntityTypeProjects:
		return strings.TrimSpace(rec["name"])
	case sheet.EntityTypeTasks:
		return strings.TrimSpace(rec["projectName"]) + " / " + strings.TrimSpace(rec["title"])
	case sheet.EntityTypeUsers, sheet.EntityTypeAdmins:
		return strings.TrimSpace(rec["email"])
	case sheet.EntityTypeTimeEntries:
		return strings.TrimSpace(rec["userEmail"]) + " @ " + strings.TrimSpace(rec["startTime"])
	}
	return ""
}

func (e *executor) executeClientRow(ctx context.Context, rowNum int, pk string, rec map[string]string) execOutcome {
	name := strings.TrimSpace(rec["companyName"])
	if name == "" {
		return failExec(rowNum, pk, importjob.CodeRequiredFieldMissing, "companyName is required")
	}
	if _, ok := e.lookups.ResolveClient(name); ok {
		return execOutcome{action: actionSkip}
	}

	var parentID *uuid.UUID
	if parent := strings.TrimSpace(rec["parentClientName"]); parent != "" {
		p, ok := e.lookups.ResolveClient(parent)
		if !ok {
			// Validation promised the parent would be created, so this runs
			// regardless of the auto-create option.
			created, err := e.createClient(ctx, &client.Client{CompanyName: parent})
			if err != nil {
				return failExec(rowNum, pk, importjob.CodeDBError, err.Error())
			}
			p = created
		}
		parentID = &p.ID
	}

	_, err := e.createClient(ctx, &client.Client{
		CompanyName:    name,
		ContactName:    strings.TrimSpace(rec["contactName"]),
		Email:          strings.TrimSpace(rec["email"]),
		Phone:          strings.TrimSpace(rec["phone"]),
		Notes:          strings.TrimSpace(rec["notes"]),
		ParentClientID: parentID,
	})
	if err != nil {
		return failExec(rowNum, pk, importjob.CodeDBError, err.Error())
	}
	return execOutcome{action: actionCreate}
}

func (e *executor) executeProjectRow(ctx context.Context, rowNum int, pk string, rec map[string]string) execOutcome {
	name := strings.TrimSpace(rec["name"])
	if name == "" {
		return failExec(rowNum, pk, importjob.CodeRequiredFieldMissing, "name is required")
	}
	if _, ok := e.lookups.ResolveProject(name); ok {
		return execOutcome{action: actionSkip}
	}

	var clientID *uuid.UUID
	if clientName := strings.TrimSpace(rec["clientName"]); clientName != "" {
		c, ok := e.lookups.ResolveClient(clientName)
		if !ok {
			// The auto-create pre-pass already had its chance; with the
			// option off this mirrors the validation outcome.
			return failExec(rowNum, pk, importjob.CodeClientNotFound, fmt.Sprintf("client %q not found", clientName))
		}
		clientID = &c.ID
	}

	status := project.Status(strings.ToLower(strings.TrimSpace(rec["status"])))
	if !status.Valid() {
		status = project.StatusActive
	}
	budget := decimal.Zero
	if b := strings.TrimSpace(rec["budget"]); b != "" {
		if d, err := decimal.NewFromString(sheet.ParseNumber(b)); err == nil {
			budget = d
		}
	}

	_, err := e.createProject(ctx, &project.Project{
		ClientID:    clientID,
		Name:        name,
		Description: strings.TrimSpace(rec["description"]),
		Status:      status,
		Budget:      budget,
	})
	if err != nil {
		return failExec(rowNum, pk, importjob.CodeDBError, err.Error())
	}
	return execOutcome{action: actionCreate}
}

func (e *executor) executeTaskRow(ctx context.Context, rowNum int, pk string, rec map[string]string) execOutcome {
	title := strings.TrimSpace(rec["title"])
	if title == "" {
		return failExec(rowNum, pk, importjob.CodeRequiredFieldMissing, "title is required")
	}
	projectName := strings.TrimSpace(rec["projectName"])
	if projectName == "" {
		return failExec(rowNum, pk, importjob.CodeRequiredFieldMissing, "projectName is required")
	}

	var dueAt *time.Time
	if due := strings.TrimSpace(rec["dueDate"]); due != "" {
		t, ok := sheet.ParseDateValue(due)
		if !ok {
			return failExec(rowNum, pk, importjob.CodeInvalidDate, fmt.Sprintf("cannot parse date %q", due))
		}
		dueAt = &t
	}

	proj, ok := e.lookups.ResolveProject(projectName)
	if !ok {
		return failExec(rowNum, pk, importjob.CodeProjectNotFound, fmt.Sprintf("project %q not found", projectName))
	}
	if _, exists := e.lookups.ResolveTask(proj.ID, title); exists {
		return execOutcome{action: actionSkip}
	}

	var assigneeID *uuid.UUID
	if assignee := strings.TrimSpace(rec["assigneeEmail"]); assignee != "" {
		u, ok := e.lookups.ResolveUser(assignee)
		if !ok {
			return failExec(rowNum, pk, importjob.CodeAssigneeNotFound, fmt.Sprintf("assignee %q not found", assignee))
		}
		id := u.ID()
		assigneeID = &id
	}

	var sectionID *uuid.UUID
	if sectionName := strings.TrimSpace(rec["sectionName"]); sectionName != "" {
		s, err := e.resolveOrCreateSection(ctx, proj.ID, sectionName)
		if err != nil {
			return failExec(rowNum, pk, importjob.CodeDBError, err.Error())
		}
		sectionID = &s.ID
	}

	var parentID *uuid.UUID
	if parent := strings.TrimSpace(rec["parentTaskTitle"]); parent != "" {
		pt, exists := e.lookups.ResolveTask(proj.ID, parent)
		if !exists {
			created, err := e.createTask(ctx, &task.Task{ProjectID: proj.ID, Title: parent})
			if err != nil {
				return failExec(rowNum, pk, importjob.CodeDBError, err.Error())
			}
			pt = created
		}
		parentID = &pt.ID
	}

	_, err := e.createTask(ctx, &task.Task{
		ProjectID:    proj.ID,
		SectionID:    sectionID,
		ParentTaskID: parentID,
		AssigneeID:   assigneeID,
		Title:        title,
		Notes:        strings.TrimSpace(rec["notes"]),
		DueAt:        dueAt,
		Completed:    sheet.ParseBoolean(rec["completed"]) == "true",
	})
	if err != nil {
		return failExec(rowNum, pk, importjob.CodeDBError, err.Error())
	}
	return execOutcome{action: actionCreate}
}

func (e *executor) executeUserRow(ctx context.Context, rowNum int, pk string, rec map[string]string) execOutcome {
	email := strings.TrimSpace(rec["email"])
	if email == "" {
		return failExec(rowNum, pk, importjob.CodeRequiredFieldMissing, "email is required")
	}
	if _, ok := e.lookups.ResolveUser(email); ok {
		return execOutcome{action: actionSkip}
	}

	u := user.New(
		email,
		user.WithName(strings.TrimSpace(rec["firstName"]), strings.TrimSpace(rec["lastName"])),
		user.WithRole(e.role),
	)
	if _, err := e.createUser(ctx, u); err != nil {
		return failExec(rowNum, pk, importjob.CodeDBError, err.Error())
	}
	return execOutcome{action: actionCreate}
}

func (e *executor) executeTimeEntryRow(ctx context.Context, rowNum int, pk string, rec map[string]string) execOutcome {
	email := strings.TrimSpace(rec["userEmail"])
	if email == "" {
		return failExec(rowNum, pk, importjob.CodeRequiredFieldMissing, "userEmail is required")
	}
	start := strings.TrimSpace(rec["startTime"])
	if start == "" {
		return failExec(rowNum, pk, importjob.CodeRequiredFieldMissing, "startTime is required")
	}
	startAt, ok := sheet.ParseDateValue(start)
	if !ok {
		return failExec(rowNum, pk, importjob.CodeInvalidDate, fmt.Sprintf("cannot parse date %q", start))
	}
	var endAt *time.Time
	if end := strings.TrimSpace(rec["endTime"]); end != "" {
		t, ok := sheet.ParseDateValue(end)
		if !ok {
			return failExec(rowNum, pk, importjob.CodeInvalidDate, fmt.Sprintf("cannot parse date %q", end))
		}
		endAt = &t
	}

	u, ok := e.lookups.ResolveUser(email)
	if !ok {
		return failExec(rowNum, pk, importjob.CodeUserNotFound, fmt.Sprintf("user %q not found", email))
	}

	// Project and task references are soft on time entries: an unresolved
	// name leaves the entry unlinked rather than failing the row.
	var projectID, taskID *uuid.UUID
	if projectName := strings.TrimSpace(rec["projectName"]); projectName != "" {
		if p, ok := e.lookups.ResolveProject(projectName); ok {
			projectID = &p.ID
			if taskTitle := strings.TrimSpace(rec["taskTitle"]); taskTitle != "" {
				if t, ok := e.lookups.ResolveTask(p.ID, taskTitle); ok {
					taskID = &t.ID
				}
			}
		}
	}

	hours := decimal.Zero
	if h := strings.TrimSpace(rec["hours"]); h != "" {
		if d, err := decimal.NewFromString(sheet.ParseNumber(h)); err == nil {
			hours = d
		}
	}
	if hours.IsZero() && endAt != nil {
		hours = timeentry.HoursBetween(startAt, *endAt)
	}

	userID := u.ID()
	_, err := e.createTimeEntry(ctx, &timeentry.TimeEntry{
		UserID:    userID,
		ProjectID: projectID,
		TaskID:    taskID,
		StartedAt: startAt,
		EndedAt:   endAt,
		Hours:     hours,
		Notes:     strings.TrimSpace(rec["notes"]),
		Billable:  sheet.ParseBoolean(rec["billable"]) == "true",
	})
	if err != nil {
		return failExec(rowNum, pk, importjob.CodeDBError, err.Error())
	}
	return execOutcome{action: actionCreate}
}

func (e *executor) createClient(ctx context.Context, c *client.Client) (*client.Client, error) {
	created, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*client.Client, error) {
		return e.repos.Clients.Create(txCtx, c)
	})
	if err != nil {
		return nil, err
	}
	e.lookups.AddClient(created)
	return created, nil
}

func (e *executor) createUser(ctx context.Context, u *user.User) (*user.User, error) {
	created, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*user.User, error) {
		return e.repos.Users.Create(txCtx, u)
	})
	if err != nil {
		return nil, err
	}
	e.lookups.AddUser(created)
	return created, nil
}

func (e *executor) createProject(ctx context.Context, p *project.Project) (*project.Project, error) {
	created, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*project.Project, error) {
		return e.repos.Projects.Create(txCtx, p)
	})
	if err != nil {
		return nil, err
	}
	e.lookups.AddProject(created)
	return created, nil
}

func (e *executor) createTask(ctx context.Context, t *task.Task) (*task.Task, error) {
	created, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*task.Task, error) {
		return e.repos.Tasks.Create(txCtx, t)
	})
	if err != nil {
		return nil, err
	}
	e.lookups.AddTask(created)
	return created, nil
}

func (e *executor) createTimeEntry(ctx context.Context, entry *timeentry.TimeEntry) (*timeentry.TimeEntry, error) {
	return composables.InTenantTxResult(ctx, func(txCtx context.Context) (*timeentry.TimeEntry, error) {
		return e.repos.TimeEntries.Create(txCtx, entry)
	})
}

func (e *executor) resolveOrCreateSection(ctx context.Context, projectID uuid.UUID, name string) (*section.Section, error) {
	name = strings.TrimSpace(name)
	byName, err := e.projectSections(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if s, ok := byName[naturalKey(name)]; ok {
		return s, nil
	}
	created, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) (*section.Section, error) {
		return e.repos.Sections.Create(txCtx, &section.Section{
			ProjectID: projectID,
			Name:      name,
			Position:  len(byName),
		})
	})
	if err != nil {
		return nil, err
	}
	byName[naturalKey(created.Name)] = created
	return created, nil
}

func (e *executor) projectSections(ctx context.Context, projectID uuid.UUID) (map[string]*section.Section, error) {
	if byName, ok := e.sections[projectID]; ok {
		return byName, nil
	}
	list, err := composables.InTenantTxResult(ctx, func(txCtx context.Context) ([]*section.Section, error) {
		return e.repos.Sections.ListByProject(txCtx, projectID)
	})
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*section.Section, len(list))
	for _, s := range list {
		byName[naturalKey(s.Name)] = s
	}
	e.sections[projectID] = byName
	return byName, nil
}
