package services

import (
	"fmt"
	"sort"
	"strings"

	"github.com/go-faster/errors"

	"github.com/worklane/worklane/modules/imports/domain/importjob"
	"github.com/worklane/worklane/modules/imports/domain/sheet"
)

type rowAction string

const (
	actionCreate rowAction = "create"
	actionUpdate rowAction = "update"
	actionSkip   rowAction = "skip"
	actionFail   rowAction = "fail"
)

type rowOutcome struct {
	action  rowAction
	err     *importjob.ValidationError
	warning *importjob.ValidationWarning
}

func failRow(row int, field, code, message string) rowOutcome {
	return rowOutcome{
		action: actionFail,
		err:    &importjob.ValidationError{Row: row, Field: field, Code: code, Message: message},
	}
}

// Dependency reference kinds used by the missing-dependency accumulator and
// the execution pre-pass.
const (
	depClient  = "client"
	depProject = "project"
	depUser    = "user"
)

type depAccumulator struct {
	byType map[string]map[string][]int
}

func newDepAccumulator() *depAccumulator {
	return &depAccumulator{byType: make(map[string]map[string][]int)}
}

func (a *depAccumulator) add(depType, name string, row int) {
	names, ok := a.byType[depType]
	if !ok {
		names = make(map[string][]int)
		a.byType[depType] = names
	}
	names[name] = append(names[name], row)
}

// list renders the accumulator deterministically: types and names sorted,
// rows in first-reference order.
func (a *depAccumulator) list() []importjob.MissingDependency {
	out := []importjob.MissingDependency{}
	types := make([]string, 0, len(a.byType))
	for t := range a.byType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		names := make([]string, 0, len(a.byType[t]))
		for n := range a.byType[t] {
			names = append(names, n)
		}
		sort.Strings(names)
		for _, n := range names {
			out = append(out, importjob.MissingDependency{
				EntityType: t,
				Name:       n,
				Rows:       a.byType[t][n],
			})
		}
	}
	return out
}

// validateRows dry-runs a mapped sheet against the tenant's current data.
// Row numbers are 1-based over data rows; the header is not a row.
func validateRows(
	entityType sheet.EntityType,
	columns []string,
	rows [][]string,
	mappings []sheet.ColumnMapping,
	opts importjob.Options,
	lookups *TenantLookups,
) (*importjob.ValidationSummary, error) {
	if !entityType.Valid() {
		return nil, errors.Wrapf(sheet.ErrUnknownEntityType, "%q", string(entityType))
	}

	rm := sheet.NewRowMapper(columns, mappings)
	summary := &importjob.ValidationSummary{
		Errors:              []importjob.ValidationError{},
		Warnings:            []importjob.ValidationWarning{},
		MissingDependencies: []importjob.MissingDependency{},
	}
	deps := newDepAccumulator()
	seen := make(map[string]bool)

	for i, raw := range rows {
		rowNum := i + 1
		rec := rm.Map(raw)
		collectMissingRefs(entityType, rowNum, rec, lookups, deps)
		outcome := validateRow(entityType, rowNum, rec, lookups, seen)
		applyOutcome(summary, opts, outcome)
	}

	summary.MissingDependencies = deps.list()
	return summary, nil
}

// applyOutcome folds one row's classification into the summary. Rows failing
// on a missing dependency are double-booked deliberately: the wizard shows
// them as errors while promising that auto-create will turn them into
// creates, so with auto-create enabled they count under both wouldCreate and
// wouldFailWithoutAutoCreate.
func applyOutcome(summary *importjob.ValidationSummary, opts importjob.Options, outcome rowOutcome) {
	if outcome.warning != nil {
		summary.Warnings = append(summary.Warnings, *outcome.warning)
	}

	switch outcome.action {
	case actionCreate:
		summary.WouldCreate++
	case actionUpdate:
		summary.WouldUpdate++
	case actionSkip:
		summary.WouldSkip++
	case actionFail:
		if outcome.err != nil {
			summary.Errors = append(summary.Errors, *outcome.err)
		}
		if outcome.err != nil && importjob.IsDependencyCode(outcome.err.Code) {
			summary.WouldFailWithoutAutoCreate++
			if opts.AutoCreateMissing {
				summary.WouldCreate++
			} else {
				summary.WouldFail++
			}
			return
		}
		summary.WouldFail++
	}
}

// collectMissingRefs records every unresolved client/user/project reference,
// independent of whether the row's rules later fail it. The accumulator is
// what the execution pre-pass will auto-create.
func collectMissingRefs(entityType sheet.EntityType, rowNum int, rec map[string]string, lookups *TenantLookups, deps *depAccumulator) {
	addClient := func(name string) {
		if n := strings.TrimSpace(name); n != "" {
			if _, ok := lookups.ResolveClient(n); !ok {
				deps.add(depClient, naturalKey(n), rowNum)
			}
		}
	}
	addProject := func(name string) {
		if n := strings.TrimSpace(name); n != "" {
			if _, ok := lookups.ResolveProject(n); !ok {
				deps.add(depProject, naturalKey(n), rowNum)
			}
		}
	}
	addUser := func(email string) {
		if e := strings.TrimSpace(email); e != "" {
			if _, ok := lookups.ResolveUser(e); !ok {
				deps.add(depUser, naturalKey(e), rowNum)
			}
		}
	}

	switch entityType {
	case sheet.EntityTypeClients:
		addClient(rec["parentClientName"])
	case sheet.EntityTypeProjects:
		addClient(rec["clientName"])
	case sheet.EntityTypeTasks:
		addProject(rec["projectName"])
		addUser(rec["assigneeEmail"])
	case sheet.EntityTypeTimeEntries:
		addUser(rec["userEmail"])
		addProject(rec["projectName"])
	}
}

func validateRow(entityType sheet.EntityType, rowNum int, rec map[string]string, lookups *TenantLookups, seen map[string]bool) rowOutcome {
	switch entityType {
	case sheet.EntityTypeClients:
		return validateClientRow(rowNum, rec, lookups, seen)
	case sheet.EntityTypeProjects:
		return validateProjectRow(rowNum, rec, lookups, seen)
	case sheet.EntityTypeTasks:
		return validateTaskRow(rowNum, rec, lookups, seen)
	case sheet.EntityTypeUsers, sheet.EntityTypeAdmins:
		return validateUserRow(rowNum, rec, lookups, seen)
	case sheet.EntityTypeTimeEntries:
		return validateTimeEntryRow(rowNum, rec, lookups)
	}
	return failRow(rowNum, "", importjob.CodeDBError, fmt.Sprintf("unsupported entity type %q", entityType))
}

func validateClientRow(rowNum int, rec map[string]string, lookups *TenantLookups, seen map[string]bool) rowOutcome {
	name := strings.TrimSpace(rec["companyName"])
	if name == "" {
		return failRow(rowNum, "companyName", importjob.CodeRequiredFieldMissing, "companyName is required")
	}
	if _, ok := lookups.ResolveClient(name); ok {
		return rowOutcome{action: actionSkip}
	}
	key := "client:" + naturalKey(name)
	if seen[key] {
		return rowOutcome{action: actionSkip}
	}
	seen[key] = true

	out := rowOutcome{action: actionCreate}
	if parent := strings.TrimSpace(rec["parentClientName"]); parent != "" {
		if _, ok := lookups.ResolveClient(parent); !ok {
			out.warning = &importjob.ValidationWarning{
				Row:     rowNum,
				Code:    importjob.WarnParentWillBeCreated,
				Message: fmt.Sprintf("parent client %q does not exist and will be created", parent),
			}
		}
	}
	return out
}

func validateProjectRow(rowNum int, rec map[string]string, lookups *TenantLookups, seen map[string]bool) rowOutcome {
	name := strings.TrimSpace(rec["name"])
	if name == "" {
		return failRow(rowNum, "name", importjob.CodeRequiredFieldMissing, "name is required")
	}
	if _, ok := lookups.ResolveProject(name); ok {
		return rowOutcome{action: actionSkip}
	}
	key := "project:" + naturalKey(name)
	if seen[key] {
		return rowOutcome{action: actionSkip}
	}

	if clientName := strings.TrimSpace(rec["clientName"]); clientName != "" {
		if _, ok := lookups.ResolveClient(clientName); !ok {
			return failRow(rowNum, "clientName", importjob.CodeClientNotFound, fmt.Sprintf("client %q not found", clientName))
		}
	}

	seen[key] = true
	return rowOutcome{action: actionCreate}
}

func validateTaskRow(rowNum int, rec map[string]string, lookups *TenantLookups, seen map[string]bool) rowOutcome {
	title := strings.TrimSpace(rec["title"])
	if title == "" {
		return failRow(rowNum, "title", importjob.CodeRequiredFieldMissing, "title is required")
	}
	projectName := strings.TrimSpace(rec["projectName"])
	if projectName == "" {
		return failRow(rowNum, "projectName", importjob.CodeRequiredFieldMissing, "projectName is required")
	}

	// Field errors outrank dependency errors: a row with a bad date fails
	// even when auto-create would have resolved its references.
	if due := strings.TrimSpace(rec["dueDate"]); due != "" {
		if _, ok := sheet.ParseDateValue(due); !ok {
			return failRow(rowNum, "dueDate", importjob.CodeInvalidDate, fmt.Sprintf("cannot parse date %q", due))
		}
	}

	proj, ok := lookups.ResolveProject(projectName)
	if !ok {
		return failRow(rowNum, "projectName", importjob.CodeProjectNotFound, fmt.Sprintf("project %q not found", projectName))
	}
	if _, exists := lookups.ResolveTask(proj.ID, title); exists {
		return rowOutcome{action: actionSkip}
	}
	key := "task:" + naturalKey(projectName) + "::" + naturalKey(title)
	if seen[key] {
		return rowOutcome{action: actionSkip}
	}

	if assignee := strings.TrimSpace(rec["assigneeEmail"]); assignee != "" {
		if _, ok := lookups.ResolveUser(assignee); !ok {
			return failRow(rowNum, "assigneeEmail", importjob.CodeAssigneeNotFound, fmt.Sprintf("assignee %q not found", assignee))
		}
	}

	seen[key] = true
	out := rowOutcome{action: actionCreate}
	if parent := strings.TrimSpace(rec["parentTaskTitle"]); parent != "" {
		if _, ok := lookups.ResolveTask(proj.ID, parent); !ok {
			out.warning = &importjob.ValidationWarning{
				Row:     rowNum,
				Code:    importjob.WarnParentWillBeCreated,
				Message: fmt.Sprintf("parent task %q does not exist and will be created", parent),
			}
		}
	}
	return out
}

func validateUserRow(rowNum int, rec map[string]string, lookups *TenantLookups, seen map[string]bool) rowOutcome {
	email := strings.TrimSpace(rec["email"])
	if email == "" {
		return failRow(rowNum, "email", importjob.CodeRequiredFieldMissing, "email is required")
	}
	if _, ok := lookups.ResolveUser(email); ok {
		return rowOutcome{action: actionSkip}
	}
	key := "user:" + naturalKey(email)
	if seen[key] {
		return rowOutcome{action: actionSkip}
	}
	seen[key] = true
	return rowOutcome{action: actionCreate}
}

func validateTimeEntryRow(rowNum int, rec map[string]string, lookups *TenantLookups) rowOutcome {
	email := strings.TrimSpace(rec["userEmail"])
	if email == "" {
		return failRow(rowNum, "userEmail", importjob.CodeRequiredFieldMissing, "userEmail is required")
	}
	start := strings.TrimSpace(rec["startTime"])
	if start == "" {
		return failRow(rowNum, "startTime", importjob.CodeRequiredFieldMissing, "startTime is required")
	}
	startAt, ok := sheet.ParseDateValue(start)
	if !ok {
		return failRow(rowNum, "startTime", importjob.CodeInvalidDate, fmt.Sprintf("cannot parse date %q", start))
	}

	var warning *importjob.ValidationWarning
	if end := strings.TrimSpace(rec["endTime"]); end != "" {
		endAt, ok := sheet.ParseDateValue(end)
		if !ok {
			return failRow(rowNum, "endTime", importjob.CodeInvalidDate, fmt.Sprintf("cannot parse date %q", end))
		}
		if !endAt.After(startAt) {
			warning = &importjob.ValidationWarning{
				Row:     rowNum,
				Code:    importjob.WarnEndBeforeStart,
				Message: "endTime is not after startTime",
			}
		}
	}

	if _, ok := lookups.ResolveUser(email); !ok {
		return failRow(rowNum, "userEmail", importjob.CodeUserNotFound, fmt.Sprintf("user %q not found", email))
	}

	return rowOutcome{action: actionCreate, warning: warning}
}
