package persistence

import (
	"github.com/google/uuid"

	"github.com/worklane/worklane/modules/pm/domain/entities/client"
	"github.com/worklane/worklane/modules/pm/domain/entities/project"
	"github.com/worklane/worklane/modules/pm/domain/entities/section"
	"github.com/worklane/worklane/modules/pm/domain/entities/task"
	"github.com/worklane/worklane/modules/pm/domain/entities/timeentry"
	"github.com/worklane/worklane/modules/pm/infrastructure/persistence/models"
	"github.com/worklane/worklane/pkg/mapping"
)

func parseUUIDOrNil(s string) uuid.UUID {
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil
	}
	return id
}

func toDBClient(c *client.Client) *models.Client {
	return &models.Client{
		ID:             c.ID.String(),
		TenantID:       c.TenantID.String(),
		CompanyName:    c.CompanyName,
		ContactName:    mapping.ValueToSQLNullString(c.ContactName),
		Email:          mapping.ValueToSQLNullString(c.Email),
		Phone:          mapping.ValueToSQLNullString(c.Phone),
		Notes:          mapping.ValueToSQLNullString(c.Notes),
		ParentClientID: mapping.UUIDPointerToSQLNullString(c.ParentClientID),
		CreatedAt:      c.CreatedAt,
		UpdatedAt:      c.UpdatedAt,
	}
}

func toDomainClient(row *models.Client) (*client.Client, error) {
	parentID, err := mapping.SQLNullStringToUUIDPointer(row.ParentClientID)
	if err != nil {
		return nil, err
	}
	return &client.Client{
		ID:             parseUUIDOrNil(row.ID),
		TenantID:       parseUUIDOrNil(row.TenantID),
		CompanyName:    row.CompanyName,
		ContactName:    row.ContactName.String,
		Email:          row.Email.String,
		Phone:          row.Phone.String,
		Notes:          row.Notes.String,
		ParentClientID: parentID,
		CreatedAt:      row.CreatedAt,
		UpdatedAt:      row.UpdatedAt,
	}, nil
}

func toDBProject(p *project.Project) *models.Project {
	return &models.Project{
		ID:          p.ID.String(),
		TenantID:    p.TenantID.String(),
		ClientID:    mapping.UUIDPointerToSQLNullString(p.ClientID),
		Name:        p.Name,
		Description: mapping.ValueToSQLNullString(p.Description),
		Status:      string(p.Status),
		Budget:      p.Budget,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toDomainProject(row *models.Project) (*project.Project, error) {
	clientID, err := mapping.SQLNullStringToUUIDPointer(row.ClientID)
	if err != nil {
		return nil, err
	}
	return &project.Project{
		ID:          parseUUIDOrNil(row.ID),
		TenantID:    parseUUIDOrNil(row.TenantID),
		ClientID:    clientID,
		Name:        row.Name,
		Description: row.Description.String,
		Status:      project.Status(row.Status),
		Budget:      row.Budget,
		CreatedAt:   row.CreatedAt,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}

func toDBSection(s *section.Section) *models.Section {
	return &models.Section{
		ID:        s.ID.String(),
		TenantID:  s.TenantID.String(),
		ProjectID: s.ProjectID.String(),
		Name:      s.Name,
		Position:  s.Position,
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func toDomainSection(row *models.Section) *section.Section {
	return &section.Section{
		ID:        parseUUIDOrNil(row.ID),
		TenantID:  parseUUIDOrNil(row.TenantID),
		ProjectID: parseUUIDOrNil(row.ProjectID),
		Name:      row.Name,
		Position:  row.Position,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}

func toDBTask(t *task.Task) *models.Task {
	return &models.Task{
		ID:           t.ID.String(),
		TenantID:     t.TenantID.String(),
		ProjectID:    t.ProjectID.String(),
		SectionID:    mapping.UUIDPointerToSQLNullString(t.SectionID),
		ParentTaskID: mapping.UUIDPointerToSQLNullString(t.ParentTaskID),
		AssigneeID:   mapping.UUIDPointerToSQLNullString(t.AssigneeID),
		Title:        t.Title,
		Notes:        mapping.ValueToSQLNullString(t.Notes),
		DueAt:        mapping.PointerToSQLNullTime(t.DueAt),
		Completed:    t.Completed,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

func toDomainTask(row *models.Task) (*task.Task, error) {
	sectionID, err := mapping.SQLNullStringToUUIDPointer(row.SectionID)
	if err != nil {
		return nil, err
	}
	parentTaskID, err := mapping.SQLNullStringToUUIDPointer(row.ParentTaskID)
	if err != nil {
		return nil, err
	}
	assigneeID, err := mapping.SQLNullStringToUUIDPointer(row.AssigneeID)
	if err != nil {
		return nil, err
	}
	return &task.Task{
		ID:           parseUUIDOrNil(row.ID),
		TenantID:     parseUUIDOrNil(row.TenantID),
		ProjectID:    parseUUIDOrNil(row.ProjectID),
		SectionID:    sectionID,
		ParentTaskID: parentTaskID,
		AssigneeID:   assigneeID,
		Title:        row.Title,
		Notes:        row.Notes.String,
		DueAt:        mapping.SQLNullTimeToPointer(row.DueAt),
		Completed:    row.Completed,
		CreatedAt:    row.CreatedAt,
		UpdatedAt:    row.UpdatedAt,
	}, nil
}

func toDBTimeEntry(e *timeentry.TimeEntry) *models.TimeEntry {
	return &models.TimeEntry{
		ID:        e.ID.String(),
		TenantID:  e.TenantID.String(),
		UserID:    e.UserID.String(),
		ProjectID: mapping.UUIDPointerToSQLNullString(e.ProjectID),
		TaskID:    mapping.UUIDPointerToSQLNullString(e.TaskID),
		StartedAt: e.StartedAt,
		EndedAt:   mapping.PointerToSQLNullTime(e.EndedAt),
		Hours:     e.Hours,
		Notes:     mapping.ValueToSQLNullString(e.Notes),
		Billable:  e.Billable,
		CreatedAt: e.CreatedAt,
	}
}

func toDomainTimeEntry(row *models.TimeEntry) (*timeentry.TimeEntry, error) {
	projectID, err := mapping.SQLNullStringToUUIDPointer(row.ProjectID)
	if err != nil {
		return nil, err
	}
	taskID, err := mapping.SQLNullStringToUUIDPointer(row.TaskID)
	if err != nil {
		return nil, err
	}
	return &timeentry.TimeEntry{
		ID:        parseUUIDOrNil(row.ID),
		TenantID:  parseUUIDOrNil(row.TenantID),
		UserID:    parseUUIDOrNil(row.UserID),
		ProjectID: projectID,
		TaskID:    taskID,
		StartedAt: row.StartedAt,
		EndedAt:   mapping.SQLNullTimeToPointer(row.EndedAt),
		Hours:     row.Hours,
		Notes:     row.Notes.String,
		Billable:  row.Billable,
		CreatedAt: row.CreatedAt,
	}, nil
}
