package sheet

import "github.com/go-faster/errors"

type FieldType string

const (
	FieldTypeString   FieldType = "string"
	FieldTypeNumber   FieldType = "number"
	FieldTypeDatetime FieldType = "datetime"
	FieldTypeEnum     FieldType = "enum"
	FieldTypeBoolean  FieldType = "boolean"
	FieldTypeEmail    FieldType = "email"
)

// EntityType names a sheet layout the import wizard understands.
type EntityType string

const (
	EntityTypeClients     EntityType = "clients"
	EntityTypeProjects    EntityType = "projects"
	EntityTypeTasks       EntityType = "tasks"
	EntityTypeUsers       EntityType = "users"
	EntityTypeAdmins      EntityType = "admins"
	EntityTypeTimeEntries EntityType = "time_entries"
)

func (t EntityType) Valid() bool {
	switch t {
	case EntityTypeClients, EntityTypeProjects, EntityTypeTasks,
		EntityTypeUsers, EntityTypeAdmins, EntityTypeTimeEntries:
		return true
	}
	return false
}

func EntityTypes() []EntityType {
	return []EntityType{
		EntityTypeClients,
		EntityTypeProjects,
		EntityTypeTasks,
		EntityTypeUsers,
		EntityTypeAdmins,
		EntityTypeTimeEntries,
	}
}

// FieldDefinition describes one target field of a sheet layout. Resolver
// fields hold natural-key references to other entities (a client name, an
// assignee email) that are resolved against tenant data instead of being
// stored literally.
type FieldDefinition struct {
	Key        string    `json:"key"`
	Label      string    `json:"label"`
	Type       FieldType `json:"type"`
	Required   bool      `json:"required"`
	Aliases    []string  `json:"aliases,omitempty"`
	EnumValues []string  `json:"enumValues,omitempty"`
	Resolver   bool      `json:"resolver,omitempty"`
}

var ErrUnknownEntityType = errors.New("unknown entity type")

// Catalog returns the ordered field list for a sheet layout. Order matters:
// mapping suggestion walks fields first to last and earlier fields win
// contested source columns.
func Catalog(t EntityType) ([]FieldDefinition, error) {
	fields, ok := catalogs[t]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownEntityType, "%q", string(t))
	}
	return fields, nil
}

var catalogs = map[EntityType][]FieldDefinition{
	EntityTypeClients: {
		{Key: "companyName", Label: "Company Name", Type: FieldTypeString, Required: true,
			Aliases: []string{"company", "client", "client name", "name", "organization", "organisation"}},
		{Key: "contactName", Label: "Contact Name", Type: FieldTypeString,
			Aliases: []string{"contact", "contact person", "primary contact"}},
		{Key: "email", Label: "Email", Type: FieldTypeEmail,
			Aliases: []string{"e-mail", "email address", "contact email"}},
		{Key: "phone", Label: "Phone", Type: FieldTypeString,
			Aliases: []string{"phone number", "tel", "telephone", "mobile"}},
		{Key: "notes", Label: "Notes", Type: FieldTypeString,
			Aliases: []string{"note", "description", "comments"}},
		{Key: "parentClientName", Label: "Parent Client", Type: FieldTypeString, Resolver: true,
			Aliases: []string{"parent", "parent company", "parent client name"}},
	},
	EntityTypeProjects: {
		{Key: "name", Label: "Project Name", Type: FieldTypeString, Required: true,
			Aliases: []string{"project", "project name", "title"}},
		{Key: "clientName", Label: "Client", Type: FieldTypeString, Resolver: true,
			Aliases: []string{"client", "client name", "company", "customer"}},
		{Key: "description", Label: "Description", Type: FieldTypeString,
			Aliases: []string{"notes", "details", "summary"}},
		{Key: "status", Label: "Status", Type: FieldTypeEnum,
			EnumValues: []string{"active", "archived", "completed"},
			Aliases:    []string{"state", "project status"}},
		{Key: "budget", Label: "Budget", Type: FieldTypeNumber,
			Aliases: []string{"project budget", "cost", "amount"}},
	},
	EntityTypeTasks: {
		{Key: "title", Label: "Task Title", Type: FieldTypeString, Required: true,
			Aliases: []string{"task", "task name", "name", "summary"}},
		{Key: "projectName", Label: "Project", Type: FieldTypeString, Required: true, Resolver: true,
			Aliases: []string{"project", "project name"}},
		{Key: "sectionName", Label: "Section", Type: FieldTypeString, Resolver: true,
			Aliases: []string{"section", "column", "stage", "board column"}},
		{Key: "assigneeEmail", Label: "Assignee Email", Type: FieldTypeEmail, Resolver: true,
			Aliases: []string{"assignee", "assigned to", "owner", "owner email"}},
		{Key: "dueDate", Label: "Due Date", Type: FieldTypeDatetime,
			Aliases: []string{"due", "deadline", "due on"}},
		{Key: "notes", Label: "Notes", Type: FieldTypeString,
			Aliases: []string{"description", "details"}},
		{Key: "completed", Label: "Completed", Type: FieldTypeBoolean,
			Aliases: []string{"done", "complete", "is complete", "finished"}},
		{Key: "parentTaskTitle", Label: "Parent Task", Type: FieldTypeString, Resolver: true,
			Aliases: []string{"parent", "parent task", "subtask of"}},
	},
	EntityTypeUsers: {
		{Key: "email", Label: "Email", Type: FieldTypeEmail, Required: true,
			Aliases: []string{"e-mail", "email address", "user email", "login"}},
		{Key: "firstName", Label: "First Name", Type: FieldTypeString,
			Aliases: []string{"first", "forename", "given name"}},
		{Key: "lastName", Label: "Last Name", Type: FieldTypeString,
			Aliases: []string{"last", "surname", "family name"}},
	},
	EntityTypeAdmins: {
		{Key: "email", Label: "Email", Type: FieldTypeEmail, Required: true,
			Aliases: []string{"e-mail", "email address", "admin email", "login"}},
		{Key: "firstName", Label: "First Name", Type: FieldTypeString,
			Aliases: []string{"first", "forename", "given name"}},
		{Key: "lastName", Label: "Last Name", Type: FieldTypeString,
			Aliases: []string{"last", "surname", "family name"}},
	},
	EntityTypeTimeEntries: {
		{Key: "userEmail", Label: "User Email", Type: FieldTypeEmail, Required: true, Resolver: true,
			Aliases: []string{"user", "email", "member email", "member"}},
		{Key: "startTime", Label: "Start Time", Type: FieldTypeDatetime, Required: true,
			Aliases: []string{"start", "started at", "start date", "from"}},
		{Key: "endTime", Label: "End Time", Type: FieldTypeDatetime,
			Aliases: []string{"end", "ended at", "end date", "to"}},
		{Key: "projectName", Label: "Project", Type: FieldTypeString, Resolver: true,
			Aliases: []string{"project", "project name"}},
		{Key: "taskTitle", Label: "Task", Type: FieldTypeString, Resolver: true,
			Aliases: []string{"task", "task title", "task name"}},
		{Key: "hours", Label: "Hours", Type: FieldTypeNumber,
			Aliases: []string{"duration", "time spent", "hrs"}},
		{Key: "notes", Label: "Notes", Type: FieldTypeString,
			Aliases: []string{"description", "comment", "details"}},
		{Key: "billable", Label: "Billable", Type: FieldTypeBoolean,
			Aliases: []string{"is billable", "billed"}},
	},
}
