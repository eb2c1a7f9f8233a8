package asana

// Provider is the identifier recorded in the integration entity map.
const Provider = "asana"

type User struct {
	GID   string `json:"gid"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Team struct {
	GID  string `json:"gid"`
	Name string `json:"name"`
}

type Project struct {
	GID      string `json:"gid"`
	Name     string `json:"name"`
	Notes    string `json:"notes"`
	Archived bool   `json:"archived"`
	Team     *Team  `json:"team"`
}

type Section struct {
	GID  string `json:"gid"`
	Name string `json:"name"`
}

type sectionRef struct {
	GID string `json:"gid"`
}

type userRef struct {
	GID string `json:"gid"`
}

type taskRef struct {
	GID string `json:"gid"`
}

type membership struct {
	Section *sectionRef `json:"section"`
}

type Task struct {
	GID         string       `json:"gid"`
	Name        string       `json:"name"`
	Notes       string       `json:"notes"`
	Completed   bool         `json:"completed"`
	DueOn       string       `json:"due_on"`
	Assignee    *userRef     `json:"assignee"`
	Memberships []membership `json:"memberships"`
	NumSubtasks int          `json:"num_subtasks"`
	Parent      *taskRef     `json:"parent"`
}

// AssigneeGID returns the assignee's gid or "" when unassigned.
func (t Task) AssigneeGID() string {
	if t.Assignee == nil {
		return ""
	}
	return t.Assignee.GID
}

// SectionGID returns the task's first section membership or "".
func (t Task) SectionGID() string {
	for _, m := range t.Memberships {
		if m.Section != nil && m.Section.GID != "" {
			return m.Section.GID
		}
	}
	return ""
}

// ParentGID returns the parent task's gid or "" for top-level tasks.
func (t Task) ParentGID() string {
	if t.Parent == nil {
		return ""
	}
	return t.Parent.GID
}
