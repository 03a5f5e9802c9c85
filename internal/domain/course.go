package domain

import "sort"

// CourseContext is the LMS-derived view of a course used to order and group
// the uploaded tables. It is built once per request and never mutated.
type CourseContext struct {
	CourseID string
	// ModuleOrder maps a module name to its LMS position. When a name occurs
	// more than once in the LMS the first position wins.
	ModuleOrder map[string]int
	// StudentCount is nil when the LMS did not report an enrollment total.
	StudentCount *int
	// AssignmentModules maps an LMS assignment id to the name of the module
	// that contains it. Module items that carry no assignment id (quizzes,
	// discussions) are keyed by their title instead.
	AssignmentModules map[string]string
}

// ModuleNames returns module names in course order.
func (c *CourseContext) ModuleNames() []string {
	if c == nil || len(c.ModuleOrder) == 0 {
		return nil
	}
	type entry struct {
		name string
		pos  int
	}
	entries := make([]entry, 0, len(c.ModuleOrder))
	for n, p := range c.ModuleOrder {
		entries = append(entries, entry{n, p})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].pos != entries[j].pos {
			return entries[i].pos < entries[j].pos
		}
		return entries[i].name < entries[j].name
	})
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.name
	}
	return out
}

// UnassignedModule groups rows that cannot be matched to an LMS module.
const UnassignedModule = "Unassigned"
