package course

import "fmt"

// Structural edits return new values and never touch the receiver's slices,
// so a Course shared between viewers can be edited without aliasing.

// Clone returns a deep copy of the course.
func (c Course) Clone() Course {
	out := c
	out.Tags = append([]string(nil), c.Tags...)
	out.Modules = make([]Module, len(c.Modules))
	for i, m := range c.Modules {
		out.Modules[i] = m.Clone()
	}
	return out
}

// Clone returns a deep copy of the module.
func (m Module) Clone() Module {
	out := m
	out.Lessons = make([]Lesson, len(m.Lessons))
	for i, l := range m.Lessons {
		l.Images = append([]string(nil), l.Images...)
		out.Lessons[i] = l
	}
	return out
}

// WithModule returns a copy of c with m appended.
func (c Course) WithModule(m Module) Course {
	return c.InsertModule(len(c.Modules), m)
}

// InsertModule returns a copy of c with m inserted at index i.
func (c Course) InsertModule(i int, m Module) Course {
	if i < 0 || i > len(c.Modules) {
		i = len(c.Modules)
	}
	out := c.Clone()
	modules := make([]Module, 0, len(out.Modules)+1)
	modules = append(modules, out.Modules[:i]...)
	modules = append(modules, m.Clone())
	modules = append(modules, out.Modules[i:]...)
	out.Modules = modules
	return out
}

// RemoveModule returns a copy of c without the module id.
func (c Course) RemoveModule(id string) (Course, error) {
	out := c.Clone()
	for i, m := range out.Modules {
		if m.ID == id {
			out.Modules = append(out.Modules[:i:i], out.Modules[i+1:]...)
			return out, nil
		}
	}
	return c, fmt.Errorf("module not found: %s", id)
}

// UpdateModule returns a copy of c where module id is replaced by fn(module).
func (c Course) UpdateModule(id string, fn func(Module) Module) (Course, error) {
	out := c.Clone()
	for i, m := range out.Modules {
		if m.ID == id {
			out.Modules[i] = fn(m).Clone()
			return out, nil
		}
	}
	return c, fmt.Errorf("module not found: %s", id)
}

// WithLesson returns a copy of m with l appended.
func (m Module) WithLesson(l Lesson) Module {
	out := m.Clone()
	l.Images = append([]string(nil), l.Images...)
	out.Lessons = append(out.Lessons, l)
	return out
}

// RemoveLesson returns a copy of m without the lesson id.
func (m Module) RemoveLesson(id string) (Module, error) {
	out := m.Clone()
	for i, l := range out.Lessons {
		if l.ID == id {
			out.Lessons = append(out.Lessons[:i:i], out.Lessons[i+1:]...)
			return out, nil
		}
	}
	return m, fmt.Errorf("lesson not found: %s", id)
}

// UpdateLesson returns a copy of m where lesson id is replaced by fn(lesson).
func (m Module) UpdateLesson(id string, fn func(Lesson) Lesson) (Module, error) {
	out := m.Clone()
	for i, l := range out.Lessons {
		if l.ID == id {
			updated := fn(l)
			updated.Images = append([]string(nil), updated.Images...)
			out.Lessons[i] = updated
			return out, nil
		}
	}
	return m, fmt.Errorf("lesson not found: %s", id)
}

// Project returns a copy of c whose lesson Completed flags reflect done.
// It must be re-run whenever the viewer or their progress changes.
func (c Course) Project(done func(LessonRef) bool) Course {
	out := c.Clone()
	for mi := range out.Modules {
		m := &out.Modules[mi]
		for li := range m.Lessons {
			ref := LessonRef{ModuleID: m.ID, LessonID: m.Lessons[li].ID}
			m.Lessons[li].Completed = done != nil && done(ref)
		}
	}
	return out
}
