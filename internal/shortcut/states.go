package shortcut

import "strings"

// StateIndex indexes the states of one workflow for lookup by name or type.
type StateIndex struct {
	Workflow Workflow
	byName   map[string]WorkflowState
}

// NewStateIndex builds a StateIndex for the given workflow.
func NewStateIndex(wf Workflow) *StateIndex {
	idx := &StateIndex{
		Workflow: wf,
		byName:   make(map[string]WorkflowState, len(wf.States)),
	}
	for _, s := range wf.States {
		idx.byName[strings.ToLower(s.Name)] = s
	}
	return idx
}

// ByName finds a state by case-insensitive name.
func (idx *StateIndex) ByName(name string) (WorkflowState, bool) {
	s, ok := idx.byName[strings.ToLower(name)]
	return s, ok
}

// FirstOfType returns the lowest-positioned state of the given type.
func (idx *StateIndex) FirstOfType(stateType string) (WorkflowState, bool) {
	var (
		found WorkflowState
		ok    bool
	)
	for _, s := range idx.Workflow.States {
		if !strings.EqualFold(s.Type, stateType) {
			continue
		}
		if !ok || s.Position < found.Position {
			found, ok = s, true
		}
	}
	return found, ok
}
