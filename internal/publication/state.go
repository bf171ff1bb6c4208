package publication

import "fmt"

// State is the publication lifecycle state of an article.
type State string

const (
	StateDraft       State = "draft"
	StateStaged      State = "staged"
	StatePublished   State = "published"
	StateUnpublished State = "unpublished"
	StateDeleted     State = "deleted"
)

// InitialState is the state every article is created in.
const InitialState = StateDraft

func (s State) Valid() bool {
	switch s {
	case StateDraft, StateStaged, StatePublished, StateUnpublished, StateDeleted:
		return true
	}
	return false
}

// Terminal reports whether no further transition can leave s.
func (s State) Terminal() bool {
	return s == StateDeleted
}

func (s State) String() string {
	return string(s)
}

// ParseState converts a stored value back into a State.
func ParseState(value string) (State, error) {
	s := State(value)
	if !s.Valid() {
		return "", fmt.Errorf("unknown publication state %q", value)
	}
	return s, nil
}

// Action is a requested lifecycle operation.
type Action string

const (
	ActionCreate                  Action = "create"
	ActionEdit                    Action = "edit"
	ActionSchedule                Action = "schedule"
	ActionUnschedule              Action = "unschedule"
	ActionPublish                 Action = "publish"
	ActionUnpublish               Action = "unpublish"
	ActionScheduleUnpublish       Action = "schedule_unpublish"
	ActionCancelUnpublishSchedule Action = "cancel_unpublish_schedule"
	ActionDelete                  Action = "delete"
)

// Requested is the state the action aims for, regardless of where it starts.
func (a Action) Requested() State {
	switch a {
	case ActionCreate, ActionUnschedule:
		return StateDraft
	case ActionSchedule:
		return StateStaged
	case ActionPublish, ActionScheduleUnpublish, ActionCancelUnpublishSchedule:
		return StatePublished
	case ActionUnpublish:
		return StateUnpublished
	case ActionDelete:
		return StateDeleted
	}
	return ""
}

func (a Action) String() string {
	return string(a)
}
