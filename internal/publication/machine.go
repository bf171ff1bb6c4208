package publication

import "time"

// EffectKind names a side effect the caller must apply after a transition.
type EffectKind int

const (
	// EffectSetSchedule writes PUBLICATION_STATE and SCHEDULE_POST_DATE.
	EffectSetSchedule EffectKind = iota + 1
	// EffectClearSchedule removes PUBLICATION_STATE and SCHEDULE_POST_DATE.
	EffectClearSchedule
	// EffectSetPublicationDate stamps the article publication date.
	EffectSetPublicationDate
	// EffectSetUnpublishSchedule writes UNPUBLISH_SCHEDULED and UNPUBLISH_SCHEDULED_DATE.
	EffectSetUnpublishSchedule
	// EffectClearUnpublishSchedule removes UNPUBLISH_SCHEDULED and UNPUBLISH_SCHEDULED_DATE.
	EffectClearUnpublishSchedule
	// EffectLinkTargets links requested targets to the article, hidden until it is published.
	EffectLinkTargets
	// EffectUnlinkTargets removes every target link of the article.
	EffectUnlinkTargets
	// EffectCascadeDelete deletes drafts, variants and links of the article.
	EffectCascadeDelete
	// EffectEmit emits Event.
	EffectEmit
)

// Effect is one side effect of a transition. At carries the instant for
// effects that need one.
type Effect struct {
	Kind  EffectKind
	At    time.Time
	Event EventKind
}

// Command is a requested action with its argument.
type Command struct {
	Action Action
	// Date is the schedule instant for ActionSchedule and ActionScheduleUnpublish.
	Date time.Time
}

// Snapshot is the part of an article the machine decides on.
type Snapshot struct {
	State State
	// UnpublishPending is set while a PUBLISHED article carries an unpublish schedule.
	UnpublishPending bool
}

// Transition is the outcome of a successful Apply.
type Transition struct {
	From    State
	To      State
	Action  Action
	Effects []Effect
	// UnpublishPending is the pending flag after the transition.
	UnpublishPending bool
}

// Has reports whether the transition carries an effect of the given kind.
func (t Transition) Has(kind EffectKind) bool {
	for _, e := range t.Effects {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// Events lists the events the transition emits, in order.
func (t Transition) Events() []EventKind {
	var kinds []EventKind
	for _, e := range t.Effects {
		if e.Kind == EffectEmit {
			kinds = append(kinds, e.Event)
		}
	}
	return kinds
}

// Apply computes the next state for cmd from current at instant now. It performs no I/O.
func Apply(current Snapshot, cmd Command, now time.Time) (Transition, error) {
	from := current.State
	if !from.Valid() {
		return Transition{}, invalidTransition(from, cmd.Action, "unknown current state")
	}
	now = now.UTC()

	t := Transition{
		From:             from,
		Action:           cmd.Action,
		UnpublishPending: current.UnpublishPending,
	}

	switch cmd.Action {
	case ActionEdit:
		if from.Terminal() {
			return Transition{}, invalidTransition(from, cmd.Action, "")
		}
		t.To = from
		t.Effects = []Effect{{Kind: EffectEmit, Event: EventArticleUpdated}}

	case ActionSchedule:
		if from != StateDraft {
			return Transition{}, invalidTransition(from, cmd.Action, "")
		}
		if err := validScheduleDate(cmd.Date, now, true); err != nil {
			return Transition{}, invalidTransition(from, cmd.Action, err.Error())
		}
		at := cmd.Date.UTC()
		t.To = StateStaged
		t.Effects = []Effect{
			{Kind: EffectSetSchedule, At: at},
			{Kind: EffectLinkTargets},
			{Kind: EffectEmit, Event: EventArticleScheduled, At: at},
		}

	case ActionUnschedule:
		if from != StateStaged {
			return Transition{}, invalidTransition(from, cmd.Action, "")
		}
		t.To = StateDraft
		t.Effects = []Effect{
			{Kind: EffectClearSchedule},
			{Kind: EffectUnlinkTargets},
			{Kind: EffectEmit, Event: EventArticleUnscheduled},
		}

	case ActionPublish:
		if from != StateDraft && from != StateStaged {
			return Transition{}, invalidTransition(from, cmd.Action, "")
		}
		t.To = StatePublished
		t.UnpublishPending = false
		t.Effects = []Effect{
			{Kind: EffectClearSchedule},
			{Kind: EffectSetPublicationDate, At: now},
			{Kind: EffectLinkTargets},
			{Kind: EffectEmit, Event: EventArticlePublished, At: now},
		}

	case ActionUnpublish:
		if from != StatePublished {
			return Transition{}, invalidTransition(from, cmd.Action, "")
		}
		t.To = StateUnpublished
		t.UnpublishPending = false
		t.Effects = []Effect{
			{Kind: EffectClearUnpublishSchedule},
			{Kind: EffectUnlinkTargets},
			{Kind: EffectEmit, Event: EventArticleUnpublished, At: now},
		}

	case ActionScheduleUnpublish:
		if from != StatePublished {
			return Transition{}, invalidTransition(from, cmd.Action, "")
		}
		if err := validScheduleDate(cmd.Date, now, false); err != nil {
			return Transition{}, invalidTransition(from, cmd.Action, err.Error())
		}
		at := cmd.Date.UTC()
		t.To = StatePublished
		t.UnpublishPending = true
		t.Effects = []Effect{
			{Kind: EffectSetUnpublishSchedule, At: at},
			{Kind: EffectEmit, Event: EventArticleUnpublishScheduled, At: at},
		}

	case ActionCancelUnpublishSchedule:
		if from != StatePublished || !current.UnpublishPending {
			return Transition{}, invalidTransition(from, cmd.Action, "no unpublish schedule pending")
		}
		t.To = StatePublished
		t.UnpublishPending = false
		t.Effects = []Effect{{Kind: EffectClearUnpublishSchedule}}

	case ActionDelete:
		if from.Terminal() {
			return Transition{}, invalidTransition(from, cmd.Action, "")
		}
		t.To = StateDeleted
		t.UnpublishPending = false
		t.Effects = []Effect{
			{Kind: EffectClearSchedule},
			{Kind: EffectClearUnpublishSchedule},
			{Kind: EffectUnlinkTargets},
			{Kind: EffectCascadeDelete},
			{Kind: EffectEmit, Event: EventArticleDeleted, At: now},
		}

	default:
		return Transition{}, invalidTransition(from, cmd.Action, "unsupported action")
	}

	return t, nil
}

type dateError string

func (e dateError) Error() string { return string(e) }

// validScheduleDate accepts instants at or after now, compared at millisecond
// precision since that is what the wire format keeps.
func validScheduleDate(date, now time.Time, future bool) error {
	if date.IsZero() {
		return dateError("schedule date is required")
	}
	if future && date.UTC().Truncate(time.Millisecond).Before(now.Truncate(time.Millisecond)) {
		return dateError("schedule date is in the past")
	}
	return nil
}
