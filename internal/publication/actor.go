package publication

// Actor is the identity performing an operation. Groups holds memberships in
// the form "/group" or "role:/group".
type Actor struct {
	ID     string
	Groups []string
	// System marks the scheduler and other trusted in-process callers.
	System bool
}

func (a Actor) MemberOf(group string) bool {
	for _, g := range a.Groups {
		if g == group {
			return true
		}
	}
	return false
}

// SystemActor acts on behalf of userID with standing authorization.
func SystemActor(userID string) Actor {
	return Actor{ID: userID, System: true}
}
