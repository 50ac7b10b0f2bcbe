package agents

// State is what an agent is currently doing, as seen by others.
type State string

const (
	StateIdle        State = "idle"
	StateMoving      State = "moving"
	StateTalking     State = "talking"
	StateWorking     State = "working"
	StateSleeping    State = "sleeping"
	StateEating      State = "eating"
	StateSocializing State = "socializing"
)

// StateFor maps an action to the state it puts the agent in.
func StateFor(a Action) State {
	if a == nil {
		return StateIdle
	}
	switch a.Kind() {
	case KindMove:
		return StateMoving
	case KindTalk:
		return StateTalking
	case KindWork:
		return StateWorking
	case KindSleep:
		return StateSleeping
	case KindEat:
		return StateEating
	case KindSocialize:
		return StateSocializing
	default:
		return StateIdle
	}
}

// Approachable reports whether agents in this state accept spontaneous greetings.
func (s State) Approachable() bool {
	return s == StateIdle || s == StateSocializing
}
