package authstate

// AuthState names the machine's position for logging and tests.
type AuthState string

const (
	StateUninitialized   AuthState = "uninitialized"
	StateResolving       AuthState = "resolving"
	StateAuthenticated   AuthState = "authenticated"
	StateUnauthenticated AuthState = "unauthenticated"
)

// Snapshot is the consumer-facing authentication tri-state. A snapshot is
// immutable once published: transitions replace the whole value, so no
// consumer ever observes IsLoading=false paired with stale user data.
type Snapshot struct {
	State           AuthState
	IsLoading       bool
	IsAuthenticated bool
	User            *User
}

// initialSnapshot is what consumers see between construction and the end of
// the first resolution cycle.
func initialSnapshot() Snapshot {
	return Snapshot{
		State:     StateResolving,
		IsLoading: true,
	}
}

func authenticatedSnapshot(user *User) Snapshot {
	return Snapshot{
		State:           StateAuthenticated,
		IsAuthenticated: true,
		User:            user,
	}
}

func unauthenticatedSnapshot() Snapshot {
	return Snapshot{
		State: StateUnauthenticated,
	}
}
