package ports

// SessionSpec describes one secure computation run from the point of view of
// the local party.
type SessionSpec struct {
	SessionId string
	ListingId string
	// PartyIndex is the 0-based role of the local party, Parties the total
	// number of parties of the run.
	PartyIndex int
	Parties    int
	ProgramId  string
	// InputPath is the local file holding the secret input of the party.
	InputPath string
	// ListenAddr is the local address the engine must listen on for
	// connections from lower-indexed parties.
	ListenAddr string
	// PeerAddrs maps every remote party index to the loopback address of the
	// tunnel endpoint forwarding to that party.
	PeerAddrs map[int]string
}

// EngineProcess is a handle on a running computation engine subprocess. The
// session owning it is responsible for making sure the process is always
// waited for, on every exit path, so it never leaves a zombie behind.
type EngineProcess interface {
	// Done is closed when the process exited and was reaped. Err reports the
	// outcome after that.
	Done() <-chan struct{}
	// Err returns the exit error of the process, nil on clean exit. Only
	// meaningful after Done is closed.
	Err() error
	// Output returns the standard output produced by the process. Only
	// meaningful after Done is closed.
	Output() []byte
	// Kill terminates the process and waits for it to be reaped. It is safe
	// to call more than once and after a natural exit.
	Kill() error
}

// EngineRunner spawns the external secure computation engine for the local
// party of a session.
type EngineRunner interface {
	Start(spec SessionSpec) (EngineProcess, error)
}
