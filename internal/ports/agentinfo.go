package ports

// AgentInfoProvider supplies the global-metadata line the batching
// adapter attaches to every framed request body. The system-information
// provider itself (OS/network metadata gathering) is an external
// collaborator; this is only the contract the core consumes.
type AgentInfoProvider interface {
	Snapshot() map[string]any
}
