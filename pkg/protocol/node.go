// Package protocol defines the contracts of pluggable condition and action kinds.
package protocol

// NodeFactory describes a node kind and builds instances from node settings.
type NodeFactory interface {
	// ID returns the node title this factory handles, e.g. "Show Modal".
	ID() string

	// Description returns what nodes of this kind do.
	Description() string

	// Schema returns the JSON schema of the node settings.
	Schema() map[string]any
}
