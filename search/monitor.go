package search

import "github.com/poiesic/tripkb/core"

// SearchMonitor observes the stages of a search. Used by the CLI to
// explain rankings.
type SearchMonitor interface {
	Start(scope Scope, limit int)
	AfterScopeResolution(groupIDs []string)
	AfterQueryEmbedding(dimensions int)
	Finish(matches []*core.TopicMatch)
}

type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ Scope, _ int)            {}
func (n *noopMonitor) AfterScopeResolution(_ []string) {}
func (n *noopMonitor) AfterQueryEmbedding(_ int)       {}
func (n *noopMonitor) Finish(_ []*core.TopicMatch)     {}
