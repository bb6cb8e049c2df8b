package main

import (
	"time"

	"github.com/matst80/fogsock/internal/registry"
)

// Stats represents current server stats for dashboards & API.
type Stats struct {
	registry.Stats
	Control []string `json:"control"`
	Message []string `json:"message"`
	Now     string   `json:"now"`
}

func collectStats(reg *registry.Registry) Stats {
	return Stats{
		Stats:   reg.Stats(),
		Control: reg.Peers(registry.Control),
		Message: reg.Peers(registry.Message),
		Now:     time.Now().UTC().Format(time.RFC3339),
	}
}

// ToTemplateMap returns a map suited for html/template rendering with expected capitalized keys.
func (s Stats) ToTemplateMap() map[string]any {
	return map[string]any{
		"ControlPeers":    s.ControlPeers,
		"MessagePeers":    s.MessagePeers,
		"PendingMessages": s.PendingMessages,
		"PendingControls": s.PendingControls,
		"AwaitingPongs":   s.AwaitingPongs,
		"Control":         s.Control,
		"Message":         s.Message,
	}
}
