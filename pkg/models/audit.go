package models

// Change is the event payload modules publish after a successful write.
// The history module records every Change it sees.
type Change struct {
	Actor        string         `json:"actor"`
	Role         string         `json:"role,omitempty"`
	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   string         `json:"resource_id"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}
