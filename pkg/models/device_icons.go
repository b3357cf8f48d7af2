package models

import "strings"

// DeviceIcon maps a lower-cased DeviceType to its icon identifier.
// Identifiers use Lucide icon names (https://lucide.dev) for
// compatibility with the React dashboard.
var DeviceIcon = map[string]string{
	"pc":       "monitor",
	"laptop":   "laptop",
	"monitor":  "monitor-smartphone",
	"printer":  "printer",
	"ram":      "memory-stick",
	"keyboard": "keyboard",
	"mouse":    "mouse",
	"ups":      "battery-charging",
	"router":   "router",
}

// Icon returns the icon identifier for a DeviceType.
// Returns "package" for unrecognised types.
func (dt DeviceType) Icon() string {
	if icon, ok := DeviceIcon[strings.ToLower(strings.TrimSpace(string(dt)))]; ok {
		return icon
	}
	return "package"
}
