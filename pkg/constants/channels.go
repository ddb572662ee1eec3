// Package constants holds small shared enumerations used across the
// notification and command-ingestion layers.
package constants

// internalChannels are synthetic channel names used for commands that
// originate inside the process itself rather than from a chat transport.
var internalChannels = map[string]bool{
	"cli":      true,
	"system":   true,
	"subagent": true,
}

// IsInternalChannel reports whether channel names a synthetic, non-chat
// origin such as the CLI or the agent's own scheduler.
func IsInternalChannel(channel string) bool {
	return internalChannels[channel]
}
