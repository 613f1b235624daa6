package hermit

import "github.com/hermit-os/kernel/internal/constants"

// Re-export the build-time tunables most embedders need without an import
// of internal/constants.
const (
	MaxTasks       = constants.MaxTasks
	MaxPriority    = constants.MaxPriority
	NumPriorities  = constants.NumPriorities
	PageSize       = constants.PageSize
	DefaultTickHz  = constants.DefaultTickHz
	ProxyMagic     = constants.ProxyMagic
	ProxyControlPort = constants.ProxyControlPort
)
