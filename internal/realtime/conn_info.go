package realtime

import "time"

// ConnInfo describes the current cable connection for events and logs.
type ConnInfo struct {
	ConnID      string
	URL         string
	ConnectedAt time.Time
}
