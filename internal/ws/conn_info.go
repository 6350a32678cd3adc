package ws

import "time"

type ConnInfo struct {
	ConnID      string
	Viewer      string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}
