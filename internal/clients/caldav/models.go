package caldav

import "time"

// Calendar is a discovered CalDAV collection.
type Calendar struct {
	ID          string
	DisplayName string
	URL         string
}

// RemoteEvent is a VEVENT as seen on the remote calendar. Events imported
// into the planner become fixed obstacle blocks; events published from the
// planner carry a block's placed span.
type RemoteEvent struct {
	UID         string
	Summary     string
	Description string
	StartTime   time.Time
	EndTime     time.Time
	AllDay      bool
}
