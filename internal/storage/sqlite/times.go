package sqlite

import "time"

// timeLayout is RFC 3339 UTC with fixed-width milliseconds. The fixed width
// keeps stored timestamps lexicographically sortable, which the updated_at
// and created_at indexes rely on.
const timeLayout = "2006-01-02T15:04:05.000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// parseTime decodes a stored timestamp, tolerating plain RFC 3339 from
// legacy rows.
func parseTime(s string) time.Time {
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC()
	}
	return time.Time{}
}
