package notify

import (
	"time"

	"notifyhub/internal/models"
)

// inQuietHours reports whether now falls inside the recipient's do-not-
// disturb window. Both bounds unset means no window. A window with
// start > end wraps midnight.
func inQuietHours(p *models.Preference, now time.Time) bool {
	if p.QuietHoursStart == nil || p.QuietHoursEnd == nil {
		return false
	}
	start, end := *p.QuietHoursStart, *p.QuietHoursEnd
	hour := now.Hour()
	if start <= end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

// quietHoursEnd returns the next moment the window closes: today at the end
// hour if that is still ahead, otherwise tomorrow.
func quietHoursEnd(p *models.Preference, now time.Time) time.Time {
	end := *p.QuietHoursEnd
	boundary := time.Date(now.Year(), now.Month(), now.Day(), end, 0, 0, 0, now.Location())
	if !boundary.After(now) {
		boundary = boundary.Add(24 * time.Hour)
	}
	return boundary
}
