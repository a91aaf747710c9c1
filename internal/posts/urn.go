package posts

import (
	"fmt"
	"math/bits"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// URN is a parsed LinkedIn content urn such as urn:li:activity:7150000000000000000.
type URN struct {
	Kind string
	ID   string
}

func (u URN) String() string {
	return "urn:li:" + u.Kind + ":" + u.ID
}

var (
	urnPattern      = regexp.MustCompile(`urn:li:(activity|share|ugcPost):(\d+)`)
	activityPattern = regexp.MustCompile(`activity[-:](\d{10,})`)
	relativePattern = regexp.MustCompile(`^(\d+)\s*(mo|months?|yrs?|years?|y|w|weeks?|d|days?|h|hrs?|hours?|m|mins?|minutes?|s|secs?|seconds?)\b`)
)

// ParseURN extracts a content urn from a urn string or a post URL. URLs of
// the form .../posts/name_slug-activity-7150000000000000000-abcd are
// accepted as well.
func ParseURN(s string) (URN, error) {
	s = strings.TrimSpace(s)
	if m := urnPattern.FindStringSubmatch(s); m != nil {
		return URN{Kind: m[1], ID: m[2]}, nil
	}
	if m := activityPattern.FindStringSubmatch(s); m != nil {
		return URN{Kind: "activity", ID: m[1]}, nil
	}
	return URN{}, fmt.Errorf("%w: %q", ErrInvalidURN, s)
}

// Time recovers the creation time LinkedIn encodes in the first 41 bits of
// a post id.
func (u URN) Time() (time.Time, bool) {
	id, err := strconv.ParseUint(u.ID, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	shift := bits.Len64(id) - 41
	if shift <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(int64(id >> shift)).UTC(), true
}

// PostedAt works out when a remote post was published. It prefers the time
// encoded in the urn, then an absolute timestamp, then a relative label like
// "3d" or "2 weeks ago" measured from now.
func PostedAt(urn, label string, now time.Time) (time.Time, bool) {
	if u, err := ParseURN(urn); err == nil {
		if t, ok := u.Time(); ok {
			return t, true
		}
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339Nano, label); err == nil {
		return t.UTC(), true
	}
	if ms, err := strconv.ParseInt(label, 10, 64); err == nil && ms > 0 {
		return time.UnixMilli(ms).UTC(), true
	}
	return relativeTime(label, now)
}

func relativeTime(label string, now time.Time) (time.Time, bool) {
	l := strings.ToLower(label)
	if l == "now" || l == "just now" {
		return now.UTC(), true
	}
	m := relativePattern.FindStringSubmatch(l)
	if m == nil {
		return time.Time{}, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, false
	}
	unit := m[2]
	var d time.Duration
	switch {
	case strings.HasPrefix(unit, "mo"):
		return now.AddDate(0, -n, 0).UTC(), true
	case strings.HasPrefix(unit, "y"):
		return now.AddDate(-n, 0, 0).UTC(), true
	case strings.HasPrefix(unit, "w"):
		d = time.Duration(n) * 7 * 24 * time.Hour
	case strings.HasPrefix(unit, "d"):
		d = time.Duration(n) * 24 * time.Hour
	case strings.HasPrefix(unit, "h"):
		d = time.Duration(n) * time.Hour
	case strings.HasPrefix(unit, "m"):
		d = time.Duration(n) * time.Minute
	default:
		d = time.Duration(n) * time.Second
	}
	return now.Add(-d).UTC(), true
}
