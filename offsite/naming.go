package offsite

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const deltaSuffix = ".delta"

var dirNameRE = regexp.MustCompile(`^(\d{4})\.(\d{2})\.(\d{2})\.(\d{2})\.(\d{2})\.(\d{2})-(\d+)(\.delta)?$`)

// dirInfo is a parsed offsite working-directory name.
type dirInfo struct {
	name    string
	when    time.Time
	isDelta bool
}

// newDirName formats the timestamped directory name for an offsite run, per
// spec §4.7: a primary directory carries no suffix, a delta carries
// ".delta". The timestamp is always zero-padded to 6 digits of
// microseconds (§9 design note) so lexicographic and chronological
// ordering agree, regardless of what width a directory produced elsewhere
// used.
func newDirName(when time.Time, isDelta bool) string {
	name := fmt.Sprintf("%04d.%02d.%02d.%02d.%02d.%02d-%06d",
		when.Year(), when.Month(), when.Day(), when.Hour(), when.Minute(), when.Second(), when.Nanosecond()/1000)

	if isDelta {
		name += deltaSuffix
	}

	return name
}

// parseDirName parses a directory name produced by newDirName (or by a
// compatible implementation using a different digit width for the
// microseconds field).
func parseDirName(name string) (dirInfo, bool) {
	m := dirNameRE.FindStringSubmatch(name)
	if m == nil {
		return dirInfo{}, false
	}

	year, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	day, _ := strconv.Atoi(m[3])
	hour, _ := strconv.Atoi(m[4])
	minute, _ := strconv.Atoi(m[5])
	sec, _ := strconv.Atoi(m[6])
	micros, _ := strconv.Atoi(m[7])

	when := time.Date(year, time.Month(month), day, hour, minute, sec, micros*1000, time.UTC)

	return dirInfo{name: name, when: when, isDelta: m[8] == deltaSuffix}, true
}
