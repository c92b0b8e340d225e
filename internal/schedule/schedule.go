package schedule

import (
	"sort"
	"time"
)

// UnknownSession is the session that data rows are filed under when no group
// header row precedes them.
const UnknownSession = "unknown"

// RecordLifetime is how long a persisted record lives before the store expires it.
const RecordLifetime = 365 * 24 * time.Hour

// TimestampLayout is the ISO-8601 UTC layout used for created/modified.
const TimestampLayout = "2006-01-02T15:04:05Z"

type ClassRecord struct {
	City  string `json:"city"`
	Start string `json:"start"`
	End   string `json:"end"`
}

// Sessions maps a session name to the classes listed under it, keyed by class name.
type Sessions map[string]map[string]ClassRecord

// Put files a record under the given session, creating the session if needed.
// A record with the same name replaces the previous one.
func (s Sessions) Put(session, name string, record ClassRecord) {
	classes, ok := s[session]
	if !ok {
		classes = map[string]ClassRecord{}
		s[session] = classes
	}
	classes[name] = record
}

// Count returns the total number of (session, name) pairs.
func (s Sessions) Count() int {
	count := 0
	for _, classes := range s {
		count += len(classes)
	}
	return count
}

// SessionNames returns the session names in sorted order.
func (s Sessions) SessionNames() []string {
	names := make([]string, 0, len(s))
	for session := range s {
		names = append(names, session)
	}
	sort.Strings(names)
	return names
}

// ClassNames returns the class names under a session in sorted order.
func (s Sessions) ClassNames(session string) []string {
	classes := s[session]
	names := make([]string, 0, len(classes))
	for name := range classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Delta is the part of a fresh parse that the store has not seen yet.
type Delta struct {
	Sessions Sessions
	Count    int
}

func (d Delta) Empty() bool {
	return d.Count == 0
}

// PersistedClassRecord is a ClassRecord as it is written to the store.
type PersistedClassRecord struct {
	Session  string `json:"session"`
	Name     string `json:"name"`
	City     string `json:"city"`
	Start    string `json:"start"`
	End      string `json:"end"`
	Created  string `json:"created"`
	Modified string `json:"modified"`
	// Ttl is the expiry of the record in unix seconds.
	Ttl int64 `json:"ttl"`
}

// Stamp turns a class record into its persisted form. now should already be
// in UTC and truncated to the second.
func Stamp(session, name string, record ClassRecord, now time.Time) PersistedClassRecord {
	iso := now.Format(TimestampLayout)
	return PersistedClassRecord{
		Session:  session,
		Name:     name,
		City:     record.City,
		Start:    record.Start,
		End:      record.End,
		Created:  iso,
		Modified: iso,
		Ttl:      now.Add(RecordLifetime).Unix(),
	}
}

func (p PersistedClassRecord) Record() ClassRecord {
	return ClassRecord{City: p.City, Start: p.Start, End: p.End}
}
