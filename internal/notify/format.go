package notify

import (
	"fmt"
	"strings"

	"perspectives-watch/internal/schedule"
)

const header = "New Perspectives sessions!"

// Format renders the new classes as plain text. Sessions and classes are listed
// in sorted order so the same delta always produces the same message, and the
// message always ends with the link.
//
// ex.
//
//	New Perspectives sessions!
//	Fall 2024:
//	[Oakland]	starting 2024-09-01
//
//
//	Link: https://...
func Format(delta schedule.Delta, link string) string {
	var out strings.Builder
	out.WriteString(header)

	for _, session := range delta.Sessions.SessionNames() {
		fmt.Fprintf(&out, "\n%s:\n", session)
		for _, name := range delta.Sessions.ClassNames(session) {
			record := delta.Sessions[session][name]
			fmt.Fprintf(&out, "[%s]\tstarting %s\n", record.City, record.Start)
		}
	}

	fmt.Fprintf(&out, "\n\nLink: %s", link)
	return out.String()
}
