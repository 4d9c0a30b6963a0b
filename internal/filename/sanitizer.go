// Package filename maps remote identifiers and titles to filesystem-safe names
package filename

import (
	"regexp"

	"golang.org/x/text/unicode/norm"
)

// disallowedRuns matches every run of characters outside [A-Za-z0-9_.-]
var disallowedRuns = regexp.MustCompile(`[^A-Za-z0-9_.\-]+`)

// Sanitize returns s with every run of characters outside letters, digits,
// underscore, hyphen and period replaced by a single underscore. The input is
// put in NFC first so canonically equivalent strings map to the same name.
// Sanitize is total and idempotent.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}
	return disallowedRuns.ReplaceAllString(norm.NFC.String(s), "_")
}

// IsSafe reports whether s already consists only of allowed characters
func IsSafe(s string) bool {
	return !disallowedRuns.MatchString(s)
}

// MetadataFileName returns the local name of the meeting metadata document,
// derived from "{meetingID}-{topic}.json"
func MetadataFileName(meetingID, topic string) string {
	return Sanitize(meetingID + "-" + topic + ".json")
}

// VideoFileName returns the local name of one recording file, derived from
// "{meetingID}-{recordingType}.{extension}"
func VideoFileName(meetingID, recordingType, extension string) string {
	return Sanitize(meetingID + "-" + recordingType + "." + extension)
}
