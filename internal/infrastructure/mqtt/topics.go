package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes of the archive's MQTT namespace.
//
// Observations arrive on obsarchive/observations/{report}/{station}; the
// last two levels are informative and may be omitted by publishers.
const (
	// TopicPrefix is the root of every archive topic.
	TopicPrefix = "obsarchive"

	// TopicPrefixObservations is the base for incoming observation messages.
	TopicPrefixObservations = "obsarchive/observations"

	// TopicPrefixIngest is the base for ingest feedback topics.
	TopicPrefixIngest = "obsarchive/ingest"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "obsarchive/system"
)

// Topics provides builders for archive MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	topic := topics.Observation("synop", "16144")
//	// Returns: "obsarchive/observations/synop/16144"
type Topics struct{}

// Observation returns the topic a station publishes observations on.
//
// Example: obsarchive/observations/synop/16144
func (Topics) Observation(report, station string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixObservations, report, station)
}

// AllObservations returns a pattern matching every observation topic.
//
// Pattern: obsarchive/observations/#
func (Topics) AllObservations() string {
	return TopicPrefixObservations + "/#"
}

// Rejected returns the topic where messages the archive refused are echoed.
//
// Example: obsarchive/ingest/rejected/synop
func (Topics) Rejected(report string) string {
	return fmt.Sprintf("%s/rejected/%s", TopicPrefixIngest, report)
}

// IngestStats returns the retained topic carrying ingest counters.
//
// Example: obsarchive/ingest/stats
func (Topics) IngestStats() string {
	return TopicPrefixIngest + "/stats"
}

// SystemStatus returns the system status topic.
//
// Example: obsarchive/system/status
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// ParseObservationTopic extracts the report and station levels from an
// observation topic. Missing levels are returned empty; ok is false when the
// topic is outside the observation namespace.
func ParseObservationTopic(topic string) (report, station string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixObservations)
	if !found || (rest != "" && rest[0] != '/') {
		return "", "", false
	}
	parts := strings.SplitN(strings.TrimPrefix(rest, "/"), "/", 2)
	report = parts[0]
	if len(parts) == 2 {
		station = parts[1]
	}
	return report, station, true
}

// MatchTopic reports whether topic matches the subscription pattern,
// honouring the + and # wildcards.
func MatchTopic(pattern, topic string) bool {
	pp := strings.Split(pattern, "/")
	tp := strings.Split(topic, "/")
	for i, p := range pp {
		switch {
		case p == "#":
			return true
		case i >= len(tp):
			return false
		case p != "+" && p != tp[i]:
			return false
		}
	}
	return len(pp) == len(tp)
}
