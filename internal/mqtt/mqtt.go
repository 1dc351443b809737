// Package mqtt publishes the meter's text log lines to an MQTT broker,
// with abstraction for testing.
package mqtt

import "strings"

// TopicPrefix is the root of all power meter topics.
const TopicPrefix = "energy/power-meter"

// Publisher sends log lines to the broker.
type Publisher interface {
	// PublishHeader sends the column header line (retained).
	PublishHeader(line string) error

	// PublishLine sends one data row.
	// Returns error if publishing fails (should not crash the process).
	PublishLine(line string) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// LogTopic returns the topic data rows for the named meter go to.
func LogTopic(name string) string {
	return TopicPrefix + "/" + topicName(name) + "/log"
}

// HeaderTopic returns the retained header topic for the named meter.
func HeaderTopic(name string) string {
	return TopicPrefix + "/" + topicName(name) + "/header"
}

// topicName strips characters that are not allowed in a topic level.
func topicName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.NewReplacer("/", "_", "+", "_", "#", "_", " ", "_").Replace(name)
	if name == "" {
		return "default"
	}
	return name
}
