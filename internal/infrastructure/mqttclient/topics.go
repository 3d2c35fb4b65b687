package mqttclient

import "fmt"

// TopicPrefixSystem is the base for the client's own liveness topics
// (LWT, shutdown signal). Domain topic schemes (HA discovery, sensor
// state, commands) live in internal/mqttbridge, not here — this package
// only needs a place to publish its own online/offline status.
const TopicPrefixSystem = "scryer/system"

// SystemTopics provides builders for the client's own liveness topics.
type SystemTopics struct{}

// SystemStatus returns the topic this client uses for its own LWT /
// online-offline availability.
func (SystemTopics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemTime returns the time-sync topic.
func (SystemTopics) SystemTime() string {
	return fmt.Sprintf("%s/time", TopicPrefixSystem)
}

// SystemShutdown returns the shutdown-signal topic.
func (SystemTopics) SystemShutdown() string {
	return fmt.Sprintf("%s/shutdown", TopicPrefixSystem)
}
