package engine

// UnknownTopic is published for agents missing from the topic table.
const UnknownTopic = "UNKNOWN_EVENT"

// DefaultSeedTopic starts every run.
const DefaultSeedTopic = "TRANSCRIPT_READY"

// TopicTable maps an agent id to the topic its results are published on.
type TopicTable map[string]string

// Resolve returns the outbound topic for agentID.
func (t TopicTable) Resolve(agentID string) string {
	if topic, ok := t[agentID]; ok && topic != "" {
		return topic
	}

	return UnknownTopic
}
