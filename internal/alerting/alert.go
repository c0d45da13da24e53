package alerting

// MessageType is the incident-lifecycle transition an alert carries.
type MessageType string

const (
	MessageCritical        MessageType = "critical"
	MessageAcknowledgement MessageType = "acknowledgement"
	MessageRecovery        MessageType = "recovery"
)

// Alert is the record posted to the incident platform. EntityID correlates
// the original call leg with its eventual acknowledgement and recovery so
// the platform matches lifecycle transitions to the same incident.
type Alert struct {
	MonitoringTool    string      `json:"monitoring_tool"`
	EntityID          string      `json:"entity_id"`
	EntityDisplayName string      `json:"entity_display_name"`
	MessageType       MessageType `json:"message_type"`
	StateMessage      string      `json:"state_message"`
	AckAuthor         string      `json:"ack_author,omitempty"`
	CallerID          string      `json:"caller_id,omitempty"`
}
