package bus

import "strings"

// Logical bus topics shared by the backend, devices and simulators.
const (
	TopicTelemetryAir   = "telemetry/air"
	TopicTelemetryStove = "telemetry/stove"
	TopicAlerts         = "alerts"
	TopicAvailability   = "availability"

	controlPrefix = "control/"
)

// ControlTopic resolves the shared control topic for a device type.
// All devices of one type listen on the same topic and filter by the
// deviceId embedded in the payload.
func ControlTopic(deviceType string) string {
	return controlPrefix + strings.ToLower(strings.TrimSpace(deviceType))
}

// IsTelemetryTopic returns true for topics carrying device readings.
func IsTelemetryTopic(topic string) bool {
	return topic == TopicTelemetryAir || topic == TopicTelemetryStove
}
