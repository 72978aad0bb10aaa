package mqtt

import "strings"

const (
	// TopicPrefixHome is the base for device and event topics.
	TopicPrefixHome = "graylogic/home"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graylogic/system"
)

// Topics builds the topic names shared by the mirror and the command
// subscription.
type Topics struct{}

// DeviceState is the retained snapshot topic for a device, for example
// graylogic/home/device/fan-01/state.
func (Topics) DeviceState(deviceID string) string {
	return TopicPrefixHome + "/device/" + deviceID + "/state"
}

// Event is the topic a broadcast channel is mirrored to, for example
// graylogic/home/event/device_updates.
func (Topics) Event(channel string) string {
	return TopicPrefixHome + "/event/" + channel
}

// SystemStatus carries the core's retained presence and Last Will.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// AllDeviceCommands matches every graylogic/home/device/{id}/command topic.
func (Topics) AllDeviceCommands() string {
	return TopicPrefixHome + "/device/+/command"
}

// DeviceIDFromTopic returns the {id} segment of a
// graylogic/home/device/{id}/... topic.
func (Topics) DeviceIDFromTopic(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, TopicPrefixHome+"/device/")
	if !ok {
		return "", false
	}
	id, _, found := strings.Cut(rest, "/")
	if !found || id == "" {
		return "", false
	}
	return id, true
}
