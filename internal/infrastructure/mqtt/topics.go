package mqtt

import "fmt"

// TopicPrefix is the root of every dockd topic.
const TopicPrefix = "dockd"

// Transport operations carried on the request topics.
const (
	OpAcquire    = "acquire"
	OpRelease    = "release"
	OpReboot     = "reboot"
	OpLinkStatus = "link_status"
)

// Topics provides builders for dockd MQTT topics.
//
// Hotplug and composite events flow in from the USB I/O agent; inventory
// state and composite replies flow out:
//
//	dockd/usb/added                      agent → dockd
//	dockd/usb/removed                    agent → dockd
//	dockd/device/attached                agent → dockd (non-USB subsystems)
//	dockd/device/detached                agent → dockd
//	dockd/composite/request              updater → dockd
//	dockd/composite/response/{op_id}     dockd → updater
//	dockd/transport/request/{op}         dockd → agent
//	dockd/transport/response/{req_id}    agent → dockd
//	dockd/inventory/{device_id}          dockd → anyone (retained)
//	dockd/system/status                  dockd → anyone (retained, LWT)
type Topics struct{}

// USBAdded returns the topic on which USB hub arrivals are announced.
func (Topics) USBAdded() string {
	return TopicPrefix + "/usb/added"
}

// USBRemoved returns the topic on which USB device departures are announced.
func (Topics) USBRemoved() string {
	return TopicPrefix + "/usb/removed"
}

// DeviceAttached returns the topic for devices enumerated by other
// subsystems, such as link-domain devices.
func (Topics) DeviceAttached() string {
	return TopicPrefix + "/device/attached"
}

// DeviceDetached returns the topic for departures of non-USB devices.
func (Topics) DeviceDetached() string {
	return TopicPrefix + "/device/detached"
}

// CompositeRequest returns the topic on which composite prepare and cleanup
// requests arrive.
func (Topics) CompositeRequest() string {
	return TopicPrefix + "/composite/request"
}

// CompositeResponse returns the reply topic for one composite operation.
//
// Example: dockd/composite/response/5f0c...
func (Topics) CompositeResponse(operationID string) string {
	return fmt.Sprintf("%s/composite/response/%s", TopicPrefix, operationID)
}

// TransportRequest returns the topic for a request to the USB I/O agent.
//
// Example: dockd/transport/request/reboot
func (Topics) TransportRequest(op string) string {
	return fmt.Sprintf("%s/transport/request/%s", TopicPrefix, op)
}

// TransportResponse returns the reply topic for one transport request.
func (Topics) TransportResponse(requestID string) string {
	return fmt.Sprintf("%s/transport/response/%s", TopicPrefix, requestID)
}

// AllTransportResponses matches every transport reply.
func (Topics) AllTransportResponses() string {
	return TopicPrefix + "/transport/response/+"
}

// Inventory returns the retained state topic for one exposed device.
//
// Example: dockd/inventory/6c1e...
func (Topics) Inventory(deviceID string) string {
	return fmt.Sprintf("%s/inventory/%s", TopicPrefix, deviceID)
}

// AllInventory matches every inventory state topic.
func (Topics) AllInventory() string {
	return TopicPrefix + "/inventory/+"
}

// SystemStatus returns the daemon's online/offline status topic.
func (Topics) SystemStatus() string {
	return TopicPrefix + "/system/status"
}

// LastSegment returns the final level of topic, e.g. the request id of a
// transport response.
func LastSegment(topic string) string {
	for i := len(topic) - 1; i >= 0; i-- {
		if topic[i] == '/' {
			return topic[i+1:]
		}
	}
	return topic
}
