package dock

import "github.com/google/uuid"

// idNamespace scopes every name-based device id generated by dockd.
var idNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://github.com/nerrad567/dockd/device"))

// TopologyKey identifies one physical insertion of a hub. It is opaque and
// only meaningful for the lifetime of that insertion.
type TopologyKey string

// KeyOf returns the topology key for hub. The hub's id is the key.
func KeyOf(hub *Device) TopologyKey {
	return TopologyKey(hub.ID())
}

// HubID derives the hub device id from its physical bus path.
func HubID(physicalID string) string {
	return uuid.NewSHA1(idNamespace, []byte("hub:"+physicalID)).String()
}

// ControllerID derives the controller id from the id of the hub it sits behind.
func ControllerID(hubID string) string {
	return uuid.NewSHA1(idNamespace, []byte("controller:"+hubID)).String()
}

// LinkEndpointID derives the link endpoint id from its controller's id.
func LinkEndpointID(controllerID string) string {
	return uuid.NewSHA1(idNamespace, []byte("link-endpoint:"+controllerID)).String()
}
