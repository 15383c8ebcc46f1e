package mqtt

import "fmt"

const (
	// TopicPrefix is the root of every Gray Logic topic.
	// Flat scheme: graylogic/{category}/{protocol}/{address_or_id}
	TopicPrefix = "graylogic"

	// Protocol identifies this bridge in topic paths.
	Protocol = "petmarvel"
)

// Topics provides builders for the bridge's MQTT topics.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.BridgeState(mqtt.Protocol, "a1b2c3")
//	// Returns: "graylogic/state/petmarvel/a1b2c3"
type Topics struct{}

// BridgeState returns the topic for retained device state.
//
// Example: graylogic/state/petmarvel/a1b2c3
func (Topics) BridgeState(protocol, address string) string {
	return fmt.Sprintf("%s/state/%s/%s", TopicPrefix, protocol, address)
}

// BridgeCommand returns the topic the bridge listens on for device commands.
//
// Example: graylogic/command/petmarvel/a1b2c3
func (Topics) BridgeCommand(protocol, address string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, protocol, address)
}

// BridgeAck returns the topic for command acknowledgements.
//
// Example: graylogic/ack/petmarvel/a1b2c3
func (Topics) BridgeAck(protocol, address string) string {
	return fmt.Sprintf("%s/ack/%s/%s", TopicPrefix, protocol, address)
}

// BridgeHealth returns the topic for bridge health, also used for the LWT.
//
// Example: graylogic/health/petmarvel
func (Topics) BridgeHealth(protocol string) string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, protocol)
}
