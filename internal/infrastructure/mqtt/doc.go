// Package mqtt connects the litter box bridge to the Gray Logic MQTT bus.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS validation and a payload size cap
//   - Subscriptions that are restored after a reconnect
//   - Last Will and Testament on the bridge health topic
//
// The bridge publishes under the flat Gray Logic scheme
// graylogic/{category}/petmarvel/{iotId}:
//
//	topics := mqtt.Topics{}
//	topics.BridgeState(mqtt.Protocol, "a1b2c3")   // graylogic/state/petmarvel/a1b2c3
//	topics.BridgeCommand(mqtt.Protocol, "a1b2c3") // graylogic/command/petmarvel/a1b2c3
//	topics.BridgeHealth(mqtt.Protocol)            // graylogic/health/petmarvel
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.BridgeCommand(mqtt.Protocol, iotID), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(payload)
//	    })
//
// TLS should be enabled (cfg.Broker.TLS) whenever the broker is not on the
// same host.
package mqtt
