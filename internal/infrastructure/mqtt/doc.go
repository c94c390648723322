// Package mqtt provides MQTT client connectivity for dockd.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS guarantees (plus JSON and retained-clear helpers)
//   - Topic subscriptions, replayed after reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// dockd does not touch USB itself. A USB I/O agent reports hotplug events
// and performs lock, reboot and link-state requests on dockd's behalf; the
// firmware updater drives composite operations. All of them meet at the
// broker:
//
//	USB I/O agent ↔ MQTT Broker ↔ dockd ↔ MQTT Broker ↔ updater
//
// See Topics for the full topic layout.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.USBAdded(), 1,
//	    func(topic string, payload []byte) error {
//	        return dispatcher.Enqueue(payload)
//	    })
package mqtt
