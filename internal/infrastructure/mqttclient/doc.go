// Package mqttclient provides generic MQTT client connectivity.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// This is a domain-agnostic wrapper around paho.mqtt.golang. Domain topic
// schemes (Home Assistant discovery, sensor state, device commands,
// companion-app dispatch) live in internal/mqttbridge, which embeds a
// *Client from this package rather than reimplementing connection
// handling.
//
//	Executor/Scheduler ↔ mqttbridge ↔ mqttclient.Client ↔ Broker
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqttclient.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe("scryer/+/command/#", 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	client.Publish("scryer/device/abc123/command", []byte(`{"on":true}`), 1, false)
package mqttclient
