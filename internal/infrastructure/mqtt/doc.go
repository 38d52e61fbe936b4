// Package mqtt provides MQTT connectivity for live radar telemetry.
//
// Radar gateways publish vital signs, posture frames and fall alerts to a
// Mosquitto broker. CareWatch Core subscribes to those topics and
// publishes its own status and alert summaries back.
//
//	Radar gateways → MQTT Broker → CareWatch Core → view clients
//
// # Security Considerations
//
//   - Use TLS outside a trusted LAN (cfg.Broker.TLS=true)
//   - Payloads carry resident health data; restrict broker ACLs
//
// # Usage
//
//	client, err := mqtt.Connect(ctx, cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.FallAlerts(), 1,
//	    func(topic string, payload []byte) error {
//	        return onFall(payload)
//	    })
package mqtt
