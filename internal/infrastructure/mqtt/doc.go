// Package mqtt connects the console to an MQTT broker.
//
// The console publishes every device and register change as an event on
// {prefix}/events/{type}, and the connection status of each device as a
// retained message on {prefix}/devices/{id}/status. External pollers can
// report a device's state back on {prefix}/devices/{id}/report.
//
// The client reconnects automatically, restores its subscriptions after a
// reconnect, and registers a Last Will so subscribers see the console go
// offline when it dies.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if errors.Is(err, mqtt.ErrDisabled) {
//	    // run without a broker
//	}
//	defer client.Close()
//
//	client.Publish(client.Topics().Event("device.created"), payload, 1, false)
package mqtt
