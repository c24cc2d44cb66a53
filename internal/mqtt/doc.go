// Package mqtt is the bridge's bus adapter over the Eclipse Paho client.
//
// Ownership boundary:
// - broker connection with auto-reconnect
// - re-subscribing every registered topic after a reconnect
// - bounded-wait publishes with a fixed QoS
package mqtt
