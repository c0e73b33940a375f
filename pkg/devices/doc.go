// Package devices maintains outbound connections to a configured set of
// remote audio devices, one supervised session per device.
//
// In this deployment mode the orchestrator dials each device instead of
// waiting for inbound clients. Every enabled device gets its own
// goroutine that connects, runs a session over the connection, and on
// any failure waits the device's reconnect delay before trying again.
// Devices are fully isolated: a flapping device never delays another.
package devices
