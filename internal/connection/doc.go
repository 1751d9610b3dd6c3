// Package connection decides whether a configured device is reachable and
// records the outcome as the device's status.
//
// A Prober checks reachability. SimulatedProber reproduces the console's
// demo behaviour (a delay and a coin flip); ModbusProber opens a real
// Modbus TCP or RTU link and reads one holding register at the device's
// start address. Manager runs a probe, stores Connected or Disconnected,
// writes a status point to InfluxDB and publishes a device.status event.
//
// No register values are polled or decoded here.
package connection
