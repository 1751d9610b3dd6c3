// Package register manages the Modbus register map of each device.
//
// A Register is one addressable data point owned by a device. Its address
// must fall inside the owning device's block
// [startAddress, startAddress+registers-1], and name and address are unique
// within the device. Registers are stored in the ems_registers collection
// and are removed in bulk when their device is deleted.
package register
