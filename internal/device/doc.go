// Package device models the Modbus devices configured in the EMS console.
//
// A Device is an energy meter or similar instrument reachable over Modbus
// TCP or Modbus RTU. It owns a contiguous block of register addresses,
// [StartAddress, StartAddress+Registers-1], that its register map must
// stay within.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                        device package                        │
//	│                                                              │
//	│  ┌──────────────────┐   ┌──────────────────┐                 │
//	│  │    Validation    │   │    Repository    │                 │
//	│  │ (validation.go)  │   │ (repository.go)  │                 │
//	│  │                  │   │                  │                 │
//	│  │ • Form parsing   │   │ • CRUD           │                 │
//	│  │ • Field rules    │   │ • ID generation  │                 │
//	│  │ • Uniqueness     │   │ • Cascade delete │──┐              │
//	│  └──────────────────┘   └────────┬─────────┘  │              │
//	└──────────────────────────────────│────────────│──────────────┘
//	                                   ▼            ▼
//	                     store.Store (ems_devices)  RegisterCleaner
//	                                                (register.Repository)
//
// # Key Types
//
//   - Device: common fields plus exactly one of *TCPParams or *RTUParams,
//     selected by Protocol
//   - Form: raw UI input, validated by ValidateForm and converted by Form.Device
//   - Patch: partial update applied by Repository.Update
//
// # Usage
//
//	repo := device.NewRepository(st, registerRepo)
//
//	if msgs := device.ValidateForm(f, nil, existing); len(msgs) > 0 {
//	    return form.Check(msgs)
//	}
//	d, err := f.Device()
//	if err != nil {
//	    return err
//	}
//	created, err := repo.Add(ctx, d)
package device
