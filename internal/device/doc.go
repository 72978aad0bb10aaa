// Package device provides the Device Registry for Gray Logic Home.
//
// The registry is the catalogue of every light, fan, door and dryer in the
// house and the only component that writes a device's is_on flag and status
// document. Everything else (the schedule evaluator, the status reconciler,
// API control requests) changes device state through ApplyTransition.
//
// # Architecture
//
//	┌────────────────────────────────────────────────────────────┐
//	│                      Device Registry                       │
//	│                                                            │
//	│  ┌────────────────┐   ┌────────────────┐   ┌────────────┐  │
//	│  │    Registry    │──▶│   Repository   │   │  Schemas   │  │
//	│  │ • cache        │   │ • SQLite       │   │ • per type │  │
//	│  │ • device locks │   │ • tx merge     │   │ • embedded │  │
//	│  └────────────────┘   └────────────────┘   └────────────┘  │
//	└────────────────────────────────────────────────────────────┘
//
// # Status patches
//
// Status updates are expressed as typed patches (LightPatch, FanPatch,
// ACPatch, DoorPatch, DryerPatch, ReadingPatch, ScheduleStampPatch, RawPatch)
// and combined with Patches. Each patch is validated against the JSON schema
// for the device type before it is merged; keys the patch does not mention
// are preserved.
//
// # Usage
//
//	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB))
//	if err := registry.RefreshCache(ctx); err != nil {
//	    return err
//	}
//
//	old, updated, err := registry.ApplyTransition(ctx, "fan-01", true,
//	    device.FanPatch{Speed: device.IntPtr(3), State: device.StateOn})
//
// # Thread Safety
//
// All Registry methods are safe for concurrent use. Transitions on the same
// device are serialised by a per-device mutex and run inside a SQL
// transaction.
package device
