// Package scan runs a quick scan: one current reading per device, taken by
// routing a shared source-meter to each device in turn.
//
// # Overview
//
// A Scanner owns one background worker per run. For every device, in list
// order, the worker:
//  1. Stops if an abort was requested (Stop or context cancellation)
//  2. Routes the device through the mux.Router; a routing failure skips the
//     device and the scan continues
//  3. Waits the settle time
//  4. Stops without measuring if an abort arrived during the wait
//  5. Reads the current; a failed reading is stored as null
//  6. Emits an Event carrying a copy of the reading
//
// The instrument is taken to 0 V, enabled, then set to the drive voltage
// before the first device, and returned to 0 V with the output off when the
// loop ends. The last routed device stays connected.
//
// # Usage
//
//	router := mux.NewRouter(adapter, log)
//	sc := scan.NewScanner(router, gateway, log)
//
//	opts := scan.DefaultOptions()
//	opts.VoltageV = 0.2
//
//	events, err := sc.Start(ctx, devices, opts)
//	if err != nil {
//		return err
//	}
//	for ev := range events {
//		switch ev.Kind {
//		case scan.EventReading:
//			fmt.Printf("[%d/%d] %s\n", ev.Index+1, ev.Total, ev.Device.Key)
//		case scan.EventFinished:
//			save(ev.Result)
//		}
//	}
//
// Only the worker mutates the in-progress result. Consumers receive
// snapshots through the event channel, which is buffered for every device so
// the worker never waits on a slow reader.
package scan
