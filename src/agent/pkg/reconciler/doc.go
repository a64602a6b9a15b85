// Package reconciler keeps the shaping backend in line with the policy
// tables and the live wireless membership.
//
// # Pass
//
// Every interval the engine:
//
//  1. lists the hostapd objects on the bus and refreshes the registry
//     (new interfaces, recreated sessions, expiry after missed polls)
//  2. requests the clients of every interface without a request in flight
//  3. resolves the policy of every interface and client, clearing the
//     applied flag of whatever changed
//  4. announces unapplied entities to the shaper, or removes all shaping
//     while a purge is pending
//
// Client replies arrive asynchronously and are ingested by the loop; new
// clients are announced on the following pass.
//
// # Concurrency
//
// State is owned by the goroutine running Engine.Run. Bus calls run on
// their own goroutines and post results back. Management callers go
// through Engine.Do, which executes a function on the loop, so no State
// field is ever touched by two goroutines.
//
// Tests and tools that want deterministic passes skip Run and call Tick
// followed by Settle.
package reconciler
