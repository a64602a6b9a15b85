// Package policy provides the rate policy tables of the wireless rate
// limiter.
//
// Two parallel tables are kept, one for interface-level limits and one for
// per-client limits. Each entry carries a set of selectors and a target
// rate in kbit/s:
//   - Interface: exact interface name, or empty to match every interface
//   - SSID: reserved, stored but not compared
//   - MAC (client entries only): reserved, stored but not compared
//
// # Resolution
//
// A lookup scans the table in insertion order. The first entry whose
// interface selector equals the requested one wins. Failing that, the
// last wildcard entry (empty interface) seen during the scan is used.
// When nothing matches the caller receives no entry, which the
// reconciler treats as the zero rate.
//
// # Example Usage
//
//	store := policy.NewStore()
//
//	// Every client on every interface: 8 Mbit/s down, 3 Mbit/s up
//	store.SetClientPolicy(policy.ClientSelectors{}, policy.Rate{Down: 8192, Up: 3072})
//
//	// Interface wlan0 as a whole: 20 Mbit/s down, 10 Mbit/s up
//	store.SetInterfacePolicy(policy.InterfaceSelectors{Interface: "wlan0"},
//	    policy.Rate{Down: 20480, Up: 10240})
//
//	rate := store.ResolveClient("wlan1") // {8192 3072}
//
// # Persistence
//
// The tables live in memory. NewStoreWithStorage mirrors writes into a
// Storage (SQLiteStorage) so that a restarted daemon can restore them
// with LoadPersisted. Persistence failures are logged and never fail a
// write.
//
// # Thread Safety
//
// The Store is NOT thread-safe. It is owned by the reconciler's event
// loop; management callers go through the Manager interface.
package policy
