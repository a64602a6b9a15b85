// Package dataplane provides the traffic-shaping backends the reconciler
// announces rate limits to.
//
// The reconciler only decides which limits should be in effect; a Shaper
// makes them so. Three implementations exist:
//   - ScriptShaper: runs the htb-netdev.sh / htb-client.sh helpers shipped
//     with the OpenWrt package (the default)
//   - NetlinkShaper: builds the HTB tree and ingress policers directly
//     through rtnetlink
//   - DryRunShaper: logs every command and touches nothing
//
// # Architecture
//
// A DataPlane wraps the selected Shaper and counts the commands issued
// and failed, which the API exposes through GetStatistics.
//
// # Example Usage
//
//	shaper, err := dataplane.NewShaper("script", dataplane.DefaultScriptDir)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	dp := dataplane.New(shaper)
//
//	// 20 Mbit/s down, 10 Mbit/s up for the whole interface
//	if err := dp.SetInterfaceRate(ctx, "wlan0", 20480, 10240); err != nil {
//	    log.Error(err)
//	}
//
//	// client in slot 0 (handle 10)
//	dp.SetClientRate(ctx, 10, "wlan0", addr, 8192, 3072)
//
// # Client handles
//
// Client handles are derived from the client's slot index plus a fixed
// offset, so that they never collide with the interface and default
// classes. The netlink backend uses the handle as HTB class minor and as
// u32 filter priority.
//
// # Thread Safety
//
// DataPlane counters are safe for concurrent reads. Shaper calls are made
// from the reconciler's event loop only.
package dataplane
