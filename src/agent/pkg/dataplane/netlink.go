// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package dataplane

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/mac"
	log "github.com/sirupsen/logrus"
	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// Handles used on every shaped interface. Egress (download towards the
// station) is shaped by an HTB tree, ingress (upload) is policed.
//
//	1:    htb root, unclassified traffic to 1:2
//	1:1   interface class, rate = interface down
//	1:2   default class
//	1:N   client class, N = client handle
//	ffff: ingress, u32 police filters
const (
	htbMajor            = 1
	interfaceClassMinor = 1
	defaultClassMinor   = 2
	ingressMajor        = 0xffff

	// client filters use their handle as priority, the interface-wide
	// ingress filter sorts after all of them
	interfaceFilterPrio = 0xfff0

	minPoliceBurst = 16 * 1024
)

// NetlinkShaper shapes traffic directly through rtnetlink, without the
// helper scripts.
type NetlinkShaper struct{}

// NewNetlinkShaper creates a netlink based shaper
func NewNetlinkShaper() *NetlinkShaper {
	return &NetlinkShaper{}
}

var _ Shaper = (*NetlinkShaper)(nil)

func kbitToBits(rate uint32) uint64 {
	return uint64(rate) * 1000
}

func kbitToBytes32(rate uint32) uint32 {
	b := uint64(rate) * 1000 / 8
	if b > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(b)
}

func policeBurst(bytesPerSec uint32) uint32 {
	// 100ms worth of traffic
	burst := bytesPerSec / 10
	if burst < minPoliceBurst {
		return minPoliceBurst
	}
	return burst
}

// isNotFound reports errors meaning the object to remove does not exist
func isNotFound(err error) bool {
	var linkErr netlink.LinkNotFoundError
	return errors.Is(err, unix.ENOENT) || errors.Is(err, unix.EINVAL) || errors.As(err, &linkErr)
}

// isFileExistsError checks if the error is EEXIST (file exists)
func isFileExistsError(err error) bool {
	return errors.Is(err, unix.EEXIST)
}

func linkIndex(iface string) (int, error) {
	link, err := netlink.LinkByName(iface)
	if err != nil {
		return 0, fmt.Errorf("interface %s not found: %w", iface, err)
	}
	return link.Attrs().Index, nil
}

func htbClass(index int, minor uint16, parentMinor uint16, down uint32) *netlink.HtbClass {
	rate := kbitToBits(down)
	return netlink.NewHtbClass(netlink.ClassAttrs{
		LinkIndex: index,
		Handle:    netlink.MakeHandle(htbMajor, minor),
		Parent:    netlink.MakeHandle(htbMajor, parentMinor),
	}, netlink.HtbClassAttrs{
		Rate: rate,
		Ceil: rate,
	})
}

func policeAction(up uint32) *netlink.PoliceAction {
	rate := kbitToBytes32(up)

	police := netlink.NewPoliceAction()
	police.Rate = rate
	police.Burst = policeBurst(rate)
	police.ExceedAction = netlink.TC_POLICE_SHOT
	police.NotExceedAction = netlink.TC_POLICE_OK
	return police
}

// macKeys builds u32 keys matching a MAC address located off bytes
// before the network header (-14 destination, -8 source).
func macKeys(addr mac.Addr, off int32) []netlink.TcU32Key {
	return []netlink.TcU32Key{
		{
			Val:  binary.BigEndian.Uint32(addr[0:4]),
			Mask: 0xffffffff,
			Off:  off,
		},
		{
			Val:  uint32(binary.BigEndian.Uint16(addr[4:6])) << 16,
			Mask: 0xffff0000,
			Off:  off + 4,
		},
	}
}

func u32Filter(index int, parent uint32, prio uint16, keys []netlink.TcU32Key) *netlink.U32 {
	return &netlink.U32{
		FilterAttrs: netlink.FilterAttrs{
			LinkIndex: index,
			Parent:    parent,
			Priority:  prio,
			Protocol:  unix.ETH_P_ALL,
		},
		Sel: &netlink.TcU32Sel{
			Flags: netlink.TC_U32_TERMINAL,
			Nkeys: uint8(len(keys)),
			Keys:  keys,
		},
	}
}

// replaceFilter deletes every filter of f's priority and adds f. u32
// filters added without a handle cannot be replaced in place.
func replaceFilter(f *netlink.U32) error {
	if err := deleteFilters(f.LinkIndex, f.Parent, f.Priority); err != nil {
		return err
	}
	return netlink.FilterAdd(f)
}

func deleteFilters(index int, parent uint32, prio uint16) error {
	err := netlink.FilterDel(&netlink.U32{
		FilterAttrs: netlink.FilterAttrs{
			LinkIndex: index,
			Parent:    parent,
			Priority:  prio,
			Protocol:  unix.ETH_P_ALL,
		},
	})
	if err != nil && !isNotFound(err) {
		return err
	}
	return nil
}

// SetInterfaceRate installs or updates the HTB root and the ingress
// policer of iface.
func (s *NetlinkShaper) SetInterfaceRate(ctx context.Context, iface string, down, up uint32) error {
	index, err := linkIndex(iface)
	if err != nil {
		return err
	}

	root := netlink.NewHtb(netlink.QdiscAttrs{
		LinkIndex: index,
		Handle:    netlink.MakeHandle(htbMajor, 0),
		Parent:    netlink.HANDLE_ROOT,
	})
	root.Defcls = defaultClassMinor
	if err := netlink.QdiscReplace(root); err != nil {
		return fmt.Errorf("replacing htb root on %s: %w", iface, err)
	}

	if err := netlink.ClassReplace(htbClass(index, interfaceClassMinor, 0, down)); err != nil {
		return fmt.Errorf("replacing interface class on %s: %w", iface, err)
	}
	if err := netlink.ClassReplace(htbClass(index, defaultClassMinor, interfaceClassMinor, down)); err != nil {
		return fmt.Errorf("replacing default class on %s: %w", iface, err)
	}

	ingress := &netlink.Ingress{
		QdiscAttrs: netlink.QdiscAttrs{
			LinkIndex: index,
			Handle:    netlink.MakeHandle(ingressMajor, 0),
			Parent:    netlink.HANDLE_INGRESS,
		},
	}
	if err := netlink.QdiscAdd(ingress); err != nil && !isFileExistsError(err) {
		return fmt.Errorf("adding ingress qdisc on %s: %w", iface, err)
	}

	// match-all key
	filter := u32Filter(index, netlink.MakeHandle(ingressMajor, 0), interfaceFilterPrio,
		[]netlink.TcU32Key{{Val: 0, Mask: 0, Off: 0}})
	filter.Actions = []netlink.Action{policeAction(up)}
	if err := replaceFilter(filter); err != nil {
		return fmt.Errorf("replacing ingress policer on %s: %w", iface, err)
	}

	log.Debugf("Shaping installed on %s down=%dkbit up=%dkbit", iface, down, up)
	return nil
}

// RemoveInterface deletes the HTB root and ingress qdiscs of iface. A
// missing interface or qdisc is not an error.
func (s *NetlinkShaper) RemoveInterface(ctx context.Context, iface string) error {
	index, err := linkIndex(iface)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}

	root := netlink.NewHtb(netlink.QdiscAttrs{
		LinkIndex: index,
		Handle:    netlink.MakeHandle(htbMajor, 0),
		Parent:    netlink.HANDLE_ROOT,
	})
	if err := netlink.QdiscDel(root); err != nil && !isNotFound(err) {
		return fmt.Errorf("deleting htb root on %s: %w", iface, err)
	}

	ingress := &netlink.Ingress{
		QdiscAttrs: netlink.QdiscAttrs{
			LinkIndex: index,
			Handle:    netlink.MakeHandle(ingressMajor, 0),
			Parent:    netlink.HANDLE_INGRESS,
		},
	}
	if err := netlink.QdiscDel(ingress); err != nil && !isNotFound(err) {
		return fmt.Errorf("deleting ingress qdisc on %s: %w", iface, err)
	}

	log.Debugf("Shaping removed from %s", iface)
	return nil
}

// SetClientRate installs a client class with a destination MAC filter
// and a source MAC policer. The interface must already be shaped.
func (s *NetlinkShaper) SetClientRate(ctx context.Context, handle int, iface string, addr mac.Addr, down, up uint32) error {
	if handle <= defaultClassMinor || handle >= interfaceFilterPrio {
		return fmt.Errorf("client handle %d out of range", handle)
	}

	index, err := linkIndex(iface)
	if err != nil {
		return err
	}

	minor := uint16(handle)
	if err := netlink.ClassReplace(htbClass(index, minor, interfaceClassMinor, down)); err != nil {
		return fmt.Errorf("replacing class for client %d on %s: %w", handle, iface, err)
	}

	egress := u32Filter(index, netlink.MakeHandle(htbMajor, 0), minor, macKeys(addr, -14))
	egress.ClassId = netlink.MakeHandle(htbMajor, minor)
	if err := replaceFilter(egress); err != nil {
		return fmt.Errorf("replacing egress filter for client %d on %s: %w", handle, iface, err)
	}

	ingress := u32Filter(index, netlink.MakeHandle(ingressMajor, 0), minor, macKeys(addr, -8))
	ingress.Actions = []netlink.Action{policeAction(up)}
	if err := replaceFilter(ingress); err != nil {
		return fmt.Errorf("replacing ingress filter for client %d on %s: %w", handle, iface, err)
	}

	return nil
}

// RemoveClient deletes the filters and class of a client
func (s *NetlinkShaper) RemoveClient(ctx context.Context, handle int, iface string) error {
	if handle <= defaultClassMinor || handle >= interfaceFilterPrio {
		return fmt.Errorf("client handle %d out of range", handle)
	}

	index, err := linkIndex(iface)
	if err != nil {
		if isNotFound(err) {
			return nil
		}
		return err
	}

	minor := uint16(handle)
	if err := deleteFilters(index, netlink.MakeHandle(htbMajor, 0), minor); err != nil {
		return fmt.Errorf("deleting egress filter for client %d on %s: %w", handle, iface, err)
	}
	if err := deleteFilters(index, netlink.MakeHandle(ingressMajor, 0), minor); err != nil {
		return fmt.Errorf("deleting ingress filter for client %d on %s: %w", handle, iface, err)
	}

	class := htbClass(index, minor, interfaceClassMinor, 0)
	if err := netlink.ClassDel(class); err != nil && !isNotFound(err) {
		return fmt.Errorf("deleting class for client %d on %s: %w", handle, iface, err)
	}

	return nil
}
