// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause
package dataplane

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/mac"
	log "github.com/sirupsen/logrus"
)

// DefaultScriptDir is where the OpenWrt package installs the helper scripts
const DefaultScriptDir = "/lib/wireless-rate-limiter"

type commandRunner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, strings.TrimSpace(output.String()))
	}
	return nil
}

// ScriptShaper delegates shaping to the htb-netdev.sh and htb-client.sh
// helper scripts.
type ScriptShaper struct {
	dir string
	run commandRunner
}

// NewScriptShaper creates a shaper running the scripts found in dir
func NewScriptShaper(dir string) *ScriptShaper {
	if dir == "" {
		dir = DefaultScriptDir
	}
	return &ScriptShaper{dir: dir, run: execRunner}
}

var _ Shaper = (*ScriptShaper)(nil)

func (s *ScriptShaper) exec(ctx context.Context, script string, args ...string) error {
	argv := append([]string{filepath.Join(s.dir, script)}, args...)
	log.Debugf("Executing command: sh %s", strings.Join(argv, " "))
	return s.run(ctx, "sh", argv...)
}

func kbit(rate uint32) string {
	return strconv.FormatUint(uint64(rate), 10) + "kbit"
}

// SetInterfaceRate runs "htb-netdev.sh add <iface> <down>kbit <up>kbit"
func (s *ScriptShaper) SetInterfaceRate(ctx context.Context, iface string, down, up uint32) error {
	return s.exec(ctx, "htb-netdev.sh", "add", iface, kbit(down), kbit(up))
}

// RemoveInterface runs "htb-netdev.sh remove <iface>"
func (s *ScriptShaper) RemoveInterface(ctx context.Context, iface string) error {
	return s.exec(ctx, "htb-netdev.sh", "remove", iface)
}

// SetClientRate runs "htb-client.sh add <id> <iface> <mac> <down>kbit <up>kbit"
func (s *ScriptShaper) SetClientRate(ctx context.Context, handle int, iface string, addr mac.Addr, down, up uint32) error {
	return s.exec(ctx, "htb-client.sh", "add", strconv.Itoa(handle), iface, addr.String(), kbit(down), kbit(up))
}

// RemoveClient runs "htb-client.sh remove <id> <iface>"
func (s *ScriptShaper) RemoveClient(ctx context.Context, handle int, iface string) error {
	return s.exec(ctx, "htb-client.sh", "remove", strconv.Itoa(handle), iface)
}

// DryRunShaper only logs what would be applied.
type DryRunShaper struct{}

var _ Shaper = DryRunShaper{}

func (DryRunShaper) SetInterfaceRate(_ context.Context, iface string, down, up uint32) error {
	log.Infof("[dry-run] interface %s down=%dkbit up=%dkbit", iface, down, up)
	return nil
}

func (DryRunShaper) RemoveInterface(_ context.Context, iface string) error {
	log.Infof("[dry-run] interface %s remove", iface)
	return nil
}

func (DryRunShaper) SetClientRate(_ context.Context, handle int, iface string, addr mac.Addr, down, up uint32) error {
	log.Infof("[dry-run] client %d (%s) on %s down=%dkbit up=%dkbit", handle, addr, iface, down, up)
	return nil
}

func (DryRunShaper) RemoveClient(_ context.Context, handle int, iface string) error {
	log.Infof("[dry-run] client %d on %s remove", handle, iface)
	return nil
}
