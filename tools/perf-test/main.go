// SPDX-License-Identifier: GPL-2.0 OR BSD-3-Clause

// perf-test measures reconciliation passes against an in-memory bus with
// many interfaces and clients, some of which churn every pass.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/dataplane"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/mac"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/policy"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/reconciler"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/registry"
	"github.com/blocktrron/wireless-rate-limiter/src/agent/pkg/testutil"

	log "github.com/sirupsen/logrus"
)

var (
	interfaces    = flag.Int("interfaces", 8, "Number of simulated wireless interfaces")
	clients       = flag.Int("clients", 64, "Clients associated to each interface")
	churn         = flag.Float64("churn", 0.05, "Fraction of clients replaced every pass")
	passes        = flag.Int("passes", 1000, "Number of reconciliation passes")
	statsInterval = flag.Int("interval", 100, "Report every N passes")
)

// countingShaper accepts every command without touching the system.
// The data plane wrapping it does the counting.
type countingShaper struct{}

func (countingShaper) SetInterfaceRate(context.Context, string, uint32, uint32) error {
	return nil
}

func (countingShaper) RemoveInterface(context.Context, string) error {
	return nil
}

func (countingShaper) SetClientRate(context.Context, int, string, mac.Addr, uint32, uint32) error {
	return nil
}

func (countingShaper) RemoveClient(context.Context, int, string) error {
	return nil
}

func stationMAC(iface, n int) string {
	return fmt.Sprintf("02:%02x:%02x:%02x:00:01", iface&0xff, (n>>8)&0xff, n&0xff)
}

type simulation struct {
	bus      *testutil.FakeBus
	stations [][]int
	next     int
	rng      *rand.Rand
}

func newSimulation(b *testutil.FakeBus) *simulation {
	s := &simulation{
		bus:      b,
		stations: make([][]int, *interfaces),
		rng:      rand.New(rand.NewSource(1)),
	}
	for i := range s.stations {
		b.SetObject(fmt.Sprintf("%swlan%d", reconciler.DefaultPrefix, i), uint32(i+1))
		for j := 0; j < *clients; j++ {
			s.stations[i] = append(s.stations[i], s.next)
			s.next++
		}
		s.publish(i)
	}
	return s
}

func (s *simulation) publish(i int) {
	addrs := make([]string, 0, len(s.stations[i]))
	for _, n := range s.stations[i] {
		addrs = append(addrs, stationMAC(i, n))
	}
	s.bus.SetClients(fmt.Sprintf("%swlan%d", reconciler.DefaultPrefix, i), addrs...)
}

// shuffle replaces a fraction of the stations of every interface
func (s *simulation) shuffle() {
	for i := range s.stations {
		for j := range s.stations[i] {
			if s.rng.Float64() < *churn {
				s.stations[i][j] = s.next
				s.next++
			}
		}
		s.publish(i)
	}
}

func printStats(stats dataplane.Statistics) {
	log.Infof("  Interface sets:    %d", stats.InterfaceSets)
	log.Infof("  Interface removes: %d", stats.InterfaceRemoves)
	log.Infof("  Client sets:       %d", stats.ClientSets)
	log.Infof("  Client removes:    %d", stats.ClientRemoves)
	log.Infof("  Failures:          %d", stats.Failures)
}

func main() {
	flag.Parse()

	log.SetFormatter(&log.TextFormatter{
		FullTimestamp: true,
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.InfoLevel)

	log.Info("=== Wireless Rate Limiter Reconciliation Test ===")
	log.Infof("Interfaces: %d", *interfaces)
	log.Infof("Clients per interface: %d", *clients)
	log.Infof("Churn: %.1f%%", *churn*100)
	log.Infof("Passes: %d", *passes)
	log.Info("=================================================")

	fb := testutil.NewFakeBus()
	sim := newSimulation(fb)
	dp := dataplane.New(countingShaper{})

	store := policy.NewStore()
	store.SetInterfacePolicy(policy.InterfaceSelectors{}, policy.Rate{Down: 100000, Up: 50000})
	store.SetClientPolicy(policy.ClientSelectors{}, policy.Rate{Down: 8192, Up: 3072})

	capacity := *clients * 2
	if capacity > 4096 {
		capacity = 4096
	}
	engine := reconciler.New(reconciler.DefaultConfig(), fb, dp, store, registry.New(registry.WithClientCapacity(capacity)))

	// quiet the per-command logging of the engine
	log.SetLevel(log.WarnLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		start    = time.Now()
		slowest  time.Duration
		baseline = dp.GetStatistics()
		done     int
	)
	for done = 0; done < *passes && ctx.Err() == nil; done++ {
		sim.shuffle()

		t := time.Now()
		engine.Tick(ctx)
		if err := engine.Settle(ctx); err != nil {
			break
		}
		if d := time.Since(t); d > slowest {
			slowest = d
		}

		if (done+1)%*statsInterval == 0 {
			current := dp.GetStatistics()
			log.SetLevel(log.InfoLevel)
			log.Infof("\n=== After %d passes ===", done+1)
			log.Infof("Commands in last %d passes: %d", *statsInterval, current.Total()-baseline.Total())
			baseline = current
			log.SetLevel(log.WarnLevel)
		}
	}

	elapsed := time.Since(start)
	log.SetLevel(log.InfoLevel)

	if ctx.Err() != nil {
		log.Info("\n=== Test interrupted by user ===")
	} else {
		log.Info("\n=== Test completed ===")
	}

	final := dp.GetStatistics()
	log.Info("\n=== Total Test Statistics ===")
	printStats(final)

	if done > 0 {
		log.Infof("Passes: %d in %v", done, elapsed)
		log.Infof("Mean pass: %v", elapsed/time.Duration(done))
		log.Infof("Slowest pass: %v", slowest)
		log.Infof("Commands per pass: %.2f", float64(final.Total())/float64(done))
	}
	status := engine.State().Status()
	log.Infof("Live interfaces: %d, live clients: %d", status.Interfaces, status.Clients)
}
