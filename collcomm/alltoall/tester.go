package alltoall

import (
	"bytes"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/unixpickle/alltoall-bench/collcomm"
	"github.com/unixpickle/alltoall-bench/simulator"
)

// RunAlltoallerTests runs a battery of tests on an
// Alltoaller.
func RunAlltoallerTests(t *testing.T, alg Alltoaller) {
	for _, numRanks := range []int{1, 2, 3, 5, 8} {
		for _, count := range []int{0, 1, 1337} {
			for _, randomized := range []bool{false, true} {
				name := fmt.Sprintf("Ranks=%d,Count=%d,Random=%v", numRanks, count, randomized)
				t.Run(name, func(t *testing.T) {
					runAlltoallerTest(t, alg, numRanks, count, randomized)
				})
			}
		}
	}
}

func runAlltoallerTest(t *testing.T, alg Alltoaller, numRanks, count int, randomized bool) {
	loop := simulator.NewLoop()
	hosts := make([]*simulator.Host, numRanks)
	sends := make([][]byte, numRanks)
	for i := range hosts {
		hosts[i] = simulator.NewHost()
		sends[i] = make([]byte, count*numRanks)
		rand.Read(sends[i])
	}

	var network simulator.Network
	if randomized {
		network = simulator.RandomNetwork{MaxDelay: time.Second}
	} else {
		network = simulator.NewSwitchedNetwork(simulator.NewFairShareSwitch(numRanks, 1e3), hosts,
			100*time.Millisecond)
	}

	// Two rounds, to make sure consecutive calls on the
	// same Comms do not interfere.
	results := make([][][]byte, 2)
	for i := range results {
		results[i] = make([][]byte, numRanks)
	}
	collcomm.SpawnComms(loop, network, hosts, func(c *collcomm.Comms) {
		g := NewGroup(c, alg)
		for round := range results {
			recv := make([]byte, count*numRanks)
			if err := g.Alltoall(sends[c.Rank()], recv, count); err != nil {
				t.Error(err)
				return
			}
			results[round][c.Rank()] = recv
		}
	})

	if err := loop.Run(); err != nil {
		t.Fatal(err)
	}

	for round, recvs := range results {
		for dst, recv := range recvs {
			for src := 0; src < numRanks; src++ {
				expected := segment(sends[src], dst, count)
				if actual := segment(recv, src, count); !bytes.Equal(actual, expected) {
					t.Errorf("round %d: rank %d got wrong segment from rank %d", round, dst, src)
				}
			}
		}
	}
}
