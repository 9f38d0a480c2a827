// Command bench_alltoall compares all-to-all algorithms on
// a handful of simulated networks and prints the virtual
// completion times as a Markdown table.
package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/unixpickle/alltoall-bench/collcomm"
	"github.com/unixpickle/alltoall-bench/collcomm/alltoall"
	"github.com/unixpickle/alltoall-bench/simulator"
	"github.com/unixpickle/essentials"
)

// RunInfo describes a specific network configuration.
type RunInfo struct {
	NumNodes int
	Latency  time.Duration
	Rate     float64
}

// Run creates a network and drops each host into its own
// Goroutine.
func (r *RunInfo) Run(loop *simulator.Loop, commFn func(c *collcomm.Comms)) {
	hosts := make([]*simulator.Host, r.NumNodes)
	for i := range hosts {
		hosts[i] = simulator.NewHost()
	}
	sw := simulator.NewFairShareSwitch(r.NumNodes, r.Rate)
	network := simulator.NewSwitchedNetwork(sw, hosts, r.Latency)
	collcomm.SpawnComms(loop, network, hosts, commFn)
	essentials.Must(loop.Run())
}

func main() {
	algorithms := []alltoall.Alltoaller{
		alltoall.DirectAlltoaller{},
		alltoall.PairwiseAlltoaller{},
	}
	algorithmNames := []string{"Direct", "Pairwise"}
	runs := []RunInfo{
		{
			NumNodes: 2,
			Latency:  100 * time.Millisecond,
			Rate:     1e6,
		},
		{
			NumNodes: 8,
			Latency:  time.Millisecond,
			Rate:     1e6,
		},
		{
			NumNodes: 16,
			Latency:  time.Microsecond,
			Rate:     12.5e9,
		},
		{
			NumNodes: 32,
			Latency:  100 * time.Microsecond,
			Rate:     1e9,
		},
	}
	segmentSizes := []int{10, 10000, 1000000}

	// Markdown table header.
	fmt.Print("| Nodes | Latency | NIC rate | Segment ")
	for _, name := range algorithmNames {
		fmt.Printf("| %s ", name)
	}
	fmt.Println("|")
	for i := 0; i < 4+len(algorithms); i++ {
		fmt.Print("|:--")
	}
	fmt.Println("|")

	// Markdown table body.
	for _, runInfo := range runs {
		for _, size := range segmentSizes {
			fmt.Printf(
				"| %d | %v | %s | %d ",
				runInfo.NumNodes,
				runInfo.Latency,
				strconv.FormatFloat(runInfo.Rate, 'E', -1, 64),
				size,
			)
			for _, algorithm := range algorithms {
				loop := simulator.NewLoop()
				runInfo.Run(loop, func(c *collcomm.Comms) {
					send := make([]byte, size*c.Size())
					recv := make([]byte, size*c.Size())
					essentials.Must(algorithm.Alltoall(c, send, recv, size, 1))
				})
				fmt.Printf("| %f ", loop.Now().Seconds())
			}
			fmt.Println("|")
		}
	}
}
