package simulator

// A Switch decides how fast data flows between hosts when
// several transfers compete for the same links.
type Switch interface {
	// Rates is passed a matrix with a 1 wherever a host
	// is sending to another host and 0 elsewhere, and
	// overwrites it with the transfer rate of each pair.
	Rates(mat *ConnMat)
}

// A FairShareSwitch splits each host's upload rate evenly
// across its active destinations, then scales down the
// traffic into any host whose download rate is exceeded,
// in proportion to each sender's share.
type FairShareSwitch struct {
	SendRates []float64
	RecvRates []float64
}

// NewFairShareSwitch creates a FairShareSwitch where every
// host has the same upload and download rate.
func NewFairShareSwitch(numHosts int, rate float64) *FairShareSwitch {
	rates := make([]float64, numHosts)
	for i := range rates {
		rates[i] = rate
	}
	return &FairShareSwitch{SendRates: rates, RecvRates: rates}
}

// NumHosts returns the number of hosts on the switch.
func (f *FairShareSwitch) NumHosts() int {
	return len(f.SendRates)
}

// Rates applies the switching policy.
func (f *FairShareSwitch) Rates(mat *ConnMat) {
	if mat.NumHosts() != f.NumHosts() {
		panic("unexpected number of hosts")
	}
	for src := 0; src < f.NumHosts(); src++ {
		if fanout := mat.SumSource(src); fanout > 0 {
			mat.ScaleSource(src, f.SendRates[src]/fanout)
		}
	}
	for dst := 0; dst < f.NumHosts(); dst++ {
		if incoming := mat.SumDest(dst); incoming > f.RecvRates[dst] {
			mat.ScaleDest(dst, f.RecvRates[dst]/incoming)
		}
	}
}
