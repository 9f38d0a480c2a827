package bench

//go:generate mockgen -destination "mock_exchanger_test.go" -package $GOPACKAGE -write_package_comment=false github.com/unixpickle/alltoall-bench/bench Exchanger

// An Exchanger is a blocking all-to-all primitive over a
// fixed group of processes.
//
// Alltoall sends the i-th count-byte segment of send to
// process i and stores the segment received from process i
// in the i-th segment of recv. It returns once this
// process's part of the exchange is complete. Every
// process must pass the same count.
type Exchanger interface {
	Alltoall(send, recv []byte, count int) error
}

// A Driver performs the exchanges of one measurement.
type Driver struct {
	cfg     Config
	ex      Exchanger
	buffers *Buffers
}

// NewDriver creates a Driver.
func NewDriver(cfg Config, ex Exchanger, buffers *Buffers) *Driver {
	return &Driver{cfg: cfg, ex: ex, buffers: buffers}
}

// Iterate performs cfg.ExchangesPerIteration exchanges and
// stops at the first failure.
func (d *Driver) Iterate() error {
	for i := 0; i < d.cfg.ExchangesPerIteration; i++ {
		if err := d.ex.Alltoall(d.buffers.Send, d.buffers.Recv, d.cfg.MessageSize); err != nil {
			return err
		}
	}
	return nil
}
