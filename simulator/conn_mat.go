package simulator

// A ConnMat holds a value for every ordered pair of hosts,
// with sources as rows and destinations as columns.
type ConnMat struct {
	n      int
	values []float64
}

// NewConnMat creates an all-zero matrix.
func NewConnMat(numHosts int) *ConnMat {
	return &ConnMat{n: numHosts, values: make([]float64, numHosts*numHosts)}
}

// NumHosts returns the matrix dimension.
func (c *ConnMat) NumHosts() int {
	return c.n
}

// Get returns the entry for src -> dst.
func (c *ConnMat) Get(src, dst int) float64 {
	return c.values[c.offset(src, dst)]
}

// Set replaces the entry for src -> dst.
func (c *ConnMat) Set(src, dst int, value float64) {
	c.values[c.offset(src, dst)] = value
}

// SumSource adds up a row.
func (c *ConnMat) SumSource(src int) float64 {
	var sum float64
	for dst := 0; dst < c.n; dst++ {
		sum += c.Get(src, dst)
	}
	return sum
}

// SumDest adds up a column.
func (c *ConnMat) SumDest(dst int) float64 {
	var sum float64
	for src := 0; src < c.n; src++ {
		sum += c.Get(src, dst)
	}
	return sum
}

// ScaleSource multiplies a row by scale.
func (c *ConnMat) ScaleSource(src int, scale float64) {
	for dst := 0; dst < c.n; dst++ {
		c.Set(src, dst, c.Get(src, dst)*scale)
	}
}

// ScaleDest multiplies a column by scale.
func (c *ConnMat) ScaleDest(dst int, scale float64) {
	for src := 0; src < c.n; src++ {
		c.Set(src, dst, c.Get(src, dst)*scale)
	}
}

func (c *ConnMat) offset(src, dst int) int {
	if src < 0 || dst < 0 || src >= c.n || dst >= c.n {
		panic("index out of bounds")
	}
	return src*c.n + dst
}
