package stats

import "time"

// IOCounters accumulates READ or WRITE activity.
//
// Counters are plain fields: the owning record's entry lock serializes
// updates, and snapshots copy them under the same lock.
type IOCounters struct {
	Total            uint64        `json:"total"`
	Errors           uint64        `json:"errors"`
	BytesRequested   uint64        `json:"bytes_requested"`
	BytesTransferred uint64        `json:"bytes_transferred"`
	Latency          time.Duration `json:"latency_ns"`
}

func (c *IOCounters) record(requested, transferred uint64, success bool, latency time.Duration) {
	c.Total++
	c.BytesRequested += requested
	if success {
		c.BytesTransferred += transferred
	} else {
		c.Errors++
	}
	c.Latency += latency
}

// OpCounters accumulates a single operation type.
type OpCounters struct {
	Total   uint64        `json:"total"`
	Errors  uint64        `json:"errors"`
	Latency time.Duration `json:"latency_ns"`
}

func (c *OpCounters) record(success bool, latency time.Duration) {
	c.Total++
	if !success {
		c.Errors++
	}
	c.Latency += latency
}

// CompoundCounters accumulates NFSv4 COMPOUND requests.
type CompoundCounters struct {
	Total   uint64        `json:"total"`
	Errors  uint64        `json:"errors"`
	Ops     uint64        `json:"ops"`
	Latency time.Duration `json:"latency_ns"`
}

func (c *CompoundCounters) record(numOps uint32, success bool, latency time.Duration) {
	c.Total++
	c.Ops += uint64(numOps)
	if !success {
		c.Errors++
	}
	c.Latency += latency
}

// counters is the payload shared by export and client records.
type counters struct {
	Read      IOCounters
	Write     IOCounters
	Ops       map[string]*OpCounters
	Compounds CompoundCounters
}

func newCounters() counters {
	return counters{Ops: make(map[string]*OpCounters)}
}

func (c *counters) io(requested, transferred uint64, success, isWrite bool, latency time.Duration) {
	if isWrite {
		c.Write.record(requested, transferred, success, latency)
	} else {
		c.Read.record(requested, transferred, success, latency)
	}
}

func (c *counters) op(name string, success bool, latency time.Duration) {
	oc, ok := c.Ops[name]
	if !ok {
		oc = &OpCounters{}
		c.Ops[name] = oc
	}
	oc.record(success, latency)
}

// Counters is a point-in-time copy of a record's counters.
type Counters struct {
	Read      IOCounters            `json:"read"`
	Write     IOCounters            `json:"write"`
	Ops       map[string]OpCounters `json:"ops,omitempty"`
	Compounds CompoundCounters      `json:"compounds"`
}

func (c *counters) snapshot() Counters {
	out := Counters{
		Read:      c.Read,
		Write:     c.Write,
		Compounds: c.Compounds,
	}
	if len(c.Ops) > 0 {
		out.Ops = make(map[string]OpCounters, len(c.Ops))
		for name, oc := range c.Ops {
			out.Ops[name] = *oc
		}
	}
	return out
}
