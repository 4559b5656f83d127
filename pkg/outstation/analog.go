package outstation

import (
	"avaneesh/md3-go/pkg/md3"
	"avaneesh/md3-go/pkg/points"
)

// AnalogResponse is the encoding chosen for an analog scan
type AnalogResponse int

const (
	AnalogNoChange AnalogResponse = iota
	AnalogDelta
	AnalogFull
)

// String returns string representation of AnalogResponse
func (r AnalogResponse) String() string {
	switch r {
	case AnalogNoChange:
		return "NoChange"
	case AnalogDelta:
		return "Delta"
	case AnalogFull:
		return "Full"
	default:
		return "Unknown"
	}
}

// analogScan is a consistent read of a channel range.
type analogScan struct {
	module  uint8
	values  []uint16
	deltas  []int32
	missing []bool
}

func readAnalog(r points.Reader, module, channels uint8) analogScan {
	s := analogScan{
		module:  module,
		values:  make([]uint16, channels),
		deltas:  make([]int32, channels),
		missing: make([]bool, channels),
	}
	for ch := uint8(0); ch < channels; ch++ {
		v, d, ok := r.Analog(module, ch)
		if !ok {
			s.values[ch] = md3.MissingValue
			s.missing[ch] = true
			continue
		}
		s.values[ch] = v
		s.deltas[ch] = d
	}
	return s
}

func readCounters(r points.Reader, module, channels uint8) analogScan {
	s := analogScan{
		module:  module,
		values:  make([]uint16, channels),
		deltas:  make([]int32, channels),
		missing: make([]bool, channels),
	}
	for ch := uint8(0); ch < channels; ch++ {
		v, ok := r.Counter(module, ch)
		if !ok {
			s.values[ch] = md3.MissingValue
			s.missing[ch] = true
			continue
		}
		s.values[ch] = v
	}
	return s
}

// ClassifyAnalog decides how a scanned range is reported. A missing channel
// or a delta larger than a byte forces a full reply; otherwise any nonzero
// delta gives a delta reply, else no change.
func ClassifyAnalog(deltas []int32, missing []bool) AnalogResponse {
	result := AnalogNoChange
	for i, d := range deltas {
		if missing[i] || d > md3.MaxDelta || d < -md3.MaxDelta {
			return AnalogFull
		}
		if d != 0 {
			result = AnalogDelta
		}
	}
	return result
}

func (o *Outstation) handleAnalogUnconditional(req md3.Message) (*response, error) {
	h := req.Header()
	var scan analogScan
	o.store.View(func(r points.Reader) {
		scan = readAnalog(r, h.Module(), h.Channels())
	})
	return o.analogFullResponse(md3.FnAnalogUnconditional, scan, h.Channels()), nil
}

func (o *Outstation) handleAnalogDeltaScan(req md3.Message) (*response, error) {
	h := req.Header()
	var scan analogScan
	o.store.View(func(r points.Reader) {
		scan = readAnalog(r, h.Module(), h.Channels())
	})

	switch ClassifyAnalog(scan.deltas, scan.missing) {
	case AnalogFull:
		return o.analogFullResponse(md3.FnAnalogUnconditional, scan, h.Channels()), nil

	case AnalogDelta:
		deltas := make([]int8, len(scan.deltas))
		for i, d := range scan.deltas {
			deltas[i] = int8(d)
		}
		reply := md3.NewBuilder(o.header(md3.FnAnalogDeltaScan, h.Module(), h.Channels())).
			AddDeltas(deltas).
			Build()
		return &response{reply: reply, commit: o.commitAnalog(scan)}, nil

	default:
		return &response{reply: md3.NewBuilder(o.header(md3.FnAnalogNoChangeReply, h.Module(), h.Channels())).Build()}, nil
	}
}

func (o *Outstation) handleCounterScan(req md3.Message) (*response, error) {
	h := req.Header()
	var scan analogScan
	o.store.View(func(r points.Reader) {
		scan = readCounters(r, h.Module(), h.Channels())
	})

	reply := md3.NewBuilder(o.header(md3.FnCounterScan, h.Module(), h.Channels())).
		AddWords(scan.values).
		Build()
	commit := func() {
		for ch, missing := range scan.missing {
			if !missing {
				o.store.CommitCounter(scan.module, uint8(ch))
			}
		}
	}
	return &response{reply: reply, commit: commit}, nil
}

func (o *Outstation) analogFullResponse(fn md3.FunctionCode, scan analogScan, channels uint8) *response {
	reply := md3.NewBuilder(o.header(fn, scan.module, channels)).
		AddWords(scan.values).
		Build()
	return &response{reply: reply, commit: o.commitAnalog(scan)}
}

// commitAnalog makes the reported values the new delta reference.
func (o *Outstation) commitAnalog(scan analogScan) func() {
	return func() {
		for ch, missing := range scan.missing {
			if !missing {
				o.store.CommitAnalog(scan.module, uint8(ch), scan.values[ch])
			}
		}
	}
}
