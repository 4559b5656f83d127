package outstation

import (
	"time"

	"avaneesh/md3-go/pkg/md3"
	"avaneesh/md3-go/pkg/points"
)

// moduleScan is the aggregated state of the 16 bits of one digital module.
type moduleScan struct {
	module    uint8
	word      uint16
	changed   bool
	pending   bool
	missing   bool
	tagged    bool
	changedAt time.Time
}

// scanModule folds the bits of a module into one word. Bit j of the module
// is word bit 15-j. A missing bit marks the module missing and changed;
// pending is set only by a changed configured bit.
func scanModule(r points.Reader, module uint8) moduleScan {
	s := moduleScan{
		module: module,
		tagged: r.ModuleTimeTagged(module),
	}
	for bit := uint8(0); bit < points.BitsPerModule; bit++ {
		value, changed, ok := r.Digital(module, bit)
		if !ok {
			s.missing = true
			s.changed = true
			continue
		}
		if value {
			s.word |= 1 << (15 - bit)
		}
		if changed {
			s.changed = true
			s.pending = true
		}
	}
	if s.tagged {
		s.changedAt = r.ModuleChangedAt(module)
	}
	return s
}

func scanRange(r points.Reader, start, count uint8) []moduleScan {
	scans := make([]moduleScan, 0, count)
	for i := 0; i < int(count); i++ {
		scans = append(scans, scanModule(r, start+uint8(i)))
	}
	return scans
}

// changeCount returns the number of modules counted as changed.
func changeCount(scans []moduleScan) int {
	n := 0
	for _, s := range scans {
		if s.changed {
			n++
		}
	}
	return n
}

// digitalBlock encodes one module as a data block, or as an error block when
// any of its bits is missing.
func (o *Outstation) digitalBlock(s moduleScan) md3.Block {
	station := uint16(o.config.Station) << 8
	if s.missing {
		return md3.NewDataBlock(station, uint16(o.config.ErrorFlags)<<8|uint16(s.module))
	}
	return md3.NewDataBlock(station|uint16(s.module), s.word)
}

// buildDigitalBlocks returns the blocks for every changed module, or every
// module when force is set, and the scans they report.
func (o *Outstation) buildDigitalBlocks(scans []moduleScan, force bool) ([]md3.Block, []moduleScan) {
	var blocks []md3.Block
	var sent []moduleScan
	for _, s := range scans {
		if !s.changed && !force {
			continue
		}
		blocks = append(blocks, o.digitalBlock(s))
		sent = append(sent, s)
	}
	return blocks, sent
}

// commitDigital clears the change flags of reported modules.
func (o *Outstation) commitDigital(sent []moduleScan) {
	for _, s := range sent {
		o.store.ClearDigital(s.module, s.word)
	}
}

// Function 7
func (o *Outstation) handleDigitalUnconditionalObs(req md3.Message) (*response, error) {
	h := req.Header()
	var scans []moduleScan
	o.store.View(func(r points.Reader) {
		scans = scanRange(r, h.Module(), h.Channels())
	})
	return o.digitalUnconditionalResponse(h.Module(), h.Channels(), scans), nil
}

func (o *Outstation) digitalUnconditionalResponse(module, channels uint8, scans []moduleScan) *response {
	blocks, sent := o.buildDigitalBlocks(scans, true)
	reply := md3.NewBuilder(o.header(md3.FnDigitalUnconditionalObs, module, channels)).Add(blocks...).Build()
	return &response{reply: reply, commit: func() { o.commitDigital(sent) }}
}

// Function 8
func (o *Outstation) handleDigitalChangeOnly(req md3.Message) (*response, error) {
	h := req.Header()
	var scans []moduleScan
	o.store.View(func(r points.Reader) {
		scans = scanRange(r, h.Module(), h.Channels())
	})

	changed := changeCount(scans)
	switch {
	case changed == 0:
		reply := md3.NewBuilder(o.header(md3.FnDigitalNoChangeReply, h.Module(), h.Channels())).Build()
		return &response{reply: reply}, nil

	case changed == len(scans):
		return o.digitalUnconditionalResponse(h.Module(), h.Channels(), scans), nil

	default:
		blocks, sent := o.buildDigitalBlocks(scans, false)
		reply := md3.NewBuilder(o.header(md3.FnDigitalDeltaScan, h.Module(), uint8(changed))).Add(blocks...).Build()
		return &response{reply: reply, commit: func() { o.commitDigital(sent) }}, nil
	}
}

// Function 11. Sequence 0 opens a sweep over every digital module; later
// nonzero sequences drain it, bounded by the request's counts, before normal
// change driven reporting resumes. Outside a sweep only modules with a
// changed configured bit are reported. A repeated nonzero sequence is
// answered from the resend cache.
func (o *Outstation) handleDigitalScan(req md3.Message) (*response, error) {
	h := req.Header()
	maxTagged, seq, maxModules := h.TimeTaggedFields()

	if reply, ok := o.resend.TryResend(SequenceTimeTagged, seq); ok {
		o.stats.inc(&o.stats.resends)
		return &response{reply: reply}, nil
	}

	sweeping := seq == 0 || len(o.sweep) > 0
	var scans []moduleScan
	o.store.View(func(r points.Reader) {
		modules := r.DigitalModules()
		if seq != 0 && len(o.sweep) > 0 {
			modules = o.sweep
		}
		for _, m := range modules {
			if s := scanModule(r, m); s.pending || sweeping {
				scans = append(scans, s)
			}
		}
	})

	var untagged, tagged []moduleScan
	for _, s := range scans {
		switch {
		case s.tagged && len(tagged) < int(maxTagged):
			tagged = append(tagged, s)
		case !s.tagged && len(untagged) < int(maxModules):
			untagged = append(untagged, s)
		}
	}

	// Pending modules that do not fit the request's counts still get a
	// change header, with zero counts.
	var reply md3.Message
	if len(scans) == 0 {
		reply = md3.NewBuilder(md3.NewTimeTaggedHeader(o.config.Station, false, md3.FnDigitalNoChangeReply, maxTagged, seq, maxModules)).Build()
	} else {
		b := md3.NewBuilder(md3.NewTimeTaggedHeader(o.config.Station, false, md3.FnDigitalChangeOfStateTimeTagged,
			uint8(len(tagged)), seq, uint8(len(untagged))))
		for _, s := range untagged {
			b.Add(o.digitalBlock(s))
		}
		for _, s := range tagged {
			if s.missing {
				b.Add(o.digitalBlock(s))
				continue
			}
			at := s.changedAt
			if at.IsZero() {
				at = time.Now()
			}
			tb, db := md3.NewTimeTaggedBlocks(s.module, s.word, at)
			b.Add(tb, db)
		}
		reply = b.Build()
	}

	sent := make([]moduleScan, 0, len(untagged)+len(tagged))
	sent = append(append(sent, untagged...), tagged...)
	commit := func() {
		o.commitDigital(sent)
		if sweeping {
			o.sweep = remaining(scans, sent)
		}
		o.resend.Record(SequenceTimeTagged, seq, reply)
	}
	return &response{reply: reply, commit: commit}, nil
}

// remaining returns the modules of scans not present in sent.
func remaining(scans, sent []moduleScan) []uint8 {
	done := make(map[uint8]bool, len(sent))
	for _, s := range sent {
		done[s.module] = true
	}
	var out []uint8
	for _, s := range scans {
		if !done[s.module] {
			out = append(out, s.module)
		}
	}
	return out
}

// Function 12. Reports every module of the requested range, in the
// function 11 header layout without time-tagged data.
func (o *Outstation) handleDigitalUnconditional(req md3.Message) (*response, error) {
	start, seq, count := req.Header().UnconditionalFields()

	if reply, ok := o.resend.TryResend(SequenceUnconditional, seq); ok {
		o.stats.inc(&o.stats.resends)
		return &response{reply: reply}, nil
	}

	var scans []moduleScan
	o.store.View(func(r points.Reader) {
		scans = scanRange(r, start, count)
	})

	blocks, sent := o.buildDigitalBlocks(scans, true)
	reply := md3.NewBuilder(md3.NewTimeTaggedHeader(o.config.Station, false, o.config.Fn12ReplyFunction, 0, seq, count)).
		Add(blocks...).
		Build()

	commit := func() {
		o.commitDigital(sent)
		o.resend.Record(SequenceUnconditional, seq, reply)
	}
	return &response{reply: reply, commit: commit}, nil
}
