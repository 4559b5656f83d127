package outstation

import (
	"avaneesh/md3-go/pkg/md3"
)

// Function 40
func (o *Outstation) handleSignOn(req md3.Message) (*response, error) {
	h := req.Header()
	return &response{reply: md3.NewBuilder(o.header(md3.FnSystemSignOn, h.Module(), h.Channels())).Build()}, nil
}

// Function 43
func (o *Outstation) handleSetDateTime(req md3.Message) (*response, error) {
	h := req.Header()
	t, err := md3.ParseSetTime(req)
	if err != nil {
		return o.rejected(h, err), nil
	}

	resp := o.controlOK(h)
	resp.commit = func() {
		o.flags.OnTimeSet()
		if o.config.OnTimeSet != nil {
			o.config.OnTimeSet(t)
		}
		o.logger.Info("time set", "time", t)
	}
	return resp, nil
}

// Function 52
func (o *Outstation) handleFlagScan(req md3.Message) (*response, error) {
	h := req.Header()
	word, err := o.flags.ComputeWord()
	if err != nil {
		o.logger.Warn("system flag capability missing", "error", err)
	}

	reply := md3.NewBuilder(o.header(md3.FnSystemFlagScan, h.Module(), h.Channels())).
		Add(md3.NewDataBlock(uint16(o.config.Station)<<8, uint16(word))).
		Build()
	return &response{reply: reply, commit: func() { o.flags.OnFlagScanSent(word) }}, nil
}
