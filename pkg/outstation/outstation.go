// Package outstation implements the station side of the MD3 protocol: it
// answers scans from its point store, executes controls and keeps the
// sequence and system flag state a master relies on.
package outstation

import (
	"context"
	"fmt"
	"sync"

	"avaneesh/md3-go/pkg/internal/logger"
	"avaneesh/md3-go/pkg/md3"
)

// response is what a handler produces: the reply to send and the state
// change to apply once it has been sent.
type response struct {
	reply  md3.Message
	commit func()
}

// Outstation is one MD3 station address served by the gateway
type Outstation struct {
	config   Config
	store    PointStore
	controls ControlHandler
	sender   Sender
	logger   logger.Logger

	resend *ResendCache
	flags  *FlagTracker
	stats  *Statistics

	// Modules still to be reported by a function 11 send-everything sweep.
	sweep []uint8

	enabled bool
	stateMu sync.RWMutex

	// One request in flight at a time
	processMu sync.Mutex
}

// New creates a new outstation. controls may be nil, in which case every
// control is answered as not supported.
func New(config Config, store PointStore, controls ControlHandler, sender Sender, log logger.Logger) (*Outstation, error) {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	if config.Fn12ReplyFunction == 0 {
		config.Fn12ReplyFunction = md3.FnDigitalUnconditional
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if store == nil || sender == nil {
		return nil, fmt.Errorf("outstation %s: store and sender are required", config.ID)
	}

	o := &Outstation{
		config:   config,
		store:    store,
		controls: controls,
		sender:   sender,
		logger:   log.With("outstation", config.ID, "station", config.Station),
		resend:   NewResendCache(config.SharedDigitalSequence),
		flags:    NewFlagTracker(),
		stats:    NewStatistics(),
	}

	if config.FlagSource != nil {
		o.flags.RegisterSource(config.FlagSource)
	} else {
		o.logger.Warn("no flag source registered, DCP and HRP will report clear")
	}

	o.logger.Info("outstation created")
	return o, nil
}

// Flags exposes the system flag tracker, e.g. to register capabilities
// individually.
func (o *Outstation) Flags() *FlagTracker {
	return o.flags
}

// Enable enables the outstation
func (o *Outstation) Enable() {
	o.stateMu.Lock()
	o.enabled = true
	o.stateMu.Unlock()
	o.logger.Info("outstation enabled")
}

// Disable disables the outstation; requests are ignored until re-enabled
func (o *Outstation) Disable() {
	o.stateMu.Lock()
	o.enabled = false
	o.stateMu.Unlock()
	o.logger.Info("outstation disabled")
}

func (o *Outstation) isEnabled() bool {
	o.stateMu.RLock()
	defer o.stateMu.RUnlock()
	return o.enabled
}

// StationAddress implements channel.Session
func (o *Outstation) StationAddress() uint8 {
	return o.config.Station
}

// OnReceive implements channel.Session
func (o *Outstation) OnReceive(ctx context.Context, msg md3.Message) error {
	return o.ProcessMessage(ctx, msg)
}

// Statistics returns the outstation counters
func (o *Outstation) Statistics() *Statistics {
	return o.stats
}

// String returns string representation of the outstation
func (o *Outstation) String() string {
	return fmt.Sprintf("Outstation{ID=%s, Station=%d, Enabled=%v}", o.config.ID, o.config.Station, o.isEnabled())
}

// ProcessMessage handles one complete request: dispatch, send the reply and
// then commit the state the handler produced. Requests for another station
// are ignored.
func (o *Outstation) ProcessMessage(ctx context.Context, req md3.Message) error {
	if len(req) == 0 {
		return md3.ErrEmptyMessage
	}
	if !o.isEnabled() {
		return ErrOutstationDisabled
	}

	o.processMu.Lock()
	defer o.processMu.Unlock()

	header := req.Header()
	if header.Station() != o.config.Station {
		o.stats.inc(&o.stats.ignored)
		return nil
	}
	o.stats.inc(&o.stats.requests)
	o.logger.Debug("request received", "function", header.Function(), "blocks", len(req))

	resp, err := o.dispatch(ctx, req)
	if err != nil {
		o.logger.Warn("request not answered", "function", header.Function(), "error", err)
		return err
	}
	if resp == nil {
		return nil
	}

	if err := o.sender.Send(ctx, resp.reply); err != nil {
		o.stats.inc(&o.stats.sendErrors)
		o.logger.Error("reply send failed", "function", header.Function(), "error", err)
		return fmt.Errorf("send reply: %w", err)
	}
	o.stats.inc(&o.stats.replies)
	o.logger.Debug("reply sent", "function", resp.reply.Header().Function(), "blocks", len(resp.reply))

	if resp.commit != nil {
		resp.commit()
	}
	o.flags.Observe()
	return nil
}

// dispatch routes a request to its handler by function code.
func (o *Outstation) dispatch(ctx context.Context, req md3.Message) (*response, error) {
	fn := req.Header().Function()
	switch fn {
	case md3.FnAnalogUnconditional:
		return o.handleAnalogUnconditional(req)
	case md3.FnAnalogDeltaScan:
		return o.handleAnalogDeltaScan(req)
	case md3.FnCounterScan:
		return o.handleCounterScan(req)
	case md3.FnDigitalUnconditionalObs:
		return o.handleDigitalUnconditionalObs(req)
	case md3.FnDigitalDeltaScan:
		return o.handleDigitalChangeOnly(req)
	case md3.FnDigitalChangeOfStateTimeTagged:
		return o.handleDigitalScan(req)
	case md3.FnDigitalUnconditional:
		return o.handleDigitalUnconditional(req)
	case md3.FnFreezeAndReset:
		return o.handleFreezeAndReset(req)
	case md3.FnPOMControl:
		return o.handlePOMControl(ctx, req)
	case md3.FnDOMControl:
		return o.handleDOMControl(ctx, req)
	case md3.FnAOMControl:
		return o.handleAOMControl(ctx, req)
	case md3.FnSystemSignOn:
		return o.handleSignOn(req)
	case md3.FnSystemSetDateTime:
		return o.handleSetDateTime(req)
	case md3.FnSystemFlagScan:
		return o.handleFlagScan(req)

	case md3.FnHRERListScan,
		md3.FnDigitalChangeOfState,
		md3.FnAnalogNoChangeReply,
		md3.FnDigitalNoChangeReply,
		md3.FnControlRequestOK,
		md3.FnInputPointControl,
		md3.FnRaiseLowerControl,
		md3.FnControlOrScanRejected,
		md3.FnSystemSignOff,
		md3.FnSystemRestart,
		md3.FnFileDownload,
		md3.FnFileUpload,
		md3.FnLowResEventsListScan:
		// Master only or unused in this deployment
		o.stats.inc(&o.stats.noOps)
		return nil, nil

	default:
		o.stats.inc(&o.stats.unknown)
		o.logger.Error("unknown function code", "function", uint8(fn))
		return nil, nil
	}
}

// header builds a reply header for this station
func (o *Outstation) header(fn md3.FunctionCode, module, channels uint8) md3.Block {
	return md3.NewHeader(o.config.Station, false, fn, module, channels)
}
