package gateway

import (
	"context"
	"errors"
	"time"

	"avaneesh/md3-go/pkg/bus"
	"avaneesh/md3-go/pkg/config"
	"avaneesh/md3-go/pkg/internal/logger"
	"avaneesh/md3-go/pkg/md3"
	"avaneesh/md3-go/pkg/outstation"
	"avaneesh/md3-go/pkg/points"
	"avaneesh/md3-go/pkg/types"
)

// station binds one outstation to its store, its channel and the bus
type station struct {
	id         string
	store      *points.Store
	outstation *outstation.Outstation
	remove     func()
	cancel     func()
	logger     logger.Logger
}

func (g *Gateway) addOutstation(oc config.OutstationConfig) error {
	pc, err := oc.Points.Build()
	if err != nil {
		return err
	}
	store, err := points.NewStore(pc)
	if err != nil {
		return err
	}

	ch, err := g.channelFor(oc.Transport)
	if err != nil {
		return err
	}

	s := &station{
		id:     oc.ID,
		store:  store,
		logger: g.logger.With("outstation", oc.ID),
	}

	timeout := time.Duration(oc.ControlTimeoutMs) * time.Millisecond
	controls := outstation.ControlHandlerFunc(func(ctx context.Context, ctl types.Control) types.CommandStatus {
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return g.bus.Request(ctx, oc.ID, ctl)
	})

	ocfg := outstation.Config{
		ID:                    oc.ID,
		Station:               oc.Station,
		Fn12ReplyFunction:     md3.FunctionCode(oc.Fn12ReplyFunction),
		SharedDigitalSequence: oc.SharedDigitalSequence,
		ErrorFlags:            oc.ErrorFlags,
		FlagSource:            store,
		OnTimeSet:             s.onTimeSet,
	}
	o, err := outstation.New(ocfg, store, controls, ch, g.logger)
	if err != nil {
		return err
	}
	s.outstation = o

	cancel, err := g.bus.Subscribe(oc.ID, bus.Kinds(types.PointTypeBinary, types.PointTypeAnalog, types.PointTypeCounter), 0, s.apply)
	if err != nil {
		return err
	}
	s.cancel = cancel

	if err := ch.AddSession(o); err != nil {
		cancel()
		return err
	}
	s.remove = func() { ch.RemoveSession(oc.Station) }

	g.stations.Store(oc.ID, s)
	o.Enable()
	return nil
}

// apply writes a measurement into the store. Indexes are global across the
// gateway, so points another outstation owns are skipped silently.
func (s *station) apply(e bus.Event) {
	var err error
	switch e.Kind {
	case types.PointTypeBinary:
		err = s.store.UpdateBinary(e.Index, e.Binary)
	case types.PointTypeAnalog:
		err = s.store.UpdateAnalog(e.Index, e.Analog)
	case types.PointTypeCounter:
		err = s.store.UpdateCounter(e.Index, e.Counter)
	}
	if err != nil && !errors.Is(err, points.ErrUnknownIndex) {
		s.logger.Warn("point update failed", "event", e.String(), "error", err)
	}
}

func (s *station) onTimeSet(t time.Time) {
	s.logger.Info("time set by master", "time", t, "drift", time.Since(t).Round(time.Millisecond))
}

func (s *station) close() {
	s.outstation.Disable()
	if s.remove != nil {
		s.remove()
	}
	if s.cancel != nil {
		s.cancel()
	}
}
