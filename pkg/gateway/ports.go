package gateway

import (
	"context"
	"time"

	"avaneesh/md3-go/pkg/config"
	"avaneesh/md3-go/pkg/modbusport"
	"avaneesh/md3-go/pkg/simport"
)

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }

func (g *Gateway) addModbus(ctx context.Context, mc config.ModbusConfig) error {
	cfg := modbusport.Config{
		Name:     mc.ID,
		Interval: ms(mc.PollIntervalMs),
		Writes:   make(map[uint16]modbusport.Write, len(mc.Writes)),
	}
	for _, r := range mc.Reads {
		cfg.Reads = append(cfg.Reads, modbusport.ReadBlock{
			FC:       r.FC,
			Address:  r.Address,
			Quantity: r.Quantity,
			Index:    r.Index,
			Counter:  r.As == "counter",
		})
	}
	for _, w := range mc.Writes {
		cfg.Writes[w.Index] = modbusport.Write{FC: w.FC, Address: w.Address}
	}

	// Dial lazily so an unreachable slave does not stop the gateway
	factory := func() (modbusport.Client, error) { return g.dialModbus(mc) }
	p, err := modbusport.New(cfg, nil, factory, g.bus, g.logger)
	if err != nil {
		return err
	}
	g.modbus.Store(mc.ID, p)

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := p.Run(ctx); err != nil {
			g.logger.Error("modbus port stopped", "port", mc.ID, "error", err)
		}
	}()
	return nil
}

func (g *Gateway) addSimulator(ctx context.Context, sc config.SimulatorConfig) error {
	cfg := simport.Config{
		Name: sc.ID,
		Seed: uint64(sc.Seed),
	}
	if sc.Seed == 0 {
		cfg.Seed = uint64(time.Now().UnixNano())
	}
	for _, a := range sc.Analogs {
		cfg.Analogs = append(cfg.Analogs, simport.AnalogSim{Index: a.Index, Mean: a.Mean, StdDev: a.StdDev, Interval: ms(a.IntervalMs)})
	}
	for _, b := range sc.Binaries {
		cfg.Binaries = append(cfg.Binaries, simport.BinarySim{Index: b.Index, Start: b.Start, Interval: ms(b.IntervalMs)})
	}
	for _, c := range sc.Counters {
		cfg.Counters = append(cfg.Counters, simport.CounterSim{Index: c.Index, Increment: c.Increment, Interval: ms(c.IntervalMs)})
	}
	for _, c := range sc.Controls {
		cfg.Controls = append(cfg.Controls, simport.ControlSim{Index: c.Index, Feedback: c.Feedback})
	}

	p, err := simport.New(cfg, g.bus, g.logger)
	if err != nil {
		return err
	}
	g.sims.Store(sc.ID, p)

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		if err := p.Run(ctx); err != nil {
			g.logger.Error("simulator stopped", "port", sc.ID, "error", err)
		}
	}()
	return nil
}
