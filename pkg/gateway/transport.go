package gateway

import (
	"fmt"
	"time"

	"avaneesh/md3-go/pkg/channel"
	"avaneesh/md3-go/pkg/config"
	"avaneesh/md3-go/pkg/modbusport"
)

func newPhysical(t config.TransportConfig) (channel.PhysicalChannel, error) {
	readTimeout := time.Duration(t.ReadTimeoutMs) * time.Millisecond

	switch t.Type {
	case "tcp":
		return channel.NewTCPChannel(channel.TCPChannelConfig{
			Address:     t.Address,
			IsServer:    t.IsServer(),
			ReadTimeout: readTimeout,
		})
	case "udp":
		return channel.NewUDPChannel(channel.UDPChannelConfig{
			Address:     t.Address,
			IsServer:    t.IsServer(),
			ReadTimeout: readTimeout,
		})
	case "quic":
		return channel.NewQUICChannel(channel.QUICChannelConfig{
			Address:     t.Address,
			IsServer:    t.IsServer(),
			ReadTimeout: readTimeout,
		})
	case "serial":
		if t.Serial == nil {
			return nil, fmt.Errorf("serial settings missing")
		}
		return channel.NewSerialChannel(channel.SerialChannelConfig{
			Port:        t.Serial.Port,
			BaudRate:    t.Serial.BaudRate,
			DataBits:    t.Serial.DataBits,
			Parity:      t.Serial.Parity,
			StopBits:    t.Serial.StopBits,
			ReadTimeout: readTimeout,
		})
	default:
		return nil, fmt.Errorf("unknown transport type %q", t.Type)
	}
}

func dialModbus(m config.ModbusConfig) (modbusport.Client, error) {
	return modbusport.Dial(m.Endpoint, m.UnitID, time.Duration(m.TimeoutMs)*time.Millisecond)
}

// channelFor returns the channel of a line, opening it on first use.
func (g *Gateway) channelFor(t config.TransportConfig) (*channel.Channel, error) {
	key := t.Key()
	if ch, ok := g.channels.Load(key); ok {
		return ch, nil
	}

	physical, err := g.transports(t)
	if err != nil {
		return nil, fmt.Errorf("transport %s: %w", key, err)
	}
	ch := channel.New(key, physical, g.logger)
	if err := ch.Open(); err != nil {
		_ = physical.Close()
		return nil, fmt.Errorf("open channel %s: %w", key, err)
	}
	g.channels.Store(key, ch)
	return ch, nil
}
