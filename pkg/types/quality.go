package types

// Flags represents point quality as it travels over the bus
type Flags uint8

const (
	FlagOnline       Flags = 0x01 // Point is online
	FlagRestart      Flags = 0x02 // Source restarted, value not yet refreshed
	FlagCommLost     Flags = 0x04 // Communication to the source lost
	FlagRemoteForced Flags = 0x08 // Value forced by a remote operator
	FlagLocalForced  Flags = 0x10 // Value forced locally (simulator force)
	FlagOverRange    Flags = 0x20 // Value exceeds the reportable range
)

// IsOnline returns true if the point is marked as online
func (f Flags) IsOnline() bool {
	return f&FlagOnline != 0
}

// HasCommLost returns true if communication was lost
func (f Flags) HasCommLost() bool {
	return f&FlagCommLost != 0
}

// IsForced returns true if the value was forced (remote or local)
func (f Flags) IsForced() bool {
	return f&(FlagRemoteForced|FlagLocalForced) != 0
}

// IsOverRange returns true if the value exceeds the measurement range
func (f Flags) IsOverRange() bool {
	return f&FlagOverRange != 0
}

// IsGood returns true if the point is online with no communication fault
func (f Flags) IsGood() bool {
	return f.IsOnline() && !f.HasCommLost()
}

// WithOnline returns a copy of flags with online bit set
func (f Flags) WithOnline(online bool) Flags {
	if online {
		return f | FlagOnline
	}
	return f &^ FlagOnline
}

// WithCommLost returns a copy of flags with the comm lost bit set
func (f Flags) WithCommLost(lost bool) Flags {
	if lost {
		return (f | FlagCommLost) &^ FlagOnline
	}
	return (f &^ FlagCommLost) | FlagOnline
}
