package md3

import (
	"errors"
	"fmt"
)

// BlockSize is the on-wire size of every MD3 block.
const BlockSize = 6

// MaxStationAddress is the largest address that fits the 7-bit station field.
const MaxStationAddress = 0x7F

// MaxMessageBlocks bounds message assembly; a full 256 module digital scan
// plus header fits.
const MaxMessageBlocks = 512

// Block control byte (byte 4) bits
const (
	CtrlFOM     uint8 = 0x80 // Formatted block (header)
	CtrlEOM     uint8 = 0x40 // End of message
	CtrlCRCMask uint8 = 0x3F // 6-bit CRC
)

// DirMasterToStation is carried in the top bit of byte 0 of a formatted block.
const DirMasterToStation uint8 = 0x80

// MissingValue is reported for an analog or counter channel that has no point.
const MissingValue uint16 = 0x8000

// MaxDelta is the largest delta magnitude that fits a delta block byte.
const MaxDelta = 127

// FunctionCode identifies the command of a message.
type FunctionCode uint8

const (
	FnAnalogUnconditional            FunctionCode = 5
	FnAnalogDeltaScan                FunctionCode = 6
	FnDigitalUnconditionalObs        FunctionCode = 7
	FnDigitalDeltaScan               FunctionCode = 8
	FnHRERListScan                   FunctionCode = 9
	FnDigitalChangeOfState           FunctionCode = 10
	FnDigitalChangeOfStateTimeTagged FunctionCode = 11
	FnDigitalUnconditional           FunctionCode = 12
	FnAnalogNoChangeReply            FunctionCode = 13
	FnDigitalNoChangeReply           FunctionCode = 14
	FnControlRequestOK               FunctionCode = 15
	FnFreezeAndReset                 FunctionCode = 16
	FnPOMControl                     FunctionCode = 17
	FnDOMControl                     FunctionCode = 19
	FnInputPointControl              FunctionCode = 20
	FnRaiseLowerControl              FunctionCode = 21
	FnAOMControl                     FunctionCode = 23
	FnControlOrScanRejected          FunctionCode = 30
	FnCounterScan                    FunctionCode = 31
	FnSystemSignOn                   FunctionCode = 40
	FnSystemSignOff                  FunctionCode = 41
	FnSystemRestart                  FunctionCode = 42
	FnSystemSetDateTime              FunctionCode = 43
	FnFileDownload                   FunctionCode = 50
	FnFileUpload                     FunctionCode = 51
	FnSystemFlagScan                 FunctionCode = 52
	FnLowResEventsListScan           FunctionCode = 60
)

var functionNames = map[FunctionCode]string{
	FnAnalogUnconditional:            "ANALOG_UNCONDITIONAL",
	FnAnalogDeltaScan:                "ANALOG_DELTA_SCAN",
	FnDigitalUnconditionalObs:        "DIGITAL_UNCONDITIONAL_OBS",
	FnDigitalDeltaScan:               "DIGITAL_DELTA_SCAN",
	FnHRERListScan:                   "HRER_LIST_SCAN",
	FnDigitalChangeOfState:           "DIGITAL_CHANGE_OF_STATE",
	FnDigitalChangeOfStateTimeTagged: "DIGITAL_CHANGE_OF_STATE_TIME_TAGGED",
	FnDigitalUnconditional:           "DIGITAL_UNCONDITIONAL",
	FnAnalogNoChangeReply:            "ANALOG_NO_CHANGE_REPLY",
	FnDigitalNoChangeReply:           "DIGITAL_NO_CHANGE_REPLY",
	FnControlRequestOK:               "CONTROL_REQUEST_OK",
	FnFreezeAndReset:                 "FREEZE_AND_RESET",
	FnPOMControl:                     "POM_TYPE_CONTROL",
	FnDOMControl:                     "DOM_TYPE_CONTROL",
	FnInputPointControl:              "INPUT_POINT_CONTROL",
	FnRaiseLowerControl:              "RAISE_LOWER_TYPE_CONTROL",
	FnAOMControl:                     "AOM_TYPE_CONTROL",
	FnControlOrScanRejected:          "CONTROL_OR_SCAN_REQUEST_REJECTED",
	FnCounterScan:                    "COUNTER_SCAN",
	FnSystemSignOn:                   "SYSTEM_SIGNON_CONTROL",
	FnSystemSignOff:                  "SYSTEM_SIGNOFF_CONTROL",
	FnSystemRestart:                  "SYSTEM_RESTART_CONTROL",
	FnSystemSetDateTime:              "SYSTEM_SET_DATETIME_CONTROL",
	FnFileDownload:                   "FILE_DOWNLOAD",
	FnFileUpload:                     "FILE_UPLOAD",
	FnSystemFlagScan:                 "SYSTEM_FLAG_SCAN",
	FnLowResEventsListScan:           "LOW_RES_EVENTS_LIST_SCAN",
}

// String returns the protocol name of the function code
func (f FunctionCode) String() string {
	if name, ok := functionNames[f]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(%d)", uint8(f))
}

// IsKnown reports whether f is a function code defined by the protocol.
func (f FunctionCode) IsKnown() bool {
	_, ok := functionNames[f]
	return ok
}

// Errors
var (
	ErrInvalidLength   = errors.New("md3: length is not a multiple of the block size")
	ErrInvalidCRC      = errors.New("md3: invalid block CRC")
	ErrInvalidPad      = errors.New("md3: non-zero pad byte")
	ErrEmptyMessage    = errors.New("md3: empty message")
	ErrMissingEOM      = errors.New("md3: last block is not marked end of message")
	ErrEarlyEOM        = errors.New("md3: end of message before last block")
	ErrExpectedHeader  = errors.New("md3: first block is not a formatted block")
	ErrMessageTooLong  = errors.New("md3: message exceeds maximum block count")
	ErrInvalidTimeData = errors.New("md3: set time message has no time block")
)
