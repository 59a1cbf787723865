// Package nal converts length-prefixed (avcC/hvcC style) H.264 and H.265
// bitstreams into the start-code delimited form the RTP payloaders expect.
package nal

import (
	"errors"
	"fmt"
)

// Format is the way NAL units are delimited in a buffer.
type Format int

const (
	Unknown Format = iota
	StartCode
	LengthPrefixed
	LengthPrefixedHEVC
)

func (f Format) String() string {
	switch f {
	case StartCode:
		return "start-code"
	case LengthPrefixed:
		return "length-prefixed"
	case LengthPrefixedHEVC:
		return "length-prefixed-hevc"
	}
	return "unknown"
}

var (
	ErrFormat      = errors.New("nal: bad bitstream format")
	ErrTruncated   = fmt.Errorf("%w: truncated unit", ErrFormat)
	ErrNilArgument = errors.New("nal: nil argument")
)

const (
	// avcC: version, profile, compatibility, level, length size, sps count
	avccHeaderSize = 6
	// hvcC: everything up to and including numOfArrays
	hvccHeaderSize = 23
)

var startCode = []byte{0x00, 0x00, 0x00, 0x01}

// startCodeLen returns the size of a start code at the head of b or 0.
// Some encoders emit an extra leading zero, so five bytes are checked too.
func startCodeLen(b []byte) int {
	n := len(b)
	if n >= 3 && b[0] == 0 && b[1] == 0 && b[2] == 1 {
		return 3
	}
	if n >= 4 && b[0] == 0 && b[1] == 0 && b[2] == 0 && b[3] == 1 {
		return 4
	}
	if n >= 5 && b[0] == 0 && b[1] == 0 && b[2] == 0 && b[3] == 0 && b[4] == 1 {
		return 5
	}
	return 0
}

// HasStartCode tells whether the buffer already begins with a start code.
func HasStartCode(b []byte) bool { return startCodeLen(b) > 0 }

// Detect classifies the buffer. A start code at the head always wins.
// Length-prefixed variants are told apart by the signature bytes of
// the hvcC and avcC configuration records, so the buffer here is
// expected to be codec private data. Unknown is returned without an
// error when the buffer is long enough but matches nothing.
func Detect(b []byte) (Format, error) {
	if b == nil {
		return Unknown, ErrNilArgument
	}
	if HasStartCode(b) {
		return StartCode, nil
	}
	if len(b) < hvccHeaderSize {
		return Unknown, fmt.Errorf("%w: %v bytes is too short", ErrFormat, len(b))
	}
	if isHvcc(b) {
		return LengthPrefixedHEVC, nil
	}
	if isAvcc(b) {
		return LengthPrefixed, nil
	}
	return Unknown, nil
}

// isHvcc checks the reserved all-ones bits of the fixed
// HEVCDecoderConfigurationRecord header.
func isHvcc(b []byte) bool {
	return b[0] == 1 &&
		b[13]&0xF0 == 0xF0 &&
		b[15]&0xFC == 0xFC &&
		b[16]&0xFC == 0xFC &&
		b[17]&0xF8 == 0xF8 &&
		b[18]&0xF8 == 0xF8
}

// isAvcc checks the reserved bits around lengthSizeMinusOne and
// numOfSequenceParameterSets of the AVCDecoderConfigurationRecord.
func isAvcc(b []byte) bool {
	return b[0] == 1 && b[4]&0xFC == 0xFC && b[5]&0xE0 == 0xE0
}
