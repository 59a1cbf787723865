package nal

import (
	"bytes"
	"fmt"
)

const defaultLengthSize = 4

// Adapter rewrites length-prefixed frames into start-code form.
// The adapter owns its output buffer: a slice returned by AdaptFrame
// stays valid only until the next call. Not safe for concurrent use.
type Adapter struct {
	codec      Codec
	lengthSize int

	rawCpd    []byte
	cpdFormat Format
	// start-code form of the codec private data, prepended to IDR frames
	cpd []byte

	// cached frame format, refreshed on every key frame
	frameFormat Format

	buf []byte
}

func NewAdapter(codec Codec) *Adapter {
	return &Adapter{codec: codec, lengthSize: defaultLengthSize}
}

func (a *Adapter) Codec() Codec { return a.codec }

// CodecPrivateData returns the cached start-code form of the CPD.
func (a *Adapter) CodecPrivateData() []byte { return a.cpd }

// SetCodecPrivateData detects and converts the CPD once per blob.
// On error the previous CPD is kept.
func (a *Adapter) SetCodecPrivateData(cpd []byte) error {
	if cpd == nil {
		return ErrNilArgument
	}
	if a.rawCpd != nil && bytes.Equal(a.rawCpd, cpd) {
		return nil
	}
	format, err := Detect(cpd)
	if err != nil {
		return err
	}
	var (
		out        []byte
		lengthSize = a.lengthSize
		codec      = a.codec
	)
	switch format {
	case StartCode:
		out = append([]byte(nil), cpd...)
	case LengthPrefixed:
		out, lengthSize, err = avccToStartCode(cpd)
		codec = H264
	case LengthPrefixedHEVC:
		out, lengthSize, err = hvccToStartCode(cpd)
		codec = H265
	default:
		err = fmt.Errorf("%w: unknown codec private data", ErrFormat)
	}
	if err != nil {
		return err
	}
	a.rawCpd = append(a.rawCpd[:0], cpd...)
	a.cpd, a.cpdFormat, a.lengthSize, a.codec = out, format, lengthSize, codec
	return nil
}

// AdaptFrame converts a frame into start-code form.
// Frames that already start with a start code are returned as is.
// A key frame that starts with an IDR unit without parameter
// sets gets the cached CPD in front of it.
func (a *Adapter) AdaptFrame(frame []byte, key bool) ([]byte, error) {
	if frame == nil {
		return nil, ErrNilArgument
	}
	if key || a.frameFormat == Unknown {
		a.frameFormat = a.detectFrame(frame)
	}
	if a.frameFormat == StartCode {
		return frame, nil
	}

	a.buf = a.buf[:0]
	if key && len(a.cpd) > 0 && a.needsCpd(frame) {
		a.buf = append(a.buf, a.cpd...)
	}
	ls := a.lengthSize
	for pos := 0; pos < len(frame); {
		if pos+ls > len(frame) {
			return nil, fmt.Errorf("%w: length field at %v", ErrTruncated, pos)
		}
		n := readLength(frame[pos:], ls)
		pos += ls
		if n > len(frame)-pos {
			return nil, fmt.Errorf("%w: unit of %v bytes at %v overruns %v", ErrTruncated, n, pos, len(frame))
		}
		if n == 0 {
			continue
		}
		a.buf = append(a.buf, startCode...)
		a.buf = append(a.buf, frame[pos:pos+n]...)
		pos += n
	}
	return a.buf, nil
}

// detectFrame looks at the head of a frame. Length fields of 1 or
// 256..511 bytes look like start codes, so unless the CPD says the stream
// is in start-code form a frame that parses as length-prefixed stays such.
func (a *Adapter) detectFrame(frame []byte) Format {
	if !HasStartCode(frame) {
		return LengthPrefixed
	}
	if a.cpdFormat != StartCode && fitsLengthPrefixed(frame, a.lengthSize) {
		return LengthPrefixed
	}
	return StartCode
}

func fitsLengthPrefixed(frame []byte, ls int) bool {
	pos := 0
	for pos+ls <= len(frame) {
		n := readLength(frame[pos:], ls)
		pos += ls
		if n > len(frame)-pos {
			return false
		}
		pos += n
	}
	return pos == len(frame)
}

// needsCpd walks the leading unit headers of a length-prefixed frame.
func (a *Adapter) needsCpd(frame []byte) bool {
	ls := a.lengthSize
	for pos := 0; pos+ls < len(frame); {
		n := readLength(frame[pos:], ls)
		pos += ls
		if n == 0 {
			continue
		}
		if n > len(frame)-pos {
			return false
		}
		switch classify(a.codec, frame[pos]) {
		case classSkip:
			pos += n
			continue
		case classIDR:
			return true
		default:
			return false
		}
	}
	return false
}

func readLength(b []byte, size int) int {
	n := 0
	for i := 0; i < size; i++ {
		n = n<<8 | int(b[i])
	}
	return n
}

func checkLengthSize(size int) error {
	if size == 1 || size == 2 || size == 4 {
		return nil
	}
	return fmt.Errorf("%w: unsupported NAL length size %v", ErrFormat, size)
}

// avccToStartCode extracts SPS and PPS units from an avcC record.
func avccToStartCode(b []byte) (out []byte, lengthSize int, err error) {
	lengthSize = int(b[4]&0x03) + 1
	if err = checkLengthSize(lengthSize); err != nil {
		return
	}
	pos := avccHeaderSize - 1
	sps := int(b[pos] & 0x1F)
	pos++
	if out, pos, err = appendParamSets(out, b, pos, sps); err != nil {
		return
	}
	if pos >= len(b) {
		return nil, 0, fmt.Errorf("%w: no PPS count", ErrTruncated)
	}
	pps := int(b[pos])
	pos++
	if out, _, err = appendParamSets(out, b, pos, pps); err != nil {
		return
	}
	if sps == 0 || pps == 0 {
		return nil, 0, fmt.Errorf("%w: avcC with %v SPS and %v PPS", ErrFormat, sps, pps)
	}
	return
}

// hvccToStartCode extracts all parameter set arrays of an hvcC record.
func hvccToStartCode(b []byte) (out []byte, lengthSize int, err error) {
	lengthSize = int(b[21]&0x03) + 1
	if err = checkLengthSize(lengthSize); err != nil {
		return
	}
	arrays := int(b[hvccHeaderSize-1])
	pos := hvccHeaderSize
	for i := 0; i < arrays; i++ {
		if pos+3 > len(b) {
			return nil, 0, fmt.Errorf("%w: array %v header", ErrTruncated, i)
		}
		count := int(b[pos+1])<<8 | int(b[pos+2])
		pos += 3
		if out, pos, err = appendParamSets(out, b, pos, count); err != nil {
			return
		}
	}
	if len(out) == 0 {
		return nil, 0, fmt.Errorf("%w: hvcC without parameter sets", ErrFormat)
	}
	return
}

// appendParamSets copies n units with 2-byte big-endian
// lengths into out, each behind a 4-byte start code.
func appendParamSets(out, b []byte, pos, n int) ([]byte, int, error) {
	for i := 0; i < n; i++ {
		if pos+2 > len(b) {
			return nil, 0, fmt.Errorf("%w: parameter set %v length", ErrTruncated, i)
		}
		size := int(b[pos])<<8 | int(b[pos+1])
		pos += 2
		if pos+size > len(b) {
			return nil, 0, fmt.Errorf("%w: parameter set %v of %v bytes", ErrTruncated, i, size)
		}
		out = append(out, startCode...)
		out = append(out, b[pos:pos+size]...)
		pos += size
	}
	return out, pos, nil
}
