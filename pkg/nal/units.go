package nal

// Codec selects the NAL header layout.
type Codec int

const (
	H264 Codec = iota
	H265
)

func (c Codec) String() string {
	if c == H265 {
		return "h265"
	}
	return "h264"
}

// unit classes needed by the key frame check
type unitClass int

const (
	classOther unitClass = iota
	classSkip            // delimiters and SEI
	classParamSet
	classIDR
)

func classify(codec Codec, header byte) unitClass {
	if codec == H265 {
		switch t := (header >> 1) & 0x3F; {
		case t == 35 || t == 39 || t == 40:
			return classSkip
		case t >= 32 && t <= 34:
			return classParamSet
		case t >= 16 && t <= 21:
			return classIDR
		}
		return classOther
	}
	switch header & 0x1F {
	case 6, 9:
		return classSkip
	case 7, 8:
		return classParamSet
	case 5:
		return classIDR
	}
	return classOther
}

// IsKeyFrame tells whether the first coded unit of a start-code frame
// is an IDR, delimiters, SEI and parameter sets are skipped.
func IsKeyFrame(codec Codec, frame []byte) bool {
	for _, h := range unitHeaders(frame, 8) {
		switch classify(codec, h) {
		case classIDR:
			return true
		case classOther:
			return false
		}
	}
	return false
}

// unitHeaders returns the header bytes of up to limit start-code units.
func unitHeaders(b []byte, limit int) (headers []byte) {
	for i := 0; i+3 < len(b) && len(headers) < limit; i++ {
		if b[i] == 0 && b[i+1] == 0 && b[i+2] == 1 {
			headers = append(headers, b[i+3])
			i += 3
		}
	}
	return
}
