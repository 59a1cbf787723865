package nal

import (
	"bytes"
	"errors"
	"testing"
)

func lengthPrefixed(size int, units ...[]byte) []byte {
	var b []byte
	for _, u := range units {
		n := len(u)
		for i := size - 1; i >= 0; i-- {
			b = append(b, byte(n>>(8*i)))
		}
		b = append(b, u...)
	}
	return b
}

func unit(header byte, size int) []byte {
	u := make([]byte, size)
	u[0] = header
	for i := 1; i < size; i++ {
		u[i] = byte(i)
	}
	return u
}

func startCoded(units ...[]byte) []byte {
	var b []byte
	for _, u := range units {
		b = append(b, startCode...)
		b = append(b, u...)
	}
	return b
}

func TestAdaptFrameUnits(t *testing.T) {
	units := [][]byte{unit(0x41, 10), unit(0x41, 4), unit(0x41, 200)}
	a := NewAdapter(H264)

	out, err := a.AdaptFrame(lengthPrefixed(4, units...), false)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) != 3*4+10+4+200 {
		t.Errorf("wrong output size %v", len(out))
	}
	pos := 0
	for i, u := range units {
		if !bytes.Equal(out[pos:pos+4], startCode) {
			t.Errorf("no start code before unit %v", i)
		}
		pos += 4
		if !bytes.Equal(out[pos:pos+len(u)], u) {
			t.Errorf("unit %v payload is not the same", i)
		}
		pos += len(u)
	}
}

func TestAdaptFrameTruncated(t *testing.T) {
	tests := []struct {
		name  string
		frame []byte
	}{
		{name: "overrun", frame: append([]byte{0, 0, 0, 100}, unit(0x41, 10)...)},
		{name: "short length", frame: append(lengthPrefixed(4, unit(0x41, 5)), 0, 0)},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := NewAdapter(H264).AdaptFrame(test.frame, false)
			if !errors.Is(err, ErrTruncated) || !errors.Is(err, ErrFormat) {
				t.Errorf("expected truncated format error, got %v", err)
			}
		})
	}
}

func TestAdaptFrameKeyFrameCpd(t *testing.T) {
	idr, sei, aud, slice := unit(0x65, 20), unit(0x06, 5), unit(0x09, 2), unit(0x41, 8)
	sps, pps := testSps, testPps

	tests := []struct {
		name    string
		key     bool
		units   [][]byte
		prepend bool
	}{
		{name: "idr", key: true, units: [][]byte{idr}, prepend: true},
		{name: "delimiter and sei before idr", key: true, units: [][]byte{aud, sei, idr}, prepend: true},
		{name: "parameter sets present", key: true, units: [][]byte{sps, pps, idr}},
		{name: "not a key frame", units: [][]byte{idr}},
		{name: "key without idr", key: true, units: [][]byte{slice}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			a := NewAdapter(H264)
			if err := a.SetCodecPrivateData(avcc(4, sps, pps)); err != nil {
				t.Fatal(err)
			}
			out, err := a.AdaptFrame(lengthPrefixed(4, test.units...), test.key)
			if err != nil {
				t.Fatal(err)
			}
			want := startCoded(test.units...)
			if test.prepend {
				want = append(startCoded(sps, pps), want...)
			}
			if !bytes.Equal(out, want) {
				t.Errorf("unexpected output\n%x\n%x", out, want)
			}
		})
	}
}

func TestAdaptFrameHevc(t *testing.T) {
	a := NewAdapter(H264)
	if err := a.SetCodecPrivateData(hvcc(testVps, testHSps, testHPps)); err != nil {
		t.Fatal(err)
	}
	if a.Codec() != H265 {
		t.Fatalf("codec %v is not h265", a.Codec())
	}
	// IDR_W_RADL
	idr := unit(19<<1, 30)
	out, err := a.AdaptFrame(lengthPrefixed(4, idr), true)
	if err != nil {
		t.Fatal(err)
	}
	want := append(startCoded(testVps, testHSps, testHPps), startCoded(idr)...)
	if !bytes.Equal(out, want) {
		t.Errorf("unexpected output\n%x\n%x", out, want)
	}
}

func TestAdaptFramePassThrough(t *testing.T) {
	frame := startCoded(unit(0x65, 12))
	a := NewAdapter(H264)
	out, err := a.AdaptFrame(frame, true)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, frame) {
		t.Errorf("start-code frame was changed")
	}
	// delta frames keep the cached format until the next key frame
	out, err = a.AdaptFrame(startCoded(unit(0x41, 3)), false)
	if err != nil || !HasStartCode(out) {
		t.Errorf("unexpected delta frame %x, %v", out, err)
	}
}

func TestAdaptFrameStartCodeLookalike(t *testing.T) {
	a := NewAdapter(H264)
	if err := a.SetCodecPrivateData(avcc(4, testSps, testPps)); err != nil {
		t.Fatal(err)
	}
	// 300 bytes length field reads as 00 00 01 2c
	u := unit(0x65, 300)
	out, err := a.AdaptFrame(lengthPrefixed(4, u), true)
	if err != nil {
		t.Fatal(err)
	}
	want := append(startCoded(testSps, testPps), startCoded(u)...)
	if !bytes.Equal(out, want) {
		t.Errorf("the frame was not adapted")
	}
}

func TestAdaptFrameLengthSize(t *testing.T) {
	a := NewAdapter(H264)
	if err := a.SetCodecPrivateData(avcc(2, testSps, testPps)); err != nil {
		t.Fatal(err)
	}
	u := unit(0x41, 30)
	out, err := a.AdaptFrame(lengthPrefixed(2, u), false)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, startCoded(u)) {
		t.Errorf("unexpected output %x", out)
	}
}

func TestAdaptFrameBufferGrowsOnly(t *testing.T) {
	a := NewAdapter(H264)
	big, err := a.AdaptFrame(lengthPrefixed(4, unit(0x41, 4096)), false)
	if err != nil {
		t.Fatal(err)
	}
	bigCap := cap(big)
	small, err := a.AdaptFrame(lengthPrefixed(4, unit(0x41, 16)), false)
	if err != nil {
		t.Fatal(err)
	}
	if cap(small) < bigCap {
		t.Errorf("buffer has shrunk %v -> %v", bigCap, cap(small))
	}
	if len(small) != 4+16 {
		t.Errorf("wrong output size %v", len(small))
	}
}

func TestCodecPrivateData(t *testing.T) {
	tests := []struct {
		name string
		cpd  []byte
		want []byte
		err  error
	}{
		{name: "avcC", cpd: avcc(4, testSps, testPps), want: startCoded(testSps, testPps)},
		{name: "hvcC", cpd: hvcc(testVps, testHSps, testHPps), want: startCoded(testVps, testHSps, testHPps)},
		{name: "start code", cpd: startCoded(testSps, testPps), want: startCoded(testSps, testPps)},
		{name: "truncated avcC", cpd: avcc(4, testSps, testPps)[:25], err: ErrTruncated},
		{name: "bad length size", cpd: avcc(3, testSps, testPps), err: ErrFormat},
		{name: "unknown", cpd: make([]byte, 30), err: ErrFormat},
		{name: "nil", err: ErrNilArgument},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			a := NewAdapter(H264)
			err := a.SetCodecPrivateData(test.cpd)
			if !errors.Is(err, test.err) {
				t.Fatalf("unexpected error %v, want %v", err, test.err)
			}
			if !bytes.Equal(a.CodecPrivateData(), test.want) {
				t.Errorf("unexpected cpd\n%x\n%x", a.CodecPrivateData(), test.want)
			}
		})
	}
}

func TestCodecPrivateDataKeptOnError(t *testing.T) {
	a := NewAdapter(H264)
	if err := a.SetCodecPrivateData(avcc(4, testSps, testPps)); err != nil {
		t.Fatal(err)
	}
	if err := a.SetCodecPrivateData([]byte{1, 2}); err == nil {
		t.Fatal("expected a format error")
	}
	if !bytes.Equal(a.CodecPrivateData(), startCoded(testSps, testPps)) {
		t.Errorf("the previous cpd was lost")
	}
}

func BenchmarkAdaptFrame(b *testing.B) {
	frame := lengthPrefixed(4, unit(0x65, 30000), unit(0x41, 2000))
	a := NewAdapter(H264)
	_ = a.SetCodecPrivateData(avcc(4, testSps, testPps))
	b.SetBytes(int64(len(frame)))
	for i := 0; i < b.N; i++ {
		_, _ = a.AdaptFrame(frame, i%30 == 0)
	}
}

func TestAdaptFrameStartCodeLookalikeWithoutCpd(t *testing.T) {
	a := NewAdapter(H264)
	for _, size := range []int{1, 256, 300, 511} {
		u := unit(0x65, size)
		out, err := a.AdaptFrame(lengthPrefixed(4, u), true)
		if err != nil {
			t.Fatalf("%v bytes: %v", size, err)
		}
		if !bytes.Equal(out, startCoded(u)) {
			t.Errorf("%v bytes unit was not adapted", size)
		}
	}
}
