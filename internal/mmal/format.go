package mmal

import "fmt"

// FourCC is a four character code identifying an encoding.
type FourCC uint32

// MakeFourCC packs four characters the way MMAL_FOURCC does.
func MakeFourCC(a, b, c, d byte) FourCC {
	return FourCC(uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24)
}

var (
	EncodingH264   = MakeFourCC('H', '2', '6', '4')
	EncodingOpaque = MakeFourCC('O', 'P', 'Q', 'V')
	EncodingI420   = MakeFourCC('I', '4', '2', '0')
)

func (f FourCC) String() string {
	if f == 0 {
		return "none"
	}
	b := []byte{byte(f), byte(f >> 8), byte(f >> 16), byte(f >> 24)}
	return string(b)
}

// Rect is a crop rectangle.
type Rect struct {
	X, Y          int32
	Width, Height int32
}

// Rational is a num/den pair.
type Rational struct {
	Num, Den int32
}

// VideoFormat holds the video specific part of an elementary stream format.
type VideoFormat struct {
	Width     uint32
	Height    uint32
	Crop      Rect
	FrameRate Rational
}

// Format describes what flows through a port.
type Format struct {
	Encoding        FourCC
	EncodingVariant FourCC
	Bitrate         uint32
	Video           VideoFormat
}

func (f Format) String() string {
	return fmt.Sprintf("%s/%s %dx%d@%d/%d %dbps",
		f.Encoding, f.EncodingVariant, f.Video.Width, f.Video.Height,
		f.Video.FrameRate.Num, f.Video.FrameRate.Den, f.Bitrate)
}
