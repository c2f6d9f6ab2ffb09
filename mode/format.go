package mode

// FourCC packs a four character pixel format code the way drm_fourcc.h
// does.
func FourCC(a, b, c, d byte) uint32 {
	return uint32(a) | uint32(b)<<8 | uint32(c)<<16 | uint32(d)<<24
}

// Pixel format codes understood by the core.
var (
	FormatC8          = FourCC('C', '8', ' ', ' ')
	FormatRGB565      = FourCC('R', 'G', '1', '6')
	FormatBGR565      = FourCC('B', 'G', '1', '6')
	FormatXRGB1555    = FourCC('X', 'R', '1', '5')
	FormatARGB1555    = FourCC('A', 'R', '1', '5')
	FormatRGB888      = FourCC('R', 'G', '2', '4')
	FormatBGR888      = FourCC('B', 'G', '2', '4')
	FormatXRGB8888    = FourCC('X', 'R', '2', '4')
	FormatXRGB2101010 = FourCC('X', 'R', '3', '0')
	FormatXBGR8888    = FourCC('X', 'B', '2', '4')
	FormatARGB8888    = FourCC('A', 'R', '2', '4')
	FormatABGR8888    = FourCC('A', 'B', '2', '4')
)

// FormatInfo describes a pixel format; CPP is the cost in bytes per pixel.
type FormatInfo struct {
	CPP int
}

var formatTable = map[uint32]FormatInfo{}

func init() {
	for fourcc, cpp := range map[uint32]int{
		FormatC8:          1,
		FormatRGB565:      2,
		FormatBGR565:      2,
		FormatXRGB1555:    2,
		FormatARGB1555:    2,
		FormatRGB888:      3,
		FormatBGR888:      3,
		FormatXRGB8888:    4,
		FormatXRGB2101010: 4,
		FormatXBGR8888:    4,
		FormatARGB8888:    4,
		FormatABGR8888:    4,
	} {
		formatTable[fourcc] = FormatInfo{CPP: cpp}
	}
}

// GetFormatInfo looks up a fourcc code. The second result is false for
// formats the core does not know about.
func GetFormatInfo(fourcc uint32) (FormatInfo, bool) {
	info, ok := formatTable[fourcc]
	return info, ok
}

// ConvertLegacyFormat maps a legacy (bpp, depth) pair onto the fourcc the
// kernel would pick for it. It returns zero for unsupported pairs.
func ConvertLegacyFormat(bpp, depth uint32) uint32 {
	switch bpp {
	case 8:
		if depth == 8 {
			return FormatC8
		}
	case 16:
		switch depth {
		case 15:
			return FormatXRGB1555
		case 16:
			return FormatRGB565
		}
	case 24:
		if depth == 24 {
			return FormatRGB888
		}
	case 32:
		switch depth {
		case 24:
			return FormatXRGB8888
		case 30:
			return FormatXRGB2101010
		case 32:
			return FormatARGB8888
		}
	}
	return 0
}
