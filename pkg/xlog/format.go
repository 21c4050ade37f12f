package xlog

import "fmt"

// WAL page magic numbers bounding the supported releases.
const (
	// MagicPG95 is the first release with the current record layout.
	MagicPG95 uint16 = 0xD087
	MagicPG10 uint16 = 0xD097
	MagicPG14 uint16 = 0xD10D
	// MagicPG15 moved the image compression bits and added LZ4 and zstd.
	MagicPG15 uint16 = 0xD110
	MagicPG16 uint16 = 0xD113
	MagicPG17 uint16 = 0xD116
)

// bimg_info bits shared by every release.
const BkpImageHasHole = 0x01

// Format captures the release-dependent parts of the record layout.
type Format struct {
	Magic uint16

	apply        uint8
	compressPGLZ uint8
	compressLZ4  uint8
	compressZstd uint8
}

// FormatForMagic returns the record format for a WAL page magic number.
func FormatForMagic(magic uint16) (Format, error) {
	switch {
	case magic < MagicPG95:
		return Format{}, fmt.Errorf("unsupported WAL page magic %04X", magic)
	case magic < MagicPG15:
		return Format{Magic: magic, compressPGLZ: 0x02, apply: 0x04}, nil
	default:
		return Format{Magic: magic, apply: 0x02, compressPGLZ: 0x04, compressLZ4: 0x08, compressZstd: 0x10}, nil
	}
}

func (f Format) compressMask() uint8 {
	return f.compressPGLZ | f.compressLZ4 | f.compressZstd
}

// compression maps bimg_info to a method. ok is false for an
// invalid combination of bits.
func (f Format) compression(info uint8) (Compression, bool) {
	switch info & f.compressMask() {
	case 0:
		return CompressionNone, true
	case f.compressPGLZ:
		return CompressionPGLZ, true
	}
	if f.compressLZ4 != 0 && info&f.compressMask() == f.compressLZ4 {
		return CompressionLZ4, true
	}
	if f.compressZstd != 0 && info&f.compressMask() == f.compressZstd {
		return CompressionZstd, true
	}
	return CompressionNone, false
}

// ImageInfo encodes bimg_info for an image with the given properties.
// It fails for a method the release cannot write.
func (f Format) ImageInfo(hasHole bool, c Compression, apply bool) (uint8, error) {
	var info uint8
	if hasHole {
		info |= BkpImageHasHole
	}
	if apply {
		info |= f.apply
	}
	switch c {
	case CompressionNone:
	case CompressionPGLZ:
		info |= f.compressPGLZ
	case CompressionLZ4:
		if f.compressLZ4 == 0 {
			return 0, fmt.Errorf("%s images are not supported by WAL magic %04X", c, f.Magic)
		}
		info |= f.compressLZ4
	case CompressionZstd:
		if f.compressZstd == 0 {
			return 0, fmt.Errorf("%s images are not supported by WAL magic %04X", c, f.Magic)
		}
		info |= f.compressZstd
	default:
		return 0, fmt.Errorf("unknown compression %s", c)
	}
	return info, nil
}
