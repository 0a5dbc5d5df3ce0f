package fetch

import "bytes"

var (
	pdfMagic  = []byte("%PDF-")
	pngMagic  = []byte{0x89, 0x50, 0x4E, 0x47}
	jpegMagic = []byte{0xFF, 0xD8, 0xFF}
	tiffLE    = []byte{0x49, 0x49, 0x2A, 0x00}
	tiffBE    = []byte{0x4D, 0x4D, 0x00, 0x2A}
)

// SniffExtension inspects the leading magic numbers of data and returns the
// matching file extension, or "" when no supported format is recognized.
// It keeps PDF bytes from being written out with an image suffix when a
// source provides neither a usable path extension nor a content type.
func SniffExtension(data []byte) string {
	switch {
	case bytes.HasPrefix(data, pdfMagic):
		return ".pdf"
	case bytes.HasPrefix(data, pngMagic):
		return ".png"
	case bytes.HasPrefix(data, jpegMagic):
		return ".jpg"
	case bytes.HasPrefix(data, tiffLE), bytes.HasPrefix(data, tiffBE):
		return ".tiff"
	default:
		return ""
	}
}
