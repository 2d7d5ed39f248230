package image

import "bytes"

// MIMEType returns the media type for f, defaulting to image/png.
func (f Format) MIMEType() string {
	switch f {
	case FormatJPG:
		return "image/jpeg"
	case FormatWEBP:
		return "image/webp"
	default:
		return "image/png"
	}
}

// Extension returns the file extension for f without the dot.
func (f Format) Extension() string {
	if f == "" {
		return string(FormatPNG)
	}
	return string(f)
}

var (
	pngMagic  = []byte{0x89, 0x50}
	jpegMagic = []byte{0xff, 0xd8}
)

// DetectMIMEType sniffs the leading bytes of data. When the signature is
// unknown the requested format decides.
func DetectMIMEType(data []byte, requested Format) string {
	switch {
	case bytes.HasPrefix(data, pngMagic):
		return "image/png"
	case bytes.HasPrefix(data, jpegMagic):
		return "image/jpeg"
	case len(data) >= 12 && bytes.Equal(data[:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")):
		return "image/webp"
	}
	return requested.MIMEType()
}

// FormatFromMIME maps a media type back to a Format.
func FormatFromMIME(mime string) Format {
	switch mime {
	case "image/jpeg", "image/jpg":
		return FormatJPG
	case "image/webp":
		return FormatWEBP
	default:
		return FormatPNG
	}
}
