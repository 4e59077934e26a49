// Package qr renders payment links as embeddable QR images for desktop
// checkouts.
package qr

import (
	"encoding/base64"

	qrcode "github.com/skip2/go-qrcode"
)

// Size is the edge length in pixels of the generated image.
const Size = 256

// DataURL encodes the given content as a PNG QR code (medium error
// correction, black on white) and returns it as a data URI.
//
// Rendering failure is deliberately non-fatal: callers get "" and must treat
// the missing image as a degraded outcome, not an error. Desktop users then
// have no visual fallback, which is a known gap.
func DataURL(content string) string {
	if content == "" {
		return ""
	}
	png, err := qrcode.Encode(content, qrcode.Medium, Size)
	if err != nil {
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}
