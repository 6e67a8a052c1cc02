// ABOUTME: Decodes the base64 data-URI QR payloads clients emit.
// ABOUTME: Yields raw image bytes ready to serve as image/png.

package session

import (
	"encoding/base64"
	"fmt"
	"regexp"
)

var dataURIPattern = regexp.MustCompile(`^data:([^;,]+);base64,(.+)$`)

// decodeDataURI extracts and decodes the base64 image body of a data URI
// such as "data:image/png;base64,...".
func decodeDataURI(uri string) ([]byte, error) {
	m := dataURIPattern.FindStringSubmatch(uri)
	if m == nil {
		return nil, fmt.Errorf("not a base64 data URI")
	}
	img, err := base64.StdEncoding.DecodeString(m[2])
	if err != nil {
		return nil, fmt.Errorf("decoding base64 body: %w", err)
	}
	return img, nil
}
