package assets

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Media content crosses the generation API boundary as self-describing data
// URIs (data:<mime>;base64,<payload>). These helpers convert between that
// form and raw bytes plus a MIME type.

var errInvalidDataURI = errors.New("assets: invalid data uri")

// DecodeDataURI splits a data URI into its MIME type and decoded payload.
func DecodeDataURI(uri string) (mimeType string, data []byte, err error) {
	const prefix = "data:"
	if !strings.HasPrefix(uri, prefix) {
		return "", nil, errInvalidDataURI
	}
	rest := uri[len(prefix):]
	comma := strings.IndexByte(rest, ',')
	if comma < 0 {
		return "", nil, errInvalidDataURI
	}
	header, payload := rest[:comma], rest[comma+1:]
	if !strings.HasSuffix(header, ";base64") {
		return "", nil, fmt.Errorf("%w: payload must be base64", errInvalidDataURI)
	}
	mimeType = strings.TrimSuffix(header, ";base64")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", errInvalidDataURI, err)
	}
	return mimeType, data, nil
}

// EncodeDataURI renders bytes back into the self-describing form.
func EncodeDataURI(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
