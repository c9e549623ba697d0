package store

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	cerr "github.com/girjesh-suryawanshi/secureshare-sub000/errors"
)

// Clock returns the current time. Tests inject a fake one.
type Clock func() time.Time

const defaultCodeAttempts = 16

// decodePayload accepts standard base64 with or without a data URL prefix.
func decodePayload(data string) ([]byte, error) {
	if i := strings.Index(data, ";base64,"); i >= 0 && strings.HasPrefix(data, "data:") {
		data = data[i+len(";base64,"):]
	}
	out, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("%w: payload is not valid base64", cerr.ErrInvalidChunk)
	}
	return out, nil
}
