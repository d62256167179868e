package codec

import (
	"encoding/base64"
	"fmt"
)

// Blob is a finished audio payload tagged with its container MIME type.
type Blob struct {
	MIMEType string
	Data     []byte
}

// DecodeError reports a persisted payload that is no longer valid base64.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode audio payload: %v", e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// Encode renders the blob payload as standard base64 for persistence.
func Encode(b Blob) string {
	return base64.StdEncoding.EncodeToString(b.Data)
}

// Decode reconstructs a blob from its persisted text form, tagged with
// mimeType. Decode(Encode(b), b.MIMEType) yields a byte-identical blob.
func Decode(text, mimeType string) (Blob, error) {
	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return Blob{}, &DecodeError{Err: err}
	}
	return Blob{MIMEType: mimeType, Data: data}, nil
}
