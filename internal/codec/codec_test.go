package codec

import (
	"bytes"
	"errors"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	payloads := [][]byte{
		nil,
		{0x00},
		{0x1a, 0x45, 0xdf, 0xa3, 0x00, 0xff, 0x7f},
		bytes.Repeat([]byte{0xab, 0xcd}, 4096),
	}
	for _, payload := range payloads {
		blob := Blob{MIMEType: "audio/webm", Data: payload}
		decoded, err := Decode(Encode(blob), blob.MIMEType)
		if err != nil {
			t.Fatalf("decode failed for %d bytes: %v", len(payload), err)
		}
		if decoded.MIMEType != "audio/webm" {
			t.Fatalf("expected mime type preserved, got %q", decoded.MIMEType)
		}
		if !bytes.Equal(decoded.Data, payload) {
			t.Fatalf("round trip not byte-identical for %d bytes", len(payload))
		}
	}
}

func TestDecodeInvalidBase64(t *testing.T) {
	_, err := Decode("not!!valid!!base64", "audio/webm")
	if err == nil {
		t.Fatal("expected error for invalid base64")
	}
	var decodeErr *DecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("expected DecodeError, got %T", err)
	}
}

func TestDecodeIndependence(t *testing.T) {
	good := Encode(Blob{MIMEType: "audio/ogg", Data: []byte("hello")})
	if _, err := Decode("%%%", "audio/ogg"); err == nil {
		t.Fatal("expected decode failure")
	}
	blob, err := Decode(good, "audio/ogg")
	if err != nil {
		t.Fatalf("good record should decode after a bad one: %v", err)
	}
	if string(blob.Data) != "hello" {
		t.Fatalf("unexpected payload: %q", blob.Data)
	}
}
