package assets

import (
	"bytes"
	"testing"
)

func TestDecodeDataURI(t *testing.T) {
	tests := []struct {
		name     string
		uri      string
		wantMIME string
		wantData string
		wantErr  bool
	}{
		{
			name:     "png",
			uri:      "data:image/png;base64,cG5nLWJ5dGVz",
			wantMIME: "image/png",
			wantData: "png-bytes",
		},
		{
			name:     "missing mime defaults",
			uri:      "data:;base64,eA==",
			wantMIME: "application/octet-stream",
			wantData: "x",
		},
		{
			name:    "not a data uri",
			uri:     "https://example.com/a.png",
			wantErr: true,
		},
		{
			name:    "no comma",
			uri:     "data:image/png;base64",
			wantErr: true,
		},
		{
			name:    "not base64 encoded",
			uri:     "data:text/plain,hello",
			wantErr: true,
		},
		{
			name:    "invalid payload",
			uri:     "data:image/png;base64,!!!",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mime, data, err := DecodeDataURI(tt.uri)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got mime=%q", mime)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeDataURI: %v", err)
			}
			if mime != tt.wantMIME {
				t.Fatalf("mime = %q, want %q", mime, tt.wantMIME)
			}
			if string(data) != tt.wantData {
				t.Fatalf("data = %q, want %q", data, tt.wantData)
			}
		})
	}
}

func TestDataURIRoundTrip(t *testing.T) {
	payload := []byte{0x00, 0x01, 0xfe, 0xff, 'a', 'b'}
	uri := EncodeDataURI("image/webp", payload)
	mime, data, err := DecodeDataURI(uri)
	if err != nil {
		t.Fatalf("DecodeDataURI: %v", err)
	}
	if mime != "image/webp" {
		t.Fatalf("mime = %q", mime)
	}
	if !bytes.Equal(data, payload) {
		t.Fatal("payload mismatch after round trip")
	}
}
