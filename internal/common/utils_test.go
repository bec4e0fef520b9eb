package common

import (
	"bytes"
	"encoding/base64"
	"testing"
)

func TestDecodeBase64MaybeDataURL(t *testing.T) {
	raw := []byte{0xFF, 0xD8, 0xFF, 0xE0, 0x01, 0x02}
	b64 := base64.StdEncoding.EncodeToString(raw)

	got, mime, err := DecodeBase64MaybeDataURL("data:image/jpeg;base64," + b64)
	if err != nil {
		t.Fatalf("decode data URL: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Errorf("decoded bytes mismatch")
	}
	if mime != "image/jpeg" {
		t.Errorf("expected mime image/jpeg, got %q", mime)
	}

	got, mime, err = DecodeBase64MaybeDataURL(b64)
	if err != nil {
		t.Fatalf("decode bare base64: %v", err)
	}
	if !bytes.Equal(got, raw) {
		t.Errorf("decoded bytes mismatch")
	}
	if mime != "" {
		t.Errorf("expected empty mime hint, got %q", mime)
	}

	if _, _, err := DecodeBase64MaybeDataURL("!!not-base64!!"); err == nil {
		t.Errorf("expected error for invalid payload")
	}
}

func TestPickMIME(t *testing.T) {
	jpeg := []byte{0xFF, 0xD8, 0xFF, 0xE0}

	if got := PickMIME("image/png", "image/jpeg", jpeg); got != "image/png" {
		t.Errorf("explicit should win, got %q", got)
	}
	if got := PickMIME("", "image/webp", jpeg); got != "image/webp" {
		t.Errorf("hint should win over sniffing, got %q", got)
	}
	if got := PickMIME("", "", jpeg); got != "image/jpeg" {
		t.Errorf("sniffing should detect jpeg, got %q", got)
	}
	if got := PickMIME("", "", nil); got != "image/jpeg" {
		t.Errorf("empty payload should default to jpeg, got %q", got)
	}
}

func TestStripCodeFences(t *testing.T) {
	cases := map[string]string{
		"```json\n{\"a\":1}\n```": `{"a":1}`,
		"```\n{\"a\":1}\n```":     `{"a":1}`,
		`{"a":1}`:                 `{"a":1}`,
	}

	for in, want := range cases {
		if got := StripCodeFences(in); got != want {
			t.Errorf("StripCodeFences(%q) = %q, want %q", in, got, want)
		}
	}
}
