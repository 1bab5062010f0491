package stream

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPSink(t *testing.T) {
	w := httptest.NewRecorder()
	sink := NewHTTPSink(w, "s-1", "")

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
	for header, want := range map[string]string{
		"Content-Type":  DefaultContentType,
		"Cache-Control": "no-store",
		"X-Stream-ID":   "s-1",
	} {
		if got := w.Header().Get(header); got != want {
			t.Errorf("%s = %q, want %q", header, got, want)
		}
	}

	if err := sink.Write([]byte("Hel")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if !w.Flushed {
		t.Error("chunk was not flushed")
	}
	if err := sink.Write([]byte("lo")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if w.Body.String() != "Hello" {
		t.Errorf("body = %q, want Hello", w.Body.String())
	}

	_ = sink.Close()
	_ = sink.Close()
	if err := sink.Write([]byte("x")); !errors.Is(err, ErrSinkClosed) {
		t.Errorf("Write after Close = %v, want ErrSinkClosed", err)
	}
}

func TestHTTPSink_CustomContentType(t *testing.T) {
	w := httptest.NewRecorder()
	NewHTTPSink(w, "s-2", "text/plain; charset=utf-8")
	if got := w.Header().Get("Content-Type"); got != "text/plain; charset=utf-8" {
		t.Errorf("Content-Type = %q", got)
	}
}
