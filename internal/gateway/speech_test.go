package gateway

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func writeWav(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "voice.wav")
	if err := os.WriteFile(p, []byte("RIFF....WAVEfmt "), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func speechServer(t *testing.T, status int, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != speechRecognitionPath {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("language") != "en-US" {
			t.Errorf("unexpected language %q", r.URL.Query().Get("language"))
		}
		if r.URL.Query().Get("format") != "simple" {
			t.Errorf("unexpected format %q", r.URL.Query().Get("format"))
		}
		if ct := r.Header.Get("Content-Type"); ct != "audio/wav; codecs=audio/pcm; samplerate=16000" {
			t.Errorf("unexpected content type %q", ct)
		}
		if r.Header.Get("Ocp-Apim-Subscription-Key") != "speech-key" {
			t.Errorf("missing subscription key")
		}
		data, _ := io.ReadAll(r.Body)
		if string(data) != "RIFF....WAVEfmt " {
			t.Errorf("audio not forwarded")
		}
		w.WriteHeader(status)
		io.WriteString(w, body)
	}))
}

func newTestSpeech(t *testing.T, srv *httptest.Server) *Speech {
	t.Helper()
	s, err := NewSpeech(SpeechConfig{
		Endpoint:   srv.URL,
		APIKey:     "speech-key",
		HTTPClient: srv.Client(),
		Logger:     testLogger(),
	})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSpeech_Success(t *testing.T) {
	srv := speechServer(t, http.StatusOK, `{"RecognitionStatus":"Success","DisplayText":"Show me a warrior pose.","Offset":100,"Duration":2000}`)
	defer srv.Close()

	tr, err := newTestSpeech(t, srv).Transcribe(context.Background(), writeWav(t))
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if !tr.Recognized {
		t.Error("expected recognized")
	}
	if tr.Text != "Show me a warrior pose." {
		t.Errorf("unexpected text %q", tr.Text)
	}
}

func TestSpeech_NoMatch(t *testing.T) {
	srv := speechServer(t, http.StatusOK, `{"RecognitionStatus":"NoMatch","Offset":0,"Duration":0}`)
	defer srv.Close()

	tr, err := newTestSpeech(t, srv).Transcribe(context.Background(), writeWav(t))
	if err != nil {
		t.Fatalf("NoMatch must not be an error: %v", err)
	}
	if tr.Recognized {
		t.Error("expected not recognized")
	}
}

func TestSpeech_SuccessBlankText(t *testing.T) {
	srv := speechServer(t, http.StatusOK, `{"RecognitionStatus":"Success","DisplayText":"  "}`)
	defer srv.Close()

	tr, err := newTestSpeech(t, srv).Transcribe(context.Background(), writeWav(t))
	if err != nil {
		t.Fatal(err)
	}
	if tr.Recognized {
		t.Error("blank transcript must not count as recognized")
	}
}

func TestSpeech_Unauthorized(t *testing.T) {
	srv := speechServer(t, http.StatusUnauthorized, `unauthorized`)
	defer srv.Close()

	_, err := newTestSpeech(t, srv).Transcribe(context.Background(), writeWav(t))
	se, ok := err.(*StatusError)
	if !ok {
		t.Fatalf("expected *StatusError, got %T %v", err, err)
	}
	if se.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", se.StatusCode)
	}
}

func TestSpeech_MissingFile(t *testing.T) {
	s, _ := NewSpeech(SpeechConfig{Region: "westeurope", APIKey: "k", Logger: testLogger()})
	if _, err := s.Transcribe(context.Background(), filepath.Join(t.TempDir(), "nope.wav")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestNewSpeech_RegionEndpoint(t *testing.T) {
	s, err := NewSpeech(SpeechConfig{Region: "westeurope", APIKey: "k"})
	if err != nil {
		t.Fatal(err)
	}
	if s.endpoint != "https://westeurope.stt.speech.microsoft.com" {
		t.Errorf("unexpected endpoint %s", s.endpoint)
	}
	if _, err := NewSpeech(SpeechConfig{APIKey: "k"}); err == nil {
		t.Error("expected error without region or endpoint")
	}
	if _, err := NewSpeech(SpeechConfig{Region: "westeurope"}); err == nil {
		t.Error("expected error without key")
	}
}
