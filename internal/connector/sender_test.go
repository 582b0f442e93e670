package connector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/swctools/swctools/internal/protocol"
	"github.com/swctools/swctools/internal/testutil/fakeserver"
	"github.com/swctools/swctools/internal/testutil/testlog"
)

func TestHTTPSenderRoundTrip(t *testing.T) {
	testlog.Start(t)
	fake := fakeserver.New()
	var gotPath, gotUA, gotType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUA = r.Header.Get("User-Agent")
		gotType = r.Header.Get("Content-Type")
		fake.ServeHTTP(w, r)
	}))
	defer srv.Close()

	sender := NewHTTPSender(srv.URL+"/", "swctools/test", time.Second)
	payload, err := protocol.JSONCodec{}.Encode(protocol.NewMessage(protocol.GeneratePlayer()))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	raw, err := sender.Send(context.Background(), payload)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	resp, err := protocol.DecodeResponse[protocol.GeneratedPlayer](protocol.JSONCodec{}, raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	first, err := resp.First()
	if err != nil || first.Result.PlayerID != fakeserver.GeneratedPlayerID {
		t.Fatalf("unexpected result %+v err=%v", first, err)
	}
	if gotPath != "/batch/json" {
		t.Fatalf("path=%q", gotPath)
	}
	if gotUA != "swctools/test" || gotType != "application/json" {
		t.Fatalf("headers ua=%q type=%q", gotUA, gotType)
	}
}

func TestHTTPSenderNon200(t *testing.T) {
	testlog.Start(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewHTTPSender(srv.URL, "", time.Second).Send(context.Background(), []byte(`{}`))
	if err == nil || !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected 503 error, got %v", err)
	}
}

func TestHTTPSenderCancelled(t *testing.T) {
	testlog.Start(t)
	srv := httptest.NewServer(fakeserver.New())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewHTTPSender(srv.URL, "", time.Second).Send(ctx, []byte(`{}`)); err == nil {
		t.Fatalf("expected cancelled request to fail")
	}
}

func TestNormalizeBaseURL(t *testing.T) {
	testlog.Start(t)
	cases := map[string]string{
		"":                           "",
		"game.example.com":           "https://game.example.com",
		" http://localhost:8080/ ":   "http://localhost:8080",
		"https://game.example.com//": "https://game.example.com",
	}
	for in, want := range cases {
		if got := NormalizeBaseURL(in); got != want {
			t.Fatalf("NormalizeBaseURL(%q)=%q want=%q", in, got, want)
		}
	}
}
