package browser

import (
	"net/url"
	"testing"

	"github.com/gocolly/colly/v2"
)

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback) {
	s.onRequest = cb
}

func (s *stubHooks) OnResponse(cb colly.ResponseCallback) {
	s.onResponse = cb
}

func (s *stubHooks) OnError(cb colly.ErrorCallback) {
	s.onError = cb
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	return u
}
