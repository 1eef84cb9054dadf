package observability

import (
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// defaultProviderTimeout bounds a single outbound provider call (the
// embedding and chat providers). It is deliberately generous: large-context
// chat completions and batch embedding calls are the slowest suspension
// points in the system and get generous stage deadlines upstream, but the
// HTTP round trip itself should not hang forever if a provider never
// responds.
const defaultProviderTimeout = 2 * time.Minute

// NewHTTPClient returns an http.Client instrumented with otelhttp transport,
// for the outbound embedding/chat provider calls cmd/noemad wires at
// startup. A caller-supplied base client's own Timeout, if set, is left
// untouched; otherwise defaultProviderTimeout applies.
func NewHTTPClient(base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	if base.Timeout == 0 {
		base.Timeout = defaultProviderTimeout
	}
	rt := base.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	base.Transport = otelhttp.NewTransport(rt)
	return base
}

// headerInjectingTransport sets a fixed set of headers on every outgoing
// request before delegating to next, without overwriting a header the
// request already carries.
type headerInjectingTransport struct {
	next    http.RoundTripper
	headers map[string]string
}

func (t *headerInjectingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range t.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return t.next.RoundTrip(req)
}

// WithHeaders returns a shallow copy of base whose transport injects headers
// into every outgoing request, e.g. a static `X-API-Key` for an embedding or
// chat provider binding that authenticates via a request header rather than
// an SDK-native auth option.
func WithHeaders(base *http.Client, headers map[string]string) *http.Client {
	out := *base
	rt := out.Transport
	if rt == nil {
		rt = http.DefaultTransport
	}
	out.Transport = &headerInjectingTransport{next: rt, headers: headers}
	return &out
}
