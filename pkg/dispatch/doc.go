// Package dispatch executes admitted broker requests.
//
// A Dispatcher runs a request either synchronously, waiting up to the
// effective timeout, or asynchronously, returning the request id at once and
// finishing the work in a detached goroutine. Every outcome is written to the
// request log through a requestlog.Recorder: sync requests produce a single
// terminal entry, async requests a pending entry that is later completed.
//
// Handlers are looked up by service name in a Registry:
//
//	reg := dispatch.NewRegistry()
//	reg.Register("echo", dispatch.EchoHandler{})
//	h, _ := dispatch.NewHTTPHandler(dispatch.HTTPHandlerConfig{URL: "http://billing:8080/invoke"})
//	reg.Register("billing", h)
//
//	d := dispatch.New(reg, recorder, nil, prometheus.DefaultRegisterer)
//	res, err := d.Dispatch(ctx, &dispatch.Request{Service: "billing", Payload: body})
//
// A sync timeout cancels the handler context but cannot stop a handler that
// ignores it. Its late result is dropped.
package dispatch
