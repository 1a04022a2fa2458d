package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/donovanhide/eventsource"
	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
)

// EventSourceDialer opens a server-sent events stream for the downstream
// direction and posts upstream messages to the same endpoint. The
// endpoint's userinfo, if any, is sent as basic auth on every request.
type EventSourceDialer struct {
	endpoint *url.URL
	client   *http.Client
	headers  http.Header
}

var _ Dialer = (*EventSourceDialer)(nil)

func NewEventSourceDialer(endpoint string, headers http.Header) (d *EventSourceDialer, err error) {
	defer err2.Handle(&err)
	u := try.To1(url.Parse(endpoint))
	if headers == nil {
		headers = make(http.Header)
	}
	return &EventSourceDialer{
		endpoint: u,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		headers: headers,
	}, nil
}

func (d *EventSourceDialer) newReq(ctx context.Context, method string, body io.Reader) (req *http.Request, err error) {
	if req, err = http.NewRequestWithContext(ctx, method, d.endpoint.String(), body); err != nil {
		return
	}
	for k, vv := range d.headers {
		for _, v := range vv {
			req.Header.Add(k, v)
		}
	}
	if u := d.endpoint.User; u != nil {
		pass, _ := u.Password()
		req.SetBasicAuth(u.Username(), pass)
	}
	return
}

func (d *EventSourceDialer) doReq(req *http.Request) (err error) {
	res, err := d.client.Do(req)
	if err != nil {
		return
	}
	defer res.Body.Close()
	if strings.HasPrefix(res.Status, "2") {
		return
	}
	var errText []byte
	if errText, err = io.ReadAll(res.Body); err != nil {
		return
	}
	return fmt.Errorf("server err. status: %s. content: %s", res.Status, errText)
}

func (d *EventSourceDialer) Dial(ctx context.Context) (conn Conn, err error) {
	defer err2.Handle(&err)
	// the stream outlives the dial context
	streamCtx, cancel := context.WithCancel(context.Background())
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	req := try.To1(d.newReq(streamCtx, http.MethodGet, http.NoBody))
	stream, err := eventsource.SubscribeWith("", &http.Client{}, req)
	if err != nil {
		cancel()
		return nil, err
	}
	return &eventSourceConn{
		dialer: d,
		stream: stream,
		cancel: cancel,
	}, nil
}

type eventSourceConn struct {
	dialer *EventSourceDialer
	stream *eventsource.Stream
	cancel context.CancelFunc

	closeL sync.Once
}

func (c *eventSourceConn) Listen(h NativeHandler) {
	for {
		select {
		case ev, ok := <-c.stream.Events:
			if !ok {
				return
			}
			h.HandleMessage(TextMessage, []byte(ev.Data()))
		case err, ok := <-c.stream.Errors:
			if !ok {
				return
			}
			if errors.Is(err, io.EOF) {
				h.HandleClose(StatusNormalClosure.Code(), "")
				return
			}
			h.HandleFailure(err)
			return
		}
	}
}

func (c *eventSourceConn) Send(msg Message) (err error) {
	defer err2.Handle(&err)
	req := try.To1(c.dialer.newReq(context.Background(), http.MethodPost, bytes.NewReader(msg.Data)))
	if msg.Type == BinaryMessage {
		req.Header.Set("Content-Type", "application/octet-stream")
	} else {
		req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	}
	try.To(c.dialer.doReq(req))
	return
}

func (c *eventSourceConn) Ping([]byte) error { return ErrUnsupported }

func (c *eventSourceConn) Close(StatusCode, string) error {
	c.closeL.Do(func() {
		// mark the stream closed before its reader sees the cancellation
		c.stream.Close()
		c.cancel()
	})
	return nil
}
