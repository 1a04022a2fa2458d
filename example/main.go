// Command example runs a signaling server and a client against it in one
// process and prints the remote stream the client receives.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/shynome/rtcsession"
	"github.com/shynome/rtcsession/peer"
	"github.com/shynome/rtcsession/signaling"
	"github.com/spf13/pflag"
	"golang.zx2c4.com/wireguard/device"
)

var errNotConnect = errors.New("first message must be connect")

var loglevel = device.LogLevelVerbose

func main() {
	listen := pflag.String("listen", "127.0.0.1:0", "signaling server address")
	pflag.Parse()

	l := try.To1(net.Listen("tcp", *listen))
	defer l.Close()
	stream := try.To1(run(context.Background(), l))
	fmt.Printf("example: received stream %s\n", stream)
}

// run serves signaling on l, connects a client to it and returns the id
// of the first stream the client receives.
func run(ctx context.Context, l net.Listener) (stream string, err error) {
	defer err2.Handle(&err)

	srv := &http.Server{Handler: &server{logger: device.NewLogger(loglevel, "server: ")}}
	go srv.Serve(l)
	defer srv.Close()

	conn := try.To1(rtcsession.New(rtcsession.Config{
		URL:       fmt.Sprintf("ws://%s/signaling", l.Addr()),
		ChannelID: "demo",
		Role:      signaling.RoleRecvonly,
	}, rtcsession.WithLogger(device.NewLogger(loglevel, "client: "))))
	defer conn.Disconnect(nil)

	added := make(chan *peer.Stream, 1)
	conn.SetHandlers(rtcsession.Handlers{
		OnAddStream: func(s *peer.Stream) {
			select {
			case added <- s:
			default:
			}
		},
	})

	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	try.To(conn.Connect(peer.Options{}, 10*time.Second, nil).Wait(ctx))

	select {
	case s := <-added:
		return s.ID(), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
