package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/lainio/err2/try"
	"github.com/shynome/rtcsession"
	"github.com/shynome/rtcsession/peer"
	"github.com/shynome/rtcsession/signaling"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

func main() {
	file := pflag.StringP("config", "c", "", "yaml config file")
	url := pflag.String("url", "", "signaling url: ws(s):// or http(s)://")
	channel := pflag.String("channel", "", "channel id")
	role := pflag.String("role", string(signaling.RoleRecvonly), "sendonly, recvonly or sendrecv")
	timeout := pflag.Duration("timeout", rtcsession.DefaultTimeout, "connect timeout")
	icePort := pflag.Uint16("ice-port", 0, "share one udp port between ice agents, 0 disables")
	verbose := pflag.BoolP("verbose", "v", false, "verbose log")
	pflag.Parse()

	log := logrus.New()
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	var cfg config
	if *file != "" {
		cfg = try.To1(loadConfig(*file))
	}
	flags := pflag.CommandLine
	if flags.Changed("url") || cfg.URL == "" {
		cfg.URL = *url
	}
	if flags.Changed("channel") || cfg.ChannelID == "" {
		cfg.ChannelID = *channel
	}
	if flags.Changed("role") || cfg.Role == "" {
		cfg.Role = signaling.Role(*role)
	}
	if flags.Changed("timeout") || cfg.Timeout == 0 {
		cfg.Timeout = *timeout
	}
	if flags.Changed("ice-port") {
		cfg.ICEPort = *icePort
	}

	entry := log.WithField("channel", cfg.ChannelID)
	conn, err := rtcsession.New(cfg.Config, rtcsession.WithLogger(deviceLogger(entry)))
	if err != nil {
		log.Fatal(err)
	}
	entry = entry.WithField("connection", conn.ID())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	closed := make(chan error, 1)
	conn.SetHandlers(rtcsession.Handlers{
		OnConnect: func(err error) {
			if err == nil {
				entry.WithField("client_id", conn.ClientID()).Info("connected")
			}
		},
		OnDisconnect: func(err error) { closed <- err },
		OnAddStream: func(s *peer.Stream) {
			entry.WithField("stream", s.ID()).Info("stream added")
		},
		OnRemoveStream: func(s *peer.Stream) {
			entry.WithField("stream", s.ID()).Info("stream removed")
		},
		OnReceiveSignaling: func(msg signaling.Message) {
			if n, ok := msg.(*signaling.NotifyConnection); ok {
				f := logrus.Fields{"event": n.EventType}
				if total, ok := conn.ConnectionCount(); ok {
					f["connections"] = total
				}
				entry.WithFields(f).Info("channel changed")
			}
		},
	})

	task := conn.Connect(cfg.peerOptions(), cfg.Timeout, nil)
	select {
	case <-task.Done():
	case <-ctx.Done():
		task.Cancel()
		<-task.Done()
	}
	if err := task.Err(); err != nil {
		entry.WithError(err).Fatal("connect failed")
	}

	select {
	case err := <-closed:
		if err != nil {
			entry.WithError(err).Fatal("disconnected")
		}
		entry.Info("disconnected")
	case <-ctx.Done():
		conn.Disconnect(nil)
		entry.Info("bye")
	}
}
