package main

import (
	"os"
	"time"

	"github.com/lainio/err2"
	"github.com/lainio/err2/try"
	"github.com/pion/webrtc/v3"
	"github.com/shynome/rtcsession"
	"github.com/shynome/rtcsession/peer"
	"gopkg.in/yaml.v3"
)

type config struct {
	rtcsession.Config `yaml:",inline"`

	Timeout    time.Duration `yaml:"timeout"`
	ICEServers []string      `yaml:"ice_servers"`
	ICEPort    uint16        `yaml:"ice_port"`
}

func loadConfig(path string) (c config, err error) {
	defer err2.Handle(&err)
	f := try.To1(os.Open(path))
	defer f.Close()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	try.To(dec.Decode(&c))
	return
}

func (c config) peerOptions() peer.Options {
	opts := peer.Options{ICEPort: c.ICEPort}
	if len(c.ICEServers) > 0 {
		opts.ICEServers = []webrtc.ICEServer{{URLs: c.ICEServers}}
	}
	return opts
}
