//go:build !(js || wasip1)

package mux

import (
	"fmt"

	"github.com/pion/ice/v2"
	"github.com/pion/webrtc/v3"
)

func init() {
	WithUDPMux = withMultiUDPMux
}

// withMultiUDPMux listens on port on every local address, loopback
// included, and routes the host candidates of engine through it.
func withMultiUDPMux(engine *webrtc.SettingEngine, port uint16) (ice.UDPMux, error) {
	udpMux, err := ice.NewMultiUDPMuxFromPort(int(port), ice.UDPMuxFromPortWithLoopback())
	if err != nil {
		return nil, fmt.Errorf("mux: listen on udp port %d: %w", port, err)
	}
	engine.SetICEUDPMux(udpMux)
	return udpMux, nil
}
