// Package mux lets every peer connection of a process share one ICE UDP
// port. WithUDPMux is nil on platforms without UDP sockets.
package mux

import (
	"github.com/pion/ice/v2"
	"github.com/pion/webrtc/v3"
)

var WithUDPMux func(engine *webrtc.SettingEngine, port uint16) (ice.UDPMux, error)
