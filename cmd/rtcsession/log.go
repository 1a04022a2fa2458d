package main

import (
	"github.com/sirupsen/logrus"
	"golang.zx2c4.com/wireguard/device"
)

// deviceLogger routes library logs into logrus.
func deviceLogger(entry *logrus.Entry) *device.Logger {
	l := &device.Logger{
		Verbosef: device.DiscardLogf,
		Errorf:   entry.Errorf,
	}
	if entry.Logger.IsLevelEnabled(logrus.DebugLevel) {
		l.Verbosef = entry.Debugf
	}
	return l
}
