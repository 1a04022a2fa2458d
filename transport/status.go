package transport

import (
	"fmt"

	"github.com/gorilla/websocket"
)

// StatusCode is a websocket close status. The named values cover the
// well-known codes; any other integer is carried as is and prints as
// other(code).
type StatusCode int

const (
	StatusNormalClosure           StatusCode = websocket.CloseNormalClosure
	StatusGoingAway               StatusCode = websocket.CloseGoingAway
	StatusProtocolError           StatusCode = websocket.CloseProtocolError
	StatusUnsupportedData         StatusCode = websocket.CloseUnsupportedData
	StatusNoStatusReceived        StatusCode = websocket.CloseNoStatusReceived
	StatusAbnormalClosure         StatusCode = websocket.CloseAbnormalClosure
	StatusInvalidFramePayloadData StatusCode = websocket.CloseInvalidFramePayloadData
	StatusPolicyViolation         StatusCode = websocket.ClosePolicyViolation
	StatusMessageTooBig           StatusCode = websocket.CloseMessageTooBig
	StatusMandatoryExtension      StatusCode = websocket.CloseMandatoryExtension
	StatusInternalError           StatusCode = websocket.CloseInternalServerErr
	StatusServiceRestart          StatusCode = websocket.CloseServiceRestart
	StatusTryAgainLater           StatusCode = websocket.CloseTryAgainLater
	StatusTLSHandshake            StatusCode = websocket.CloseTLSHandshake
)

var statusNames = map[StatusCode]string{
	StatusNormalClosure:           "normalClosure",
	StatusGoingAway:               "goingAway",
	StatusProtocolError:           "protocolError",
	StatusUnsupportedData:         "unsupportedData",
	StatusNoStatusReceived:        "noStatusReceived",
	StatusAbnormalClosure:         "abnormalClosure",
	StatusInvalidFramePayloadData: "invalidFramePayloadData",
	StatusPolicyViolation:         "policyViolation",
	StatusMessageTooBig:           "messageTooBig",
	StatusMandatoryExtension:      "mandatoryExtension",
	StatusInternalError:           "internalError",
	StatusServiceRestart:          "serviceRestart",
	StatusTryAgainLater:           "tryAgainLater",
	StatusTLSHandshake:            "tlsHandshake",
}

// StatusCodes lists the named codes in ascending order.
func StatusCodes() []StatusCode {
	return []StatusCode{
		StatusNormalClosure,
		StatusGoingAway,
		StatusProtocolError,
		StatusUnsupportedData,
		StatusNoStatusReceived,
		StatusAbnormalClosure,
		StatusInvalidFramePayloadData,
		StatusPolicyViolation,
		StatusMessageTooBig,
		StatusMandatoryExtension,
		StatusInternalError,
		StatusServiceRestart,
		StatusTryAgainLater,
		StatusTLSHandshake,
	}
}

// DecodeStatusCode maps a wire close code to a StatusCode. It never fails.
func DecodeStatusCode(code int) StatusCode { return StatusCode(code) }

// Code returns the wire value of s.
func (s StatusCode) Code() int { return int(s) }

// Known reports whether s is one of the named codes.
func (s StatusCode) Known() bool {
	_, ok := statusNames[s]
	return ok
}

func (s StatusCode) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("other(%d)", int(s))
}
