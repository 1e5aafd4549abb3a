/***** BEGIN LICENSE BLOCK *****
# This Source Code Form is subject to the terms of the Mozilla Public
# License, v. 2.0. If a copy of the MPL was not distributed with this file,
# You can obtain one at http://mozilla.org/MPL/2.0/.
#
# The Initial Developer of the Original Code is the Mozilla Foundation.
# Portions created by the Initial Developer are Copyright (C) 2014-2015
# the Initial Developer. All Rights Reserved.
#
# Contributor(s):
#   Ben Bangert (bbangert@mozilla.com)
#   Rob Miller (rmiller@mozilla.com)
#
# ***** END LICENSE BLOCK *****/

package session

import (
	"errors"

	"github.com/mozilla-services/carrot/wire"
)

var (
	// ErrNotInitialized is returned for operations attempted before a
	// successful Setup.
	ErrNotInitialized = errors.New("session not initialized")

	// ErrVersionMismatch is returned when the peer speaks a protocol
	// other than 0-9.
	ErrVersionMismatch = errors.New("protocol version does not match")

	// ErrMechanismUnsupported is returned when the peer does not offer
	// the configured SASL mechanism.
	ErrMechanismUnsupported = errors.New("SASL mechanism not offered by peer")

	// ErrUnexpectedFrame is returned when a frame read off the wire is
	// not the synchronous reply being waited for.
	ErrUnexpectedFrame = errors.New("unexpected frame")

	// ErrHeartbeatTimeout is returned by Consume when too many
	// heartbeat intervals pass without peer activity.
	ErrHeartbeatTimeout = errors.New("heartbeat timeout")

	// ErrExiting is returned by Consume when the host environment
	// requests shutdown.
	ErrExiting = errors.New("exiting")
)

// CloseReason decorates a channel.close or connection.close method.
// Missing fields are filled from defaults and from the request that was
// in flight.
type CloseReason struct {
	ReplyCode uint16
	ReplyText string
	ClassId   uint16
	MethodId  uint16
}

// fillReason applies the close reason defaults: reply code
// CONNECTION_FORCED, empty text, class/method from the ongoing request.
func (s *Session) fillReason(reason *CloseReason) *CloseReason {
	filled := CloseReason{ReplyCode: wire.CONNECTION_FORCED}
	if reason != nil {
		filled = *reason
	}
	if filled.ReplyCode == 0 {
		filled.ReplyCode = wire.CONNECTION_FORCED
	}
	if filled.ClassId == 0 && filled.MethodId == 0 {
		filled.ClassId = s.ongoingClass
		filled.MethodId = s.ongoingMethod
	}
	return &filled
}

func (r *CloseReason) fields() wire.Fields {
	return wire.Fields{
		"reply_code": r.ReplyCode,
		"reply_text": r.ReplyText,
		"class_id":   r.ClassId,
		"method_id":  r.MethodId,
	}
}
