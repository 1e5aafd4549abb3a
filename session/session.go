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

/*

A single session AMQP 0-9-1 client: one connection, one channel, strictly
serialized request/reply, and a single threaded consume loop. The session
exclusively owns its transport; it must not be shared across goroutines.

*/
package session

import (
	"fmt"
	"net"
	"os"
	"runtime"
	"time"
)

// LifecycleState tracks the connection and channel lifecycle.
type LifecycleState uint8

const (
	CLOSED LifecycleState = iota
	ESTABLISHED
	CLOSE_WAIT
)

func (s LifecycleState) String() string {
	switch s {
	case CLOSED:
		return "CLOSED"
	case ESTABLISHED:
		return "ESTABLISHED"
	case CLOSE_WAIT:
		return "CLOSE_WAIT"
	}
	return fmt.Sprintf("LifecycleState(%d)", uint8(s))
}

// Session owns one broker connection and the single channel opened on
// it. All negotiated parameters live here after Setup.
type Session struct {
	conf *Config
	conn net.Conn

	// Peer protocol version from connection.start.
	VersionMajor    uint8
	VersionMinor    uint8
	VersionRevision uint8

	// Negotiated tune parameters.
	FrameMax   uint32
	ChannelMax uint16
	Heartbeat  uint16

	Mechanism string

	// Channel number confirmed by channel.open-ok.
	ChannelId uint16

	// Tag of the active consumer after basic.consume-ok.
	ConsumerTag string

	connectionState LifecycleState
	channelState    LifecycleState

	// Class and method of the request in flight, used to decorate close
	// reasons.
	ongoingClass  uint16
	ongoingMethod uint16

	// Heartbeat bookkeeping for the consume loop.
	lastActivity time.Time
	missBitmap   uint32
	hbWindow     uint
	hbThreshold  uint

	initialized bool
}

// Heartbeat miss window: hbThreshold or more missed intervals within the last
// hbWindow intervals is a dead peer.
const (
	hbWindow    = 5
	hbThreshold = 4
)

func NewSession(conf *Config) *Session {
	return &Session{
		conf:        conf,
		FrameMax:    conf.FrameMax,
		ChannelMax:  conf.ChannelMax,
		Heartbeat:   conf.Heartbeat,
		Mechanism:   conf.Mechanism,
		hbWindow:    hbWindow,
		hbThreshold: hbThreshold,
	}
}

// SetState is the only mutator for the two lifecycle variables; every
// transition goes through it.
func (s *Session) SetState(channelState, connectionState LifecycleState) {
	s.channelState = channelState
	s.connectionState = connectionState
}

func (s *Session) ChannelState() LifecycleState {
	return s.channelState
}

func (s *Session) ConnectionState() LifecycleState {
	return s.connectionState
}

// setOngoing records the request in flight so a peer initiated close can
// name the method it interrupted.
func (s *Session) setOngoing(classId, methodId uint16) {
	s.ongoingClass = classId
	s.ongoingMethod = methodId
}

// platformString is the free-form advisory platform sent in the
// client-properties table.
func platformString() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	return fmt.Sprintf("golang %s/%s (%s)", runtime.GOOS, runtime.GOARCH, hostname)
}
