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
	"fmt"
	"log"
	"net"
	"strconv"
	"strings"

	"github.com/mozilla-services/carrot/tcp"
	"github.com/mozilla-services/carrot/wire"
)

// VERSION is advertised in the client-properties table.
const VERSION = "0.1.0"

// Setup dials the broker and performs the connection handshake:
//
//	C:protocol-header  S:start    C:start-ok
//	S:tune             C:tune-ok
//	C:open             S:open-ok
//	C:channel.open     S:channel.open-ok
//
// On failure the transport is torn down and the error returned; the
// session is usable only after Setup returns nil.
func (s *Session) Setup() error {
	addr := net.JoinHostPort(s.conf.Host, strconv.Itoa(s.conf.Port))
	var tlsConf *tcp.TlsConfig
	if s.conf.Ssl {
		tlsConf = &s.conf.Tls
	}
	conn, err := tcp.Dial(addr, s.conf.Ssl, tlsConf, s.conf.connectTimeout(),
		s.conf.readTimeout())
	if err != nil {
		return fmt.Errorf("connect %s: %s", addr, err)
	}
	s.conn = conn

	if err = s.handshake(); err != nil {
		s.Teardown(nil)
		return err
	}
	s.initialized = true
	return nil
}

func (s *Session) handshake() error {
	start, err := s.sendProtocolHeader()
	if err != nil {
		return err
	}

	s.VersionMajor = start.Fields.Uint8("version_major")
	s.VersionMinor = start.Fields.Uint8("version_minor")
	if s.VersionMajor != wire.VERSION_MAJOR || s.VersionMinor != wire.VERSION_MINOR {
		s.SetState(CLOSED, CLOSED)
		return ErrVersionMismatch
	}
	if !mechanismOffered(start.Fields.String("mechanisms"), s.Mechanism) {
		s.SetState(CLOSED, CLOSED)
		return ErrMechanismUnsupported
	}

	startOk := &wire.MethodFrame{
		ClassId:  wire.CLASS_CONNECTION,
		MethodId: wire.CONNECTION_START_OK,
		Fields: wire.Fields{
			"client_properties": wire.Table{
				"product":   "carrot",
				"version":   VERSION,
				"platform":  platformString(),
				"copyright": "Mozilla Foundation",
				"capabilities": wire.Table{
					"authentication_failure_close": true,
				},
			},
			"mechanism": s.Mechanism,
			"response":  saslPlain(s.conf.User, s.conf.Password),
			"locale":    s.conf.Locale,
		},
	}
	if err = s.sendFrame(startOk); err != nil {
		return err
	}
	tune, err := s.consumeMethod(wire.CLASS_CONNECTION, wire.CONNECTION_TUNE)
	if err != nil {
		return err
	}

	// A zero from the peer means "no limit", keep our own value; any
	// other value bounds us to the smaller of the two.
	s.ChannelMax = pickLimit16(s.conf.ChannelMax, tune.Fields.Uint16("channel_max"))
	s.FrameMax = pickLimit32(s.conf.FrameMax, tune.Fields.Uint32("frame_max"))
	s.Heartbeat = s.conf.Heartbeat

	tuneOk := &wire.MethodFrame{
		ClassId:  wire.CLASS_CONNECTION,
		MethodId: wire.CONNECTION_TUNE_OK,
		Fields: wire.Fields{
			"channel_max": s.ChannelMax,
			"frame_max":   s.FrameMax,
			"heartbeat":   s.Heartbeat,
		},
	}
	if err = s.sendFrame(tuneOk); err != nil {
		return err
	}

	open := &wire.MethodFrame{
		ClassId:  wire.CLASS_CONNECTION,
		MethodId: wire.CONNECTION_OPEN,
		Fields:   wire.Fields{"virtual_host": s.conf.VirtualHost},
	}
	if _, err = s.wireMethod(open); err != nil {
		return err
	}
	s.SetState(CLOSED, ESTABLISHED)

	chanOpen := &wire.MethodFrame{
		ChannelId: s.conf.Channel,
		ClassId:   wire.CLASS_CHANNEL,
		MethodId:  wire.CHANNEL_OPEN,
		Fields:    wire.Fields{},
	}
	openOk, err := s.wireMethod(chanOpen)
	if err != nil {
		return err
	}
	s.ChannelId = openOk.ChannelId
	s.SetState(ESTABLISHED, ESTABLISHED)
	s.initialized = true
	return nil
}

// sendProtocolHeader transmits the 8 byte banner and consumes the
// connection.start reply.
func (s *Session) sendProtocolHeader() (*wire.MethodFrame, error) {
	if _, err := s.conn.Write(wire.ProtocolHeader); err != nil {
		s.SetState(CLOSED, CLOSED)
		return nil, fmt.Errorf("transport write: %s", err)
	}
	return s.consumeMethod(wire.CLASS_CONNECTION, wire.CONNECTION_START)
}

// sendFrame is the fire and forget send used for heartbeats, content
// frames and acks.
func (s *Session) sendFrame(f wire.Frame) error {
	if err := wire.WriteFrame(s.conn, f); err != nil {
		s.SetState(CLOSED, CLOSED)
		return fmt.Errorf("transport write: %s", err)
	}
	return nil
}

// consumeFrame reads one full frame off the transport.
func (s *Session) consumeFrame() (wire.Frame, error) {
	return wire.ReadFrame(s.conn)
}

// consumeMethod reads one frame and requires it to be the named method;
// anything else is a fatal protocol error.
func (s *Session) consumeMethod(classId, methodId uint16) (*wire.MethodFrame, error) {
	frame, err := s.consumeFrame()
	if err != nil {
		s.SetState(CLOSED, CLOSED)
		return nil, fmt.Errorf("transport read: %s", err)
	}
	mf, ok := frame.(*wire.MethodFrame)
	if !ok {
		s.SetState(CLOSED, CLOSED)
		return nil, fmt.Errorf("%w while waiting for %s", ErrUnexpectedFrame,
			wire.MethodName(classId, methodId))
	}
	if mf.ClassId != classId || mf.MethodId != methodId {
		s.SetState(CLOSED, CLOSED)
		return nil, fmt.Errorf("%w: method %s while waiting for %s",
			ErrUnexpectedFrame, mf.Name(), wire.MethodName(classId, methodId))
	}
	return mf, nil
}

// wireMethod sends a method frame and consumes its paired synchronous
// reply, if the method has one.
func (s *Session) wireMethod(f *wire.MethodFrame) (*wire.MethodFrame, error) {
	s.setOngoing(f.ClassId, f.MethodId)
	if err := s.sendFrame(f); err != nil {
		return nil, err
	}
	respId, ok := wire.ResponseMethodId(f.ClassId, f.MethodId)
	if !ok {
		return nil, nil
	}
	return s.consumeMethod(f.ClassId, respId)
}

// Teardown closes the channel and connection as gracefully as their
// states allow. All I/O errors are logged and swallowed; the transport
// is always closed. Calling Teardown on an already closed session is a
// no-op.
func (s *Session) Teardown(reason *CloseReason) {
	if s.conn == nil {
		return
	}
	filled := s.fillReason(reason)

	switch s.channelState {
	case ESTABLISHED:
		chanClose := &wire.MethodFrame{
			ChannelId: s.channelNumber(),
			ClassId:   wire.CLASS_CHANNEL,
			MethodId:  wire.CHANNEL_CLOSE,
			Fields:    filled.fields(),
		}
		if _, err := s.wireMethod(chanClose); err != nil {
			log.Printf("carrot: channel.close: %s\n", err)
		}
	case CLOSE_WAIT:
		closeOk := &wire.MethodFrame{
			ChannelId: s.channelNumber(),
			ClassId:   wire.CLASS_CHANNEL,
			MethodId:  wire.CHANNEL_CLOSE_OK,
			Fields:    wire.Fields{},
		}
		if err := s.sendFrame(closeOk); err != nil {
			log.Printf("carrot: channel.close-ok: %s\n", err)
		}
	}

	switch s.connectionState {
	case ESTABLISHED:
		connClose := &wire.MethodFrame{
			ClassId:  wire.CLASS_CONNECTION,
			MethodId: wire.CONNECTION_CLOSE,
			Fields:   filled.fields(),
		}
		if _, err := s.wireMethod(connClose); err != nil {
			log.Printf("carrot: connection.close: %s\n", err)
		}
	case CLOSE_WAIT:
		closeOk := &wire.MethodFrame{
			ClassId:  wire.CLASS_CONNECTION,
			MethodId: wire.CONNECTION_CLOSE_OK,
			Fields:   wire.Fields{},
		}
		if err := s.sendFrame(closeOk); err != nil {
			log.Printf("carrot: connection.close-ok: %s\n", err)
		}
	}

	s.SetState(CLOSED, CLOSED)
	s.conn.Close()
	s.conn = nil
	s.initialized = false
}

// channelNumber is the channel id for channel class traffic: the server
// confirmed id once open, the configured one before that.
func (s *Session) channelNumber() uint16 {
	if s.ChannelId != 0 {
		return s.ChannelId
	}
	return s.conf.Channel
}

// saslPlain builds the PLAIN response: NUL user NUL password.
func saslPlain(user, password string) string {
	return "\x00" + user + "\x00" + password
}

func mechanismOffered(mechanisms, want string) bool {
	for _, m := range strings.Fields(mechanisms) {
		if m == want {
			return true
		}
	}
	return false
}

func pickLimit16(client, peer uint16) uint16 {
	if peer == 0 || client <= peer {
		return client
	}
	return peer
}

func pickLimit32(client, peer uint32) uint32 {
	if peer == 0 || client <= peer {
		return client
	}
	return peer
}
