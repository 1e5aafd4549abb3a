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

package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrBadFrameEnd is returned when a frame's trailing octet is not
// FRAME_END. The stream can no longer be trusted after this.
var ErrBadFrameEnd = errors.New("frame not terminated by frame-end octet")

// Frame is one transport PDU. The concrete types are MethodFrame,
// HeaderFrame, BodyFrame and HeartbeatFrame.
type Frame interface {
	// FrameChannel is the channel id in the frame header.
	FrameChannel() uint16

	frameType() uint8
	marshalPayload() ([]byte, error)
}

// MethodFrame carries one method invocation or reply. Fields holds the
// decoded arguments keyed by the schema field names.
type MethodFrame struct {
	ChannelId uint16
	ClassId   uint16
	MethodId  uint16
	Fields    Fields
}

func (f *MethodFrame) FrameChannel() uint16 { return f.ChannelId }
func (f *MethodFrame) frameType() uint8     { return FRAME_METHOD }

func (f *MethodFrame) marshalPayload() ([]byte, error) {
	var buf bytes.Buffer
	writeShort(&buf, f.ClassId)
	writeShort(&buf, f.MethodId)
	if err := encodeFields(&buf, f.ClassId, f.MethodId, f.Fields); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Name returns the "class.method" name, e.g. "basic.deliver".
func (f *MethodFrame) Name() string {
	return MethodName(f.ClassId, f.MethodId)
}

// HeaderFrame is the content header that follows basic.publish and
// basic.deliver method frames.
type HeaderFrame struct {
	ChannelId  uint16
	ClassId    uint16
	BodySize   uint64
	Properties BasicProperties
}

func (f *HeaderFrame) FrameChannel() uint16 { return f.ChannelId }
func (f *HeaderFrame) frameType() uint8     { return FRAME_HEADER }

func (f *HeaderFrame) marshalPayload() ([]byte, error) {
	var buf bytes.Buffer
	writeShort(&buf, f.ClassId)
	writeShort(&buf, 0) // weight, unused
	writeLonglong(&buf, f.BodySize)
	if err := f.Properties.encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BodyFrame carries a fragment of a content body.
type BodyFrame struct {
	ChannelId uint16
	Payload   []byte
}

func (f *BodyFrame) FrameChannel() uint16 { return f.ChannelId }
func (f *BodyFrame) frameType() uint8     { return FRAME_BODY }

func (f *BodyFrame) marshalPayload() ([]byte, error) {
	return f.Payload, nil
}

// HeartbeatFrame is a zero length frame on channel 0.
type HeartbeatFrame struct{}

func (f *HeartbeatFrame) FrameChannel() uint16 { return 0 }
func (f *HeartbeatFrame) frameType() uint8     { return FRAME_HEARTBEAT }

func (f *HeartbeatFrame) marshalPayload() ([]byte, error) {
	return nil, nil
}

// WriteFrame serializes one frame: type, channel, payload size, payload,
// end octet.
func WriteFrame(w io.Writer, f Frame) error {
	payload, err := f.marshalPayload()
	if err != nil {
		return err
	}
	buf := make([]byte, 0, len(payload)+FRAME_OVERHEAD)
	buf = append(buf, f.frameType())
	buf = binary.BigEndian.AppendUint16(buf, f.FrameChannel())
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(payload)))
	buf = append(buf, payload...)
	buf = append(buf, FRAME_END)
	_, err = w.Write(buf)
	return err
}

// ReadFrame reads exactly one frame off the reader and decodes it. The
// trailing FRAME_END octet is verified; a mismatch is a fatal protocol
// error.
func ReadFrame(r io.Reader) (Frame, error) {
	var head [7]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, err
	}
	ftype := head[0]
	channel := binary.BigEndian.Uint16(head[1:3])
	size := binary.BigEndian.Uint32(head[3:7])

	payload := make([]byte, size+1)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	if payload[size] != FRAME_END {
		return nil, ErrBadFrameEnd
	}
	payload = payload[:size]

	switch ftype {
	case FRAME_METHOD:
		return readMethodFrame(channel, payload)
	case FRAME_HEADER:
		return readHeaderFrame(channel, payload)
	case FRAME_BODY:
		return &BodyFrame{ChannelId: channel, Payload: payload}, nil
	case FRAME_HEARTBEAT:
		return &HeartbeatFrame{}, nil
	}
	return nil, fmt.Errorf("unknown frame type %d", ftype)
}

func readMethodFrame(channel uint16, payload []byte) (*MethodFrame, error) {
	r := bytes.NewReader(payload)
	classId, err := readShort(r)
	if err != nil {
		return nil, err
	}
	methodId, err := readShort(r)
	if err != nil {
		return nil, err
	}
	fields, err := decodeFields(r, classId, methodId)
	if err != nil {
		return nil, fmt.Errorf("%s: %s", MethodName(classId, methodId), err)
	}
	return &MethodFrame{
		ChannelId: channel,
		ClassId:   classId,
		MethodId:  methodId,
		Fields:    fields,
	}, nil
}

func readHeaderFrame(channel uint16, payload []byte) (*HeaderFrame, error) {
	r := bytes.NewReader(payload)
	classId, err := readShort(r)
	if err != nil {
		return nil, err
	}
	if _, err = readShort(r); err != nil { // weight
		return nil, err
	}
	bodySize, err := readLonglong(r)
	if err != nil {
		return nil, err
	}
	f := &HeaderFrame{ChannelId: channel, ClassId: classId, BodySize: bodySize}
	if err = f.Properties.decode(r); err != nil {
		return nil, err
	}
	return f, nil
}
