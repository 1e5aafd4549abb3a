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
	"time"

	gs "github.com/rafrombrc/gospec/src/gospec"
)

func TableSpec(c gs.Context) {
	c.Specify("A field table", func() {
		c.Specify("round trips the grammar value types", func() {
			in := Table{
				"bool":   true,
				"int8":   int8(-7),
				"int16":  int16(-300),
				"int32":  int32(123456),
				"int64":  int64(1 << 40),
				"float":  float64(2.5),
				"string": "hello",
				"when":   time.Unix(1400000000, 0),
				"nested": Table{"inner": int32(1)},
				"array":  []interface{}{int32(1), "two"},
				"void":   nil,
			}
			var buf bytes.Buffer
			err := writeTable(&buf, in)
			c.Assume(err, gs.IsNil)

			out, err := readTable(bytes.NewReader(buf.Bytes()))
			c.Assume(err, gs.IsNil)

			c.Expect(out["bool"], gs.Equals, true)
			c.Expect(out["int8"], gs.Equals, int8(-7))
			c.Expect(out["int16"], gs.Equals, int16(-300))
			c.Expect(out["int32"], gs.Equals, int32(123456))
			c.Expect(out["int64"], gs.Equals, int64(1<<40))
			c.Expect(out["float"], gs.Equals, float64(2.5))
			c.Expect(out["string"], gs.Equals, "hello")
			c.Expect(out["when"].(time.Time).Unix(), gs.Equals, int64(1400000000))
			c.Expect(out["void"], gs.IsNil)

			nested := out["nested"].(Table)
			c.Expect(nested["inner"], gs.Equals, int32(1))

			array := out["array"].([]interface{})
			c.Expect(len(array), gs.Equals, 2)
			c.Expect(array[0], gs.Equals, int32(1))
			c.Expect(array[1], gs.Equals, "two")
		})

		c.Specify("rejects unsupported value types", func() {
			var buf bytes.Buffer
			err := writeTable(&buf, Table{"bad": struct{}{}})
			c.Expect(err, gs.Not(gs.IsNil))
		})
	})
}

func FrameSpec(c gs.Context) {
	c.Specify("The framing discipline", func() {
		c.Specify("round trips a method frame", func() {
			in := &MethodFrame{
				ChannelId: 1,
				ClassId:   CLASS_BASIC,
				MethodId:  BASIC_DELIVER,
				Fields: Fields{
					"consumer_tag": "ctag-1",
					"delivery_tag": uint64(7),
					"redelivered":  true,
					"exchange":     "logs",
					"routing_key":  "error",
				},
			}
			var buf bytes.Buffer
			err := WriteFrame(&buf, in)
			c.Assume(err, gs.IsNil)

			frame, err := ReadFrame(&buf)
			c.Assume(err, gs.IsNil)
			out := frame.(*MethodFrame)

			c.Expect(out.ChannelId, gs.Equals, uint16(1))
			c.Expect(out.ClassId, gs.Equals, uint16(CLASS_BASIC))
			c.Expect(out.MethodId, gs.Equals, uint16(BASIC_DELIVER))
			c.Expect(out.Fields.String("consumer_tag"), gs.Equals, "ctag-1")
			c.Expect(out.Fields.Uint64("delivery_tag"), gs.Equals, uint64(7))
			c.Expect(out.Fields.Bool("redelivered"), gs.IsTrue)
			c.Expect(out.Fields.String("exchange"), gs.Equals, "logs")
			c.Expect(out.Fields.String("routing_key"), gs.Equals, "error")
		})

		c.Specify("rejects a corrupt frame end octet", func() {
			in := &MethodFrame{
				ChannelId: 0,
				ClassId:   CLASS_CONNECTION,
				MethodId:  CONNECTION_CLOSE_OK,
				Fields:    Fields{},
			}
			var buf bytes.Buffer
			err := WriteFrame(&buf, in)
			c.Assume(err, gs.IsNil)

			raw := buf.Bytes()
			raw[len(raw)-1] = 0x00
			_, err = ReadFrame(bytes.NewReader(raw))
			c.Expect(err, gs.Equals, ErrBadFrameEnd)
		})

		c.Specify("round trips a heartbeat frame", func() {
			var buf bytes.Buffer
			err := WriteFrame(&buf, &HeartbeatFrame{})
			c.Assume(err, gs.IsNil)

			// type, channel 0, size 0, end octet
			c.Expect(buf.Len(), gs.Equals, FRAME_OVERHEAD)
			c.Expect(buf.Bytes()[0], gs.Equals, uint8(FRAME_HEARTBEAT))

			frame, err := ReadFrame(&buf)
			c.Assume(err, gs.IsNil)
			_, ok := frame.(*HeartbeatFrame)
			c.Expect(ok, gs.IsTrue)
			c.Expect(frame.FrameChannel(), gs.Equals, uint16(0))
		})

		c.Specify("round trips a body frame", func() {
			in := &BodyFrame{ChannelId: 3, Payload: []byte("payload bytes")}
			var buf bytes.Buffer
			err := WriteFrame(&buf, in)
			c.Assume(err, gs.IsNil)

			frame, err := ReadFrame(&buf)
			c.Assume(err, gs.IsNil)
			out := frame.(*BodyFrame)
			c.Expect(out.ChannelId, gs.Equals, uint16(3))
			c.Expect(string(out.Payload), gs.Equals, "payload bytes")
		})
	})
}

func MethodCodecSpec(c gs.Context) {
	c.Specify("The method schema table", func() {
		c.Specify("packs runs of bits into shared octets", func() {
			in := &MethodFrame{
				ChannelId: 1,
				ClassId:   CLASS_QUEUE,
				MethodId:  QUEUE_DECLARE,
				Fields: Fields{
					"queue":       "work",
					"durable":     true,
					"auto_delete": true,
				},
			}
			var buf bytes.Buffer
			err := WriteFrame(&buf, in)
			c.Assume(err, gs.IsNil)

			frame, err := ReadFrame(&buf)
			c.Assume(err, gs.IsNil)
			out := frame.(*MethodFrame)

			c.Expect(out.Fields.String("queue"), gs.Equals, "work")
			c.Expect(out.Fields.Bool("passive"), gs.IsFalse)
			c.Expect(out.Fields.Bool("durable"), gs.IsTrue)
			c.Expect(out.Fields.Bool("exclusive"), gs.IsFalse)
			c.Expect(out.Fields.Bool("auto_delete"), gs.IsTrue)
			c.Expect(out.Fields.Bool("no_wait"), gs.IsFalse)
		})

		c.Specify("pairs requests with their synchronous replies", func() {
			resp, ok := ResponseMethodId(CLASS_QUEUE, QUEUE_DECLARE)
			c.Expect(ok, gs.IsTrue)
			c.Expect(resp, gs.Equals, uint16(QUEUE_DECLARE_OK))

			resp, ok = ResponseMethodId(CLASS_CONNECTION, CONNECTION_TUNE)
			c.Expect(ok, gs.IsTrue)
			c.Expect(resp, gs.Equals, uint16(CONNECTION_TUNE_OK))

			// Publish is asynchronous.
			_, ok = ResponseMethodId(CLASS_BASIC, BASIC_PUBLISH)
			c.Expect(ok, gs.IsFalse)

			// Replies expect nothing back.
			_, ok = ResponseMethodId(CLASS_QUEUE, QUEUE_DECLARE_OK)
			c.Expect(ok, gs.IsFalse)
		})

		c.Specify("names known and unknown methods", func() {
			c.Expect(MethodName(CLASS_BASIC, BASIC_DELIVER), gs.Equals, "basic.deliver")
			c.Expect(MethodName(99, 1), gs.Equals, "method(99, 1)")
		})

		c.Specify("decodes every schema field it encodes", func() {
			in := &MethodFrame{
				ClassId:  CLASS_CONNECTION,
				MethodId: CONNECTION_START,
				Fields: Fields{
					"version_major":     uint8(0),
					"version_minor":     uint8(9),
					"server_properties": Table{"product": "testbroker"},
					"mechanisms":        "PLAIN AMQPLAIN",
					"locales":           "en_US",
				},
			}
			var buf bytes.Buffer
			err := WriteFrame(&buf, in)
			c.Assume(err, gs.IsNil)

			frame, err := ReadFrame(&buf)
			c.Assume(err, gs.IsNil)
			out := frame.(*MethodFrame)

			c.Expect(out.Fields.Uint8("version_major"), gs.Equals, uint8(0))
			c.Expect(out.Fields.Uint8("version_minor"), gs.Equals, uint8(9))
			c.Expect(out.Fields.String("mechanisms"), gs.Equals, "PLAIN AMQPLAIN")
			c.Expect(out.Fields.String("locales"), gs.Equals, "en_US")
			props := out.Fields.Table("server_properties")
			c.Expect(props["product"], gs.Equals, "testbroker")
		})
	})
}

func ContentSpec(c gs.Context) {
	c.Specify("A content header frame", func() {
		c.Specify("round trips the set property flags only", func() {
			in := &HeaderFrame{
				ChannelId: 1,
				ClassId:   CLASS_BASIC,
				BodySize:  5,
				Properties: BasicProperties{
					ContentType:  "text/plain",
					DeliveryMode: 2,
					Headers:      Table{"retry": int32(1)},
					Timestamp:    time.Unix(1400000000, 0),
				},
			}
			var buf bytes.Buffer
			err := WriteFrame(&buf, in)
			c.Assume(err, gs.IsNil)

			frame, err := ReadFrame(&buf)
			c.Assume(err, gs.IsNil)
			out := frame.(*HeaderFrame)

			c.Expect(out.ClassId, gs.Equals, uint16(CLASS_BASIC))
			c.Expect(out.BodySize, gs.Equals, uint64(5))
			c.Expect(out.Properties.ContentType, gs.Equals, "text/plain")
			c.Expect(out.Properties.DeliveryMode, gs.Equals, uint8(2))
			c.Expect(out.Properties.Headers["retry"], gs.Equals, int32(1))
			c.Expect(out.Properties.Timestamp.Unix(), gs.Equals, int64(1400000000))
			c.Expect(out.Properties.ContentEncoding, gs.Equals, "")
			c.Expect(out.Properties.Priority, gs.Equals, uint8(0))
		})

		c.Specify("encodes empty properties as a zero flag word", func() {
			in := &HeaderFrame{ChannelId: 1, ClassId: CLASS_BASIC, BodySize: 2}
			var buf bytes.Buffer
			err := WriteFrame(&buf, in)
			c.Assume(err, gs.IsNil)

			// payload: class(2) weight(2) size(8) flags(2)
			c.Expect(buf.Len(), gs.Equals, FRAME_OVERHEAD+14)

			frame, err := ReadFrame(&buf)
			c.Assume(err, gs.IsNil)
			out := frame.(*HeaderFrame)
			c.Expect(out.BodySize, gs.Equals, uint64(2))
			c.Expect(out.Properties.ContentType, gs.Equals, "")
		})
	})
}
