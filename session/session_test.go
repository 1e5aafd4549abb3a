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
	"fmt"
	"strings"
	"time"

	gs "github.com/rafrombrc/gospec/src/gospec"

	ts "github.com/mozilla-services/carrot/testsupport"
	"github.com/mozilla-services/carrot/wire"
)

func testConfig() *Config {
	conf := NewConfig()
	conf.ReadTimeout = 200
	conf.Queue = "q"
	return conf
}

func HandshakeSpec(c gs.Context) {
	c.Specify("A session handshake", func() {
		c.Specify("negotiates tune values and opens the channel", func() {
			sess, broker := newTestSession(testConfig())
			var startOk, tuneOk *wire.MethodFrame
			broker.run(func() (err error) {
				if startOk, tuneOk, err = broker.handshake(2047, 131072); err != nil {
					return
				}
				return broker.serveTeardown(1)
			})

			err := sess.handshake()
			c.Assume(err, gs.IsNil)

			c.Expect(sess.ConnectionState(), gs.Equals, ESTABLISHED)
			c.Expect(sess.ChannelState(), gs.Equals, ESTABLISHED)
			c.Expect(sess.ChannelId, gs.Equals, uint16(1))
			c.Expect(sess.ChannelMax, gs.Equals, uint16(2047))
			c.Expect(sess.FrameMax, gs.Equals, uint32(131072))
			c.Expect(sess.VersionMajor, gs.Equals, uint8(0))
			c.Expect(sess.VersionMinor, gs.Equals, uint8(9))

			sess.Teardown(nil)
			c.Expect(<-broker.Done, gs.IsNil)
			c.Expect(sess.ChannelState(), gs.Equals, CLOSED)
			c.Expect(sess.ConnectionState(), gs.Equals, CLOSED)

			c.Expect(startOk.Fields.String("mechanism"), gs.Equals, "PLAIN")
			c.Expect(startOk.Fields.String("response"), gs.Equals, "\x00guest\x00guest")
			c.Expect(startOk.Fields.String("locale"), gs.Equals, "en_US")
			props := startOk.Fields.Table("client_properties")
			c.Expect(props["product"], gs.Equals, "carrot")
			capabilities := props["capabilities"].(wire.Table)
			c.Expect(capabilities["authentication_failure_close"], gs.Equals, true)

			c.Expect(tuneOk.Fields.Uint16("channel_max"), gs.Equals, uint16(2047))
			c.Expect(tuneOk.Fields.Uint32("frame_max"), gs.Equals, uint32(131072))
			c.Expect(tuneOk.Fields.Uint16("heartbeat"), gs.Equals, uint16(60))
		})

		c.Specify("keeps its own limits against an unlimited peer", func() {
			sess, broker := newTestSession(testConfig())
			broker.run(func() (err error) {
				if _, _, err = broker.handshake(0, 0); err != nil {
					return
				}
				return broker.serveTeardown(1)
			})

			err := sess.handshake()
			c.Assume(err, gs.IsNil)

			c.Expect(sess.ChannelMax, gs.Equals, uint16(wire.DEFAULT_MAX_CHANNELS))
			c.Expect(sess.FrameMax, gs.Equals, uint32(wire.DEFAULT_FRAME_SIZE))

			sess.Teardown(nil)
			c.Expect(<-broker.Done, gs.IsNil)
		})

		c.Specify("rejects a protocol version mismatch", func() {
			sess, broker := newTestSession(testConfig())
			broker.run(func() error {
				if err := broker.expectProtocolHeader(); err != nil {
					return err
				}
				err := broker.sendMethod(0, wire.CLASS_CONNECTION, wire.CONNECTION_START,
					wire.Fields{
						"version_major": uint8(1),
						"version_minor": uint8(0),
						"mechanisms":    "PLAIN",
						"locales":       "en_US",
					})
				if err != nil {
					return err
				}
				// No start-ok may follow, only the close of the socket.
				if _, err = broker.readFrame(); err == nil {
					return fmt.Errorf("client sent bytes after version mismatch")
				}
				return nil
			})

			err := sess.handshake()
			c.Expect(err, gs.Equals, ErrVersionMismatch)
			c.Expect(sess.ConnectionState(), gs.Equals, CLOSED)
			c.Expect(sess.ChannelState(), gs.Equals, CLOSED)

			sess.Teardown(nil)
			c.Expect(<-broker.Done, gs.IsNil)
		})

		c.Specify("rejects a peer that does not offer PLAIN", func() {
			sess, broker := newTestSession(testConfig())
			broker.run(func() error {
				if err := broker.expectProtocolHeader(); err != nil {
					return err
				}
				err := broker.sendMethod(0, wire.CLASS_CONNECTION, wire.CONNECTION_START,
					wire.Fields{
						"version_major": uint8(0),
						"version_minor": uint8(9),
						"mechanisms":    "AMQPLAIN EXTERNAL",
						"locales":       "en_US",
					})
				if err != nil {
					return err
				}
				if _, err = broker.readFrame(); err == nil {
					return fmt.Errorf("client sent bytes after mechanism mismatch")
				}
				return nil
			})

			err := sess.handshake()
			c.Expect(err, gs.Equals, ErrMechanismUnsupported)
			c.Expect(sess.ChannelState(), gs.Equals, CLOSED)

			sess.Teardown(nil)
			c.Expect(<-broker.Done, gs.IsNil)
		})

		c.Specify("treats a mismatched reply as a fatal protocol error", func() {
			sess, broker := newTestSession(testConfig())
			broker.run(func() error {
				if err := broker.expectProtocolHeader(); err != nil {
					return err
				}
				err := broker.sendMethod(0, wire.CLASS_CONNECTION, wire.CONNECTION_START,
					wire.Fields{
						"version_major": uint8(0),
						"version_minor": uint8(9),
						"mechanisms":    "PLAIN",
						"locales":       "en_US",
					})
				if err != nil {
					return err
				}
				if _, err = broker.expectMethod(wire.CLASS_CONNECTION, wire.CONNECTION_START_OK); err != nil {
					return err
				}
				// Reply with open-ok where tune belongs.
				return broker.sendMethod(0, wire.CLASS_CONNECTION, wire.CONNECTION_OPEN_OK, nil)
			})

			err := sess.handshake()
			c.Expect(<-broker.Done, gs.IsNil)
			c.Assume(err, gs.Not(gs.IsNil))
			c.Expect(errors.Is(err, ErrUnexpectedFrame), gs.IsTrue)
			c.Expect(err.Error(), ts.StringContains, "waiting for connection.tune")
			c.Expect(sess.ChannelState(), gs.Equals, CLOSED)
			c.Expect(sess.ConnectionState(), gs.Equals, CLOSED)
			sess.Teardown(nil)
		})
	})
}

func FacadeSpec(c gs.Context) {
	c.Specify("The operation facade", func() {
		c.Specify("refuses operations before setup", func() {
			sess := NewSession(testConfig())
			_, err := sess.QueueDeclare("q", nil)
			c.Expect(err, gs.Equals, ErrNotInitialized)
			err = sess.BasicPublish([]byte("x"), nil)
			c.Expect(err, gs.Equals, ErrNotInitialized)
		})

		c.Specify("falls back to session options for queue names", func() {
			conf := testConfig()
			conf.Queue = "sessq"
			sess, conn := readySession(conf)

			opts := NewQueueOpts()
			opts.NoWait = true
			ok, err := sess.QueueDeclare("", opts)
			c.Assume(err, gs.IsNil)
			c.Expect(ok.Queue, gs.Equals, "sessq")

			frame, err := wire.ReadFrame(conn.Buffer)
			c.Assume(err, gs.IsNil)
			mf := frame.(*wire.MethodFrame)
			c.Expect(mf.Name(), gs.Equals, "queue.declare")
			c.Expect(mf.ChannelId, gs.Equals, uint16(1))
			c.Expect(mf.Fields.String("queue"), gs.Equals, "sessq")
			c.Expect(mf.Fields.Bool("auto_delete"), gs.IsTrue)
			c.Expect(mf.Fields.Bool("durable"), gs.IsFalse)
			c.Expect(mf.Fields.Bool("no_wait"), gs.IsTrue)
		})

		c.Specify("declares topic exchanges by default", func() {
			sess, conn := readySession(testConfig())
			opts := NewExchangeOpts()
			opts.NoWait = true
			err := sess.ExchangeDeclare("logs", opts)
			c.Assume(err, gs.IsNil)

			frame, err := wire.ReadFrame(conn.Buffer)
			c.Assume(err, gs.IsNil)
			mf := frame.(*wire.MethodFrame)
			c.Expect(mf.Name(), gs.Equals, "exchange.declare")
			c.Expect(mf.Fields.String("exchange"), gs.Equals, "logs")
			c.Expect(mf.Fields.String("type"), gs.Equals, "topic")
			c.Expect(mf.Fields.Bool("internal"), gs.IsFalse)
		})

		c.Specify("sends the session no-ack flag on basic.consume", func() {
			conf := testConfig()
			conf.NoAck = true
			sess, conn := readySession(conf)

			ok, err := sess.BasicConsume("q", &ConsumeOpts{NoWait: true})
			c.Assume(err, gs.IsNil)
			c.Expect(strings.HasPrefix(ok.ConsumerTag, "ctag-"), gs.IsTrue)

			frame, err := wire.ReadFrame(conn.Buffer)
			c.Assume(err, gs.IsNil)
			mf := frame.(*wire.MethodFrame)
			c.Expect(mf.Name(), gs.Equals, "basic.consume")
			c.Expect(mf.Fields.Bool("no_ack"), gs.IsTrue)
			c.Expect(mf.Fields.String("consumer_tag"), gs.Equals, ok.ConsumerTag)
		})

		c.Specify("deletes exchanges only if unused by default", func() {
			sess, conn := readySession(testConfig())
			opts := NewExchangeDeleteOpts()
			opts.NoWait = true
			err := sess.ExchangeDelete("logs", opts)
			c.Assume(err, gs.IsNil)

			frame, err := wire.ReadFrame(conn.Buffer)
			c.Assume(err, gs.IsNil)
			mf := frame.(*wire.MethodFrame)
			c.Expect(mf.Name(), gs.Equals, "exchange.delete")
			c.Expect(mf.Fields.Bool("if_unused"), gs.IsTrue)

			// Queue deletion defaults the other way.
			_, err = sess.QueueDelete("q", &QueueDeleteOpts{NoWait: true})
			c.Assume(err, gs.IsNil)
			frame, err = wire.ReadFrame(conn.Buffer)
			c.Assume(err, gs.IsNil)
			mf = frame.(*wire.MethodFrame)
			c.Expect(mf.Name(), gs.Equals, "queue.delete")
			c.Expect(mf.Fields.Bool("if_unused"), gs.IsFalse)
			c.Expect(mf.Fields.Bool("if_empty"), gs.IsFalse)
		})

		c.Specify("publishes method, header and body with no reply", func() {
			sess, conn := readySession(testConfig())
			opts := &PublishOpts{Exchange: "e", RoutingKey: "k"}
			err := sess.BasicPublish([]byte("xy"), opts)
			c.Assume(err, gs.IsNil)

			frame, err := wire.ReadFrame(conn.Buffer)
			c.Assume(err, gs.IsNil)
			mf := frame.(*wire.MethodFrame)
			c.Expect(mf.Name(), gs.Equals, "basic.publish")
			c.Expect(mf.Fields.String("exchange"), gs.Equals, "e")
			c.Expect(mf.Fields.String("routing_key"), gs.Equals, "k")
			c.Expect(mf.Fields.Bool("mandatory"), gs.IsFalse)
			c.Expect(mf.Fields.Bool("immediate"), gs.IsFalse)

			frame, err = wire.ReadFrame(conn.Buffer)
			c.Assume(err, gs.IsNil)
			hf := frame.(*wire.HeaderFrame)
			c.Expect(hf.ClassId, gs.Equals, uint16(wire.CLASS_BASIC))
			c.Expect(hf.BodySize, gs.Equals, uint64(2))
			c.Expect(hf.Properties.ContentType, gs.Equals, "")

			frame, err = wire.ReadFrame(conn.Buffer)
			c.Assume(err, gs.IsNil)
			bf := frame.(*wire.BodyFrame)
			c.Expect(string(bf.Payload), gs.Equals, "xy")

			// Exactly three frames, nothing awaited.
			c.Expect(conn.Buffer.Len(), gs.Equals, 0)
		})

		c.Specify("splits bodies larger than the negotiated frame size", func() {
			sess, conn := readySession(testConfig())
			sess.FrameMax = wire.FRAME_OVERHEAD + 4

			err := sess.BasicPublish([]byte("0123456789"), nil)
			c.Assume(err, gs.IsNil)

			// method and header first
			_, err = wire.ReadFrame(conn.Buffer)
			c.Assume(err, gs.IsNil)
			_, err = wire.ReadFrame(conn.Buffer)
			c.Assume(err, gs.IsNil)

			var chunks []string
			for conn.Buffer.Len() > 0 {
				frame, err := wire.ReadFrame(conn.Buffer)
				c.Assume(err, gs.IsNil)
				chunks = append(chunks, string(frame.(*wire.BodyFrame).Payload))
			}
			c.Expect(len(chunks), gs.Equals, 3)
			c.Expect(chunks[0], gs.Equals, "0123")
			c.Expect(chunks[1], gs.Equals, "4567")
			c.Expect(chunks[2], gs.Equals, "89")
		})
	})
}

func ConsumeLoopSpec(c gs.Context) {
	c.Specify("The consume loop", func() {
		c.Specify("delivers one message and acks it", func() {
			conf := testConfig()
			var bodies []string
			var contentTypes []string
			conf.Callback = func(delivery *Delivery) error {
				bodies = append(bodies, string(delivery.Body))
				contentTypes = append(contentTypes, delivery.Properties.ContentType)
				return nil
			}
			sess, broker := newTestSession(conf)
			stop := make(chan interface{})

			broker.run(func() error {
				if _, _, err := broker.handshake(2047, 131072); err != nil {
					return err
				}
				if err := broker.serveConsumeSetup(1, "q"); err != nil {
					return err
				}
				if err := broker.deliver(1, 1, "hello"); err != nil {
					return err
				}
				ack, err := broker.expectMethod(wire.CLASS_BASIC, wire.BASIC_ACK)
				if err != nil {
					return err
				}
				if tag := ack.Fields.Uint64("delivery_tag"); tag != 1 {
					return fmt.Errorf("acked tag %d", tag)
				}
				if ack.Fields.Bool("multiple") {
					return fmt.Errorf("ack had multiple set")
				}
				close(stop)
				return broker.serveTeardown(1)
			})

			err := sess.handshake()
			c.Assume(err, gs.IsNil)
			err = sess.PrepareToConsume()
			c.Assume(err, gs.IsNil)
			c.Expect(sess.ConsumerTag, gs.Equals, "ctag-test")

			err = sess.Consume(stop)
			c.Expect(err, gs.Equals, ErrExiting)
			c.Expect(<-broker.Done, gs.IsNil)

			c.Expect(len(bodies), gs.Equals, 1)
			c.Expect(bodies[0], gs.Equals, "hello")
			c.Expect(contentTypes[0], gs.Equals, "text/plain")
			c.Expect(sess.ChannelState(), gs.Equals, CLOSED)
			c.Expect(sess.ConnectionState(), gs.Equals, CLOSED)

			// A second teardown is a no-op.
			sess.Teardown(nil)
			c.Expect(sess.ChannelState(), gs.Equals, CLOSED)
		})

		c.Specify("assembles bodies spanning multiple frames", func() {
			conf := testConfig()
			var bodies []string
			conf.Callback = func(delivery *Delivery) error {
				bodies = append(bodies, string(delivery.Body))
				return nil
			}
			sess, broker := newTestSession(conf)
			stop := make(chan interface{})

			broker.run(func() error {
				if _, _, err := broker.handshake(2047, 131072); err != nil {
					return err
				}
				if err := broker.serveConsumeSetup(1, "q"); err != nil {
					return err
				}
				err := broker.sendMethod(1, wire.CLASS_BASIC, wire.BASIC_DELIVER, wire.Fields{
					"consumer_tag": "ctag-test",
					"delivery_tag": uint64(4),
					"routing_key":  "q",
				})
				if err != nil {
					return err
				}
				err = wire.WriteFrame(broker.conn, &wire.HeaderFrame{
					ChannelId: 1,
					ClassId:   wire.CLASS_BASIC,
					BodySize:  10,
				})
				if err != nil {
					return err
				}
				for _, chunk := range []string{"hello", "world"} {
					err = wire.WriteFrame(broker.conn, &wire.BodyFrame{
						ChannelId: 1,
						Payload:   []byte(chunk),
					})
					if err != nil {
						return err
					}
				}
				ack, err := broker.expectMethod(wire.CLASS_BASIC, wire.BASIC_ACK)
				if err != nil {
					return err
				}
				if tag := ack.Fields.Uint64("delivery_tag"); tag != 4 {
					return fmt.Errorf("acked tag %d", tag)
				}
				close(stop)
				return broker.serveTeardown(1)
			})

			err := sess.handshake()
			c.Assume(err, gs.IsNil)
			err = sess.PrepareToConsume()
			c.Assume(err, gs.IsNil)

			err = sess.Consume(stop)
			c.Expect(err, gs.Equals, ErrExiting)
			c.Expect(<-broker.Done, gs.IsNil)

			c.Expect(len(bodies), gs.Equals, 1)
			c.Expect(bodies[0], gs.Equals, "helloworld")
		})

		c.Specify("dispatches empty bodies without waiting for body frames", func() {
			conf := testConfig()
			calls := 0
			conf.Callback = func(delivery *Delivery) error {
				calls++
				if len(delivery.Body) != 0 {
					return fmt.Errorf("unexpected body")
				}
				return nil
			}
			sess, broker := newTestSession(conf)
			stop := make(chan interface{})

			broker.run(func() error {
				if _, _, err := broker.handshake(2047, 131072); err != nil {
					return err
				}
				if err := broker.serveConsumeSetup(1, "q"); err != nil {
					return err
				}
				err := broker.sendMethod(1, wire.CLASS_BASIC, wire.BASIC_DELIVER, wire.Fields{
					"consumer_tag": "ctag-test",
					"delivery_tag": uint64(2),
					"routing_key":  "q",
				})
				if err != nil {
					return err
				}
				err = wire.WriteFrame(broker.conn, &wire.HeaderFrame{
					ChannelId: 1,
					ClassId:   wire.CLASS_BASIC,
					BodySize:  0,
				})
				if err != nil {
					return err
				}
				if _, err = broker.expectMethod(wire.CLASS_BASIC, wire.BASIC_ACK); err != nil {
					return err
				}
				close(stop)
				return broker.serveTeardown(1)
			})

			err := sess.handshake()
			c.Assume(err, gs.IsNil)
			err = sess.PrepareToConsume()
			c.Assume(err, gs.IsNil)

			err = sess.Consume(stop)
			c.Expect(err, gs.Equals, ErrExiting)
			c.Expect(<-broker.Done, gs.IsNil)
			c.Expect(calls, gs.Equals, 1)
		})

		c.Specify("nacks when the callback fails", func() {
			conf := testConfig()
			conf.Callback = func(delivery *Delivery) error {
				return fmt.Errorf("can't handle this")
			}
			sess, broker := newTestSession(conf)
			stop := make(chan interface{})

			broker.run(func() error {
				if _, _, err := broker.handshake(2047, 131072); err != nil {
					return err
				}
				if err := broker.serveConsumeSetup(1, "q"); err != nil {
					return err
				}
				if err := broker.deliver(1, 9, "boom"); err != nil {
					return err
				}
				nack, err := broker.expectMethod(wire.CLASS_BASIC, wire.BASIC_NACK)
				if err != nil {
					return err
				}
				if !nack.Fields.Bool("requeue") {
					return fmt.Errorf("nack did not requeue")
				}
				if tag := nack.Fields.Uint64("delivery_tag"); tag != 9 {
					return fmt.Errorf("nacked tag %d", tag)
				}
				close(stop)
				return broker.serveTeardown(1)
			})

			err := sess.handshake()
			c.Assume(err, gs.IsNil)
			err = sess.PrepareToConsume()
			c.Assume(err, gs.IsNil)

			// The loop survives the callback failure.
			err = sess.Consume(stop)
			c.Expect(err, gs.Equals, ErrExiting)
			c.Expect(<-broker.Done, gs.IsNil)
		})

		c.Specify("transitions to close-wait on a peer channel close", func() {
			conf := testConfig()
			conf.Callback = func(delivery *Delivery) error { return nil }
			sess, broker := newTestSession(conf)
			stop := make(chan interface{})

			broker.run(func() error {
				if _, _, err := broker.handshake(2047, 131072); err != nil {
					return err
				}
				if err := broker.serveConsumeSetup(1, "q"); err != nil {
					return err
				}
				if err := broker.deliver(1, 1, "hello"); err != nil {
					return err
				}
				if _, err := broker.expectMethod(wire.CLASS_BASIC, wire.BASIC_ACK); err != nil {
					return err
				}
				err := broker.sendMethod(1, wire.CLASS_CHANNEL, wire.CHANNEL_CLOSE, wire.Fields{
					"reply_code": uint16(404),
					"reply_text": "not found",
				})
				if err != nil {
					return err
				}
				// Teardown must answer with channel.close-ok, then close
				// the connection it still owns.
				if _, err = broker.expectMethod(wire.CLASS_CHANNEL, wire.CHANNEL_CLOSE_OK); err != nil {
					return err
				}
				if _, err = broker.expectMethod(wire.CLASS_CONNECTION, wire.CONNECTION_CLOSE); err != nil {
					return err
				}
				return broker.sendMethod(0, wire.CLASS_CONNECTION, wire.CONNECTION_CLOSE_OK, nil)
			})

			err := sess.handshake()
			c.Assume(err, gs.IsNil)
			err = sess.PrepareToConsume()
			c.Assume(err, gs.IsNil)

			err = sess.Consume(stop)
			c.Expect(err, gs.IsNil)
			c.Expect(<-broker.Done, gs.IsNil)
			c.Expect(sess.ChannelState(), gs.Equals, CLOSED)
			c.Expect(sess.ConnectionState(), gs.Equals, CLOSED)
		})

		c.Specify("answers a peer connection close and stops", func() {
			conf := testConfig()
			conf.Callback = func(delivery *Delivery) error { return nil }
			sess, broker := newTestSession(conf)
			stop := make(chan interface{})

			broker.run(func() error {
				if _, _, err := broker.handshake(2047, 131072); err != nil {
					return err
				}
				if err := broker.serveConsumeSetup(1, "q"); err != nil {
					return err
				}
				err := broker.sendMethod(0, wire.CLASS_CONNECTION, wire.CONNECTION_CLOSE, wire.Fields{
					"reply_code": uint16(320),
					"reply_text": "shutting down",
				})
				if err != nil {
					return err
				}
				_, err = broker.expectMethod(wire.CLASS_CONNECTION, wire.CONNECTION_CLOSE_OK)
				return err
			})

			err := sess.handshake()
			c.Assume(err, gs.IsNil)
			err = sess.PrepareToConsume()
			c.Assume(err, gs.IsNil)

			err = sess.Consume(stop)
			c.Expect(err, gs.IsNil)
			c.Expect(<-broker.Done, gs.IsNil)
			c.Expect(sess.ChannelState(), gs.Equals, CLOSED)
			c.Expect(sess.ConnectionState(), gs.Equals, CLOSED)
		})
	})
}

func HeartbeatSpec(c gs.Context) {
	c.Specify("The heartbeat miss window", func() {
		c.Specify("counts misses in the low window bits", func() {
			sess, _ := readySession(testConfig())

			sess.missBitmap = 0x0F // 4 misses
			c.Expect(sess.timedout(), gs.IsTrue)

			sess.missBitmap = 0x0B // 3 misses
			c.Expect(sess.timedout(), gs.IsFalse)

			// Bits above the window are ignored.
			sess.missBitmap = 0xE7 // low 5: 00111
			c.Expect(sess.timedout(), gs.IsFalse)

			sess.missBitmap = 0xFF
			c.Expect(sess.timedout(), gs.IsTrue)
		})

		c.Specify("records a miss and heartbeats once per expired interval", func() {
			sess, conn := readySession(testConfig())
			interval := 50 * time.Millisecond

			for i := 1; i <= 3; i++ {
				sess.lastActivity = time.Now().Add(-time.Second)
				c.Expect(sess.heartbeatExpired(interval), gs.IsFalse)
			}
			sess.lastActivity = time.Now().Add(-time.Second)
			c.Expect(sess.heartbeatExpired(interval), gs.IsTrue)
			c.Expect(sess.missBitmap, gs.Equals, uint32(0x0F))

			// One heartbeat frame sent per miss.
			count := 0
			for conn.Buffer.Len() > 0 {
				frame, err := wire.ReadFrame(conn.Buffer)
				c.Assume(err, gs.IsNil)
				_, ok := frame.(*wire.HeartbeatFrame)
				c.Expect(ok, gs.IsTrue)
				count++
			}
			c.Expect(count, gs.Equals, 4)
		})

		c.Specify("a fresh read inside the interval is not a miss", func() {
			sess, _ := readySession(testConfig())
			sess.lastActivity = time.Now()
			c.Expect(sess.heartbeatExpired(time.Minute), gs.IsFalse)
			c.Expect(sess.missBitmap, gs.Equals, uint32(0))
		})

		c.Specify("a silent peer times the consume loop out", func() {
			conf := testConfig()
			conf.Heartbeat = 1
			conf.ReadTimeout = 1100
			conf.Callback = func(delivery *Delivery) error { return nil }
			sess, broker := newTestSession(conf)
			stop := make(chan interface{})

			heartbeats := 0
			broker.run(func() error {
				if _, _, err := broker.handshake(2047, 131072); err != nil {
					return err
				}
				if err := broker.serveConsumeSetup(1, "q"); err != nil {
					return err
				}
				// Send nothing; drain what the client sends and answer
				// only its teardown.
				for {
					frame, err := broker.readFrame()
					if err != nil {
						return fmt.Errorf("reading during silence: %s", err)
					}
					switch f := frame.(type) {
					case *wire.HeartbeatFrame:
						heartbeats++
					case *wire.MethodFrame:
						switch {
						case f.ClassId == wire.CLASS_CHANNEL && f.MethodId == wire.CHANNEL_CLOSE:
							err = broker.sendMethod(f.ChannelId, wire.CLASS_CHANNEL,
								wire.CHANNEL_CLOSE_OK, nil)
						case f.ClassId == wire.CLASS_CONNECTION && f.MethodId == wire.CONNECTION_CLOSE:
							return broker.sendMethod(0, wire.CLASS_CONNECTION,
								wire.CONNECTION_CLOSE_OK, nil)
						}
						if err != nil {
							return err
						}
					}
				}
			})

			err := sess.handshake()
			c.Assume(err, gs.IsNil)
			err = sess.PrepareToConsume()
			c.Assume(err, gs.IsNil)

			// Shrink the window so the spec stays fast.
			sess.hbWindow = 2
			sess.hbThreshold = 2

			err = sess.Consume(stop)
			c.Expect(err, gs.Equals, ErrHeartbeatTimeout)
			c.Expect(<-broker.Done, gs.IsNil)
			c.Expect(heartbeats >= 2, gs.IsTrue)
			c.Expect(sess.ChannelState(), gs.Equals, CLOSED)
			c.Expect(sess.ConnectionState(), gs.Equals, CLOSED)
		})
	})
}
