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

The consume loop: a single threaded event interleaver that dispatches
assembled deliveries to the user callback, tracks peer liveness through
a windowed heartbeat miss estimator, and honors cooperative
cancellation. The loop exclusively owns the transport while running.

*/
package session

import (
	"errors"
	"fmt"
	"log"
	"math/bits"
	"net"
	"time"

	"github.com/mozilla-services/carrot/wire"
)

// Delivery is one assembled message handed to the callback. All fields
// are borrowed views owned by the loop.
type Delivery struct {
	Body       []byte
	Frame      wire.Fields
	Properties *wire.BasicProperties
}

// DeliveryTag is the per channel monotonic tag used for ack and nack.
func (d *Delivery) DeliveryTag() uint64 {
	return d.Frame.Uint64("delivery_tag")
}

// assembly is the method, header, body sequence state carried across
// loop iterations while one delivery arrives.
type assembly struct {
	deliver *wire.MethodFrame
	header  *wire.HeaderFrame
	body    []byte
}

func (a *assembly) reset() {
	a.deliver = nil
	a.header = nil
	a.body = nil
}

// complete reports whether every body byte the header promised has
// arrived.
func (a *assembly) complete() bool {
	return a.deliver != nil && a.header != nil &&
		uint64(len(a.body)) >= a.header.BodySize
}

// Consume runs the read/dispatch loop until a terminal condition, then
// tears the session down. A receive on stopChan requests cooperative
// exit. Read timeouts are not fatal, they drive the heartbeat
// scheduler; at least threshold missed intervals within the window is a dead
// peer.
func (s *Session) Consume(stopChan chan interface{}) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	if s.conf.Callback == nil {
		return fmt.Errorf("no callback configured")
	}

	err := s.consumeLoop(stopChan)
	s.Teardown(nil)
	return err
}

func (s *Session) consumeLoop(stopChan chan interface{}) error {
	var pending assembly
	interval := time.Duration(s.Heartbeat) * time.Second
	s.lastActivity = time.Now()
	s.missBitmap = 0

	for {
		select {
		case <-stopChan:
			return ErrExiting
		default:
		}

		frame, err := s.consumeFrame()
		if err != nil {
			var nerr net.Error
			if errors.As(err, &nerr) && nerr.Timeout() {
				if s.heartbeatExpired(interval) {
					return ErrHeartbeatTimeout
				}
				continue
			}
			s.SetState(CLOSED, CLOSED)
			return fmt.Errorf("transport read: %s", err)
		}

		switch f := frame.(type) {
		case *wire.MethodFrame:
			switch {
			case f.ClassId == wire.CLASS_CHANNEL && f.MethodId == wire.CHANNEL_CLOSE:
				log.Printf("carrot: channel closed by peer: %d %s\n",
					f.Fields.Uint16("reply_code"), f.Fields.String("reply_text"))
				s.SetState(CLOSE_WAIT, s.connectionState)
				return nil
			case f.ClassId == wire.CLASS_CONNECTION && f.MethodId == wire.CONNECTION_CLOSE:
				log.Printf("carrot: connection closed by peer: %d %s\n",
					f.Fields.Uint16("reply_code"), f.Fields.String("reply_text"))
				s.SetState(CLOSED, CLOSE_WAIT)
				return nil
			case f.ClassId == wire.CLASS_BASIC && f.MethodId == wire.BASIC_DELIVER:
				pending.deliver = f
			default:
				log.Printf("carrot: ignoring unexpected %s\n", f.Name())
			}

		case *wire.HeaderFrame:
			pending.header = f
			pending.body = nil
			// An empty body never produces a body frame.
			if pending.complete() {
				if err = s.finishDelivery(&pending); err != nil {
					return err
				}
			}

		case *wire.BodyFrame:
			if pending.header == nil {
				log.Printf("carrot: ignoring body frame without header\n")
				continue
			}
			pending.body = append(pending.body, f.Payload...)
			if pending.complete() {
				if err = s.finishDelivery(&pending); err != nil {
					return err
				}
			}

		case *wire.HeartbeatFrame:
			s.lastActivity = time.Now()
			s.missBitmap = 0
		}
	}
}

// heartbeatExpired is called on every read timeout. When a full
// heartbeat interval has elapsed without peer activity it records the
// miss, sends our own heartbeat, and reports whether the miss window
// has filled.
func (s *Session) heartbeatExpired(interval time.Duration) bool {
	if interval <= 0 {
		return false
	}
	now := time.Now()
	if now.Sub(s.lastActivity) <= interval {
		return false
	}
	s.missBitmap = s.missBitmap<<1 | 1
	s.lastActivity = now
	if err := s.sendFrame(&wire.HeartbeatFrame{}); err != nil {
		log.Printf("carrot: heartbeat send: %s\n", err)
	}
	return s.timedout()
}

// timedout counts the misses in the low window bits of the miss bitmap.
func (s *Session) timedout() bool {
	window := s.missBitmap & (1<<s.hbWindow - 1)
	return uint(bits.OnesCount32(window)) >= s.hbThreshold
}

// finishDelivery invokes the callback with the assembled delivery, acks
// or nacks it unless no-ack is configured, and clears the assembly
// state. Callback failures are contained: they nack the delivery and
// the loop continues.
func (s *Session) finishDelivery(pending *assembly) error {
	delivery := &Delivery{
		Body:       pending.body,
		Frame:      pending.deliver.Fields,
		Properties: &pending.header.Properties,
	}
	cbErr := s.invokeCallback(delivery)
	if cbErr != nil {
		log.Printf("carrot: callback: %s\n", cbErr)
	}

	var err error
	if !s.conf.NoAck {
		tag := delivery.DeliveryTag()
		if cbErr != nil {
			err = s.BasicNack(tag, false)
		} else {
			err = s.BasicAck(tag, false)
		}
	}
	pending.reset()
	return err
}

func (s *Session) invokeCallback(delivery *Delivery) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("callback panic: %v", r)
		}
	}()
	return s.conf.Callback(delivery)
}
