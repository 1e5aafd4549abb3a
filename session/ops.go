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

One-shot operations against the open channel. Each builds a single
method frame and, unless the no-wait flag was requested, blocks for the
matching -ok reply.

*/
package session

import (
	"fmt"

	"github.com/mozilla-services/carrot/wire"
	"github.com/pborman/uuid"
)

// QueueDeclareOk is the server reply to queue.declare.
type QueueDeclareOk struct {
	Queue         string
	MessageCount  uint32
	ConsumerCount uint32
}

// QueueDeleteOk is the server reply to queue.delete.
type QueueDeleteOk struct {
	MessageCount uint32
}

// ConsumeOk is the server reply to basic.consume.
type ConsumeOk struct {
	ConsumerTag string
}

func (s *Session) checkReady() error {
	if !s.initialized || s.channelState != ESTABLISHED {
		return ErrNotInitialized
	}
	return nil
}

// QueueDeclare declares a queue. An empty name falls back to the
// session queue option.
func (s *Session) QueueDeclare(queue string, opts *QueueOpts) (*QueueDeclareOk, error) {
	if err := s.checkReady(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = NewQueueOpts()
	}
	name := pickString(queue, s.conf.Queue, "")
	frame := &wire.MethodFrame{
		ChannelId: s.ChannelId,
		ClassId:   wire.CLASS_QUEUE,
		MethodId:  wire.QUEUE_DECLARE,
		Fields: wire.Fields{
			"queue":       name,
			"passive":     opts.Passive,
			"durable":     opts.Durable,
			"exclusive":   opts.Exclusive,
			"auto_delete": opts.AutoDelete,
			"no_wait":     opts.NoWait,
			"arguments":   opts.Arguments,
		},
	}
	if opts.NoWait {
		if err := s.sendFrame(frame); err != nil {
			return nil, err
		}
		return &QueueDeclareOk{Queue: name}, nil
	}
	reply, err := s.wireMethod(frame)
	if err != nil {
		return nil, err
	}
	return &QueueDeclareOk{
		Queue:         reply.Fields.String("queue"),
		MessageCount:  reply.Fields.Uint32("message_count"),
		ConsumerCount: reply.Fields.Uint32("consumer_count"),
	}, nil
}

// QueueBind binds a queue to an exchange.
func (s *Session) QueueBind(queue, exchange string, opts *BindOpts) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	if opts == nil {
		opts = new(BindOpts)
	}
	frame := &wire.MethodFrame{
		ChannelId: s.ChannelId,
		ClassId:   wire.CLASS_QUEUE,
		MethodId:  wire.QUEUE_BIND,
		Fields: wire.Fields{
			"queue":       pickString(queue, s.conf.Queue, ""),
			"exchange":    pickString(exchange, s.conf.Exchange, ""),
			"routing_key": pickString(opts.RoutingKey, s.conf.RoutingKey, ""),
			"no_wait":     opts.NoWait,
			"arguments":   opts.Arguments,
		},
	}
	if opts.NoWait {
		return s.sendFrame(frame)
	}
	_, err := s.wireMethod(frame)
	return err
}

// QueueUnbind removes a queue binding. The grammar has no no-wait flag
// here; the reply is always consumed.
func (s *Session) QueueUnbind(queue, exchange string, opts *BindOpts) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	if opts == nil {
		opts = new(BindOpts)
	}
	frame := &wire.MethodFrame{
		ChannelId: s.ChannelId,
		ClassId:   wire.CLASS_QUEUE,
		MethodId:  wire.QUEUE_UNBIND,
		Fields: wire.Fields{
			"queue":       pickString(queue, s.conf.Queue, ""),
			"exchange":    pickString(exchange, s.conf.Exchange, ""),
			"routing_key": pickString(opts.RoutingKey, s.conf.RoutingKey, ""),
			"arguments":   opts.Arguments,
		},
	}
	_, err := s.wireMethod(frame)
	return err
}

// QueueDelete deletes a queue, returning the count of messages it held.
func (s *Session) QueueDelete(queue string, opts *QueueDeleteOpts) (*QueueDeleteOk, error) {
	if err := s.checkReady(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = new(QueueDeleteOpts)
	}
	frame := &wire.MethodFrame{
		ChannelId: s.ChannelId,
		ClassId:   wire.CLASS_QUEUE,
		MethodId:  wire.QUEUE_DELETE,
		Fields: wire.Fields{
			"queue":     pickString(queue, s.conf.Queue, ""),
			"if_unused": opts.IfUnused,
			"if_empty":  opts.IfEmpty,
			"no_wait":   opts.NoWait,
		},
	}
	if opts.NoWait {
		if err := s.sendFrame(frame); err != nil {
			return nil, err
		}
		return &QueueDeleteOk{}, nil
	}
	reply, err := s.wireMethod(frame)
	if err != nil {
		return nil, err
	}
	return &QueueDeleteOk{MessageCount: reply.Fields.Uint32("message_count")}, nil
}

// ExchangeDeclare declares an exchange, type "topic" unless overridden.
func (s *Session) ExchangeDeclare(exchange string, opts *ExchangeOpts) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	if opts == nil {
		opts = NewExchangeOpts()
	}
	frame := &wire.MethodFrame{
		ChannelId: s.ChannelId,
		ClassId:   wire.CLASS_EXCHANGE,
		MethodId:  wire.EXCHANGE_DECLARE,
		Fields: wire.Fields{
			"exchange":    pickString(exchange, s.conf.Exchange, ""),
			"type":        pickString(opts.Type, "", "topic"),
			"passive":     opts.Passive,
			"durable":     opts.Durable,
			"auto_delete": opts.AutoDelete,
			"internal":    opts.Internal,
			"no_wait":     opts.NoWait,
			"arguments":   opts.Arguments,
		},
	}
	if opts.NoWait {
		return s.sendFrame(frame)
	}
	_, err := s.wireMethod(frame)
	return err
}

// ExchangeBind binds destination to source.
func (s *Session) ExchangeBind(destination, source string, opts *BindOpts) error {
	return s.exchangeBinding(wire.EXCHANGE_BIND, destination, source, opts)
}

// ExchangeUnbind removes an exchange to exchange binding.
func (s *Session) ExchangeUnbind(destination, source string, opts *BindOpts) error {
	return s.exchangeBinding(wire.EXCHANGE_UNBIND, destination, source, opts)
}

func (s *Session) exchangeBinding(methodId uint16, destination, source string,
	opts *BindOpts) error {

	if err := s.checkReady(); err != nil {
		return err
	}
	if opts == nil {
		opts = new(BindOpts)
	}
	frame := &wire.MethodFrame{
		ChannelId: s.ChannelId,
		ClassId:   wire.CLASS_EXCHANGE,
		MethodId:  methodId,
		Fields: wire.Fields{
			"destination": destination,
			"source":      source,
			"routing_key": pickString(opts.RoutingKey, s.conf.RoutingKey, ""),
			"no_wait":     opts.NoWait,
			"arguments":   opts.Arguments,
		},
	}
	if opts.NoWait {
		return s.sendFrame(frame)
	}
	_, err := s.wireMethod(frame)
	return err
}

// ExchangeDelete deletes an exchange, by default only if unused.
func (s *Session) ExchangeDelete(exchange string, opts *ExchangeDeleteOpts) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	if opts == nil {
		opts = NewExchangeDeleteOpts()
	}
	frame := &wire.MethodFrame{
		ChannelId: s.ChannelId,
		ClassId:   wire.CLASS_EXCHANGE,
		MethodId:  wire.EXCHANGE_DELETE,
		Fields: wire.Fields{
			"exchange":  pickString(exchange, s.conf.Exchange, ""),
			"if_unused": opts.IfUnused,
			"no_wait":   opts.NoWait,
		},
	}
	if opts.NoWait {
		return s.sendFrame(frame)
	}
	_, err := s.wireMethod(frame)
	return err
}

// BasicQos bounds the number of unacked deliveries the server will push.
func (s *Session) BasicQos(prefetchCount uint16) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	frame := &wire.MethodFrame{
		ChannelId: s.ChannelId,
		ClassId:   wire.CLASS_BASIC,
		MethodId:  wire.BASIC_QOS,
		Fields: wire.Fields{
			"prefetch_count": prefetchCount,
		},
	}
	_, err := s.wireMethod(frame)
	return err
}

// BasicConsume starts a consumer on the queue. The no-ack flag sent on
// the wire is the session Config.NoAck value unless the per call option
// turns it on.
func (s *Session) BasicConsume(queue string, opts *ConsumeOpts) (*ConsumeOk, error) {
	if err := s.checkReady(); err != nil {
		return nil, err
	}
	if opts == nil {
		opts = new(ConsumeOpts)
	}
	tag := opts.ConsumerTag
	if tag == "" {
		tag = "ctag-" + uuid.New()
	}
	frame := &wire.MethodFrame{
		ChannelId: s.ChannelId,
		ClassId:   wire.CLASS_BASIC,
		MethodId:  wire.BASIC_CONSUME,
		Fields: wire.Fields{
			"queue":        pickString(queue, s.conf.Queue, ""),
			"consumer_tag": tag,
			"no_local":     opts.NoLocal,
			"no_ack":       s.conf.NoAck || opts.NoAck,
			"exclusive":    opts.Exclusive,
			"no_wait":      opts.NoWait,
			"arguments":    opts.Arguments,
		},
	}
	if opts.NoWait {
		if err := s.sendFrame(frame); err != nil {
			return nil, err
		}
		s.ConsumerTag = tag
		return &ConsumeOk{ConsumerTag: tag}, nil
	}
	reply, err := s.wireMethod(frame)
	if err != nil {
		return nil, err
	}
	s.ConsumerTag = reply.Fields.String("consumer_tag")
	return &ConsumeOk{ConsumerTag: s.ConsumerTag}, nil
}

// BasicCancel stops the named consumer, or the session's active one
// when tag is empty.
func (s *Session) BasicCancel(tag string, noWait bool) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	frame := &wire.MethodFrame{
		ChannelId: s.ChannelId,
		ClassId:   wire.CLASS_BASIC,
		MethodId:  wire.BASIC_CANCEL,
		Fields: wire.Fields{
			"consumer_tag": pickString(tag, s.ConsumerTag, ""),
			"no_wait":      noWait,
		},
	}
	if noWait {
		return s.sendFrame(frame)
	}
	_, err := s.wireMethod(frame)
	return err
}

// BasicPublish sends one message: a publish method frame, a content
// header, and as many body frames as the negotiated frame size
// requires. No reply is awaited.
func (s *Session) BasicPublish(payload []byte, opts *PublishOpts) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	if opts == nil {
		opts = new(PublishOpts)
	}
	s.setOngoing(wire.CLASS_BASIC, wire.BASIC_PUBLISH)

	frame := &wire.MethodFrame{
		ChannelId: s.ChannelId,
		ClassId:   wire.CLASS_BASIC,
		MethodId:  wire.BASIC_PUBLISH,
		Fields: wire.Fields{
			"exchange":    pickString(opts.Exchange, s.conf.Exchange, ""),
			"routing_key": pickString(opts.RoutingKey, s.conf.RoutingKey, ""),
			"mandatory":   opts.Mandatory,
			"immediate":   opts.Immediate,
		},
	}
	if err := s.sendFrame(frame); err != nil {
		return err
	}

	header := &wire.HeaderFrame{
		ChannelId: s.ChannelId,
		ClassId:   wire.CLASS_BASIC,
		BodySize:  uint64(len(payload)),
	}
	if opts.Properties != nil {
		header.Properties = *opts.Properties
	}
	if err := s.sendFrame(header); err != nil {
		return err
	}

	// Body payloads may not exceed the negotiated frame size less the
	// framing overhead.
	max := len(payload)
	if s.FrameMax > 0 {
		max = int(s.FrameMax) - wire.FRAME_OVERHEAD
	}
	for sent := 0; sent < len(payload); sent += max {
		end := sent + max
		if end > len(payload) {
			end = len(payload)
		}
		body := &wire.BodyFrame{ChannelId: s.ChannelId, Payload: payload[sent:end]}
		if err := s.sendFrame(body); err != nil {
			return err
		}
	}
	return nil
}

// BasicAck acknowledges one delivery.
func (s *Session) BasicAck(deliveryTag uint64, multiple bool) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	return s.sendFrame(&wire.MethodFrame{
		ChannelId: s.ChannelId,
		ClassId:   wire.CLASS_BASIC,
		MethodId:  wire.BASIC_ACK,
		Fields: wire.Fields{
			"delivery_tag": deliveryTag,
			"multiple":     multiple,
		},
	})
}

// BasicNack rejects one delivery, requeueing it.
func (s *Session) BasicNack(deliveryTag uint64, multiple bool) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	return s.sendFrame(&wire.MethodFrame{
		ChannelId: s.ChannelId,
		ClassId:   wire.CLASS_BASIC,
		MethodId:  wire.BASIC_NACK,
		Fields: wire.Fields{
			"delivery_tag": deliveryTag,
			"multiple":     multiple,
			"requeue":      true,
		},
	})
}

// PrepareToConsume declares the configured queue, binds it when an
// exchange is configured, applies any prefetch bound, and starts the
// consumer. Failures are returned unchanged.
func (s *Session) PrepareToConsume() error {
	if err := s.checkReady(); err != nil {
		return err
	}
	if s.conf.Queue == "" {
		return fmt.Errorf("consumer role requires a queue name")
	}
	if _, err := s.QueueDeclare(s.conf.Queue, nil); err != nil {
		return err
	}
	// The default exchange routes by queue name, it cannot be bound to.
	if s.conf.Exchange != "" {
		if err := s.QueueBind(s.conf.Queue, s.conf.Exchange, nil); err != nil {
			return err
		}
	}
	if s.conf.PrefetchCount > 0 {
		if err := s.BasicQos(s.conf.PrefetchCount); err != nil {
			return err
		}
	}
	_, err := s.BasicConsume(s.conf.Queue, nil)
	return err
}
