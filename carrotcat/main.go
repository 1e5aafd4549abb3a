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

Carrotcat client.

Consumes messages from an AMQP broker to stdout, or publishes messages
to one, depending on the configured role. Used for exercising brokers
and carrot itself end to end.

*/
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/rafrombrc/go-notify"

	"github.com/mozilla-services/carrot/session"
)

// Control channel event type used by go-notify.
const STOP = "stop"

func main() {
	configFile := flag.String("config", "/etc/carrotcat.toml", "Config file")
	payload := flag.String("payload", "", "Publish this payload instead of reading stdin")
	version := flag.Bool("version", false, "Output version and exit")
	flag.Parse()

	if *version {
		fmt.Println(session.VERSION)
		os.Exit(0)
	}

	conf := session.NewConfig()
	if _, err := toml.DecodeFile(*configFile, conf); err != nil {
		log.Fatal("Error reading config: ", err)
	}

	sess := session.NewSession(conf)
	if err := sess.Setup(); err != nil {
		log.Fatal("Setup failed: ", err)
	}
	log.Printf("Connected to %s:%d vhost %s\n", conf.Host, conf.Port,
		conf.VirtualHost)

	var err error
	switch conf.Role {
	case "consumer":
		err = consume(sess, conf)
	case "publisher":
		err = publish(sess, conf, *payload)
	default:
		sess.Teardown(nil)
		log.Fatalf("Unknown role: %s", conf.Role)
	}
	if err != nil {
		log.Fatal(err)
	}
}

func consume(sess *session.Session, conf *session.Config) error {
	conf.Callback = func(delivery *session.Delivery) error {
		fmt.Println(string(delivery.Body))
		return nil
	}

	if err := sess.PrepareToConsume(); err != nil {
		sess.Teardown(nil)
		return fmt.Errorf("consume setup failed: %s", err)
	}
	log.Printf("Consuming from queue %s\n", conf.Queue)

	stopChan := make(chan interface{}, 1)
	notify.Start(STOP, stopChan)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGHUP)
	go func() {
		<-sigChan
		notify.Post(STOP, nil)
	}()

	err := sess.Consume(stopChan)
	if err == session.ErrExiting {
		log.Println("Shutdown requested, exiting")
		return nil
	}
	return err
}

func publish(sess *session.Session, conf *session.Config, payload string) error {
	defer sess.Teardown(nil)

	if payload != "" {
		if err := sess.BasicPublish([]byte(payload), nil); err != nil {
			return err
		}
		log.Println("Published 1 message")
		return nil
	}

	count := 0
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := sess.BasicPublish(scanner.Bytes(), nil); err != nil {
			return err
		}
		count++
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	log.Printf("Published %d messages\n", count)
	return nil
}
