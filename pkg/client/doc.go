/*
Package client provides a Go client for the Zaichik wire protocol.

A Client multiplexes one TCP connection: command methods (CreateTopic,
Subscribe, Unsubscribe, Publish, Commit, Close) each exchange one command
frame for one response frame, while unsolicited Message and
SubscriptionLagged events arrive on the Events channel.

The broker delivers one Message at a time; call Commit after handling each
one to receive the next:

	c, err := client.Dial("localhost:8889")
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.Subscribe("orders"); err != nil {
		return err
	}
	for ev := range c.Events() {
		switch e := ev.(type) {
		case protocol.Message:
			handle(e)
			if err := c.Commit(); err != nil {
				return err
			}
		case protocol.SubscriptionLagged:
			// Fell behind; resubscribe if the live stream still matters.
		}
	}
*/
package client
