package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/raventid/zaichik/pkg/client"
	"github.com/raventid/zaichik/pkg/protocol"
)

// Topic commands
var topicCmd = &cobra.Command{
	Use:   "topic",
	Short: "Manage broker topics",
}

var topicCreateCmd = &cobra.Command{
	Use:   "create NAME",
	Short: "Create a topic with explicit retention and compaction settings",
	Long: `Create a topic with explicit retention and compaction settings.

Examples:
  # One minute of retention, no compaction
  zaichik topic create prices --retention 60s

  # Retention and compaction
  zaichik topic create prices --retention 60s --compaction 60s`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		brokerAddr, _ := cmd.Flags().GetString("broker")
		retention, _ := cmd.Flags().GetDuration("retention")
		compaction, _ := cmd.Flags().GetDuration("compaction")

		c, err := client.Dial(brokerAddr)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.CreateTopic(args[0], retention, compaction); err != nil {
			if errors.Is(err, client.ErrTopicExists) {
				return fmt.Errorf("topic %q already exists; existing configuration stays in effect", args[0])
			}
			return err
		}
		fmt.Printf("Topic %q created\n", args[0])
		return nil
	},
}

var publishCmd = &cobra.Command{
	Use:   "publish TOPIC PAYLOAD",
	Short: "Publish a message to a topic",
	Long: `Publish a message to a topic, creating it with default configuration
(no retention, no compaction) if it does not exist.

Examples:
  zaichik publish events "deploy finished"
  zaichik publish prices --key BTC 64250`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		brokerAddr, _ := cmd.Flags().GetString("broker")
		key, _ := cmd.Flags().GetString("key")

		c, err := client.Dial(brokerAddr)
		if err != nil {
			return err
		}
		defer c.Close()

		if err := c.Publish(args[0], key, []byte(args[1])); err != nil {
			return err
		}
		fmt.Println("Published")
		return nil
	},
}

var subscribeCmd = &cobra.Command{
	Use:   "subscribe TOPIC...",
	Short: "Subscribe to topics and print messages as they arrive",
	Long: `Subscribe to one or more topics and print messages as they arrive.
Each message is committed as soon as it is printed. Stop with Ctrl-C.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		brokerAddr, _ := cmd.Flags().GetString("broker")

		c, err := client.Dial(brokerAddr)
		if err != nil {
			return err
		}
		defer c.Close()

		for _, name := range args {
			if err := c.Subscribe(name); err != nil {
				return err
			}
			fmt.Printf("Subscribed to %q\n", name)
		}

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		for {
			select {
			case <-sigCh:
				fmt.Println("\nBye")
				return nil
			case ev, ok := <-c.Events():
				if !ok {
					return errors.New("connection closed by broker")
				}
				switch e := ev.(type) {
				case protocol.Message:
					printMessage(e)
					if err := c.Commit(); err != nil {
						return err
					}
				case protocol.SubscriptionLagged:
					fmt.Printf("!! subscription to %q lagged and was dropped\n", e.Name)
				}
			}
		}
	},
}

func printMessage(m protocol.Message) {
	ts := m.PublishedAt.Format(time.RFC3339)
	if m.Key != "" {
		fmt.Printf("[%s] %s seq=%d key=%s %s\n", ts, m.Topic, m.Sequence, m.Key, m.Payload)
		return
	}
	fmt.Printf("[%s] %s seq=%d %s\n", ts, m.Topic, m.Sequence, m.Payload)
}

func init() {
	topicCreateCmd.Flags().String("broker", "localhost:8889", "Broker address")
	topicCreateCmd.Flags().Duration("retention", 0, "Retention TTL (0 disables retention)")
	topicCreateCmd.Flags().Duration("compaction", 0, "Compaction window (0 disables compaction)")
	topicCmd.AddCommand(topicCreateCmd)

	publishCmd.Flags().String("broker", "localhost:8889", "Broker address")
	publishCmd.Flags().String("key", "", "Compaction key (empty for none)")

	subscribeCmd.Flags().String("broker", "localhost:8889", "Broker address")
}
