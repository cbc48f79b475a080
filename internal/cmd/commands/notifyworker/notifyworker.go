package notifyworker

import (
	"flag"
	"fmt"

	"github.com/hashicorp-forge/doccontrol/internal/cmd/base"
	"github.com/hashicorp-forge/doccontrol/internal/config"
	"github.com/hashicorp-forge/doccontrol/pkg/notifications"
)

type Command struct {
	*base.Command

	flagConfig string
}

func (c *Command) Synopsis() string {
	return "Consume and deliver document notifications"
}

func (c *Command) Help() string {
	return `Usage: doccontrol notify-worker -config=<file>

  This command joins the notification consumer group configured in the
  notifications block and delivers every notification published by the
  engine. Offsets are committed only after delivery succeeds.` + c.Flags().Help()
}

func (c *Command) Flags() *base.FlagSet {
	f := base.NewFlagSet(flag.NewFlagSet("notify-worker", flag.ContinueOnError))
	f.StringVar(&c.flagConfig, "config", "", "(Required) Path to doccontrol config file")
	return f
}

func (c *Command) Run(args []string) int {
	ui := c.UI

	flags := c.Flags()
	if err := flags.Parse(args); err != nil {
		ui.Error(fmt.Sprintf("error parsing flags: %v", err))
		return 1
	}
	if c.flagConfig == "" {
		ui.Error("config flag is required")
		return 1
	}

	cfg, err := config.Load(c.flagConfig)
	if err != nil {
		ui.Error(fmt.Sprintf("error parsing config file: %v", err))
		return 1
	}
	n := cfg.Notifications
	if n == nil {
		ui.Error("notify-worker requires a notifications block in the configuration")
		return 1
	}

	types := make([]notifications.NotificationType, len(n.Types))
	for i, t := range n.Types {
		types[i] = notifications.NotificationType(t)
	}

	consumer, err := notifications.NewConsumer(notifications.ConsumerConfig{
		Brokers: n.Brokers,
		Topic:   n.Topic,
		Group:   n.ConsumerGroup,
		Types:   types,
		Logger:  c.Log,
	}, notifications.NewLogNotifier(c.Log))
	if err != nil {
		ui.Error(fmt.Sprintf("error creating consumer: %v", err))
		return 1
	}
	defer consumer.Close()

	ctx, cancel := c.SignalContext()
	defer cancel()

	ui.Info(fmt.Sprintf("Consuming %s as %s", n.Topic, n.ConsumerGroup))
	if err := consumer.Run(ctx); err != nil {
		ui.Error(fmt.Sprintf("consumer failed: %v", err))
		return 1
	}
	return 0
}
