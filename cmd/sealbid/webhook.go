package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

var addwebhook = cli.Command{
	Name:  "addwebhook",
	Usage: "add a webhook registered for some event",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "endpoint",
			Usage: "the endpoint where to notify the webhook",
			Value: "",
		},
		&cli.StringFlag{
			Name:  "secret",
			Usage: "the eventual secret to authenticate requests",
			Value: "",
		},
		&cli.StringFlag{
			Name:  "topic",
			Usage: "the topic for which the webhook gets notified",
		},
	},
	Action: addWebhookAction,
}

func addWebhookAction(ctx *cli.Context) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	reply := map[string]string{}
	if err := client.post("/v1/webhooks", map[string]string{
		"topic":    ctx.String("topic"),
		"endpoint": ctx.String("endpoint"),
		"secret":   ctx.String("secret"),
	}, &reply); err != nil {
		return err
	}

	fmt.Println()
	fmt.Println("hook id:", reply["id"])
	return nil
}

var removewebhook = cli.Command{
	Name:      "removewebhook",
	Usage:     "remove a webhook by its id",
	ArgsUsage: "<hook_id>",
	Action:    removeWebhookAction,
}

func removeWebhookAction(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return fmt.Errorf("hook id is missing")
	}
	client, err := getClient()
	if err != nil {
		return err
	}

	if err := client.delete("/v1/webhooks/" + ctx.Args().First()); err != nil {
		return err
	}
	fmt.Println("hook removed")
	return nil
}

var listwebhooks = cli.Command{
	Name:   "listwebhooks",
	Usage:  "list all the registered webhooks",
	Action: listWebhooksAction,
}

func listWebhooksAction(ctx *cli.Context) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	reply := []map[string]interface{}{}
	if err := client.get("/v1/webhooks", &reply); err != nil {
		return err
	}
	printRespJSON(reply)
	return nil
}
