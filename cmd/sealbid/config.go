package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

var endpointFlag = cli.StringFlag{
	Name:  "daemon_endpoint",
	Usage: "sealbidd operator interface address in the form http://host:port",
	Value: "http://localhost:9000",
}

var configCmd = cli.Command{
	Name:   "config",
	Usage:  "Print local configuration of the sealbid CLI",
	Action: configAction,
	Subcommands: []*cli.Command{
		{
			Name:   "set",
			Usage:  "set a <key> <value> in the local state",
			Action: configSetAction,
		},
		{
			Name:   "init",
			Usage:  "initialize the local state with flags",
			Action: configInitAction,
			Flags: []cli.Flag{
				&endpointFlag,
			},
		},
	},
}

func configAction(ctx *cli.Context) error {
	state, err := getState()
	if err != nil {
		return err
	}

	for key, value := range state {
		fmt.Println(key + ": " + value)
	}
	return nil
}

func configInitAction(c *cli.Context) error {
	return setState(map[string]string{
		"daemon_endpoint": c.String("daemon_endpoint"),
	})
}

func configSetAction(c *cli.Context) error {
	if c.NArg() < 2 {
		return fmt.Errorf("key and value are missing")
	}

	key := c.Args().Get(0)
	value := c.Args().Get(1)

	if err := setState(map[string]string{key: value}); err != nil {
		return err
	}

	fmt.Printf("%s %s has been set\n", key, value)
	return nil
}

var info = cli.Command{
	Name:   "info",
	Usage:  "get the info of the connected daemon",
	Action: infoAction,
}

func infoAction(ctx *cli.Context) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	reply := map[string]interface{}{}
	if err := client.get("/v1/info", &reply); err != nil {
		return err
	}
	printRespJSON(reply)
	return nil
}
