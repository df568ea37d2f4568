package main

import (
	"fmt"

	"github.com/urfave/cli/v2"
)

var createlisting = cli.Command{
	Name:  "createlisting",
	Usage: "create and open a new listing owned by the daemon identity",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "title",
			Usage: "the title of the auctioned item",
		},
		&cli.StringFlag{
			Name:  "description",
			Usage: "the description of the auctioned item",
		},
		&cli.Int64Flag{
			Name:  "close_time",
			Usage: "the bidding close time as a Unix timestamp",
		},
		&cli.Int64Flag{
			Name:  "reveal_deadline",
			Usage: "the winner reveal deadline as a Unix timestamp",
		},
	},
	Action: createListingAction,
}

func createListingAction(ctx *cli.Context) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	reply := map[string]interface{}{}
	if err := client.post("/v1/listings", map[string]interface{}{
		"title":            ctx.String("title"),
		"description":      ctx.String("description"),
		"biddingCloseTime": ctx.Int64("close_time"),
		"revealDeadline":   ctx.Int64("reveal_deadline"),
	}, &reply); err != nil {
		return err
	}
	printRespJSON(reply)
	return nil
}

var importlisting = cli.Command{
	Name:      "importlisting",
	Usage:     "start tracking a listing published by another seller",
	ArgsUsage: "<listing_id>",
	Action:    importListingAction,
}

func importListingAction(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return fmt.Errorf("listing id is missing")
	}
	client, err := getClient()
	if err != nil {
		return err
	}

	reply := map[string]interface{}{}
	if err := client.post(
		"/v1/listings/"+ctx.Args().First()+"/import", nil, &reply,
	); err != nil {
		return err
	}
	printRespJSON(reply)
	return nil
}

var listlistings = cli.Command{
	Name:   "listlistings",
	Usage:  "list all the tracked listings",
	Action: listListingsAction,
}

func listListingsAction(ctx *cli.Context) error {
	client, err := getClient()
	if err != nil {
		return err
	}

	reply := []map[string]interface{}{}
	if err := client.get("/v1/listings", &reply); err != nil {
		return err
	}
	printRespJSON(reply)
	return nil
}

var getlisting = cli.Command{
	Name:      "getlisting",
	Usage:     "get the current state of a listing",
	ArgsUsage: "<listing_id>",
	Action:    getListingAction,
}

func getListingAction(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return fmt.Errorf("listing id is missing")
	}
	client, err := getClient()
	if err != nil {
		return err
	}

	reply := map[string]interface{}{}
	if err := client.get("/v1/listings/"+ctx.Args().First(), &reply); err != nil {
		return err
	}
	printRespJSON(reply)
	return nil
}

var placebid = cli.Command{
	Name:      "placebid",
	Usage:     "place a sealed bid on a listing",
	ArgsUsage: "<listing_id>",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "amount",
			Usage: "the bid amount as a decimal string",
		},
	},
	Action: placeBidAction,
}

func placeBidAction(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return fmt.Errorf("listing id is missing")
	}
	client, err := getClient()
	if err != nil {
		return err
	}

	reply := map[string]interface{}{}
	if err := client.post(
		"/v1/listings/"+ctx.Args().First()+"/bids",
		map[string]interface{}{"amount": ctx.String("amount")},
		&reply,
	); err != nil {
		return err
	}
	printRespJSON(reply)
	return nil
}

var cancellisting = cli.Command{
	Name:      "cancellisting",
	Usage:     "cancel a tracked listing and release its resources",
	ArgsUsage: "<listing_id>",
	Action:    cancelListingAction,
}

func cancelListingAction(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return fmt.Errorf("listing id is missing")
	}
	client, err := getClient()
	if err != nil {
		return err
	}

	if err := client.delete("/v1/listings/" + ctx.Args().First()); err != nil {
		return err
	}
	fmt.Println("listing cancellation requested")
	return nil
}

var getrecord = cli.Command{
	Name:      "getrecord",
	Usage:     "get the final record of a settled auction",
	ArgsUsage: "<listing_id>",
	Action:    getRecordAction,
}

func getRecordAction(ctx *cli.Context) error {
	if ctx.NArg() < 1 {
		return fmt.Errorf("listing id is missing")
	}
	client, err := getClient()
	if err != nil {
		return err
	}

	reply := map[string]interface{}{}
	if err := client.get(
		"/v1/listings/"+ctx.Args().First()+"/record", &reply,
	); err != nil {
		return err
	}
	printRespJSON(reply)
	return nil
}
