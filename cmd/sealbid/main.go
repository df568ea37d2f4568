package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
)

var (
	sealbidDataDir = cliDataDir()
	statePath      = filepath.Join(sealbidDataDir, "state.json")
)

func main() {
	app := cli.NewApp()

	app.Version = "0.1.0"
	app.Name = "sealbid operator CLI"
	app.Usage = "Command line interface for sealbidd daemon operators"
	app.Commands = append(
		app.Commands,
		&configCmd,
		&info,
		&createlisting,
		&importlisting,
		&listlistings,
		&getlisting,
		&placebid,
		&cancellisting,
		&getrecord,
		&addwebhook,
		&removewebhook,
		&listwebhooks,
	)

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

func cliDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".sealbid-operator"
	}
	return filepath.Join(home, ".sealbid-operator")
}

func getState() (map[string]string, error) {
	data := map[string]string{}

	file, err := os.ReadFile(statePath)
	if err != nil {
		return nil, fmt.Errorf("get config state error: try 'config init'")
	}
	json.Unmarshal(file, &data)

	return data, nil
}

func setState(data map[string]string) error {
	if _, err := os.Stat(sealbidDataDir); os.IsNotExist(err) {
		os.Mkdir(sealbidDataDir, os.ModeDir|0755)
	}

	currentData, _ := getState()
	if currentData == nil {
		currentData = map[string]string{}
	}
	for k, v := range data {
		currentData[k] = v
	}

	jsonString, err := json.Marshal(currentData)
	if err != nil {
		return err
	}
	if err := os.WriteFile(statePath, jsonString, 0644); err != nil {
		return fmt.Errorf("writing to file: %w", err)
	}
	return nil
}

func printRespJSON(resp interface{}) {
	jsonString, err := json.MarshalIndent(resp, "", "\t")
	if err != nil {
		fmt.Println(resp)
		return
	}
	fmt.Println(string(jsonString))
}

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[sealbid] %v\n", err)
	os.Exit(1)
}
