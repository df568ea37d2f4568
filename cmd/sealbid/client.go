package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

func getClient() (*apiClient, error) {
	state, err := getState()
	if err != nil {
		return nil, err
	}
	endpoint, ok := state["daemon_endpoint"]
	if !ok {
		return nil, fmt.Errorf("daemon endpoint is missing: try 'config init'")
	}
	return &apiClient{
		baseURL:    endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

func (c *apiClient) get(path string, out interface{}) error {
	return c.do("GET", path, nil, out)
}

func (c *apiClient) post(path string, body, out interface{}) error {
	return c.do("POST", path, body, out)
}

func (c *apiClient) delete(path string) error {
	return c.do("DELETE", path, nil, nil)
}

func (c *apiClient) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequest(method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		reply := struct {
			Error string `json:"error"`
		}{}
		if err := json.Unmarshal(raw, &reply); err == nil && len(reply.Error) > 0 {
			return fmt.Errorf(reply.Error)
		}
		return fmt.Errorf("daemon replied with status %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(raw, out)
}
