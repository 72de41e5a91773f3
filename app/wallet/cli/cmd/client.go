package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// client is used for every call made to the node.
var client = http.Client{Timeout: 30 * time.Second}

// errorResponse is the form of a failed call.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// call sends the request to the node and decodes the response.
func call(method string, path string, dataSend any, dataRecv any) error {
	var body io.Reader
	if dataSend != nil {
		data, err := json.Marshal(dataSend)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var er errorResponse
		if err := json.NewDecoder(resp.Body).Decode(&er); err != nil {
			return fmt.Errorf("%s", resp.Status)
		}
		if er.Message != "" {
			return fmt.Errorf("%s: %s", er.Error, er.Message)
		}
		return fmt.Errorf("%s", er.Error)
	}

	if dataRecv != nil {
		return json.NewDecoder(resp.Body).Decode(dataRecv)
	}

	return nil
}
