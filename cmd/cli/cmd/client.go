package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
)

// getJSON fetches a server endpoint and decodes the response into out
func getJSON(path string, out interface{}) error {
	resp, err := http.Get(serverURL + path)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error: %s", string(body))
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// postJSON posts to a server endpoint and decodes the response into out.
// 2xx statuses are accepted; anything else is an error.
func postJSON(path string, out interface{}) error {
	resp, err := http.Post(serverURL+path, "application/json", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error: %s", string(body))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// printJSON pretty-prints a value to stdout
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
