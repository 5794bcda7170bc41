package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

// auditctl — сервисная утилита оператора поверх HTTP API портала:
//
//	auditctl -server http://localhost:8080 -token $TOKEN pending
//	auditctl ... force-batch
//	auditctl ... verify <event-id>
//	auditctl ... batches
func main() {
	serverURL := flag.String("server", "http://localhost:8080", "portal API base URL")
	token := flag.String("token", os.Getenv("AUDITCTL_TOKEN"), "bearer token (or AUDITCTL_TOKEN env)")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		log.Fatal("usage: auditctl [-server URL] [-token TOKEN] pending|force-batch|batches|verify <event-id>")
	}

	c := &client{
		base:  strings.TrimSuffix(*serverURL, "/"),
		token: *token,
		http:  &http.Client{Timeout: 15 * time.Second},
	}

	var err error
	switch args[0] {
	case "pending":
		err = c.get("/v1/audit/pending")
	case "force-batch":
		err = c.post("/v1/audit/batches/run")
	case "batches":
		err = c.get("/v1/audit/batches")
	case "verify":
		if len(args) < 2 {
			log.Fatal("verify requires an event id")
		}
		err = c.get("/v1/audit/events/" + args[1] + "/verify")
	default:
		log.Fatalf("unknown command %q", args[0])
	}

	if err != nil {
		log.Fatal(err)
	}
}

type client struct {
	base  string
	token string
	http  *http.Client
}

func (c *client) get(path string) error  { return c.do(http.MethodGet, path) }
func (c *client) post(path string) error { return c.do(http.MethodPost, path) }

func (c *client) do(method, path string) error {
	req, err := http.NewRequest(method, c.base+path, nil)
	if err != nil {
		return err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	// Красивый вывод, если ответ — JSON
	var pretty map[string]interface{}
	if json.Unmarshal(body, &pretty) == nil {
		out, _ := json.MarshalIndent(pretty, "", "  ")
		fmt.Println(string(out))
		return nil
	}
	var prettyList []interface{}
	if json.Unmarshal(body, &prettyList) == nil {
		out, _ := json.MarshalIndent(prettyList, "", "  ")
		fmt.Println(string(out))
		return nil
	}
	fmt.Println(string(body))
	return nil
}
