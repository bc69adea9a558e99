// Command viewer renders a node's message snapshot as a table.
// Handy to eyeball convergence between the two paired nodes.
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"
)

type Config struct {
	NodeURL string        `envconfig:"NODE_URL" default:"http://localhost:8080"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s"`
}

type snapshotResponse struct {
	Messages []struct {
		ID        uint64 `json:"id"`
		Sender    string `json:"sender"`
		Message   string `json:"message"`
		Timestamp string `json:"timestamp"`
		Origin    string `json:"origin"`
		Lang      string `json:"lang"`
	} `json:"messages"`
}

func main() {
	var config Config
	if err := envconfig.Process("viewer", &config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	client := &http.Client{Timeout: config.Timeout}
	resp, err := client.Get(config.NodeURL + "/messages")
	if err != nil {
		log.Fatalf("Snapshot fetch failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Fatalf("Node answered with status %d", resp.StatusCode)
	}

	var snapshot snapshotResponse
	if err := json.NewDecoder(resp.Body).Decode(&snapshot); err != nil {
		log.Fatalf("Snapshot decoding failed: %v", err)
	}

	color.Cyan.Printf("Messages on %s (%d total)\n", config.NodeURL, len(snapshot.Messages))

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"ID", "Sender", "Message", "Timestamp", "Origin", "Lang"})
	for _, msg := range snapshot.Messages {
		origin := msg.Origin
		if origin == "relayed" {
			origin = color.Yellow.Sprint(origin)
		}
		table.Append([]string{
			fmt.Sprintf("%d", msg.ID),
			msg.Sender,
			msg.Message,
			msg.Timestamp,
			origin,
			msg.Lang,
		})
	}
	table.Render()
}
