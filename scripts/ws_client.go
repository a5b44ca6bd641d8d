// Demo WebSocket client: submits a small solve job and prints the progress
// stream from /v1/jobs/{id}/ws until the search finishes.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

const demoInstance = "demo\n10 3\n0 50 50 0\n1 60 50 4\n2 40 50 3\n3 50 60 5\n4 50 40 2\n"

type jobEvent struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	body, _ := json.Marshal(map[string]any{"instance": demoInstance})
	req, _ := http.NewRequest(http.MethodPost, base+"/v1/solve", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", "t_demo")
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var job struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&job); err != nil {
		log.Fatal(err)
	}
	if job.ID == "" {
		log.Fatal("no job id returned")
	}
	log.Printf("Job ID: %s", job.ID)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/jobs/" + job.ID + "/ws"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", "t_demo")
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	for {
		_ = c.SetReadDeadline(time.Now().Add(2 * time.Minute))
		var evt jobEvent
		if err := c.ReadJSON(&evt); err != nil {
			log.Printf("read: %v", err)
			return
		}
		data, _ := json.Marshal(evt.Data)
		log.Printf("WS <- %s: %s", evt.Type, data)
		if evt.Type == "solve.done" {
			return
		}
	}
}
