package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/wfunc/blinkduel/models"
	"github.com/wfunc/blinkduel/room"
)

type client struct {
	base  string
	token string
	http  *http.Client
}

// do sends a JSON request and decodes the JSON reply into out.
func (c *client) do(method, path string, body, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e models.ErrorResponse
		_ = json.NewDecoder(resp.Body).Decode(&e)
		return fmt.Errorf("%s: %s", resp.Status, e.Error)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *client) post(path, code string, out any) error {
	return c.do(http.MethodPost, path, models.RoomRequest{RoomID: code}, out)
}

func main() {
	server := flag.String("server", "http://localhost:8080", "match server base URL")
	token := flag.String("token", "dev-alice", "session token")
	join := flag.String("join", "", "room code to join; empty creates a room")
	poll := flag.Duration("poll", 500*time.Millisecond, "status poll interval")
	flag.Parse()

	c := &client{base: strings.TrimRight(*server, "/"), token: *token, http: &http.Client{Timeout: 10 * time.Second}}

	var resp models.RoomResponse
	var err error
	if *join == "" {
		err = c.post("/api/pvp/create-room", "", &resp)
	} else {
		err = c.post("/api/pvp/join-room", *join, &resp)
	}
	if err != nil {
		log.Fatalf("Enter room failed: %v", err)
	}
	code := resp.RoomID
	log.Printf("In room %s (%s). Commands: ready, blink, claim, leave", code, resp.Room.Phase)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	commands := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			commands <- strings.TrimSpace(scanner.Text())
		}
		close(commands)
	}()

	ticker := time.NewTicker(*poll)
	defer ticker.Stop()

	var last room.Phase
	for {
		select {
		case <-interrupt:
			if err := c.post("/api/pvp/report-disconnect", code, nil); err != nil {
				log.Printf("Disconnect failed: %v", err)
			}
			return
		case cmd, ok := <-commands:
			if !ok {
				commands = nil
				continue
			}
			handle(c, code, cmd)
		case <-ticker.C:
			var st models.StatusResponse
			if err := c.do(http.MethodGet, "/api/pvp/room-status?roomId="+url.QueryEscape(code), nil, &st); err != nil {
				log.Printf("Poll failed: %v", err)
				continue
			}
			if st.Room.Phase != last {
				last = st.Room.Phase
				log.Printf("<- phase %s (me: %s, winner: %q)", last, st.MyRole, st.Room.Winner)
			}
		}
	}
}

func handle(c *client, code, cmd string) {
	switch cmd {
	case "ready":
		if err := c.post("/api/pvp/player-ready", code, nil); err != nil {
			log.Printf("Ready failed: %v", err)
		}
	case "blink":
		var r models.RecordResponse
		if err := c.post("/api/pvp/report-blink", code, &r); err != nil {
			log.Printf("Blink failed: %v", err)
			return
		}
		log.Printf("<- %s, winner %q", r.Room.Phase, r.Room.Winner)
	case "claim":
		var v models.VoucherResponse
		if err := c.post("/api/pvp/claim-winnings", code, &v); err != nil {
			log.Printf("Claim failed: %v", err)
			return
		}
		log.Printf("<- voucher amount=%s sig=%s contract=%s", v.Amount, v.Signature, v.ContractAddress)
	case "leave":
		if err := c.post("/api/pvp/report-disconnect", code, nil); err != nil {
			log.Printf("Leave failed: %v", err)
		}
		os.Exit(0)
	case "":
	default:
		log.Printf("Unknown command %q", cmd)
	}
}
