package main

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
)

// serverEvent is the union of all fields the server may send; unset
// fields stay zero.
type serverEvent struct {
	Type          string `json:"type"`
	SessionID     string `json:"session_id"`
	Agent         string `json:"agent"`
	AgentName     string `json:"agent_name"`
	Chunk         string `json:"chunk"`
	IsFinal       bool   `json:"is_final"`
	Content       string `json:"content"`
	Message       string `json:"message"`
	ExpectedRole  string `json:"expected_role"`
	SuggestedNext string `json:"suggested_next"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	addr := flag.String("addr", "localhost:8080", "backend host:port")
	scenarioID := flag.String("scenario", "preset-wg-kueche", "stored scenario id to run")
	mode := flag.String("mode", "mediator", "session mode: mediator or participant")
	role := flag.String("role", "agent_b", "occupied slot in participant mode: agent_a or agent_b")
	rounds := flag.Int("rounds", 4, "agent turns to run before requesting the evaluation")
	auto := flag.Bool("auto", false, "let the engine chain turns without per-turn confirmation")
	timeout := flag.Duration("timeout", 3*time.Minute, "overall run timeout")

	flag.Parse()

	if *mode != "mediator" && *mode != "participant" {
		flag.Usage()
		log.Fatal("mode must be mediator or participant")
	}
	if *role != "agent_a" && *role != "agent_b" {
		flag.Usage()
		log.Fatal("role must be agent_a or agent_b")
	}

	u := url.URL{Scheme: "ws", Host: *addr, Path: "/ws"}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect to %s: %v", u.String(), err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(*timeout))

	start := map[string]any{
		"type":        "start_session",
		"mode":        *mode,
		"scenario_id": *scenarioID,
		"auto_run":    *auto,
	}
	if *mode == "participant" {
		start["human_role"] = *role
	}
	send(conn, start)

	var sessionID string
	turns := 0

	for {
		var ev serverEvent
		if err := conn.ReadJSON(&ev); err != nil {
			log.Fatalf("read failed: %v", err)
		}

		switch ev.Type {
		case "session_started":
			sessionID = ev.SessionID
			log.Printf("session %s started (scenario %s)", sessionID, *scenarioID)

		case "typing":
			fmt.Printf("\n[%s] ", ev.AgentName)

		case "streaming_chunk":
			fmt.Print(ev.Chunk)
			if ev.IsFinal {
				fmt.Println()
			}

		case "agent_message":
			turns++

		case "waiting_for_decision":
			if turns >= *rounds {
				log.Printf("%d turns done, requesting evaluation", turns)
				send(conn, map[string]any{"type": "stop", "session_id": sessionID})
				continue
			}
			send(conn, map[string]any{"type": "continue", "session_id": sessionID})

		case "waiting_for_input":
			log.Printf("engine expects %s input, requesting evaluation instead", ev.ExpectedRole)
			send(conn, map[string]any{"type": "stop", "session_id": sessionID})

		case "interrupted":
			log.Printf("server: %s", ev.Message)

		case "evaluation":
			fmt.Printf("\nsession %s closed after %d agent turns\n", sessionID, turns)
			return

		case "error":
			log.Fatalf("server error: %s", ev.Message)
		}
	}
}

func send(conn *websocket.Conn, payload any) {
	if err := conn.WriteJSON(payload); err != nil {
		log.Fatalf("write failed: %v", err)
	}
}
