// Package main is a CI-friendly smoke test for an Affittochiaro realtime
// endpoint, driven through the same Connection the agent uses.
//
// It validates:
//   - token handshake and the connected status event
//   - an optional round trip: send one event, wait for the expected reply
//   - manual disconnect emits the disconnected status event
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"affittochiaro/cmd/internal/auth/credentials"
	"affittochiaro/cmd/internal/realtime"
	v1 "affittochiaro/contracts/realtime/v1"
)

func main() {
	var (
		wsURL   = pflag.String("url", "ws://127.0.0.1:8080/ws", "realtime WebSocket URL")
		tok     = pflag.String("token", os.Getenv("AFFITTO_SMOKE_TOKEN"), "access token (env AFFITTO_SMOKE_TOKEN)")
		send    = pflag.String("send", "", "event type to send after connecting")
		payload = pflag.String("payload", "{}", "JSON payload for --send")
		expect  = pflag.String("expect", "", "event type expected in reply (default: the --send type)")
		timeout = pflag.Duration("timeout", 7*time.Second, "per-step timeout")
		verbose = pflag.BoolP("verbose", "v", false, "verbose output")
	)
	pflag.Parse()

	if *tok == "" {
		fatalf("missing --token")
	}
	if *send != "" && !json.Valid([]byte(*payload)) {
		fatalf("--payload is not valid JSON")
	}
	if *expect == "" {
		*expect = *send
	}

	creds := credentials.New()
	creds.Write(*tok, "")

	conn, err := realtime.New(*wsURL, creds, realtime.WithReconnect(time.Second, 1))
	if err != nil {
		fatalf("invalid --url: %v", err)
	}
	defer func() { _ = conn.Close() }()

	status := make(chan string, 8)
	conn.Subscribe(v1.TypeConnection, func(p json.RawMessage) {
		var cp v1.ConnectionPayload
		_ = json.Unmarshal(p, &cp)
		status <- cp.Status
	})
	conn.Subscribe(v1.TypeError, func(p json.RawMessage) {
		var ep v1.ErrorPayload
		_ = json.Unmarshal(p, &ep)
		fatalf("server error: code=%q msg=%q", ep.Code, ep.Message)
	})

	replies := make(chan json.RawMessage, 8)
	if *expect != "" {
		conn.Subscribe(*expect, func(p json.RawMessage) { replies <- p })
	}

	root := context.Background()

	ctx, cancel := context.WithTimeout(root, *timeout)
	err = conn.Connect(ctx)
	cancel()
	if err != nil {
		fatalf("connect: %v", err)
	}
	mustStatus(status, v1.StatusConnected, *timeout)
	if *verbose {
		fmt.Printf("connected: url=%s\n", *wsURL)
	}

	if *send != "" {
		ctx, cancel := context.WithTimeout(root, *timeout)
		err := conn.Send(ctx, *send, json.RawMessage(*payload))
		cancel()
		if err != nil {
			fatalf("send %q: %v", *send, err)
		}

		select {
		case p := <-replies:
			if *verbose {
				fmt.Printf("reply: type=%s payload=%s\n", *expect, p)
			}
		case <-time.After(*timeout):
			fatalf("timeout waiting for %q", *expect)
		}
	}

	conn.Disconnect()
	mustStatus(status, v1.StatusDisconnected, *timeout)

	fmt.Printf("OK: url=%s state=%s\n", *wsURL, conn.State())
}

func mustStatus(ch <-chan string, want string, wait time.Duration) {
	select {
	case got := <-ch:
		if got != want {
			fatalf("status mismatch: got=%q want=%q", got, want)
		}
	case <-time.After(wait):
		fatalf("timeout waiting for status %q", want)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "FAIL: "+format+"\n", args...)
	os.Exit(1)
}
