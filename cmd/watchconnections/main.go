// Package main watches the live connections feed. With -clients above one it
// doubles as a load test for the connections WebSocket.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// Metrics tracks the run results
type Metrics struct {
	ConnectionsAttempted int64
	ConnectionsSuccess   int64
	ConnectionsFailed    int64
	SnapshotsReceived    int64
	Errors               int64
}

var metrics Metrics

type snapshot struct {
	Type string `json:"type"`
	Data struct {
		Friends  []json.RawMessage `json:"friends"`
		Incoming []json.RawMessage `json:"incoming"`
		Outgoing []json.RawMessage `json:"outgoing"`
	} `json:"data"`
	Error string `json:"error"`
}

func main() {
	host := flag.String("host", "localhost:8375", "API server host")
	token := flag.String("token", os.Getenv("THIRTYDAY_TOKEN"), "Bearer token (defaults to $THIRTYDAY_TOKEN)")
	clients := flag.Int("clients", 1, "Number of concurrent watchers")
	duration := flag.Duration("duration", 0, "Stop after this long (0 runs until interrupted)")
	secure := flag.Bool("tls", false, "Use wss://")
	flag.Parse()

	if *token == "" {
		log.Fatal("❌ A token is required (-token or THIRTYDAY_TOKEN)")
	}

	scheme := "ws"
	if *secure {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: *host, Path: "/api/ws/connections", RawQuery: "token=" + url.QueryEscape(*token)}

	log.Printf("👀 Watching %s://%s%s with %d client(s)", u.Scheme, u.Host, u.Path, *clients)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	stopChan := make(chan struct{})

	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go runClient(u.String(), i, *clients == 1, stopChan, &wg)
		if *clients > 1 {
			time.Sleep(20 * time.Millisecond)
		}
	}

	var timeout <-chan time.Time
	if *duration > 0 {
		timeout = time.After(*duration)
	}
	select {
	case <-timeout:
		log.Println("⏱️  Duration reached")
	case <-interrupt:
		log.Println("🛑 Interrupted by user")
	}

	close(stopChan)
	wg.Wait()

	printMetrics()
}

func runClient(target string, id int, verbose bool, stopChan <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	atomic.AddInt64(&metrics.ConnectionsAttempted, 1)
	conn, _, err := websocket.DefaultDialer.Dial(target, nil)
	if err != nil {
		atomic.AddInt64(&metrics.ConnectionsFailed, 1)
		log.Printf("Client %d: dial failed: %v", id, err)
		return
	}
	atomic.AddInt64(&metrics.ConnectionsSuccess, 1)
	defer func() { _ = conn.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var snap snapshot
			if err := conn.ReadJSON(&snap); err != nil {
				select {
				case <-stopChan:
				default:
					atomic.AddInt64(&metrics.Errors, 1)
					log.Printf("Client %d: read failed: %v", id, err)
				}
				return
			}
			if snap.Error != "" {
				atomic.AddInt64(&metrics.Errors, 1)
				log.Printf("Client %d: server refused: %s", id, snap.Error)
				return
			}
			atomic.AddInt64(&metrics.SnapshotsReceived, 1)
			if verbose {
				fmt.Printf("%s  friends=%d incoming=%d outgoing=%d\n",
					time.Now().Format(time.TimeOnly),
					len(snap.Data.Friends), len(snap.Data.Incoming), len(snap.Data.Outgoing))
			}
		}
	}()

	select {
	case <-stopChan:
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		<-done
	case <-done:
	}
}

func printMetrics() {
	fmt.Println()
	fmt.Println("📊 Results")
	fmt.Println("==========")
	fmt.Printf("Connections attempted: %d\n", atomic.LoadInt64(&metrics.ConnectionsAttempted))
	fmt.Printf("Connections succeeded: %d\n", atomic.LoadInt64(&metrics.ConnectionsSuccess))
	fmt.Printf("Connections failed:    %d\n", atomic.LoadInt64(&metrics.ConnectionsFailed))
	fmt.Printf("Snapshots received:    %d\n", atomic.LoadInt64(&metrics.SnapshotsReceived))
	fmt.Printf("Errors:                %d\n", atomic.LoadInt64(&metrics.Errors))
}
