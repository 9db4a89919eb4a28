// Command main load-tests the live view WebSockets by holding many feed
// subscriptions open while posting.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// Metrics tracks the test results
type Metrics struct {
	ConnectionsAttempted int64
	ConnectionsSuccess   int64
	ConnectionsFailed    int64
	PostsCreated         int64
	SnapshotsReceived    int64
	Errors               int64
}

var metrics Metrics

func main() {
	host := flag.String("host", "localhost:8375", "API server host")
	email := flag.String("email", "", "Account used to post (required)")
	password := flag.String("password", "", "Account password")
	clients := flag.Int("clients", 50, "Number of concurrent feed subscribers")
	interval := flag.Duration("interval", 2*time.Second, "Delay between posts")
	duration := flag.Duration("duration", 30*time.Second, "Test duration")
	flag.Parse()

	if *email == "" {
		log.Fatal("-email is required")
	}

	token, err := login(*host, *email, *password)
	if err != nil {
		log.Fatalf("Login failed: %v", err)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt, syscall.SIGTERM)

	var wg sync.WaitGroup
	stopChan := make(chan struct{})

	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go runSubscriber(*host, stopChan, &wg)
	}

	wg.Add(1)
	go runPoster(*host, token, *interval, stopChan, &wg)

	select {
	case <-time.After(*duration):
		log.Println("Test duration reached")
	case <-interrupt:
		log.Println("Interrupted")
	}

	close(stopChan)
	wg.Wait()

	printMetrics()
}

func login(host, email, password string) (string, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})

	resp, err := http.Post(fmt.Sprintf("http://%s/api/auth/login", host), "application/json", bytes.NewBuffer(body))
	if err != nil {
		return "", err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed with status %d", resp.StatusCode)
	}

	var result struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Token, nil
}

func runPoster(host, token string, interval time.Duration, stopChan <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()

	client := &http.Client{Timeout: 5 * time.Second}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for n := 1; ; n++ {
		select {
		case <-stopChan:
			return
		case <-ticker.C:
		}

		body, _ := json.Marshal(map[string]string{"text": fmt.Sprintf("load test post %d", n)})
		req, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("http://%s/api/posts", host), bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := client.Do(req)
		if err != nil {
			atomic.AddInt64(&metrics.Errors, 1)
			continue
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			atomic.AddInt64(&metrics.Errors, 1)
			continue
		}
		atomic.AddInt64(&metrics.PostsCreated, 1)
	}
}

func runSubscriber(host string, stopChan <-chan struct{}, wg *sync.WaitGroup) {
	defer wg.Done()
	atomic.AddInt64(&metrics.ConnectionsAttempted, 1)

	u := url.URL{Scheme: "ws", Host: host, Path: "/api/ws/feed"}
	c, resp, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		atomic.AddInt64(&metrics.ConnectionsFailed, 1)
		atomic.AddInt64(&metrics.Errors, 1)
		return
	}
	if resp != nil && resp.Body != nil {
		defer func() { _ = resp.Body.Close() }()
	}
	defer func() { _ = c.Close() }()

	atomic.AddInt64(&metrics.ConnectionsSuccess, 1)

	go func() {
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
			atomic.AddInt64(&metrics.SnapshotsReceived, 1)
		}
	}()

	<-stopChan
	_ = c.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func printMetrics() {
	log.Println("Test Results")
	log.Printf("Connections Attempted: %d", atomic.LoadInt64(&metrics.ConnectionsAttempted))
	log.Printf("Connections Successful: %d", atomic.LoadInt64(&metrics.ConnectionsSuccess))
	log.Printf("Connections Failed: %d", atomic.LoadInt64(&metrics.ConnectionsFailed))
	log.Printf("Posts Created: %d", atomic.LoadInt64(&metrics.PostsCreated))
	log.Printf("Snapshots Received: %d", atomic.LoadInt64(&metrics.SnapshotsReceived))
	log.Printf("Total Errors: %d", atomic.LoadInt64(&metrics.Errors))
}
