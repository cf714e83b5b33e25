package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/codeWithGodstime/meetmesh/internal/user"
)

var log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

type options struct {
	baseURL   string
	secret    string
	issuer    string
	pairs     int
	msgs      int
	firstUser int
	interval  time.Duration
}

type stats struct {
	sent     atomic.Int64
	received atomic.Int64
	errors   atomic.Int64
}

func main() {
	opts := options{}
	flag.StringVar(&opts.baseURL, "base", "http://localhost:8080", "server base URL")
	flag.StringVar(&opts.secret, "secret", os.Getenv("JWT_SECRET"), "HS256 secret shared with the server")
	flag.StringVar(&opts.issuer, "issuer", "meetmesh", "token issuer")
	flag.IntVar(&opts.pairs, "pairs", 50, "number of user pairs")
	flag.IntVar(&opts.msgs, "msgs", 20, "messages per user")
	flag.IntVar(&opts.firstUser, "first-user", 1, "first user id; pairs use consecutive ids")
	flag.DurationVar(&opts.interval, "interval", 10*time.Millisecond, "delay between messages")
	flag.Parse()

	if opts.secret == "" {
		log.Fatal().Msg("❌ -secret or JWT_SECRET is required")
	}

	log.Info().Int("users", opts.pairs*2).Int("msgs", opts.msgs).Msg("🔥 STARTING STRESS TEST")
	start := time.Now()

	var st stats
	var wg sync.WaitGroup
	// Pair i is users (first+2i, first+2i+1).
	for i := 0; i < opts.pairs; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			runPair(opts, pairID, &st)
		}(i)
	}
	wg.Wait()

	log.Info().
		Int64("sent", st.sent.Load()).
		Int64("received", st.received.Load()).
		Int64("errors", st.errors.Load()).
		Dur("elapsed", time.Since(start)).
		Msg("✅ LOAD TEST COMPLETE")
}

func runPair(opts options, pairID int, st *stats) {
	a := user.ID(opts.firstUser + 2*pairID)
	b := a + 1

	tokenA, err := signToken(opts, a)
	if err != nil {
		st.errors.Add(1)
		return
	}
	tokenB, err := signToken(opts, b)
	if err != nil {
		st.errors.Add(1)
		return
	}

	// A opens the conversation so both sockets join it on connect.
	if _, err := createConversation(opts, tokenA, b); err != nil {
		log.Error().Err(err).Int("pair", pairID).Msg("❌ Create Chat Failed")
		st.errors.Add(1)
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go spamChat(&wsWg, opts, tokenA, b, st)
	go spamChat(&wsWg, opts, tokenB, a, st)
	wsWg.Wait()
}

func signToken(opts options, id user.ID) (string, error) {
	claims := jwt.MapClaims{
		"id":       int(id),
		"username": fmt.Sprintf("load_%d", id),
		"iss":      opts.issuer,
		"exp":      time.Now().Add(time.Hour).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(opts.secret))
}

func createConversation(opts options, token string, receiver user.ID) (string, error) {
	body, _ := json.Marshal(map[string]int{"receiver": int(receiver)})
	req, _ := http.NewRequest(http.MethodPost, opts.baseURL+"/api/conversations", bytes.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("status %d", resp.StatusCode)
	}

	var data struct {
		UID string `json:"uid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return "", err
	}
	return data.UID, nil
}

func spamChat(wg *sync.WaitGroup, opts options, token string, receiver user.ID, st *stats) {
	defer wg.Done()

	wsURL := strings.Replace(opts.baseURL, "http", "ws", 1) + "/ws?token=" + url.QueryEscape(token)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		log.Error().Err(err).Msg("❌ WS Connect Fail")
		st.errors.Add(1)
		return
	}
	defer conn.Close()

	// Count everything the server pushes until the socket goes quiet.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
			st.received.Add(1)
		}
	}()

	for i := 0; i < opts.msgs; i++ {
		msg := map[string]interface{}{
			"receiver": int(receiver),
			"content":  fmt.Sprintf("LoadTest Msg %d to %d", i, receiver),
		}
		if err := conn.WriteJSON(msg); err != nil {
			log.Error().Err(err).Msg("❌ Send Fail")
			st.errors.Add(1)
			break
		}
		st.sent.Add(1)
		time.Sleep(opts.interval)
	}
	<-done
}
