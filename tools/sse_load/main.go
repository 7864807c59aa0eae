// Command sse_load opens many subscribers on the engine event stream and
// reports how many events of each type they receive.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

type counters struct {
	connected   atomic.Int64
	connectErrs atomic.Int64
	streamErrs  atomic.Int64
	reconnects  atomic.Int64

	mu     sync.Mutex
	byType map[string]int64
}

func (c *counters) event(name string) {
	c.mu.Lock()
	c.byType[name]++
	c.mu.Unlock()
}

func (c *counters) total() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	var n int64
	for _, v := range c.byType {
		n += v
	}
	return n
}

func (c *counters) breakdown() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	names := make([]string, 0, len(c.byType))
	for name := range c.byType {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, fmt.Sprintf("%s=%d", name, c.byType[name]))
	}
	return strings.Join(parts, " ")
}

func main() {
	var (
		targetURL   string
		connections int
		duration    time.Duration
		rampUp      time.Duration
		resume      bool
	)

	flag.StringVar(&targetURL, "url", "http://localhost:8080/api/v1/events/stream", "event stream URL")
	flag.IntVar(&connections, "conns", 500, "number of concurrent subscribers")
	flag.DurationVar(&duration, "dur", 60*time.Second, "test duration (0 for until interrupted)")
	flag.DurationVar(&rampUp, "ramp", 0, "spread subscriber starts across this window")
	flag.BoolVar(&resume, "resume", true, "reconnect with Last-Event-ID after a dropped stream")
	flag.Parse()

	if connections <= 0 {
		log.Fatalf("invalid conns: %d", connections)
	}
	if rampUp == 0 && connections > 100 {
		rampUp = max(time.Duration(connections/500)*time.Second, time.Second)
	}

	log.Printf("starting event stream load: url=%s conns=%d duration=%s ramp=%s", targetURL, connections, duration, rampUp)

	client := &http.Client{
		Transport: &http.Transport{
			MaxConnsPerHost:     connections + 100,
			MaxIdleConnsPerHost: connections + 100,
			DisableCompression:  true,
			DialContext: (&net.Dialer{
				Timeout:   5 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, duration)
		defer cancel()
	}

	c := &counters{byType: make(map[string]int64)}
	start := time.Now()

	var interval time.Duration
	if rampUp > 0 {
		interval = rampUp / time.Duration(connections)
	}

	var wg sync.WaitGroup
	for i := 0; i < connections && ctx.Err() == nil; i++ {
		if i > 0 && interval > 0 {
			select {
			case <-ctx.Done():
				continue
			case <-time.After(interval):
			}
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			subscribe(ctx, client, targetURL, resume, c)
		}()
	}

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				log.Printf("status: connected=%d connect_errs=%d stream_errs=%d events=%d elapsed=%s",
					c.connected.Load(), c.connectErrs.Load(), c.streamErrs.Load(), c.total(),
					time.Since(start).Truncate(time.Second))
			}
		}
	}()

	wg.Wait()

	elapsed := max(time.Since(start), time.Millisecond)
	total := c.total()
	fmt.Printf("done: connected=%d connect_errs=%d stream_errs=%d reconnects=%d events=%d elapsed=%s events/s=%.2f\n",
		c.connected.Load(), c.connectErrs.Load(), c.streamErrs.Load(), c.reconnects.Load(),
		total, elapsed.Truncate(time.Millisecond), float64(total)/elapsed.Seconds())
	if breakdown := c.breakdown(); breakdown != "" {
		fmt.Printf("by type: %s\n", breakdown)
	}
}

// subscribe reads one stream until ctx is done, resuming from the last seen
// id when the server drops the connection.
func subscribe(ctx context.Context, client *http.Client, url string, resume bool, c *counters) {
	var lastID string
	for first := true; ctx.Err() == nil; first = false {
		if !first {
			if !resume {
				return
			}
			c.reconnects.Add(1)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			c.connectErrs.Add(1)
			return
		}
		req.Header.Set("Accept", "text/event-stream")
		if lastID != "" {
			req.Header.Set("Last-Event-ID", lastID)
		}

		resp, err := client.Do(req)
		if err != nil {
			c.connectErrs.Add(1)
			continue
		}
		if resp.StatusCode != http.StatusOK {
			c.connectErrs.Add(1)
			_ = resp.Body.Close()
			continue
		}
		if first {
			c.connected.Add(1)
		}

		lastID = readStream(resp, lastID, c)
		_ = resp.Body.Close()
		if ctx.Err() == nil {
			c.streamErrs.Add(1)
		}
	}
}

func readStream(resp *http.Response, lastID string, c *counters) string {
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "id: "):
			lastID = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			c.event(strings.TrimPrefix(line, "event: "))
		}
	}
	return lastID
}
