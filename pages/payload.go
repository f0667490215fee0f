package pages

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/krisalay/refresh-cache/clock"
)

// timestampLayout matches the zh-CN locale string the pages display, e.g. 2024/1/15 14:03:05.
const timestampLayout = "2006/1/2 15:04:05"

var weatherConditions = []string{"晴天", "多云", "小雨", "阴天"}

// CacheInfo is merged into every page payload.
type CacheInfo struct {
	FromCache   bool `json:"fromCache"`
	CacheAge    int  `json:"cacheAge"`
	NextRefresh int  `json:"nextRefresh"`
}

type WeatherData struct {
	City        string `json:"city"`
	Temperature int    `json:"temperature"`
	Humidity    int    `json:"humidity"`
	Condition   string `json:"condition"`
}

type NewsItem struct {
	ID        int    `json:"id"`
	Title     string `json:"title"`
	Summary   string `json:"summary"`
	Timestamp string `json:"timestamp"`
}

// DynamicData is the payload of the cached page.
type DynamicData struct {
	Message     string      `json:"message"`
	Timestamp   string      `json:"timestamp"`
	RandomID    string      `json:"randomId"`
	WeatherData WeatherData `json:"weatherData"`
	NewsItems   []NewsItem  `json:"newsItems"`
}

func (d DynamicData) clone() DynamicData {
	d.NewsItems = append([]NewsItem(nil), d.NewsItems...)
	return d
}

// SimpleData is the payload of the simple-cached page.
type SimpleData struct {
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	RandomID  string `json:"randomId"`
}

/*
Generator fakes the slow data source behind both pages. It is safe for
concurrent use, since regenerations of different keys can overlap.
*/
type Generator struct {
	clock clock.Clock

	// Latency is added before each payload is built. Zero disables it.
	DynamicLatency time.Duration
	SimpleLatency  time.Duration

	mu      sync.Mutex
	rng     *rand.Rand
	entropy *ulid.MonotonicEntropy
}

// NewGenerator returns a Generator seeded with seed. The latencies default to
// the delays the pages were designed around (200ms and 500ms).
func NewGenerator(clk clock.Clock, seed int64) *Generator {
	if clk == nil {
		clk = clock.System{}
	}
	rng := rand.New(rand.NewSource(seed))
	return &Generator{
		clock:          clk,
		DynamicLatency: 200 * time.Millisecond,
		SimpleLatency:  500 * time.Millisecond,
		rng:            rng,
		entropy:        ulid.Monotonic(rand.New(rand.NewSource(seed+1)), 0),
	}
}

// WithoutLatency turns off the simulated delays.
func (g *Generator) WithoutLatency() *Generator {
	g.DynamicLatency = 0
	g.SimpleLatency = 0
	return g
}

// Dynamic builds a DynamicData payload. It honours ctx while waiting.
func (g *Generator) Dynamic(ctx context.Context) (DynamicData, error) {
	if err := sleep(ctx, g.DynamicLatency); err != nil {
		return DynamicData{}, err
	}

	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	data := DynamicData{
		Message:   "这是带有智能缓存的动态内容",
		Timestamp: now.Format(timestampLayout),
		RandomID:  g.randomIDLocked(now),
		WeatherData: WeatherData{
			City:        "上海",
			Temperature: g.rng.Intn(15) + 15,
			Humidity:    g.rng.Intn(40) + 40,
			Condition:   weatherConditions[g.rng.Intn(len(weatherConditions))],
		},
		NewsItems: make([]NewsItem, 3),
	}
	for i := range data.NewsItems {
		published := now.Add(-time.Duration(g.rng.Int63n(int64(time.Hour))))
		data.NewsItems[i] = NewsItem{
			ID:        i + 1,
			Title:     fmt.Sprintf("实时新闻 %d - %d:%d", i+1, now.Hour(), now.Minute()),
			Summary:   fmt.Sprintf("这是第 %d 条新闻的摘要内容...", i+1),
			Timestamp: published.Format(timestampLayout),
		}
	}
	return data, nil
}

// Simple builds a SimpleData payload.
func (g *Generator) Simple(ctx context.Context) (SimpleData, error) {
	if err := sleep(ctx, g.SimpleLatency); err != nil {
		return SimpleData{}, err
	}

	now := g.clock.Now()

	g.mu.Lock()
	defer g.mu.Unlock()

	return SimpleData{
		Message:   "这是动态数据",
		Timestamp: now.Format(timestampLayout),
		RandomID:  g.randomIDLocked(now),
	}, nil
}

// randomIDLocked returns a short lowercase id. Callers hold g.mu.
func (g *Generator) randomIDLocked(now time.Time) string {
	id := ulid.MustNew(ulid.Timestamp(now), g.entropy)
	// the tail is the random part; nine characters like the page always showed
	s := id.String()
	return strings.ToLower(s[len(s)-9:])
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
