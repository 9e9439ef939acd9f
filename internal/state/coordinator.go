package state

import (
	"bytes"
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"cdr.dev/slog/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/runnerr0/visitrelay/internal/storage"
	"github.com/runnerr0/visitrelay/internal/visit"
)

// changeBuffer is the per-subscriber queue depth. Slow subscribers miss
// notifications rather than block writers.
const changeBuffer = 16

// Change reports which keys a write touched.
type Change struct {
	Keys []string  `json:"keys"`
	At   time.Time `json:"at"`
}

// Coordinator serializes every read-modify-write of the durable state.
type Coordinator struct {
	store   storage.Store
	log     slog.Logger
	metrics *Metrics

	// mu is held for the whole of each read-modify-write.
	mu sync.Mutex

	subMu   sync.Mutex
	subs    map[uint64]chan Change
	nextSub uint64
}

// Option configures a Coordinator.
type Option func(c *Coordinator)

func WithLogger(log slog.Logger) Option {
	return func(c *Coordinator) {
		c.log = log
	}
}

// New returns a Coordinator persisting through store. reg may be nil.
func New(store storage.Store, reg prometheus.Registerer, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:   store,
		metrics: NewMetrics(),
		subs:    make(map[uint64]chan Change),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.metrics.register(reg)
	return c
}

// Load returns a fresh snapshot of the durable state.
func (c *Coordinator) Load(ctx context.Context) (*State, error) {
	raw, err := c.store.Get(ctx, AllKeys...)
	if err != nil {
		return nil, fmt.Errorf("reading state: %w: %w", ErrStorage, err)
	}
	st, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("reading state: %w: %w", ErrStorage, err)
	}
	return st, nil
}

// Update loads the state, applies fn and writes back only the keys fn
// changed. The read and the write are one storage.Store Update, so no other
// writer on the same store, in this process or another, lands in between.
// fn may run more than once if the store retries. If fn returns an error
// nothing is written.
func (c *Coordinator) Update(ctx context.Context, fn func(st *State) error) (*State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		next    *State
		changed map[string][]byte
		fnErr   error
	)
	err := c.store.Update(ctx, AllKeys, func(raw map[string][]byte) (storage.Changes, error) {
		next, changed, fnErr = nil, nil, nil
		st, err := decode(raw)
		if err != nil {
			fnErr = fmt.Errorf("reading state: %w: %w", ErrStorage, err)
			return storage.Changes{}, fnErr
		}
		before, err := encode(st)
		if err != nil {
			fnErr = err
			return storage.Changes{}, err
		}

		next = st.clone()
		if err := fn(next); err != nil {
			fnErr = err
			return storage.Changes{}, err
		}

		after, err := encode(next)
		if err != nil {
			fnErr = err
			return storage.Changes{}, err
		}
		changed = make(map[string][]byte)
		for key, data := range after {
			if !bytes.Equal(before[key], data) {
				changed[key] = data
			}
		}
		return storage.Changes{Set: changed}, nil
	})
	if fnErr != nil {
		return nil, fnErr
	}
	if err != nil {
		return nil, fmt.Errorf("updating state: %w: %w", ErrStorage, err)
	}
	if len(changed) == 0 {
		return next, nil
	}

	c.metrics.bufferEntries.Set(float64(len(next.Entries)))
	c.publish(sortedKeys(changed))
	return next, nil
}

// Settle records a confirmed delivery: the entries with the given IDs leave
// the buffer and the last-sent time becomes at, in the same write. Entries
// appended after the send began are kept.
func (c *Coordinator) Settle(ctx context.Context, sentIDs []string, at time.Time) (*State, error) {
	sent := make(map[string]struct{}, len(sentIDs))
	for _, id := range sentIDs {
		sent[id] = struct{}{}
	}
	return c.Update(ctx, func(st *State) error {
		st.Entries = slices.DeleteFunc(st.Entries, func(e visit.Entry) bool {
			_, ok := sent[e.ID]
			return ok
		})
		st.LastSentAtMillis = at.UnixMilli()
		return nil
	})
}

// Purge drops every buffered entry without sending it and returns how many
// were dropped. The last-sent time is left unchanged.
func (c *Coordinator) Purge(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var dropped int
	err := c.store.Update(ctx, []string{KeyVisitLog}, func(raw map[string][]byte) (storage.Changes, error) {
		st, err := decode(raw)
		if err != nil {
			return storage.Changes{}, err
		}
		dropped = len(st.Entries)
		if dropped == 0 {
			return storage.Changes{}, nil
		}
		return storage.Changes{Remove: []string{KeyVisitLog}}, nil
	})
	if err != nil {
		return 0, fmt.Errorf("purging buffer: %w: %w", ErrStorage, err)
	}
	if dropped == 0 {
		return 0, nil
	}

	c.metrics.bufferEntries.Set(0)
	c.publish([]string{KeyVisitLog})
	return dropped, nil
}

// Settings returns the current user settings.
func (c *Coordinator) Settings(ctx context.Context) (Settings, error) {
	st, err := c.Load(ctx)
	if err != nil {
		return Settings{}, err
	}
	return st.Settings, nil
}

// UpdateSettings applies fn to the settings. Allowlist entries are trimmed
// and de-duplicated before they are stored.
func (c *Coordinator) UpdateSettings(ctx context.Context, fn func(s *Settings)) (Settings, error) {
	st, err := c.Update(ctx, func(st *State) error {
		fn(&st.Settings)
		st.Settings.AllowlistDomains = cleanDomains(st.Settings.AllowlistDomains)
		return nil
	})
	if err != nil {
		return Settings{}, err
	}
	return st.Settings, nil
}

// HostnameCount is one row of a Summary.
type HostnameCount struct {
	Hostname string `json:"hostname"`
	Count    int    `json:"count"`
}

// Summary describes the buffer for display.
type Summary struct {
	Total     int             `json:"total"`
	Hostnames []HostnameCount `json:"hostnames"`
}

// Summarize counts buffered entries per hostname, most visited first and
// alphabetical among ties.
func Summarize(st *State) Summary {
	counts := make(map[string]int)
	for _, e := range st.Entries {
		counts[e.Hostname]++
	}

	rows := make([]HostnameCount, 0, len(counts))
	for hostname, n := range counts {
		rows = append(rows, HostnameCount{Hostname: hostname, Count: n})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count != rows[j].Count {
			return rows[i].Count > rows[j].Count
		}
		return rows[i].Hostname < rows[j].Hostname
	})

	return Summary{Total: len(st.Entries), Hostnames: rows}
}

// Summary loads the state and summarizes its buffer.
func (c *Coordinator) Summary(ctx context.Context) (Summary, error) {
	st, err := c.Load(ctx)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(st), nil
}

// Subscribe returns a channel of change notifications and a func that
// unsubscribes and closes it.
func (c *Coordinator) Subscribe() (<-chan Change, func()) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	id := c.nextSub
	c.nextSub++
	ch := make(chan Change, changeBuffer)
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.subMu.Lock()
			defer c.subMu.Unlock()
			delete(c.subs, id)
			close(ch)
		})
	}
}

func (c *Coordinator) publish(keys []string) {
	change := Change{Keys: keys, At: time.Now()}

	c.subMu.Lock()
	defer c.subMu.Unlock()
	for _, ch := range c.subs {
		select {
		case ch <- change:
		default:
			c.log.Debug(context.Background(), "change subscriber full, dropping notification",
				slog.F("keys", keys))
		}
	}
}

func sortedKeys(m map[string][]byte) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func cleanDomains(domains []string) []string {
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.TrimSpace(d)
		if d == "" || slices.Contains(out, d) {
			continue
		}
		out = append(out, d)
	}
	return out
}
