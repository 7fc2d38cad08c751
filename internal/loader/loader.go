// Package loader keeps decoded tiles in memory and fills misses in the
// background from the disk cache and the network.
package loader

import (
	"context"
	"errors"
	"image"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vectormap/internal/cache"
	"vectormap/internal/tile"
	"vectormap/internal/vectortile"
)

// OverrideFunc supplies tile bytes in place of the disk and network tiers.
// Returning false means the tile does not exist.
type OverrideFunc func(c tile.Coord, kind tile.Kind) ([]byte, bool)

type Options struct {
	// Cache is the disk tier. Nil disables it.
	Cache cache.Cache
	// Fetcher is the network tier. Nil means local-only.
	Fetcher      Fetcher
	LoadRaster   bool
	Workers      int
	Override     OverrideFunc
	DecodeRaster RasterDecoder
	Logger       *zap.Logger
}

// Snapshot is what RequestTiles knew at call time: the state of every
// requested entry that is already terminal, and the payloads of those that
// are Ok.
type Snapshot struct {
	States map[cache.Key]State
	Vector map[tile.Coord]*vectortile.Tile
	Raster map[tile.Coord]image.Image
}

func newSnapshot() Snapshot {
	return Snapshot{
		States: make(map[cache.Key]State),
		Vector: make(map[tile.Coord]*vectortile.Tile),
		Raster: make(map[tile.Coord]image.Image),
	}
}

type Stats struct {
	Enqueued  int64
	Completed int64
	Cancelled int64
}

type vectorEntry struct {
	state State
	tile  *vectortile.Tile
}

type rasterEntry struct {
	state State
	image image.Image
}

type job struct {
	coord   tile.Coord
	kinds   []tile.Kind
	onReady func(tile.Coord)
	batch   string
}

// Loader is the memory tier. One mutex guards both kind maps and the job
// queue; it is never held during I/O or decoding.
type Loader struct {
	cache        cache.Cache
	fetcher      Fetcher
	loadRaster   bool
	override     OverrideFunc
	decodeRaster RasterDecoder
	log          *zap.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	vector map[tile.Coord]*vectorEntry
	raster map[tile.Coord]*rasterEntry
	queue  []job
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	enqueued  atomic.Int64
	completed atomic.Int64
	cancelled atomic.Int64
}

// New starts a loader with its worker pool.
func New(opts Options) *Loader {
	if opts.Cache == nil {
		opts.Cache = cache.NewNoopCache()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.DecodeRaster == nil {
		opts.DecodeRaster = DecodeImage
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Loader{
		cache:        opts.Cache,
		fetcher:      opts.Fetcher,
		loadRaster:   opts.LoadRaster,
		override:     opts.Override,
		decodeRaster: opts.DecodeRaster,
		log:          opts.Logger,
		vector:       make(map[tile.Coord]*vectorEntry),
		raster:       make(map[tile.Coord]*rasterEntry),
		ctx:          ctx,
		cancel:       cancel,
	}
	l.cond = sync.NewCond(&l.mu)

	for range opts.Workers {
		l.wg.Add(1)
		go l.worker()
	}
	return l
}

// NewLocalOnly is a loader that reads the disk tier and never the network.
func NewLocalOnly(c cache.Cache, loadRaster bool, log *zap.Logger) *Loader {
	return New(Options{Cache: c, LoadRaster: loadRaster, Logger: log})
}

// Kinds lists the tile kinds this loader keeps.
func (l *Loader) Kinds() []tile.Kind {
	if l.loadRaster {
		return tile.Kinds
	}
	return tile.Kinds[:1]
}

// RequestTiles returns immediately with everything already known about
// coords. With loadMissing, absent entries are marked Pending and one job per
// coordinate is queued; entries already Pending are left to the job that owns
// them. onReady, if set, is called from a worker goroutine once every kind
// queued for a coordinate has finished, unless the job was cancelled.
func (l *Loader) RequestTiles(coords []tile.Coord, onReady func(tile.Coord), loadMissing bool) Snapshot {
	snap := newSnapshot()
	var batch string

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, c := range coords {
		if !c.Valid() {
			continue
		}
		var missing []tile.Kind
		for _, kind := range l.Kinds() {
			if l.snapshotLocked(c, kind, &snap) {
				continue
			}
			if loadMissing && !l.closed {
				l.markPendingLocked(c, kind)
				missing = append(missing, kind)
			}
		}
		if len(missing) == 0 {
			continue
		}
		if batch == "" {
			batch = uuid.NewString()
		}
		l.queue = append(l.queue, job{coord: c, kinds: missing, onReady: onReady, batch: batch})
		l.enqueued.Add(1)
		l.cond.Signal()
	}

	if batch != "" {
		l.log.Debug("Queued tile loads",
			zap.String("batch", batch),
			zap.Int("requested", len(coords)),
			zap.Int("queue", len(l.queue)))
	}
	return snap
}

// snapshotLocked records a terminal entry in snap and reports whether an
// entry exists at all.
func (l *Loader) snapshotLocked(c tile.Coord, kind tile.Kind, snap *Snapshot) bool {
	key := cache.Key{Coord: c, Kind: kind}
	switch kind {
	case tile.Vector:
		e, ok := l.vector[c]
		if !ok {
			return false
		}
		if e.state.Terminal() {
			snap.States[key] = e.state
		}
		if e.state == Ok {
			snap.Vector[c] = e.tile
		}
		return true
	default:
		e, ok := l.raster[c]
		if !ok {
			return false
		}
		if e.state.Terminal() {
			snap.States[key] = e.state
		}
		if e.state == Ok {
			snap.Raster[c] = e.image
		}
		return true
	}
}

func (l *Loader) markPendingLocked(c tile.Coord, kind tile.Kind) {
	if kind == tile.Vector {
		l.vector[c] = &vectorEntry{state: Pending}
	} else {
		l.raster[c] = &rasterEntry{state: Pending}
	}
}

// State reports the current state of one entry.
func (l *Loader) State(c tile.Coord, kind tile.Kind) (State, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if kind == tile.Vector {
		if e, ok := l.vector[c]; ok {
			return e.state, true
		}
		return Pending, false
	}
	if e, ok := l.raster[c]; ok {
		return e.state, true
	}
	return Pending, false
}

func (l *Loader) Stats() Stats {
	return Stats{
		Enqueued:  l.enqueued.Load(),
		Completed: l.completed.Load(),
		Cancelled: l.cancelled.Load(),
	}
}

// Close stops the worker pool. Queued jobs end Cancelled, in-flight network
// requests are aborted and Close waits for the workers to exit.
func (l *Loader) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil
	}
	l.closed = true
	drained := l.queue
	l.queue = nil
	for _, j := range drained {
		for _, kind := range j.kinds {
			l.finishLocked(j.coord, kind, Cancelled, nil)
		}
	}
	l.cond.Broadcast()
	l.mu.Unlock()

	l.cancelled.Add(int64(len(drained)))
	if len(drained) > 0 {
		l.log.Info("Cancelled queued tile loads", zap.Int("jobs", len(drained)))
	}

	l.cancel()
	l.wg.Wait()
	return nil
}

func (l *Loader) worker() {
	defer l.wg.Done()
	for {
		l.mu.Lock()
		for len(l.queue) == 0 && !l.closed {
			l.cond.Wait()
		}
		if l.closed {
			l.mu.Unlock()
			return
		}
		j := l.queue[0]
		l.queue[0] = job{}
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.run(j)
	}
}

func (l *Loader) run(j job) {
	cancelled := false
	for _, kind := range j.kinds {
		state, payload := l.load(j.coord, kind)

		l.mu.Lock()
		l.finishLocked(j.coord, kind, state, payload)
		l.mu.Unlock()

		if state == Cancelled {
			cancelled = true
		}
	}

	if cancelled {
		l.cancelled.Add(1)
		return
	}
	l.completed.Add(1)
	l.log.Debug("Tile job finished", zap.String("batch", j.batch), zap.Stringer("tile", j.coord))
	if j.onReady != nil {
		j.onReady(j.coord)
	}
}

func (l *Loader) finishLocked(c tile.Coord, kind tile.Kind, state State, payload any) {
	if kind == tile.Vector {
		e := &vectorEntry{state: state}
		if state == Ok {
			e.tile = payload.(*vectortile.Tile)
		}
		l.vector[c] = e
		return
	}
	e := &rasterEntry{state: state}
	if state == Ok {
		e.image = payload.(image.Image)
	}
	l.raster[c] = e
}

// load resolves one entry: override, else disk, else network.
func (l *Loader) load(c tile.Coord, kind tile.Kind) (State, any) {
	log := l.log.With(zap.Stringer("tile", c), zap.Stringer("kind", kind))

	if l.ctx.Err() != nil {
		return Cancelled, nil
	}

	if l.override != nil {
		data, ok := l.override(c, kind)
		if !ok {
			log.Debug("Override has no tile")
			return UnknownError, nil
		}
		return l.parse(kind, data, log)
	}

	key := cache.Key{Coord: c, Kind: kind}
	if data, ok := l.cache.Get(key); ok {
		state, payload := l.parse(kind, data, log)
		if state == Ok || l.fetcher == nil {
			return state, payload
		}
		log.Debug("Cached tile is corrupt, refetching")
	}

	if l.fetcher == nil {
		return UnknownError, nil
	}

	data, err := l.fetcher.Fetch(l.ctx, c, kind)
	if err != nil {
		if l.ctx.Err() != nil || errors.Is(err, context.Canceled) {
			return Cancelled, nil
		}
		if errors.Is(err, ErrNotFound) {
			log.Debug("Tile not found upstream", zap.Error(err))
		} else {
			log.Warn("Failed to fetch tile", zap.Error(err))
		}
		return UnknownError, nil
	}

	state, payload := l.parse(kind, data, log)
	if state != Ok {
		return state, nil
	}
	if err := l.cache.Set(key, data); err != nil {
		log.Warn("Failed to persist tile", zap.Error(err))
	}
	return Ok, payload
}

func (l *Loader) parse(kind tile.Kind, data []byte, log *zap.Logger) (State, any) {
	if kind == tile.Vector {
		t, err := vectortile.Decode(data)
		if err != nil {
			log.Debug("Failed to parse vector tile", zap.Error(err))
			return ParsingFailed, nil
		}
		return Ok, t
	}
	img, err := l.decodeRaster(data)
	if err != nil {
		log.Debug("Failed to parse raster tile", zap.Error(err))
		return ParsingFailed, nil
	}
	return Ok, img
}
