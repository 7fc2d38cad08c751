package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vectormap/internal/config"
	"vectormap/internal/loader"
	"vectormap/internal/map_renderer"
	"vectormap/internal/style_list"
	"vectormap/internal/tile"
)

const maxRenderWait = 30 * time.Second

type Handlers struct {
	config   *config.Config
	logger   *zap.Logger
	styles   *style_list.Scanner
	loader   *loader.Loader
	renderer *map_renderer.Renderer
}

func New(config *config.Config, logger *zap.Logger, styles *style_list.Scanner, l *loader.Loader, renderer *map_renderer.Renderer) *Handlers {
	return &Handlers{
		config:   config,
		logger:   logger,
		styles:   styles,
		loader:   l,
		renderer: renderer,
	}
}

// Routes registers every handler on a new mux.
func (h *Handlers) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/render", h.HandleRender)
	mux.HandleFunc("/api/tiles/", h.HandleTileRoutes)
	mux.HandleFunc("/api/styles", h.HandleStyles)
	mux.HandleFunc("/api/stats", h.HandleStats)
	mux.HandleFunc("/healthz", h.HandleHealthz)
	return mux
}

func (h *Handlers) RequestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()
		start := time.Now()

		ip := h.extractIP(r)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		wrapped.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start)
		bytes := wrapped.bytesWritten

		h.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("ip", ip),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", wrapped.statusCode),
			zap.Int64("bytes", bytes),
			zap.Int64("duration_ms", duration.Milliseconds()),
			zap.String("user_agent", r.UserAgent()),
		)
	})
}

func (h *Handlers) CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowedOrigin := ""

		if h.config.AllowedOrigin != "" {
			allowedOrigin = h.config.AllowedOrigin
		} else {
			host := r.Host
			if origin != "" && (strings.HasPrefix(origin, "http://"+host) || strings.HasPrefix(origin, "https://"+host)) {
				allowedOrigin = origin
			} else if origin == "" {
				allowedOrigin = "*"
			}
		}

		if allowedOrigin != "" {
			w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, If-None-Match")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// HandleStyles lists the style sheets on GET and rescans the styles
// directory on POST.
func (h *Handlers) HandleStyles(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		if err := h.styles.Scan(); err != nil {
			h.logger.Warn("Failed to rescan styles", zap.Error(err))
		}
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(h.styles.GetStyles())
}

func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := h.loader.Stats()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{
		"enqueued":  stats.Enqueued,
		"completed": stats.Completed,
		"cancelled": stats.Cancelled,
	})
}

func (h *Handlers) HandleRender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	req, err := h.parseRenderRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.renderer.RenderPNG(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, map_renderer.ErrInvalidRequest):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, map_renderer.ErrStyleNotFound):
			http.Error(w, err.Error(), http.StatusNotFound)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded),
			errors.Is(err, loader.ErrCancelled):
			http.Error(w, "Request cancelled", http.StatusServiceUnavailable)
		default:
			h.logger.Error("Failed to render map", zap.Error(err))
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("X-Map-Zoom", strconv.Itoa(result.MapZoom))
	w.Header().Set("X-Tiles", strconv.Itoa(result.Tiles))
	w.Header().Set("X-Tiles-Missing", strconv.Itoa(result.Missing))

	if result.Complete {
		etag := `"` + result.ETag + `"`
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
	} else {
		// Partial frames are redrawn once the missing tiles arrive.
		w.Header().Set("Cache-Control", "no-store")
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", fmt.Sprintf("%d", result.Size))

	// HEAD request doesn't send body
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	w.Write(result.Data)
}

func (h *Handlers) parseRenderRequest(r *http.Request) (map_renderer.Request, error) {
	q := r.URL.Query()
	req := map_renderer.Request{
		X:      0.5,
		Y:      0.5,
		Width:  512,
		Height: 512,
		Style:  q.Get("style"),
		Wait:   min(h.config.RenderWait, maxRenderWait),
	}

	floats := []struct {
		name string
		dst  *float64
	}{{"x", &req.X}, {"y", &req.Y}, {"zoom", &req.Zoom}}
	for _, f := range floats {
		if s := q.Get(f.name); s != "" {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return req, fmt.Errorf("invalid %s", f.name)
			}
			*f.dst = v
		}
	}

	ints := []struct {
		name string
		dst  *int
	}{{"w", &req.Width}, {"h", &req.Height}}
	for _, f := range ints {
		if s := q.Get(f.name); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil {
				return req, fmt.Errorf("invalid %s", f.name)
			}
			*f.dst = v
		}
	}

	if s := q.Get("wait"); s != "" {
		d, err := time.ParseDuration(s)
		if err != nil {
			return req, fmt.Errorf("invalid wait")
		}
		req.Wait = min(d, maxRenderWait)
	}
	return req, nil
}

type tileStatus struct {
	Z      int               `json:"z"`
	X      int               `json:"x"`
	Y      int               `json:"y"`
	States map[string]string `json:"states"`
}

// HandleTileRoutes serves /api/tiles/{z}/{x}/{y}: the loader state of every
// kind of one tile. POST also queues the tile for loading.
func (h *Handlers) HandleTileRoutes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/tiles/")
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) != 3 {
		http.NotFound(w, r)
		return
	}

	var z, x, y int
	if _, err := fmt.Sscanf(parts[0], "%d", &z); err != nil {
		http.Error(w, "Invalid zoom level", http.StatusBadRequest)
		return
	}
	if _, err := fmt.Sscanf(parts[1], "%d", &x); err != nil {
		http.Error(w, "Invalid x coordinate", http.StatusBadRequest)
		return
	}
	if _, err := fmt.Sscanf(parts[2], "%d", &y); err != nil {
		http.Error(w, "Invalid y coordinate", http.StatusBadRequest)
		return
	}

	c := tile.Coord{Z: z, X: x, Y: y}
	if !c.Valid() {
		http.Error(w, "Tile outside the grid", http.StatusBadRequest)
		return
	}

	if r.Method == http.MethodPost {
		h.loader.RequestTiles([]tile.Coord{c}, nil, true)
	}

	status := tileStatus{Z: z, X: x, Y: y, States: map[string]string{}}
	for _, kind := range h.loader.Kinds() {
		state, ok := h.loader.State(c, kind)
		if !ok {
			status.States[kind.String()] = "absent"
			continue
		}
		status.States[kind.String()] = state.String()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// Not for real production use due to potential spoofing
func (h *Handlers) extractIP(r *http.Request) string {
	ip := r.Header.Get("X-Real-Ip")
	if ip != "" {
		return strings.Split(ip, ":")[0]
	}

	addr := r.RemoteAddr
	if addr != "" {
		return strings.Split(addr, ":")[0]
	}

	return "unknown"
}

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int64
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += int64(n)
	return n, err
}
