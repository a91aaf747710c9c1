package plannerapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"SPost-Planner/internal/bridge"
	"SPost-Planner/internal/planner"
	"SPost-Planner/internal/posts"
)

type Server struct {
	planner *planner.Manager
}

func NewServer(p *planner.Manager) *Server {
	return &Server{planner: p}
}

func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/posts", s.handlePosts)
	mux.HandleFunc("/api/posts/", s.handlePost)
	mux.HandleFunc("/api/bridge/status", s.handleBridgeStatus)
}

func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	if s.planner == nil {
		writeError(w, http.StatusServiceUnavailable, "planner unavailable")
		return
	}
	switch r.Method {
	case http.MethodOptions:
		writeNoContent(w)
	case http.MethodGet:
		q, err := parseQuery(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		page, err := s.planner.List(r.Context(), q)
		if err != nil {
			writeProblem(w, err)
			return
		}
		writeJSON(w, http.StatusOK, page)
	case http.MethodPost:
		var req planner.DraftInput
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		d, err := s.planner.CreateDraft(r.Context(), req)
		if err != nil {
			writeProblem(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"post": d})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	if s.planner == nil {
		writeError(w, http.StatusServiceUnavailable, "planner unavailable")
		return
	}
	if r.Method == http.MethodOptions {
		writeNoContent(w)
		return
	}
	trimmed := strings.TrimPrefix(r.URL.Path, "/api/posts/")
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, "post id missing")
		return
	}
	id := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch {
	case id == "sync" && action == "" && r.Method == http.MethodPost:
		res, err := s.planner.Sync(r.Context())
		if err != nil {
			writeProblem(w, err)
			return
		}
		writeJSON(w, http.StatusOK, res)
	case id == "stream" && action == "" && r.Method == http.MethodGet:
		s.handleStream(w, r)
	case action == "" && r.Method == http.MethodGet:
		d, err := s.planner.Get(r.Context(), id)
		if err != nil {
			writeProblem(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"post": d})
	case action == "" && r.Method == http.MethodPut:
		var req planner.DraftInput
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		d, err := s.planner.UpdateDraft(r.Context(), id, req)
		if err != nil {
			writeProblem(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"post": d})
	case action == "" && r.Method == http.MethodDelete:
		if err := s.planner.Delete(r.Context(), id); err != nil {
			writeProblem(w, err)
			return
		}
		writeNoContent(w)
	case action == "publish" && r.Method == http.MethodPost:
		d, err := s.planner.Publish(r.Context(), id)
		if err != nil {
			writeProblem(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"post": d})
	case action == "schedule" && r.Method == http.MethodPost:
		var req struct {
			ScheduledAt any `json:"scheduled_at"`
		}
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json")
			return
		}
		d, err := s.planner.Schedule(r.Context(), id, req.ScheduledAt)
		if err != nil {
			writeProblem(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"post": d})
	default:
		writeError(w, http.StatusNotFound, "route not found")
	}
}

func (s *Server) handleBridgeStatus(w http.ResponseWriter, r *http.Request) {
	if s.planner == nil {
		writeError(w, http.StatusServiceUnavailable, "planner unavailable")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.planner.BridgeStatus(r.Context()))
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	ch, cancel, err := s.planner.Subscribe()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			if _, err := w.Write([]byte("event: post\ndata: " + string(msg.Payload) + "\n\n")); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func parseQuery(r *http.Request) (posts.Query, error) {
	v := r.URL.Query()
	q := posts.Query{
		Status: posts.Status(v.Get("status")),
		Tag:    v.Get("tag"),
		Text:   v.Get("q"),
		Sort:   posts.SortField(v.Get("sort")),
		Asc:    v.Get("order") == "asc",
	}
	for key, dst := range map[string]*int{"page": &q.Page, "page_size": &q.PageSize} {
		raw := v.Get(key)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return posts.Query{}, errors.New(key + " must be a non-negative integer")
		}
		*dst = n
	}
	return q, nil
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, posts.ErrPostNotFound):
		return http.StatusNotFound
	case errors.Is(err, planner.ErrAlreadyPublished), errors.Is(err, planner.ErrInFlight):
		return http.StatusConflict
	case errors.Is(err, planner.ErrEmptyContent), errors.Is(err, planner.ErrInvalidStatus):
		return http.StatusBadRequest
	}
	switch bridge.KindOf(err) {
	case bridge.KindValidation:
		return http.StatusBadRequest
	case bridge.KindTimeout:
		return http.StatusGatewayTimeout
	case bridge.KindRemote:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// writeProblem renders err with its kind; remote messages are passed through verbatim.
func writeProblem(w http.ResponseWriter, err error) {
	p := bridge.Describe(err)
	writeJSON(w, statusFor(err), map[string]any{"error": p.Message, "kind": p.Kind})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"error": msg})
}

func writeNoContent(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	w.WriteHeader(http.StatusNoContent)
}
