package fakeocr

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// Reply is one scripted response.
type Reply struct {
	// Status is the HTTP status code; 0 means 200
	Status int

	// Body is encoded as JSON unless Raw is set
	Body any

	// Raw is written verbatim when non-empty
	Raw string

	// Delay holds the response back, or until the client gives up
	Delay time.Duration
}

// Submission records one upload.
type Submission struct {
	TaskID      string
	Field       string
	Filename    string
	ContentType string
	Data        []byte
	RequestID   string
}

// Server is a scripted OCR service.
type Server struct {
	srv *httptest.Server

	mu          sync.Mutex
	scripts     map[string][]Reply
	calls       map[string]int
	submissions []Submission
	requestIDs  []string
	health      Reply
	imageReply  *Reply

	// NextTaskID, when set, supplies the id returned for the next upload
	NextTaskID func() string
}

// New starts a fake server that is closed when the test ends.
func New(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		scripts: make(map[string][]Reply),
		calls:   make(map[string]int),
		health: Reply{Body: map[string]any{
			"status":           "healthy",
			"model_loaded":     true,
			"inference_engine": "vllm_direct",
		}},
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Use(s.recordRequestID)

	router.Get("/health", s.handleHealth)
	router.Route("/api", func(r chi.Router) {
		r.Post("/ocr/pdf", s.handleSubmit)
		r.Post("/ocr/image", s.handleImage)
		r.Get("/tasks/{id}", s.handleStatus)
	})

	s.srv = httptest.NewServer(router)
	t.Cleanup(s.srv.Close)
	return s
}

// URL returns the base URL of the server.
func (s *Server) URL() string {
	return s.srv.URL
}

// Script sets the replies for GET /api/tasks/{taskID}. Replies are served in
// order and the last one repeats. Unscripted ids get a 404 with a detail.
func (s *Server) Script(taskID string, replies ...Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[taskID] = replies
}

// SetHealth replaces the /health reply.
func (s *Server) SetHealth(r Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health = r
}

// SetImageReply replaces the POST /api/ocr/image reply. Without one the
// server answers with ImageOCR for a fresh task id.
func (s *Server) SetImageReply(r Reply) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imageReply = &r
}

// StatusCalls returns how many status queries taskID received.
func (s *Server) StatusCalls(taskID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[taskID]
}

// Submissions returns every upload received so far.
func (s *Server) Submissions() []Submission {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Submission, len(s.submissions))
	copy(out, s.submissions)
	return out
}

// RequestIDs returns the X-Request-ID of every request, in arrival order.
func (s *Server) RequestIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.requestIDs))
	copy(out, s.requestIDs)
	return out
}

func (s *Server) recordRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requestIDs = append(s.requestIDs, r.Header.Get("X-Request-ID"))
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	reply := s.health
	s.mu.Unlock()
	s.write(w, r, reply)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	script, ok := s.scripts[id]
	n := s.calls[id]
	s.calls[id] = n + 1
	s.mu.Unlock()

	if !ok || len(script) == 0 {
		s.write(w, r, Detail(http.StatusNotFound, "Task not found"))
		return
	}
	if n >= len(script) {
		n = len(script) - 1
	}
	s.write(w, r, script[n])
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	taskID, ok := s.receive(w, r, "pdf", func(contentType string) bool {
		return contentType == "application/pdf" || contentType == "application/x-pdf"
	})
	if !ok {
		return
	}
	s.write(w, r, Reply{Status: http.StatusAccepted, Body: map[string]string{"task_id": taskID}})
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	taskID, ok := s.receive(w, r, "image", func(contentType string) bool {
		return strings.HasPrefix(contentType, "image/")
	})
	if !ok {
		return
	}

	s.mu.Lock()
	reply := s.imageReply
	s.mu.Unlock()
	if reply != nil {
		s.write(w, r, *reply)
		return
	}
	s.write(w, r, OK(ImageOCR(taskID)))
}

// receive reads the file part named field and records it as a submission.
// When it returns false an error reply has already been written.
func (s *Server) receive(w http.ResponseWriter, r *http.Request, field string, accept func(string) bool) (string, bool) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		s.write(w, r, Detail(http.StatusBadRequest, "invalid multipart body"))
		return "", false
	}
	file, header, err := r.FormFile(field)
	if err != nil {
		s.write(w, r, Detail(http.StatusUnprocessableEntity, "field required: "+field))
		return "", false
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if !accept(contentType) {
		s.write(w, r, Detail(http.StatusBadRequest, "unsupported content type "+contentType))
		return "", false
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.write(w, r, Detail(http.StatusBadRequest, "unreadable upload"))
		return "", false
	}

	taskID := uuid.NewString()
	if s.NextTaskID != nil {
		taskID = s.NextTaskID()
	}

	s.mu.Lock()
	s.submissions = append(s.submissions, Submission{
		TaskID:      taskID,
		Field:       field,
		Filename:    header.Filename,
		ContentType: contentType,
		Data:        data,
		RequestID:   r.Header.Get("X-Request-ID"),
	})
	s.mu.Unlock()
	return taskID, true
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, reply Reply) {
	if reply.Delay > 0 {
		select {
		case <-time.After(reply.Delay):
		case <-r.Context().Done():
			return
		}
	}

	status := reply.Status
	if status == 0 {
		status = http.StatusOK
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if reply.Raw != "" {
		_, _ = io.WriteString(w, reply.Raw)
		return
	}
	if reply.Body != nil {
		_ = json.NewEncoder(w).Encode(reply.Body)
	}
}
