package taskqueue

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nanoserve/nanoserve/internal/httpserver"
	"github.com/nanoserve/nanoserve/internal/router"
)

// idCounter hands out task IDs when a submission doesn't name one.
// It is process-local and monotonic, which is enough to avoid
// collisions within a single server's lifetime.
var idCounter int64

func nextID() ID {
	n := atomic.AddInt64(&idCounter, 1)
	return ID(fmt.Sprintf("task-%d-%d", nowMillis(), n))
}

type submitRequest struct {
	ID        string                 `json:"id"`
	Payload   map[string]interface{} `json:"payload"`
	TimeoutMs int64                  `json:"timeout_ms"`
}

type submitResponse struct {
	ID string `json:"id"`
}

type statusResponse struct {
	ID      ID                     `json:"id"`
	Status  Status                 `json:"status"`
	Attempt int                    `json:"attempt"`
	Payload map[string]interface{} `json:"payload"`
}

// TasksEndpoint serves the entire /tasks surface from a single
// non-strict registration: POST /tasks enqueues a new task, and
// GET /tasks/<id> reports one task's status. A single registration is
// required because the router dispatches purely on path, not method —
// the router hands this endpoint whatever trails "/tasks" in
// PathOverload, and Process tells the two requests apart by method
// and overload length.
type TasksEndpoint struct {
	router.PrefixMatch
	Controller *Controller
}

// Process implements router.Endpoint.
func (e TasksEndpoint) Process(info router.RoutedInfo[*httpserver.RouteInfo]) error {
	ri := info.Data

	// An exact "/tasks" match still carries one overload segment (the
	// "tasks" segment itself); anything deeper carries the task ID too.
	if len(info.PathOverload) <= 1 {
		return e.submit(ri)
	}
	id := ID(info.PathOverload[len(info.PathOverload)-1])
	return e.status(ri, id)
}

func (e TasksEndpoint) submit(ri *httpserver.RouteInfo) error {
	if ri.Request.Method != httpserver.MethodPost {
		return writeJSONError(ri, "405 METHOD NOT ALLOWED", "use POST to create a task")
	}

	body, err := readBody(ri)
	if err != nil {
		return writeJSONError(ri, "400 BAD REQUEST", err.Error())
	}

	var req submitRequest
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			return writeJSONError(ri, "400 BAD REQUEST", "malformed JSON body")
		}
	}

	id := ID(req.ID)
	if id == "" {
		id = nextID()
	}

	task := Task{
		ID:      id,
		Payload: req.Payload,
		Timeout: time.Duration(req.TimeoutMs) * time.Millisecond,
	}

	if err := e.Controller.Enqueue(task); err != nil {
		return writeJSONError(ri, "409 CONFLICT", err.Error())
	}

	return writeJSON(ri, "201 CREATED", submitResponse{ID: string(id)})
}

func (e TasksEndpoint) status(ri *httpserver.RouteInfo, id ID) error {
	if ri.Request.Method != httpserver.MethodGet {
		return writeJSONError(ri, "405 METHOD NOT ALLOWED", "use GET to read a task")
	}

	task := e.Controller.GetTask(id)
	if task == nil {
		return writeJSONError(ri, "404 NOT FOUND", "no such task")
	}

	return writeJSON(ri, "200 OK", statusResponse{
		ID:      task.ID,
		Status:  task.Status,
		Attempt: task.Attempt,
		Payload: task.Payload,
	})
}

func readBody(ri *httpserver.RouteInfo) ([]byte, error) {
	lengthHeader, ok := ri.Request.Header("Content-Length")
	if !ok {
		return nil, nil
	}
	length, err := strconv.Atoi(strings.TrimSpace(lengthHeader))
	if err != nil || length < 0 {
		return nil, fmt.Errorf("invalid Content-Length")
	}
	if length == 0 {
		return nil, nil
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(ri.Reader(), body); err != nil {
		return nil, fmt.Errorf("short body read: %w", err)
	}
	return body, nil
}

func writeJSON(ri *httpserver.RouteInfo, status string, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return writeRaw(ri.Writer(), status, body)
}

func writeJSONError(ri *httpserver.RouteInfo, status string, message string) error {
	body, _ := json.Marshal(map[string]string{"error": message})
	return writeRaw(ri.Writer(), status, body)
}

func writeRaw(w *bufio.Writer, status string, body []byte) error {
	if _, err := fmt.Fprintf(w, "HTTP/1.1 %s\r\n", status); err != nil {
		return err
	}
	if _, err := w.WriteString("Content-Type: application/json\r\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(body)); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}
