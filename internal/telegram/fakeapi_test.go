package telegram

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path"
	"strconv"
	"strings"
	"sync"
	"testing"
)

const testToken = "123:test-token"

// fakeBotAPI is a minimal in-process Bot API server
type fakeBotAPI struct {
	server *httptest.Server

	mu       sync.Mutex
	requests []fakeRequest
	// statuses maps user_id to a chat member status
	statuses map[string]string
	// failures maps a method to an error description returned with code 400
	failures map[string]string
}

type fakeRequest struct {
	Method string
	Form   url.Values
}

func newFakeBotAPI(t *testing.T) *fakeBotAPI {
	f := &fakeBotAPI{
		statuses: make(map[string]string),
		failures: make(map[string]string),
	}
	f.server = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeBotAPI) endpoint() string {
	return f.server.URL + "/bot%s/%s"
}

func (f *fakeBotAPI) serve(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, "/bot"+testToken+"/") {
		http.NotFound(w, r)
		return
	}
	_ = r.ParseForm()
	method := path.Base(r.URL.Path)

	f.mu.Lock()
	f.requests = append(f.requests, fakeRequest{Method: method, Form: r.PostForm})
	failure, failed := f.failures[method]
	status := f.statuses[r.PostForm.Get("user_id")]
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if failed {
		fmt.Fprintf(w, `{"ok":false,"error_code":400,"description":%q}`, failure)
		return
	}

	var result any
	switch method {
	case "getMe":
		result = map[string]any{"id": 1, "is_bot": true, "first_name": "Marsu", "username": "marsu_bot"}
	case "getChatMember":
		if status == "" {
			status = "left"
		}
		result = map[string]any{
			"user":      map[string]any{"id": 1, "is_bot": false, "first_name": "x"},
			"status":    status,
			"is_member": status == "restricted_member",
		}
		if status == "restricted_member" {
			result.(map[string]any)["status"] = "restricted"
		}
	case "sendMessage":
		result = map[string]any{"message_id": 1, "date": 0, "chat": map[string]any{"id": 1, "type": "private"}}
	case "getUpdates":
		result = []any{}
	default:
		result = true
	}
	_ = json.NewEncoder(w).Encode(map[string]any{"ok": true, "result": result})
}

func (f *fakeBotAPI) setStatus(userID int64, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[strconv.FormatInt(userID, 10)] = status
}

func (f *fakeBotAPI) fail(method, description string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[method] = description
}

func (f *fakeBotAPI) calls(method string) []fakeRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []fakeRequest
	for _, r := range f.requests {
		if r.Method == method {
			out = append(out, r)
		}
	}
	return out
}
