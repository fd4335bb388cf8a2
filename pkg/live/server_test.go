package live

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/recera/formflux/pkg/flux"
	"github.com/recera/formflux/pkg/forms"
)

// startTestServer wires a dispatcher, store and live server behind an
// httptest server, returning the ws:// base URL.
func startTestServer(t *testing.T) (*forms.Store, string) {
	t.Helper()

	d := flux.NewDispatcher()
	store := forms.NewStore(d, nil)
	server := NewServer(d, store)

	mux := http.NewServeMux()
	mux.HandleFunc(DefaultLivePath, server.HandleWebSocket)

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	return store, "ws" + strings.TrimPrefix(ts.URL, "http") + DefaultLivePath
}

func TestServer_ActionUpdatesStoreAndAcks(t *testing.T) {
	store, baseURL := startTestServer(t)

	client := NewClient(baseURL + "sess-1")
	acks := make(chan Ack, 1)
	client.OnAck(func(a Ack) { acks <- a })

	if err := client.Connect(); err != nil {
		t.Fatalf("Expected connect to succeed, got %v", err)
	}
	defer client.Close()

	err := client.SendAction(forms.FormDataPatched{
		FormID: "login",
		Update: map[string]any{"email": "a@b.com"},
	})
	if err != nil {
		t.Fatalf("Expected send to succeed, got %v", err)
	}

	select {
	case ack := <-acks:
		if ack.FormID != "login" {
			t.Errorf("Expected ack for login, got %s", ack.FormID)
		}
		if ack.Version != 1 {
			t.Errorf("Expected version 1 in ack, got %d", ack.Version)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for ack")
	}

	form, ok := store.Form("login")
	if !ok {
		t.Fatal("Expected form to exist in server store")
	}
	if form.Data["email"] != "a@b.com" {
		t.Errorf("Expected server store to hold patch, got %v", form.Data)
	}
}

func TestServer_HelloOnConnect(t *testing.T) {
	_, baseURL := startTestServer(t)

	client := NewClient(baseURL + "sess-hello")
	ready := make(chan struct{}, 1)
	client.OnReady(func() { ready <- struct{}{} })

	if err := client.Connect(); err != nil {
		t.Fatalf("Expected connect to succeed, got %v", err)
	}
	defer client.Close()

	select {
	case <-ready:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for server HELLO")
	}
}

func TestServer_TailReceivesActions(t *testing.T) {
	_, baseURL := startTestServer(t)

	// Tail session connects first.
	tailConn, _, err := websocket.DefaultDialer.Dial(baseURL+"tail-1?mode=tail", nil)
	if err != nil {
		t.Fatalf("Expected tail dial to succeed, got %v", err)
	}
	defer tailConn.Close()

	events := make(chan TailEvent, 4)
	go func() {
		for {
			messageType, data, err := tailConn.ReadMessage()
			if err != nil {
				return
			}
			if messageType != websocket.TextMessage {
				continue // skip the binary HELLO
			}
			var event TailEvent
			if json.Unmarshal(data, &event) == nil {
				events <- event
			}
		}
	}()

	client := NewClient(baseURL + "sess-2")
	if err := client.Connect(); err != nil {
		t.Fatalf("Expected connect to succeed, got %v", err)
	}
	defer client.Close()

	err = client.SendAction(forms.FormSubmit{
		FormID:         "signup",
		FormType:       "registration",
		RequestContext: map[string]any{"csrf": "tok"},
	})
	if err != nil {
		t.Fatalf("Expected send to succeed, got %v", err)
	}

	select {
	case event := <-events:
		if event.Type != "FORM_SUBMIT" {
			t.Errorf("Expected tail event FORM_SUBMIT, got %s", event.Type)
		}
		if event.FormID != "signup" || event.FormType != "registration" {
			t.Errorf("Expected signup/registration, got %s/%s", event.FormID, event.FormType)
		}
		if event.Session != "sess-2" {
			t.Errorf("Expected source session sess-2, got %s", event.Session)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for tail event")
	}
}

func TestServer_MirroredDispatcherActions(t *testing.T) {
	store, baseURL := startTestServer(t)

	client := NewClient(baseURL + "sess-3")
	acks := make(chan Ack, 4)
	client.OnAck(func(a Ack) { acks <- a })
	if err := client.Connect(); err != nil {
		t.Fatalf("Expected connect to succeed, got %v", err)
	}
	defer client.Close()

	// Local dispatcher mirrored to the server.
	local := flux.NewDispatcher()
	client.Mirror(local)
	actions := forms.NewActions(local)

	actions.PatchForm("profile", map[string]any{"lang": "en"})
	actions.ResetForm("profile")

	for i := 0; i < 2; i++ {
		select {
		case <-acks:
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out waiting for ack %d", i+1)
		}
	}

	form, ok := store.Form("profile")
	if !ok {
		t.Fatal("Expected form on server after mirrored actions")
	}
	if form.Version != 2 {
		t.Errorf("Expected version 2 after patch+reset, got %d", form.Version)
	}
	if len(form.Data) != 0 {
		t.Errorf("Expected empty data after reset, got %v", form.Data)
	}
}

func TestServer_AcksCarryDistinctVersions(t *testing.T) {
	_, baseURL := startTestServer(t)

	const perClient = 25
	versions := make(chan uint64, 2*perClient)

	// Two sessions hammer the same form; every ack must carry the
	// version its own action produced.
	for i := 0; i < 2; i++ {
		client := NewClient(baseURL + "sess-v" + string(rune('a'+i)))
		client.OnAck(func(a Ack) { versions <- a.Version })
		if err := client.Connect(); err != nil {
			t.Fatalf("Expected connect to succeed, got %v", err)
		}
		defer client.Close()

		go func(c *Client) {
			for j := 0; j < perClient; j++ {
				c.SendAction(forms.FormDataPatched{
					FormID: "shared",
					Update: map[string]any{"n": j},
				})
			}
		}(client)
	}

	seen := make(map[uint64]bool)
	for i := 0; i < 2*perClient; i++ {
		select {
		case v := <-versions:
			if seen[v] {
				t.Fatalf("Expected distinct ack versions, got %d twice", v)
			}
			seen[v] = true
		case <-time.After(5 * time.Second):
			t.Fatalf("Timed out waiting for ack %d", i+1)
		}
	}

	if !seen[uint64(2*perClient)] {
		t.Errorf("Expected final version %d to be acked", 2*perClient)
	}
}

func TestServer_RejectsMissingSessionID(t *testing.T) {
	_, baseURL := startTestServer(t)

	// Dial the bare endpoint with no session ID.
	_, resp, err := websocket.DefaultDialer.Dial(baseURL, nil)
	if err == nil {
		t.Fatal("Expected dial without session ID to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusBadRequest {
		t.Errorf("Expected 400 response, got %+v", resp)
	}
}
