package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Webhook posts events to an external notification backend (an app-push
// relay, typically). It is the fallback leg of a Fanout behind the Hub.
type Webhook struct {
	Endpoint string
	Client   *http.Client
}

func NewWebhook(endpoint string) *Webhook {
	return &Webhook{Endpoint: endpoint, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (w *Webhook) NotifyDriver(driverID string, ev Event) error {
	return w.post("driver", driverID, ev)
}

func (w *Webhook) NotifyRider(riderID string, ev Event) error {
	return w.post("rider", riderID, ev)
}

func (w *Webhook) post(kind, id string, ev Event) error {
	body, err := json.Marshal(map[string]interface{}{"target_kind": kind, "target_id": id, "event": ev})
	if err != nil {
		return err
	}
	resp, err := w.Client.Post(w.Endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook status %d", resp.StatusCode)
	}
	return nil
}
