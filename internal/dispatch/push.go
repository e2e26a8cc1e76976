package dispatch

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// FCMPush posts dispatch events as FCM HTTPv1 data messages for drivers with
// no live feed session. Delivery remains at-most-once: a rejected or dropped
// push is logged by the caller and not retried.
type FCMPush struct {
	Endpoint string
	Key      string
	Client   *http.Client
}

func NewFCMPush(endpoint, key string) *FCMPush {
	return &FCMPush{Endpoint: endpoint, Key: key, Client: &http.Client{Timeout: 3 * time.Second}}
}

func (f *FCMPush) Offer(rideID string, payload any) error {
	body := map[string]any{"message": map[string]any{"data": map[string]any{"ride_id": rideID, "event": payload}}}
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, f.Endpoint, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if f.Key != "" {
		req.Header.Set("Authorization", "Bearer "+f.Key)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("fcm push: status %d", resp.StatusCode)
	}
	return nil
}
