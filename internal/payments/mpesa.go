package payments

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// MpesaClient drives Safaricom's Daraja STK push: the passenger gets a PIN
// prompt on their phone and settlement is confirmed via the callback URL
// out-of-band. There is no maintained Go SDK, so this talks to the two HTTP
// endpoints directly.
type MpesaClient struct {
	BaseURL     string
	ConsumerKey string
	Secret      string
	ShortCode   string
	Passkey     string
	CallbackURL string
	Client      *http.Client

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewMpesaClient(baseURL, key, secret, shortCode, passkey, callbackURL string) *MpesaClient {
	return &MpesaClient{
		BaseURL:     baseURL,
		ConsumerKey: key,
		Secret:      secret,
		ShortCode:   shortCode,
		Passkey:     passkey,
		CallbackURL: callbackURL,
		Client:      &http.Client{Timeout: 10 * time.Second},
	}
}

func (m *MpesaClient) Initiate(ctx context.Context, phoneNumber string, amount int64, reference string) error {
	token, err := m.accessToken(ctx)
	if err != nil {
		return fmt.Errorf("mpesa auth: %w", err)
	}

	ts := time.Now().Format("20060102150405")
	password := base64.StdEncoding.EncodeToString([]byte(m.ShortCode + m.Passkey + ts))
	payload := map[string]any{
		"BusinessShortCode": m.ShortCode,
		"Password":          password,
		"Timestamp":         ts,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            amount,
		"PartyA":            phoneNumber,
		"PartyB":            m.ShortCode,
		"PhoneNumber":       phoneNumber,
		"CallBackURL":       m.CallbackURL,
		"AccountReference":  reference,
		"TransactionDesc":   "Ride fare",
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.BaseURL+"/mpesa/stkpush/v1/processrequest", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := m.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out struct {
		ResponseCode        string `json:"ResponseCode"`
		ResponseDescription string `json:"ResponseDescription"`
		ErrorMessage        string `json:"errorMessage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("mpesa response: %w", err)
	}
	if out.ResponseCode != "0" {
		msg := out.ResponseDescription
		if msg == "" {
			msg = out.ErrorMessage
		}
		return rejected(msg)
	}
	return nil
}

// accessToken fetches (and caches) an OAuth bearer token.
func (m *MpesaClient) accessToken(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.token != "" && time.Now().Before(m.tokenExpiry) {
		return m.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.BaseURL+"/oauth/v1/generate?grant_type=client_credentials", nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(m.ConsumerKey, m.Secret)
	resp, err := m.Client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request: status %d", resp.StatusCode)
	}
	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	m.token = out.AccessToken
	// Daraja tokens last 3600s; refresh a minute early.
	m.tokenExpiry = time.Now().Add(59 * time.Minute)
	return m.token, nil
}
