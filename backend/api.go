package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// API calls the backend's HTTP routes. It is what a console uses to get a
// token before starting the event channel.
type API struct {
	BaseURL string // e.g. http://127.0.0.1:8080
	HTTP    *http.Client
}

// APIError carries a non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Message)
}

// Login exchanges credentials for a token.
func (a *API) Login(ctx context.Context, username, password string) (string, error) {
	var out loginResponse
	err := a.call(ctx, "/api/login", "", loginRequest{Username: username, Password: password}, &out)
	return out.Token, err
}

// Logout revokes token.
func (a *API) Logout(ctx context.Context, token string) error {
	return a.call(ctx, "/api/logout", token, nil, nil)
}

// Publish broadcasts an event and returns how many consoles it reached.
func (a *API) Publish(ctx context.Context, token string, eventType int, payload json.RawMessage) (int, error) {
	var out map[string]int
	err := a.call(ctx, "/api/events", token, publishRequest{Type: &eventType, Payload: payload}, &out)
	return out["delivered"], err
}

// Kick forces the consoles holding victim out.
func (a *API) Kick(ctx context.Context, token, victim string) (int, error) {
	var out map[string]int
	err := a.call(ctx, "/api/kick", token, kickRequest{Token: victim}, &out)
	return out["kicked"], err
}

func (a *API) call(ctx context.Context, path, token string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(a.BaseURL, "/")+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	httpClient := a.HTTP
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
