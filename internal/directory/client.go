// Package directory looks up doctor profiles by wallet address against the
// portal's REST backend. Results enrich what the session displays; they are
// never consulted for access-control decisions.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

type Doctor struct {
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
	Hospital       string `json:"hospital"`
	Email          string `json:"email"`
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *zap.Logger
}

func New(baseURL, token string, log *zap.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

// DoctorByWallet fetches the doctor profile registered for a wallet address.
func (c *Client) DoctorByWallet(ctx context.Context, address string) (Doctor, error) {
	url := fmt.Sprintf("%s/api/auth/doctors/wallet/%s", c.baseURL, address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Doctor{}, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Doctor{}, fmt.Errorf("directory lookup failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Doctor{}, fmt.Errorf("directory lookup returned status %d", resp.StatusCode)
	}

	var doctor Doctor
	if err := json.NewDecoder(resp.Body).Decode(&doctor); err != nil {
		return Doctor{}, fmt.Errorf("failed to decode doctor profile: %w", err)
	}
	return doctor, nil
}

// Placeholder builds a display profile from the bare address when the
// directory is unreachable, so pending requests still render.
func Placeholder(address string) Doctor {
	short := address
	if len(short) > 8 {
		short = short[:8] + "..."
	}
	return Doctor{
		Name:           fmt.Sprintf("Doctor (%s)", short),
		Specialization: "Not available",
		Hospital:       "Not available",
		Email:          "Not available",
	}
}
