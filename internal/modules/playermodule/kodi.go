// Package playermodule notifies downstream media-player nodes (Kodi-style
// JSON-RPC) when the library changes, and tracks their reported playback
// state.
package playermodule

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/curatarr/curatarr/internal/database"
	apperrors "github.com/curatarr/curatarr/internal/errors"
)

// jsonRPCRequest is the Kodi JSON-RPC envelope.
type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
	ID      int         `json:"id"`
}

type jsonRPCResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// KodiClient calls one media player's JSON-RPC endpoint.
type KodiClient struct {
	player *database.MediaPlayer
	client *http.Client
}

// NewKodiClient creates a client for the player with a per-request timeout.
func NewKodiClient(player *database.MediaPlayer, timeout time.Duration) *KodiClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &KodiClient{
		player: player,
		client: &http.Client{Timeout: timeout},
	}
}

func (k *KodiClient) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	body, err := json.Marshal(jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	})
	if err != nil {
		return nil, apperrors.Permanent("failed to encode rpc request", err)
	}

	endpoint := fmt.Sprintf("http://%s:%d/jsonrpc", k.player.Host, k.player.Port)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, apperrors.Permanent("failed to build rpc request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if k.player.Username != "" {
		req.SetBasicAuth(k.player.Username, k.player.Password)
	}

	resp, err := k.client.Do(req)
	if err != nil {
		return nil, apperrors.Transient(fmt.Sprintf("player %s unreachable", k.player.Name), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, apperrors.Transient(fmt.Sprintf("player %s returned status %d", k.player.Name, resp.StatusCode), nil)
	}

	var rpcResp jsonRPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return nil, apperrors.Transient("failed to decode rpc response", err)
	}
	if rpcResp.Error != nil {
		return nil, apperrors.Permanent(fmt.Sprintf("player %s rpc error: %s", k.player.Name, rpcResp.Error.Message), nil)
	}
	return rpcResp.Result, nil
}

// Ping checks reachability via JSONRPC.Ping.
func (k *KodiClient) Ping(ctx context.Context) error {
	_, err := k.call(ctx, "JSONRPC.Ping", nil)
	return err
}

// ScanVideoLibrary asks the player to rescan its video library. An empty
// directory scans everything; a directory limits the scan to one path, after
// translation through the player's path mappings.
func (k *KodiClient) ScanVideoLibrary(ctx context.Context, directory string) error {
	params := map[string]interface{}{}
	if directory != "" {
		params["directory"] = directory
	}
	_, err := k.call(ctx, "VideoLibrary.Scan", params)
	return err
}

// Notify shows an on-screen notification on the player.
func (k *KodiClient) Notify(ctx context.Context, title, message string) error {
	_, err := k.call(ctx, "GUI.ShowNotification", map[string]interface{}{
		"title":   title,
		"message": message,
	})
	return err
}
