/*
 * Copyright 2025 FTTH Labs.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package notify holds the messaging collaborator. The engine treats
// delivery as fire-and-forget with per-call success accounting; retry
// policy and transport belong to the gateway.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ftthlab/fibermon/pkg/logger"
	"github.com/ftthlab/fibermon/pkg/models"
)

//go:generate mockgen -destination=mock_notify.go -package=notify github.com/ftthlab/fibermon/pkg/notify Messenger

var errUnexpectedStatusCode = errors.New("unexpected status code")

// Messenger delivers one message to one destination address.
type Messenger interface {
	Send(ctx context.Context, address, text string) error
}

// GatewayClient is a Messenger backed by an HTTP messaging gateway.
type GatewayClient struct {
	endpoint string
	token    string
	client   *http.Client
	logger   logger.Logger
}

// NewGatewayClient builds a client from config.
func NewGatewayClient(cfg *models.GatewayConfig, log logger.Logger) *GatewayClient {
	timeout := time.Duration(cfg.Timeout)
	if timeout == 0 {
		timeout = models.DefaultGatewayTimeout
	}

	return &GatewayClient{
		endpoint: cfg.Endpoint,
		token:    cfg.Token,
		client:   &http.Client{Timeout: timeout},
		logger:   log,
	}
}

type sendRequest struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// Send posts one message to the gateway.
func (g *GatewayClient) Send(ctx context.Context, address, text string) error {
	body, err := json.Marshal(sendRequest{To: address, Message: text})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		g.endpoint+"/messages", bytes.NewReader(body))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "application/json")

	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return err
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			g.logger.Warn().Err(err).Msg("Failed to close gateway response body")
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("%w: %d", errUnexpectedStatusCode, resp.StatusCode)
	}

	return nil
}
