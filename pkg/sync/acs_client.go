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

package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ftthlab/fibermon/pkg/logger"
	"github.com/ftthlab/fibermon/pkg/models"
)

const acsProjection = "_id,_lastInform,_deviceId,VirtualParameters.IPAddress"

// HTTPACSClient talks to a GenieACS-compatible northbound API.
type HTTPACSClient struct {
	endpoint string
	token    string
	client   *http.Client
	logger   logger.Logger
}

// NewHTTPACSClient creates an ACS client from config.
func NewHTTPACSClient(cfg *models.ACSConfig, log logger.Logger) (*HTTPACSClient, error) {
	if cfg.Endpoint == "" {
		return nil, errACSEndpointRequired
	}

	return &HTTPACSClient{
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		token:    cfg.Token,
		client:   &http.Client{Timeout: 30 * time.Second},
		logger:   log,
	}, nil
}

// acsRawDevice mirrors the wire shape of one ACS device document.
type acsRawDevice struct {
	ID         string     `json:"_id"`
	LastInform *time.Time `json:"_lastInform"`
	DeviceID   struct {
		Manufacturer string `json:"_Manufacturer"`
		ProductClass string `json:"_ProductClass"`
		SerialNumber string `json:"_SerialNumber"`
	} `json:"_deviceId"`
	VirtualParameters struct {
		IPAddress struct {
			Value string `json:"_value"`
		} `json:"IPAddress"`
	} `json:"VirtualParameters"`
}

// FetchDevices requests one page of device documents.
func (c *HTTPACSClient) FetchDevices(ctx context.Context, limit, skip int) ([]ACSDevice, error) {
	query := url.Values{}
	query.Set("limit", strconv.Itoa(limit))
	query.Set("skip", strconv.Itoa(skip))
	query.Set("projection", acsProjection)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoint+"/devices?"+query.Encode(), http.NoBody)
	if err != nil {
		return nil, err
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Warn().Err(err).Msg("Failed to close ACS response body")
		}
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: %d", errUnexpectedStatusCode, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var raw []acsRawDevice

	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode ACS device page: %w", err)
	}

	devices := make([]ACSDevice, 0, len(raw))

	for i := range raw {
		devices = append(devices, ACSDevice{
			ID:           raw[i].ID,
			Manufacturer: raw[i].DeviceID.Manufacturer,
			ProductClass: raw[i].DeviceID.ProductClass,
			SerialNumber: raw[i].DeviceID.SerialNumber,
			IPAddress:    raw[i].VirtualParameters.IPAddress.Value,
			LastInform:   raw[i].LastInform,
		})
	}

	return devices, nil
}
