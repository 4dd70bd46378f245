package db

import (
	"encoding/json"

	"github.com/ftthlab/fibermon/pkg/logger"
)

// encodeMetadata serializes an open metadata map for storage. A nil map
// is stored as an empty object so reads stay uniform.
func encodeMetadata(m map[string]interface{}) []byte {
	if m == nil {
		return []byte("{}")
	}

	data, err := json.Marshal(m)
	if err != nil {
		return []byte("{}")
	}

	return data
}

// decodeMetadata deserializes stored metadata, returning nil instead of
// an error so one corrupt record never loses the rest of a report.
func decodeMetadata(data []byte, log logger.Logger, deviceID string) map[string]interface{} {
	if len(data) == 0 {
		return nil
	}

	var m map[string]interface{}
	if err := json.Unmarshal(data, &m); err != nil {
		log.Warn().Err(err).Str("device_id", deviceID).Msg("Failed to decode device metadata")
		return nil
	}

	return m
}
