package api

import (
	"encoding/json"
	"fmt"

	"github.com/labstack/echo/v4"
)

// writeSSE writes a named event with a JSON payload and flushes it.
func writeSSE(res *echo.Response, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(res, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	res.Flush()
	return nil
}
