package extract

import (
	"context"

	"github.com/inkbooks/ledger_backend/config"
	"github.com/sirupsen/logrus"
)

type embedRequest struct {
	Text string `json:"text"`
}

type embedResponse struct {
	Vector []float64 `json:"vector"`
}

// EmbedText asks the vector service for an embedding. Failure is non-fatal by
// contract: callers persist the record with no vector and move on.
func (c *Client) EmbedText(ctx context.Context, text string) []float64 {
	if text == "" {
		return nil
	}
	var resp embedResponse
	if err := c.postJSON(ctx, "/v1/embed", embedRequest{Text: text}, &resp); err != nil {
		config.GetLogger().WithFields(logrus.Fields{
			"text_len": len(text),
		}).Warn("vector service failed (non-fatal): " + err.Error())
		return nil
	}
	return resp.Vector
}
