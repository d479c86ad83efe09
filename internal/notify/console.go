package notify

import (
	"context"

	"polyagent/internal/logger"
)

// Console mirrors notifications into the structured log, one block per
// message. Useful when no chat channel is configured.
type Console struct{}

func NewConsole() *Console { return &Console{} }

func (c *Console) Name() string { return "console" }

func (c *Console) Notify(_ context.Context, text string) error {
	logger.InfoBlock(text)
	return nil
}
