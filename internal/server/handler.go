package server

import (
	"encoding/json"

	"mdhub/internal/subscription"

	"go.uber.org/zap"
)

// handleCommand dispatches one inbound frame. Malformed frames are
// logged and answered with an ERROR message; the connection stays open.
func (s *Server) handleCommand(c *Client, raw []byte) {
	var cmd command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		s.logger.Warn("malformed client command", zapSessionErr(c, err)...)
		c.Send(errorMsg("malformed command"))
		return
	}

	switch cmd.Type {
	case cmdSubscribe:
		s.handleSubscribe(c, cmd)
	case cmdUnsubscribe:
		s.handleUnsubscribe(c, cmd)
	case cmdPing:
		c.Send(pongMsg())
	default:
		s.logger.Warn("unknown client command",
			append(zapSession(c), zap.String("command", cmd.Type))...)
		c.Send(errorMsg("unknown command type"))
	}
}

func (s *Server) handleSubscribe(c *Client, cmd command) {
	if len(cmd.Instruments) == 0 {
		c.Send(errorMsg("no instruments given"))
		return
	}

	category := subscription.CategoryFull
	if cmd.Category != "" {
		category = subscription.Category(cmd.Category)
		if !category.Valid() {
			c.Send(errorMsg("unknown category: " + cmd.Category))
			return
		}
	}

	if !s.manager.Subscribe(c.UserID, category, cmd.Instruments) {
		c.Send(errorMsg("subscription denied: limit exceeded"))
		return
	}
	s.registry.Subscribe(c.ID, cmd.Instruments, category)
	if s.sweepIfClosed(c) {
		return
	}

	c.Send(subscribedMsg(cmd.Instruments))
	s.logger.Info("client subscribed",
		append(zapSession(c),
			zap.String("category", string(category)),
			zap.Int("instruments", len(cmd.Instruments)))...)
}

func (s *Server) handleUnsubscribe(c *Client, cmd command) {
	// Omitted instruments means everything held by this session.
	removed := s.registry.Unsubscribe(c.ID, cmd.Instruments)
	for category, keys := range removed {
		s.manager.Unsubscribe(c.UserID, category, keys)
	}

	c.Send(unsubscribedMsg(cmd.Instruments))
	s.logger.Info("client unsubscribed",
		append(zapSession(c), zap.Int("categories", len(removed)))...)
}
