// Package logreply is the simplest Radar plugin: it writes one log line
// per check in every reply. Useful as a smoke test for the dispatcher
// and as the template for new plugins.
package logreply

import (
	"github.com/radarhq/radar/internal/plugin"
)

// Plugin logs every check and test reply.
type Plugin struct {
	plugin.Base
}

// New creates the plugin.
func New() *Plugin {
	return &Plugin{Base: plugin.NewBase()}
}

func (p *Plugin) Name() string    { return "log-reply" }
func (p *Plugin) Version() string { return "1.0.0" }

func (p *Plugin) OnCheckReply(reply plugin.Reply) error {
	for _, c := range reply.Checks {
		p.Logger.Info("check reply",
			"address", reply.Address, "port", reply.Port,
			"check", c.Name, "status", c.CurrentStatus.String(),
			"previous", c.PreviousStatus.String(), "details", c.Details)
	}
	return nil
}

func (p *Plugin) OnTestReply(reply plugin.Reply) error {
	p.Logger.Info("test reply", "address", reply.Address, "port", reply.Port)
	return nil
}
