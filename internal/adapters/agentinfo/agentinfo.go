// Package agentinfo provides the global-metadata contract
// (ports.AgentInfoProvider) the batching adapter attaches to every
// framed request body. Real OS/network metadata gathering is an
// external collaborator (spec's "system information provider", out of
// core scope); this package gives that contract a concrete default and
// a test double.
package agentinfo

import (
	"os"
	"runtime"

	"github.com/JakeHuneau/wazuh-agent/internal/ports"
)

// StaticAgentInfo is a fixed-value AgentInfoProvider, used in tests
// and as a building block for configuration-driven deployments where
// agent metadata is supplied up front rather than probed.
type StaticAgentInfo map[string]any

func (s StaticAgentInfo) Snapshot() map[string]any {
	out := make(map[string]any, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

var _ ports.AgentInfoProvider = StaticAgentInfo(nil)

// Platform is the believable non-test default: OS and hostname via the
// standard library, nothing more elaborate. Real system-information
// gathering (network interfaces, installed software, etc.) stays an
// external collaborator.
type Platform struct {
	AgentID string
}

func (p Platform) Snapshot() map[string]any {
	host, _ := os.Hostname()
	return map[string]any{
		"agent_id": p.AgentID,
		"os":       runtime.GOOS,
		"arch":     runtime.GOARCH,
		"hostname": host,
	}
}

var _ ports.AgentInfoProvider = Platform{}
