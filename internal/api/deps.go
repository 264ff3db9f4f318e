package api

import (
	"github.com/arvik-health/medgate/internal/agentclient"
	"github.com/arvik-health/medgate/internal/mesh"
	"github.com/arvik-health/medgate/internal/monitor"
	"github.com/arvik-health/medgate/internal/storage"
)

// Deps are the gateway's shared collaborators, wired once at startup.
// Tests swap in fakes through Configure.
type Deps struct {
	Store   *storage.Store
	Agents  *agentclient.Client
	Bus     mesh.Bus
	Monitor *monitor.Monitor
}

var deps Deps

func Configure(d Deps) { deps = d }
