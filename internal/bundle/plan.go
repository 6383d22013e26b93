package bundle

import (
	"github.com/cruciblehq/bundlegen/internal/matcher"
	"github.com/cruciblehq/bundlegen/internal/walker"
	"github.com/opencontainers/go-digest"
)

// Record of how a bundle was put together, written beside its runtime
// configuration.
type Plan struct {
	Platform          string                               `json:"platform"`
	App               string                               `json:"app,omitempty"`
	Mode              matcher.Mode                         `json:"mode"`
	DependencyWalking bool                                 `json:"dependencyWalking"`
	Catalog           string                               `json:"catalog,omitempty"` // Empty when no catalog was used.
	Roots             []string                             `json:"roots"`
	Libraries         []matcher.Resolved                   `json:"libraries"`
	Unresolved        []walker.UnresolvedDependencyWarning `json:"unresolved,omitempty"`
	Removed           []string                             `json:"removed,omitempty"`
	Shadowed          []ShadowedMount                      `json:"shadowed,omitempty"`
	Config            digest.Digest                        `json:"config"` // Digest of config.json.
}

// Returns the libraries mounted from the device.
func (p *Plan) HostLibraries() []matcher.Resolved {
	return p.filter(matcher.FromHost)
}

// Returns the libraries kept from the image.
func (p *Plan) ImageLibraries() []matcher.Resolved {
	return p.filter(matcher.FromImage)
}

func (p *Plan) filter(origin matcher.Origin) []matcher.Resolved {
	var out []matcher.Resolved
	for _, lib := range p.Libraries {
		if lib.Origin == origin {
			out = append(out, lib)
		}
	}
	return out
}
