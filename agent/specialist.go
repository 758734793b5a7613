package agent

import "github.com/hupe1980/agentgraph/gateway"

// ResearchName is the name of the research specialist.
const ResearchName = "research"

// ResearchScratchKey holds the research specialist's latest findings.
const ResearchScratchKey = "research_data"

// SpecialistOptions configures a Specialist.
type SpecialistOptions struct {
	Description string
	// ScratchKey receives the specialist's draft answers. Defaults to
	// "<name>_draft".
	ScratchKey string
}

// Specialist is a narrowly scoped worker node. Its final answers are drafts
// for the supervisor, never the run's answer.
type Specialist struct {
	BaseNode
	scratchKey string
}

// NewSpecialist creates a specialist node named name.
func NewSpecialist(name string, gw gateway.Gateway, optFns ...func(o *SpecialistOptions)) *Specialist {
	opts := SpecialistOptions{ScratchKey: name + "_draft"}
	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Specialist{BaseNode: NewBaseNode(name, gateway.RoleSpecialist, gw), scratchKey: opts.ScratchKey}
	if opts.Description != "" {
		s.SetDescription(opts.Description)
	}
	return s
}

// NewResearch creates the research specialist.
func NewResearch(gw gateway.Gateway) *Specialist {
	return NewSpecialist(ResearchName, gw, func(o *SpecialistOptions) {
		o.Description = gateway.ResearchProfile().Description
		o.ScratchKey = ResearchScratchKey
	})
}

// ScratchKey returns the scratchpad key receiving the specialist's drafts.
func (s *Specialist) ScratchKey() string { return s.scratchKey }
