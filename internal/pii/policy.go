package pii

// PolicyConfig represents per-project sanitizer configuration.
// Loaded from the sanitize_policies table's sanitize_config JSONB column.
// All pointer fields use nil to mean "use server default".
type PolicyConfig struct {
	Mode           *string  `json:"mode"`            // nil = server default mode
	BlockThreshold *int     `json:"block_threshold"` // nil = server default (80)
	DisabledTypes  []string `json:"disabled_types"`  // type IDs excluded from scanning
}

// EffectiveMode returns the mode for this policy. A nil receiver, nil
// field, or unparseable value falls back to the provided server default.
func (pc *PolicyConfig) EffectiveMode(serverDefault Mode) Mode {
	if pc == nil || pc.Mode == nil {
		return serverDefault
	}
	mode, ok := ParseMode(*pc.Mode)
	if !ok {
		return serverDefault
	}
	return mode
}

// EffectiveBlockThreshold returns the block threshold for this policy,
// falling back to the provided server default.
func (pc *PolicyConfig) EffectiveBlockThreshold(serverDefault int) int {
	if pc == nil || pc.BlockThreshold == nil {
		return serverDefault
	}
	return *pc.BlockThreshold
}

// disabledSet returns the disabled type IDs as a set, or nil when empty.
func (pc *PolicyConfig) disabledSet() map[string]struct{} {
	if pc == nil || len(pc.DisabledTypes) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(pc.DisabledTypes))
	for _, id := range pc.DisabledTypes {
		set[id] = struct{}{}
	}
	return set
}
