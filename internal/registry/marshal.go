package registry

import "encoding/json"

// sessionAlias has the same fields as Session but without its custom
// (Un)MarshalJSON, so it can be used as the serialization shadow.
type sessionAlias Session

// MarshalJSON emits the known fields plus, flattened back in, any Extra
// fields preserved from a previous load — so round-tripping a record
// written by a newer version of this module does not drop data.
func (s Session) MarshalJSON() ([]byte, error) {
	known, err := json.Marshal(sessionAlias(s))
	if err != nil {
		return nil, err
	}
	if len(s.Extra) == 0 {
		return known, nil
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(known, &merged); err != nil {
		return nil, err
	}
	for k, v := range s.Extra {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		if _, isKnown := merged[k]; !isKnown {
			merged[k] = raw
		}
	}
	return json.Marshal(merged)
}

// UnmarshalJSON decodes the known fields normally and retains any
// unrecognized top-level keys in Extra, so forward-incompatible additions
// from a newer writer survive a load/save round trip in this version.
func (s *Session) UnmarshalJSON(data []byte) error {
	var alias sessionAlias
	if err := json.Unmarshal(data, &alias); err != nil {
		return err
	}
	*s = Session(alias)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, known := range knownSessionKeys {
		delete(raw, known)
	}
	if len(raw) == 0 {
		s.Extra = nil
		return nil
	}
	s.Extra = make(map[string]any, len(raw))
	for k, v := range raw {
		var decoded any
		if err := json.Unmarshal(v, &decoded); err == nil {
			s.Extra[k] = decoded
		}
	}
	return nil
}

var knownSessionKeys = []string{
	"id", "name", "tmux_session", "tmux_window", "command", "start_directory",
	"start_time", "repo_name", "branch", "status", "parent_session_id",
	"permissiveness_mode", "standing_instructions", "standing_orders_complete",
	"heartbeat_enabled", "heartbeat_paused", "heartbeat_frequency_seconds",
	"heartbeat_instruction", "last_heartbeat_time", "is_asleep",
	"cost_budget_usd", "agent_value", "human_annotation", "budget_exceeded",
	"time_context_enabled", "hook_status_detection", "claude_session_ids",
	"stats", "end_time",
}
