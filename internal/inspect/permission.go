package inspect

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/corelane/agentrun/internal/conversation"
)

// GooseMode is the active tool-approval mode (§4.6.1).
type GooseMode string

const (
	ModeChat         GooseMode = "chat"
	ModeAuto         GooseMode = "auto"
	ModeApprove      GooseMode = "approve"
	ModeSmartApprove GooseMode = "smart_approve"
)

// PolicyDecision is one tool's standing decision within a policy layer.
type PolicyDecision string

const (
	PolicyUnset       PolicyDecision = ""
	PolicyAlwaysAllow PolicyDecision = "always_allow"
	PolicyAskBefore   PolicyDecision = "ask_before"
	PolicyNeverAllow  PolicyDecision = "never_allow"
)

// policyFile is the on-disk YAML shape (§6 persisted state: "permissions as
// YAML (always_allow, ask_before, never_allow string lists under a user
// key)").
type policyFile struct {
	User struct {
		AlwaysAllow []string `yaml:"always_allow"`
		AskBefore   []string `yaml:"ask_before"`
		NeverAllow  []string `yaml:"never_allow"`
	} `yaml:"user"`
}

// PermissionManager owns the on-disk user policy layer and an in-memory,
// never-persisted smart-approve layer (§4.6.2: "separate from the user layer
// so the user's choice is never overwritten").
type PermissionManager struct {
	mu   sync.Mutex
	path string

	user         map[string]PolicyDecision
	smartApprove map[string]PolicyDecision
}

// NewPermissionManager loads (or initializes) the policy file at path.
func NewPermissionManager(path string) (*PermissionManager, error) {
	pm := &PermissionManager{path: path, user: map[string]PolicyDecision{}, smartApprove: map[string]PolicyDecision{}}
	if err := pm.load(); err != nil {
		return nil, err
	}
	return pm, nil
}

func (pm *PermissionManager) load() error {
	data, err := os.ReadFile(pm.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var pf policyFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("inspect: parse policy file %s: %w", pm.path, err)
	}
	for _, t := range pf.User.AlwaysAllow {
		pm.user[t] = PolicyAlwaysAllow
	}
	for _, t := range pf.User.AskBefore {
		pm.user[t] = PolicyAskBefore
	}
	for _, t := range pf.User.NeverAllow {
		pm.user[t] = PolicyNeverAllow
	}
	return nil
}

// save persists the user layer with a plain os.WriteFile (no temp file or
// rename); pm.mu, held by every caller, serializes read-modify-write within
// this PermissionManager (§5).
func (pm *PermissionManager) save() error {
	var pf policyFile
	pf.User.AlwaysAllow = []string{}
	pf.User.AskBefore = []string{}
	pf.User.NeverAllow = []string{}
	for name, d := range pm.user {
		switch d {
		case PolicyAlwaysAllow:
			pf.User.AlwaysAllow = append(pf.User.AlwaysAllow, name)
		case PolicyAskBefore:
			pf.User.AskBefore = append(pf.User.AskBefore, name)
		case PolicyNeverAllow:
			pf.User.NeverAllow = append(pf.User.NeverAllow, name)
		}
	}
	sortStrings(pf.User.AlwaysAllow)
	sortStrings(pf.User.AskBefore)
	sortStrings(pf.User.NeverAllow)

	out, err := yaml.Marshal(pf)
	if err != nil {
		return err
	}
	return os.WriteFile(pm.path, out, 0o644)
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// UserDecision returns the user layer's standing decision for toolName.
func (pm *PermissionManager) UserDecision(toolName string) PolicyDecision {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.user[toolName]
}

// SmartApproveDecision returns the smart-approve layer's cached decision.
func (pm *PermissionManager) SmartApproveDecision(toolName string) PolicyDecision {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return pm.smartApprove[toolName]
}

// SetUserDecision records toolName's decision in the user layer and persists
// it (used by AllowAlways/DenyAlways confirmation outcomes, §4.8 step 6).
func (pm *PermissionManager) SetUserDecision(toolName string, d PolicyDecision) error {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.user[toolName] = d
	return pm.save()
}

// SetSmartApproveDecision records toolName's decision in the smart-approve
// layer. Never persisted to disk — it is a process-lifetime cache rebuilt by
// re-classification as needed (§4.6.2).
func (pm *PermissionManager) SetSmartApproveDecision(toolName string, d PolicyDecision) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.smartApprove[toolName] = d
}

// PermissionInspector implements C6's permission check (§4.6.1).
type PermissionInspector struct {
	mode            GooseMode
	readOnlyTools   map[string]bool
	preApproved     map[string]bool
	managementTools map[string]bool // e.g. extensionmanager__manage_extensions
	manager         *PermissionManager
	classifier      SmartApproveClassifier // optional; nil disables LLM classification
}

// SmartApproveClassifier classifies unannotated tools as read-only or not,
// per §4.6.2.
type SmartApproveClassifier interface {
	ClassifyReadOnly(toolNames []string) (readOnly map[string]bool, err error)
}

// NewPermissionInspector builds the permission inspector.
func NewPermissionInspector(mode GooseMode, readOnlyTools, preApproved, managementTools map[string]bool, manager *PermissionManager, classifier SmartApproveClassifier) *PermissionInspector {
	return &PermissionInspector{
		mode: mode, readOnlyTools: readOnlyTools, preApproved: preApproved,
		managementTools: managementTools, manager: manager, classifier: classifier,
	}
}

func (p *PermissionInspector) Name() string    { return "permission" }
func (p *PermissionInspector) IsEnabled() bool { return true }

// SetMode updates the active GooseMode (e.g. on a frontend mode-change
// event); safe to call between turns.
func (p *PermissionInspector) SetMode(mode GooseMode) { p.mode = mode }

// Inspect implements the decision table in §4.6.1.
func (p *PermissionInspector) Inspect(requests []conversation.ToolRequest, _ InspectionMode) []InspectionResult {
	var toClassify []string
	for _, r := range requests {
		if p.mode != ModeSmartApprove || r.ToolCall.Call == nil {
			continue
		}
		name := r.ToolCall.Call.Name
		if p.readOnlyTools[name] || p.manager.UserDecision(name) != PolicyUnset || p.manager.SmartApproveDecision(name) != PolicyUnset {
			continue
		}
		toClassify = append(toClassify, name)
	}
	if len(toClassify) > 0 && p.classifier != nil {
		if readOnly, err := p.classifier.ClassifyReadOnly(toClassify); err == nil {
			for _, name := range toClassify {
				if readOnly[name] {
					p.manager.SetSmartApproveDecision(name, PolicyAlwaysAllow)
				} else {
					p.manager.SetSmartApproveDecision(name, PolicyAskBefore)
				}
			}
		}
	}

	var out []InspectionResult
	for _, r := range requests {
		out = append(out, p.decide(r))
	}
	return out
}

func (p *PermissionInspector) decide(r conversation.ToolRequest) InspectionResult {
	base := InspectionResult{ToolRequestID: r.ID, InspectorName: p.Name()}
	if r.ToolCall.Call == nil {
		base.Action, base.Reason = RequireApproval, "malformed tool call"
		return base
	}
	name := r.ToolCall.Call.Name

	switch p.mode {
	case ModeChat:
		base.Action, base.Reason = Deny, "chat mode: tools are not dispatched"
		return base
	case ModeAuto:
		base.Action = Allow
		return base
	}

	// Approve / SmartApprove from here on.
	user := p.manager.UserDecision(name)
	switch user {
	case PolicyAlwaysAllow:
		base.Action = Allow
		return base
	case PolicyNeverAllow:
		base.Action, base.Reason = Deny, "always denied by user policy"
		return base
	case PolicyAskBefore:
		if p.readOnlyTools[name] {
			base.Action = Allow
			return base
		}
		base.Action, base.Reason = RequireApproval, "user policy: ask before use"
		return base
	}

	if p.readOnlyTools[name] || p.preApproved[name] {
		base.Action = Allow
		return base
	}

	if p.managementTools[name] {
		base.Action, base.Reason = RequireApproval, "extension-management tool"
		return base
	}

	if p.mode == ModeSmartApprove {
		if sa := p.manager.SmartApproveDecision(name); sa == PolicyAlwaysAllow {
			base.Action = Allow
			return base
		}
	}

	base.Action, base.Reason = RequireApproval, "no standing policy"
	return base
}

// PermissionCheckResult is the derived, per-turn classification used to gate
// dispatch (§4.8 step 5).
type PermissionCheckResult struct {
	Approved      []string
	NeedsApproval []string
	Denied        []string
}

// ProcessInspectionResults assigns a baseline decision per request from the
// permission inspector's own results, then applies every non-permission
// inspector's verdict as a strict override: Deny always wins, RequireApproval
// downgrades Allow, and Allow from a non-permission inspector never
// overrides a Deny or RequireApproval (§4.6).
func ProcessInspectionResults(requestIDs []string, all []InspectionResult) PermissionCheckResult {
	decision := map[string]Action{}
	reason := map[string]string{}

	for _, id := range requestIDs {
		decision[id] = RequireApproval // fail-safe default (§7)
	}

	for _, res := range all {
		if _, known := decision[res.ToolRequestID]; known && res.InspectorName == "permission" {
			decision[res.ToolRequestID] = res.Action
			reason[res.ToolRequestID] = res.Reason
		}
	}

	for _, res := range all {
		cur, known := decision[res.ToolRequestID]
		if !known || res.InspectorName == "permission" {
			continue
		}
		switch res.Action {
		case Deny:
			decision[res.ToolRequestID] = Deny
			reason[res.ToolRequestID] = res.Reason
		case RequireApproval:
			if cur != Deny {
				decision[res.ToolRequestID] = RequireApproval
				reason[res.ToolRequestID] = res.Reason
			}
		case Allow:
			// never overrides Deny or RequireApproval from elsewhere.
		}
	}

	var out PermissionCheckResult
	for _, id := range requestIDs {
		switch decision[id] {
		case Allow:
			out.Approved = append(out.Approved, id)
		case Deny:
			out.Denied = append(out.Denied, id)
		default:
			out.NeedsApproval = append(out.NeedsApproval, id)
		}
	}
	return out
}

// ReasonFor returns the recorded reason text for id across a result set,
// used when rendering a ToolConfirmationRequest's optional warning.
func ReasonFor(id string, all []InspectionResult) string {
	for _, r := range all {
		if r.ToolRequestID == id && r.Reason != "" {
			return r.Reason
		}
	}
	return ""
}
