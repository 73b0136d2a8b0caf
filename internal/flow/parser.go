package flow

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mitchellh/mapstructure"
)

// Accepted spellings per document key. The first spelling is canonical and is
// the mapstructure tag on the matching *Doc struct.
var (
	flowAliases = [][]string{
		{"flow_id", "flowId", "id"},
		{"flow_name", "flowName", "name"},
		{"description"},
		{"agent_id", "agentId", "agent_ref", "agentRef"},
		{"language_code", "languageCode"},
		{"success_criteria", "successCriteria"},
		{"metadata"},
	}
	stepAliases = [][]string{
		{"step_id", "stepId"},
		{"continue_on_failure", "continueOnFailure"},
		{"timeout_seconds", "timeoutSeconds"},
		{"metadata"},
	}
	ruleAliases = [][]string{
		{"field"},
		{"operator"},
		{"expected_value", "expected", "value"},
		{"assertion_level", "level", "severity"},
		{"message", "custom_message"},
	}
)

type flowDoc struct {
	FlowID          string         `mapstructure:"flow_id"`
	FlowName        string         `mapstructure:"flow_name"`
	Description     string         `mapstructure:"description"`
	AgentRef        string         `mapstructure:"agent_id"`
	LanguageCode    string         `mapstructure:"language_code"`
	SuccessCriteria map[string]any `mapstructure:"success_criteria"`
	Metadata        map[string]any `mapstructure:"metadata"`
}

type stepDoc struct {
	StepID            string         `mapstructure:"step_id"`
	ContinueOnFailure bool           `mapstructure:"continue_on_failure"`
	TimeoutSeconds    *int           `mapstructure:"timeout_seconds"`
	Metadata          map[string]any `mapstructure:"metadata"`
}

// Operator, Severity and Message stay untyped so a wrong-typed value falls
// back to its default instead of failing the document.
type ruleDoc struct {
	Field    string `mapstructure:"field"`
	Operator any    `mapstructure:"operator"`
	Expected any    `mapstructure:"expected_value"`
	Severity any    `mapstructure:"assertion_level"`
	Message  any    `mapstructure:"message"`
}

// legacyStepKeys are expectation shorthands older documents carry on a step.
// They are kept in the step metadata, never turned into rules.
var legacyStepKeys = [][]string{
	{"expected_intent", "expectedIntent"},
	{"expected_entities", "expectedEntities"},
	{"expected_response_contains", "expectedResponseContains"},
}

// Parser turns flow documents into FlowDefinitions. Recoverable oddities
// (unknown operators, missing user input, duplicate step ids) are logged as
// warnings and replaced by safe defaults.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a parser that logs warnings to logger (nil means
// slog.Default()).
func NewParser(logger *slog.Logger) *Parser {
	if logger == nil {
		logger = slog.Default()
	}
	return &Parser{logger: logger}
}

// Parse parses a JSON flow document with a default parser.
func Parse(data []byte) (*FlowDefinition, error) {
	return NewParser(nil).Parse(data)
}

// Parse parses a JSON flow document.
//
// Malformed JSON is returned as a wrapped decode error. A well-formed document
// with the wrong shape yields a *StructureError.
func (p *Parser) Parse(data []byte) (*FlowDefinition, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, structureErr("", "flow document must be an object, got %s", jsonKind(data))
		}
		return nil, fmt.Errorf("decode flow document: %w", err)
	}
	if top == nil {
		return nil, structureErr("", "flow document must be an object, got null")
	}

	var doc flowDoc
	if err := decodeAliased(top, flowAliases, &doc); err != nil {
		return nil, structureErr("", "%v", err)
	}

	rawSteps, ok := top["steps"]
	if !ok || isNull(rawSteps) {
		return nil, structureErr("steps", "missing required field")
	}
	var stepDocs []json.RawMessage
	if err := json.Unmarshal(rawSteps, &stepDocs); err != nil {
		return nil, structureErr("steps", "must be an array, got %s", jsonKind(rawSteps))
	}
	if len(stepDocs) == 0 {
		return nil, structureErr("steps", "flow must have at least one step")
	}

	flow := &FlowDefinition{
		FlowID:          doc.FlowID,
		FlowName:        doc.FlowName,
		Description:     doc.Description,
		AgentRef:        doc.AgentRef,
		LanguageCode:    doc.LanguageCode,
		Steps:           make([]FlowStep, 0, len(stepDocs)),
		SuccessCriteria: nonNilMap(doc.SuccessCriteria),
		Metadata:        nonNilMap(doc.Metadata),
	}
	if flow.FlowName == "" {
		flow.FlowName = flow.FlowID
	}
	if flow.LanguageCode == "" {
		flow.LanguageCode = DefaultLanguageCode
	}

	seen := make(map[string]bool, len(stepDocs))
	for i, raw := range stepDocs {
		step, err := p.parseStep(i, raw)
		if err != nil {
			return nil, err
		}
		if seen[step.StepID] {
			p.logger.Warn("duplicate step id", "flow", flow.FlowID, "step", step.StepID)
		}
		seen[step.StepID] = true
		flow.Steps = append(flow.Steps, step)
	}

	globals, err := p.parseRuleList("global_validation_rules", pickRaw(top, "global_validation_rules", "globalValidationRules"))
	if err != nil {
		return nil, err
	}
	flow.GlobalRules = globals

	p.logger.Debug("parsed flow", "flow", flow.FlowID, "steps", len(flow.Steps), "global_rules", len(flow.GlobalRules))
	return flow, nil
}

func (p *Parser) parseStep(index int, raw json.RawMessage) (FlowStep, error) {
	path := fmt.Sprintf("steps[%d]", index)

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return FlowStep{}, structureErr(path, "step must be an object, got %s", jsonKind(raw))
	}

	var doc stepDoc
	if err := decodeAliased(obj, stepAliases, &doc); err != nil {
		return FlowStep{}, structureErr(path, "%v", err)
	}

	step := FlowStep{
		StepID:            doc.StepID,
		ContinueOnFailure: doc.ContinueOnFailure,
		TimeoutSeconds:    DefaultTimeoutSeconds,
		Metadata:          nonNilMap(doc.Metadata),
		Rules:             []ValidationRule{},
	}
	if step.StepID == "" {
		step.StepID = fmt.Sprintf("step_%d", index+1)
	}
	if doc.TimeoutSeconds != nil {
		step.TimeoutSeconds = *doc.TimeoutSeconds
	}
	for _, names := range legacyStepKeys {
		raw := pickRaw(obj, names...)
		if isNull(raw) {
			continue
		}
		if _, taken := step.Metadata[names[0]]; taken {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err == nil {
			step.Metadata[names[0]] = v
		}
	}

	step.UserInput = p.userInput(step.StepID, pickRaw(obj, "user_input", "userInput"))

	if criteria := pickRaw(obj, "validation_criteria", "validationCriteria"); !isNull(criteria) {
		rules, err := p.parseCriteria(path+".validation_criteria", criteria)
		if err != nil {
			return FlowStep{}, err
		}
		step.Rules = append(step.Rules, rules...)
	}

	rules, err := p.parseRuleList(path+".validation_rules", pickRaw(obj, "validation_rules", "validationRules"))
	if err != nil {
		return FlowStep{}, err
	}
	step.Rules = append(step.Rules, rules...)

	return step, nil
}

// userInput accepts a string, an object carrying "content" or "text", or any
// other scalar, which is used in its JSON spelling.
func (p *Parser) userInput(stepID string, raw json.RawMessage) string {
	if isNull(raw) {
		p.logger.Warn("step has no user input", "step", stepID)
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		for _, key := range []string{"content", "text"} {
			if v, ok := obj[key]; ok && v != nil {
				if s, ok := v.(string); ok {
					return s
				}
				return fmt.Sprint(v)
			}
		}
		p.logger.Warn("user input object has neither content nor text", "step", stepID)
		return ""
	}

	return strings.TrimSpace(string(raw))
}

// parseCriteria expands the validation_criteria shorthand. Members keep
// document order: a literal value is an EQUALS/CRITICAL rule, an object value
// supplies the rest of the rule with the key as its default field.
func (p *Parser) parseCriteria(path string, raw json.RawMessage) ([]ValidationRule, error) {
	members, err := orderedMembers(raw)
	if err != nil {
		return nil, structureErr(path, "must be an object: %v", err)
	}

	rules := make([]ValidationRule, 0, len(members))
	for _, m := range members {
		memberPath := path + "." + m.Key

		var body map[string]any
		if jsonKind(m.Value) == "object" {
			if err := json.Unmarshal(m.Value, &body); err != nil {
				return nil, structureErr(memberPath, "%v", err)
			}
			if _, ok := body["field"]; !ok {
				body["field"] = m.Key
			}
			rule, err := p.ruleFromMap(memberPath, body)
			if err != nil {
				return nil, err
			}
			rules = append(rules, rule)
			continue
		}

		var expected any
		if err := json.Unmarshal(m.Value, &expected); err != nil {
			return nil, structureErr(memberPath, "%v", err)
		}
		rules = append(rules, ValidationRule{
			Field:    m.Key,
			Operator: Equals,
			Expected: expected,
			Severity: Critical,
		})
	}
	return rules, nil
}

func (p *Parser) parseRuleList(path string, raw json.RawMessage) ([]ValidationRule, error) {
	rules := []ValidationRule{}
	if isNull(raw) {
		return rules, nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, structureErr(path, "must be an array, got %s", jsonKind(raw))
	}
	for i, item := range items {
		itemPath := fmt.Sprintf("%s[%d]", path, i)
		var body map[string]any
		if err := json.Unmarshal(item, &body); err != nil || body == nil {
			return nil, structureErr(itemPath, "rule must be an object, got %s", jsonKind(item))
		}
		rule, err := p.ruleFromMap(itemPath, body)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func (p *Parser) ruleFromMap(path string, body map[string]any) (ValidationRule, error) {
	var doc ruleDoc
	if err := decodeWeak(canonicalize(body, ruleAliases), &doc); err != nil {
		return ValidationRule{}, structureErr(path, "%v", err)
	}
	if doc.Field == "" {
		return ValidationRule{}, structureErr(path, "validation rule must have a field")
	}

	rule := ValidationRule{
		Field:    doc.Field,
		Operator: Equals,
		Expected: doc.Expected,
		Severity: Critical,
	}
	if doc.Operator != nil && doc.Operator != "" {
		name, ok := scalarString(doc.Operator)
		op, known := ParseOperator(name)
		if !ok || !known {
			p.logger.Warn("unknown operator, using equals", "field", doc.Field, "operator", doc.Operator)
		}
		rule.Operator = op
	}
	if doc.Severity != nil && doc.Severity != "" {
		name, ok := scalarString(doc.Severity)
		sev, known := ParseSeverity(name)
		if !ok || !known {
			p.logger.Warn("unknown assertion level, using critical", "field", doc.Field, "level", doc.Severity)
		}
		rule.Severity = sev
	}
	if doc.Message != nil {
		msg, ok := scalarString(doc.Message)
		if !ok {
			p.logger.Warn("message is not text, using default message", "field", doc.Field)
		}
		rule.Message = msg
	}
	return rule, nil
}

// scalarString spells a JSON scalar as text. Objects and arrays are not
// scalars and yield ("", false).
func scalarString(v any) (string, bool) {
	switch v := v.(type) {
	case string:
		return v, true
	case bool, float64, float32, int, int64:
		return fmt.Sprint(v), true
	}
	return "", false
}

// pickRaw returns the value of the first present key.
func pickRaw(obj map[string]json.RawMessage, keys ...string) json.RawMessage {
	for _, k := range keys {
		if v, ok := obj[k]; ok {
			return v
		}
	}
	return nil
}

// canonicalize renames alias keys to their canonical spelling. Earlier
// spellings win when a document carries several.
func canonicalize(body map[string]any, aliases [][]string) map[string]any {
	out := make(map[string]any, len(aliases))
	for _, names := range aliases {
		for _, name := range names {
			if v, ok := body[name]; ok {
				out[names[0]] = v
				break
			}
		}
	}
	return out
}

func decodeAliased(obj map[string]json.RawMessage, aliases [][]string, out any) error {
	body := make(map[string]any, len(aliases))
	for _, names := range aliases {
		raw := pickRaw(obj, names...)
		if raw == nil {
			continue
		}
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("decode %s: %w", names[0], err)
		}
		body[names[0]] = v
	}
	return decodeWeak(body, out)
}

func decodeWeak(input any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}
