package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"gopkg.in/yaml.v3"

	"github.com/roach88/convtest/internal/flow"
)

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric   = "E_GENERIC"   // Generic/unknown error
	ErrCodeNotFound  = "E_NOT_FOUND" // Flow file or run not found
	ErrCodeMalformed = "E_MALFORMED" // Document is not valid JSON/YAML/CUE
	ErrCodeStructure = "E_STRUCTURE" // Document parsed but is not a flow
	ErrCodeConfig    = "E_CONFIG"    // Config file invalid
	ErrCodeBackend   = "E_BACKEND"   // Collaborator could not be set up
	ErrCodeStore     = "E_STORE"     // Report store error
	ErrCodeRunFailed = "E_RUN_FAILED"
	ErrCodeInvalid   = "E_INVALID" // Flow has advisory issues or lint findings
)

// LoadError represents an error that occurred while loading a flow file.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// loadErrorCode returns the code of a *LoadError, or ErrCodeGeneric.
func loadErrorCode(err error) string {
	var le *LoadError
	if errors.As(err, &le) {
		return le.Code
	}
	return ErrCodeGeneric
}

// LoadFlow reads a flow file and parses it. The format is chosen by
// extension: .yaml/.yml and .cue are converted to JSON first, anything else
// is read as JSON. Legacy user_inputs documents are accepted.
func LoadFlow(path string, parser *flow.Parser) (*flow.FlowDefinition, error) {
	doc, err := ReadFlowDocument(path)
	if err != nil {
		return nil, err
	}

	f, err := parser.ParseDocument(doc)
	if err != nil {
		var se *flow.StructureError
		if errors.As(err, &se) {
			return nil, &LoadError{Code: ErrCodeStructure, Message: fmt.Sprintf("%s: %s", path, se.Error())}
		}
		return nil, &LoadError{Code: ErrCodeMalformed, Message: fmt.Sprintf("%s: %v", path, err)}
	}
	return f, nil
}

// ReadFlowDocument reads path and returns the document as JSON, with object
// keys in document order.
func ReadFlowDocument(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("flow file not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error reading flow file: %v", err)}
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		doc, err := yamlToJSON(data)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeMalformed, Message: fmt.Sprintf("%s: %v", path, err)}
		}
		return doc, nil
	case ".cue":
		return cueToJSON(path, data)
	default:
		return data, nil
	}
}

// cueToJSON evaluates a CUE document. The whole document must be concrete.
func cueToJSON(path string, data []byte) ([]byte, error) {
	ctx := cuecontext.New()
	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return nil, cueLoadError(path, "compiling CUE", err)
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, cueLoadError(path, "CUE value is not concrete", err)
	}
	out, err := value.MarshalJSON()
	if err != nil {
		return nil, cueLoadError(path, "exporting CUE", err)
	}
	return out, nil
}

func cueLoadError(path, what string, err error) *LoadError {
	le := &LoadError{Code: ErrCodeMalformed, Message: fmt.Sprintf("%s: %s: %v", path, what, err)}
	if errs := cueerrors.Errors(err); len(errs) > 0 {
		le.Pos = errs[0].Position()
	}
	return le
}

// yamlToJSON converts a single YAML document to JSON. It walks the node tree
// instead of decoding into a map so that mapping keys keep their order.
func yamlToJSON(data []byte) ([]byte, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	if root.Kind == 0 || len(root.Content) == 0 {
		return nil, errors.New("empty YAML document")
	}

	var buf bytes.Buffer
	if err := writeYAMLNode(&buf, root.Content[0]); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeYAMLNode(buf *bytes.Buffer, n *yaml.Node) error {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			buf.WriteString("null")
			return nil
		}
		return writeYAMLNode(buf, n.Content[0])

	case yaml.AliasNode:
		return writeYAMLNode(buf, n.Alias)

	case yaml.MappingNode:
		buf.WriteByte('{')
		for i := 0; i+1 < len(n.Content); i += 2 {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(n.Content[i].Value)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := writeYAMLNode(buf, n.Content[i+1]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
		return nil

	case yaml.SequenceNode:
		buf.WriteByte('[')
		for i, item := range n.Content {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeYAMLNode(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
		return nil

	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		out, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("line %d: %w", n.Line, err)
		}
		buf.Write(out)
		return nil

	default:
		return fmt.Errorf("line %d: unsupported YAML node", n.Line)
	}
}
