// Package model defines the data types shared across the evaluation core:
// definitions, tasks, compute-graph artifacts, runner envelopes, and
// submission/task-result records.
package model

import (
	"encoding/json"
	"fmt"
)

// PrimitiveKind tags the scalar types an artifact can carry.
type PrimitiveKind string

const (
	KindInt    PrimitiveKind = "int"
	KindFloat  PrimitiveKind = "float"
	KindString PrimitiveKind = "str"
	KindBool   PrimitiveKind = "bool"
)

// Primitive is a tagged scalar value flowing on a graph edge.
type Primitive struct {
	Kind  PrimitiveKind `json:"kind"`
	Value any           `json:"value"`
}

// File is a named text artifact flowing on a graph edge or attached to a
// runner package.
type File struct {
	FileName string `json:"file_name"`
	Content  string `json:"content"`
}

// Artifact is the value carried on a single socket: either a Primitive or a
// File, never both.
type Artifact struct {
	Primitive *Primitive `json:"primitive,omitempty"`
	File      *File      `json:"file,omitempty"`
}

// IsFile reports whether this artifact carries a File value.
func (a Artifact) IsFile() bool { return a.File != nil }

// IsZero reports whether the artifact carries no value at all.
func (a Artifact) IsZero() bool { return a.Primitive == nil && a.File == nil }

// PrimitiveArtifact builds an Artifact wrapping a Primitive.
func PrimitiveArtifact(kind PrimitiveKind, value any) Artifact {
	return Artifact{Primitive: &Primitive{Kind: kind, Value: value}}
}

// FileArtifact builds an Artifact wrapping a File.
func FileArtifact(name, content string) Artifact {
	return Artifact{File: &File{FileName: name, Content: content}}
}

// String renders the artifact as source-embeddable text: a quoted literal
// for primitives, or the file's content for files. Used by step code
// generation when inlining a bound value.
func (a Artifact) String() string {
	switch {
	case a.Primitive != nil:
		switch a.Primitive.Kind {
		case KindString:
			return fmt.Sprintf("%q", a.Primitive.Value)
		case KindBool:
			return fmt.Sprintf("%v", a.Primitive.Value)
		default:
			return fmt.Sprintf("%v", a.Primitive.Value)
		}
	case a.File != nil:
		return a.File.Content
	default:
		return ""
	}
}

// UnmarshalJSON accepts either a bare literal (number/string/bool) coerced
// into a Primitive, or the explicit {"primitive":...} / {"file":...} shape.
// The bare form is what StepSocket.Data looks like on the wire (spec §3).
func (a *Artifact) UnmarshalJSON(data []byte) error {
	var explicit struct {
		Primitive *Primitive `json:"primitive"`
		File      *File      `json:"file"`
	}
	if err := json.Unmarshal(data, &explicit); err == nil && (explicit.Primitive != nil || explicit.File != nil) {
		a.Primitive = explicit.Primitive
		a.File = explicit.File
		return nil
	}

	var fileLiteral struct {
		FileName string `json:"file_name"`
		Content  string `json:"content"`
	}
	if err := json.Unmarshal(data, &fileLiteral); err == nil && fileLiteral.FileName != "" {
		a.File = &File{FileName: fileLiteral.FileName, Content: fileLiteral.Content}
		return nil
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("artifact: %w", err)
	}
	switch v := raw.(type) {
	case nil:
		*a = Artifact{}
	case string:
		a.Primitive = &Primitive{Kind: KindString, Value: v}
	case bool:
		a.Primitive = &Primitive{Kind: KindBool, Value: v}
	case float64:
		if v == float64(int64(v)) {
			a.Primitive = &Primitive{Kind: KindInt, Value: int64(v)}
		} else {
			a.Primitive = &Primitive{Kind: KindFloat, Value: v}
		}
	default:
		return fmt.Errorf("artifact: unsupported literal %T", raw)
	}
	return nil
}

// MarshalJSON emits the explicit {"primitive":...}/{"file":...} shape.
func (a Artifact) MarshalJSON() ([]byte, error) {
	explicit := struct {
		Primitive *Primitive `json:"primitive,omitempty"`
		File      *File      `json:"file,omitempty"`
	}{Primitive: a.Primitive, File: a.File}
	return json.Marshal(explicit)
}
