package tools

import (
	"context"

	"google.golang.org/genai"
)

// Result is the structured payload returned to the model. Failures are reported in-band under "error".
type Result map[string]any

func errorResult(msg string) Result {
	return Result{"error": msg}
}

type Handler func(ctx context.Context, args map[string]any) (Result, error)

// Tool pairs the declaration advertised in the setup frame with the code that runs it.
type Tool struct {
	Declaration *genai.FunctionDeclaration
	Handler     Handler
}

func (t Tool) Name() string {
	if t.Declaration == nil {
		return ""
	}
	return t.Declaration.Name
}

// FunctionCall is one entry of toolCall.functionCalls.
type FunctionCall struct {
	ID   string         `json:"id"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

type FunctionResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Response Result `json:"response"`
}

type ToolResponse struct {
	FunctionResponses []FunctionResponse `json:"functionResponses"`
}

// ResponseMessage is the client frame answering a toolCall.
type ResponseMessage struct {
	ToolResponse ToolResponse `json:"toolResponse"`
}

// DeclarationSet is one entry of the setup frame's tools array.
type DeclarationSet struct {
	FunctionDeclarations []*genai.FunctionDeclaration `json:"functionDeclarations"`
}

func objectSchema(props map[string]*genai.Schema, required ...string) *genai.Schema {
	if props == nil {
		props = map[string]*genai.Schema{}
	}
	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: props,
		Required:   required,
	}
}

func stringProp(description string) *genai.Schema {
	return &genai.Schema{Type: genai.TypeString, Description: description}
}
