// Package catalog maps the model names users pick onto backends.
//
// Cloud models are listed under display names such as "Claude Sonnet 4 (API)";
// every other name is treated as a model installed on the local Ollama
// server.
package catalog

import (
	"errors"
	"sort"
)

// Provider identifies a backend family.
type Provider string

// Supported providers.
const (
	Ollama Provider = "ollama"
	Claude Provider = "claude"
	Gemini Provider = "gemini"
	OpenAI Provider = "openai"
)

// CloudProviders lists the providers that need an API key, in display order.
var CloudProviders = []Provider{Gemini, Claude, OpenAI}

// ErrUnknownModel is returned when a name is neither a cloud model nor
// installed locally.
var ErrUnknownModel = errors.New("unknown model")

// Entry describes one selectable model.
type Entry struct {
	// Name is what the user sees and selects.
	Name string `json:"name"`

	// Provider is the backend family.
	Provider Provider `json:"provider"`

	// ModelID is the identifier sent to the backend API.
	ModelID string `json:"model_id"`
}

// Cloud reports whether the entry needs an API key.
func (e Entry) Cloud() bool {
	return e.Provider != Ollama
}

var cloudModels = map[string]Entry{
	"Gemini 2.5 Pro (API)":   {Name: "Gemini 2.5 Pro (API)", Provider: Gemini, ModelID: "gemini-2.5-pro"},
	"Gemini 2.5 Flash (API)": {Name: "Gemini 2.5 Flash (API)", Provider: Gemini, ModelID: "gemini-2.5-flash"},
	"Claude Opus 4 (API)":    {Name: "Claude Opus 4 (API)", Provider: Claude, ModelID: "claude-opus-4-20250514"},
	"Claude Sonnet 4 (API)":  {Name: "Claude Sonnet 4 (API)", Provider: Claude, ModelID: "claude-sonnet-4-20250514"},
	"GPT-4o (API)":           {Name: "GPT-4o (API)", Provider: OpenAI, ModelID: "gpt-4o"},
	"GPT-4o mini (API)":      {Name: "GPT-4o mini (API)", Provider: OpenAI, ModelID: "gpt-4o-mini"},
}

// CloudModels returns the cloud catalog sorted by display name.
func CloudModels() []Entry {
	entries := make([]Entry, 0, len(cloudModels))
	for _, e := range cloudModels {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries
}

// Lookup resolves a display name. Names outside the cloud catalog resolve
// to an Ollama entry whose ModelID is the name itself.
func Lookup(name string) Entry {
	if e, ok := cloudModels[name]; ok {
		return e
	}
	return Entry{Name: name, Provider: Ollama, ModelID: name}
}

// IsCloud reports whether name is in the cloud catalog.
func IsCloud(name string) bool {
	_, ok := cloudModels[name]
	return ok
}

// Available returns the selectable names: sorted cloud names followed by
// the sorted local names.
func Available(local []string) []string {
	names := make([]string, 0, len(cloudModels)+len(local))
	for _, e := range CloudModels() {
		names = append(names, e.Name)
	}

	sortedLocal := append([]string(nil), local...)
	sort.Strings(sortedLocal)
	return append(names, sortedLocal...)
}

// Defaults picks the initial Analyst and Reviewer models from list: the
// first entry and the second one (or the first again when only one exists).
// Both are empty when list is empty.
func Defaults(list []string) (analyst, reviewer string) {
	switch len(list) {
	case 0:
		return "", ""
	case 1:
		return list[0], list[0]
	default:
		return list[0], list[1]
	}
}

// Known reports whether name can be used given the installed local models.
func Known(name string, local []string) bool {
	if IsCloud(name) {
		return true
	}
	for _, l := range local {
		if l == name {
			return true
		}
	}
	return false
}
