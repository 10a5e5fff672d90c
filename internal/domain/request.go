// Package domain defines the core interfaces and types for Harrier.
package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"
)

// AnalysisDomain identifies which analysis service a request belongs to.
// All four domains run through the same detection pipeline with
// domain-specific detector sets and scoring tables.
type AnalysisDomain string

const (
	DomainConversation AnalysisDomain = "conversation"
	DomainContact      AnalysisDomain = "contact"
	DomainTrading      AnalysisDomain = "trading"
	DomainVeracity     AnalysisDomain = "veracity"
)

// AllDomains returns the supported analysis domains in declaration order.
func AllDomains() []AnalysisDomain {
	return []AnalysisDomain{DomainConversation, DomainContact, DomainTrading, DomainVeracity}
}

// Valid reports whether d is a known analysis domain.
func (d AnalysisDomain) Valid() bool {
	switch d {
	case DomainConversation, DomainContact, DomainTrading, DomainVeracity:
		return true
	}
	return false
}

// Thoroughness controls how much work detectors do per request.
type Thoroughness string

const (
	ThoroughnessQuick    Thoroughness = "quick"
	ThoroughnessStandard Thoroughness = "standard"
	ThoroughnessDeep     Thoroughness = "deep"
)

// Options holds per-request pipeline options.
type Options struct {
	// Thoroughness hint passed through to detectors.
	Thoroughness Thoroughness `json:"thoroughness,omitempty"`

	// RealTime bypasses the cache read path. The result is still
	// written through on completion.
	RealTime bool `json:"realTime,omitempty"`

	// EnabledDetectors restricts which detectors run. Empty means all
	// detectors configured for the domain.
	EnabledDetectors []string `json:"enabledDetectors,omitempty"`
}

// Message is a single conversation message.
type Message struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender,omitempty"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// ContactInfo describes a counterparty identity to verify.
type ContactInfo struct {
	Identifier string `json:"identifier"` // phone, email, or handle
	Channel    string `json:"channel,omitempty"`
	Name       string `json:"name,omitempty"`
	Notes      string `json:"notes,omitempty"`
}

// TradePoint is one observation in a trading activity series.
type TradePoint struct {
	ID        string    `json:"id"`
	Volume    float64   `json:"volume"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp,omitempty"`
}

// TradingActivity describes a traded instrument and its activity series.
type TradingActivity struct {
	Symbol    string       `json:"symbol"`
	Exchange  string       `json:"exchange,omitempty"`
	Promotion string       `json:"promotion,omitempty"` // pitch text accompanying the offer
	Series    []TradePoint `json:"series,omitempty"`
}

// EntityInfo describes an entity whose veracity is being checked.
type EntityInfo struct {
	Name         string `json:"name"`
	Website      string `json:"website,omitempty"`
	Jurisdiction string `json:"jurisdiction,omitempty"`
	Description  string `json:"description,omitempty"`
}

// Payload carries the domain-specific request data. Exactly one section
// is populated, matching the request's analysis domain.
type Payload struct {
	Messages []Message        `json:"messages,omitempty"`
	Contact  *ContactInfo     `json:"contact,omitempty"`
	Trading  *TradingActivity `json:"trading,omitempty"`
	Entity   *EntityInfo      `json:"entity,omitempty"`
}

// NormalizedRequest is the pipeline's input: a validated, canonicalized
// analysis request. Immutable once built.
type NormalizedRequest struct {
	Domain    AnalysisDomain `json:"domain"`
	SubjectID string         `json:"subjectId"`
	Payload   Payload        `json:"payload"`
	Options   Options        `json:"options"`
}

// ValidationError indicates a malformed request. It is the only error
// class the pipeline surfaces to callers.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s %s", e.Field, e.Reason)
}

// Validate checks the request for the structural requirements of its
// domain. The pipeline never starts on a request that fails validation.
func (r *NormalizedRequest) Validate() error {
	if !r.Domain.Valid() {
		return &ValidationError{Field: "domain", Reason: "is not a supported analysis domain"}
	}
	if strings.TrimSpace(r.SubjectID) == "" {
		return &ValidationError{Field: "subjectId", Reason: "is required"}
	}

	switch r.Domain {
	case DomainConversation:
		if len(r.Payload.Messages) == 0 {
			return &ValidationError{Field: "payload.messages", Reason: "must contain at least one message"}
		}
		for i, m := range r.Payload.Messages {
			if strings.TrimSpace(m.Text) == "" {
				return &ValidationError{Field: fmt.Sprintf("payload.messages[%d].text", i), Reason: "is empty"}
			}
		}
	case DomainContact:
		if r.Payload.Contact == nil || strings.TrimSpace(r.Payload.Contact.Identifier) == "" {
			return &ValidationError{Field: "payload.contact.identifier", Reason: "is required"}
		}
	case DomainTrading:
		if r.Payload.Trading == nil || strings.TrimSpace(r.Payload.Trading.Symbol) == "" {
			return &ValidationError{Field: "payload.trading.symbol", Reason: "is required"}
		}
	case DomainVeracity:
		if r.Payload.Entity == nil || strings.TrimSpace(r.Payload.Entity.Name) == "" {
			return &ValidationError{Field: "payload.entity.name", Reason: "is required"}
		}
	}

	return nil
}

// CacheKey returns a stable hash over the canonical form of the request.
// Identical requests always hash to the same key regardless of field
// ordering, casing, or surrounding whitespace in the input.
func (r *NormalizedRequest) CacheKey() string {
	h := sha256.Sum256([]byte(r.canonical()))
	return hex.EncodeToString(h[:])[:16]
}

// canonical builds a deterministic string form of the request. Fields
// are emitted in a fixed order with normalized casing and whitespace.
func (r *NormalizedRequest) canonical() string {
	var b strings.Builder
	b.WriteString(string(r.Domain))
	b.WriteByte('|')
	b.WriteString(canonField(r.SubjectID))
	b.WriteByte('|')
	b.WriteString(string(r.Options.Thoroughness))

	detectors := append([]string(nil), r.Options.EnabledDetectors...)
	sort.Strings(detectors)
	for _, d := range detectors {
		b.WriteByte('|')
		b.WriteString(canonField(d))
	}

	switch r.Domain {
	case DomainConversation:
		for _, m := range r.Payload.Messages {
			b.WriteString("|m:")
			b.WriteString(canonField(m.ID))
			b.WriteByte(':')
			b.WriteString(canonField(m.Text))
		}
	case DomainContact:
		c := r.Payload.Contact
		b.WriteString("|c:")
		b.WriteString(canonField(c.Identifier))
		b.WriteByte(':')
		b.WriteString(canonField(c.Channel))
		b.WriteByte(':')
		b.WriteString(canonField(c.Notes))
	case DomainTrading:
		t := r.Payload.Trading
		b.WriteString("|t:")
		b.WriteString(canonField(t.Symbol))
		b.WriteByte(':')
		b.WriteString(canonField(t.Exchange))
		b.WriteByte(':')
		b.WriteString(canonField(t.Promotion))
		for _, p := range t.Series {
			fmt.Fprintf(&b, ":%s:%.6f:%.6f", canonField(p.ID), p.Volume, p.Price)
		}
	case DomainVeracity:
		e := r.Payload.Entity
		b.WriteString("|e:")
		b.WriteString(canonField(e.Name))
		b.WriteByte(':')
		b.WriteString(canonField(e.Website))
		b.WriteByte(':')
		b.WriteString(canonField(e.Jurisdiction))
		b.WriteByte(':')
		b.WriteString(canonField(e.Description))
	}

	return b.String()
}

// canonField lowercases and collapses internal whitespace.
func canonField(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// Texts returns the textual fragments of the payload with their source
// locators, in payload order. Evidence extractors operate over these.
func (r *NormalizedRequest) Texts() []SourceText {
	var out []SourceText
	switch r.Domain {
	case DomainConversation:
		for _, m := range r.Payload.Messages {
			out = append(out, SourceText{Ref: "message:" + m.ID, Text: m.Text})
		}
	case DomainContact:
		c := r.Payload.Contact
		out = append(out, SourceText{Ref: "contact:identifier", Text: c.Identifier})
		if c.Notes != "" {
			out = append(out, SourceText{Ref: "contact:notes", Text: c.Notes})
		}
	case DomainTrading:
		t := r.Payload.Trading
		if t.Promotion != "" {
			out = append(out, SourceText{Ref: "trading:promotion", Text: t.Promotion})
		}
	case DomainVeracity:
		e := r.Payload.Entity
		if e.Description != "" {
			out = append(out, SourceText{Ref: "entity:description", Text: e.Description})
		}
		if e.Website != "" {
			out = append(out, SourceText{Ref: "entity:website", Text: e.Website})
		}
	}
	return out
}

// SourceText is a payload fragment with a locator usable as an
// evidence source reference.
type SourceText struct {
	Ref  string
	Text string
}
