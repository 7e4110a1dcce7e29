package models

import (
	"crypto/sha256"
	"encoding/hex"
	"net/url"
	"strings"
	"time"
)

type Classification string

const (
	ClassRecruiter   Classification = "RECRUITER"
	ClassAmbiguous   Classification = "AMBIGUOUS"
	ClassNotRelevant Classification = "NOT_RELEVANT"
)

// Basis records which classifier path produced a Classification.
type Basis string

const (
	BasisKeyword  Basis = "matched_keyword"
	BasisNegative Basis = "negative_keyword"
	BasisAI       Basis = "ai_verdict"
	BasisFallback Basis = "fallback"
)

type RelationshipState string

const (
	StateNew            RelationshipState = "NEW"
	StateConnectionSent RelationshipState = "CONNECTION_SENT"
	StateConnected      RelationshipState = "CONNECTED"
	StateMessaged       RelationshipState = "MESSAGED"
	StateFollowedUp     RelationshipState = "FOLLOWED_UP"
)

// Rank orders states along the outreach lifecycle. Unknown states rank -1.
func (s RelationshipState) Rank() int {
	switch s {
	case StateNew:
		return 0
	case StateConnectionSent:
		return 1
	case StateConnected:
		return 2
	case StateMessaged:
		return 3
	case StateFollowedUp:
		return 4
	}
	return -1
}

type ActionKind string

const (
	ActionConnect  ActionKind = "connect"
	ActionMessage  ActionKind = "message"
	ActionFollowUp ActionKind = "follow_up"
)

// Quota maps an action onto the daily counter it consumes.
func (a ActionKind) Quota() ActionKind {
	if a == ActionFollowUp {
		return ActionMessage
	}
	return a
}

// ConnectionStatus is what the profile page shows about our relationship.
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "connected"
	StatusPending      ConnectionStatus = "pending"
	StatusNotConnected ConnectionStatus = "not_connected"
	StatusUnknown      ConnectionStatus = "unknown"
)

type Contact struct {
	Identity          string
	DisplayName       string
	Company           string
	TitleText         string
	Classification    Classification
	Basis             Basis
	RelationshipState RelationshipState
	LastActionAt      *time.Time
	MessageDigest     string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Terminal reports whether the contact is excluded from further processing.
func (c *Contact) Terminal() bool {
	if c.Classification == ClassNotRelevant && c.Basis != BasisFallback {
		return true
	}
	return c.RelationshipState == StateFollowedUp
}

type DailyCounters struct {
	Day                  string
	ConnectionsSentToday int
	MessagesSentToday    int
}

// Count returns the counter consumed by kind.
func (d DailyCounters) Count(kind ActionKind) int {
	if kind.Quota() == ActionConnect {
		return d.ConnectionsSentToday
	}
	return d.MessagesSentToday
}

// RawProfile is one search result as seen on the results page.
type RawProfile struct {
	Identity         string
	Name             string
	HeadlineText     string
	ConnectionStatus ConnectionStatus
}

// ProfileText is the material a deep classification or a generated message
// is based on.
type ProfileText struct {
	Name     string
	Headline string
	Company  string
	FullText string
}

type ResumeSummary struct {
	Skills          []string `yaml:"skills"`
	YearsExperience float64  `yaml:"years_experience"`
	Roles           []string `yaml:"roles"`
}

type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// AuditEntry is one row of the append-only action log.
type AuditEntry struct {
	ID        int64
	RunID     string
	Timestamp time.Time
	Identity  string
	Company   string
	Action    string
	Outcome   Outcome
	Detail    string
}

type RunLog struct {
	ID        string
	StartedAt time.Time
	EndedAt   time.Time
	Summary   string
}

type Summary struct {
	TotalActions       int
	CompaniesContacted int
	ConnectionsSent    int
	MessagesSent       int
	Successful         int
	Failed             int
}

type CompanyStats struct {
	Company         string
	TotalContacted  int
	ConnectionsSent int
	MessagesSent    int
}

// Digest fingerprints message text for the ledger.
func Digest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// CanonicalIdentity normalizes a profile URL so the same person found through
// different searches maps onto one ledger row.
func CanonicalIdentity(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	if !strings.HasPrefix(s, "http") {
		s = "https://www.linkedin.com/" + strings.TrimLeft(s, "/")
	}
	u, err := url.Parse(s)
	if err != nil {
		return strings.TrimRight(s, "/")
	}
	host := strings.ToLower(u.Host)
	if host == "linkedin.com" || strings.HasSuffix(host, ".linkedin.com") {
		host = "www.linkedin.com"
	}
	path := strings.TrimRight(u.Path, "/")
	if strings.HasPrefix(strings.ToLower(path), "/in/") {
		path = "/in/" + strings.ToLower(path[len("/in/"):])
	}
	return "https://" + host + path
}
