package fleetapi

import "strings"

// Kind identifies a queryable resource type.
type Kind string

const (
	KindDevice            Kind = "Device"
	KindFleet             Kind = "Fleet"
	KindEvent             Kind = "Event"
	KindEnrollmentRequest Kind = "EnrollmentRequest"
	KindRepository        Kind = "Repository"
	KindResourceSync      Kind = "ResourceSync"
)

// APIPrefix is the path prefix of every list endpoint.
const APIPrefix = "/api/v1/"

// KindInfo describes how a kind is listed.
type KindInfo struct {
	Kind Kind
	// Plural is the endpoint segment under /api/v1.
	Plural string
	// LabelSelectable is false for kinds whose list endpoint rejects labelSelector.
	LabelSelectable bool
}

// Path returns the list endpoint for the kind.
func (k KindInfo) Path() string {
	return APIPrefix + k.Plural
}

var kindTable = []KindInfo{
	{KindDevice, "devices", true},
	{KindFleet, "fleets", true},
	{KindEvent, "events", false},
	{KindEnrollmentRequest, "enrollmentrequests", true},
	{KindRepository, "repositories", true},
	{KindResourceSync, "resourcesyncs", true},
}

// Kinds returns every queryable kind in a stable order.
func Kinds() []KindInfo {
	out := make([]KindInfo, len(kindTable))
	copy(out, kindTable)
	return out
}

// Info returns the listing details for k.
func (k Kind) Info() (KindInfo, bool) {
	for _, ki := range kindTable {
		if ki.Kind == k {
			return ki, true
		}
	}
	return KindInfo{}, false
}

// ParseKind accepts a kind name in any of its usual spellings: "Device",
// "device", "devices", "enrollment-request", "enrollment_requests".
func ParseKind(name string) (Kind, bool) {
	norm := strings.ToLower(strings.TrimSpace(name))
	norm = strings.NewReplacer("-", "", "_", "", " ", "").Replace(norm)
	for _, ki := range kindTable {
		if norm == strings.ToLower(string(ki.Kind)) || norm == ki.Plural {
			return ki.Kind, true
		}
	}
	return "", false
}
