// Package fleetapi models the Flight Control resources exposed read-only by
// this server. Metadata is typed; spec and status subtrees are kept verbatim
// and read through gjson accessors so nothing the backend returns is lost.
package fleetapi

import (
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"
)

// TypeMeta carries the apiVersion and kind of a resource or list.
type TypeMeta struct {
	APIVersion string `json:"apiVersion,omitempty"`
	Kind       string `json:"kind,omitempty"`
}

func (t TypeMeta) GetKind() string { return t.Kind }

// ObjectMeta is the metadata shared by every record.
type ObjectMeta struct {
	Name              string            `json:"name,omitempty"`
	Labels            map[string]string `json:"labels,omitempty"`
	Annotations       map[string]string `json:"annotations,omitempty"`
	Owner             string            `json:"owner,omitempty"`
	CreationTimestamp *time.Time        `json:"creationTimestamp,omitempty"`
	DeletionTimestamp *time.Time        `json:"deletionTimestamp,omitempty"`
	Generation        *int64            `json:"generation,omitempty"`
	ResourceVersion   string            `json:"resourceVersion,omitempty"`
}

// ListMeta holds the pagination cursor of a page.
type ListMeta struct {
	Continue           string `json:"continue,omitempty"`
	RemainingItemCount *int64 `json:"remainingItemCount,omitempty"`
}

// Resource is implemented by every record type.
type Resource interface {
	GetKind() string
	GetName() string
	GetLabels() map[string]string
}

// List is one page of a list response.
type List[T any] struct {
	TypeMeta
	Metadata ListMeta `json:"metadata"`
	// Continue is accepted for backends that return the cursor at top level.
	Continue string `json:"continue,omitempty"`
	Items    []T    `json:"items"`
}

// NextCursor returns the continuation token, or "" on the last page.
func (l *List[T]) NextCursor() string {
	if l.Metadata.Continue != "" {
		return l.Metadata.Continue
	}
	return l.Continue
}

// Device is a managed edge device.
type Device struct {
	TypeMeta
	Metadata ObjectMeta      `json:"metadata"`
	Spec     json.RawMessage `json:"spec,omitempty"`
	Status   json.RawMessage `json:"status,omitempty"`
}

func (d Device) GetName() string              { return d.Metadata.Name }
func (d Device) GetLabels() map[string]string { return d.Metadata.Labels }

// Device summary states reported by the agent.
const (
	DeviceSummaryOnline     = "Online"
	DeviceSummaryOffline    = "Offline"
	DeviceSummaryPoweredOff = "PoweredOff"
	DeviceSummaryRebooting  = "Rebooting"
	DeviceSummaryUnknown    = "Unknown"
)

// Device lifecycle states.
const (
	DeviceLifecycleEnrolled        = "Enrolled"
	DeviceLifecycleDecommissioning = "Decommissioning"
	DeviceLifecycleDecommissioned  = "Decommissioned"
)

// SummaryStatus returns status.summary.status.
func (d Device) SummaryStatus() string {
	return gjson.GetBytes(d.Status, "summary.status").String()
}

// SummaryInfo returns status.summary.info.
func (d Device) SummaryInfo() string {
	return gjson.GetBytes(d.Status, "summary.info").String()
}

// LifecycleStatus returns status.lifecycle.status.
func (d Device) LifecycleStatus() string {
	return gjson.GetBytes(d.Status, "lifecycle.status").String()
}

// UpdatedStatus returns status.updated.status.
func (d Device) UpdatedStatus() string {
	return gjson.GetBytes(d.Status, "updated.status").String()
}

// ApplicationsStatus returns status.applicationsSummary.status.
func (d Device) ApplicationsStatus() string {
	return gjson.GetBytes(d.Status, "applicationsSummary.status").String()
}

// Fleet returns the owning fleet name from metadata.owner ("Fleet/<name>").
func (d Device) Fleet() string {
	const prefix = "Fleet/"
	if len(d.Metadata.Owner) > len(prefix) && d.Metadata.Owner[:len(prefix)] == prefix {
		return d.Metadata.Owner[len(prefix):]
	}
	return ""
}

// Unreachable reports whether the device cannot accept console sessions and
// returns the state that makes it so.
func (d Device) Unreachable() (bool, string) {
	if s := d.SummaryStatus(); s == DeviceSummaryPoweredOff {
		return true, s
	}
	if s := d.LifecycleStatus(); s == DeviceLifecycleDecommissioned {
		return true, s
	}
	return false, ""
}

// Fleet groups devices by label selector.
type Fleet struct {
	TypeMeta
	Metadata ObjectMeta      `json:"metadata"`
	Spec     json.RawMessage `json:"spec,omitempty"`
	Status   json.RawMessage `json:"status,omitempty"`
}

func (f Fleet) GetName() string              { return f.Metadata.Name }
func (f Fleet) GetLabels() map[string]string { return f.Metadata.Labels }

// SelectorLabels returns spec.selector.matchLabels.
func (f Fleet) SelectorLabels() map[string]string {
	out := map[string]string{}
	gjson.GetBytes(f.Spec, "selector.matchLabels").ForEach(func(k, v gjson.Result) bool {
		out[k.String()] = v.String()
		return true
	})
	return out
}

// DeviceCount returns status.devicesSummary.total.
func (f Fleet) DeviceCount() int64 {
	return gjson.GetBytes(f.Status, "devicesSummary.total").Int()
}

// Condition returns the status of the named condition, or "".
func (f Fleet) Condition(condType string) string {
	return conditionStatus(f.Status, condType)
}

// ObjectReference names the resource an event is about.
type ObjectReference struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
}

// EventSource names the component that emitted an event.
type EventSource struct {
	Component string `json:"component"`
}

// Event types.
const (
	EventTypeNormal  = "Normal"
	EventTypeWarning = "Warning"
)

// Event is an audit or status event emitted by the service.
type Event struct {
	TypeMeta
	Metadata       ObjectMeta      `json:"metadata"`
	InvolvedObject ObjectReference `json:"involvedObject"`
	Reason         string          `json:"reason,omitempty"`
	Message        string          `json:"message,omitempty"`
	Type           string          `json:"type,omitempty"`
	Source         EventSource     `json:"source"`
	Actor          string          `json:"actor,omitempty"`
	Details        json.RawMessage `json:"details,omitempty"`
}

func (e Event) GetName() string              { return e.Metadata.Name }
func (e Event) GetLabels() map[string]string { return e.Metadata.Labels }

// EnrollmentRequest asks for a device to join the service.
type EnrollmentRequest struct {
	TypeMeta
	Metadata ObjectMeta      `json:"metadata"`
	Spec     json.RawMessage `json:"spec,omitempty"`
	Status   json.RawMessage `json:"status,omitempty"`
}

func (e EnrollmentRequest) GetName() string              { return e.Metadata.Name }
func (e EnrollmentRequest) GetLabels() map[string]string { return e.Metadata.Labels }

// Approved returns status.approval.approved.
func (e EnrollmentRequest) Approved() bool {
	return gjson.GetBytes(e.Status, "approval.approved").Bool()
}

// Approver returns status.approval.approvedBy.
func (e EnrollmentRequest) Approver() string {
	return gjson.GetBytes(e.Status, "approval.approvedBy").String()
}

// Repository is a source of device configuration.
type Repository struct {
	TypeMeta
	Metadata ObjectMeta      `json:"metadata"`
	Spec     json.RawMessage `json:"spec,omitempty"`
	Status   json.RawMessage `json:"status,omitempty"`
}

func (r Repository) GetName() string              { return r.Metadata.Name }
func (r Repository) GetLabels() map[string]string { return r.Metadata.Labels }

// URL returns spec.url.
func (r Repository) URL() string {
	return gjson.GetBytes(r.Spec, "url").String()
}

// Type returns spec.type, e.g. "git" or "http".
func (r Repository) Type() string {
	return gjson.GetBytes(r.Spec, "type").String()
}

// Accessible returns the status of the Accessible condition.
func (r Repository) Accessible() string {
	return conditionStatus(r.Status, "Accessible")
}

// ResourceSync keeps fleets in sync with a repository path.
type ResourceSync struct {
	TypeMeta
	Metadata ObjectMeta      `json:"metadata"`
	Spec     json.RawMessage `json:"spec,omitempty"`
	Status   json.RawMessage `json:"status,omitempty"`
}

func (r ResourceSync) GetName() string              { return r.Metadata.Name }
func (r ResourceSync) GetLabels() map[string]string { return r.Metadata.Labels }

// Repository returns spec.repository.
func (r ResourceSync) Repository() string {
	return gjson.GetBytes(r.Spec, "repository").String()
}

// Synced returns the status of the Synced condition.
func (r ResourceSync) Synced() string {
	return conditionStatus(r.Status, "Synced")
}

// ObservedCommit returns status.observedCommit.
func (r ResourceSync) ObservedCommit() string {
	return gjson.GetBytes(r.Status, "observedCommit").String()
}

func conditionStatus(status json.RawMessage, condType string) string {
	for _, c := range gjson.GetBytes(status, "conditions").Array() {
		if c.Get("type").String() == condType {
			return c.Get("status").String()
		}
	}
	return ""
}

var (
	_ Resource = Device{}
	_ Resource = Fleet{}
	_ Resource = Event{}
	_ Resource = EnrollmentRequest{}
	_ Resource = Repository{}
	_ Resource = ResourceSync{}
)
