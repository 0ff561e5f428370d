package http

import (
	"encoding/json"
	"sort"

	"gopkg.in/yaml.v3"
)

// Dump is a diagnostic snapshot of a requester's outgoing configuration and
// of the last captured response.
type Dump struct {
	Outgoing OutgoingDump `json:"outgoing" yaml:"outgoing"`
	Incoming IncomingDump `json:"incoming" yaml:"incoming"`
}

type OutgoingDump struct {
	Method       string              `json:"method,omitempty" yaml:"method,omitempty"`
	URL          string              `json:"url" yaml:"url"`
	EffectiveURL string              `json:"effective_url,omitempty" yaml:"effective_url,omitempty"`
	Query        map[string][]string `json:"query,omitempty" yaml:"query,omitempty"`
	Headers      []HeaderField       `json:"headers,omitempty" yaml:"headers,omitempty"`
	PayloadKind  string              `json:"payload_kind" yaml:"payload_kind"`
	Payload      string              `json:"payload,omitempty" yaml:"payload,omitempty"`
	Frozen       bool                `json:"frozen" yaml:"frozen"`
	Requested    bool                `json:"requested" yaml:"requested"`
	Error        string              `json:"error,omitempty" yaml:"error,omitempty"`
}

// IncomingDump is empty until a request has completed
type IncomingDump struct {
	Body    *string             `json:"body,omitempty" yaml:"body,omitempty"`
	Headers map[string][]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Info    *Info               `json:"info,omitempty" yaml:"info,omitempty"`
}

// Dump assembles a snapshot for logging and debugging. It never fails; an
// unusable URL is reported in Outgoing.Error.
func (r *Requester) Dump() *Dump {
	d := &Dump{
		Outgoing: OutgoingDump{
			Method:      r.method,
			URL:         r.rawURL,
			PayloadKind: r.kind.String(),
			Frozen:      r.frozen,
			Requested:   r.requested,
		},
	}

	if effective, err := r.EffectiveURL(); err != nil {
		d.Outgoing.Error = err.Error()
	} else {
		d.Outgoing.EffectiveURL = effective
	}
	if r.err != nil {
		d.Outgoing.Error = r.err.Error()
	}

	if len(r.query) > 0 {
		d.Outgoing.Query = make(map[string][]string, len(r.query))
		for k, vs := range r.query {
			d.Outgoing.Query[k] = append([]string(nil), vs...)
		}
	}
	if len(r.headers) > 0 {
		d.Outgoing.Headers = append([]HeaderField(nil), r.headers...)
	}
	if r.kind != PayloadNone {
		d.Outgoing.Payload = string(r.payload)
	}

	if r.last != nil {
		body := string(r.last.Body)
		info := r.last.Info
		d.Incoming.Body = &body
		d.Incoming.Info = &info
		d.Incoming.Headers = make(map[string][]string, len(r.last.Headers))
		for k, vs := range r.last.Headers {
			d.Incoming.Headers[k] = append([]string(nil), vs...)
		}
	}

	return d
}

// Completed reports whether the dump holds a response
func (d *Dump) Completed() bool {
	return d.Incoming.Info != nil
}

// HeaderNames returns the response header names in sorted order
func (d *Dump) HeaderNames() []string {
	names := make([]string, 0, len(d.Incoming.Headers))
	for k := range d.Incoming.Headers {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (d *Dump) JSON() ([]byte, error) {
	return json.MarshalIndent(d, "", "  ")
}

func (d *Dump) YAML() ([]byte, error) {
	return yaml.Marshal(d)
}
