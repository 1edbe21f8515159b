// Package wire holds the two interchangeable encodings of the hardware
// protocol: a line-oriented ASCII form and a sentinel-framed CBOR form.
// Both are pure and stateless; the bridge picks one per deployment.
package wire

import (
	"fmt"
	"strings"
)

// Outbound verbs (bridge -> controller).
const (
	VerbDispense = "DISPENSE"
	VerbReturn   = "RETURN"
)

// Inbound reply tags (controller -> bridge).
const (
	TagAck          = "ACK"
	TagDispenseOK   = "DISPENSE_OK"
	TagDispenseFail = "DISPENSE_FAIL"
	TagReturnOK     = "RETURN_OK"
	TagReturnFail   = "RETURN_FAIL"
)

// Command is one outbound hardware operation. Arg is the slot id for
// loan traffic or the motor id for admin tests.
type Command struct {
	Verb      string
	RequestID string
	Arg       string
}

// Reply is one decoded controller response. ErrCode is empty unless the
// tag is a *_FAIL.
type Reply struct {
	Tag       string
	RequestID string
	ErrCode   string
}

// OK reports whether the reply is a successful terminal.
func (r Reply) OK() bool { return strings.HasSuffix(r.Tag, "_OK") }

// Terminal reports whether the reply completes an operation.
func (r Reply) Terminal() bool {
	switch r.Tag {
	case TagDispenseOK, TagDispenseFail, TagReturnOK, TagReturnFail:
		return true
	}
	return false
}

// EncodeCommand renders the line form: "VERB <request_id> <arg>\n".
func EncodeCommand(c Command) string {
	return fmt.Sprintf("%s %s %s\n", c.Verb, c.RequestID, c.Arg)
}

// ParseReply tokenizes one inbound line. Lines with fewer than two tokens
// are noise (boot banners, truncated reads) and are dropped, not errors.
func ParseReply(line string) (Reply, bool) {
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return Reply{}, false
	}
	r := Reply{Tag: parts[0], RequestID: parts[1]}
	if len(parts) >= 3 {
		r.ErrCode = parts[2]
	}
	return r, true
}
