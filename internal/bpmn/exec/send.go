package exec

import (
	"context"
	"fmt"

	"github.com/bpmnkit/engine/internal/bpmn/expr"
)

// Message is one resolved outbound message handed to a Sender.
type Message struct {
	Type    string // Email, SMS, Webhook, ...
	To      string
	Subject string
	Body    string
	HTML    bool
}

// Sender is the external transport collaborator sendTask publishes through
// (spec §4.5 sendTask row: "Publish via the transport collaborator").
// Production deployments wire an email/SMS/webhook-backed implementation;
// nothing in the engine itself depends on a concrete transport.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// executeSendTask resolves every ${...} field against context, optionally
// appends approval links, and publishes through the configured Sender.
func executeSendTask(ctx context.Context, rc *RunContext) (Result, error) {
	e := rc.Element
	msg := Message{
		Type:    e.StringProp("messageType"),
		To:      expr.Resolve(e.StringProp("to"), rc.Store),
		Subject: expr.Resolve(e.StringProp("subject"), rc.Store),
		Body:    expr.Resolve(e.StringProp("messageBody"), rc.Store),
		HTML:    e.BoolProp("htmlFormat"),
	}

	if e.BoolProp("includeApprovalLinks") {
		msgRef := e.StringProp("approvalMessageRef")
		corrKey := expr.Resolve(e.StringProp("approvalCorrelationKey"), rc.Store)
		base := ""
		if rc.Deps != nil {
			base = rc.Deps.PublicBaseURL
		}
		approveURL := fmt.Sprintf("%s/webhooks/approve/%s/%s", base, msgRef, corrKey)
		denyURL := fmt.Sprintf("%s/webhooks/deny/%s/%s", base, msgRef, corrKey)
		if msg.HTML {
			msg.Body += fmt.Sprintf(`<p><a href="%s">Approve</a> | <a href="%s">Deny</a></p>`, approveURL, denyURL)
		} else {
			msg.Body += fmt.Sprintf("\n\nApprove: %s\nDeny: %s", approveURL, denyURL)
		}
	}

	if rc.Deps == nil || rc.Deps.Sender == nil {
		return Result{}, nil
	}
	if err := rc.Deps.Sender.Send(ctx, msg); err != nil {
		return Result{}, err
	}
	return Result{}, nil
}
